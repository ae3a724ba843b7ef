package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// Rental price periods as displayed by the marketplace.
const (
	PeriodNone    = ""
	PeriodMonthly = "pcm"
	PeriodWeekly  = "pw"
)

// weeksPerMonth converts weekly rents to calendar-month equivalents.
const weeksPerMonth = 52.0 / 12.0

var (
	// priceAmountPattern matches the first amount in a display price,
	// including thousands separators and an optional k/m multiplier.
	priceAmountPattern = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(k|m|million)?\b`)

	// weeklyPattern detects weekly rents ("pw", "per week", "p/w").
	weeklyPattern = regexp.MustCompile(`(?i)\b(pw|p/w|per\s+week|weekly)\b`)

	// monthlyPattern detects monthly rents ("pcm", "per month").
	monthlyPattern = regexp.MustCompile(`(?i)\b(pcm|p/m|per\s+month|monthly)\b`)

	// postcodePattern is a loose UK postcode matcher ("SE1 2AA", "W1A1AA").
	postcodePattern = regexp.MustCompile(`\b([A-Z]{1,2}\d[A-Z\d]?)\s*(\d[A-Z]{2})\b`)
)

// Price is a parsed display price.
type Price struct {
	// Amount is the price in whole currency units. Weekly rents are
	// converted to monthly.
	Amount int64

	// Currency is the ISO code inferred from the currency symbol.
	Currency string

	// Period is PeriodMonthly for rents, PeriodNone for sale prices.
	Period string
}

// ParsePrice reads a display price such as "£450,000", "£1,200 pcm",
// "£350 pw" or "Offers over £1.2m". It reports false when the text holds no
// amount ("POA", "Price on request").
func ParsePrice(text string) (Price, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Price{}, false
	}

	m := priceAmountPattern.FindStringSubmatch(text)
	if m == nil {
		return Price{}, false
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || amount <= 0 {
		return Price{}, false
	}
	switch strings.ToLower(m[2]) {
	case "k":
		amount *= 1_000
	case "m", "million":
		amount *= 1_000_000
	}

	p := Price{Currency: currencyOf(text)}
	switch {
	case weeklyPattern.MatchString(text):
		amount *= weeksPerMonth
		p.Period = PeriodMonthly
	case monthlyPattern.MatchString(text):
		p.Period = PeriodMonthly
	}
	p.Amount = int64(amount + 0.5)
	return p, true
}

func currencyOf(text string) string {
	switch {
	case strings.Contains(text, "€"), strings.Contains(strings.ToUpper(text), "EUR"):
		return "EUR"
	case strings.Contains(text, "$"), strings.Contains(strings.ToUpper(text), "USD"):
		return "USD"
	default:
		return "GBP"
	}
}

// ExtractPostcode returns the first UK postcode found in text, formatted
// with a single space before the inward code.
func ExtractPostcode(text string) string {
	m := postcodePattern.FindStringSubmatch(strings.ToUpper(text))
	if m == nil {
		return ""
	}
	return m[1] + " " + m[2]
}
