package normalize

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestNormalizer(opts ...Option) *Normalizer {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(opts...)
}

func TestParsePrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text       string
		wantAmount int64
		wantPeriod string
		wantOK     bool
	}{
		{"£450,000", 450000, PeriodNone, true},
		{"£1,200 pcm", 1200, PeriodMonthly, true},
		{"£300 pw", 1300, PeriodMonthly, true},
		{"Offers over £1.2m", 1200000, PeriodNone, true},
		{"Guide price £850k", 850000, PeriodNone, true},
		{"POA", 0, PeriodNone, false},
		{"", 0, PeriodNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()

			got, ok := ParsePrice(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ParsePrice(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.Amount != tt.wantAmount {
				t.Errorf("ParsePrice(%q).Amount = %d, want %d", tt.text, got.Amount, tt.wantAmount)
			}
			if got.Period != tt.wantPeriod {
				t.Errorf("ParsePrice(%q).Period = %q, want %q", tt.text, got.Period, tt.wantPeriod)
			}
			if got.Currency != "GBP" {
				t.Errorf("ParsePrice(%q).Currency = %q, want GBP", tt.text, got.Currency)
			}
		})
	}
}

func TestExtractPostcode(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Flat 3, 10 Long Lane, London SE1 4PG": "SE1 4PG",
		"Buckingham Palace, London sw1a1aa":    "SW1A 1AA",
		"Somewhere without a code":             "",
	}
	for in, want := range tests {
		if got := ExtractPostcode(in); got != want {
			t.Errorf("ExtractPostcode(%q) = %q, want %q", in, got, want)
		}
	}
}

const jsonListing = `{
	"uprn": "100023336956",
	"listingId": "111",
	"title": "3 bed terraced house to rent",
	"displayAddress": "1 High St, Bristol BS1 4DJ",
	"price": "£1,200 pcm",
	"category": "to rent",
	"propertyType": "terraced",
	"coordinates": {"latitude": 51.45, "longitude": -2.58},
	"bedrooms": 3,
	"bathrooms": "2",
	"livingroom": 1,
	"agent": {"name": "Acme Lettings", "phone": "0117 000 0000"},
	"images": [{"src": "https://lid.zoocdn.com/a.jpg"}, "https://lid.zoocdn.com/a.jpg", "/b.jpg"],
	"features": ["Garden", "Garden", "Parking"],
	"epcRating": "c",
	"priceHistory": [
		{"price": "£1,250 pcm", "date": "2026-01-15"},
		{"price": 1200, "previousPrice": 1250}
	],
	"pointsOfInterest": [{"title": "Temple Meads", "type": "rail", "distance": 0.4}]
}`

func TestNormalizeJSON(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	rec, err := n.Normalize(model.RawPayload{
		Body:        []byte(jsonListing),
		ContentType: "application/json; charset=utf-8",
		SourceURL:   "https://www.zoopla.co.uk/api/search",
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if rec.Key != "uprn:100023336956" {
		t.Errorf("Key = %q, want uprn key", rec.Key)
	}
	if rec.Price != 1200 || rec.PriceText != "£1,200 pcm" || rec.Currency != "GBP" {
		t.Errorf("unexpected price fields: %d %q %q", rec.Price, rec.PriceText, rec.Currency)
	}
	if rec.Category != model.CategoryRent {
		t.Errorf("Category = %q, want rent", rec.Category)
	}
	if rec.Coordinates == nil || rec.Coordinates.Latitude != 51.45 || rec.Coordinates.Longitude != -2.58 {
		t.Errorf("unexpected coordinates: %+v", rec.Coordinates)
	}
	if rec.Bedrooms != 3 || rec.Bathrooms != 2 || rec.LivingRooms != 1 {
		t.Errorf("unexpected room counts: %d/%d/%d", rec.Bedrooms, rec.Bathrooms, rec.LivingRooms)
	}
	if rec.Agent.Name != "Acme Lettings" || rec.Agent.Phone != "0117 000 0000" {
		t.Errorf("unexpected agent: %+v", rec.Agent)
	}
	wantImages := []string{"https://lid.zoocdn.com/a.jpg", "https://www.zoopla.co.uk/b.jpg"}
	if strings.Join(rec.Images, ",") != strings.Join(wantImages, ",") {
		t.Errorf("Images = %v, want %v", rec.Images, wantImages)
	}
	if strings.Join(rec.Features, ",") != "Garden,Parking" {
		t.Errorf("Features = %v, want deduplicated list", rec.Features)
	}
	if rec.EPCRating != "C" {
		t.Errorf("EPCRating = %q, want C", rec.EPCRating)
	}
	if rec.PostalCode != "BS1 4DJ" {
		t.Errorf("PostalCode = %q, want BS1 4DJ", rec.PostalCode)
	}
	if len(rec.PriceHistory) != 2 || !rec.PriceHistory[0].At.Equal(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected price history: %+v", rec.PriceHistory)
	}
	if len(rec.PointsOfInterest) != 1 || rec.PointsOfInterest[0].Title != "Temple Meads" {
		t.Errorf("unexpected points of interest: %+v", rec.PointsOfInterest)
	}
	if !rec.FirstSeenAt.Equal(fixedNow) || !rec.LastSeenAt.Equal(fixedNow) {
		t.Errorf("expected seen stamps from the clock, got %v / %v", rec.FirstSeenAt, rec.LastSeenAt)
	}
}

const htmlCard = `<div id="listing_67890123" data-testid="search-result">
  <a href="/for-sale/details/67890123/?search_identifier=x">
    <h2 data-testid="listing-title">2 bed flat for sale</h2>
  </a>
  <p data-testid="listing-price">£450,000</p>
  <address>Flat 3, 10 Long Lane, London SE1 4PG</address>
  <ul>
    <li data-testid="bed">2 beds</li>
    <li data-testid="bath">1 bath</li>
  </ul>
  <p data-testid="listing-agent">Foxtons - London Bridge</p>
  <img src="https://lid.zoocdn.com/645/430/abc.jpg">
  <img src="/static/logo.png">
</div>`

func TestNormalizeHTMLCard(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	rec, err := n.Normalize(model.RawPayload{
		Body:        []byte(htmlCard),
		ContentType: "text/html",
		SourceURL:   "https://www.zoopla.co.uk/for-sale/property/london/?pn=1",
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	if rec.Key != "listing:67890123" {
		t.Errorf("Key = %q, want listing:67890123", rec.Key)
	}
	if rec.Title != "2 bed flat for sale" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.Price != 450000 {
		t.Errorf("Price = %d, want 450000", rec.Price)
	}
	if rec.URL != "https://www.zoopla.co.uk/for-sale/details/67890123/?search_identifier=x" {
		t.Errorf("URL = %q, want resolved absolute URL", rec.URL)
	}
	if rec.PostalCode != "SE1 4PG" {
		t.Errorf("PostalCode = %q, want SE1 4PG", rec.PostalCode)
	}
	if rec.Bedrooms != 2 || rec.Bathrooms != 1 {
		t.Errorf("rooms = %d/%d, want 2/1", rec.Bedrooms, rec.Bathrooms)
	}
	if rec.Agent.Name != "Foxtons - London Bridge" {
		t.Errorf("Agent = %q", rec.Agent.Name)
	}
	if len(rec.Images) != 1 || !strings.Contains(rec.Images[0], "zoocdn.com") {
		t.Errorf("Images = %v, want only CDN photos", rec.Images)
	}
}

func TestSplitListings(t *testing.T) {
	t.Parallel()

	page := `<html><body><div data-testid="regular-listings">` +
		strings.Replace(htmlCard, "67890123", "1", 2) +
		strings.Replace(htmlCard, "67890123", "2", 2) +
		`</div></body></html>`

	payloads, err := SplitListings(strings.NewReader(page), "https://www.zoopla.co.uk/search")
	if err != nil {
		t.Fatalf("SplitListings() error = %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(payloads))
	}

	n := newTestNormalizer()
	for i, want := range []string{"listing:1", "listing:2"} {
		rec, err := n.Normalize(payloads[i])
		if err != nil {
			t.Fatalf("Normalize(payload %d) error = %v", i, err)
		}
		if rec.Key != want {
			t.Errorf("payload %d key = %q, want %q", i, rec.Key, want)
		}
	}
}

func TestNormalizeErrors(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	tests := []struct {
		name    string
		payload model.RawPayload
	}{
		{"malformed json", model.RawPayload{Body: []byte(`{"title": `), ContentType: ContentTypeJSON}},
		{"null json", model.RawPayload{Body: []byte(`null`), ContentType: ContentTypeJSON}},
		{"no usable fields", model.RawPayload{Body: []byte(`{"bedrooms": 2}`), ContentType: ContentTypeJSON}},
		{"unknown content type", model.RawPayload{Body: []byte(`x`), ContentType: "application/pdf"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := n.Normalize(tt.payload)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, model.ErrParse) {
				t.Errorf("expected ErrParse, got %v", err)
			}
			if model.ClassifyFetchError(err) != model.FetchPermanent {
				t.Errorf("parse errors must classify as permanent, got %v", model.ClassifyFetchError(err))
			}
		})
	}
}

func TestNormalizeWithoutIdentity(t *testing.T) {
	t.Parallel()

	n := newTestNormalizer()
	rec, err := n.Normalize(model.RawPayload{
		Body:        []byte(`{"title": "Mystery flat", "price": 100000}`),
		ContentType: ContentTypeJSON,
	})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if rec.Key != "" {
		t.Errorf("expected empty key, got %q", rec.Key)
	}
}

func TestCustomExtractor(t *testing.T) {
	t.Parallel()

	ext := ExtractorFunc(func(p model.RawPayload) (model.Fields, error) {
		return model.Fields{
			model.FieldUPRN:  "42",
			model.FieldTitle: string(p.Body),
			model.FieldPrice: 99.6,
		}, nil
	})
	n := newTestNormalizer(WithExtractor("text/csv", ext))

	rec, err := n.Normalize(model.RawPayload{Body: []byte("csv row"), ContentType: "text/csv"})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if rec.Key != "uprn:42" || rec.Title != "csv row" || rec.Price != 100 {
		t.Errorf("unexpected record: %+v", rec)
	}
}
