package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"mime"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/identity"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// Content types with a built-in extractor.
const (
	ContentTypeJSON = "application/json"
	ContentTypeHTML = "text/html"
)

// Extractor turns one raw listing payload into a partial field map.
// Implementations return a *model.ParseError for malformed payloads.
type Extractor interface {
	Extract(payload model.RawPayload) (model.Fields, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(payload model.RawPayload) (model.Fields, error)

// Extract calls f(payload).
func (f ExtractorFunc) Extract(payload model.RawPayload) (model.Fields, error) {
	return f(payload)
}

// Normalizer maps raw payloads into canonical records.
// It is safe for concurrent use once constructed.
type Normalizer struct {
	// extractors maps a media type to its extractor.
	extractors map[string]Extractor

	// fallback handles payloads whose content type has no extractor.
	fallback Extractor

	// resolver assigns identity keys.
	resolver *identity.Resolver

	// now stamps FirstSeenAt/LastSeenAt.
	now func() time.Time

	logger *slog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithExtractor registers ext for the given media type, replacing any
// existing registration.
func WithExtractor(mediaType string, ext Extractor) Option {
	return func(n *Normalizer) {
		n.extractors[strings.ToLower(mediaType)] = ext
	}
}

// WithFallback sets the extractor used for unregistered content types.
func WithFallback(ext Extractor) Option {
	return func(n *Normalizer) {
		n.fallback = ext
	}
}

// WithResolver sets the identity resolver.
func WithResolver(r *identity.Resolver) Option {
	return func(n *Normalizer) {
		n.resolver = r
	}
}

// WithClock sets the time source used for first/last-seen stamps.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		n.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// New creates a Normalizer with the JSON and HTML extractors registered.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		extractors: map[string]Extractor{
			ContentTypeJSON: NewJSONExtractor(),
			ContentTypeHTML: NewHTMLExtractor(),
		},
		resolver: identity.NewResolver(),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize extracts and canonicalizes one listing. The returned record has
// its Key set when any stable attribute was found; records without a key are
// returned as-is for the caller to count and drop.
func (n *Normalizer) Normalize(payload model.RawPayload) (model.Record, error) {
	ext := n.extractorFor(payload.ContentType)
	if ext == nil {
		return model.Record{}, &model.ParseError{
			SourceURL: payload.SourceURL,
			Reason:    fmt.Sprintf("no extractor for content type %q", payload.ContentType),
		}
	}

	fields, err := ext.Extract(payload)
	if err != nil {
		var pe *model.ParseError
		if errors.As(err, &pe) {
			return model.Record{}, err
		}
		return model.Record{}, &model.ParseError{SourceURL: payload.SourceURL, Reason: "extract", Err: err}
	}
	if len(fields) == 0 {
		return model.Record{}, &model.ParseError{SourceURL: payload.SourceURL, Reason: "empty listing"}
	}

	rec := n.build(fields, payload.SourceURL)
	if rec.Title == "" && rec.URL == "" && rec.Address == "" && rec.Price == 0 {
		return model.Record{}, &model.ParseError{SourceURL: payload.SourceURL, Reason: "listing has no usable fields"}
	}

	if !n.resolver.Assign(&rec) {
		n.logger.Debug("listing has no stable identity", "source", payload.SourceURL, "title", rec.Title)
	}
	return rec, nil
}

func (n *Normalizer) extractorFor(contentType string) Extractor {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	if ext, ok := n.extractors[mediaType]; ok {
		return ext
	}
	if strings.HasSuffix(mediaType, "+json") {
		if ext, ok := n.extractors[ContentTypeJSON]; ok {
			return ext
		}
	}
	return n.fallback
}

// build coerces the field map into a record.
func (n *Normalizer) build(f model.Fields, sourceURL string) model.Record {
	now := n.now().UTC()
	rec := model.Record{
		UPRN:         asString(f[model.FieldUPRN]),
		ListingID:    asString(f[model.FieldListingID]),
		URL:          resolveURL(sourceURL, asString(f[model.FieldURL])),
		Title:        collapseSpace(asString(f[model.FieldTitle])),
		Address:      collapseSpace(asString(f[model.FieldAddress])),
		PostalCode:   strings.ToUpper(strings.TrimSpace(asString(f[model.FieldPostalCode]))),
		PropertyType: strings.TrimSpace(asString(f[model.FieldPropertyType])),
		Bedrooms:     asInt(f[model.FieldBedrooms]),
		Bathrooms:    asInt(f[model.FieldBathrooms]),
		LivingRooms:  asInt(f[model.FieldLivingRooms]),
		Description:  strings.TrimSpace(asString(f[model.FieldDescription])),
		Agent: model.Agent{
			Name:  collapseSpace(asString(f[model.FieldAgentName])),
			Phone: strings.TrimSpace(asString(f[model.FieldAgentPhone])),
		},
		EPCRating:   strings.ToUpper(strings.TrimSpace(asString(f[model.FieldEPCRating]))),
		Features:    uniqueStrings(asStrings(f[model.FieldFeatures])),
		FirstSeenAt: now,
		LastSeenAt:  now,
	}

	if rec.PostalCode == "" {
		rec.PostalCode = ExtractPostcode(rec.Address)
	}

	n.applyPrice(&rec, f[model.FieldPrice])
	rec.Category = categoryOf(asString(f[model.FieldCategory]))

	lat, latOK := asFloat(f[model.FieldLatitude])
	lon, lonOK := asFloat(f[model.FieldLongitude])
	if latOK && lonOK && lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180 && (lat != 0 || lon != 0) {
		rec.Coordinates = &model.Coordinates{Latitude: lat, Longitude: lon}
	}

	for _, img := range asStrings(f[model.FieldImages]) {
		if resolved := resolveURL(sourceURL, img); resolved != "" {
			rec.Images = append(rec.Images, resolved)
		}
	}
	rec.Images = uniqueStrings(rec.Images)

	if history, ok := f[model.FieldPriceHistory].([]model.PriceChange); ok {
		rec.PriceHistory = history
	}
	if pois, ok := f[model.FieldPointsOfInterest].([]model.PointOfInterest); ok {
		rec.PointsOfInterest = pois
	}

	return rec
}

func (n *Normalizer) applyPrice(rec *model.Record, v any) {
	switch price := v.(type) {
	case nil:
		return
	case string:
		rec.PriceText = strings.TrimSpace(price)
		if p, ok := ParsePrice(price); ok {
			rec.Price = p.Amount
			rec.Currency = p.Currency
		}
	default:
		if f, ok := asFloat(price); ok && f > 0 {
			rec.Price = int64(math.Round(f))
			rec.Currency = "GBP"
		}
	}
}

func categoryOf(s string) model.Category {
	s = strings.ToLower(s)
	switch {
	case strings.Contains(s, "rent"), strings.Contains(s, "let"):
		return model.CategoryRent
	case strings.Contains(s, "sale"), strings.Contains(s, "buy"):
		return model.CategorySale
	default:
		return ""
	}
}

// resolveURL resolves href against base and drops non-http schemes.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return ""
	}
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(href, prefix) {
			return ""
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ref.String()
	}
	return b.ResolveReference(ref).String()
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case fmt.Stringer:
		return s.String()
	default:
		return ""
	}
}

// asInt accepts numbers or text containing digits ("3 beds").
func asInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i)
		}
		if f, err := x.Float64(); err == nil {
			return int(f)
		}
	case string:
		var digits strings.Builder
		for _, r := range x {
			if unicode.IsDigit(r) {
				digits.WriteRune(r)
			} else if digits.Len() > 0 {
				break
			}
		}
		if i, err := strconv.Atoi(digits.String()); err == nil {
			return i
		}
	}
	return 0
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func asStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s := strings.TrimSpace(asString(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(x); s != "" {
			return []string{s}
		}
	}
	return nil
}

func uniqueStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
