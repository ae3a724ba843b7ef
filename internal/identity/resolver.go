package identity

import (
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/mmcloughlin/geohash"
	"golang.org/x/crypto/sha3"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// Key prefixes, one per identity source.
const (
	PrefixUPRN    = "uprn:"
	PrefixListing = "listing:"
	PrefixURL     = "url:"
	PrefixGeo     = "geo:"
)

// DefaultGeohashPrecision is the geohash length used for location keys.
// Nine characters resolve to roughly 5m x 5m, which separates neighbouring
// buildings but tolerates coordinate jitter from the source.
const DefaultGeohashPrecision = 9

// listingIDPattern matches the numeric listing id in marketplace detail URLs
// such as /for-sale/details/67890123/.
var listingIDPattern = regexp.MustCompile(`/details/(?:contact/)?(\d+)`)

// Resolver derives identity keys for records.
type Resolver struct {
	// geohashPrecision is the number of geohash characters in geo keys.
	geohashPrecision uint

	// folder case-folds address text before hashing.
	folder cases.Caser
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithGeohashPrecision sets the geohash length for location keys (1-12).
func WithGeohashPrecision(p uint) Option {
	return func(r *Resolver) {
		if p >= 1 && p <= 12 {
			r.geohashPrecision = p
		}
	}
}

// NewResolver creates a Resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		geohashPrecision: DefaultGeohashPrecision,
		folder:           cases.Fold(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the identity key for rec, or "" when the record carries no
// stable attribute at all.
func (r *Resolver) Key(rec *model.Record) string {
	if uprn := strings.TrimSpace(rec.UPRN); uprn != "" {
		return PrefixUPRN + uprn
	}

	if id := strings.TrimSpace(rec.ListingID); id != "" {
		return PrefixListing + id
	}
	if id := ListingIDFromURL(rec.URL); id != "" {
		return PrefixListing + id
	}

	if canonical := CanonicalURL(rec.URL); canonical != "" {
		return PrefixURL + canonical
	}

	if rec.Coordinates != nil && strings.TrimSpace(rec.Address) != "" {
		hash := geohash.EncodeWithPrecision(
			rec.Coordinates.Latitude,
			rec.Coordinates.Longitude,
			r.geohashPrecision,
		)
		return PrefixGeo + hash + ":" + r.addressDigest(rec.Address)
	}

	return ""
}

// Assign sets rec.Key and reports whether a key could be derived.
func (r *Resolver) Assign(rec *model.Record) bool {
	rec.Key = r.Key(rec)
	return rec.Key != ""
}

// addressDigest hashes the normalized address so keys stay short and free
// of whitespace and punctuation differences.
func (r *Resolver) addressDigest(address string) string {
	sum := sha3.Sum256([]byte(r.NormalizeAddress(address)))
	return hex.EncodeToString(sum[:6])
}

// NormalizeAddress folds case, applies NFKC, and reduces the address to
// space-separated alphanumeric tokens.
func (r *Resolver) NormalizeAddress(address string) string {
	folded := r.folder.String(norm.NFKC.String(address))

	var sb strings.Builder
	space := false
	for _, ch := range folded {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			if space && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteRune(ch)
			space = false
			continue
		}
		space = true
	}
	return sb.String()
}

// ListingIDFromURL extracts the numeric listing id from a detail URL.
func ListingIDFromURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	m := listingIDPattern.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// CanonicalURL normalizes a listing URL for identity comparison.
// The fragment and query string are dropped because tracking parameters
// vary between search pages that link to the same listing.
func CanonicalURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawQuery = ""
	u.User = nil
	u.Path = strings.TrimRight(u.Path, "/")

	return u.String()
}
