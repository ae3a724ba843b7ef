package model

import (
	"slices"
	"time"
)

// RawPayload is one listing's opaque payload as returned by the transport.
// It is ephemeral: the normalizer consumes it immediately.
type RawPayload struct {
	// Body holds the raw listing bytes (a JSON object, an HTML card, ...).
	Body []byte

	// ContentType tells the extractor how to read Body.
	ContentType string

	// SourceURL is the page the payload was taken from.
	SourceURL string
}

// RawPage is the result of one successful page fetch.
type RawPage struct {
	// Listings holds one payload per listing on the page, in page order.
	Listings []RawPayload

	// NextCursor is the continuation token for cursor-paginated sources.
	NextCursor string

	// Last is set when the source explicitly signals there is no next page.
	Last bool

	// Total is the result count the source reported for the query, if any.
	Total int
}

// Fields is the partial field map an extractor produces for one listing.
// Keys are the Field* constants; values are strings, numbers, string slices
// or nested maps depending on the field.
type Fields map[string]any

// Field names understood by the normalizer.
const (
	FieldUPRN             = "uprn"
	FieldListingID        = "listing_id"
	FieldURL              = "url"
	FieldTitle            = "title"
	FieldAddress          = "address"
	FieldPostalCode       = "postal_code"
	FieldPrice            = "price"
	FieldCategory         = "category"
	FieldPropertyType     = "property_type"
	FieldLatitude         = "latitude"
	FieldLongitude        = "longitude"
	FieldBedrooms         = "bedrooms"
	FieldBathrooms        = "bathrooms"
	FieldLivingRooms      = "living_rooms"
	FieldDescription      = "description"
	FieldAgentName        = "agent"
	FieldAgentPhone       = "agent_phone"
	FieldImages           = "images"
	FieldFeatures         = "features"
	FieldEPCRating        = "epc_rating"
	FieldPriceHistory     = "price_history"
	FieldPointsOfInterest = "points_of_interest"
)

// Coordinates is a WGS84 position.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Agent is the estate agent marketing a listing.
type Agent struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// IsZero reports whether no agent information is present.
func (a Agent) IsZero() bool {
	return a.Name == "" && a.Phone == ""
}

// PriceChange is one entry in a listing's price history.
type PriceChange struct {
	// Price is the price after the change.
	Price int64 `json:"price"`

	// PreviousPrice is the price before the change; 0 for the first entry.
	PreviousPrice int64 `json:"previous_price,omitempty"`

	// At is when the change was observed (or reported by the source).
	At time.Time `json:"at"`
}

// PointOfInterest is a nearby amenity reported with the listing.
type PointOfInterest struct {
	Title    string  `json:"title"`
	Type     string  `json:"type,omitempty"`
	Distance float64 `json:"distance,omitempty"`
}

// Record is the canonical listing every stage after the normalizer works on.
//
// Key is derived from stable source attributes (UPRN, listing id, canonical
// URL, or location) and never from mutable fields such as price, so updates
// to a listing do not change its identity.
type Record struct {
	Key              string            `json:"key"`
	ListingID        string            `json:"listing_id,omitempty"`
	UPRN             string            `json:"uprn,omitempty"`
	URL              string            `json:"url,omitempty"`
	Title            string            `json:"title,omitempty"`
	Address          string            `json:"address,omitempty"`
	PostalCode       string            `json:"postal_code,omitempty"`
	Price            int64             `json:"price,omitempty"`
	PriceText        string            `json:"price_text,omitempty"`
	Currency         string            `json:"currency,omitempty"`
	Category         Category          `json:"category,omitempty"`
	PropertyType     string            `json:"property_type,omitempty"`
	Coordinates      *Coordinates      `json:"coordinates,omitempty"`
	Bedrooms         int               `json:"bedrooms,omitempty"`
	Bathrooms        int               `json:"bathrooms,omitempty"`
	LivingRooms      int               `json:"living_rooms,omitempty"`
	Description      string            `json:"description,omitempty"`
	Agent            Agent             `json:"agent,omitzero"`
	Images           []string          `json:"images,omitempty"`
	Features         []string          `json:"features,omitempty"`
	EPCRating        string            `json:"epc_rating,omitempty"`
	PriceHistory     []PriceChange     `json:"price_history,omitempty"`
	PointsOfInterest []PointOfInterest `json:"points_of_interest,omitempty"`
	FirstSeenAt      time.Time         `json:"first_seen_at,omitzero"`
	LastSeenAt       time.Time         `json:"last_seen_at,omitzero"`
	DelistedAt       *time.Time        `json:"delisted_at,omitempty"`
}

// Completeness counts the non-empty canonical fields of the record.
// The deduplicator keeps the more complete of two records sharing a key.
func (r *Record) Completeness() int {
	score := 0
	count := func(ok bool) {
		if ok {
			score++
		}
	}
	count(r.UPRN != "")
	count(r.URL != "")
	count(r.Title != "")
	count(r.Address != "")
	count(r.PostalCode != "")
	count(r.Price > 0)
	count(r.Category != "")
	count(r.PropertyType != "")
	count(r.Coordinates != nil)
	count(r.Bedrooms > 0)
	count(r.Bathrooms > 0)
	count(r.LivingRooms > 0)
	count(r.Description != "")
	count(r.Agent.Name != "")
	count(r.Agent.Phone != "")
	count(len(r.Images) > 0)
	count(len(r.Features) > 0)
	count(r.EPCRating != "")
	count(len(r.PriceHistory) > 0)
	count(len(r.PointsOfInterest) > 0)
	return score
}

// Delisted reports whether the record is retained only as history.
func (r *Record) Delisted() bool {
	return r.DelistedAt != nil
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() Record {
	c := *r
	if r.Coordinates != nil {
		coords := *r.Coordinates
		c.Coordinates = &coords
	}
	if r.DelistedAt != nil {
		t := *r.DelistedAt
		c.DelistedAt = &t
	}
	c.Images = slices.Clone(r.Images)
	c.Features = slices.Clone(r.Features)
	c.PriceHistory = slices.Clone(r.PriceHistory)
	c.PointsOfInterest = slices.Clone(r.PointsOfInterest)
	return c
}
