package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Category is the listing market a search targets.
type Category string

const (
	// CategorySale targets properties for sale.
	CategorySale Category = "sale"

	// CategoryRent targets properties to rent.
	CategoryRent Category = "rent"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategorySale || c == CategoryRent
}

// BoundingBox is a geographic rectangle in decimal degrees.
// Both edges are inclusive, so two boxes produced by splitting one along an
// axis share their boundary line.
type BoundingBox struct {
	MinLat float64 `json:"min_lat" yaml:"minLat"`
	MinLon float64 `json:"min_lon" yaml:"minLon"`
	MaxLat float64 `json:"max_lat" yaml:"maxLat"`
	MaxLon float64 `json:"max_lon" yaml:"maxLon"`
}

// Valid reports whether the box has positive extent and sane coordinates.
func (b BoundingBox) Valid() bool {
	return b.MinLat < b.MaxLat && b.MinLon < b.MaxLon &&
		b.MinLat >= -90 && b.MaxLat <= 90 &&
		b.MinLon >= -180 && b.MaxLon <= 180
}

// LatSpan returns the latitude extent in degrees.
func (b BoundingBox) LatSpan() float64 {
	return b.MaxLat - b.MinLat
}

// LonSpan returns the longitude extent in degrees.
func (b BoundingBox) LonSpan() float64 {
	return b.MaxLon - b.MinLon
}

// NormalizedLonSpan returns the longitude extent scaled by the cosine of the
// middle latitude, which makes it comparable with LatSpan as ground distance.
func (b BoundingBox) NormalizedLonSpan() float64 {
	midLat := (b.MinLat + b.MaxLat) / 2
	return b.LonSpan() * math.Cos(midLat*math.Pi/180)
}

// Contains reports whether the point lies inside the box (edges included).
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// String renders the box as "minLat,minLon,maxLat,maxLon".
func (b BoundingBox) String() string {
	return strings.Join([]string{
		strconv.FormatFloat(b.MinLat, 'f', -1, 64),
		strconv.FormatFloat(b.MinLon, 'f', -1, 64),
		strconv.FormatFloat(b.MaxLat, 'f', -1, 64),
		strconv.FormatFloat(b.MaxLon, 'f', -1, 64),
	}, ",")
}

// PriceRange is an inclusive price filter in whole currency units.
// Max == 0 means the range has no upper bound.
type PriceRange struct {
	Min int64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max int64 `json:"max,omitempty" yaml:"max,omitempty"`
}

// Unbounded reports whether the range has no upper limit.
func (p PriceRange) Unbounded() bool {
	return p.Max == 0
}

// Valid reports whether the range is well formed.
func (p PriceRange) Valid() bool {
	if p.Min < 0 || p.Max < 0 {
		return false
	}
	return p.Unbounded() || p.Min <= p.Max
}

// String renders the range as "min-max" or "min+" when unbounded.
func (p PriceRange) String() string {
	if p.Unbounded() {
		return strconv.FormatInt(p.Min, 10) + "+"
	}
	return strconv.FormatInt(p.Min, 10) + "-" + strconv.FormatInt(p.Max, 10)
}

// QuerySpec is one search issued against the marketplace: a region plus
// filter attributes. It is treated as immutable once handed to the
// partitioner; the With* helpers return modified copies.
type QuerySpec struct {
	// Name labels the search in logs and reports.
	Name string `json:"name,omitempty" yaml:"name"`

	// Category selects sale or rent listings.
	Category Category `json:"category" yaml:"category"`

	// Area is a free-form area identifier understood by the source
	// (e.g. "london", "SE1"). Used when BBox is nil.
	Area string `json:"area,omitempty" yaml:"area,omitempty"`

	// BBox restricts the search to a geographic rectangle.
	BBox *BoundingBox `json:"bbox,omitempty" yaml:"bbox,omitempty"`

	// Price restricts listings to a price band.
	Price PriceRange `json:"price" yaml:"price,omitempty"`

	// PropertyType filters on the source's property type (e.g. "flats").
	PropertyType string `json:"property_type,omitempty" yaml:"propertyType,omitempty"`
}

// Validate checks that the spec describes a searchable region.
func (q QuerySpec) Validate() error {
	if !q.Category.Valid() {
		return fmt.Errorf("query %q: invalid category %q (expected sale or rent)", q.Name, q.Category)
	}
	if q.BBox == nil && q.Area == "" {
		return fmt.Errorf("query %q: either bbox or area is required", q.Name)
	}
	if q.BBox != nil && !q.BBox.Valid() {
		return fmt.Errorf("query %q: invalid bounding box %s", q.Name, q.BBox)
	}
	if !q.Price.Valid() {
		return fmt.Errorf("query %q: invalid price range %s", q.Name, q.Price)
	}
	return nil
}

// Clone returns a deep copy of the spec.
func (q QuerySpec) Clone() QuerySpec {
	c := q
	if q.BBox != nil {
		b := *q.BBox
		c.BBox = &b
	}
	return c
}

// WithBBox returns a copy of the spec restricted to box.
func (q QuerySpec) WithBBox(box BoundingBox) QuerySpec {
	c := q.Clone()
	c.BBox = &box
	return c
}

// WithPrice returns a copy of the spec restricted to price.
func (q QuerySpec) WithPrice(price PriceRange) QuerySpec {
	c := q.Clone()
	c.Price = price
	return c
}

// String renders a compact, stable description used in logs.
func (q QuerySpec) String() string {
	var sb strings.Builder
	sb.WriteString(string(q.Category))
	if q.BBox != nil {
		sb.WriteString(" bbox=")
		sb.WriteString(q.BBox.String())
	} else {
		sb.WriteString(" area=")
		sb.WriteString(q.Area)
	}
	sb.WriteString(" price=")
	sb.WriteString(q.Price.String())
	if q.PropertyType != "" {
		sb.WriteString(" type=")
		sb.WriteString(q.PropertyType)
	}
	return sb.String()
}

// SubQuery is a QuerySpec narrowed until its probed result count is believed
// to fit under the platform cap. It is consumed once fully paged and never
// persisted.
type SubQuery struct {
	// ID is the lineage path from the root ("0", "0.1", "0.1.0", ...).
	ID string `json:"id"`

	// ParentID is the lineage path of the region this one was split from.
	// Empty for the root.
	ParentID string `json:"parent_id,omitempty"`

	// Depth is the number of splits between the root and this region.
	Depth int `json:"depth"`

	// Spec is the narrowed search.
	Spec QuerySpec `json:"spec"`

	// ProbedCount is the result count the probe reported for Spec.
	ProbedCount int `json:"probed_count"`

	// PossiblyTruncated is set when the region could not be split further
	// while its probed count still exceeded the cap.
	PossiblyTruncated bool `json:"possibly_truncated,omitempty"`
}

// PageRequest is the unit of work submitted to the fetch scheduler.
type PageRequest struct {
	// SubQuery is the region being paged.
	SubQuery SubQuery `json:"sub_query"`

	// Page is the zero-based page number within the sub-query.
	Page int `json:"page"`

	// Offset is the number of listings already returned for the sub-query.
	Offset int `json:"offset"`

	// Cursor is the opaque continuation token from the previous page.
	// Empty for the first page or for offset-paginated sources.
	Cursor string `json:"cursor,omitempty"`

	// PageSize is the number of listings requested per page.
	PageSize int `json:"page_size"`
}

// Next returns the request for the page following one that returned n
// listings and the given continuation cursor.
func (r PageRequest) Next(n int, cursor string) PageRequest {
	return PageRequest{
		SubQuery: r.SubQuery,
		Page:     r.Page + 1,
		Offset:   r.Offset + n,
		Cursor:   cursor,
		PageSize: r.PageSize,
	}
}
