package normalize

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// jsonAliases maps each canonical field to the source keys it may appear
// under, in lookup order.
var jsonAliases = map[string][]string{
	model.FieldUPRN:         {"uprn"},
	model.FieldListingID:    {"listing_id", "listingId"},
	model.FieldURL:          {"url", "details_url", "detailUrl", "listingUris"},
	model.FieldTitle:        {"title", "heading"},
	model.FieldAddress:      {"address", "displayAddress", "display_address"},
	model.FieldPostalCode:   {"postal_code", "postalCode", "postcode"},
	model.FieldPrice:        {"price", "priceText", "price_text"},
	model.FieldCategory:     {"category", "listing_category"},
	model.FieldPropertyType: {"property_type", "propertyType", "type"},
	model.FieldLatitude:     {"latitude", "lat"},
	model.FieldLongitude:    {"longitude", "lon", "lng"},
	model.FieldBedrooms:     {"bedrooms", "num_bedrooms", "beds"},
	model.FieldBathrooms:    {"bathrooms", "num_bathrooms", "baths"},
	model.FieldLivingRooms:  {"living_rooms", "livingroom", "livingRooms", "num_recepts"},
	model.FieldDescription:  {"description", "summary"},
	model.FieldAgentName:    {"agent", "agent_name", "agentName", "branch"},
	model.FieldAgentPhone:   {"agent_phone", "agentPhone", "phone"},
	model.FieldImages:       {"images", "photos"},
	model.FieldFeatures:     {"features", "bullets"},
	model.FieldEPCRating:    {"epc_rating", "epcRating"},
	model.FieldPriceHistory: {"price_history", "priceHistory"},
	model.FieldPointsOfInterest: {
		"points_of_interest", "pointsOfInterest",
	},
}

// JSONExtractor reads a listing JSON object.
type JSONExtractor struct{}

// NewJSONExtractor creates a JSONExtractor.
func NewJSONExtractor() *JSONExtractor {
	return &JSONExtractor{}
}

// Extract implements Extractor.
func (e *JSONExtractor) Extract(payload model.RawPayload) (model.Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(payload.Body))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, &model.ParseError{SourceURL: payload.SourceURL, Reason: "invalid listing json", Err: err}
	}
	if obj == nil {
		return nil, &model.ParseError{SourceURL: payload.SourceURL, Reason: "listing json is null"}
	}

	fields := make(model.Fields)
	for field, aliases := range jsonAliases {
		for _, alias := range aliases {
			if v, ok := obj[alias]; ok && v != nil {
				fields[field] = v
				break
			}
		}
	}

	e.flattenNested(obj, fields)
	return fields, nil
}

// flattenNested unpacks nested objects into flat fields and converts
// structured lists into their typed forms.
func (e *JSONExtractor) flattenNested(obj map[string]any, fields model.Fields) {
	for _, key := range []string{"coordinates", "location", "geo"} {
		if coords, ok := obj[key].(map[string]any); ok {
			setFirst(fields, model.FieldLatitude, coords, "latitude", "lat")
			setFirst(fields, model.FieldLongitude, coords, "longitude", "lon", "lng")
			break
		}
	}

	if agent, ok := fields[model.FieldAgentName].(map[string]any); ok {
		delete(fields, model.FieldAgentName)
		setFirst(fields, model.FieldAgentName, agent, "name", "branch_name", "branchName")
		setFirst(fields, model.FieldAgentPhone, agent, "phone", "telephone")
	}

	if v, ok := fields[model.FieldURL].(map[string]any); ok {
		delete(fields, model.FieldURL)
		setFirst(fields, model.FieldURL, v, "detail", "details", "url")
	}

	if price, ok := fields[model.FieldPrice].(map[string]any); ok {
		delete(fields, model.FieldPrice)
		setFirst(fields, model.FieldPrice, price, "amount", "value", "display", "text")
	}

	if list, ok := fields[model.FieldImages].([]any); ok {
		images := make([]string, 0, len(list))
		for _, item := range list {
			switch img := item.(type) {
			case string:
				images = append(images, img)
			case map[string]any:
				for _, k := range []string{"src", "url", "original"} {
					if s := asString(img[k]); s != "" {
						images = append(images, s)
						break
					}
				}
			}
		}
		fields[model.FieldImages] = images
	}

	if list, ok := fields[model.FieldPriceHistory].([]any); ok {
		fields[model.FieldPriceHistory] = priceHistoryOf(list)
	}
	if list, ok := fields[model.FieldPointsOfInterest].([]any); ok {
		fields[model.FieldPointsOfInterest] = pointsOfInterestOf(list)
	}
}

func setFirst(fields model.Fields, field string, src map[string]any, keys ...string) {
	if _, exists := fields[field]; exists {
		return
	}
	for _, k := range keys {
		if v, ok := src[k]; ok && v != nil {
			fields[field] = v
			return
		}
	}
}

func priceHistoryOf(list []any) []model.PriceChange {
	out := make([]model.PriceChange, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		change := model.PriceChange{
			Price:         amountOf(m["price"]),
			PreviousPrice: amountOf(firstOf(m, "previous_price", "previousPrice")),
		}
		if change.Price == 0 {
			continue
		}
		if at := asString(firstOf(m, "at", "date")); at != "" {
			for _, layout := range []string{time.RFC3339, time.DateOnly, "02/01/2006", "Jan 2006"} {
				if t, err := time.Parse(layout, at); err == nil {
					change.At = t.UTC()
					break
				}
			}
		}
		out = append(out, change)
	}
	return out
}

func pointsOfInterestOf(list []any) []model.PointOfInterest {
	out := make([]model.PointOfInterest, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		poi := model.PointOfInterest{
			Title: strings.TrimSpace(asString(firstOf(m, "title", "name"))),
			Type:  strings.TrimSpace(asString(firstOf(m, "type", "category"))),
		}
		if d, ok := asFloat(firstOf(m, "distance", "distance_miles")); ok {
			poi.Distance = d
		}
		if poi.Title != "" {
			out = append(out, poi)
		}
	}
	return out
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// amountOf reads a numeric amount or a display price string.
func amountOf(v any) int64 {
	if s, ok := v.(string); ok {
		if p, ok := ParsePrice(s); ok {
			return p.Amount
		}
		return 0
	}
	if f, ok := asFloat(v); ok && f > 0 {
		return int64(f + 0.5)
	}
	return 0
}
