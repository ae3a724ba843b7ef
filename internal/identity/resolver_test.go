package identity

import (
	"strings"
	"testing"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

func TestResolverKey(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	coords := &model.Coordinates{Latitude: 51.5014, Longitude: -0.1419}

	tests := []struct {
		name       string
		rec        model.Record
		wantPrefix string
		want       string
	}{
		{
			name:       "uprn wins over everything",
			rec:        model.Record{UPRN: "100023336956", ListingID: "1", URL: "https://www.zoopla.co.uk/for-sale/details/2/"},
			wantPrefix: PrefixUPRN,
			want:       "uprn:100023336956",
		},
		{
			name:       "explicit listing id",
			rec:        model.Record{ListingID: "67890123", URL: "https://www.zoopla.co.uk/x"},
			wantPrefix: PrefixListing,
			want:       "listing:67890123",
		},
		{
			name:       "listing id from detail url",
			rec:        model.Record{URL: "https://www.zoopla.co.uk/for-sale/details/67890123/?search_identifier=abc"},
			wantPrefix: PrefixListing,
			want:       "listing:67890123",
		},
		{
			name:       "canonical url",
			rec:        model.Record{URL: "HTTP://WWW.Example.com/homes/flat-1/?utm=x#photos"},
			wantPrefix: PrefixURL,
			want:       "url:https://www.example.com/homes/flat-1",
		},
		{
			name:       "location and address",
			rec:        model.Record{Coordinates: coords, Address: "Buckingham Palace, London SW1A 1AA"},
			wantPrefix: PrefixGeo,
		},
		{
			name: "nothing stable",
			rec:  model.Record{Title: "Nice flat", Price: 100000},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := r.Key(&tt.rec)
			if tt.want != "" && got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
			if tt.wantPrefix != "" && !strings.HasPrefix(got, tt.wantPrefix) {
				t.Errorf("Key() = %q, want prefix %q", got, tt.wantPrefix)
			}
			if tt.wantPrefix == "" && tt.want == "" && got != "" {
				t.Errorf("Key() = %q, want empty", got)
			}
		})
	}
}

func TestResolverKeyIgnoresMutableFields(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	base := model.Record{
		URL:         "https://www.zoopla.co.uk/for-sale/details/555/",
		Price:       300000,
		Description: "Original",
		Images:      []string{"a.jpg"},
	}
	changed := base.Clone()
	changed.Price = 275000
	changed.Description = "Reduced!"
	changed.Images = []string{"b.jpg", "c.jpg"}

	if r.Key(&base) != r.Key(&changed) {
		t.Errorf("key changed with mutable fields: %q vs %q", r.Key(&base), r.Key(&changed))
	}
}

func TestResolverGeoKeyTolerance(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	a := model.Record{
		Coordinates: &model.Coordinates{Latitude: 51.501400, Longitude: -0.141900},
		Address:     "10 Downing Street, London",
	}
	b := model.Record{
		Coordinates: &model.Coordinates{Latitude: 51.501400, Longitude: -0.141900},
		Address:     "  10, DOWNING   street -- london ",
	}

	if r.Key(&a) != r.Key(&b) {
		t.Errorf("expected address formatting to be ignored: %q vs %q", r.Key(&a), r.Key(&b))
	}

	c := a.Clone()
	c.Address = "11 Downing Street, London"
	if r.Key(&a) == r.Key(&c) {
		t.Error("expected different addresses at the same point to produce different keys")
	}
}

func TestNormalizeAddress(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	got := r.NormalizeAddress("Flat 2,  Ｍain Street — SE1 2AA")
	want := "flat 2 main street se1 2aa"
	if got != want {
		t.Errorf("NormalizeAddress() = %q, want %q", got, want)
	}
}

func TestAssign(t *testing.T) {
	t.Parallel()

	r := NewResolver()
	rec := model.Record{UPRN: "42"}
	if !r.Assign(&rec) || rec.Key != "uprn:42" {
		t.Errorf("Assign() did not set key, got %q", rec.Key)
	}

	empty := model.Record{}
	if r.Assign(&empty) {
		t.Error("Assign() should report false for a record with no stable attribute")
	}
}

func TestWithGeohashPrecision(t *testing.T) {
	t.Parallel()

	r := NewResolver(WithGeohashPrecision(5))
	rec := model.Record{
		Coordinates: &model.Coordinates{Latitude: 51.5, Longitude: -0.12},
		Address:     "Somewhere",
	}
	key := r.Key(&rec)
	parts := strings.Split(key, ":")
	if len(parts) != 3 || len(parts[1]) != 5 {
		t.Errorf("expected 5-character geohash, got key %q", key)
	}

	ignored := NewResolver(WithGeohashPrecision(40))
	if ignored.geohashPrecision != DefaultGeohashPrecision {
		t.Errorf("out-of-range precision should be ignored, got %d", ignored.geohashPrecision)
	}
}
