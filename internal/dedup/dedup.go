package dedup

import (
	"iter"
	"log/slog"
	"maps"
	"slices"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// TiePolicy decides which of two equally complete records is kept.
type TiePolicy int

const (
	// TieLastWins keeps the most recently added record.
	TieLastWins TiePolicy = iota

	// TieFirstWins keeps the record added first.
	TieFirstWins
)

// String returns the policy name used in configuration.
func (p TiePolicy) String() string {
	if p == TieFirstWins {
		return "first"
	}
	return "last"
}

// ParseTiePolicy maps "first" and "last" to a TiePolicy. Anything else
// yields TieLastWins and false.
func ParseTiePolicy(s string) (TiePolicy, bool) {
	switch s {
	case "first":
		return TieFirstWins, true
	case "last", "":
		return TieLastWins, true
	default:
		return TieLastWins, false
	}
}

// Stats counts what the Deduplicator did with the records it was given.
type Stats struct {
	// Seen is the number of Add calls.
	Seen int `json:"seen"`

	// Duplicates counts records whose key was already present.
	Duplicates int `json:"duplicates"`

	// Replaced counts duplicates that displaced the stored record.
	Replaced int `json:"replaced"`

	// Unkeyed counts records dropped for lacking an identity key.
	Unkeyed int `json:"unkeyed"`
}

// Deduplicator is an identity-indexed record set. It is not safe for
// concurrent use; the scheduler's sink runs in a single goroutine.
type Deduplicator struct {
	records map[string]model.Record
	tie     TiePolicy
	logger  *slog.Logger
	stats   Stats
}

// Option configures a Deduplicator.
type Option func(*Deduplicator)

// WithTiePolicy sets the rule for equally complete duplicates.
func WithTiePolicy(p TiePolicy) Option {
	return func(d *Deduplicator) {
		d.tie = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Deduplicator) {
		d.logger = logger
	}
}

// New creates an empty Deduplicator.
func New(opts ...Option) *Deduplicator {
	d := &Deduplicator{
		records: make(map[string]model.Record),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Add inserts rec, or resolves it against the record already stored under
// the same key. It reports whether rec is now the stored record.
func (d *Deduplicator) Add(rec model.Record) bool {
	d.stats.Seen++
	if rec.Key == "" {
		d.stats.Unkeyed++
		d.logger.Debug("dropping record without identity key", "url", rec.URL, "title", rec.Title)
		return false
	}

	existing, ok := d.records[rec.Key]
	if !ok {
		d.records[rec.Key] = rec
		return true
	}

	d.stats.Duplicates++
	if !d.prefer(rec, existing) {
		return false
	}
	d.records[rec.Key] = rec
	d.stats.Replaced++
	return true
}

// prefer reports whether candidate should replace existing.
func (d *Deduplicator) prefer(candidate, existing model.Record) bool {
	c, e := candidate.Completeness(), existing.Completeness()
	switch {
	case c > e:
		return true
	case c < e:
		return false
	default:
		return d.tie == TieLastWins
	}
}

// Len returns the number of distinct keys.
func (d *Deduplicator) Len() int {
	return len(d.records)
}

// Stats returns the counters accumulated so far.
func (d *Deduplicator) Stats() Stats {
	return d.stats
}

// Get returns the record stored under key.
func (d *Deduplicator) Get(key string) (model.Record, bool) {
	rec, ok := d.records[key]
	return rec, ok
}

// Records returns the deduplicated records sorted by key.
func (d *Deduplicator) Records() []model.Record {
	out := make([]model.Record, 0, len(d.records))
	for _, key := range slices.Sorted(maps.Keys(d.records)) {
		out = append(out, d.records[key])
	}
	return out
}

// All returns the records as a key-ordered sequence. It can be ranged over
// any number of times.
func (d *Deduplicator) All() iter.Seq2[string, model.Record] {
	return func(yield func(string, model.Record) bool) {
		for _, key := range slices.Sorted(maps.Keys(d.records)) {
			if !yield(key, d.records[key]) {
				return
			}
		}
	}
}
