package snapshot

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// DefaultRetention is how long delisted entries are kept before purging.
const DefaultRetention = 30 * 24 * time.Hour

// Tracked field names reported in model.FieldChange.
const (
	FieldPrice       = "price"
	FieldBedrooms    = "bedrooms"
	FieldBathrooms   = "bathrooms"
	FieldDescription = "description"
	FieldImages      = "images"
	FieldAgent       = "agent"
	FieldStatus      = "status"
)

// Listing states reported for FieldStatus.
const (
	statusActive   = "active"
	statusDelisted = "delisted"
)

// ReconcileOptions parameterizes one reconciliation.
type ReconcileOptions struct {
	// RunID identifies the run; it becomes the new snapshot's RunID and
	// the LastSeenRunID of every entry observed in it.
	RunID string

	// Now stamps first/last seen times, delistings and price changes.
	Now time.Time

	// Retention is how long delisted entries are kept. Zero selects
	// DefaultRetention; a negative value keeps them forever.
	Retention time.Duration
}

// Reconcile diffs the current run's records against prior and returns the
// change set and the snapshot that replaces prior.
//
// current must already be deduplicated; when a key repeats the later
// record is used. Records without a key are ignored. prior may be nil.
// Neither argument is modified.
func Reconcile(current []model.Record, prior *model.Snapshot, opts ReconcileOptions) (*model.ChangeSet, *model.Snapshot) {
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	if opts.Retention == 0 {
		opts.Retention = DefaultRetention
	}

	cs := model.NewChangeSet(opts.RunID, opts.Now)
	next := model.NewSnapshot(opts.RunID, opts.Now)

	byKey := make(map[string]model.Record, len(current))
	for _, rec := range current {
		if rec.Key != "" {
			byKey[rec.Key] = rec
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		rec := byKey[key]
		old := prior.Get(key)

		switch {
		case old == nil:
			added := rec.Clone()
			if added.FirstSeenAt.IsZero() {
				added.FirstSeenAt = opts.Now
			}
			added.LastSeenAt = opts.Now
			added.DelistedAt = nil
			next.Entries[key] = &model.SnapshotEntry{Record: added, LastSeenRunID: opts.RunID}
			cs.Added = append(cs.Added, key)

		case old.Record.Delisted():
			changes := diff(&old.Record, &rec)
			changes = append(changes, model.FieldChange{Field: FieldStatus, Old: statusDelisted, New: statusActive})
			next.Entries[key] = &model.SnapshotEntry{Record: merge(&old.Record, &rec, opts.Now), LastSeenRunID: opts.RunID}
			cs.Updated = append(cs.Updated, key)
			cs.Changes[key] = changes

		default:
			changes := diff(&old.Record, &rec)
			if len(changes) == 0 {
				kept := old.Record.Clone()
				kept.LastSeenAt = opts.Now
				next.Entries[key] = &model.SnapshotEntry{Record: kept, LastSeenRunID: opts.RunID}
				cs.Unchanged++
				continue
			}
			next.Entries[key] = &model.SnapshotEntry{Record: merge(&old.Record, &rec, opts.Now), LastSeenRunID: opts.RunID}
			cs.Updated = append(cs.Updated, key)
			cs.Changes[key] = changes
		}
	}

	for _, key := range prior.Keys() {
		if _, seen := byKey[key]; seen {
			continue
		}
		old := prior.Get(key)
		rec := old.Record.Clone()

		if rec.Delisted() {
			if opts.Retention > 0 && opts.Now.Sub(*rec.DelistedAt) > opts.Retention {
				cs.Purged = append(cs.Purged, key)
				continue
			}
			next.Entries[key] = &model.SnapshotEntry{Record: rec, LastSeenRunID: old.LastSeenRunID}
			continue
		}

		delistedAt := opts.Now
		rec.DelistedAt = &delistedAt
		next.Entries[key] = &model.SnapshotEntry{Record: rec, LastSeenRunID: old.LastSeenRunID}
		cs.Delisted = append(cs.Delisted, key)
	}

	return cs, next
}

// merge builds the stored record for an updated listing: the current
// observation, keeping the identity's first-seen time and price history.
func merge(old, cur *model.Record, now time.Time) model.Record {
	rec := cur.Clone()
	rec.FirstSeenAt = old.FirstSeenAt
	if rec.FirstSeenAt.IsZero() {
		rec.FirstSeenAt = now
	}
	rec.LastSeenAt = now
	rec.DelistedAt = nil

	history := slices.Clone(old.PriceHistory)
	if len(cur.PriceHistory) > len(history) {
		history = slices.Clone(cur.PriceHistory)
	}
	if cur.Price != old.Price && cur.Price > 0 {
		history = append(history, model.PriceChange{Price: cur.Price, PreviousPrice: old.Price, At: now})
	}
	rec.PriceHistory = history
	return rec
}

// diff returns the tracked fields that differ between old and cur.
func diff(old, cur *model.Record) []model.FieldChange {
	var changes []model.FieldChange
	add := func(field, o, n string) {
		if o != n {
			changes = append(changes, model.FieldChange{Field: field, Old: o, New: n})
		}
	}

	add(FieldPrice, formatInt(old.Price), formatInt(cur.Price))
	add(FieldBedrooms, formatInt(int64(old.Bedrooms)), formatInt(int64(cur.Bedrooms)))
	add(FieldBathrooms, formatInt(int64(old.Bathrooms)), formatInt(int64(cur.Bathrooms)))
	add(FieldDescription, old.Description, cur.Description)
	if !slices.Equal(old.Images, cur.Images) {
		changes = append(changes, model.FieldChange{
			Field: FieldImages,
			Old:   strconv.Itoa(len(old.Images)) + " images",
			New:   strconv.Itoa(len(cur.Images)) + " images",
		})
	}
	add(FieldAgent, agentString(old.Agent), agentString(cur.Agent))
	return changes
}

func formatInt(n int64) string {
	if n == 0 {
		return ""
	}
	return strconv.FormatInt(n, 10)
}

func agentString(a model.Agent) string {
	return strings.TrimSpace(a.Name + " " + a.Phone)
}
