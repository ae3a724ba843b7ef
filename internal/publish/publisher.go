package publish

import (
	"context"
	"time"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// Publisher announces the outcome of a committed run.
type Publisher interface {
	Publish(ctx context.Context, cs *model.ChangeSet, summary *model.RunSummary) error
	Close() error
}

// EventType is the kind of change a listing event reports.
type EventType string

const (
	EventAdded    EventType = "added"
	EventUpdated  EventType = "updated"
	EventDelisted EventType = "delisted"
	EventPurged   EventType = "purged"
)

// Event is the message body published for one changed listing.
type Event struct {
	Type    EventType           `json:"type"`
	Key     string              `json:"key"`
	RunID   string              `json:"run_id"`
	Changes []model.FieldChange `json:"changes,omitempty"`
	At      time.Time           `json:"at"`
}

// RoutingKey returns the topic routing key for the event.
func (e Event) RoutingKey() string {
	return "listing." + string(e.Type)
}

// Events flattens a change set into per-listing events in a stable order:
// added, updated, delisted, purged, each sorted by key as in the change set.
func Events(cs *model.ChangeSet) []Event {
	if cs == nil {
		return nil
	}
	events := make([]Event, 0, cs.Total()+len(cs.Purged))
	add := func(t EventType, keys []string) {
		for _, key := range keys {
			events = append(events, Event{
				Type:    t,
				Key:     key,
				RunID:   cs.RunID,
				Changes: cs.Changes[key],
				At:      cs.GeneratedAt,
			})
		}
	}
	add(EventAdded, cs.Added)
	add(EventUpdated, cs.Updated)
	add(EventDelisted, cs.Delisted)
	add(EventPurged, cs.Purged)
	return events
}

// Noop discards everything. It is used when no broker is configured.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, *model.ChangeSet, *model.RunSummary) error { return nil }

// Close implements Publisher.
func (Noop) Close() error { return nil }
