package report

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// DefaultMaxKeys is how many keys per change category verbose output lists.
const DefaultMaxKeys = 20

const timeFormat = "2006-01-02 15:04:05 MST"

// SimpleWriter outputs plain-text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty prints sections that have nothing to list.
	showEmpty bool

	// verbose lists changed keys and their field changes.
	verbose bool

	maxKeys int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose lists changed keys and their field changes.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithMaxKeys bounds how many keys per category verbose output lists.
func WithMaxKeys(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		if n > 0 {
			w.maxKeys = n
		}
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		maxKeys:    DefaultMaxKeys,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the run report in human-readable format.
func (w *SimpleWriter) Write(r *RunReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, r.Summary)
	w.writeChanges(&sb, r.Summary)
	w.writeCrawl(&sb, r.Summary)
	w.writeWarnings(&sb, r.Summary)
	if w.verbose && r.Changes != nil {
		w.writeKeys(&sb, r.Changes)
	}
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

// WriteRuns outputs one line per run.
func (w *SimpleWriter) WriteRuns(runs []model.RunSummary) (int, error) {
	var sb strings.Builder

	if len(runs) == 0 {
		sb.WriteString("No runs recorded\n")
		return io.WriteString(w.output, sb.String())
	}

	fmt.Fprintf(&sb, "%-36s  %-19s  %-9s  %7s  %7s  %7s  %8s\n",
		"RUN ID", "STARTED", "STATUS", "ADDED", "UPDATED", "DELISTED", "RECORDS")
	for _, run := range runs {
		fmt.Fprintf(&sb, "%-36s  %-19s  %-9s  %7d  %7d  %7d  %8d\n",
			run.RunID,
			run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Status,
			run.Added,
			run.Updated,
			run.Delisted,
			run.Records,
		)
	}
	return io.WriteString(w.output, sb.String())
}

// WriteEntry outputs the stored state of one listing.
func (w *SimpleWriter) WriteEntry(entry *model.SnapshotEntry) (int, error) {
	var sb strings.Builder
	rec := entry.Record

	fmt.Fprintf(&sb, "Key:        %s\n", rec.Key)
	if rec.Title != "" {
		fmt.Fprintf(&sb, "Title:      %s\n", rec.Title)
	}
	if rec.Address != "" {
		fmt.Fprintf(&sb, "Address:    %s\n", rec.Address)
	}
	if rec.URL != "" {
		fmt.Fprintf(&sb, "URL:        %s\n", rec.URL)
	}
	fmt.Fprintf(&sb, "Price:      %s\n", priceText(rec))
	if rec.Bedrooms > 0 || rec.Bathrooms > 0 {
		fmt.Fprintf(&sb, "Rooms:      %d bed, %d bath\n", rec.Bedrooms, rec.Bathrooms)
	}
	if !rec.Agent.IsZero() {
		fmt.Fprintf(&sb, "Agent:      %s\n", rec.Agent.Name)
	}
	fmt.Fprintf(&sb, "First seen: %s\n", formatTime(rec.FirstSeenAt))
	fmt.Fprintf(&sb, "Last seen:  %s (run %s)\n", formatTime(rec.LastSeenAt), entry.LastSeenRunID)
	if rec.DelistedAt != nil {
		fmt.Fprintf(&sb, "Delisted:   %s\n", formatTime(*rec.DelistedAt))
	}

	if len(rec.PriceHistory) > 0 {
		sb.WriteString("Price history:\n")
		for _, pc := range rec.PriceHistory {
			fmt.Fprintf(&sb, "  %s  %d -> %d\n", pc.At.Format("2006-01-02"), pc.PreviousPrice, pc.Price)
		}
	}
	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, s *model.RunSummary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          CRAWL RUN REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Run ID:   %s\n", s.RunID)
	fmt.Fprintf(sb, "Started:  %s\n", formatTime(s.StartedAt))
	if d := s.Duration(); d > 0 {
		fmt.Fprintf(sb, "Duration: %s\n", d.Round(time.Second))
	}
	if len(s.Searches) > 0 {
		fmt.Fprintf(sb, "Searches: %s\n", strings.Join(s.Searches, ", "))
	}
	fmt.Fprintf(sb, "Status:   %s\n", statusText(s))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeChanges(sb *strings.Builder, s *model.RunSummary) {
	if !s.Succeeded() && !w.showEmpty {
		return
	}
	writeSection(sb, "CHANGES")

	fmt.Fprintf(sb, "  ADDED:     %d\n", s.Added)
	fmt.Fprintf(sb, "  UPDATED:   %d\n", s.Updated)
	fmt.Fprintf(sb, "  DELISTED:  %d\n", s.Delisted)
	fmt.Fprintf(sb, "  UNCHANGED: %d\n", s.Unchanged)
	if s.Purged > 0 || w.showEmpty {
		fmt.Fprintf(sb, "  PURGED:    %d\n", s.Purged)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCrawl(sb *strings.Builder, s *model.RunSummary) {
	writeSection(sb, "CRAWL")

	fmt.Fprintf(sb, "  Sub-queries:          %d\n", s.SubQueries)
	fmt.Fprintf(sb, "  Requests:             %d\n", s.Requests)
	fmt.Fprintf(sb, "  Failed requests:      %d\n", s.FailedRequests)
	fmt.Fprintf(sb, "  Parse failures:       %d\n", s.ParseFailures)
	fmt.Fprintf(sb, "  Throttle adjustments: %d\n", s.ThrottleAdjustments)
	fmt.Fprintf(sb, "  Unique records:       %d (%d duplicates)\n", s.Records, s.Duplicates)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeWarnings(sb *strings.Builder, s *model.RunSummary) {
	if len(s.Warnings) == 0 && len(s.TruncatedRegions) == 0 && !w.showEmpty {
		return
	}
	writeSection(sb, "WARNINGS")

	if len(s.Warnings) == 0 && len(s.TruncatedRegions) == 0 {
		sb.WriteString("  None\n")
	}
	for _, msg := range s.Warnings {
		fmt.Fprintf(sb, "  [!] %s\n", msg)
	}
	if len(s.TruncatedRegions) > 0 {
		fmt.Fprintf(sb, "  [!] possibly truncated regions: %s\n", strings.Join(s.TruncatedRegions, ", "))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeKeys(sb *strings.Builder, cs *model.ChangeSet) {
	groups := []struct {
		label string
		keys  []string
	}{
		{"ADDED", cs.Added},
		{"UPDATED", cs.Updated},
		{"DELISTED", cs.Delisted},
		{"PURGED", cs.Purged},
	}
	for _, g := range groups {
		if len(g.keys) == 0 {
			continue
		}
		writeSection(sb, g.label+" LISTINGS")
		for i, key := range g.keys {
			if i == w.maxKeys {
				fmt.Fprintf(sb, "  ... and %d more\n", len(g.keys)-w.maxKeys)
				break
			}
			fmt.Fprintf(sb, "  * %s\n", key)
			for _, fc := range cs.Changes[key] {
				fmt.Fprintf(sb, "      %s: %s -> %s\n", fc.Field, orDash(fc.Old), orDash(fc.New))
			}
		}
		sb.WriteString("\n")
	}
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(timeFormat)
}

func priceText(rec model.Record) string {
	switch {
	case rec.PriceText != "":
		return rec.PriceText
	case rec.Price > 0:
		return fmt.Sprintf("%d %s", rec.Price, rec.Currency)
	default:
		return "-"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// sortedChangeKeys returns the keys of cs.Changes in order.
func sortedChangeKeys(cs *model.ChangeSet) []string {
	keys := make([]string, 0, len(cs.Changes))
	for k := range cs.Changes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
