package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// MarkdownWriter outputs reports as Markdown documents.
type MarkdownWriter struct {
	baseWriter

	maxKeys int
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		maxKeys:    DefaultMaxKeys,
	}
}

// Write outputs the run report.
func (w *MarkdownWriter) Write(r *RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, r.Summary)
	w.writeChanges(md, r.Summary)
	w.writeCrawl(md, r.Summary)
	if r.Changes != nil {
		w.writeChangedListings(md, r.Changes)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteRuns outputs the run history as a table.
func (w *MarkdownWriter) WriteRuns(runs []model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Run History")
	md.PlainText("")

	if len(runs) == 0 {
		md.PlainText("No runs recorded.")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(runs))
	for i, run := range runs {
		rows[i] = []string{
			"`" + run.RunID + "`",
			formatTime(run.StartedAt),
			string(run.Status),
			strconv.Itoa(run.Added),
			strconv.Itoa(run.Updated),
			strconv.Itoa(run.Delisted),
			strconv.Itoa(run.Records),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Run", "Started", "Status", "Added", "Updated", "Delisted", "Records"},
		Rows:   rows,
	})
	return len(md.String()), md.Build()
}

// WriteEntry outputs the stored state of one listing.
func (w *MarkdownWriter) WriteEntry(entry *model.SnapshotEntry) (int, error) {
	md := markdown.NewMarkdown(w.output)
	rec := entry.Record

	title := rec.Title
	if title == "" {
		title = rec.Key
	}
	md.H1(title)
	md.PlainText("")

	rows := [][]string{
		{"Key", "`" + rec.Key + "`"},
		{"Address", orDash(rec.Address)},
		{"Price", priceText(rec)},
		{"Bedrooms", strconv.Itoa(rec.Bedrooms)},
		{"Bathrooms", strconv.Itoa(rec.Bathrooms)},
		{"Agent", orDash(rec.Agent.Name)},
		{"First Seen", formatTime(rec.FirstSeenAt)},
		{"Last Seen", formatTime(rec.LastSeenAt)},
		{"Last Run", "`" + entry.LastSeenRunID + "`"},
	}
	if rec.URL != "" {
		rows = append(rows, []string{"URL", rec.URL})
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	if rec.DelistedAt != nil {
		md.Warningf("Delisted since %s.", formatTime(*rec.DelistedAt))
		md.PlainText("")
	}

	if len(rec.PriceHistory) > 0 {
		md.H2("Price History")
		md.PlainText("")
		history := make([][]string, len(rec.PriceHistory))
		for i, pc := range rec.PriceHistory {
			history[i] = []string{
				pc.At.Format("2006-01-02"),
				strconv.FormatInt(pc.PreviousPrice, 10),
				strconv.FormatInt(pc.Price, 10),
			}
		}
		md.Table(markdown.TableSet{Header: []string{"Date", "Previous", "Price"}, Rows: history})
	}
	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *model.RunSummary) {
	md.H1("Crawl Run Report")
	md.PlainText("")

	rows := [][]string{
		{"Run ID", "`" + s.RunID + "`"},
		{"Started", formatTime(s.StartedAt)},
		{"Status", w.statusBadge(s)},
	}
	if d := s.Duration(); d > 0 {
		rows = append(rows, []string{"Duration", d.String()})
	}
	if len(s.Searches) > 0 {
		rows = append(rows, []string{"Searches", strings.Join(s.Searches, ", ")})
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: rows})
	md.PlainText("")

	w.writeAlert(md, s)
}

func (w *MarkdownWriter) statusBadge(s *model.RunSummary) string {
	switch s.Status {
	case model.RunStatusCompleted:
		return "✅ " + statusText(s)
	case model.RunStatusPartial:
		return "⚠️ " + statusText(s)
	default:
		return "❌ " + statusText(s)
	}
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.RunSummary) {
	switch {
	case !s.Succeeded():
		md.Cautionf("The run did not commit a snapshot: %s", orDash(s.Error))
	case len(s.TruncatedRegions) > 0:
		md.Warningf("%d region(s) may be truncated; some listings may be missing.", len(s.TruncatedRegions))
	case s.Status == model.RunStatusPartial:
		md.Importantf("%d request(s) failed; listings behind them were not refreshed.", s.FailedRequests)
	case s.Added+s.Updated+s.Delisted == 0:
		md.Tip("No listing changed since the previous run.")
	default:
		md.Note("Snapshot committed.")
	}
	md.PlainText("")

	for _, msg := range s.Warnings {
		md.Warningf("%s", msg)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeChanges(md *markdown.Markdown, s *model.RunSummary) {
	if !s.Succeeded() {
		return
	}
	md.H2("Changes")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Change", "Count"},
		Rows: [][]string{
			{"🟢 Added", strconv.Itoa(s.Added)},
			{"🟡 Updated", strconv.Itoa(s.Updated)},
			{"🔴 Delisted", strconv.Itoa(s.Delisted)},
			{"⚪ Unchanged", strconv.Itoa(s.Unchanged)},
			{"🗑️ Purged", strconv.Itoa(s.Purged)},
		},
	})
	md.PlainText("")

	if s.Added+s.Updated+s.Delisted+s.Unchanged > 0 {
		w.writePieChart(md, s)
	}
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *model.RunSummary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Listing Changes"),
		piechart.WithShowData(true),
	)

	for _, part := range []struct {
		label string
		n     int
	}{
		{"Added", s.Added},
		{"Updated", s.Updated},
		{"Delisted", s.Delisted},
		{"Unchanged", s.Unchanged},
	} {
		if part.n > 0 {
			chart.LabelAndIntValue(part.label, uint64(part.n))
		}
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeCrawl(md *markdown.Markdown, s *model.RunSummary) {
	md.H2("Crawl")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Sub-queries", strconv.Itoa(s.SubQueries)},
			{"Requests", strconv.Itoa(s.Requests)},
			{"Failed requests", strconv.Itoa(s.FailedRequests)},
			{"Parse failures", strconv.Itoa(s.ParseFailures)},
			{"Throttle adjustments", strconv.Itoa(s.ThrottleAdjustments)},
			{"Unique records", strconv.Itoa(s.Records)},
			{"Duplicates", strconv.Itoa(s.Duplicates)},
		},
	})
	md.PlainText("")

	if len(s.TruncatedRegions) > 0 {
		md.PlainText("### Possibly Truncated Regions")
		md.PlainText("")
		md.BulletList(s.TruncatedRegions...)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeChangedListings(md *markdown.Markdown, cs *model.ChangeSet) {
	if cs.IsEmpty() {
		return
	}
	md.H2("Changed Listings")
	md.PlainText("")

	if len(cs.Added) > 0 {
		md.PlainText("### Added")
		md.PlainText("")
		md.BulletList(w.limit(cs.Added)...)
		md.PlainText("")
	}

	if keys := sortedChangeKeys(cs); len(keys) > 0 {
		md.PlainText("### Updated")
		md.PlainText("")
		var rows [][]string
		for _, key := range w.limit(keys) {
			for _, fc := range cs.Changes[key] {
				rows = append(rows, []string{
					"`" + key + "`",
					fc.Field,
					truncateString(orDash(fc.Old), 40),
					truncateString(orDash(fc.New), 40),
				})
			}
		}
		md.Table(markdown.TableSet{Header: []string{"Key", "Field", "Old", "New"}, Rows: rows})
		md.PlainText("")
	}

	if len(cs.Delisted) > 0 {
		md.PlainText("### Delisted")
		md.PlainText("")
		md.BulletList(w.limit(cs.Delisted)...)
		md.PlainText("")
	}
}

// limit returns at most maxKeys keys, with a trailing note when cut.
func (w *MarkdownWriter) limit(keys []string) []string {
	if len(keys) <= w.maxKeys {
		return keys
	}
	out := make([]string, 0, w.maxKeys+1)
	out = append(out, keys[:w.maxKeys]...)
	return append(out, "... and "+strconv.Itoa(len(keys)-w.maxKeys)+" more")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by zoopla-scraper*")
}
