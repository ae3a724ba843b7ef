package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// ErrUnknownFormat is returned by ParseFormat for unsupported names.
var ErrUnknownFormat = errors.New("unknown report format")

// Format names an output format.
type Format string

const (
	// FormatText is the human-readable default.
	FormatText Format = "text"

	// FormatJSON is structured JSON.
	FormatJSON Format = "json"

	// FormatMarkdown is a Markdown document.
	FormatMarkdown Format = "markdown"
)

// ParseFormat converts a user-supplied name into a Format.
// "md" is accepted for markdown and "" selects text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q (expected text, json or markdown)", ErrUnknownFormat, s)
	}
}

// RunReport is what a writer renders for one run: the summary and, for
// committed runs, the change set.
type RunReport struct {
	Summary *model.RunSummary `json:"summary"`
	Changes *model.ChangeSet  `json:"changes,omitempty"`
}

// Writer renders reports to an output.
type Writer interface {
	// Write renders a run report.
	Write(r *RunReport) (int, error)

	// WriteRuns renders a run history, newest first.
	WriteRuns(runs []model.RunSummary) (int, error)

	// WriteEntry renders the stored state of one listing.
	WriteEntry(entry *model.SnapshotEntry) (int, error)
}

// NewWriter returns the writer for format. version is embedded in JSON
// output.
func NewWriter(format Format, output io.Writer, version string) (Writer, error) {
	switch format {
	case FormatText, "":
		return NewSimpleWriter(output), nil
	case FormatJSON:
		return NewFullJSONWriter(output, version, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// baseWriter holds the output destination shared by all writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// statusText returns a short label for a run status.
func statusText(s *model.RunSummary) string {
	switch s.Status {
	case model.RunStatusCompleted:
		return "Completed"
	case model.RunStatusPartial:
		return "Partial (some requests failed or regions truncated)"
	case model.RunStatusCancelled:
		return "Cancelled - " + s.Error
	case model.RunStatusFailed:
		if s.Error != "" {
			return "Failed - " + s.Error
		}
		return "Failed"
	default:
		return string(s.Status)
	}
}

// truncateString shortens s to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
