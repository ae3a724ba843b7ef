package scheduler

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// SubQueryOutcome summarizes how one sub-query was paged.
type SubQueryOutcome struct {
	ID          string `json:"id"`
	ParentID    string `json:"parent_id,omitempty"`
	Spec        string `json:"spec"`
	ProbedCount int    `json:"probed_count"`
	Pages       int    `json:"pages"`
	Records     int    `json:"records"`

	// Partial is set when a page failed and the remaining pages were not
	// fetched.
	Partial bool `json:"partial,omitempty"`

	// Truncated mirrors SubQuery.PossiblyTruncated.
	Truncated bool `json:"truncated,omitempty"`
}

// RequestFailure is one page request that did not succeed.
type RequestFailure struct {
	SubQueryID string `json:"subquery_id"`
	Page       int    `json:"page"`
	Kind       string `json:"kind"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error"`
}

// ParseFailure is one listing the normalizer rejected.
type ParseFailure struct {
	SubQueryID string `json:"subquery_id"`
	SourceURL  string `json:"source_url,omitempty"`
	Error      string `json:"error"`
}

// Report is the outcome of one scheduler run. It is returned even when the
// run fails.
type Report struct {
	SubQueries []SubQueryOutcome `json:"subqueries"`

	// Requests counts fetch attempts, retries included.
	Requests int `json:"requests"`

	// Pages counts successful page fetches.
	Pages int `json:"pages"`

	// Failed counts page requests that failed permanently or exhausted
	// their retries.
	Failed int `json:"failed"`

	// ParseFailures counts listings the normalizer rejected.
	ParseFailures int `json:"parse_failures"`

	// Records counts records handed to the sink.
	Records int `json:"records"`

	// ThrottleAdjustments counts rate-limit penalties applied.
	ThrottleAdjustments int `json:"throttle_adjustments"`

	// Truncated lists the IDs of sub-queries flagged PossiblyTruncated.
	Truncated []string `json:"truncated,omitempty"`

	Failures      []RequestFailure `json:"failures,omitempty"`
	ParseProblems []ParseFailure   `json:"parse_problems,omitempty"`
}

// FailureRate returns the larger of the page failure rate,
// Failed / (Pages + Failed), and the listing rejection rate,
// ParseFailures / (Records + ParseFailures). It is 0 before anything
// completed.
func (r *Report) FailureRate() float64 {
	var pageRate, listingRate float64
	if total := r.Pages + r.Failed; total > 0 {
		pageRate = float64(r.Failed) / float64(total)
	}
	if total := r.Records + r.ParseFailures; total > 0 {
		listingRate = float64(r.ParseFailures) / float64(total)
	}
	return max(pageRate, listingRate)
}

// checkFailureRate reports ErrFailureRateExceeded when nothing the run
// fetched succeeded, or when its failure rate exceeds threshold. A
// threshold of zero or less only catches the first case.
func (r *Report) checkFailureRate(threshold float64) error {
	switch {
	case r.Failed > 0 && r.Pages == 0:
		return fmt.Errorf("all %d page requests failed: %w", r.Failed, model.ErrFailureRateExceeded)
	case r.ParseFailures > 0 && r.Records == 0:
		return fmt.Errorf("all %d listings were rejected: %w", r.ParseFailures, model.ErrFailureRateExceeded)
	case threshold > 0 && r.FailureRate() > threshold:
		return fmt.Errorf("failure rate %.2f exceeds %.2f (%d of %d pages, %d of %d listings failed): %w",
			r.FailureRate(), threshold,
			r.Failed, r.Pages+r.Failed,
			r.ParseFailures, r.Records+r.ParseFailures,
			model.ErrFailureRateExceeded)
	}
	return nil
}

// PartialSubQueries returns the IDs of sub-queries with a failed page.
func (r *Report) PartialSubQueries() []string {
	var ids []string
	for _, sq := range r.SubQueries {
		if sq.Partial {
			ids = append(ids, sq.ID)
		}
	}
	return ids
}

// maxRecordedProblems bounds the per-item failure lists kept in a report.
const maxRecordedProblems = 200

// tracker accumulates a Report from concurrent workers.
type tracker struct {
	mu     sync.Mutex
	report Report
}

func (t *tracker) request() {
	t.mu.Lock()
	t.report.Requests++
	t.mu.Unlock()
}

func (t *tracker) page() {
	t.mu.Lock()
	t.report.Pages++
	t.mu.Unlock()
}

func (t *tracker) record() {
	t.mu.Lock()
	t.report.Records++
	t.mu.Unlock()
}

func (t *tracker) truncated(id string) {
	t.mu.Lock()
	t.report.Truncated = append(t.report.Truncated, id)
	t.mu.Unlock()
}

// failure records a failed page request and returns the failure rate
// inputs after counting it.
func (t *tracker) failure(req model.PageRequest, err error) (failed, total int) {
	f := RequestFailure{
		SubQueryID: req.SubQuery.ID,
		Page:       req.Page,
		Kind:       model.ClassifyFetchError(err).String(),
		Error:      err.Error(),
	}
	var fe *model.FetchError
	if errors.As(err, &fe) {
		f.StatusCode = fe.StatusCode
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.Failed++
	if len(t.report.Failures) < maxRecordedProblems {
		t.report.Failures = append(t.report.Failures, f)
	}
	return t.report.Failed, t.report.Failed + t.report.Pages
}

func (t *tracker) parseFailure(req model.PageRequest, sourceURL string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report.ParseFailures++
	if len(t.report.ParseProblems) < maxRecordedProblems {
		t.report.ParseProblems = append(t.report.ParseProblems, ParseFailure{
			SubQueryID: req.SubQuery.ID,
			SourceURL:  sourceURL,
			Error:      err.Error(),
		})
	}
}

func (t *tracker) outcome(o SubQueryOutcome) {
	t.mu.Lock()
	t.report.SubQueries = append(t.report.SubQueries, o)
	t.mu.Unlock()
}

// finish returns the accumulated report with stable ordering.
func (t *tracker) finish(adjustments int) *Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.report
	r.ThrottleAdjustments = adjustments
	r.SubQueries = slices.Clone(r.SubQueries)
	slices.SortFunc(r.SubQueries, func(a, b SubQueryOutcome) int {
		return strings.Compare(a.ID, b.ID)
	})
	r.Truncated = slices.Clone(r.Truncated)
	slices.Sort(r.Truncated)
	r.Failures = slices.Clone(r.Failures)
	r.ParseProblems = slices.Clone(r.ParseProblems)
	return &r
}
