package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/config"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
)

// fakeSource serves the count and search endpoints from a listing set the
// test can swap between runs.
type fakeSource struct {
	mu       sync.Mutex
	listings []map[string]any
}

func (f *fakeSource) set(listings ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings = listings
}

func (f *fakeSource) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/search/count", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"total": len(f.listings)})
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"total":    len(f.listings),
			"listings": f.listings,
			"last":     true,
		})
	})
	return mux
}

func listing(id string, price string) map[string]any {
	return map[string]any{
		"listing_id": id,
		"url":        "https://www.zoopla.co.uk/for-sale/details/" + id + "/",
		"title":      "2 bed flat for sale",
		"address":    id + " High Street, London SE1 7PB",
		"price":      price,
		"category":   "sale",
	}
}

// writeConfig writes a config file pointing at baseURL with its SQLite
// database under the test's temp dir.
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()

	dir := t.TempDir()
	content := fmt.Sprintf(`source:
  baseURL: %s
crawl:
  workers: 2
  rate: 100
  maxRetries: 1
storage:
  dataDir: %s
searches:
  - name: se1-sale
    category: sale
    area: SE1
`, baseURL, filepath.Join(dir, "data"))

	path := filepath.Join(dir, config.DefaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type jsonRunReport struct {
	Version string           `json:"version"`
	Summary model.RunSummary `json:"summary"`
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()

	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("invalid JSON output %q: %v", s, err)
	}
	return v
}

func TestRunIncremental(t *testing.T) {
	t.Parallel()

	source := &fakeSource{}
	srv := httptest.NewServer(source.handler())
	t.Cleanup(srv.Close)
	cfgPath := writeConfig(t, srv.URL)

	// First run: everything is new.
	source.set(listing("101", "£300,000"), listing("102", "£450,000"), listing("103", "£275,000"))
	out, err := execute(t, "run", "-c", cfgPath, "-f", "json")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := decodeJSON[jsonRunReport](t, out).Summary
	if first.Status != model.RunStatusCompleted {
		t.Fatalf("first run status = %s (%s)", first.Status, first.Error)
	}
	if first.Added != 3 || first.Updated != 0 || first.Delisted != 0 {
		t.Errorf("first run = +%d ~%d -%d, want +3 ~0 -0", first.Added, first.Updated, first.Delisted)
	}

	// Second run: one price drop, one listing gone.
	source.set(listing("101", "£285,000"), listing("102", "£450,000"))
	out, err = execute(t, "run", "-c", cfgPath, "-f", "json")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	second := decodeJSON[jsonRunReport](t, out).Summary
	if second.Added != 0 || second.Updated != 1 || second.Delisted != 1 || second.Unchanged != 1 {
		t.Errorf("second run = +%d ~%d -%d =%d, want +0 ~1 -1 =1",
			second.Added, second.Updated, second.Delisted, second.Unchanged)
	}

	// A run against an unreachable source fails without committing.
	out, err = execute(t, "run", "-c", cfgPath, "-f", "json", "--base-url", "http://"+closedAddr(t))
	if !errors.Is(err, errRunFailed) {
		t.Fatalf("unreachable source: err = %v, want errRunFailed", err)
	}
	if failed := decodeJSON[jsonRunReport](t, out).Summary; failed.Status != model.RunStatusFailed {
		t.Errorf("failed run status = %s", failed.Status)
	}

	out, err = execute(t, "history", "-c", cfgPath, "-f", "json")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	runs := decodeJSON[[]model.RunSummary](t, out)
	if len(runs) != 3 {
		t.Fatalf("history has %d runs, want 3", len(runs))
	}
	if runs[0].Status != model.RunStatusFailed || runs[2].RunID != first.RunID {
		t.Errorf("history order = %s/%s, %s", runs[0].RunID, runs[0].Status, runs[2].RunID)
	}

	// The failed run left the second run's snapshot in place.
	out, err = execute(t, "lookup", "listing:101", "-c", cfgPath, "-f", "json")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	entry := decodeJSON[model.SnapshotEntry](t, out)
	if entry.Record.Price != 285000 || entry.LastSeenRunID != second.RunID {
		t.Errorf("lookup = price %d last seen %s", entry.Record.Price, entry.LastSeenRunID)
	}
	if len(entry.Record.PriceHistory) == 0 {
		t.Error("expected the price drop in the history")
	}

	out, err = execute(t, "lookup", "listing:103", "-c", cfgPath, "-f", "json")
	if err != nil {
		t.Fatalf("lookup delisted: %v", err)
	}
	if gone := decodeJSON[model.SnapshotEntry](t, out); !gone.Record.Delisted() {
		t.Error("listing:103 should be marked delisted")
	}

	if _, err := execute(t, "lookup", "listing:999", "-c", cfgPath); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("lookup unknown = %v, want not found", err)
	}
}

func TestRunWritesReportFile(t *testing.T) {
	t.Parallel()

	source := &fakeSource{}
	source.set(listing("201", "£500,000"))
	srv := httptest.NewServer(source.handler())
	t.Cleanup(srv.Close)
	cfgPath := writeConfig(t, srv.URL)

	reportPath := filepath.Join(t.TempDir(), "reports", "latest.md")
	out, err := execute(t, "run", "-c", cfgPath, "-f", "markdown", "-o", reportPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "" {
		t.Errorf("expected nothing on stdout, got %q", out)
	}

	content, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.HasPrefix(string(content), "#") {
		t.Errorf("expected a Markdown report, got %q", content)
	}
}

func TestRunConfigurationErrors(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, "https://listings.example/api")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing config file", []string{"run", "-c", filepath.Join(t.TempDir(), "nope.yaml")}, "configuration file not found"},
		{"unknown search", []string{"run", "-c", cfgPath, "-s", "nowhere"}, "nowhere"},
		{"unknown format", []string{"run", "-c", cfgPath, "-f", "xml"}, "unknown report format"},
		{"invalid workers", []string{"run", "-c", cfgPath, "-w", "0"}, "worker count"},
		{"invalid category", []string{"run", "-c", cfgPath, "--area", "SE1", "--category", "auction"}, "invalid category"},
		{"invalid proxy", []string{"run", "-c", cfgPath, "-x", "localhost"}, "proxy"},
		{"unknown log format", []string{"history", "-c", cfgPath, "--log-format", "xml"}, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestApplyRunFlags(t *testing.T) {
	t.Parallel()

	searches := []model.QuerySpec{
		{Name: "a", Category: model.CategorySale, Area: "SE1"},
		{Name: "b", Category: model.CategoryRent, Area: "E1"},
		{Name: "c", Category: model.CategorySale, Area: "N1"},
	}

	t.Run("unset flags keep config values", func(t *testing.T) {
		t.Parallel()

		cmd := NewRunCmd()
		if err := cmd.ParseFlags([]string{"--rate", "0.5"}); err != nil {
			t.Fatalf("ParseFlags() error = %v", err)
		}
		cfg := config.NewConfig()
		cfg.Workers = 3
		cfg.Searches = searches

		if err := applyRunFlags(cmd, cfg); err != nil {
			t.Fatalf("applyRunFlags() error = %v", err)
		}
		if cfg.Workers != 3 || cfg.Rate != 0.5 || len(cfg.Searches) != 3 {
			t.Errorf("workers %d rate %v searches %d", cfg.Workers, cfg.Rate, len(cfg.Searches))
		}
	})

	t.Run("search selection keeps config order", func(t *testing.T) {
		t.Parallel()

		cmd := NewRunCmd()
		if err := cmd.ParseFlags([]string{"-s", "c,a"}); err != nil {
			t.Fatalf("ParseFlags() error = %v", err)
		}
		cfg := config.NewConfig()
		cfg.Searches = searches

		if err := applyRunFlags(cmd, cfg); err != nil {
			t.Fatalf("applyRunFlags() error = %v", err)
		}
		if len(cfg.Searches) != 2 || cfg.Searches[0].Name != "a" || cfg.Searches[1].Name != "c" {
			t.Errorf("searches = %+v", cfg.Searches)
		}
	})

	t.Run("area replaces searches", func(t *testing.T) {
		t.Parallel()

		cmd := NewRunCmd()
		if err := cmd.ParseFlags([]string{"--area", "SW1A", "--category", "RENT"}); err != nil {
			t.Fatalf("ParseFlags() error = %v", err)
		}
		cfg := config.NewConfig()
		cfg.Searches = searches

		if err := applyRunFlags(cmd, cfg); err != nil {
			t.Fatalf("applyRunFlags() error = %v", err)
		}
		if len(cfg.Searches) != 1 || cfg.Searches[0].Area != "SW1A" || cfg.Searches[0].Category != model.CategoryRent {
			t.Errorf("searches = %+v", cfg.Searches)
		}
	})
}

// closedAddr returns a loopback address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return addr
}
