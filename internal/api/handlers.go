package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/snapshot"
)

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// listingResponse is the body of GET /api/v1/listings/{key}.
type listingResponse struct {
	Key           string       `json:"key"`
	Active        bool         `json:"active"`
	LastSeenRunID string       `json:"last_seen_run_id"`
	Record        model.Record `json:"record"`
}

// runsResponse is the body of GET /api/v1/runs.
type runsResponse struct {
	Runs  []model.RunSummary `json:"runs"`
	Count int                `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.version})
}

// handleListing serves one snapshot entry. Keys may contain slashes
// (url: keys), so the whole remaining path is the key.
func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || key == "" {
		writeError(w, http.StatusBadRequest, "invalid listing key")
		return
	}

	entry, err := s.store.Get(r.Context(), key)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		writeError(w, http.StatusNotFound, "listing not found")
		return
	case err != nil:
		s.logger.Error("get listing failed", "key", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load listing")
		return
	}

	writeJSON(w, http.StatusOK, listingResponse{
		Key:           key,
		Active:        !entry.Record.Delisted(),
		LastSeenRunID: entry.LastSeenRunID,
		Record:        entry.Record,
	})
}

// handleRuns serves the run history, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := DefaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxRunsLimit)
	}

	runs, err := s.store.Runs(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load runs")
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: runs, Count: len(runs)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // the client is gone if this fails
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
