// Package api serves the committed snapshot and run history over HTTP.
//
// Routes:
//
//	GET /healthz
//	GET /api/v1/listings/{key}
//	GET /api/v1/runs?limit=N
//
// The API is read-only; runs are started from the CLI.
package api
