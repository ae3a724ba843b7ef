// Package transport talks to the listing source over HTTP.
//
// Client implements both the partitioner's Prober and the scheduler's
// Fetcher. Requests can be routed through a SOCKS5 proxy. Every failure is
// returned as a *model.FetchError so the scheduler can decide whether to
// retry, record, or abort.
package transport
