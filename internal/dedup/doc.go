// Package dedup collapses records sharing an identity key.
//
// Listings are observed more than once in a run because partition windows
// overlap on their shared edges and because the source reorders results
// between pages. The Deduplicator keeps one record per key: the more
// complete one, with a configurable rule for ties.
package dedup
