// Package model defines the core data structures shared by the crawl engine.
//
// This package contains the following main types:
//   - QuerySpec, SubQuery, PageRequest: the search space and units of work
//   - RawPage, RawPayload, Fields: what the transport and extractors hand back
//   - Record: the canonical listing every later stage operates on
//   - ChangeSet, Snapshot, RunSummary: reconciliation results and persisted state
//
// The models live in their own package because the partitioner, scheduler,
// deduplicator, snapshot store and reporters all exchange them, and keeping
// them here prevents import cycles between those packages.
//
// The models are serializable to JSON for snapshot storage, report output
// and change-set publishing.
package model
