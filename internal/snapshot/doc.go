// Package snapshot persists the last-known state of every listing and
// reconciles a run's records against it.
//
// Reconcile is a pure function: it takes the deduplicated records of one
// run and the prior snapshot and returns the change set together with the
// full replacement snapshot. A Store only loads and commits whole
// snapshots, so a run that aborts before Commit leaves the stored state
// untouched.
//
// Three stores are provided:
//
//   - MemoryStore keeps everything in process and is used by tests.
//   - SQLiteStore keeps one database file, by default in the XDG data
//     directory.
//   - PostgresStore shares the snapshot between hosts.
//
// Every stored row carries a SHA3-256 checksum of its JSON encoding.
// Load and Get report rows failing the check as model.ErrSnapshotCorrupt.
package snapshot
