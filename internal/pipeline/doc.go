// Package pipeline runs one crawl as an ordered sequence of steps:
// load the prior snapshot, crawl every search, reconcile, commit and
// publish.
//
// Each step receives the shared run State and records what it produced
// there. The pipeline stops at the first failing step, so a run that
// aborts during the crawl never reaches the commit and the stored snapshot
// is left untouched. The Runner wraps a pipeline and makes sure a run
// summary is recorded whatever the outcome.
package pipeline
