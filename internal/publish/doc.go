// Package publish announces committed change sets to downstream consumers.
//
// The AMQP publisher sends one message per changed listing to a topic
// exchange, routed as listing.added, listing.updated, listing.delisted or
// listing.purged, followed by a run.<status> message carrying the run
// summary. Consumers bind the routing keys they care about and look the
// full record up by key through the lookup API.
package publish
