// Package identity derives stable identity keys for listings.
//
// A key is built from the first available immutable attribute, in priority
// order:
//
//	uprn:<UPRN>                        Unique Property Reference Number
//	listing:<id>                       source listing id (field or URL path)
//	url:<canonical url>                scheme/host lowercased, query and fragment dropped
//	geo:<geohash>:<address digest>     location plus normalized address
//
// Price, description, images and other mutable fields never contribute to
// a key, so a listing keeps its identity when its details change.
package identity
