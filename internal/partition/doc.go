// Package partition splits a search into sub-queries small enough to stay
// under the marketplace's per-query result cap.
//
// The Partitioner probes a spec's result count. A spec at or under the cap
// becomes a leaf; a larger one is halved and each half is probed in turn,
// depth first, lower half first. Geographic specs are halved across the
// midpoint of their widest axis, with longitude measured as ground distance
// at the box's middle latitude. Specs without a bounding box, or boxes that
// are already too small to split, are halved on price instead.
//
// The sequence is lazy: nothing is probed until the consumer pulls, so a
// slow consumer slows discovery down. Partitioning the same spec against
// the same counts always yields the same sub-queries in the same order.
package partition
