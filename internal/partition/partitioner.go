package partition

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"sync"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/retry"
)

// Defaults for the partitioner.
const (
	// DefaultCap is the number of results a single query returns completely.
	DefaultCap = 1000

	// DefaultMaxDepth bounds the number of successive splits.
	DefaultMaxDepth = 16

	// DefaultMinSpan is the smallest box side, in degrees of latitude
	// (about 55m), that is still split geographically.
	DefaultMinSpan = 0.0005

	// DefaultPriceCeiling is the split point used for open-ended price
	// ranges.
	DefaultPriceCeiling = 1_000_000
)

// Prober returns the number of results the source reports for spec.
type Prober interface {
	Probe(ctx context.Context, spec model.QuerySpec) (int, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, spec model.QuerySpec) (int, error)

// Probe calls f(ctx, spec).
func (f ProberFunc) Probe(ctx context.Context, spec model.QuerySpec) (int, error) {
	return f(ctx, spec)
}

// Stats counts the work done by a Partitioner.
type Stats struct {
	// Probes is the number of probe calls that returned a count.
	Probes int

	// Leaves is the number of sub-queries yielded.
	Leaves int

	// Truncated is the number of leaves flagged PossiblyTruncated.
	Truncated int
}

// Partitioner splits query specs into capped sub-queries.
type Partitioner struct {
	prober       Prober
	cap          int
	maxDepth     int
	minSpan      float64
	priceCeiling int64
	retry        retry.Policy
	logger       *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// Option configures a Partitioner.
type Option func(*Partitioner)

// WithCap sets the per-query result cap.
func WithCap(n int) Option {
	return func(p *Partitioner) {
		if n > 0 {
			p.cap = n
		}
	}
}

// WithMaxDepth sets the maximum number of splits below the root.
func WithMaxDepth(n int) Option {
	return func(p *Partitioner) {
		if n >= 0 {
			p.maxDepth = n
		}
	}
}

// WithMinSpan sets the smallest box side, in degrees, that is still split.
func WithMinSpan(deg float64) Option {
	return func(p *Partitioner) {
		if deg > 0 {
			p.minSpan = deg
		}
	}
}

// WithPriceCeiling sets the split point for open-ended price ranges.
func WithPriceCeiling(price int64) Option {
	return func(p *Partitioner) {
		if price > 0 {
			p.priceCeiling = price
		}
	}
}

// WithRetryPolicy sets the retry policy for transient probe failures.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Partitioner) {
		p.retry = policy
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Partitioner) {
		p.logger = logger
	}
}

// New creates a Partitioner that counts results with prober.
func New(prober Prober, opts ...Option) *Partitioner {
	p := &Partitioner{
		prober:       prober,
		cap:          DefaultCap,
		maxDepth:     DefaultMaxDepth,
		minSpan:      DefaultMinSpan,
		priceCeiling: DefaultPriceCeiling,
		retry:        retry.DefaultPolicy(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Cap returns the per-query result cap.
func (p *Partitioner) Cap() int {
	return p.cap
}

// Stats returns a copy of the counters accumulated so far.
func (p *Partitioner) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Partition returns the lazy sequence of sub-queries covering spec.
//
// A probe failure is yielded once as an error wrapping
// model.ErrUpstreamUnavailable and ends the sequence. An invalid spec is
// yielded as a plain validation error.
func (p *Partitioner) Partition(ctx context.Context, spec model.QuerySpec) iter.Seq2[model.SubQuery, error] {
	return func(yield func(model.SubQuery, error) bool) {
		if err := spec.Validate(); err != nil {
			yield(model.SubQuery{}, err)
			return
		}
		p.walk(ctx, model.SubQuery{ID: "0", Spec: spec.Clone()}, yield)
	}
}

// walk probes node and either yields it or recurses into its halves.
// It returns false once the consumer stops or an error has been yielded.
func (p *Partitioner) walk(ctx context.Context, node model.SubQuery, yield func(model.SubQuery, error) bool) bool {
	if err := ctx.Err(); err != nil {
		yield(model.SubQuery{}, err)
		return false
	}

	count, err := p.probe(ctx, node)
	if err != nil {
		yield(model.SubQuery{}, err)
		return false
	}
	node.ProbedCount = count

	if count <= p.cap {
		return p.emit(node, yield)
	}

	var lower, upper model.QuerySpec
	ok := false
	if node.Depth < p.maxDepth {
		lower, upper, ok = p.split(node.Spec)
	}
	if !ok {
		node.PossiblyTruncated = true
		p.logger.Warn("partition exhausted",
			"error", model.ErrPartitionExhausted,
			"subquery", node.ID,
			"depth", node.Depth,
			"count", count,
			"cap", p.cap,
			"spec", node.Spec.String(),
		)
		return p.emit(node, yield)
	}

	p.logger.Debug("splitting region",
		"subquery", node.ID,
		"depth", node.Depth,
		"count", count,
		"spec", node.Spec.String(),
	)

	for i, half := range []model.QuerySpec{lower, upper} {
		child := model.SubQuery{
			ID:       node.ID + "." + strconv.Itoa(i),
			ParentID: node.ID,
			Depth:    node.Depth + 1,
			Spec:     half,
		}
		if !p.walk(ctx, child, yield) {
			return false
		}
	}
	return true
}

func (p *Partitioner) emit(node model.SubQuery, yield func(model.SubQuery, error) bool) bool {
	p.mu.Lock()
	p.stats.Leaves++
	if node.PossiblyTruncated {
		p.stats.Truncated++
	}
	p.mu.Unlock()
	return yield(node, nil)
}

// probe counts node's results, retrying transient failures.
func (p *Partitioner) probe(ctx context.Context, node model.SubQuery) (int, error) {
	var count int
	err := retry.Do(ctx, p.retry, func(ctx context.Context) error {
		n, err := p.prober.Probe(ctx, node.Spec)
		if err != nil {
			return err
		}
		count = n
		return nil
	}, retry.WithOnRetry(func(a retry.Attempt) {
		p.logger.Debug("retrying probe", "subquery", node.ID, "attempt", a.Number, "delay", a.Delay, "error", a.Err)
	}))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, err
		}
		return 0, fmt.Errorf("probe subquery %s (%s): %w: %w", node.ID, node.Spec.String(), model.ErrUpstreamUnavailable, err)
	}
	if count < 0 {
		count = 0
	}

	p.mu.Lock()
	p.stats.Probes++
	p.mu.Unlock()
	return count, nil
}

// split halves spec on its widest normalized dimension. It reports false
// when spec cannot be narrowed any further.
func (p *Partitioner) split(spec model.QuerySpec) (lower, upper model.QuerySpec, ok bool) {
	if spec.BBox != nil {
		if lo, hi, ok := p.splitBBox(*spec.BBox); ok {
			return spec.WithBBox(lo), spec.WithBBox(hi), true
		}
	}
	if lo, hi, ok := p.splitPrice(spec.Price); ok {
		return spec.WithPrice(lo), spec.WithPrice(hi), true
	}
	return model.QuerySpec{}, model.QuerySpec{}, false
}

// splitBBox halves box across its wider axis. Latitude wins ties. The two
// halves share the midpoint line so no listing falls between them.
func (p *Partitioner) splitBBox(box model.BoundingBox) (lower, upper model.BoundingBox, ok bool) {
	latSpan := box.LatSpan()
	lonSpan := box.NormalizedLonSpan()
	if max(latSpan, lonSpan) < p.minSpan {
		return box, box, false
	}

	lower, upper = box, box
	if latSpan >= lonSpan {
		mid := box.MinLat + latSpan/2
		lower.MaxLat = mid
		upper.MinLat = mid
	} else {
		mid := box.MinLon + box.LonSpan()/2
		lower.MaxLon = mid
		upper.MinLon = mid
	}
	return lower, upper, true
}

// splitPrice halves an inclusive price range into [min, mid] and
// [mid+1, max]. An open-ended range is split at the price ceiling, or at
// twice its minimum once the minimum is already past the ceiling.
func (p *Partitioner) splitPrice(price model.PriceRange) (lower, upper model.PriceRange, ok bool) {
	if price.Unbounded() {
		mid := p.priceCeiling
		if price.Min >= mid {
			mid = price.Min * 2
		}
		if mid <= price.Min || mid <= 0 {
			return price, price, false
		}
		return model.PriceRange{Min: price.Min, Max: mid}, model.PriceRange{Min: mid + 1}, true
	}

	if price.Max-price.Min < 1 {
		return price, price, false
	}
	mid := price.Min + (price.Max-price.Min)/2
	if mid == 0 {
		// [0, 0] would read as open-ended.
		return price, price, false
	}
	return model.PriceRange{Min: price.Min, Max: mid}, model.PriceRange{Min: mid + 1, Max: price.Max}, true
}
