package partition

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Evan5764/zoopla-co-uk-scraper/internal/model"
	"github.com/Evan5764/zoopla-co-uk-scraper/internal/retry"
)

type point struct {
	lat, lon float64
	price    int64
}

// pointProber counts the synthetic listings matching a spec.
type pointProber struct {
	points []point
	calls  atomic.Int64
}

func (f *pointProber) Probe(_ context.Context, spec model.QuerySpec) (int, error) {
	f.calls.Add(1)
	n := 0
	for _, pt := range f.points {
		if matches(spec, pt) {
			n++
		}
	}
	return n, nil
}

func matches(spec model.QuerySpec, pt point) bool {
	if spec.BBox != nil && !spec.BBox.Contains(pt.lat, pt.lon) {
		return false
	}
	if pt.price < spec.Price.Min {
		return false
	}
	return spec.Price.Unbounded() || pt.price <= spec.Price.Max
}

var london = model.BoundingBox{MinLat: 51.28, MinLon: -0.51, MaxLat: 51.69, MaxLon: 0.33}

func randomPoints(n int, box model.BoundingBox, seed uint64) []point {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	pts := make([]point, n)
	for i := range pts {
		pts[i] = point{
			lat:   box.MinLat + r.Float64()*box.LatSpan(),
			lon:   box.MinLon + r.Float64()*box.LonSpan(),
			price: 50_000 + r.Int64N(2_000_000),
		}
	}
	return pts
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect(t *testing.T, seq func(func(model.SubQuery, error) bool)) []model.SubQuery {
	t.Helper()
	var out []model.SubQuery
	for sq, err := range seq {
		if err != nil {
			t.Fatalf("unexpected partition error: %v", err)
		}
		out = append(out, sq)
	}
	return out
}

func TestPartitionUnderCap(t *testing.T) {
	t.Parallel()

	prober := &pointProber{points: randomPoints(200, london, 1)}
	p := New(prober, WithLogger(quietLogger()))

	spec := model.QuerySpec{Category: model.CategorySale, BBox: &london}
	leaves := collect(t, p.Partition(context.Background(), spec))

	if len(leaves) != 1 {
		t.Fatalf("expected a single leaf, got %d", len(leaves))
	}
	if leaves[0].ID != "0" || leaves[0].ProbedCount != 200 || leaves[0].PossiblyTruncated {
		t.Errorf("unexpected leaf: %+v", leaves[0])
	}
	if prober.calls.Load() != 1 {
		t.Errorf("expected one probe, got %d", prober.calls.Load())
	}
}

func TestPartitionSplitsOverCapRegionIntoHalves(t *testing.T) {
	t.Parallel()

	// 1500 listings, 750 on each side of the middle latitude.
	box := model.BoundingBox{MinLat: 51.0, MinLon: -0.1, MaxLat: 52.0, MaxLon: 0.1}
	var pts []point
	pts = append(pts, randomPoints(750, model.BoundingBox{MinLat: 51.0, MinLon: -0.1, MaxLat: 51.49, MaxLon: 0.1}, 2)...)
	pts = append(pts, randomPoints(750, model.BoundingBox{MinLat: 51.51, MinLon: -0.1, MaxLat: 52.0, MaxLon: 0.1}, 3)...)
	prober := &pointProber{points: pts}

	p := New(prober, WithLogger(quietLogger()))
	leaves := collect(t, p.Partition(context.Background(), model.QuerySpec{Category: model.CategorySale, BBox: &box}))

	if len(leaves) != 2 {
		t.Fatalf("expected 2 leaves, got %d", len(leaves))
	}
	if leaves[0].ID != "0.0" || leaves[1].ID != "0.1" {
		t.Errorf("unexpected leaf ids %q, %q", leaves[0].ID, leaves[1].ID)
	}
	for _, leaf := range leaves {
		if leaf.ID == "0" {
			t.Error("the over-cap parent must not be yielded")
		}
		if leaf.ParentID != "0" || leaf.Depth != 1 {
			t.Errorf("unexpected lineage: %+v", leaf)
		}
		if leaf.ProbedCount != 750 {
			t.Errorf("leaf %s count = %d, want 750", leaf.ID, leaf.ProbedCount)
		}
	}

	lo, hi := leaves[0].Spec.BBox, leaves[1].Spec.BBox
	if lo.MinLat != box.MinLat || lo.MaxLat != 51.5 || hi.MinLat != 51.5 || hi.MaxLat != box.MaxLat {
		t.Errorf("expected latitude split at 51.5, got %v and %v", lo, hi)
	}
	if box.MaxLat != 52.0 {
		t.Error("input spec was mutated")
	}

	stats := p.Stats()
	if stats.Probes != 3 || stats.Leaves != 2 || stats.Truncated != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestPartitionCoverageAndCap(t *testing.T) {
	t.Parallel()

	pts := randomPoints(12_000, london, 4)
	prober := &pointProber{points: pts}
	p := New(prober, WithLogger(quietLogger()), WithCap(500))

	spec := model.QuerySpec{Category: model.CategorySale, BBox: &london}
	leaves := collect(t, p.Partition(context.Background(), spec))

	for _, leaf := range leaves {
		if leaf.ProbedCount > 500 && !leaf.PossiblyTruncated {
			t.Errorf("leaf %s count %d exceeds cap without truncation flag", leaf.ID, leaf.ProbedCount)
		}
	}

	for i, pt := range pts {
		covered := slices.ContainsFunc(leaves, func(sq model.SubQuery) bool {
			return matches(sq.Spec, pt)
		})
		if !covered {
			t.Fatalf("point %d (%f,%f) not covered by any leaf", i, pt.lat, pt.lon)
		}
	}
}

func TestPartitionIsDeterministic(t *testing.T) {
	t.Parallel()

	pts := randomPoints(5_000, london, 5)
	spec := model.QuerySpec{Category: model.CategoryRent, BBox: &london, Price: model.PriceRange{Min: 100_000}}

	run := func() []model.SubQuery {
		p := New(&pointProber{points: pts}, WithLogger(quietLogger()))
		return collect(t, p.Partition(context.Background(), spec))
	}
	first, second := run(), run()

	if len(first) != len(second) {
		t.Fatalf("leaf counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		if a.ID != b.ID || a.ProbedCount != b.ProbedCount || a.Spec.String() != b.Spec.String() {
			t.Fatalf("leaf %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestPartitionByPrice(t *testing.T) {
	t.Parallel()

	pts := make([]point, 2500)
	for i := range pts {
		pts[i] = point{price: int64(i + 1)}
	}
	prober := &pointProber{points: pts}
	p := New(prober, WithLogger(quietLogger()), WithPriceCeiling(10_000))

	spec := model.QuerySpec{Category: model.CategorySale, Area: "london"}
	leaves := collect(t, p.Partition(context.Background(), spec))

	for i, pt := range pts {
		n := 0
		for _, leaf := range leaves {
			if matches(leaf.Spec, pt) {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("price %d covered by %d leaves, want exactly 1", pts[i].price, n)
		}
	}
	for _, leaf := range leaves {
		if leaf.ProbedCount > DefaultCap || leaf.PossiblyTruncated {
			t.Errorf("unexpected leaf %s: count=%d truncated=%v", leaf.ID, leaf.ProbedCount, leaf.PossiblyTruncated)
		}
	}
}

func TestPartitionFlagsTruncatedLeaves(t *testing.T) {
	t.Parallel()

	// Thousands of listings at one coordinate and one price.
	pts := make([]point, 3000)
	for i := range pts {
		pts[i] = point{lat: 51.4012, lon: -0.2031, price: 500_000}
	}
	p := New(&pointProber{points: pts}, WithLogger(quietLogger()), WithMaxDepth(4))

	spec := model.QuerySpec{Category: model.CategorySale, BBox: &london}
	leaves := collect(t, p.Partition(context.Background(), spec))

	truncated := 0
	for _, leaf := range leaves {
		if leaf.ProbedCount > DefaultCap {
			if !leaf.PossiblyTruncated {
				t.Errorf("over-cap leaf %s is not flagged", leaf.ID)
			}
			if leaf.Depth != 4 {
				t.Errorf("over-cap leaf %s at depth %d, want max depth 4", leaf.ID, leaf.Depth)
			}
			truncated++
		}
	}
	if truncated == 0 {
		t.Fatal("expected at least one truncated leaf")
	}
	if got := p.Stats().Truncated; got != truncated {
		t.Errorf("Stats().Truncated = %d, want %d", got, truncated)
	}
}

func TestPartitionProbeFailures(t *testing.T) {
	t.Parallel()

	fast := retry.Policy{MaxRetries: 2, BaseDelay: time.Microsecond, MaxDelay: time.Microsecond}
	spec := model.QuerySpec{Category: model.CategorySale, Area: "london"}

	t.Run("unavailable ends the sequence", func(t *testing.T) {
		t.Parallel()

		prober := ProberFunc(func(context.Context, model.QuerySpec) (int, error) {
			return 0, model.NewUnavailableError(errors.New("connection refused"))
		})
		p := New(prober, WithLogger(quietLogger()), WithRetryPolicy(fast))

		var errs []error
		for sq, err := range p.Partition(context.Background(), spec) {
			if err == nil {
				t.Fatalf("unexpected leaf %+v", sq)
			}
			errs = append(errs, err)
		}
		if len(errs) != 1 || !errors.Is(errs[0], model.ErrUpstreamUnavailable) {
			t.Errorf("expected one unavailable error, got %v", errs)
		}
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int64
		prober := ProberFunc(func(context.Context, model.QuerySpec) (int, error) {
			if calls.Add(1) < 3 {
				return 0, model.NewTransientError(503, false, nil)
			}
			return 10, nil
		})
		p := New(prober, WithLogger(quietLogger()), WithRetryPolicy(fast))

		leaves := collect(t, p.Partition(context.Background(), spec))
		if len(leaves) != 1 || leaves[0].ProbedCount != 10 {
			t.Errorf("unexpected leaves: %+v", leaves)
		}
	})

	t.Run("exhausted retries become unavailable", func(t *testing.T) {
		t.Parallel()

		prober := ProberFunc(func(context.Context, model.QuerySpec) (int, error) {
			return 0, model.NewTransientError(503, false, nil)
		})
		p := New(prober, WithLogger(quietLogger()), WithRetryPolicy(fast))

		for _, err := range p.Partition(context.Background(), spec) {
			if !errors.Is(err, model.ErrUpstreamUnavailable) {
				t.Errorf("expected unavailable, got %v", err)
			}
		}
	})

	t.Run("invalid spec", func(t *testing.T) {
		t.Parallel()

		p := New(&pointProber{}, WithLogger(quietLogger()))
		for _, err := range p.Partition(context.Background(), model.QuerySpec{Area: "x"}) {
			if err == nil {
				t.Error("expected validation error")
			}
		}
	})
}

func TestPartitionIsLazy(t *testing.T) {
	t.Parallel()

	prober := &pointProber{points: randomPoints(10_000, london, 6)}
	p := New(prober, WithLogger(quietLogger()))

	spec := model.QuerySpec{Category: model.CategorySale, BBox: &london}
	for range p.Partition(context.Background(), spec) {
		break
	}
	afterFirst := prober.calls.Load()

	full := &pointProber{points: prober.points}
	collect(t, New(full, WithLogger(quietLogger())).Partition(context.Background(), spec))

	if afterFirst >= full.calls.Load() {
		t.Errorf("stopping after the first leaf should probe less: %d vs %d", afterFirst, full.calls.Load())
	}
}
