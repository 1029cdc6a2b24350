package limiter

import (
	"context"
	"time"

	"github.com/opengw/llmgateway/internal/canon"
)

// Config holds the configured limits a Gate enforces. Zero means "no limit"
// for that dimension.
type Config struct {
	RateHourly   int64
	CostDaily    float64
	CostMonthly  float64
	CostTotal    float64
}

// Gate implements the Limit Gate (C5): two sequential, advisory (non-
// locking) checks performed before a request is allowed to reach an
// upstream provider. Both checks read current counter values only — they
// never mutate state; counters are updated separately via Record after the
// request completes.
type Gate struct {
	store Store
	cfg   Config
}

// NewGate constructs a Gate backed by store, enforcing cfg's limits.
func NewGate(store Store, cfg Config) *Gate {
	return &Gate{store: store, cfg: cfg}
}

// Decision is the outcome of a Gate.Check call.
type Decision struct {
	Allowed bool
	Kind    canon.ErrorKind // set when Allowed is false
}

// Check runs the rate check then, if it passes, the cost check, for the
// given dimension (tenant/key identifier; "" for the single-tenant
// default). A denial short-circuits: the cost check never runs if rate is
// already denied, and no counters are ever mutated by Check itself.
func (g *Gate) Check(ctx context.Context, dimension string, now time.Time) (Decision, error) {
	if g.cfg.RateHourly > 0 {
		key := canon.CounterKey{Scope: canon.ScopeRateHourly, Dimension: dimension, Bucket: BucketFor(canon.ScopeRateHourly, now)}
		v, err := g.store.Get(ctx, key)
		if err != nil {
			return Decision{}, err
		}
		if int64(v) >= g.cfg.RateHourly {
			return Decision{Allowed: false, Kind: canon.ErrRateLimited}, nil
		}
	}

	if g.cfg.CostDaily > 0 {
		if denied, err := g.costExceeded(ctx, canon.ScopeCostDaily, dimension, g.cfg.CostDaily, now); err != nil {
			return Decision{}, err
		} else if denied {
			return Decision{Allowed: false, Kind: canon.ErrCostLimitExceeded}, nil
		}
	}
	if g.cfg.CostMonthly > 0 {
		if denied, err := g.costExceeded(ctx, canon.ScopeCostMonthly, dimension, g.cfg.CostMonthly, now); err != nil {
			return Decision{}, err
		} else if denied {
			return Decision{Allowed: false, Kind: canon.ErrCostLimitExceeded}, nil
		}
	}
	if g.cfg.CostTotal > 0 {
		if denied, err := g.costExceeded(ctx, canon.ScopeCostTotal, dimension, g.cfg.CostTotal, now); err != nil {
			return Decision{}, err
		} else if denied {
			return Decision{Allowed: false, Kind: canon.ErrCostLimitExceeded}, nil
		}
	}

	return Decision{Allowed: true}, nil
}

func (g *Gate) costExceeded(ctx context.Context, scope canon.CounterScope, dimension string, limit float64, now time.Time) (bool, error) {
	key := canon.CounterKey{Scope: scope, Dimension: dimension, Bucket: BucketFor(scope, now)}
	v, err := g.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	return v >= limit, nil
}

// Record updates the counters for a request that reached the upstream and
// produced usage — whether the stream finished with "stop" or with an
// upstream error, per the spec's accounting policy. Denied, invalid, or
// never-connected requests must not call Record. Counters are incremented,
// never set, so concurrent Record calls for the same bucket compose
// correctly (N identical concurrent requests -> rate_counter == N).
func (g *Gate) Record(ctx context.Context, dimension string, cost float64, now time.Time) error {
	rateKey := canon.CounterKey{Scope: canon.ScopeRateHourly, Dimension: dimension, Bucket: BucketFor(canon.ScopeRateHourly, now)}
	if _, err := g.store.Add(ctx, rateKey, 1); err != nil {
		return err
	}

	for _, scope := range []canon.CounterScope{canon.ScopeCostDaily, canon.ScopeCostMonthly, canon.ScopeCostTotal} {
		key := canon.CounterKey{Scope: scope, Dimension: dimension, Bucket: BucketFor(scope, now)}
		if _, err := g.store.Add(ctx, key, cost); err != nil {
			return err
		}
	}
	return nil
}
