package confidence

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// zScore is the two-sided 95% normal quantile used for the Wilson interval.
// It is fixed regardless of the target level passed to Evaluate: the target
// is what the bound is compared against, not what the bound is built from.
const zScore = 1.96

// Metrics is the result of evaluating an action type's outcome history.
type Metrics struct {
	// ActionType is the label the outcomes were recorded under.
	ActionType string `json:"action_type"`

	// Mean is the observed success proportion.
	Mean float64 `json:"mean"`

	// LowerBound is the Wilson score interval lower bound, in [0,1].
	LowerBound float64 `json:"lower_bound"`

	// UpperBound is the Wilson score interval upper bound, in [0,1].
	UpperBound float64 `json:"upper_bound"`

	// SampleSize is the number of recorded outcomes.
	SampleSize int64 `json:"sample_size"`

	// TargetLevel is the level the lower bound was compared against.
	TargetLevel float64 `json:"target_level"`

	// IsHighConfidence is true when LowerBound >= TargetLevel.
	IsHighConfidence bool `json:"is_high_confidence"`
}

// Stats is a point-in-time view of one action type's counters.
type Stats struct {
	ActionType string `json:"action_type"`
	Success    int64  `json:"success"`
	Total      int64  `json:"total"`
}

// record holds the counters for one action type. Counters are atomic so a
// RegisterOutcome racing an Evaluate needs no lock; exact read consistency
// is not required, eventual accuracy is.
type record struct {
	success atomic.Int64
	total   atomic.Int64
}

// Gate accumulates per-action-type outcome statistics for the lifetime of
// the process. Counters grow monotonically and are never reset.
type Gate struct {
	mu    sync.RWMutex
	stats map[string]*record
}

// NewGate creates an empty confidence gate.
func NewGate() *Gate {
	return &Gate{stats: make(map[string]*record)}
}

// RegisterOutcome records one success or failure under the given action
// type. A previously unseen action type is created lazily. Never fails.
func (g *Gate) RegisterOutcome(actionType string, success bool) {
	r := g.recordFor(actionType)
	if success {
		r.success.Add(1)
	}
	r.total.Add(1)
}

// recordFor returns the counter pair for an action type, creating it on
// first use.
func (g *Gate) recordFor(actionType string) *record {
	g.mu.RLock()
	r, ok := g.stats[actionType]
	g.mu.RUnlock()
	if ok {
		return r
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok = g.stats[actionType]; ok {
		return r
	}
	r = &record{}
	g.stats[actionType] = r
	return r
}

// Evaluate computes the Wilson score interval for an action type and
// compares its lower bound against targetLevel.
//
// An action type with zero recorded outcomes returns a vacuous fully
// confident result (mean=1, bounds=1, sample size 0): an unseen action must
// not block the pipeline.
func (g *Gate) Evaluate(actionType string, targetLevel float64) Metrics {
	g.mu.RLock()
	r, ok := g.stats[actionType]
	g.mu.RUnlock()

	m := Metrics{
		ActionType:  actionType,
		TargetLevel: targetLevel,
	}

	var n, s int64
	if ok {
		// Read total before success so a racing RegisterOutcome can never
		// yield success > total.
		n = r.total.Load()
		s = r.success.Load()
		if s > n {
			s = n
		}
	}

	if n == 0 {
		m.Mean = 1
		m.LowerBound = 1
		m.UpperBound = 1
		m.IsHighConfidence = true
		return m
	}

	nf := float64(n)
	pHat := float64(s) / nf

	z2 := zScore * zScore
	denom := 1 + z2/nf
	center := (pHat + z2/(2*nf)) / denom
	margin := zScore * math.Sqrt(pHat*(1-pHat)/nf+z2/(4*nf*nf)) / denom

	m.Mean = pHat
	m.SampleSize = n
	m.LowerBound = math.Max(0, center-margin)
	m.UpperBound = math.Min(1, center+margin)
	m.IsHighConfidence = m.LowerBound >= targetLevel
	return m
}

// Snapshot returns the current counters for every action type, sorted by
// action type name. Intended for status reporting.
func (g *Gate) Snapshot() []Stats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Stats, 0, len(g.stats))
	for name, r := range g.stats {
		n := r.total.Load()
		s := r.success.Load()
		if s > n {
			s = n
		}
		out = append(out, Stats{ActionType: name, Success: s, Total: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActionType < out[j].ActionType })
	return out
}
