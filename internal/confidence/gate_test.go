package confidence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_Evaluate_UnseenActionType(t *testing.T) {
	g := NewGate()

	m := g.Evaluate("NeverRecorded", 0.95)

	assert.True(t, m.IsHighConfidence)
	assert.Equal(t, int64(0), m.SampleSize)
	assert.Equal(t, 1.0, m.Mean)
	assert.Equal(t, 1.0, m.LowerBound)
	assert.Equal(t, 1.0, m.UpperBound)
}

func TestGate_Evaluate_SmallSamplePenalty(t *testing.T) {
	g := NewGate()
	for i := 0; i < 19; i++ {
		g.RegisterOutcome("X", true)
	}
	g.RegisterOutcome("X", false)

	m := g.Evaluate("X", 0.95)

	assert.InDelta(t, 0.95, m.Mean, 1e-9)
	assert.Equal(t, int64(20), m.SampleSize)
	assert.Less(t, m.LowerBound, m.Mean, "Wilson correction must pull the bound below the mean")
	assert.Less(t, m.LowerBound, 0.95)
	assert.False(t, m.IsHighConfidence, "n=20 is too small to clear a 0.95 target at 19/20")
}

func TestGate_Evaluate_BoundsOrdering(t *testing.T) {
	g := NewGate()
	cases := []struct{ success, total int }{
		{0, 5}, {1, 10}, {5, 10}, {9, 10}, {10, 10}, {99, 100},
	}
	for i, tc := range cases {
		label := fmt.Sprintf("case-%d", i)
		for j := 0; j < tc.total; j++ {
			g.RegisterOutcome(label, j < tc.success)
		}
		m := g.Evaluate(label, 0.9)
		assert.GreaterOrEqual(t, m.LowerBound, 0.0)
		assert.LessOrEqual(t, m.LowerBound, m.Mean+1e-12)
		assert.LessOrEqual(t, m.Mean, m.UpperBound+1e-12)
		assert.LessOrEqual(t, m.UpperBound, 1.0)
	}
}

func TestGate_Evaluate_LowerBoundMonotonic(t *testing.T) {
	// Holding total fixed, the lower bound must not decrease as the number
	// of successes increases.
	const total = 50
	prev := -1.0
	for success := 0; success <= total; success++ {
		g := NewGate()
		for j := 0; j < total; j++ {
			g.RegisterOutcome("Y", j < success)
		}
		m := g.Evaluate("Y", 0.9)
		require.GreaterOrEqual(t, m.LowerBound, prev,
			"lower bound decreased at success=%d", success)
		prev = m.LowerBound
	}
}

func TestGate_RegisterOutcome_Concurrent(t *testing.T) {
	g := NewGate()

	const workers = 16
	const perWorker = 250

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// Half the workers record successes, half record failures,
				// all interleaved with reads.
				g.RegisterOutcome("ToolExecution", w%2 == 0)
				_ = g.Evaluate("ToolExecution", 0.9)
			}
		}(w)
	}
	wg.Wait()

	m := g.Evaluate("ToolExecution", 0.9)
	assert.Equal(t, int64(workers*perWorker), m.SampleSize)
	assert.InDelta(t, 0.5, m.Mean, 1e-9, "final counters must equal the sum of all outcomes")
}

func TestGate_Snapshot(t *testing.T) {
	g := NewGate()
	g.RegisterOutcome("B", true)
	g.RegisterOutcome("A", false)
	g.RegisterOutcome("A", true)

	snap := g.Snapshot()

	require.Len(t, snap, 2)
	assert.Equal(t, "A", snap[0].ActionType)
	assert.Equal(t, int64(1), snap[0].Success)
	assert.Equal(t, int64(2), snap[0].Total)
	assert.Equal(t, "B", snap[1].ActionType)
}
