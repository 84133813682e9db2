package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

func TestQueuePopsByPriorityDescending(t *testing.T) {
	q := newQueue([]schemas.ImprovementCandidate{
		candidate("cand-low", 0.9, schemas.TierLow),     // 0.27
		candidate("cand-high", 0.9, schemas.TierHigh),   // 0.90
		candidate("cand-mid", 0.9, schemas.TierMedium),  // 0.54
		candidate("cand-high2", 0.8, schemas.TierHigh),  // 0.80
	})

	var order []string
	for {
		c, ok := q.pop()
		if !ok {
			break
		}
		order = append(order, c.ID)
	}
	assert.Equal(t, []string{"cand-high", "cand-high2", "cand-mid", "cand-low"}, order)
}

func TestQueueBreaksTiesByID(t *testing.T) {
	q := newQueue([]schemas.ImprovementCandidate{
		candidate("cand-b", 0.9, schemas.TierHigh),
		candidate("cand-a", 0.9, schemas.TierHigh),
		candidate("cand-c", 0.9, schemas.TierHigh),
	})

	first, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "cand-a", first.ID)
	second, _ := q.pop()
	assert.Equal(t, "cand-b", second.ID)
}

func TestQueuePushReinserts(t *testing.T) {
	q := newQueue([]schemas.ImprovementCandidate{
		candidate("cand-a", 0.5, schemas.TierHigh),
	})
	popped, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, 0, q.len())

	q.push(popped)
	q.push(candidate("cand-b", 0.9, schemas.TierHigh))

	next, _ := q.pop()
	assert.Equal(t, "cand-b", next.ID, "higher priority overtakes the requeued candidate")
}

func TestQueueEmptyPop(t *testing.T) {
	q := newQueue(nil)
	_, ok := q.pop()
	assert.False(t, ok)
}
