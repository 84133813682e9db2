package recovery

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/config"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(zaptest.NewLogger(t), config.RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: 10 * time.Millisecond,
		MaxBackoff:  80 * time.Millisecond,
	})
}

func TestClassify(t *testing.T) {
	m := newManager(t)

	cases := []struct {
		err  error
		want FailureClass
	}{
		{fmt.Errorf("%w: dial tcp", schemas.ErrTransientInfrastructure), ClassTransient},
		{fmt.Errorf("%w: no space left", schemas.ErrResourceExhausted), ClassResourceExhaustion},
		{fmt.Errorf("%w: bad op", schemas.ErrInvalidChangeSet), ClassPermanent},
		{fmt.Errorf("%w: exists", schemas.ErrApplyConflict), ClassPermanent},
		{fmt.Errorf("%w: no summary", schemas.ErrValidationCrashed), ClassPermanent},
		{fmt.Errorf("%w: dirty tree", schemas.ErrSandboxCreation), ClassPermanent},
		{errors.New("something unexpected"), ClassPermanent},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, m.Classify(tc.err), "error: %v", tc.err)
	}
}

func TestRetryableOnlyTransientWithinBudget(t *testing.T) {
	m := newManager(t)

	assert.True(t, m.Retryable(ClassTransient, 0))
	assert.True(t, m.Retryable(ClassTransient, 2))
	assert.False(t, m.Retryable(ClassTransient, 3), "attempt cap must hold")

	assert.False(t, m.Retryable(ClassPermanent, 0))
	assert.False(t, m.Retryable(ClassResourceExhaustion, 0))
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	m := newManager(t)

	prevMax := time.Duration(0)
	for attempt := 0; attempt < 6; attempt++ {
		d := m.Backoff(attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 80*time.Millisecond)
		if d > prevMax {
			prevMax = d
		}
	}
	// With jitter the exact values vary, but the cap must never be pierced.
	assert.LessOrEqual(t, prevMax, 80*time.Millisecond)
}

func TestWaitHonorsCancellation(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), config.RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: 10 * time.Second,
		MaxBackoff:  20 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := m.Wait(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}
