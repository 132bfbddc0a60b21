package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSchedulePoll(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewQuartzPollScheduler(ctx, zap.NewNop())
	defer s.Stop(ctx)

	var calls atomic.Int32
	assert.NoError(t, s.SchedulePoll("home", 50*time.Millisecond, func() {
		calls.Add(1)
	}))

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulePollInvalidInterval(t *testing.T) {

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := NewQuartzPollScheduler(ctx, zap.NewNop())
	defer s.Stop(ctx)

	assert.Error(t, s.SchedulePoll("home", 0, func() {}))
}
