package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New("x", "every minute", func(context.Context) error { return nil })
	assert.ErrorContains(t, err, "invalid schedule")

	for _, spec := range []string{"@every 1m", "@daily", "*/5 * * * *"} {
		_, err := New("x", spec, func(context.Context) error { return nil })
		assert.NoError(t, err, spec)
	}
}

func TestLoopRunsOnSchedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	job, err := New("tick", "@every 1m", func(context.Context) error {
		runs.Add(1)
		return errors.New("failures do not stop the loop")
	})
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewRunner(clock, discardLogger()).Loop(job)(ctx)
	}()

	for i := int32(1); i <= 3; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Minute)
		require.Eventually(t, func() bool { return runs.Load() == i }, time.Second, 5*time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}

type fakeBackfiller struct{ batch int }

func (f *fakeBackfiller) Backfill(_ context.Context, batch int) (int, error) {
	f.batch = batch
	return batch, nil
}

type fakePurger struct{ calls int }

func (f *fakePurger) Purge(context.Context) (int64, error) {
	f.calls++
	return 0, nil
}

func TestMaintenanceJobs(t *testing.T) {
	r := NewRunner(clockwork.NewFakeClock(), discardLogger())

	b := &fakeBackfiller{}
	job, err := Backfill("@every 1m", 20, b)
	require.NoError(t, err)
	assert.Equal(t, "complaint-backfill", job.Name)
	r.RunOnce(context.Background(), job)
	assert.Equal(t, 20, b.batch)

	p := &fakePurger{}
	job, err = PurgeTokens("@daily", p)
	require.NoError(t, err)
	r.RunOnce(context.Background(), job)
	assert.Equal(t, 1, p.calls)
}
