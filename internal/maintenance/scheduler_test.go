package maintenance

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the scheduler's goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestScheduler() (*Scheduler, *syncBuffer) {
	out := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewScheduler(logger, time.Second), out
}

func TestScheduler_Add_InvalidSpec(t *testing.T) {
	s, _ := newTestScheduler()
	err := s.Add("every now and then", Job{Name: "sweep", Run: func(context.Context) error { return nil }})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule sweep")
}

func TestScheduler_RunsJobs(t *testing.T) {
	s, _ := newTestScheduler()
	var runs atomic.Int32
	require.NoError(t, s.Add("@every 1s", Job{Name: "sweep", Run: func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok, "runs are bounded by the timeout")
		runs.Add(1)
		return nil
	}}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_Run_LogsFailures(t *testing.T) {
	s, out := newTestScheduler()
	s.run(Job{Name: "reconcile", Run: func(context.Context) error { return errors.New("database is locked") }})

	assert.Contains(t, out.String(), "job failed")
	assert.Contains(t, out.String(), "job=reconcile")
	assert.Contains(t, out.String(), "database is locked")
}

func TestScheduler_Stop_CancelsRunningJobs(t *testing.T) {
	s, _ := newTestScheduler()
	started := make(chan struct{})
	finished := make(chan error, 1)

	go s.run(Job{Name: "slow", Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		finished <- ctx.Err()
		return ctx.Err()
	}})

	<-started
	s.Stop()

	select {
	case err := <-finished:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("job was not cancelled")
	}
}
