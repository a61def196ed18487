package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCleansUpAfterJobsReturn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var closed atomic.Bool
	var mu sync.Mutex
	var sawClosed []bool
	slowJob := func(ctx context.Context) error {
		<-ctx.Done()
		// Simulates an export still writing after shutdown began.
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		sawClosed = append(sawClosed, closed.Load())
		mu.Unlock()
		return ctx.Err()
	}

	errc := make(chan error, 1)
	go func() {
		errc <- run(ctx, []func(context.Context) error{slowJob, slowJob}, func() { closed.Store(true) })
	}()
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return")
	}
	assert.True(t, closed.Load())
	assert.Equal(t, []bool{false, false}, sawClosed)
}

func TestRunStopsOnJobFailure(t *testing.T) {
	boom := errors.New("channel closed")
	var cleaned atomic.Bool
	var sibling atomic.Bool

	err := run(context.Background(), []func(context.Context) error{
		func(context.Context) error { return boom },
		func(ctx context.Context) error {
			<-ctx.Done()
			sibling.Store(true)
			return ctx.Err()
		},
	}, func() { cleaned.Store(true) })

	assert.ErrorIs(t, err, boom)
	assert.True(t, sibling.Load())
	assert.True(t, cleaned.Load())
}
