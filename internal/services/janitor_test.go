package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingSweeper struct {
	mu    sync.Mutex
	calls int
	ttls  []time.Duration
	err   error
}

func (s *countingSweeper) Sweep(_ context.Context, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.ttls = append(s.ttls, ttl)
	return 2, s.err
}

func (s *countingSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestJanitorSweepsOnTick(t *testing.T) {
	mock := clock.NewMock()
	sw := &countingSweeper{}
	j := NewJanitor(zaptest.NewLogger(t), sw, mock, 2*time.Hour, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	// Advance until the ticker goroutine has registered and fired.
	require.Eventually(t, func() bool {
		mock.Add(time.Minute)
		return sw.count() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 2*time.Hour, sw.ttls[0])
}

func TestJanitorRunOnceKeepsGoingOnError(t *testing.T) {
	sw := &countingSweeper{err: errors.New("store down")}
	j := NewJanitor(zaptest.NewLogger(t), sw, clock.NewMock(), time.Hour, time.Minute)

	assert.Equal(t, 2, j.RunOnce(context.Background()))
	assert.Equal(t, 1, sw.count())
}
