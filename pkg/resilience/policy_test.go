package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type PolicyTestSuite struct {
	suite.Suite
	ctx context.Context
}

func (s *PolicyTestSuite) SetupTest() {
	s.ctx = context.Background()
}

func fastConfig() Config {
	return Config{
		Name:             "test",
		MaxAttempts:      3,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       2 * time.Millisecond,
		FailureRatio:     0.5,
		MinimumRequests:  100,
		Window:           time.Minute,
		OpenTimeout:      50 * time.Millisecond,
		HalfOpenRequests: 1,
	}
}

func (s *PolicyTestSuite) TestSuccessRunsOnce() {
	p := New(fastConfig(), nil)

	calls := 0
	err := p.Execute(s.ctx, func(context.Context) error {
		calls++
		return nil
	})
	s.NoError(err)
	s.Equal(1, calls)
	s.Equal("closed", p.State())
}

func (s *PolicyTestSuite) TestRetriesTransientFailure() {
	p := New(fastConfig(), nil)

	calls := 0
	err := p.Execute(s.ctx, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	s.NoError(err)
	s.Equal(3, calls)
}

func (s *PolicyTestSuite) TestExhaustedRetriesReturnLastError() {
	p := New(fastConfig(), nil)
	boom := errors.New("boom")

	calls := 0
	err := p.Execute(s.ctx, func(context.Context) error {
		calls++
		return boom
	})
	s.ErrorIs(err, boom)
	s.NotErrorIs(err, ErrOpen)
	s.Equal(3, calls)
}

func (s *PolicyTestSuite) TestBreakerOpensAndRecovers() {
	cfg := fastConfig()
	cfg.MaxAttempts = 1
	cfg.MinimumRequests = 2

	var (
		mu          sync.Mutex
		transitions []string
	)
	p := New(cfg, func(_, from, to string) {
		mu.Lock()
		transitions = append(transitions, from+"->"+to)
		mu.Unlock()
	})

	boom := errors.New("store down")
	for i := 0; i < 2; i++ {
		s.ErrorIs(p.Execute(s.ctx, func(context.Context) error { return boom }), boom)
	}
	s.Equal("open", p.State())

	called := false
	err := p.Execute(s.ctx, func(context.Context) error {
		called = true
		return nil
	})
	s.ErrorIs(err, ErrOpen)
	s.False(called, "an open breaker must not invoke the call")

	time.Sleep(cfg.OpenTimeout + 20*time.Millisecond)
	s.Equal("half-open", p.State())

	s.NoError(p.Execute(s.ctx, func(context.Context) error { return nil }))
	s.Equal("closed", p.State())

	mu.Lock()
	defer mu.Unlock()
	s.Equal([]string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func (s *PolicyTestSuite) TestOpenBreakerIsNotRetried() {
	cfg := fastConfig()
	cfg.MinimumRequests = 1
	cfg.OpenTimeout = time.Minute
	p := New(cfg, nil)

	calls := 0
	err := p.Execute(s.ctx, func(context.Context) error {
		calls++
		return errors.New("fail")
	})
	s.ErrorIs(err, ErrOpen)
	s.Equal(1, calls)
}

func (s *PolicyTestSuite) TestBelowMinimumVolumeStaysClosed() {
	cfg := fastConfig()
	cfg.MaxAttempts = 1
	cfg.MinimumRequests = 5
	p := New(cfg, nil)

	for i := 0; i < 4; i++ {
		_ = p.Execute(s.ctx, func(context.Context) error { return errors.New("fail") })
	}
	s.Equal("closed", p.State())
}

func (s *PolicyTestSuite) TestCancelledContextStopsRetrying() {
	p := New(fastConfig(), nil)
	ctx, cancel := context.WithCancel(s.ctx)

	calls := 0
	err := p.Execute(ctx, func(context.Context) error {
		calls++
		cancel()
		return context.Canceled
	})
	s.ErrorIs(err, context.Canceled)
	s.Equal(1, calls)
}

func (s *PolicyTestSuite) TestDefaultConfig() {
	cfg := DefaultConfig("share")
	s.Equal("share", cfg.Name)
	s.Equal(uint64(3), cfg.MaxAttempts)
	s.Equal(uint32(10), cfg.MinimumRequests)

	p := New(cfg, nil)
	s.Equal("share", p.Name())
}

func TestPolicySuite(t *testing.T) {
	suite.Run(t, new(PolicyTestSuite))
}
