// Package resilience wraps calls to a backing store in a retry loop around
// a circuit breaker. Retries are the outer layer: each attempt passes
// through the breaker, and an open breaker ends the loop immediately.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker/v2"

	"filevault/pkg/log"
)

// ErrOpen is returned when the breaker rejects a call without running it.
var ErrOpen = errors.New("circuit breaker open")

// Config tunes the retry loop and the breaker.
type Config struct {
	Name string

	// MaxAttempts counts the first call; 1 disables retries.
	MaxAttempts    uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// The breaker opens once at least MinimumRequests calls were seen in
	// the current Window and the failure ratio reaches FailureRatio.
	FailureRatio    float64
	MinimumRequests uint32
	Window          time.Duration

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// HalfOpenRequests probes must succeed to close the breaker again.
	HalfOpenRequests uint32
}

// DefaultConfig mirrors the settings the sharing endpoints ship with.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxAttempts:      3,
		InitialBackoff:   100 * time.Millisecond,
		MaxBackoff:       2 * time.Second,
		FailureRatio:     0.5,
		MinimumRequests:  10,
		Window:           60 * time.Second,
		OpenTimeout:      30 * time.Second,
		HalfOpenRequests: 3,
	}
}

// StateFunc observes breaker transitions.
type StateFunc func(name, from, to string)

// Policy executes calls with retry and circuit breaking.
type Policy struct {
	cfg     Config
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// New builds a Policy. onState may be nil.
func New(cfg Config, onState StateFunc) *Policy {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Interval:    cfg.Window,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumRequests || counts.Requests == 0 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state changed")
			if onState != nil {
				onState(name, from.String(), to.String())
			}
		},
	}

	return &Policy{cfg: cfg, breaker: gobreaker.NewCircuitBreaker[struct{}](settings)}
}

// Name returns the policy name.
func (p *Policy) Name() string {
	return p.cfg.Name
}

// State returns "closed", "half-open" or "open".
func (p *Policy) State() string {
	return p.breaker.State().String()
}

// Execute runs fn until it succeeds, the attempts are exhausted, ctx ends
// or the breaker opens. The last error of fn is returned unchanged; a
// rejected call yields ErrOpen.
func (p *Policy) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.NewExponential(p.cfg.InitialBackoff)
	backoff = retry.WithCappedDuration(p.cfg.MaxBackoff, backoff)
	backoff = retry.WithMaxRetries(p.cfg.MaxAttempts-1, backoff)

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		_, err := p.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, fn(ctx)
		})

		switch {
		case err == nil:
			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return fmt.Errorf("%w: %s", ErrOpen, p.cfg.Name)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		default:
			log.Debug().Str("policy", p.cfg.Name).Int("attempt", attempt).Err(err).Msg("Call failed, retrying")
			return retry.RetryableError(err)
		}
	})
}
