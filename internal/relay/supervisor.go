package relay

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/videlboga/cyberkitty119-sub001/internal/metrics"
)

// ErrCircuitOpen means the supervised function failed too many times in a
// row and the supervisor gave up.
var ErrCircuitOpen = errors.New("supervisor circuit open")

// Supervisor restarts a long-running function after failures with bounded
// exponential backoff. Consecutive failures trip a circuit breaker; a run
// that survives past ResetAfter closes it again.
type Supervisor struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxFailures int
	ResetAfter  time.Duration
	Log         zerolog.Logger
}

// NewSupervisor returns a supervisor with production defaults.
func NewSupervisor(log zerolog.Logger) *Supervisor {
	return &Supervisor{
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Minute,
		MaxFailures: 10,
		ResetAfter:  time.Minute,
		Log:         log.With().Str("component", "supervisor").Logger(),
	}
}

// Run executes fn, restarting it whenever it returns an error. It returns
// nil once the context is canceled and ErrCircuitOpen when the breaker
// trips.
func (s *Supervisor) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	failures := 0
	for {
		started := time.Now()
		err := fn(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			// Clean return without cancellation counts as a failure too:
			// the monitor is supposed to run forever.
			err = errors.New("returned without error")
		}

		if time.Since(started) >= s.ResetAfter {
			failures = 0
		}
		failures++
		if failures > s.MaxFailures {
			s.Log.Error().Err(err).Str("task", name).Int("failures", failures-1).Msg("giving up on supervised task")
			return ErrCircuitOpen
		}

		delay := s.backoff(failures - 1)
		metrics.RelayMonitorRestartsTotal.Inc()
		s.Log.Warn().Err(err).Str("task", name).Int("failure", failures).Dur("restart_in", delay).Msg("supervised task failed, restarting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// backoff doubles the delay per consecutive failure, capped and jittered.
func (s *Supervisor) backoff(attempt int) time.Duration {
	if attempt > 6 {
		attempt = 6
	}
	delay := s.BaseDelay << attempt
	if delay > s.MaxDelay {
		delay = s.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/5 + 1))
	return delay + jitter
}
