package ratelimit

import (
	"context"
	"time"

	"github.com/whale-tracker/internal/logging"
	"golang.org/x/time/rate"
)

// Pacer enforces request discipline for one upstream API:
// an optional shared rate cap and cross-process budget before each request,
// and a fixed pause after each request regardless of how long it took.
// A throttled response extends the pause until a request succeeds again.
type Pacer struct {
	delay    time.Duration
	limiter  *rate.Limiter
	budget   *BudgetTracker
	priority Priority
	backoff  *Backoff
	sleep    func(ctx context.Context, d time.Duration) error
}

// PacerConfig configures a Pacer
type PacerConfig struct {
	// Delay is the pause after every request.
	Delay time.Duration
	// RequestsPerSecond caps requests across every goroutine sharing the pacer. 0 disables it.
	RequestsPerSecond float64
	// Budget optionally shares a request budget with other processes.
	Budget   *BudgetTracker
	Priority Priority
	// Backoff grows the pause after throttled responses. Nil uses the defaults.
	Backoff *Backoff
}

// NewPacer creates a pacer
func NewPacer(cfg PacerConfig) *Pacer {
	p := &Pacer{
		delay:    cfg.Delay,
		budget:   cfg.Budget,
		priority: cfg.Priority,
		backoff:  cfg.Backoff,
		sleep:    sleepContext,
	}
	if p.backoff == nil {
		p.backoff = NewBackoff(0, 0)
	}
	if cfg.RequestsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return p
}

// Wait blocks until a request may be sent
func (p *Pacer) Wait(ctx context.Context) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if p.budget == nil {
		return nil
	}
	for {
		allowed, wait := p.budget.TryConsume(ctx, 1, p.priority)
		if allowed {
			return nil
		}
		logging.FromContext(ctx).WithFields(map[string]interface{}{
			"priority": p.priority.String(),
			"wait":     wait.String(),
		}).Debug("Request budget exhausted, waiting for next window")
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Pause applies the fixed post-request delay plus any throttling backoff
func (p *Pacer) Pause(ctx context.Context) error {
	d := p.delay + p.backoff.Delay()
	if d <= 0 {
		return nil
	}
	return p.sleep(ctx, d)
}

// Throttled records a rate-limited response
func (p *Pacer) Throttled() {
	p.backoff.RecordFailure()
}

// Succeeded records an accepted response
func (p *Pacer) Succeeded() {
	p.backoff.RecordSuccess()
}

// Delay returns the fixed post-request delay
func (p *Pacer) Delay() time.Duration {
	return p.delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
