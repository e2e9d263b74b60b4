// Package worker runs per-wallet tasks with a bounded number of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/whale-tracker/internal/logging"
)

// Task processes one wallet
type Task func(ctx context.Context, wallet string) error

// Outcome is the result of one wallet task
type Outcome struct {
	Wallet   string
	Err      error
	Duration time.Duration
}

// Report collects the outcomes of a pool run in input order.
// Wallets never started because the context was cancelled are listed in NotStarted.
type Report struct {
	Outcomes   []Outcome
	NotStarted []string
}

// Failed returns the outcomes that returned an error
func (r *Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Succeeded returns the number of wallets processed without error
func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// PanicError is returned for a task that panicked
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Pool runs a task for each wallet with at most Workers tasks in flight.
// A failing or panicking task never affects its siblings.
type Pool struct {
	workers int
	logger  *logging.Logger
}

// NewPool creates a pool. workers below 1 run sequentially.
func NewPool(workers int, logger *logging.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Pool{workers: workers, logger: logger}
}

// Workers returns the concurrency limit
func (p *Pool) Workers() int {
	return p.workers
}

// Run executes task for every wallet and waits for all started tasks.
// Cancellation stops new wallets from starting; running tasks see the cancelled context.
func (p *Pool) Run(ctx context.Context, wallets []string, task Task) *Report {
	outcomes := make([]*Outcome, len(wallets))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	started := 0
dispatch:
	for i, wallet := range wallets {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			<-sem
			break
		}
		started = i + 1

		wg.Add(1)
		go func(i int, wallet string) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = p.runOne(ctx, wallet, task)
		}(i, wallet)
	}
	wg.Wait()

	report := &Report{Outcomes: make([]Outcome, 0, started)}
	for i := 0; i < started; i++ {
		report.Outcomes = append(report.Outcomes, *outcomes[i])
	}
	if started < len(wallets) {
		report.NotStarted = append(report.NotStarted, wallets[started:]...)
		p.logger.WithField("notStarted", len(report.NotStarted)).Warn("Run cancelled before all wallets started")
	}
	return report
}

func (p *Pool) runOne(ctx context.Context, wallet string, task Task) (outcome *Outcome) {
	start := time.Now()
	outcome = &Outcome{Wallet: wallet}

	defer func() {
		if r := recover(); r != nil {
			outcome.Err = &PanicError{Value: r, Stack: debug.Stack()}
			p.logger.WithFields(map[string]interface{}{
				"wallet": wallet,
				"panic":  fmt.Sprint(r),
			}).Error("Wallet task panicked")
		}
		outcome.Duration = time.Since(start)
	}()

	outcome.Err = task(ctx, wallet)
	return outcome
}
