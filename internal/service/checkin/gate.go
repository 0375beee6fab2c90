package checkin

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/attendly/attendly-backend-go/internal/domain/attendance"
	"github.com/attendly/attendly-backend-go/internal/pkg/database"
)

// ErrSubmitTimeout means the submission was accepted but its outcome
// could not be confirmed before the caller's deadline. The task keeps
// running; the caller should poll status.
var ErrSubmitTimeout = errors.New("submission accepted but not yet confirmed, check your status")

// ErrGateClosed is returned for submissions after Stop.
var ErrGateClosed = errors.New("submission gate is not accepting requests")

// ErrQueueFull means the submission was never enqueued. Unlike a
// timeout nothing is in flight; the caller should retry later.
var ErrQueueFull = errors.New("submission queue is full, retry shortly")

type result struct {
	proj StatusProjection
	err  error
}

type task struct {
	req  SubmitRequest
	done chan result
}

// GateOptions bound the pipeline. Zero values fall back to defaults.
type GateOptions struct {
	Workers       int
	QueueSize     int
	TaskTimeout   time.Duration
	RetryMaxTries uint
	RetryInterval time.Duration
}

func (o *GateOptions) defaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize <= 0 {
		o.QueueSize = o.Workers * 8
	}
	if o.TaskTimeout <= 0 {
		o.TaskTimeout = 5 * time.Second
	}
	if o.RetryMaxTries == 0 {
		o.RetryMaxTries = 3
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 200 * time.Millisecond
	}
}

// Gate serializes check-in/out submissions through a fixed worker pool
// so storage never sees more than Workers concurrent transactions.
type Gate struct {
	processor *Service
	opts      GateOptions
	tasks     chan task
	log       *slog.Logger

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewGate(processor *Service, opts GateOptions, log *slog.Logger) *Gate {
	opts.defaults()
	return &Gate{
		processor: processor,
		opts:      opts,
		tasks:     make(chan task, opts.QueueSize),
		log:       log,
	}
}

// Start launches the worker pool.
func (g *Gate) Start() {
	g.baseCtx, g.cancel = context.WithCancel(context.Background())
	for i := 0; i < g.opts.Workers; i++ {
		g.wg.Add(1)
		go g.worker(i)
	}
	g.log.Info("check-in gate started",
		"workers", g.opts.Workers,
		"queue_size", g.opts.QueueSize,
	)
}

// Stop refuses new submissions and waits for in-flight tasks to finish.
func (g *Gate) Stop() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.tasks)
	g.mu.Unlock()

	g.wg.Wait()
	if g.cancel != nil {
		g.cancel()
	}
	g.log.Info("check-in gate stopped")
}

// Submit enqueues one event and waits up to TaskTimeout for its
// outcome. On timeout the task keeps running to completion and the
// caller gets ErrSubmitTimeout.
func (g *Gate) Submit(ctx context.Context, req SubmitRequest) (StatusProjection, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return StatusProjection{}, ErrGateClosed
	}
	t := task{req: req, done: make(chan result, 1)}
	select {
	case g.tasks <- t:
		g.mu.Unlock()
	default:
		g.mu.Unlock()
		return StatusProjection{}, ErrQueueFull
	}

	timer := time.NewTimer(g.opts.TaskTimeout)
	defer timer.Stop()

	select {
	case res := <-t.done:
		return res.proj, res.err
	case <-ctx.Done():
		return StatusProjection{}, ErrSubmitTimeout
	case <-timer.C:
		return StatusProjection{}, ErrSubmitTimeout
	}
}

func (g *Gate) worker(id int) {
	defer g.wg.Done()
	for t := range g.tasks {
		res := g.run(t.req)
		t.done <- res
		if res.err != nil {
			g.log.Error("check-in task failed",
				"worker", id,
				"employee_id", t.req.EmployeeID,
				"error", res.err,
			)
		}
	}
}

// run executes one task on the gate's own context, so an abandoned
// caller never cancels a storage write mid-flight. Transient storage
// failures are retried on a constant interval; everything else is
// permanent.
func (g *Gate) run(req SubmitRequest) result {
	operation := func() (StatusProjection, error) {
		proj, err := g.processor.Process(g.baseCtx, req)
		if errors.Is(err, attendance.ErrAlreadyProcessed) {
			// Replay of a settled period: current state is the answer.
			return proj, nil
		}
		if err != nil && !database.IsRetryable(err) {
			return proj, backoff.Permanent(err)
		}
		return proj, err
	}

	proj, err := backoff.Retry(g.baseCtx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(g.opts.RetryInterval)),
		backoff.WithMaxTries(g.opts.RetryMaxTries),
	)
	return result{proj: proj, err: err}
}
