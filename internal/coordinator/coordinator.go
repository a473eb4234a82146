// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package coordinator owns prompt submissions and the UI state they drive.
//
// Every accepted prompt gets a token from a strictly increasing counter. The
// prompt's operation runs in its own goroutine; when it completes, its result
// reaches UIState only if its token is still the current token and it was not
// cancelled. Everything else is a stale completion: discarded, counted and
// recorded, but never shown. Last submitted wins, not last completed.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/promptdesk/pkg/types"
)

// ErrEmptyPrompt is returned by Submit for an empty or whitespace-only prompt.
// UIState is left untouched.
var ErrEmptyPrompt = errors.New("prompt is empty")

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("coordinator closed")

// Operation performs the asynchronous work for one prompt. It must return
// promptly once ctx is cancelled if it can; the coordinator discards the
// result of a cancelled operation either way.
type Operation func(ctx context.Context, prompt string) (types.Result, error)

// Recorder receives the outcome of every finished submission.
type Recorder interface {
	Record(ctx context.Context, o types.Outcome) error
}

// Options configures a Coordinator. The zero value is usable.
type Options struct {
	// CancelSuperseded aborts the previous in-flight operation on Submit.
	CancelSuperseded bool

	// Recorder, when set, receives outcomes. Its errors are logged only.
	Recorder Recorder

	// Metrics, when set, is updated on every transition.
	Metrics *Metrics

	Logger *slog.Logger
}

// recordTimeout bounds a single Recorder call.
var recordTimeout = 5 * time.Second

// now is the clock; tests may replace it.
var now = time.Now

// Coordinator issues tokens, runs operations and guards UIState.
type Coordinator struct {
	op     Operation
	opts   Options
	logger *slog.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	lastToken uint64
	state     types.UIState
	current   *Task // in-flight task holding state.CurrentToken, nil otherwise
	inflight  map[uint64]*Task
	subs      map[*subscriber]struct{}
	closed    bool
}

// New creates a coordinator in the idle state.
func New(op Operation, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Coordinator{
		op:       op,
		opts:     opts,
		logger:   logger,
		baseCtx:  ctx,
		stop:     stop,
		state:    types.UIState{Status: types.StatusIdle, UpdatedAt: now()},
		inflight: make(map[uint64]*Task),
		subs:     make(map[*subscriber]struct{}),
	}
}

// Submit starts a new submission for prompt and makes it current. Any
// previously current submission becomes stale.
func (c *Coordinator) Submit(prompt string) (*Task, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	c.lastToken++
	ctx, cancel := context.WithCancel(c.baseCtx)
	t := &Task{
		sub: types.Submission{
			ID:       uuid.NewString(),
			Prompt:   prompt,
			Token:    c.lastToken,
			IssuedAt: now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	prev := c.current
	c.current = t
	c.inflight[t.sub.Token] = t
	c.state = types.UIState{
		Prompt:       prompt,
		Loading:      true,
		CurrentToken: t.sub.Token,
		Status:       types.StatusLoading,
		UpdatedAt:    t.sub.IssuedAt,
	}
	c.broadcastLocked()
	c.wg.Add(1)
	c.mu.Unlock()

	if prev != nil && c.opts.CancelSuperseded {
		prev.cancel()
	}

	c.opts.Metrics.submitted()
	c.logger.Debug("prompt submitted", "token", t.sub.Token, "submission", t.sub.ID)

	go c.run(ctx, t)
	return t, nil
}

// Cancel abandons the current submission. Loading stops immediately and the
// operation's eventual completion is discarded. It reports whether there was
// anything to cancel.
func (c *Coordinator) Cancel() bool {
	c.mu.Lock()
	t := c.current
	if t == nil {
		c.mu.Unlock()
		return false
	}
	t.cancelled = true
	c.current = nil
	c.state.Loading = false
	c.state.Status = types.StatusCancelled
	c.state.UpdatedAt = now()
	c.broadcastLocked()
	c.mu.Unlock()

	t.cancel()
	c.logger.Debug("prompt cancelled", "token", t.sub.Token, "submission", t.sub.ID)
	return true
}

// State returns the current UIState snapshot.
func (c *Coordinator) State() types.UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Inflight returns the number of operations that have not completed yet,
// including stale and cancelled ones.
func (c *Coordinator) Inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Close aborts every in-flight operation, closes all subscriptions and waits
// for the operation goroutines to return.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, t := range c.inflight {
		t.cancelled = true
	}
	c.current = nil
	for s := range c.subs {
		delete(c.subs, s)
		close(s.ch)
	}
	c.mu.Unlock()

	c.stop()
	c.wg.Wait()
	return nil
}

func (c *Coordinator) run(ctx context.Context, t *Task) {
	defer c.wg.Done()
	c.opts.Metrics.started()

	start := time.Now()
	res, err := c.call(ctx, t.sub.Prompt)
	elapsed := time.Since(start)

	c.opts.Metrics.finished(elapsed)
	c.complete(t, res, err, elapsed)
}

// call runs the operation, turning a panic into an operation failure.
func (c *Coordinator) call(ctx context.Context, prompt string) (res types.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return c.op(ctx, prompt)
}

// complete applies or discards the completion of t. This is the only place
// an operation's output can reach UIState.
func (c *Coordinator) complete(t *Task, res types.Result, err error, elapsed time.Duration) {
	c.mu.Lock()
	delete(c.inflight, t.sub.Token)

	var status types.Status
	switch {
	case t.cancelled:
		status = types.StatusCancelled
	case t.sub.Token != c.state.CurrentToken:
		status = types.StatusStale
	case err != nil:
		status = types.StatusErrored
		c.state.Loading = false
		c.state.Status = types.StatusErrored
		c.state.Error = err.Error()
		c.state.Result = nil
		c.state.UpdatedAt = now()
		c.broadcastLocked()
	default:
		status = types.StatusApplied
		applied := res
		c.state.Loading = false
		c.state.Status = types.StatusApplied
		c.state.Error = ""
		c.state.Result = &applied
		c.state.UpdatedAt = now()
		c.broadcastLocked()
	}
	if c.current == t {
		c.current = nil
	}

	t.outcome = types.Outcome{
		SubmissionID: t.sub.ID,
		Token:        t.sub.Token,
		Prompt:       t.sub.Prompt,
		Status:       status,
		Model:        res.Model,
		IssuedAt:     t.sub.IssuedAt,
		CompletedAt:  now(),
		Duration:     elapsed,
	}
	if err != nil {
		t.outcome.Error = err.Error()
	} else {
		t.outcome.Result = res.Text
	}
	c.mu.Unlock()

	t.cancel()
	c.opts.Metrics.completed(status)

	switch status {
	case types.StatusStale, types.StatusCancelled:
		c.logger.Debug("completion discarded", "token", t.sub.Token, "submission", t.sub.ID, "status", string(status))
	case types.StatusErrored:
		c.logger.Warn("prompt failed", "token", t.sub.Token, "submission", t.sub.ID, "error", err)
	default:
		c.logger.Info("prompt applied", "token", t.sub.Token, "submission", t.sub.ID, "duration", elapsed)
	}

	c.record(t.outcome)
	close(t.done)
}

// record hands o to the Recorder. Store errors never reach the UI.
func (c *Coordinator) record(o types.Outcome) {
	if c.opts.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := c.opts.Recorder.Record(ctx, o); err != nil {
		c.logger.Error("recording outcome", "token", o.Token, "submission", o.SubmissionID, "error", err)
	}
}

// Task is the handle for one submission.
type Task struct {
	sub    types.Submission
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by Coordinator.mu
	cancelled bool

	// written before done is closed
	outcome types.Outcome
}

// Submission returns the submission this task runs.
func (t *Task) Submission() types.Submission { return t.sub }

// Done is closed once the completion has been applied or discarded.
func (t *Task) Done() <-chan struct{} { return t.done }

// Outcome returns how the submission ended. It blocks until Done.
func (t *Task) Outcome() types.Outcome {
	<-t.done
	return t.outcome
}
