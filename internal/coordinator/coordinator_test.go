// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package coordinator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/promptdesk/pkg/types"
)

// --- scripted operation ---

type reply struct {
	res types.Result
	err error
}

// scriptedOp blocks each call until the test resolves its prompt.
type scriptedOp struct {
	mu           sync.Mutex
	replies      map[string]chan reply
	ignoreCancel bool
}

func newScriptedOp() *scriptedOp {
	return &scriptedOp{replies: make(map[string]chan reply)}
}

func (s *scriptedOp) ch(prompt string) chan reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.replies[prompt]
	if !ok {
		ch = make(chan reply, 1)
		s.replies[prompt] = ch
	}
	return ch
}

func (s *scriptedOp) run(ctx context.Context, prompt string) (types.Result, error) {
	if s.ignoreCancel {
		r := <-s.ch(prompt)
		return r.res, r.err
	}
	select {
	case r := <-s.ch(prompt):
		return r.res, r.err
	case <-ctx.Done():
		return types.Result{}, ctx.Err()
	}
}

func (s *scriptedOp) resolve(prompt, text string) {
	s.ch(prompt) <- reply{res: types.Result{Text: text}}
}

func (s *scriptedOp) fail(prompt string, err error) {
	s.ch(prompt) <- reply{err: err}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(t *testing.T, op Operation, opts Options) *Coordinator {
	t.Helper()
	opts.Logger = quietLogger()
	c := New(op, opts)
	t.Cleanup(func() { c.Close() })
	return c
}

func waitDone(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("task %d did not complete", task.Submission().Token)
	}
}

// --- Submit ---

func TestSubmit_AppliesResult(t *testing.T) {
	op := newScriptedOp()
	c := newTestCoordinator(t, op.run, Options{})

	task, err := c.Submit("hello")
	require.NoError(t, err)

	st := c.State()
	assert.True(t, st.Loading)
	assert.Equal(t, uint64(1), st.CurrentToken)
	assert.Equal(t, types.StatusLoading, st.Status)
	assert.Equal(t, "hello", st.Prompt)

	op.resolve("hello", "X")
	waitDone(t, task)

	st = c.State()
	assert.Equal(t, "hello", st.Prompt)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	require.NotNil(t, st.Result)
	assert.Equal(t, "X", st.Result.Text)
	assert.Equal(t, types.StatusApplied, st.Status)
	assert.Equal(t, types.StatusApplied, task.Outcome().Status)
}

func TestSubmit_EmptyPromptLeavesStateUnchanged(t *testing.T) {
	op := newScriptedOp()
	c := newTestCoordinator(t, op.run, Options{})

	task, err := c.Submit("first")
	require.NoError(t, err)
	op.resolve("first", "R")
	waitDone(t, task)
	before := c.State()

	for _, p := range []string{"", "   ", "\n\t"} {
		task, err := c.Submit(p)
		assert.ErrorIs(t, err, ErrEmptyPrompt)
		assert.Nil(t, task)
	}

	assert.Equal(t, before, c.State())
	assert.Equal(t, 0, c.Inflight())
}

func TestSubmit_TokensStrictlyIncrease(t *testing.T) {
	op := newScriptedOp()
	c := newTestCoordinator(t, op.run, Options{})

	const n = 25
	var tasks []*Task
	for i := 1; i <= n; i++ {
		p := string(rune('a' + i))
		task, err := c.Submit(p)
		require.NoError(t, err)
		assert.Equal(t, uint64(i), task.Submission().Token)
		assert.Equal(t, uint64(i), c.State().CurrentToken)
		tasks = append(tasks, task)
	}
	for _, task := range tasks {
		op.resolve(task.Submission().Prompt, "r")
	}
	for _, task := range tasks {
		waitDone(t, task)
	}
	assert.Equal(t, uint64(n), c.State().CurrentToken)
}

func TestSubmit_ConcurrentSubmitsGetUniqueTokens(t *testing.T) {
	c := newTestCoordinator(t, func(ctx context.Context, p string) (types.Result, error) {
		return types.Result{Text: p}, nil
	}, Options{})

	const n = 50
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		tokens = make(map[uint64]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := c.Submit("p")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			tokens[task.Submission().Token] = true
			mu.Unlock()
			<-task.Done()
		}()
	}
	wg.Wait()

	assert.Len(t, tokens, n)
	assert.Equal(t, uint64(n), c.State().CurrentToken)
}

// --- stale completions ---

func TestLateCompletionOfOlderSubmissionIsDiscarded(t *testing.T) {
	op := newScriptedOp()
	c := newTestCoordinator(t, op.run, Options{})

	a, err := c.Submit("a")
	require.NoError(t, err)
	b, err := c.Submit("b")
	require.NoError(t, err)

	op.resolve("b", "B")
	waitDone(t, b)
	afterB := c.State()
	require.NotNil(t, afterB.Result)
	assert.Equal(t, "B", afterB.Result.Text)

	op.resolve("a", "A")
	waitDone(t, a)

	assert.Equal(t, afterB, c.State())
	assert.Equal(t, types.StatusStale, a.Outcome().Status)
	assert.Equal(t, types.StatusApplied, b.Outcome().Status)
}

func TestEarlyCompletionOfOlderSubmissionIsDiscarded(t *testing.T) {
	op := newScriptedOp()
	c := newTestCoordinator(t, op.run, Options{})

	a, err := c.Submit("a")
	require.NoError(t, err)
	b, err := c.Submit("b")
	require.NoError(t, err)

	op.resolve("a", "A")
	waitDone(t, a)

	st := c.State()
	assert.True(t, st.Loading, "b is still loading")
	assert.Nil(t, st.Result)
	assert.Equal(t, uint64(2), st.CurrentToken)

	op.resolve("b", "B")
	waitDone(t, b)
	assert.Equal(t, "B", c.State().Result.Text)
}

func TestStaleFailureDoesNotSurfaceError(t *testing.T) {
	op := newScriptedOp()
	c := newTestCoordinator(t, op.run, Options{})

	a, err := c.Submit("a")
	require.NoError(t, err)
	b, err := c.Submit("b")
	require.NoError(t, err)

	op.fail("a", errors.New("upstream exploded"))
	waitDone(t, a)
	assert.Empty(t, c.State().Error)

	op.resolve("b", "B")
	waitDone(t, b)
	assert.Empty(t, c.State().Error)
	assert.Equal(t, types.StatusStale, a.Outcome().Status)
}

// --- failures ---

func TestFailureSetsError(t *testing.T) {
	op := newScriptedOp()
	c := newTestCoordinator(t, op.run, Options{})

	task, err := c.Submit("boom")
	require.NoError(t, err)
	op.fail("boom", errors.New("rate limited"))
	waitDone(t, task)

	st := c.State()
	assert.False(t, st.Loading)
	assert.Equal(t, "rate limited", st.Error)
	assert.Equal(t, types.StatusErrored, st.Status)
	assert.Nil(t, st.Result)

	// A new submit clears the error and returns to loading.
	next, err := c.Submit("again")
	require.NoError(t, err)
	st = c.State()
	assert.Empty(t, st.Error)
	assert.True(t, st.Loading)
	op.resolve("again", "ok")
	waitDone(t, next)
	assert.Equal(t, types.StatusApplied, c.State().Status)
}

func TestPanickingOperationBecomesFailure(t *testing.T) {
	c := newTestCoordinator(t, func(context.Context, string) (types.Result, error) {
		panic("nil map")
	}, Options{})

	task, err := c.Submit("p")
	require.NoError(t, err)
	waitDone(t, task)

	st := c.State()
	assert.Equal(t, types.StatusErrored, st.Status)
	assert.Contains(t, st.Error, "nil map")
}

// --- Cancel ---

func TestCancel_StopsLoadingImmediately(t *testing.T) {
	op := newScriptedOp()
	op.ignoreCancel = true
	c := newTestCoordinator(t, op.run, Options{})

	task, err := c.Submit("slow")
	require.NoError(t, err)

	assert.True(t, c.Cancel())
	st := c.State()
	assert.False(t, st.Loading)
	assert.Equal(t, types.StatusCancelled, st.Status)
	assert.Equal(t, uint64(1), st.CurrentToken)

	// The operation ignores cancellation and completes anyway.
	op.resolve("slow", "late")
	waitDone(t, task)

	st = c.State()
	assert.Nil(t, st.Result)
	assert.Equal(t, types.StatusCancelled, st.Status)
	assert.Equal(t, types.StatusCancelled, task.Outcome().Status)
}

func TestCancel_AbortsOperationContext(t *testing.T) {
	op := newScriptedOp()
	c := newTestCoordinator(t, op.run, Options{})

	task, err := c.Submit("slow")
	require.NoError(t, err)
	require.True(t, c.Cancel())
	waitDone(t, task)

	o := task.Outcome()
	assert.Equal(t, types.StatusCancelled, o.Status)
	assert.Contains(t, o.Error, context.Canceled.Error())
	assert.Empty(t, c.State().Error)
}

func TestCancel_NothingInFlight(t *testing.T) {
	op := newScriptedOp()
	c := newTestCoordinator(t, op.run, Options{})
	assert.False(t, c.Cancel())

	task, err := c.Submit("p")
	require.NoError(t, err)
	op.resolve("p", "done")
	waitDone(t, task)

	before := c.State()
	assert.False(t, c.Cancel())
	assert.Equal(t, before, c.State())
}

func TestCancel_ThenSubmitStartsFresh(t *testing.T) {
	op := newScriptedOp()
	op.ignoreCancel = true
	c := newTestCoordinator(t, op.run, Options{})

	first, err := c.Submit("first")
	require.NoError(t, err)
	require.True(t, c.Cancel())

	second, err := c.Submit("second")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c.State().CurrentToken)
	assert.True(t, c.State().Loading)

	op.resolve("second", "S")
	waitDone(t, second)
	op.resolve("first", "F")
	waitDone(t, first)

	st := c.State()
	assert.Equal(t, "S", st.Result.Text)
	assert.Equal(t, types.StatusApplied, st.Status)
}

func TestCancelSuperseded_AbortsPreviousOperation(t *testing.T) {
	op := newScriptedOp()
	c := newTestCoordinator(t, op.run, Options{CancelSuperseded: true})

	a, err := c.Submit("a")
	require.NoError(t, err)
	_, err = c.Submit("b")
	require.NoError(t, err)

	// a was never resolved; only its context can end it.
	waitDone(t, a)
	o := a.Outcome()
	assert.Equal(t, types.StatusStale, o.Status)
	assert.Contains(t, o.Error, context.Canceled.Error())
	assert.True(t, c.State().Loading)
}

// --- Subscribe ---

func TestSubscribe_DeliversCurrentThenLatest(t *testing.T) {
	op := newScriptedOp()
	c := newTestCoordinator(t, op.run, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := c.Subscribe(ctx)

	first := <-ch
	assert.Equal(t, types.StatusIdle, first.Status)

	task, err := c.Submit("hello")
	require.NoError(t, err)
	op.resolve("hello", "X")
	waitDone(t, task)

	// Intermediate states may be coalesced; the latest must be the applied one.
	var last types.UIState
	require.Eventually(t, func() bool {
		select {
		case last = <-ch:
		default:
		}
		return last.Status == types.StatusApplied
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "X", last.Result.Text)
}

func TestSubscribe_ClosedOnContextEnd(t *testing.T) {
	c := newTestCoordinator(t, newScriptedOp().run, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Subscribe(ctx)
	<-ch
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestSubscribe_SlowReaderNeverBlocks(t *testing.T) {
	c := newTestCoordinator(t, func(ctx context.Context, p string) (types.Result, error) {
		return types.Result{Text: p}, nil
	}, Options{})

	ch := c.Subscribe(context.Background())
	var last *Task
	for i := 0; i < 100; i++ {
		task, err := c.Submit("p")
		require.NoError(t, err)
		last = task
	}
	waitDone(t, last)
	assert.Len(t, ch, 1)
}

// --- Close ---

func TestClose_CancelsInflightAndRejectsSubmit(t *testing.T) {
	op := newScriptedOp()
	c := New(op.run, Options{Logger: quietLogger()})

	task, err := c.Submit("p")
	require.NoError(t, err)
	ch := c.Subscribe(context.Background())

	require.NoError(t, c.Close())
	waitDone(t, task)
	assert.Equal(t, types.StatusCancelled, task.Outcome().Status)

	for range ch {
	}
	_, err = c.Submit("after")
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, c.Close())
}

// --- Recorder ---

type memRecorder struct {
	mu       sync.Mutex
	outcomes []types.Outcome
	err      error
}

func (m *memRecorder) Record(_ context.Context, o types.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return m.err
}

func TestRecorder_ReceivesEveryOutcome(t *testing.T) {
	op := newScriptedOp()
	rec := &memRecorder{}
	c := newTestCoordinator(t, op.run, Options{Recorder: rec})

	a, _ := c.Submit("a")
	b, _ := c.Submit("b")
	op.resolve("b", "B")
	waitDone(t, b)
	op.resolve("a", "A")
	waitDone(t, a)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.outcomes, 2)
	assert.Equal(t, types.StatusApplied, rec.outcomes[0].Status)
	assert.Equal(t, "B", rec.outcomes[0].Result)
	assert.Equal(t, types.StatusStale, rec.outcomes[1].Status)
	assert.Equal(t, uint64(1), rec.outcomes[1].Token)
}

func TestRecorder_ErrorDoesNotReachState(t *testing.T) {
	op := newScriptedOp()
	rec := &memRecorder{err: errors.New("disk full")}
	c := newTestCoordinator(t, op.run, Options{Recorder: rec})

	task, err := c.Submit("p")
	require.NoError(t, err)
	op.resolve("p", "R")
	waitDone(t, task)

	st := c.State()
	assert.Empty(t, st.Error)
	assert.Equal(t, types.StatusApplied, st.Status)
}

// --- Metrics ---

func TestMetrics_CountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	op := newScriptedOp()
	op.ignoreCancel = true
	c := newTestCoordinator(t, op.run, Options{Metrics: m})

	a, _ := c.Submit("a")
	b, _ := c.Submit("b")
	op.resolve("b", "B")
	waitDone(t, b)
	op.resolve("a", "A")
	waitDone(t, a)

	x, _ := c.Submit("x")
	c.Cancel()
	op.resolve("x", "X")
	waitDone(t, x)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.submissions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions.WithLabelValues("cancelled")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inflight))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.submitted()
		m.started()
		m.finished(time.Second)
		m.completed(types.StatusApplied)
	})
}
