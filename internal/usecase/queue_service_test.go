package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/job"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/standings"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/faults"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/logging"
)

// fakeRunner scripts calculation outcomes and tracks per-pair concurrency.
type fakeRunner struct {
	mu      sync.Mutex
	results []error
	calls   int
	delay   time.Duration

	active        map[string]*int32
	maxConcurrent map[string]int32
}

func newFakeRunner(results ...error) *fakeRunner {
	return &fakeRunner{
		results:       results,
		active:        make(map[string]*int32),
		maxConcurrent: make(map[string]int32),
	}
}

func (f *fakeRunner) Calculate(ctx context.Context, leagueID, seasonID int) ([]standings.Entry, error) {
	key := fmt.Sprintf("%d/%d", leagueID, seasonID)

	f.mu.Lock()
	counter, ok := f.active[key]
	if !ok {
		counter = new(int32)
		f.active[key] = counter
	}
	now := atomic.AddInt32(counter, 1)
	if now > f.maxConcurrent[key] {
		f.maxConcurrent[key] = now
	}
	idx := f.calls
	f.calls++
	delay := f.delay
	f.mu.Unlock()

	defer atomic.AddInt32(counter, -1)

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if idx < len(f.results) {
		return nil, f.results[idx]
	}
	return nil, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRunner) maxFor(leagueID, seasonID int) int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxConcurrent[fmt.Sprintf("%d/%d", leagueID, seasonID)]
}

func newTestQueue(t *testing.T, cfg QueueConfig, runner CalculationRunner) *QueueService {
	t.Helper()

	handler := NewErrorHandler(nil, nil, nil, nil, nil, logging.NewNop())
	q, err := NewQueueService(cfg, runner, handler, nil, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Shutdown(ctx)
	})
	return q
}

func waitIdle(t *testing.T, q *QueueService) {
	t.Helper()
	require.Eventually(t, func() bool {
		st := q.GetStatus()
		return st.PendingJobs == 0 && st.ProcessingJobs == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestEnqueueDedupUnderBurst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner := newFakeRunner()
	runner.delay = 30 * time.Millisecond
	q := newTestQueue(t, QueueConfig{Concurrency: 2, AutomaticCalculation: true}, runner)

	ids := make([]string, 10)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
			require.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id, "burst enqueues must coalesce to one job")
	}

	waitIdle(t, q)
	assert.EqualValues(t, 1, runner.maxFor(1, 1), "at most one calculation per pair at any instant")

	st := q.GetStatus()
	assert.Equal(t, 1, st.CompletedJobs)
	assert.Equal(t, 1, runner.callCount())
}

func TestPairsRunInParallelUpToConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner := newFakeRunner()
	runner.delay = 40 * time.Millisecond
	q := newTestQueue(t, QueueConfig{Concurrency: 2, AutomaticCalculation: true}, runner)

	for season := 1; season <= 4; season++ {
		_, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: season, Trigger: "manual"})
		require.NoError(t, err)
	}
	waitIdle(t, q)

	assert.Equal(t, 4, q.GetStatus().CompletedJobs)
	for season := 1; season <= 4; season++ {
		assert.EqualValues(t, 1, runner.maxFor(1, season))
	}
}

func TestRetryThenSuccess(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner := newFakeRunner(
		errors.New("connection_error: db gone"),
		errors.New("connection_error: db gone"),
		nil,
	)
	q := newTestQueue(t, QueueConfig{
		Concurrency:          1,
		MaxRetries:           3,
		RetryDelay:           5 * time.Millisecond,
		MaxRetryDelay:        50 * time.Millisecond,
		AutomaticCalculation: true,
	}, runner)

	jobID, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, ok := q.GetJob(jobID)
		return ok && j.Status == job.StatusCompleted
	}, 5*time.Second, 5*time.Millisecond)

	j, ok := q.GetJob(jobID)
	require.True(t, ok)
	assert.Equal(t, 2, j.RetryCount)
	require.Len(t, j.ErrorHistory, 2)
	for _, rec := range j.ErrorHistory {
		assert.Equal(t, faults.TypeConnectionError, rec.Type)
		assert.True(t, rec.Retryable)
	}
	assert.Equal(t, 3, runner.callCount())
}

func TestNonRetryableGoesToDeadLetter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner := newFakeRunner(errors.New("validation_error: bad table state"))
	q := newTestQueue(t, QueueConfig{Concurrency: 1, MaxRetries: 3, AutomaticCalculation: true}, runner)

	jobID, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, ok := q.GetJob(jobID)
		return ok && j.Status == job.StatusFailed
	}, 5*time.Second, 5*time.Millisecond)

	j, _ := q.GetJob(jobID)
	assert.Equal(t, 0, j.RetryCount, "non-retryable errors must not be retried")
	assert.Equal(t, 1, runner.callCount())

	dead := q.GetDeadLetter()
	require.Len(t, dead, 1)
	assert.Equal(t, jobID, dead[0].ID)

	// The pair lock is released: a fresh enqueue creates a new job.
	fresh, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
	require.NoError(t, err)
	assert.NotEqual(t, jobID, fresh)
}

func TestRetriesExhaustedGoesToDeadLetter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner := newFakeRunner(
		errors.New("network error"),
		errors.New("network error"),
		errors.New("network error"),
	)
	q := newTestQueue(t, QueueConfig{
		Concurrency:          1,
		MaxRetries:           2,
		RetryDelay:           5 * time.Millisecond,
		MaxRetryDelay:        20 * time.Millisecond,
		AutomaticCalculation: true,
	}, runner)

	jobID, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, ok := q.GetJob(jobID)
		return ok && j.Status == job.StatusFailed
	}, 5*time.Second, 5*time.Millisecond)

	j, _ := q.GetJob(jobID)
	assert.Equal(t, 2, j.RetryCount)
	assert.Equal(t, 3, runner.callCount())
	assert.Len(t, q.GetDeadLetter(), 1)
}

func TestJobTimeoutIsAccounted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner := newFakeRunner(errors.New("ignored"), nil)
	runner.delay = 200 * time.Millisecond
	q := newTestQueue(t, QueueConfig{
		Concurrency:          1,
		MaxRetries:           3,
		RetryDelay:           5 * time.Millisecond,
		JobTimeout:           20 * time.Millisecond,
		AutomaticCalculation: true,
	}, runner)

	jobID, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, ok := q.GetJob(jobID)
		return ok && j.TimeoutCount >= 1
	}, 5*time.Second, 5*time.Millisecond)

	j, _ := q.GetJob(jobID)
	require.NotEmpty(t, j.ErrorHistory)
	assert.Equal(t, faults.TypeJobTimeout, j.ErrorHistory[0].Type)
	assert.True(t, j.ErrorHistory[0].Retryable)
}

func TestBackoffMonotonicity(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t, QueueConfig{
		Concurrency:          1,
		RetryDelay:           10 * time.Millisecond,
		MaxRetryDelay:        time.Second,
		AutomaticCalculation: true,
	}, newFakeRunner())

	q.mu.Lock()
	defer q.mu.Unlock()

	prev := q.nextDelayLocked("probe")
	for i := 0; i < 5; i++ {
		next := q.nextDelayLocked("probe")
		if next >= time.Second {
			break
		}
		// Doubling with 10% jitter never falls below 1.5x the prior draw.
		assert.GreaterOrEqual(t, float64(next), 1.5*float64(prev),
			"delay %d (%v) fell below 1.5x prior (%v)", i+1, next, prev)
		prev = next
	}
}

func TestQueueFull(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	q := newTestQueue(t, QueueConfig{Concurrency: 1, MaxPendingJobs: 1, AutomaticCalculation: true}, newFakeRunner())
	q.Pause()

	_, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 2, Trigger: "manual"})
	require.Error(t, err)
	assert.Equal(t, faults.TypeQueueFull, faults.From(err).Type)
}

func TestAutomaticCalculationDisabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	q := newTestQueue(t, QueueConfig{Concurrency: 1, AutomaticCalculation: false}, newFakeRunner())

	_, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "game_result"})
	require.ErrorIs(t, err, ErrCalculationDisabled)

	// Manual triggers still pass.
	_, err = q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
	require.NoError(t, err)
}

func TestEnqueueValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	q := newTestQueue(t, QueueConfig{Concurrency: 1, AutomaticCalculation: true}, newFakeRunner())

	_, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 0, SeasonID: 1})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Priority: "urgent"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestPriorityDispatchOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var order []string
	var mu sync.Mutex
	runner := &orderedRunner{record: func(key string) {
		mu.Lock()
		order = append(order, key)
		mu.Unlock()
	}}

	q := newTestQueue(t, QueueConfig{Concurrency: 1, AutomaticCalculation: true}, runner)
	q.Pause()

	_, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Priority: "low", Trigger: "manual"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 2, Priority: "normal", Trigger: "manual"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 3, Priority: "high", Trigger: "manual"})
	require.NoError(t, err)

	q.Resume()
	waitIdle(t, q)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"1/3", "1/2", "1/1"}, order, "dispatch drains high before normal before low")
}

type orderedRunner struct {
	record func(key string)
}

func (r *orderedRunner) Calculate(_ context.Context, leagueID, seasonID int) ([]standings.Entry, error) {
	r.record(fmt.Sprintf("%d/%d", leagueID, seasonID))
	return nil, nil
}

func TestPauseResumeAndClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	q := newTestQueue(t, QueueConfig{Concurrency: 1, AutomaticCalculation: true}, newFakeRunner())
	q.Pause()

	id1, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 2, Trigger: "manual"})
	require.NoError(t, err)

	assert.Equal(t, 2, q.GetStatus().PendingJobs)

	discarded := q.Clear()
	assert.Equal(t, 2, discarded)
	assert.Equal(t, 0, q.GetStatus().PendingJobs)

	_, ok := q.GetJob(id1)
	assert.False(t, ok)

	// Locks were released with the discard.
	fresh, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
	require.NoError(t, err)
	assert.NotEqual(t, id1, fresh)

	q.Resume()
	waitIdle(t, q)
	assert.Equal(t, 1, q.GetStatus().CompletedJobs)
}

func TestReprocessDeadLetter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner := newFakeRunner(errors.New("validation_error: broken"), nil)
	q := newTestQueue(t, QueueConfig{Concurrency: 1, AutomaticCalculation: true}, runner)

	jobID, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(q.GetDeadLetter()) == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, q.ReprocessDeadLetter(jobID))

	require.Eventually(t, func() bool {
		j, ok := q.GetJob(jobID)
		return ok && j.Status == job.StatusCompleted
	}, 5*time.Second, 5*time.Millisecond)
	assert.Empty(t, q.GetDeadLetter())

	require.Error(t, q.ReprocessDeadLetter("missing"))
}

func TestClearDeadLetter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner := newFakeRunner(errors.New("validation_error: broken"))
	q := newTestQueue(t, QueueConfig{Concurrency: 1, AutomaticCalculation: true}, runner)

	jobID, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(q.GetDeadLetter()) == 1
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, q.ClearDeadLetter())
	assert.Empty(t, q.GetDeadLetter())

	// Clearing the dead letter drops the failed jobs from the history too.
	_, ok := q.GetJob(jobID)
	assert.False(t, ok)
	assert.Zero(t, q.GetStatus().FailedJobs)
}

func TestFailedJobHistoryCap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	broken := errors.New("validation_error: broken")
	runner := newFakeRunner(broken, broken, broken, broken)
	q := newTestQueue(t, QueueConfig{Concurrency: 1, MaxFailedJobs: 2, AutomaticCalculation: true}, runner)

	ids := make([]string, 0, 4)
	for season := 1; season <= 4; season++ {
		id, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: season, Trigger: "manual"})
		require.NoError(t, err)
		ids = append(ids, id)
		waitIdle(t, q)
	}

	// The cap bounds the dead letter and the job map alike.
	st := q.GetStatus()
	assert.LessOrEqual(t, st.FailedJobs, 2)
	assert.Len(t, q.GetDeadLetter(), 2)

	_, ok := q.GetJob(ids[0])
	assert.False(t, ok, "oldest failure must be evicted")
	_, ok = q.GetJob(ids[1])
	assert.False(t, ok)

	j, ok := q.GetJob(ids[3])
	require.True(t, ok)
	assert.Equal(t, job.StatusFailed, j.Status)
}

func TestMetricsAndHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	runner := newFakeRunner(nil, errors.New("validation_error: broken"))
	q := newTestQueue(t, QueueConfig{Concurrency: 1, AutomaticCalculation: true}, runner)

	_, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
	require.NoError(t, err)
	waitIdle(t, q)
	_, err = q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 2, Trigger: "manual"})
	require.NoError(t, err)
	waitIdle(t, q)

	m := q.GetMetrics()
	assert.EqualValues(t, 2, m.TotalProcessed)
	assert.InDelta(t, 50, m.SuccessRate, 0.01)
	assert.InDelta(t, 50, m.ErrorRate, 0.01)
	assert.Equal(t, 1, m.DeadLetterCount)

	history := q.GetHistory(1, 10)
	assert.Len(t, history, 2)

	st := q.GetStatus()
	require.NotNil(t, st.LastProcessedAt)
	assert.Equal(t, 1, st.CompletedJobs)
	assert.Equal(t, 1, st.FailedJobs)
}

func TestShutdownRejectsEnqueue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	q := newTestQueue(t, QueueConfig{Concurrency: 1, AutomaticCalculation: true}, newFakeRunner())

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(shutdownCtx))

	_, err := q.Enqueue(ctx, EnqueueRequest{LeagueID: 1, SeasonID: 1, Trigger: "manual"})
	require.ErrorIs(t, err, ErrQueueStopped)
}
