package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/job"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/standings"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/infrastructure/repository/memory"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/infrastructure/snapshotstore"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/cache"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/faults"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/logging"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/resilience"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Notification
}

func (n *recordingNotifier) Notify(_ context.Context, event Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.events...)
}

func tableFor(clubs ...string) []standings.Entry {
	out := make([]standings.Entry, 0, len(clubs))
	for i, name := range clubs {
		out = append(out, standings.Entry{
			LeagueID: 1, SeasonID: 1, ClubID: i + 1, ClubName: name,
			Rank: i + 1, Source: standings.SourceAutomatic, LastUpdated: time.Now().UTC(),
		})
	}
	return out
}

func TestHandlerDecisionLadder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := NewErrorHandler(nil, nil, nil, nil, nil, logging.NewNop())
	jc := JobContext{JobID: "j1", LeagueID: 1, SeasonID: 1, Operation: OpCalculation, RetryCount: 0, MaxRetries: 3}

	cases := []struct {
		name string
		err  error
		want Action
	}{
		{"retryable network error", errors.New("network unreachable"), ActionRetryWithBackoff},
		{"non-retryable validation", errors.New("validation_error: bad row"), ActionFailFast},
		{"data inconsistency rolls back", dataInconsistency("club missing"), ActionRollback},
		{"critical escalates", errors.New("critical: system failure"), ActionEscalate},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			decision := h.Handle(ctx, tc.err, jc)
			assert.Equal(t, tc.want, decision.Action)
		})
	}
}

func TestHandlerRetriesExhaustedFailFast(t *testing.T) {
	t.Parallel()

	h := NewErrorHandler(nil, nil, nil, nil, nil, logging.NewNop())
	decision := h.Handle(context.Background(), errors.New("network unreachable"), JobContext{
		Operation: OpCalculation, RetryCount: 3, MaxRetries: 3,
	})
	assert.Equal(t, ActionFailFast, decision.Action)
}

func TestHandlerRollbackRestoresLatestSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tableRepo := memory.NewTableRepository()
	require.NoError(t, tableRepo.UpsertSeason(ctx, 1, 1, tableFor("Viktoria Wertheim", "SV Nassig")))

	snapshots, err := snapshotstore.NewFileStore(
		snapshotstore.Config{Dir: t.TempDir(), ChecksumEnabled: true},
		tableRepo, memory.NewTxManager(), logging.NewNop(),
	)
	require.NoError(t, err)

	snapID, err := snapshots.Create(ctx, 1, 1, "good state")
	require.NoError(t, err)

	// Corrupt the live table.
	require.NoError(t, tableRepo.ReplaceSeason(ctx, 1, 1, tableFor("Wrong Club")))

	h := NewErrorHandler(nil, snapshots, nil, nil, nil, logging.NewNop())
	decision := h.Handle(ctx, dataInconsistency("table drifted"), JobContext{
		JobID: "j1", LeagueID: 1, SeasonID: 1, Operation: OpCalculation, MaxRetries: 3,
	})

	assert.Equal(t, ActionRollback, decision.Action)
	assert.Equal(t, snapID, decision.RestoredSnapshotID)
	assert.False(t, decision.RollbackFailed)

	rows, err := tableRepo.ListSeason(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Viktoria Wertheim", rows[0].ClubName)
}

func TestHandlerEscalationNotifies(t *testing.T) {
	t.Parallel()

	notifier := &recordingNotifier{}
	h := NewErrorHandler(nil, nil, notifier, nil, nil, logging.NewNop())

	h.Handle(context.Background(), errors.New("fatal: out of memory"), JobContext{
		JobID: "j9", Operation: OpCalculation, MaxRetries: 3,
	})

	events := notifier.all()
	require.Len(t, events, 1)
	assert.Equal(t, faults.SeverityCritical, events[0].Severity)
	assert.Equal(t, "j9", events[0].Job.JobID)
}

func TestHandlerFailsFastWhenBreakerOpen(t *testing.T) {
	t.Parallel()

	breakers := resilience.NewRegistry(resilience.CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	})
	h := NewErrorHandler(breakers, nil, nil, nil, nil, logging.NewNop())
	jc := JobContext{Operation: OpCalculation, RetryCount: 0, MaxRetries: 5}

	// Two failures trip the breaker.
	first := h.Handle(context.Background(), errors.New("network unreachable"), jc)
	assert.Equal(t, ActionRetryWithBackoff, first.Action)
	second := h.Handle(context.Background(), errors.New("network unreachable"), jc)

	assert.Equal(t, resilience.CircuitStateOpen, breakers.State(OpCalculation))
	_ = second

	third := h.Handle(context.Background(), errors.New("network unreachable"), jc)
	assert.Equal(t, ActionFailFast, third.Action)
	require.Error(t, h.Allow(OpCalculation))

	h.ResetBreaker(OpCalculation)
	assert.NoError(t, h.Allow(OpCalculation))
}

func TestTableWithFallbackLadder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tableRepo := memory.NewTableRepository()
	require.NoError(t, tableRepo.UpsertSeason(ctx, 1, 1, tableFor("Viktoria Wertheim")))

	snapshots, err := snapshotstore.NewFileStore(
		snapshotstore.Config{Dir: t.TempDir(), ChecksumEnabled: true},
		tableRepo, memory.NewTxManager(), logging.NewNop(),
	)
	require.NoError(t, err)
	_, err = snapshots.Create(ctx, 1, 1, "archived")
	require.NoError(t, err)

	h := NewErrorHandler(nil, snapshots, nil, nil, nil, logging.NewNop())

	// Live read works.
	view := h.TableWithFallback(ctx, 1, 1, func(ctx context.Context) ([]standings.Entry, error) {
		return tableRepo.ListSeason(ctx, 1, 1)
	})
	assert.Equal(t, TableStatusOK, view.Status)
	assert.Len(t, view.Entries, 1)

	// Live read fails, snapshot serves.
	view = h.TableWithFallback(ctx, 1, 1, func(context.Context) ([]standings.Entry, error) {
		return nil, errors.New("database unavailable")
	})
	assert.Equal(t, TableStatusFallback, view.Status)
	assert.Len(t, view.Entries, 1)

	// No snapshot either: empty fallback.
	bare := NewErrorHandler(nil, nil, nil, nil, nil, logging.NewNop())
	view = bare.TableWithFallback(ctx, 1, 1, func(context.Context) ([]standings.Entry, error) {
		return nil, errors.New("database unavailable")
	})
	assert.Equal(t, TableStatusFallback, view.Status)
	assert.Empty(t, view.Entries)
}

func TestValidationFallbackPrefersFreshCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := cache.NewStore(time.Minute)
	cached := TableView{Entries: tableFor("Viktoria Wertheim"), ComputedAt: time.Now(), Status: TableStatusOK}
	store.Set(ctx, cache.TableKey(1, 1), cached, time.Minute)

	h := NewErrorHandler(nil, nil, nil, store, nil, logging.NewNop())
	view := h.ValidationFallback(ctx, 1, 1, time.Hour, func(context.Context) ([]standings.Entry, error) {
		return nil, errors.New("must not be called")
	})
	assert.Equal(t, TableStatusOK, view.Status)
	assert.Len(t, view.Entries, 1)

	// Stale cache falls through to the direct read.
	stale := TableView{Entries: tableFor("Old"), ComputedAt: time.Now().Add(-2 * time.Hour), Status: TableStatusOK}
	store.Set(ctx, cache.TableKey(2, 1), stale, time.Minute)
	view = h.ValidationFallback(ctx, 2, 1, time.Hour, func(context.Context) ([]standings.Entry, error) {
		return tableFor("Fresh"), nil
	})
	assert.Equal(t, "Fresh", view.Entries[0].ClubName)
}

func TestQueueOverloadFallback(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := &fakeQueueControl{}
	h := NewErrorHandler(nil, nil, nil, nil, nil, logging.NewNop())

	purged := h.HandleQueueOverload(ctx, queue, 20*time.Millisecond)
	assert.Equal(t, 3, purged)
	assert.True(t, queue.paused.Load())

	require.Eventually(t, func() bool {
		return queue.resumed.Load()
	}, time.Second, 5*time.Millisecond, "queue must auto-resume after cooldown")
}

type fakeQueueControl struct {
	paused  atomicBool
	resumed atomicBool
}

func (q *fakeQueueControl) Pause()  { q.paused.Store(true) }
func (q *fakeQueueControl) Resume() { q.resumed.Store(true) }
func (q *fakeQueueControl) ClearPriority(p job.Priority) int {
	if p == job.PriorityLow {
		return 3
	}
	return 0
}

type atomicBool struct {
	mu sync.Mutex
	v  bool
}

func (b *atomicBool) Store(v bool) {
	b.mu.Lock()
	b.v = v
	b.mu.Unlock()
}

func (b *atomicBool) Load() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.v
}

func TestDatabaseUnavailableProbe(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pinger := &flakyPinger{failures: 2}
	h := NewErrorHandler(nil, nil, nil, nil, pinger, logging.NewNop())

	h.MarkDatabaseUnavailable(ctx, 10*time.Millisecond)
	assert.True(t, h.ReadOnly())

	require.Eventually(t, func() bool {
		return !h.ReadOnly()
	}, 2*time.Second, 10*time.Millisecond, "probe must clear the read-only flag once the database answers")
}

type flakyPinger struct {
	mu       sync.Mutex
	failures int
}

func (p *flakyPinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("connection refused")
	}
	return nil
}
