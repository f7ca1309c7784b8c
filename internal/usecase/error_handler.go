package usecase

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/job"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/snapshot"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/standings"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/cache"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/faults"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/logging"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/resilience"
)

type Action string

const (
	ActionRetryWithBackoff Action = "RETRY_WITH_BACKOFF"
	ActionRollback         Action = "ROLLBACK"
	ActionFailFast         Action = "FAIL_FAST"
	ActionEscalate         Action = "ESCALATE"
)

// Decision is the handler's verdict on one classified failure.
type Decision struct {
	Action Action
	// RestoredSnapshotID is set when a rollback restored table state.
	RestoredSnapshotID string
	// RollbackFailed marks a rollback decision whose restore did not succeed.
	RollbackFailed bool
}

// JobContext carries the failing job's accounting into the decision.
type JobContext struct {
	JobID      string
	LeagueID   int
	SeasonID   int
	Operation  string
	RetryCount int
	MaxRetries int
}

// Notification is an escalation event for external alert channels.
type Notification struct {
	Severity faults.Severity
	Fault    *faults.Fault
	Job      JobContext
	At       time.Time
}

// Notifier is the escalation sink. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NopNotifier drops every escalation.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}

// Pinger checks backing-store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueControl is the slice of the queue the overload fallback drives.
type QueueControl interface {
	Pause()
	Resume()
	ClearPriority(p job.Priority) int
}

// ErrorHandler turns classified failures into retry, rollback, fail-fast or
// escalate decisions, and owns the per-operation circuit breakers and the
// read-path fallback ladder.
type ErrorHandler struct {
	breakers  *resilience.Registry
	snapshots snapshot.Store
	notifier  Notifier
	cache     *cache.Store
	pinger    Pinger
	logger    *logging.Logger
	now       func() time.Time

	readOnly     atomic.Bool
	probeStarted atomic.Bool
}

func NewErrorHandler(
	breakers *resilience.Registry,
	snapshots snapshot.Store,
	notifier Notifier,
	cacheStore *cache.Store,
	pinger Pinger,
	logger *logging.Logger,
) *ErrorHandler {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ErrorHandler{
		breakers:  breakers,
		snapshots: snapshots,
		notifier:  notifier,
		cache:     cacheStore,
		pinger:    pinger,
		logger:    logger,
		now:       time.Now,
	}
}

// Allow consults the circuit breaker of the named operation.
func (h *ErrorHandler) Allow(op string) error {
	if h.breakers == nil {
		return nil
	}
	return h.breakers.Allow(op)
}

func (h *ErrorHandler) RecordSuccess(op string) {
	if h.breakers != nil {
		h.breakers.RecordSuccess(op)
	}
}

// Handle classifies err, records the failure on the operation's breaker, and
// decides the follow-up action. Rollback and escalation side effects run
// before the decision is returned.
func (h *ErrorHandler) Handle(ctx context.Context, err error, jc JobContext) Decision {
	f := faults.Classify(err)

	if h.breakers != nil && jc.Operation != "" {
		h.breakers.RecordFailure(jc.Operation)
	}

	decision := h.decide(f, jc)
	switch decision.Action {
	case ActionRollback:
		restored, restoreErr := h.rollback(ctx, jc.LeagueID, jc.SeasonID)
		decision.RestoredSnapshotID = restored
		decision.RollbackFailed = restoreErr != nil
		if restoreErr != nil {
			h.logger.ErrorContext(ctx, "rollback restore failed",
				"job_id", jc.JobID, "league_id", jc.LeagueID, "season_id", jc.SeasonID, "error", restoreErr)
		}
	case ActionEscalate:
		h.notifier.Notify(ctx, Notification{
			Severity: f.Severity,
			Fault:    f,
			Job:      jc,
			At:       h.now(),
		})
	}

	h.logger.WarnContext(ctx, "failure handled",
		"job_id", jc.JobID,
		"fault_type", string(f.Type),
		"fault_code", f.Code,
		"severity", string(f.Severity),
		"retryable", f.Retryable,
		"action", string(decision.Action),
		"retry_count", jc.RetryCount,
	)
	return decision
}

func (h *ErrorHandler) decide(f *faults.Fault, jc JobContext) Decision {
	if h.breakers != nil && jc.Operation != "" && h.breakers.State(jc.Operation) == resilience.CircuitStateOpen {
		return Decision{Action: ActionFailFast}
	}
	if f.Type == faults.TypeCalculationError && f.Code == "DATA_INCONSISTENCY" {
		return Decision{Action: ActionRollback}
	}
	if f.Severity == faults.SeverityCritical {
		return Decision{Action: ActionEscalate}
	}
	if f.Retryable && jc.RetryCount < jc.MaxRetries {
		return Decision{Action: ActionRetryWithBackoff}
	}
	return Decision{Action: ActionFailFast}
}

// rollback restores the most recent snapshot of the pair.
func (h *ErrorHandler) rollback(ctx context.Context, leagueID, seasonID int) (string, error) {
	if h.snapshots == nil {
		return "", nil
	}
	list, err := h.snapshots.List(ctx, leagueID, seasonID)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", nil
	}

	latest := list[0].Metadata.SnapshotID
	if _, err := h.snapshots.Restore(ctx, latest); err != nil {
		return latest, err
	}
	return latest, nil
}

// TableWithFallback is the read-path ladder: live read, then latest snapshot,
// then an empty fallback table.
func (h *ErrorHandler) TableWithFallback(ctx context.Context, leagueID, seasonID int, read func(context.Context) ([]standings.Entry, error)) TableView {
	rows, err := read(ctx)
	if err == nil {
		return TableView{Entries: rows, ComputedAt: h.now().UTC(), Status: TableStatusOK}
	}
	h.logger.WarnContext(ctx, "table read failed, trying snapshot fallback",
		"league_id", leagueID, "season_id", seasonID, "error", err)

	if h.snapshots != nil {
		list, listErr := h.snapshots.List(ctx, leagueID, seasonID)
		if listErr == nil && len(list) > 0 {
			entries := list[0].Entries
			standings.SortAndRank(entries)
			return TableView{Entries: entries, ComputedAt: list[0].Metadata.CreatedAt, Status: TableStatusFallback}
		}
	}
	return TableView{Entries: []standings.Entry{}, ComputedAt: h.now().UTC(), Status: TableStatusFallback}
}

// ValidationFallback returns the cached table when it is at most maxAge old,
// else a direct read, else the empty fallback.
func (h *ErrorHandler) ValidationFallback(ctx context.Context, leagueID, seasonID int, maxAge time.Duration, read func(context.Context) ([]standings.Entry, error)) TableView {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	if h.cache != nil {
		if value, ok := h.cache.Get(ctx, cache.TableKey(leagueID, seasonID)); ok {
			if view, isView := value.(TableView); isView && h.now().Sub(view.ComputedAt) <= maxAge {
				return view
			}
		}
	}
	return h.TableWithFallback(ctx, leagueID, seasonID, read)
}

// HandleQueueOverload pauses the queue, purges LOW priority work, and
// schedules an automatic resume after cooldown.
func (h *ErrorHandler) HandleQueueOverload(ctx context.Context, queue QueueControl, cooldown time.Duration) int {
	if queue == nil {
		return 0
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	queue.Pause()
	purged := queue.ClearPriority(job.PriorityLow)
	h.logger.WarnContext(ctx, "queue overload fallback engaged",
		"purged_low_priority", purged, "cooldown", cooldown.String())

	timer := time.AfterFunc(cooldown, func() {
		queue.Resume()
		h.logger.Info("queue resumed after overload cooldown")
	})
	go func() {
		<-ctx.Done()
		timer.Stop()
	}()
	return purged
}

// ReadOnly reports whether the database-unavailable fallback is engaged.
func (h *ErrorHandler) ReadOnly() bool {
	return h.readOnly.Load()
}

// MarkDatabaseUnavailable flips the read-only flag and starts the periodic
// reachability probe. The probe clears the flag on the first success.
func (h *ErrorHandler) MarkDatabaseUnavailable(ctx context.Context, interval time.Duration) {
	h.readOnly.Store(true)
	if h.pinger == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if !h.probeStarted.CompareAndSwap(false, true) {
		return
	}

	go func() {
		defer h.probeStarted.Store(false)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !h.readOnly.Load() {
					return
				}
				if err := h.pinger.Ping(ctx); err == nil {
					h.readOnly.Store(false)
					h.logger.Info("database reachable again, read-only flag cleared")
					return
				}
			}
		}
	}()
}

// ResetBreaker forces the named operation's breaker closed.
func (h *ErrorHandler) ResetBreaker(op string) {
	if h.breakers != nil {
		h.breakers.Reset(op)
	}
}

// BreakerStates exposes the current breaker map for status endpoints.
func (h *ErrorHandler) BreakerStates() map[string]resilience.CircuitState {
	if h.breakers == nil {
		return map[string]resilience.CircuitState{}
	}
	return h.breakers.States()
}
