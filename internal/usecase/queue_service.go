package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/panjf2000/ants/v2"
	"github.com/sourcegraph/conc"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/job"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/standings"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/faults"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/id"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/logging"
)

// OpCalculation is the breaker operation name for calculation jobs.
const OpCalculation = "calculation"

// CalculationRunner is the queue's only dependency on the engine.
type CalculationRunner interface {
	Calculate(ctx context.Context, leagueID, seasonID int) ([]standings.Entry, error)
}

type QueueConfig struct {
	Concurrency   int
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// JobTimeout bounds one calculation through its context deadline; the
	// transaction concludes by its own error path when the driver observes
	// cancellation.
	JobTimeout       time.Duration
	MaxPendingJobs   int
	MaxCompletedJobs int
	MaxFailedJobs    int
	DefaultPriority  job.Priority
	PriorityByTrigger map[job.Trigger]job.Priority
	// AutomaticCalculation gates GAME_RESULT enqueues.
	AutomaticCalculation bool
}

func normalizeQueueConfig(cfg QueueConfig) QueueConfig {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 2
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 30 * time.Second
	}
	if cfg.MaxPendingJobs < 1 {
		cfg.MaxPendingJobs = 100
	}
	if cfg.MaxCompletedJobs < 1 {
		cfg.MaxCompletedJobs = 50
	}
	if cfg.MaxFailedJobs < 1 {
		cfg.MaxFailedJobs = 50
	}
	if cfg.DefaultPriority == "" {
		cfg.DefaultPriority = job.PriorityNormal
	}
	if cfg.PriorityByTrigger == nil {
		cfg.PriorityByTrigger = map[job.Trigger]job.Priority{
			job.TriggerGameResult: job.PriorityHigh,
			job.TriggerManual:     job.PriorityNormal,
			job.TriggerScheduled:  job.PriorityLow,
		}
	}
	return cfg
}

// EnqueueRequest is the validated enqueue boundary.
type EnqueueRequest struct {
	LeagueID    int    `validate:"required,gt=0"`
	SeasonID    int    `validate:"required,gt=0"`
	Priority    string `validate:"omitempty,oneof=high normal low"`
	Trigger     string `validate:"omitempty,oneof=game_result manual scheduled"`
	Description string `validate:"max=500"`
}

// QueueStatus is the point-in-time view of the queue.
type QueueStatus struct {
	Running               bool
	Paused                bool
	TotalJobs             int
	PendingJobs           int
	ProcessingJobs        int
	CompletedJobs         int
	FailedJobs            int
	HighPriorityDepth     int
	NormalPriorityDepth   int
	LowPriorityDepth      int
	AverageProcessingTime time.Duration
	LastProcessedAt       *time.Time
}

type QueueMetrics struct {
	TotalProcessed        int64
	SuccessRate           float64
	ErrorRate             float64
	RetryRate             float64
	TimeoutRate           float64
	DeadLetterCount       int
	AverageProcessingTime time.Duration
}

type pairKey struct {
	leagueID int
	seasonID int
}

var priorityOrder = [...]job.Priority{job.PriorityHigh, job.PriorityNormal, job.PriorityLow}

// QueueService schedules table calculations: three priority FIFOs, one active
// lock per (league, season), a bounded worker pool, exponential retry backoff
// and a dead-letter area for terminal failures.
type QueueService struct {
	cfg     QueueConfig
	runner  CalculationRunner
	handler *ErrorHandler
	ids     id.Generator
	logger  *logging.Logger
	now     func() time.Time

	mu          sync.Mutex
	cond        *sync.Cond
	queues      map[job.Priority][]string
	jobs        map[string]*job.Job
	activeLocks map[pairKey]string
	deadLetter  []job.Job
	backoffs    map[string]*backoff.ExponentialBackOff
	completedOrder []string
	failedOrder    []string
	paused      bool
	stopped     bool
	inflight    int
	lastProcessedAt *time.Time

	totalProcessed int64
	totalSucceeded int64
	totalFailed    int64
	totalRetries   int64
	totalTimeouts  int64
	totalDuration  time.Duration

	pool     *ants.Pool
	wake     chan struct{}
	baseCtx  context.Context
	cancel   context.CancelFunc
	wg       conc.WaitGroup
	validate *validator.Validate
}

func NewQueueService(cfg QueueConfig, runner CalculationRunner, handler *ErrorHandler, ids id.Generator, logger *logging.Logger) (*QueueService, error) {
	cfg = normalizeQueueConfig(cfg)
	if runner == nil {
		return nil, errors.New("calculation runner is required")
	}
	if handler == nil {
		return nil, errors.New("error handler is required")
	}
	if ids == nil {
		ids = id.NewRandomGenerator()
	}
	if logger == nil {
		logger = logging.Default()
	}

	pool, err := ants.NewPool(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &QueueService{
		cfg:     cfg,
		runner:  runner,
		handler: handler,
		ids:     ids,
		logger:  logger,
		now:     time.Now,

		queues:      make(map[job.Priority][]string),
		jobs:        make(map[string]*job.Job),
		activeLocks: make(map[pairKey]string),
		backoffs:    make(map[string]*backoff.ExponentialBackOff),

		pool:     pool,
		wake:     make(chan struct{}, 1),
		baseCtx:  ctx,
		cancel:   cancel,
		validate: validator.New(),
	}
	s.cond = sync.NewCond(&s.mu)

	s.wg.Go(func() { s.dispatch() })
	return s, nil
}

// Enqueue schedules a calculation for the pair. A second enqueue while a job
// for the same pair is active coalesces: the active job's id is returned and
// no new job is created.
func (s *QueueService) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if err := s.validate.Struct(req); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	trigger := job.Trigger(req.Trigger)
	if trigger == "" {
		trigger = job.TriggerManual
	}
	if trigger == job.TriggerGameResult && !s.cfg.AutomaticCalculation {
		return "", ErrCalculationDisabled
	}

	priority, ok := job.ParsePriority(req.Priority)
	if !ok {
		priority = s.cfg.PriorityByTrigger[trigger]
		if priority == "" {
			priority = s.cfg.DefaultPriority
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return "", ErrQueueStopped
	}

	key := pairKey{req.LeagueID, req.SeasonID}
	if activeID, held := s.activeLocks[key]; held {
		// Coalesce: the earliest job keeps its priority and id.
		return activeID, nil
	}

	if s.pendingLocked() >= s.cfg.MaxPendingJobs {
		return "", faults.New(faults.TypeQueueFull,
			fmt.Sprintf("queue full: %d pending jobs", s.pendingLocked()))
	}

	jobID, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}

	j := &job.Job{
		ID:          jobID,
		LeagueID:    req.LeagueID,
		SeasonID:    req.SeasonID,
		Priority:    priority,
		Trigger:     trigger,
		Status:      job.StatusPending,
		Description: req.Description,
		CreatedAt:   s.now(),
	}
	s.jobs[jobID] = j
	s.activeLocks[key] = jobID
	s.queues[priority] = append(s.queues[priority], jobID)

	s.logger.DebugContext(ctx, "job enqueued",
		"job_id", jobID, "league_id", req.LeagueID, "season_id", req.SeasonID,
		"priority", string(priority), "trigger", string(trigger))

	s.signal()
	return jobID, nil
}

// dispatch is the single dispatcher loop. It drains HIGH before NORMAL before
// LOW and hands jobs to the worker pool; Submit blocks while all workers are
// busy, so priority is decided at dispatch boundaries only.
func (s *QueueService) dispatch() {
	for {
		select {
		case <-s.baseCtx.Done():
			return
		case <-s.wake:
		}

		for {
			jobID, ok := s.popLocked()
			if !ok {
				break
			}
			next := jobID
			if err := s.pool.Submit(func() { s.process(next) }); err != nil {
				s.requeueFront(next)
				return
			}
		}
	}
}

func (s *QueueService) popLocked() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused || s.stopped {
		return "", false
	}
	for _, p := range priorityOrder {
		q := s.queues[p]
		if len(q) == 0 {
			continue
		}
		jobID := q[0]
		s.queues[p] = q[1:]
		return jobID, true
	}
	return "", false
}

func (s *QueueService) requeueFront(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return
	}
	s.queues[j.Priority] = append([]string{jobID}, s.queues[j.Priority]...)
}

func (s *QueueService) process(jobID string) {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok || j.Status != job.StatusPending {
		s.mu.Unlock()
		return
	}
	started := s.now()
	j.Status = job.StatusProcessing
	j.StartedAt = &started
	s.inflight++
	current := j.Clone()
	s.mu.Unlock()

	if allowErr := s.handler.Allow(OpCalculation); allowErr != nil {
		f := faults.New(faults.TypeServiceUnavailable, "calculation short-circuited by open circuit breaker")
		s.finishFailed(current.ID, f, false)
		return
	}

	runErr := s.run(current)
	if runErr == nil {
		s.handler.RecordSuccess(OpCalculation)
		s.finishCompleted(current.ID, started)
		return
	}

	timedOut := errors.Is(runErr, context.DeadlineExceeded)
	s.mu.Lock()
	j, ok = s.jobs[current.ID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if timedOut {
		j.TimeoutCount++
		s.totalTimeouts++
	}
	f := faults.Classify(runErr)
	if timedOut && f.Type == faults.TypeTimeoutError {
		f = faults.Wrap(faults.TypeJobTimeout, runErr,
			fmt.Sprintf("job %s exceeded its %s deadline", current.ID, s.cfg.JobTimeout))
	}
	j.RecordFailure(job.FailureRecord{
		Type:      f.Type,
		Code:      f.Code,
		Severity:  f.Severity,
		Retryable: f.Retryable,
		Message:   f.Message,
		At:        s.now(),
	})
	retryCount := j.RetryCount
	s.mu.Unlock()

	decision := s.handler.Handle(s.baseCtx, f, JobContext{
		JobID:      current.ID,
		LeagueID:   current.LeagueID,
		SeasonID:   current.SeasonID,
		Operation:  OpCalculation,
		RetryCount: retryCount,
		MaxRetries: s.cfg.MaxRetries,
	})

	if decision.Action == ActionRetryWithBackoff {
		s.scheduleRetry(current.ID)
		return
	}
	s.finishFailed(current.ID, f, true)
}

// run executes the calculation under the per-job deadline.
func (s *QueueService) run(j job.Job) error {
	ctx := s.baseCtx
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}
	_, err := s.runner.Calculate(ctx, j.LeagueID, j.SeasonID)
	return err
}

func (s *QueueService) finishCompleted(jobID string, started time.Time) {
	now := s.now()
	duration := now.Sub(started)

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		s.inflightDoneLocked()
		return
	}
	j.Status = job.StatusCompleted
	j.CompletedAt = &now

	s.totalProcessed++
	s.totalSucceeded++
	s.totalDuration += duration
	s.lastProcessedAt = &now

	s.releaseLocked(j)
	s.completedOrder = append(s.completedOrder, jobID)
	s.trimCompletedLocked()
	s.inflightDoneLocked()

	s.logger.Info("job completed",
		"job_id", jobID, "league_id", j.LeagueID, "season_id", j.SeasonID,
		"duration_ms", duration.Milliseconds(), "retries", j.RetryCount)
	s.signal()
}

// finishFailed moves the job to the dead-letter area and releases its lock so
// fresh work for the pair can enqueue.
func (s *QueueService) finishFailed(jobID string, f *faults.Fault, counted bool) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		s.inflightDoneLocked()
		return
	}
	j.Status = job.StatusFailed
	j.CompletedAt = &now
	if !counted {
		j.RecordFailure(job.FailureRecord{
			Type:      f.Type,
			Code:      f.Code,
			Severity:  f.Severity,
			Retryable: f.Retryable,
			Message:   f.Message,
			At:        now,
		})
	}

	s.totalProcessed++
	s.totalFailed++
	s.lastProcessedAt = &now

	s.deadLetter = append(s.deadLetter, j.Clone())
	s.failedOrder = append(s.failedOrder, jobID)
	s.trimFailedLocked()

	s.releaseLocked(j)
	s.inflightDoneLocked()

	s.logger.Warn("job moved to dead letter",
		"job_id", jobID, "league_id", j.LeagueID, "season_id", j.SeasonID,
		"fault_type", string(f.Type), "retries", j.RetryCount)
	s.signal()
}

// scheduleRetry re-dispatches the job after its next backoff delay. The pair
// lock stays held across the wait.
func (s *QueueService) scheduleRetry(jobID string) {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.inflightDoneLocked()
		s.mu.Unlock()
		return
	}
	j.RetryCount++
	j.Status = job.StatusPending
	j.StartedAt = nil
	s.totalRetries++
	delay := s.nextDelayLocked(jobID)
	retries := j.RetryCount
	s.inflightDoneLocked()
	s.mu.Unlock()

	s.logger.Info("job retry scheduled",
		"job_id", jobID, "retry", retries, "delay_ms", delay.Milliseconds())

	s.wg.Go(func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-s.baseCtx.Done():
			return
		case <-timer.C:
		}

		s.mu.Lock()
		if j, ok := s.jobs[jobID]; ok && j.Status == job.StatusPending {
			s.queues[j.Priority] = append(s.queues[j.Priority], jobID)
		}
		s.mu.Unlock()
		s.signal()
	})
}

// nextDelayLocked draws the job's next exponential delay: base doubling per
// attempt with 10% jitter, capped at MaxRetryDelay.
func (s *QueueService) nextDelayLocked(jobID string) time.Duration {
	b, ok := s.backoffs[jobID]
	if !ok {
		b = backoff.NewExponentialBackOff()
		b.InitialInterval = s.cfg.RetryDelay
		b.RandomizationFactor = 0.1
		b.Multiplier = 2
		b.MaxInterval = s.cfg.MaxRetryDelay
		b.MaxElapsedTime = 0
		b.Reset()
		s.backoffs[jobID] = b
	}
	return b.NextBackOff()
}

func (s *QueueService) releaseLocked(j *job.Job) {
	key := pairKey{j.LeagueID, j.SeasonID}
	if s.activeLocks[key] == j.ID {
		delete(s.activeLocks, key)
	}
	delete(s.backoffs, j.ID)
}

func (s *QueueService) inflightDoneLocked() {
	if s.inflight > 0 {
		s.inflight--
	}
	s.cond.Broadcast()
}

func (s *QueueService) trimCompletedLocked() {
	for len(s.completedOrder) > s.cfg.MaxCompletedJobs {
		victim := s.completedOrder[0]
		s.completedOrder = s.completedOrder[1:]
		delete(s.jobs, victim)
	}
}

// trimFailedLocked enforces the failed-job history cap: the oldest failure
// leaves the dead letter and the job map together.
func (s *QueueService) trimFailedLocked() {
	for len(s.failedOrder) > s.cfg.MaxFailedJobs {
		victim := s.failedOrder[0]
		s.failedOrder = s.failedOrder[1:]
		s.dropDeadLetterLocked(victim)
		delete(s.jobs, victim)
	}
}

// dropFailedOrderLocked removes a revived job from the failed-history order so
// a later trim cannot evict it while it is live again.
func (s *QueueService) dropFailedOrderLocked(jobID string) {
	for i, id := range s.failedOrder {
		if id == jobID {
			s.failedOrder = append(s.failedOrder[:i], s.failedOrder[i+1:]...)
			return
		}
	}
}

func (s *QueueService) pendingLocked() int {
	n := 0
	for _, j := range s.jobs {
		if j.Status == job.StatusPending {
			n++
		}
	}
	return n
}

func (s *QueueService) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pause stops new dispatches; in-flight jobs complete.
func (s *QueueService) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

func (s *QueueService) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.signal()
}

// Clear waits for in-flight jobs to end, then discards every pending job and
// releases its lock.
func (s *QueueService) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.inflight > 0 {
		s.cond.Wait()
	}

	discarded := 0
	for jobID, j := range s.jobs {
		if j.Status != job.StatusPending {
			continue
		}
		s.releaseLocked(j)
		delete(s.jobs, jobID)
		discarded++
	}
	for _, p := range priorityOrder {
		s.queues[p] = nil
	}
	return discarded
}

// ClearPriority discards pending jobs of one priority class; used by the
// overload fallback to shed LOW work.
func (s *QueueService) ClearPriority(p job.Priority) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	discarded := 0
	for _, jobID := range s.queues[p] {
		j, ok := s.jobs[jobID]
		if !ok || j.Status != job.StatusPending {
			continue
		}
		s.releaseLocked(j)
		delete(s.jobs, jobID)
		discarded++
	}
	s.queues[p] = nil
	return discarded
}

func (s *QueueService) GetJob(jobID string) (job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[jobID]; ok {
		return j.Clone(), true
	}
	for _, dead := range s.deadLetter {
		if dead.ID == jobID {
			return dead.Clone(), true
		}
	}
	return job.Job{}, false
}

// GetHistory returns the league's terminal jobs, newest first.
func (s *QueueService) GetHistory(leagueID, limit int) []job.Job {
	if limit < 1 {
		limit = 20
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]job.Job, 0)
	for _, j := range s.jobs {
		if j.LeagueID == leagueID && j.Terminal() {
			out = append(out, j.Clone())
		}
	}
	sortJobsNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *QueueService) GetDeadLetter() []job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]job.Job, 0, len(s.deadLetter))
	for _, j := range s.deadLetter {
		out = append(out, j.Clone())
	}
	return out
}

// ReprocessDeadLetter moves a dead-letter job back into the queue with a
// fresh retry budget.
func (s *QueueService) ReprocessDeadLetter(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, dead := range s.deadLetter {
		if dead.ID == jobID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: dead-letter job %s", ErrNotFound, jobID)
	}

	dead := s.deadLetter[idx]
	key := pairKey{dead.LeagueID, dead.SeasonID}
	if _, held := s.activeLocks[key]; held {
		return faults.New(faults.TypeQueueError,
			fmt.Sprintf("league %d season %d already has an active job", dead.LeagueID, dead.SeasonID))
	}

	s.deadLetter = append(s.deadLetter[:idx], s.deadLetter[idx+1:]...)
	s.dropFailedOrderLocked(jobID)

	revived := dead.Clone()
	revived.Status = job.StatusPending
	revived.RetryCount = 0
	revived.StartedAt = nil
	revived.CompletedAt = nil
	s.jobs[jobID] = &revived
	s.activeLocks[key] = jobID
	s.queues[revived.Priority] = append(s.queues[revived.Priority], jobID)

	s.signal()
	return nil
}

func (s *QueueService) ClearDeadLetter() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.deadLetter)
	for _, jobID := range s.failedOrder {
		delete(s.jobs, jobID)
	}
	s.failedOrder = nil
	s.deadLetter = nil
	return n
}

// RetryFailedJob re-enqueues a FAILED job that is still in the job map.
func (s *QueueService) RetryFailedJob(jobID string) error {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if ok && j.Status == job.StatusFailed {
		key := pairKey{j.LeagueID, j.SeasonID}
		if _, held := s.activeLocks[key]; held {
			s.mu.Unlock()
			return faults.New(faults.TypeQueueError,
				fmt.Sprintf("league %d season %d already has an active job", j.LeagueID, j.SeasonID))
		}
		j.Status = job.StatusPending
		j.RetryCount = 0
		j.StartedAt = nil
		j.CompletedAt = nil
		s.activeLocks[key] = jobID
		s.queues[j.Priority] = append(s.queues[j.Priority], jobID)
		s.dropDeadLetterLocked(jobID)
		s.dropFailedOrderLocked(jobID)
		s.mu.Unlock()
		s.signal()
		return nil
	}
	s.mu.Unlock()

	return s.ReprocessDeadLetter(jobID)
}

func (s *QueueService) dropDeadLetterLocked(jobID string) {
	for i, dead := range s.deadLetter {
		if dead.ID == jobID {
			s.deadLetter = append(s.deadLetter[:i], s.deadLetter[i+1:]...)
			return
		}
	}
}

func (s *QueueService) GetStatus() QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := QueueStatus{
		Running:             !s.stopped,
		Paused:              s.paused,
		TotalJobs:           len(s.jobs),
		HighPriorityDepth:   len(s.queues[job.PriorityHigh]),
		NormalPriorityDepth: len(s.queues[job.PriorityNormal]),
		LowPriorityDepth:    len(s.queues[job.PriorityLow]),
		LastProcessedAt:     s.lastProcessedAt,
	}
	for _, j := range s.jobs {
		switch j.Status {
		case job.StatusPending:
			st.PendingJobs++
		case job.StatusProcessing:
			st.ProcessingJobs++
		case job.StatusCompleted:
			st.CompletedJobs++
		case job.StatusFailed:
			st.FailedJobs++
		}
	}
	if s.totalSucceeded > 0 {
		st.AverageProcessingTime = s.totalDuration / time.Duration(s.totalSucceeded)
	}
	return st
}

func (s *QueueService) GetMetrics() QueueMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := QueueMetrics{
		TotalProcessed:  s.totalProcessed,
		DeadLetterCount: len(s.deadLetter),
	}
	if s.totalProcessed > 0 {
		m.SuccessRate = float64(s.totalSucceeded) / float64(s.totalProcessed) * 100
		m.ErrorRate = float64(s.totalFailed) / float64(s.totalProcessed) * 100
		m.RetryRate = float64(s.totalRetries) / float64(s.totalProcessed) * 100
		m.TimeoutRate = float64(s.totalTimeouts) / float64(s.totalProcessed) * 100
	}
	if s.totalSucceeded > 0 {
		m.AverageProcessingTime = s.totalDuration / time.Duration(s.totalSucceeded)
	}
	return m
}

// Shutdown stops dispatching, waits for in-flight jobs and retry timers, and
// releases the worker pool.
func (s *QueueService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.signal()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.mu.Lock()
		for s.inflight > 0 {
			s.cond.Wait()
		}
		s.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.pool.Release()
		return ctx.Err()
	}

	s.pool.Release()
	return nil
}

func sortJobsNewestFirst(jobs []job.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return after(jobs[i], jobs[j])
	})
}

func after(a, b job.Job) bool {
	at, bt := a.CreatedAt, b.CreatedAt
	if a.CompletedAt != nil {
		at = *a.CompletedAt
	}
	if b.CompletedAt != nil {
		bt = *b.CompletedAt
	}
	return at.After(bt)
}
