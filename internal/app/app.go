package app

import (
	"context"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/config"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/club"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/game"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/job"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/snapshot"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/standings"
	memoryrepo "github.com/headonpro/viktoria-wertheim-backend-sub010/internal/infrastructure/repository/memory"
	postgresrepo "github.com/headonpro/viktoria-wertheim-backend-sub010/internal/infrastructure/repository/postgres"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/infrastructure/snapshotstore"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/cache"
	idgen "github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/id"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/logging"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/resilience"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/usecase"
)

// snapshotRetentionInterval is how often expired snapshots are pruned.
const snapshotRetentionInterval = 6 * time.Hour

// txManager is the slice of the repository layer the wiring needs beyond the
// repositories themselves.
type txManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
}

// App is the fully wired calculation core. Without DATABASE_URL it runs on
// seeded in-memory repositories.
type App struct {
	Config config.Config
	Logger *logging.Logger

	Games  game.Repository
	Tables standings.Repository
	Clubs  club.Repository

	Cache        *cache.Store
	Snapshots    snapshot.Store
	Breakers     *resilience.Registry
	Handler      *usecase.ErrorHandler
	Calculations *usecase.CalculationService
	Queue        *usecase.QueueService
	GameSvc      *usecase.GameService

	closeDB func() error
}

// New wires the calculation core. Background maintenance (cache sweep,
// snapshot retention) runs until ctx is done.
func New(ctx context.Context, cfg config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	var tx txManager
	if cfg.UsesDatabase() {
		db, err := otelsqlx.Open("postgres", normalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary),
			otelsql.WithDBSystem("postgresql"),
			otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
			otelsql.WithQueryFormatter(formatDBQueryForTrace),
		)
		if err != nil {
			return nil, fmt.Errorf("open postgres connection: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}

		a.Games = postgresrepo.NewGameRepository(db)
		a.Tables = postgresrepo.NewTableRepository(db)
		a.Clubs = postgresrepo.NewClubRepository(db)
		tx = postgresrepo.NewTxManager(db)
		a.closeDB = db.Close
		logger.Info("postgres repositories ready", "database", dbNameFromURL(cfg.DBURL))
	} else {
		a.Games = memoryrepo.NewGameRepository(memoryrepo.SeedGames())
		a.Tables = memoryrepo.NewTableRepository()
		a.Clubs = memoryrepo.NewClubRepository(memoryrepo.SeedClubs())
		tx = memoryrepo.NewTxManager()
		logger.Info("in-memory repositories ready", "profile", cfg.AppEnv)
	}

	cacheEnabled := cfg.CacheEnabled && cfg.Features.Caching
	var cacheStore *cache.Store
	if cacheEnabled {
		cacheStore = cache.NewStore(cfg.CacheDefaultTTL)
		cacheStore.StartSweeper(ctx, cfg.CacheSweepInterval)
		a.Cache = cacheStore
	}

	if cfg.Features.SnapshotCreation {
		store, err := snapshotstore.NewFileStore(snapshotstore.Config{
			Dir:                cfg.SnapshotDirectory,
			MaxSnapshots:       cfg.SnapshotMaxCount,
			CompressionEnabled: cfg.SnapshotCompressionEnabled,
			ChecksumEnabled:    cfg.SnapshotChecksumEnabled,
			ProductionMode:     cfg.AppEnv == config.EnvProd,
		}, a.Tables, tx, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("build snapshot store: %w", err)
		}
		a.Snapshots = store
		a.startSnapshotRetention(ctx, store)
	}

	a.Breakers = resilience.NewRegistry(resilience.CircuitBreakerConfig{
		Enabled:          cfg.CircuitEnabled && cfg.Features.CircuitBreaker,
		FailureThreshold: cfg.CircuitFailureThreshold,
		OpenTimeout:      cfg.CircuitOpenTimeout,
	})

	a.Handler = usecase.NewErrorHandler(a.Breakers, a.Snapshots, nil, cacheStore, tx, logger)

	a.Calculations = usecase.NewCalculationService(
		a.Games, a.Tables, a.Clubs, tx, a.Snapshots, cacheStore,
		usecase.CalculationConfig{
			Timeout:                   cfg.CalculationTimeout,
			MaxTeamsPerLeague:         cfg.CalculationMaxTeams,
			CacheEnabled:              cacheEnabled,
			TableTTL:                  cfg.CacheTableDataTTL,
			SnapshotBeforeCalculation: a.Snapshots != nil,
		},
		logger,
	)

	queue, err := usecase.NewQueueService(queueConfig(cfg), a.Calculations, a.Handler, idgen.NewRandomGenerator(), logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("build queue service: %w", err)
	}
	a.Queue = queue
	if !cfg.Features.QueueProcessing {
		queue.Pause()
		logger.Warn("queue processing disabled, jobs accumulate until resumed")
	}

	a.GameSvc = usecase.NewGameService(a.Games, queue, logger)

	return a, nil
}

// Shutdown drains the queue and releases the database connection.
func (a *App) Shutdown(ctx context.Context) error {
	var queueErr error
	if a.Queue != nil {
		queueErr = a.Queue.Shutdown(ctx)
	}
	a.close()
	return queueErr
}

func (a *App) close() {
	if a.closeDB != nil {
		if err := a.closeDB(); err != nil {
			a.Logger.Error("close database", "error", err)
		}
		a.closeDB = nil
	}
}

func (a *App) startSnapshotRetention(ctx context.Context, store snapshot.Store) {
	maxAgeDays := a.Config.SnapshotMaxAgeDays
	if maxAgeDays < 1 {
		return
	}
	go func() {
		ticker := time.NewTicker(snapshotRetentionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := store.DeleteOlderThan(ctx, maxAgeDays)
				if err != nil {
					a.Logger.WarnContext(ctx, "snapshot retention sweep failed", "error", err)
					continue
				}
				if deleted > 0 {
					a.Logger.InfoContext(ctx, "snapshot retention sweep", "deleted", deleted, "maxAgeDays", maxAgeDays)
				}
			}
		}
	}()
}

func queueConfig(cfg config.Config) usecase.QueueConfig {
	return usecase.QueueConfig{
		Concurrency:      cfg.QueueConcurrency,
		MaxRetries:       cfg.QueueMaxRetries,
		RetryDelay:       cfg.QueueRetryDelay,
		MaxRetryDelay:    cfg.QueueMaxRetryDelay,
		JobTimeout:       cfg.QueueJobTimeout,
		MaxPendingJobs:   cfg.QueueMaxPendingJobs,
		MaxCompletedJobs: cfg.QueueMaxCompletedJobs,
		MaxFailedJobs:    cfg.QueueMaxFailedJobs,
		DefaultPriority:  job.Priority(cfg.QueueDefaultPriority),
		PriorityByTrigger: map[job.Trigger]job.Priority{
			job.TriggerGameResult: job.Priority(cfg.QueuePriorityGameResult),
			job.TriggerManual:     job.Priority(cfg.QueuePriorityManual),
			job.TriggerScheduled:  job.Priority(cfg.QueuePriorityScheduled),
		},
		AutomaticCalculation: cfg.Features.AutomaticCalculation,
	}
}
