package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/club"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/game"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/snapshot"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/standings"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/cache"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/faults"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/logging"
)

// TxRunner runs fn inside one transaction; repository calls within fn join it.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TableView is the cached read model of one league-season table.
type TableView struct {
	Entries    []standings.Entry `json:"entries"`
	ComputedAt time.Time         `json:"computedAt"`
	Status     string            `json:"status"`
}

const (
	TableStatusOK       = "ok"
	TableStatusFallback = "fallback"
)

type CalculationConfig struct {
	// Timeout bounds one calculation; zero disables the deadline.
	Timeout           time.Duration
	MaxTeamsPerLeague int
	CacheEnabled      bool
	TableTTL          time.Duration
	// SnapshotBeforeCalculation archives the table before every run.
	SnapshotBeforeCalculation bool
}

// CalculationService recomputes the standings of one league-season from its
// finished games, atomically, and serves the cached read path.
type CalculationService struct {
	games     game.Repository
	entries   standings.Repository
	clubs     club.Repository
	tx        TxRunner
	snapshots snapshot.Store
	cache     *cache.Store
	cfg       CalculationConfig
	logger    *logging.Logger
	now       func() time.Time
}

func NewCalculationService(
	games game.Repository,
	entries standings.Repository,
	clubs club.Repository,
	tx TxRunner,
	snapshots snapshot.Store,
	cacheStore *cache.Store,
	cfg CalculationConfig,
	logger *logging.Logger,
) *CalculationService {
	if cfg.MaxTeamsPerLeague < 1 {
		cfg.MaxTeamsPerLeague = 24
	}
	if cfg.TableTTL <= 0 {
		cfg.TableTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &CalculationService{
		games:     games,
		entries:   entries,
		clubs:     clubs,
		tx:        tx,
		snapshots: snapshots,
		cache:     cacheStore,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Calculate recomputes and persists the full table for (leagueID, seasonID).
// The read-compute-write sequence runs under one transaction; on success the
// cached views of the pair are invalidated.
func (s *CalculationService) Calculate(ctx context.Context, leagueID, seasonID int) ([]standings.Entry, error) {
	if leagueID < 1 || seasonID < 1 {
		return nil, fmt.Errorf("%w: league=%d season=%d", ErrInvalidInput, leagueID, seasonID)
	}

	ctx, span := startSpan(ctx, "calculation.calculate")
	defer span.End()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	if s.cfg.SnapshotBeforeCalculation && s.snapshots != nil {
		if _, err := s.snapshots.Create(ctx, leagueID, seasonID, "pre-calculation"); err != nil {
			return nil, fmt.Errorf("pre-calculation snapshot: %w", err)
		}
	}

	started := s.now()
	var result []standings.Entry
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		computed, err := s.compute(ctx, leagueID, seasonID)
		if err != nil {
			return err
		}
		if err := s.entries.ReplaceSeason(ctx, leagueID, seasonID, computed); err != nil {
			return faults.Wrap(faults.TypeDatabaseError, err, fmt.Sprintf("write table league=%d season=%d", leagueID, seasonID))
		}
		result = computed
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, leagueID, seasonID)
	s.logger.InfoContext(ctx, "table calculated",
		"league_id", leagueID,
		"season_id", seasonID,
		"entries", len(result),
		"duration_ms", s.now().Sub(started).Milliseconds(),
	)
	return result, nil
}

// compute builds the ordered entry list from the finished games of the pair.
// Runs inside the caller's transaction.
func (s *CalculationService) compute(ctx context.Context, leagueID, seasonID int) ([]standings.Entry, error) {
	finished, err := s.games.ListFinished(ctx, leagueID, seasonID)
	if err != nil {
		return nil, faults.Wrap(faults.TypeDatabaseError, err, fmt.Sprintf("read finished games league=%d season=%d", leagueID, seasonID))
	}

	clubIDs := make([]int, 0)
	seen := make(map[int]bool)
	for _, g := range finished {
		if g.HomeClubID == g.AwayClubID {
			return nil, dataInconsistency(fmt.Sprintf("game %d has identical clubs", g.ID)).
				WithContext("game_id", g.ID)
		}
		if !g.HasResult() {
			return nil, dataInconsistency(fmt.Sprintf("finished game %d lacks a result", g.ID)).
				WithContext("game_id", g.ID)
		}
		for _, id := range []int{g.HomeClubID, g.AwayClubID} {
			if !seen[id] {
				seen[id] = true
				clubIDs = append(clubIDs, id)
			}
		}
	}
	if len(clubIDs) > s.cfg.MaxTeamsPerLeague {
		return nil, faults.New(faults.TypeCalculationError,
			fmt.Sprintf("league %d has %d participating clubs, cap is %d", leagueID, len(clubIDs), s.cfg.MaxTeamsPerLeague))
	}

	existing, err := s.entries.ListSeason(ctx, leagueID, seasonID)
	if err != nil {
		return nil, faults.Wrap(faults.TypeDatabaseError, err, fmt.Sprintf("read current table league=%d season=%d", leagueID, seasonID))
	}
	existingByClub := make(map[int]standings.Entry, len(existing))
	for _, e := range existing {
		existingByClub[e.ClubID] = e
	}

	now := s.now().UTC()
	out := make([]standings.Entry, 0, len(clubIDs))
	for _, clubID := range clubIDs {
		name, err := s.resolveClub(ctx, clubID, leagueID, existingByClub)
		if err != nil {
			return nil, err
		}

		entry := standings.Entry{
			LeagueID:       leagueID,
			SeasonID:       seasonID,
			ClubID:         clubID,
			ClubName:       name,
			AutoCalculated: true,
			Source:         standings.SourceAutomatic,
			LastUpdated:    now,
		}
		if prev, ok := existingByClub[clubID]; ok {
			entry.ID = prev.ID
		}

		for _, g := range finished {
			gf, ga, ok := g.GoalsFor(clubID)
			if !ok {
				continue
			}
			entry.Played++
			switch {
			case gf > ga:
				entry.Wins++
			case gf == ga:
				entry.Draws++
			default:
				entry.Losses++
			}
			entry.GoalsFor += gf
			entry.GoalsAgainst += ga
		}
		entry.GoalDifference = entry.GoalsFor - entry.GoalsAgainst
		entry.Points = 3*entry.Wins + entry.Draws

		if err := entry.Validate(); err != nil {
			return nil, dataInconsistency(err.Error())
		}
		out = append(out, entry)
	}

	standings.SortAndRank(out)
	return out, nil
}

// resolveClub repeats the club existence check defensively and returns the
// display name.
func (s *CalculationService) resolveClub(ctx context.Context, clubID, leagueID int, existing map[int]standings.Entry) (string, error) {
	c, ok, err := s.clubs.GetByID(ctx, clubID)
	if err != nil {
		return "", faults.Wrap(faults.TypeDatabaseError, err, fmt.Sprintf("resolve club %d", clubID))
	}
	if !ok {
		if prev, has := existing[clubID]; has && prev.ClubName != "" {
			return prev.ClubName, nil
		}
		return "", dataInconsistency(fmt.Sprintf("club %d plays in league %d but does not exist", clubID, leagueID)).
			WithContext("club_id", clubID)
	}
	if !c.Active {
		return "", dataInconsistency(fmt.Sprintf("club %d (%s) is inactive", clubID, c.Name)).
			WithContext("club_id", clubID)
	}
	return c.Name, nil
}

// GetTable serves the read path through the cache, collapsing concurrent
// loads per key.
func (s *CalculationService) GetTable(ctx context.Context, leagueID, seasonID int) (TableView, error) {
	if leagueID < 1 || seasonID < 1 {
		return TableView{}, fmt.Errorf("%w: league=%d season=%d", ErrInvalidInput, leagueID, seasonID)
	}

	loader := func(ctx context.Context) (any, error) {
		rows, err := s.entries.ListSeason(ctx, leagueID, seasonID)
		if err != nil {
			return TableView{}, err
		}
		return TableView{Entries: rows, ComputedAt: s.now().UTC(), Status: TableStatusOK}, nil
	}

	if !s.cfg.CacheEnabled || s.cache == nil {
		value, err := loader(ctx)
		if err != nil {
			return TableView{}, err
		}
		return value.(TableView), nil
	}

	value, err := s.cache.GetOrLoad(ctx, cache.TableKey(leagueID, seasonID), s.cfg.TableTTL, loader)
	if err != nil {
		return TableView{}, err
	}
	view, ok := value.(TableView)
	if !ok {
		return TableView{}, fmt.Errorf("unexpected cached value for table %d/%d", leagueID, seasonID)
	}
	return view, nil
}

// invalidate drops every cached view of the pair, one pattern call each for
// table data and team stats.
func (s *CalculationService) invalidate(ctx context.Context, leagueID, seasonID int) {
	if !s.cfg.CacheEnabled || s.cache == nil {
		return
	}
	dropped := s.cache.InvalidatePattern(ctx, cache.TablePattern(leagueID, seasonID))
	dropped += s.cache.InvalidatePattern(ctx, cache.TeamStatsPattern(leagueID, seasonID))
	if dropped > 0 {
		s.logger.DebugContext(ctx, "cache invalidated", "league_id", leagueID, "season_id", seasonID, "keys", dropped)
	}
}

// TeamStats aggregates one club's row plus its finished games, cached under
// the team-stats key.
func (s *CalculationService) TeamStats(ctx context.Context, clubID, leagueID, seasonID int) (standings.Entry, []game.Game, error) {
	type stats struct {
		Entry standings.Entry
		Games []game.Game
	}

	loader := func(ctx context.Context) (any, error) {
		rows, err := s.entries.ListSeason(ctx, leagueID, seasonID)
		if err != nil {
			return nil, err
		}
		var entry standings.Entry
		found := false
		for _, e := range rows {
			if e.ClubID == clubID {
				entry = e
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: club %d in league %d season %d", ErrNotFound, clubID, leagueID, seasonID)
		}

		finished, err := s.games.ListFinished(ctx, leagueID, seasonID)
		if err != nil {
			return nil, err
		}
		own := make([]game.Game, 0)
		for _, g := range finished {
			if g.Involves(clubID) {
				own = append(own, g)
			}
		}
		return stats{Entry: entry, Games: own}, nil
	}

	var value any
	var err error
	if s.cfg.CacheEnabled && s.cache != nil {
		value, err = s.cache.GetOrLoad(ctx, cache.TeamStatsKey(clubID, leagueID, seasonID), s.cfg.TableTTL, loader)
	} else {
		value, err = loader(ctx)
	}
	if err != nil {
		return standings.Entry{}, nil, err
	}
	st := value.(stats)
	return st.Entry, st.Games, nil
}

func dataInconsistency(message string) *faults.Fault {
	return faults.New(faults.TypeCalculationError, message).WithCode("DATA_INCONSISTENCY")
}
