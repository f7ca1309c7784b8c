package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/game"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/job"
	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/platform/logging"
)

// Enqueuer is the slice of the queue the game service needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (string, error)
}

// SubmitOutcome reports how a result submission was routed.
type SubmitOutcome struct {
	JobID string
	// ManualRequired is set when automatic calculation is disabled and the
	// operator must trigger recalculation.
	ManualRequired bool
}

// GameService applies result submissions to the game log and routes them into
// the calculation queue.
type GameService struct {
	games  game.Repository
	queue  Enqueuer
	logger *logging.Logger
}

func NewGameService(games game.Repository, queue Enqueuer, logger *logging.Logger) *GameService {
	if logger == nil {
		logger = logging.Default()
	}
	return &GameService{games: games, queue: queue, logger: logger}
}

// SubmitResult finishes a game with the given score and enqueues a
// recalculation for its league-season. The status transition table applies;
// finishing an already FINISHED game is rejected.
func (s *GameService) SubmitResult(ctx context.Context, gameID, homeGoals, awayGoals int) (SubmitOutcome, error) {
	if homeGoals < 0 || awayGoals < 0 {
		return SubmitOutcome{}, fmt.Errorf("%w: negative goal count", ErrInvalidInput)
	}

	ctx, span := startSpan(ctx, "game.submit_result")
	defer span.End()

	g, ok, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return SubmitOutcome{}, fmt.Errorf("load game %d: %w", gameID, err)
	}
	if !ok {
		return SubmitOutcome{}, fmt.Errorf("%w: game %d", ErrNotFound, gameID)
	}
	if g.HomeClubID == g.AwayClubID {
		return SubmitOutcome{}, fmt.Errorf("%w: game %d has identical clubs", ErrInvalidInput, gameID)
	}
	if !game.CanTransition(g.Status, game.StatusFinished) {
		return SubmitOutcome{}, fmt.Errorf("%w: game %d cannot move from %s to %s",
			ErrInvalidInput, gameID, g.Status, game.StatusFinished)
	}

	g.HomeGoals = &homeGoals
	g.AwayGoals = &awayGoals
	g.Status = game.StatusFinished
	if err := s.games.Save(ctx, g); err != nil {
		return SubmitOutcome{}, fmt.Errorf("save game %d: %w", gameID, err)
	}

	jobID, err := s.queue.Enqueue(ctx, EnqueueRequest{
		LeagueID:    g.LeagueID,
		SeasonID:    g.SeasonID,
		Trigger:     string(job.TriggerGameResult),
		Description: fmt.Sprintf("result %d:%d for game %d", homeGoals, awayGoals, gameID),
	})
	if err != nil {
		if errors.Is(err, ErrCalculationDisabled) {
			s.logger.InfoContext(ctx, "automatic calculation disabled, manual trigger required",
				"game_id", gameID, "league_id", g.LeagueID, "season_id", g.SeasonID)
			return SubmitOutcome{ManualRequired: true}, nil
		}
		return SubmitOutcome{}, fmt.Errorf("enqueue calculation for game %d: %w", gameID, err)
	}

	return SubmitOutcome{JobID: jobID}, nil
}

// ChangeStatus applies a non-result status transition, e.g. postponing a
// scheduled game.
func (s *GameService) ChangeStatus(ctx context.Context, gameID int, to game.Status) error {
	g, ok, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		return fmt.Errorf("load game %d: %w", gameID, err)
	}
	if !ok {
		return fmt.Errorf("%w: game %d", ErrNotFound, gameID)
	}
	if !game.CanTransition(g.Status, to) {
		return fmt.Errorf("%w: game %d cannot move from %s to %s", ErrInvalidInput, gameID, g.Status, to)
	}

	if to != game.StatusFinished {
		g.HomeGoals = nil
		g.AwayGoals = nil
	}
	g.Status = to
	if err := s.games.Save(ctx, g); err != nil {
		return fmt.Errorf("save game %d: %w", gameID, err)
	}
	return nil
}
