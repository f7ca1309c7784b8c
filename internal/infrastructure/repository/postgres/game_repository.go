package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/game"
)

type GameRepository struct {
	db *sqlx.DB
}

func NewGameRepository(db *sqlx.DB) *GameRepository {
	return &GameRepository{db: db}
}

func (r *GameRepository) ListFinished(ctx context.Context, leagueID, seasonID int) ([]game.Game, error) {
	const query = `
SELECT id, league_id, season_id, matchday, played_at, home_club_id, away_club_id, home_goals, away_goals, status
FROM games
WHERE league_id = $1 AND season_id = $2 AND status = $3
ORDER BY matchday, id`

	var rows []gameTableModel
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &rows, query, leagueID, seasonID, string(game.StatusFinished)); err != nil {
		return nil, fmt.Errorf("list finished games league=%d season=%d: %w", leagueID, seasonID, err)
	}

	out := make([]game.Game, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *GameRepository) GetByID(ctx context.Context, gameID int) (game.Game, bool, error) {
	const query = `
SELECT id, league_id, season_id, matchday, played_at, home_club_id, away_club_id, home_goals, away_goals, status
FROM games
WHERE id = $1`

	var row gameTableModel
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &row, query, gameID); err != nil {
		if isNotFound(err) {
			return game.Game{}, false, nil
		}
		return game.Game{}, false, fmt.Errorf("get game id=%d: %w", gameID, err)
	}
	return row.toDomain(), true, nil
}

func (r *GameRepository) Save(ctx context.Context, g game.Game) error {
	const query = `
INSERT INTO games (id, league_id, season_id, matchday, played_at, home_club_id, away_club_id, home_goals, away_goals, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id)
DO UPDATE SET
    matchday = EXCLUDED.matchday,
    played_at = EXCLUDED.played_at,
    home_goals = EXCLUDED.home_goals,
    away_goals = EXCLUDED.away_goals,
    status = EXCLUDED.status`

	if _, err := ext(ctx, r.db).ExecContext(ctx, query,
		g.ID, g.LeagueID, g.SeasonID, g.Matchday, g.PlayedAt,
		g.HomeClubID, g.AwayClubID, g.HomeGoals, g.AwayGoals, string(g.Status),
	); err != nil {
		return fmt.Errorf("save game id=%d: %w", g.ID, err)
	}
	return nil
}
