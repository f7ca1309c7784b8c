package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/standings"
)

type TableRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewTableRepository(db *sqlx.DB) *TableRepository {
	return &TableRepository{db: db, now: time.Now}
}

func (r *TableRepository) ListSeason(ctx context.Context, leagueID, seasonID int) ([]standings.Entry, error) {
	const query = `
SELECT id, league_id, season_id, club_id, club_name, rank, played, wins, draws, losses,
       goals_for, goals_against, goal_difference, points, last_updated, auto_calculated, source
FROM table_entries
WHERE league_id = $1 AND season_id = $2
ORDER BY rank, club_name`

	var rows []tableEntryModel
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &rows, query, leagueID, seasonID); err != nil {
		return nil, fmt.Errorf("list table entries league=%d season=%d: %w", leagueID, seasonID, err)
	}

	out := make([]standings.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *TableRepository) UpsertSeason(ctx context.Context, leagueID, seasonID int, entries []standings.Entry) error {
	const query = `
INSERT INTO table_entries (league_id, season_id, club_id, club_name, rank, played, wins, draws, losses,
                           goals_for, goals_against, goal_difference, points, last_updated, auto_calculated, source)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (league_id, season_id, club_id)
DO UPDATE SET
    club_name = EXCLUDED.club_name,
    rank = EXCLUDED.rank,
    played = EXCLUDED.played,
    wins = EXCLUDED.wins,
    draws = EXCLUDED.draws,
    losses = EXCLUDED.losses,
    goals_for = EXCLUDED.goals_for,
    goals_against = EXCLUDED.goals_against,
    goal_difference = EXCLUDED.goal_difference,
    points = EXCLUDED.points,
    last_updated = EXCLUDED.last_updated,
    auto_calculated = EXCLUDED.auto_calculated,
    source = EXCLUDED.source`

	e := ext(ctx, r.db)
	now := r.now().UTC()
	for _, item := range entries {
		lastUpdated := item.LastUpdated
		if lastUpdated.IsZero() {
			lastUpdated = now
		}
		if _, err := e.ExecContext(ctx, query,
			leagueID, seasonID, item.ClubID, item.ClubName, item.Rank,
			item.Played, item.Wins, item.Draws, item.Losses,
			item.GoalsFor, item.GoalsAgainst, item.GoalDifference, item.Points,
			lastUpdated, item.AutoCalculated, string(item.Source),
		); err != nil {
			return fmt.Errorf("upsert table entry club=%d: %w", item.ClubID, err)
		}
	}
	return nil
}

func (r *TableRepository) ReplaceSeason(ctx context.Context, leagueID, seasonID int, entries []standings.Entry) error {
	e := ext(ctx, r.db)
	if _, err := e.ExecContext(ctx,
		`DELETE FROM table_entries WHERE league_id = $1 AND season_id = $2`,
		leagueID, seasonID,
	); err != nil {
		return fmt.Errorf("clear table entries league=%d season=%d: %w", leagueID, seasonID, err)
	}
	return r.UpsertSeason(ctx, leagueID, seasonID, entries)
}
