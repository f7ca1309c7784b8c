package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/club"
)

type clubTableModel struct {
	ID       int    `db:"id"`
	LeagueID int    `db:"league_id"`
	Name     string `db:"name"`
	Active   bool   `db:"active"`
}

func (m clubTableModel) toDomain() club.Club {
	return club.Club{
		ID:       m.ID,
		LeagueID: m.LeagueID,
		Name:     m.Name,
		Active:   m.Active,
	}
}

type ClubRepository struct {
	db *sqlx.DB
}

func NewClubRepository(db *sqlx.DB) *ClubRepository {
	return &ClubRepository{db: db}
}

func (r *ClubRepository) GetByID(ctx context.Context, clubID int) (club.Club, bool, error) {
	const query = `
SELECT id, league_id, name, active
FROM clubs
WHERE id = $1`

	var row clubTableModel
	if err := sqlx.GetContext(ctx, ext(ctx, r.db), &row, query, clubID); err != nil {
		if isNotFound(err) {
			return club.Club{}, false, nil
		}
		return club.Club{}, false, fmt.Errorf("get club id=%d: %w", clubID, err)
	}
	return row.toDomain(), true, nil
}

func (r *ClubRepository) ListByLeague(ctx context.Context, leagueID int) ([]club.Club, error) {
	const query = `
SELECT id, league_id, name, active
FROM clubs
WHERE league_id = $1
ORDER BY id`

	var rows []clubTableModel
	if err := sqlx.SelectContext(ctx, ext(ctx, r.db), &rows, query, leagueID); err != nil {
		return nil, fmt.Errorf("list clubs league=%d: %w", leagueID, err)
	}

	out := make([]club.Club, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
