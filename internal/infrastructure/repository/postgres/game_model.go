package postgres

import (
	"time"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/game"
)

type gameTableModel struct {
	ID         int       `db:"id"`
	LeagueID   int       `db:"league_id"`
	SeasonID   int       `db:"season_id"`
	Matchday   int       `db:"matchday"`
	PlayedAt   time.Time `db:"played_at"`
	HomeClubID int       `db:"home_club_id"`
	AwayClubID int       `db:"away_club_id"`
	HomeGoals  *int      `db:"home_goals"`
	AwayGoals  *int      `db:"away_goals"`
	Status     string    `db:"status"`
}

func (m gameTableModel) toDomain() game.Game {
	return game.Game{
		ID:         m.ID,
		LeagueID:   m.LeagueID,
		SeasonID:   m.SeasonID,
		Matchday:   m.Matchday,
		PlayedAt:   m.PlayedAt,
		HomeClubID: m.HomeClubID,
		AwayClubID: m.AwayClubID,
		HomeGoals:  m.HomeGoals,
		AwayGoals:  m.AwayGoals,
		Status:     game.Status(m.Status),
	}
}
