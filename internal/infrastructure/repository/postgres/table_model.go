package postgres

import (
	"time"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/standings"
)

type tableEntryModel struct {
	ID             int       `db:"id"`
	LeagueID       int       `db:"league_id"`
	SeasonID       int       `db:"season_id"`
	ClubID         int       `db:"club_id"`
	ClubName       string    `db:"club_name"`
	Rank           int       `db:"rank"`
	Played         int       `db:"played"`
	Wins           int       `db:"wins"`
	Draws          int       `db:"draws"`
	Losses         int       `db:"losses"`
	GoalsFor       int       `db:"goals_for"`
	GoalsAgainst   int       `db:"goals_against"`
	GoalDifference int       `db:"goal_difference"`
	Points         int       `db:"points"`
	LastUpdated    time.Time `db:"last_updated"`
	AutoCalculated bool      `db:"auto_calculated"`
	Source         string    `db:"source"`
}

func (m tableEntryModel) toDomain() standings.Entry {
	return standings.Entry{
		ID:             m.ID,
		LeagueID:       m.LeagueID,
		SeasonID:       m.SeasonID,
		ClubID:         m.ClubID,
		ClubName:       m.ClubName,
		Rank:           m.Rank,
		Played:         m.Played,
		Wins:           m.Wins,
		Draws:          m.Draws,
		Losses:         m.Losses,
		GoalsFor:       m.GoalsFor,
		GoalsAgainst:   m.GoalsAgainst,
		GoalDifference: m.GoalDifference,
		Points:         m.Points,
		LastUpdated:    m.LastUpdated,
		AutoCalculated: m.AutoCalculated,
		Source:         standings.Source(m.Source),
	}
}
