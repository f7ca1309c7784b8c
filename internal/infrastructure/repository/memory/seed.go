package memory

import (
	"time"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/game"
)

// SeedGames returns a small finished matchday for local development.
func SeedGames() []game.Game {
	goals := func(v int) *int { return &v }
	kickoff := time.Date(2026, 8, 16, 15, 0, 0, 0, time.UTC)

	return []game.Game{
		{
			ID: 1, LeagueID: 1, SeasonID: 1, Matchday: 1, PlayedAt: kickoff,
			HomeClubID: 1, AwayClubID: 2,
			HomeGoals: goals(3), AwayGoals: goals(1),
			Status: game.StatusFinished,
		},
		{
			ID: 2, LeagueID: 1, SeasonID: 1, Matchday: 1, PlayedAt: kickoff,
			HomeClubID: 3, AwayClubID: 4,
			HomeGoals: goals(0), AwayGoals: goals(0),
			Status: game.StatusFinished,
		},
		{
			ID: 3, LeagueID: 1, SeasonID: 1, Matchday: 2, PlayedAt: kickoff.AddDate(0, 0, 7),
			HomeClubID: 1, AwayClubID: 3,
			Status: game.StatusScheduled,
		},
	}
}

// SeedClubNames maps the seeded club IDs to display names.
func SeedClubNames() map[int]string {
	return map[int]string{
		1: "Viktoria Wertheim",
		2: "TSV Assamstadt",
		3: "SV Nassig",
		4: "FC Hundheim",
	}
}
