package game

import "time"

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusFinished  Status = "FINISHED"
	StatusCancelled Status = "CANCELLED"
	StatusPostponed Status = "POSTPONED"
)

// Game is the immutable record of one match.
type Game struct {
	ID         int
	LeagueID   int
	SeasonID   int
	Matchday   int
	PlayedAt   time.Time
	HomeClubID int
	AwayClubID int
	HomeGoals  *int
	AwayGoals  *int
	Status     Status
}

const (
	MinMatchday = 1
	MaxMatchday = 34
)

// CanTransition reports whether a status change is allowed. FINISHED is
// terminal.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	switch from {
	case StatusScheduled:
		return to == StatusFinished || to == StatusCancelled || to == StatusPostponed
	case StatusPostponed:
		return to == StatusScheduled || to == StatusFinished || to == StatusCancelled
	case StatusCancelled:
		return to == StatusScheduled || to == StatusPostponed
	case StatusFinished:
		return false
	default:
		return false
	}
}

func (g Game) IsFinished() bool {
	return g.Status == StatusFinished
}

// HasResult reports whether both goal counts are present.
func (g Game) HasResult() bool {
	return g.HomeGoals != nil && g.AwayGoals != nil
}

// Involves reports whether the club plays in this game.
func (g Game) Involves(clubID int) bool {
	return g.HomeClubID == clubID || g.AwayClubID == clubID
}

// GoalsFor returns the (for, against) goal counts from the club's
// perspective. The second return is false when the club does not play in the
// game or the result is missing.
func (g Game) GoalsFor(clubID int) (int, int, bool) {
	if !g.HasResult() || !g.Involves(clubID) {
		return 0, 0, false
	}
	if g.HomeClubID == clubID {
		return *g.HomeGoals, *g.AwayGoals, true
	}
	return *g.AwayGoals, *g.HomeGoals, true
}
