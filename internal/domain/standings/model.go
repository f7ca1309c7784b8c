package standings

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

type Source string

const (
	SourceAutomatic Source = "automatic"
	SourceManual    Source = "manual"
	SourceImported  Source = "imported"
)

// Entry is one row of a league-season table.
type Entry struct {
	ID             int       `json:"id"`
	LeagueID       int       `json:"leagueId"`
	SeasonID       int       `json:"seasonId"`
	ClubID         int       `json:"clubId"`
	ClubName       string    `json:"clubName"`
	Rank           int       `json:"rank"`
	Played         int       `json:"played"`
	Wins           int       `json:"wins"`
	Draws          int       `json:"draws"`
	Losses         int       `json:"losses"`
	GoalsFor       int       `json:"goalsFor"`
	GoalsAgainst   int       `json:"goalsAgainst"`
	GoalDifference int       `json:"goalDifference"`
	Points         int       `json:"points"`
	LastUpdated    time.Time `json:"lastUpdated"`
	AutoCalculated bool      `json:"autoCalculated"`
	Source         Source    `json:"source"`
}

// Validate checks the row invariants.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.ClubName) == "" {
		return fmt.Errorf("entry club=%d: club name is required", e.ClubID)
	}
	if e.Played != e.Wins+e.Draws+e.Losses {
		return fmt.Errorf("entry club=%d: played=%d != wins+draws+losses=%d", e.ClubID, e.Played, e.Wins+e.Draws+e.Losses)
	}
	if e.GoalDifference != e.GoalsFor-e.GoalsAgainst {
		return fmt.Errorf("entry club=%d: goal difference %d != %d-%d", e.ClubID, e.GoalDifference, e.GoalsFor, e.GoalsAgainst)
	}
	if e.Points != 3*e.Wins+e.Draws {
		return fmt.Errorf("entry club=%d: points %d != 3*%d+%d", e.ClubID, e.Points, e.Wins, e.Draws)
	}
	if e.Wins < 0 || e.Draws < 0 || e.Losses < 0 || e.GoalsFor < 0 || e.GoalsAgainst < 0 {
		return fmt.Errorf("entry club=%d: negative counter", e.ClubID)
	}
	return nil
}

// Less is the total order on table rows: points desc, goal difference desc,
// goals for desc, club name asc. The name tie-break makes the order
// deterministic.
func Less(a, b Entry) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	if a.GoalDifference != b.GoalDifference {
		return a.GoalDifference > b.GoalDifference
	}
	if a.GoalsFor != b.GoalsFor {
		return a.GoalsFor > b.GoalsFor
	}
	return a.ClubName < b.ClubName
}

// SortAndRank orders entries by the total order and assigns dense ranks 1..N
// in place.
func SortAndRank(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(entries[i], entries[j])
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}
