package club

import "context"

// Club is a participating team. Only identity, display name and activity
// matter to the calculation core.
type Club struct {
	ID       int
	LeagueID int
	Name     string
	Active   bool
}

// Repository resolves clubs for defensive checks inside the engine.
type Repository interface {
	GetByID(ctx context.Context, clubID int) (Club, bool, error)
	ListByLeague(ctx context.Context, leagueID int) ([]Club, error)
}
