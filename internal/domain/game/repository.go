package game

import "context"

type Repository interface {
	// ListFinished returns the finished games of one league-season.
	ListFinished(ctx context.Context, leagueID, seasonID int) ([]Game, error)
	GetByID(ctx context.Context, gameID int) (Game, bool, error)
	Save(ctx context.Context, g Game) error
}
