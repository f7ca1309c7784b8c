package standings

import "context"

type Repository interface {
	ListSeason(ctx context.Context, leagueID, seasonID int) ([]Entry, error)
	// UpsertSeason writes every entry, updating existing rows by club and
	// inserting new ones.
	UpsertSeason(ctx context.Context, leagueID, seasonID int, entries []Entry) error
	// ReplaceSeason deletes all rows of the pair and inserts the given
	// entries.
	ReplaceSeason(ctx context.Context, leagueID, seasonID int, entries []Entry) error
}
