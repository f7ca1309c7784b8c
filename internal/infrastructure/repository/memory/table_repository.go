package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/standings"
)

type seasonKey struct {
	leagueID int
	seasonID int
}

type TableRepository struct {
	mu     sync.RWMutex
	rows   map[seasonKey]map[int]standings.Entry
	nextID int
}

func NewTableRepository() *TableRepository {
	return &TableRepository{
		rows:   make(map[seasonKey]map[int]standings.Entry),
		nextID: 1,
	}
}

func (r *TableRepository) ListSeason(_ context.Context, leagueID, seasonID int) ([]standings.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	season := r.rows[seasonKey{leagueID, seasonID}]
	out := make([]standings.Entry, 0, len(season))
	for _, e := range season {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].ClubName < out[j].ClubName
	})
	return out, nil
}

func (r *TableRepository) UpsertSeason(_ context.Context, leagueID, seasonID int, entries []standings.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := seasonKey{leagueID, seasonID}
	season := r.rows[key]
	if season == nil {
		season = make(map[int]standings.Entry, len(entries))
		r.rows[key] = season
	}

	for _, e := range entries {
		existing, ok := season[e.ClubID]
		if ok {
			e.ID = existing.ID
		} else if e.ID == 0 {
			e.ID = r.nextID
			r.nextID++
		}
		e.LeagueID = leagueID
		e.SeasonID = seasonID
		if e.LastUpdated.IsZero() {
			e.LastUpdated = time.Now().UTC()
		}
		season[e.ClubID] = e
	}
	return nil
}

func (r *TableRepository) ReplaceSeason(ctx context.Context, leagueID, seasonID int, entries []standings.Entry) error {
	r.mu.Lock()
	delete(r.rows, seasonKey{leagueID, seasonID})
	r.mu.Unlock()

	return r.UpsertSeason(ctx, leagueID, seasonID, entries)
}
