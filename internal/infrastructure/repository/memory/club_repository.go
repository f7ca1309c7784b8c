package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/club"
)

type ClubRepository struct {
	mu    sync.RWMutex
	items map[int]club.Club
}

func NewClubRepository(clubs []club.Club) *ClubRepository {
	items := make(map[int]club.Club, len(clubs))
	for _, c := range clubs {
		items[c.ID] = c
	}
	return &ClubRepository{items: items}
}

func (r *ClubRepository) GetByID(_ context.Context, clubID int) (club.Club, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[clubID]
	return c, ok, nil
}

func (r *ClubRepository) ListByLeague(_ context.Context, leagueID int) ([]club.Club, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]club.Club, 0)
	for _, c := range r.items {
		if c.LeagueID == leagueID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SeedClubs returns the seeded club IDs as active clubs of league 1.
func SeedClubs() []club.Club {
	names := SeedClubNames()
	ids := make([]int, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]club.Club, 0, len(ids))
	for _, id := range ids {
		out = append(out, club.Club{ID: id, LeagueID: 1, Name: names[id], Active: true})
	}
	return out
}
