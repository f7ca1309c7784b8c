package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/headonpro/viktoria-wertheim-backend-sub010/internal/domain/game"
)

type GameRepository struct {
	mu    sync.RWMutex
	items map[int]game.Game
}

func NewGameRepository(games []game.Game) *GameRepository {
	items := make(map[int]game.Game, len(games))
	for _, g := range games {
		items[g.ID] = g
	}
	return &GameRepository{items: items}
}

func (r *GameRepository) ListFinished(_ context.Context, leagueID, seasonID int) ([]game.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]game.Game, 0)
	for _, g := range r.items {
		if g.LeagueID == leagueID && g.SeasonID == seasonID && g.IsFinished() {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Matchday != out[j].Matchday {
			return out[i].Matchday < out[j].Matchday
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *GameRepository) GetByID(_ context.Context, gameID int) (game.Game, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.items[gameID]
	return g, ok, nil
}

func (r *GameRepository) Save(_ context.Context, g game.Game) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[g.ID] = g
	return nil
}
