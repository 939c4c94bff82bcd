package repository

import (
	"sync"

	"quizrally/internal/models"
)

// InMemoryRepository keeps the newest finished games in a bounded slice,
// oldest evicted first. It is the default when no database is configured.
type InMemoryRepository struct {
	mu       sync.RWMutex
	games    []models.GameSummary
	maxGames int
}

func NewInMemoryRepository(maxGames int) *InMemoryRepository {
	return &InMemoryRepository{maxGames: maxGames}
}

func (r *InMemoryRepository) SaveGame(summary models.GameSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games = append(r.games, summary)
	if len(r.games) > r.maxGames {
		r.games = r.games[len(r.games)-r.maxGames:]
	}
	return nil
}

// GetGame returns the most recent game played in the given room.
func (r *InMemoryRepository) GetGame(roomCode string) (*models.GameSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.games) - 1; i >= 0; i-- {
		if r.games[i].RoomCode == roomCode {
			g := r.games[i]
			return &g, nil
		}
	}
	return nil, ErrGameNotFound
}

// ListGames returns the newest games first.
func (r *InMemoryRepository) ListGames(limit int) ([]*models.GameSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.games) {
		limit = len(r.games)
	}
	out := make([]*models.GameSummary, 0, limit)
	for i := len(r.games) - 1; i >= 0 && len(out) < limit; i-- {
		g := r.games[i]
		out = append(out, &g)
	}
	return out, nil
}

func (r *InMemoryRepository) Close() error {
	return nil
}
