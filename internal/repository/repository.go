package repository

import (
	"errors"

	"quizrally/internal/models"
)

var ErrGameNotFound = errors.New("game not found")

// Repository stores summaries of finished games for the history endpoints.
type Repository interface {
	SaveGame(summary models.GameSummary) error
	GetGame(roomCode string) (*models.GameSummary, error)
	ListGames(limit int) ([]*models.GameSummary, error)
	Close() error
}
