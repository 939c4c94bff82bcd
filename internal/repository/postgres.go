package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"quizrally/internal/models"
)

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(databaseURL string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

func createTables(db *sql.DB) error {
	createGamesTable := `
	CREATE TABLE IF NOT EXISTS games (
		id VARCHAR(36) PRIMARY KEY,
		room_code VARCHAR(12) NOT NULL,
		quiz_title VARCHAR(500) NOT NULL,
		player_count INTEGER NOT NULL DEFAULT 0,
		leaderboard JSONB NOT NULL,
		team_leaderboard JSONB NOT NULL,
		answer_log JSONB NOT NULL,
		finished_at TIMESTAMP WITH TIME ZONE NOT NULL
	);`

	createIndexes := `
	CREATE INDEX IF NOT EXISTS idx_games_room_code ON games(room_code);
	CREATE INDEX IF NOT EXISTS idx_games_finished_at ON games(finished_at);
	`

	if _, err := db.Exec(createGamesTable); err != nil {
		return err
	}
	if _, err := db.Exec(createIndexes); err != nil {
		return err
	}

	return nil
}

func (r *PostgresRepository) SaveGame(summary models.GameSummary) error {
	if summary.ID == "" {
		summary.ID = uuid.New().String()
	}

	leaderboard, err := json.Marshal(summary.Leaderboard)
	if err != nil {
		return err
	}
	teamLeaderboard, err := json.Marshal(summary.TeamLeaderboard)
	if err != nil {
		return err
	}
	answerLog, err := json.Marshal(summary.AnswerLog)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO games (id, room_code, quiz_title, player_count, leaderboard, team_leaderboard, answer_log, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.Exec(query,
		summary.ID,
		summary.RoomCode,
		summary.QuizTitle,
		summary.PlayerCount,
		leaderboard,
		teamLeaderboard,
		answerLog,
		summary.FinishedAt,
	)
	return err
}

func (r *PostgresRepository) GetGame(roomCode string) (*models.GameSummary, error) {
	query := `
		SELECT id, room_code, quiz_title, player_count, leaderboard, team_leaderboard, answer_log, finished_at
		FROM games WHERE room_code = $1
		ORDER BY finished_at DESC
		LIMIT 1
	`
	row := r.db.QueryRow(query, roomCode)
	summary, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, ErrGameNotFound
	}
	return summary, err
}

func (r *PostgresRepository) ListGames(limit int) ([]*models.GameSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, room_code, quiz_title, player_count, leaderboard, team_leaderboard, answer_log, finished_at
		FROM games
		ORDER BY finished_at DESC
		LIMIT $1
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []*models.GameSummary
	for rows.Next() {
		summary, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, summary)
	}
	return games, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*models.GameSummary, error) {
	var summary models.GameSummary
	var leaderboard, teamLeaderboard, answerLog []byte

	err := row.Scan(
		&summary.ID, &summary.RoomCode, &summary.QuizTitle, &summary.PlayerCount,
		&leaderboard, &teamLeaderboard, &answerLog, &summary.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(leaderboard, &summary.Leaderboard); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(teamLeaderboard, &summary.TeamLeaderboard); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answerLog, &summary.AnswerLog); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}
