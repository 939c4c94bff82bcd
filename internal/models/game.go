package models

import "time"

type Player struct {
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	Streak   int    `json:"streak"`
	Avatar   string `json:"avatar,omitempty"`
}

// PowerUpState tracks each nickname's one-shot abilities. Armed means a
// double-points use is pending for the current question and will be consumed
// by the next correct answer.
type PowerUpState struct {
	DoublePoints bool `json:"double_points"`
	FiftyFifty   bool `json:"fifty_fifty"`
	DoubleArmed  bool `json:"-"`
}

type LeaderboardEntry struct {
	Nickname   string `json:"nickname"`
	Score      int    `json:"score"`
	Avatar     string `json:"avatar,omitempty"`
	PrevRank   int    `json:"prev_rank"`
	RankChange int    `json:"rank_change"` // positive = moved up
}

type TeamEntry struct {
	Team    string `json:"team"`
	Score   int    `json:"score"`
	Members int    `json:"members"`
}

type AnswerLogEntry struct {
	QuestionIndex int     `json:"question_index"`
	Nickname      string  `json:"nickname"`
	AnswerIndex   int     `json:"answer_index"`
	Correct       bool    `json:"correct"`
	TimeTaken     float64 `json:"time_taken"` // seconds from question start
}

// GameSummary is the payload emitted when a room reaches the podium; the
// history store subscribes to it so the game core never has to know where
// finished games end up.
type GameSummary struct {
	ID              string             `json:"id"`
	RoomCode        string             `json:"room_code"`
	QuizTitle       string             `json:"quiz_title"`
	PlayerCount     int                `json:"player_count"`
	Leaderboard     []LeaderboardEntry `json:"leaderboard"`
	TeamLeaderboard []TeamEntry        `json:"team_leaderboard"`
	AnswerLog       []AnswerLogEntry   `json:"answer_log"`
	FinishedAt      time.Time          `json:"finished_at"`
}
