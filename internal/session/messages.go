package session

import "encoding/json"

// Inbound message types.
const (
	MsgJoin         = "JOIN"
	MsgAnswer       = "ANSWER"
	MsgStartGame    = "START_GAME"
	MsgNextQuestion = "NEXT_QUESTION"
	MsgSetTimeLimit = "SET_TIME_LIMIT"
	MsgEndQuiz      = "END_QUIZ"
	MsgResetRoom    = "RESET_ROOM"
	MsgUsePowerUp   = "USE_POWER_UP"
)

// Outbound message types.
const (
	MsgJoinedRoom           = "JOINED_ROOM"
	MsgRoomCreated          = "ROOM_CREATED"
	MsgPlayerJoined         = "PLAYER_JOINED"
	MsgPlayerDisconnected   = "PLAYER_DISCONNECTED"
	MsgPlayerReconnected    = "PLAYER_RECONNECTED"
	MsgGameStarting         = "GAME_STARTING"
	MsgQuestion             = "QUESTION"
	MsgTimer                = "TIMER"
	MsgAnswerResult         = "ANSWER_RESULT"
	MsgAnswerCount          = "ANSWER_COUNT"
	MsgQuestionOver         = "QUESTION_OVER"
	MsgPodium               = "PODIUM"
	MsgRoomReset            = "ROOM_RESET"
	MsgOrganizerReconnected = "ORGANIZER_RECONNECTED"
	MsgSpectatorSync        = "SPECTATOR_SYNC"
	MsgPowerUpActivated     = "POWER_UP_ACTIVATED"
	MsgKicked               = "KICKED"
	MsgRoomClosed           = "ROOM_CLOSED"
	MsgError                = "ERROR"
)

// Power-up identifiers carried in USE_POWER_UP.
const (
	PowerUpDoublePoints = "double_points"
	PowerUpFiftyFifty   = "fifty_fifty"
)

// Inbound is the flat envelope every client message decodes into. Fields are
// pointers where absence and zero must be told apart.
type Inbound struct {
	Type        string          `json:"type"`
	Nickname    string          `json:"nickname,omitempty"`
	Team        string          `json:"team,omitempty"`
	Avatar      string          `json:"avatar,omitempty"`
	AnswerIndex *int            `json:"answer_index,omitempty"`
	TimeLimit   *int            `json:"time_limit,omitempty"`
	PowerUp     string          `json:"power_up,omitempty"`
	QuizData    json.RawMessage `json:"quiz_data,omitempty"`
}

func errorMsg(message string) map[string]any {
	return map[string]any{"type": MsgError, "message": message}
}
