package room

// Phase is the room's stage in the game lifecycle. Transitions are driven by
// organizer messages and by the countdown timer:
//
//	LOBBY -> INTRO -> QUESTION <-> LEADERBOARD -> PODIUM -> LOBBY (reset)
//
// QUESTION and LEADERBOARD can also jump straight to PODIUM when the
// organizer ends the quiz early.
type Phase string

const (
	PhaseLobby       Phase = "LOBBY"
	PhaseIntro       Phase = "INTRO"
	PhaseQuestion    Phase = "QUESTION"
	PhaseLeaderboard Phase = "LEADERBOARD"
	PhasePodium      Phase = "PODIUM"
)
