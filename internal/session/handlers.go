package session

import (
	"encoding/json"
	"log"
	mrand "math/rand"
	"time"

	"quizrally/internal/models"
	"quizrally/internal/room"
)

// HandleMessage routes one inbound envelope into the room under its lock.
// Malformed JSON earns an ERROR reply; messages that are well-formed but
// illegal in the current phase are dropped silently, since they mostly come
// from double-clicks and stale client state.
func (m *Manager) HandleMessage(r *room.Room, clientID string, role room.Role, data []byte) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		r.Mu.Lock()
		r.SendTo(clientID, errorMsg("malformed message"))
		r.Mu.Unlock()
		return
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.Touch()

	if role == room.RoleOrganizer {
		switch msg.Type {
		case MsgStartGame:
			m.handleStartGame(r)
		case MsgNextQuestion:
			m.handleNextQuestion(r)
		case MsgSetTimeLimit:
			m.handleSetTimeLimit(r, &msg)
		case MsgEndQuiz:
			m.handleEndQuiz(r)
		case MsgResetRoom:
			m.handleResetRoom(r, clientID, &msg)
		default:
			r.SendTo(clientID, errorMsg("unknown message type"))
		}
		return
	}

	if role == room.RoleSpectator {
		// Spectators observe; nothing they send mutates state.
		return
	}

	switch msg.Type {
	case MsgJoin:
		m.handleJoin(r, clientID, &msg)
	case MsgAnswer:
		m.handleAnswer(r, clientID, &msg)
	case MsgUsePowerUp:
		m.handleUsePowerUp(r, clientID, &msg)
	default:
		r.SendTo(clientID, errorMsg("unknown message type"))
	}
}

// --- organizer -------------------------------------------------------------

func (m *Manager) handleStartGame(r *room.Room) {
	if r.Phase != room.PhaseLobby {
		return
	}
	r.Phase = room.PhaseIntro
	rng := mrand.New(mrand.NewSource(time.Now().UnixNano()))
	r.BonusQuestions = room.PickBonusIndices(len(r.Quiz.Questions), rng)
	log.Printf("Room %s: game starting, %d bonus round(s)", r.Code, len(r.BonusQuestions))
	r.Broadcast(map[string]any{
		"type":            MsgGameStarting,
		"quiz_title":      r.Quiz.Title,
		"total_questions": len(r.Quiz.Questions),
	})
}

func (m *Manager) handleNextQuestion(r *room.Room) {
	switch r.Phase {
	case room.PhaseIntro, room.PhaseLeaderboard:
		m.startQuestion(r)
	case room.PhaseQuestion:
		// Organizer-forced early end of the current question.
		m.endQuestion(r)
	}
}

func (m *Manager) handleSetTimeLimit(r *room.Room, msg *Inbound) {
	if r.Phase != room.PhaseLobby || msg.TimeLimit == nil {
		return
	}
	limit := *msg.TimeLimit
	if limit < m.cfg.MinTimeLimit || limit > m.cfg.MaxTimeLimit {
		return
	}
	r.TimeLimit = limit
}

func (m *Manager) handleEndQuiz(r *room.Room) {
	if r.Phase != room.PhaseQuestion && r.Phase != room.PhaseLeaderboard {
		return
	}
	m.podium(r)
}

func (m *Manager) handleResetRoom(r *room.Room, clientID string, msg *Inbound) {
	if r.Phase != room.PhasePodium {
		return
	}
	var quiz models.Quiz
	if err := json.Unmarshal(msg.QuizData, &quiz); err != nil {
		r.SendTo(clientID, errorMsg("invalid quiz data"))
		return
	}
	if err := quiz.Validate(); err != nil {
		r.SendTo(clientID, errorMsg("invalid quiz data: "+err.Error()))
		return
	}
	quiz.Sanitize()

	timeLimit := r.TimeLimit
	if msg.TimeLimit != nil && *msg.TimeLimit >= m.cfg.MinTimeLimit && *msg.TimeLimit <= m.cfg.MaxTimeLimit {
		timeLimit = *msg.TimeLimit
	}
	r.Reset(&quiz, timeLimit)
	log.Printf("Room %s: reset with new quiz %q", r.Code, quiz.Title)
	r.Broadcast(map[string]any{
		"type":         MsgRoomReset,
		"quiz_title":   quiz.Title,
		"players":      r.PlayerNames(),
		"player_count": len(r.Players),
	})
}

// --- question flow ---------------------------------------------------------

// startQuestion advances to the next question, or to the podium when the
// quiz is out of them. On entry to QUESTION it snapshots the leaderboard,
// clears the answered set and kicks off the countdown task.
func (m *Manager) startQuestion(r *room.Room) {
	if r.CurrentQuestionIndex+1 >= len(r.Quiz.Questions) {
		m.podium(r)
		return
	}
	r.CurrentQuestionIndex++
	r.SnapshotLeaderboard()
	r.Phase = room.PhaseQuestion
	r.QuestionEpoch++
	r.AnsweredThisRound = make(map[string]bool)
	for _, pu := range r.PowerUps {
		pu.DoubleArmed = false
	}

	isBonus := r.BonusQuestions[r.CurrentQuestionIndex]
	start := time.Now()
	if isBonus {
		// Bonus splash: the scored clock starts after the splash window, and
		// answers arriving before it are ignored.
		start = start.Add(room.SplashDelay)
	}
	r.QuestionStartTime = start

	q := r.CurrentQuestion()
	base := map[string]any{
		"type":            MsgQuestion,
		"question_number": r.CurrentQuestionIndex + 1,
		"total_questions": len(r.Quiz.Questions),
		"time_limit":      r.TimeLimit,
		"is_bonus":        isBonus,
	}

	playerPayload := make(map[string]any, len(base)+1)
	fullPayload := make(map[string]any, len(base)+1)
	for k, v := range base {
		playerPayload[k] = v
		fullPayload[k] = v
	}
	playerPayload["question"] = q.Public()
	fullPayload["question"] = q

	r.BroadcastToPlayers(playerPayload)
	r.SendToOrganizer(fullPayload)
	for id := range r.Spectators {
		r.SendTo(id, fullPayload)
	}

	cancel := r.ArmTimer()
	go m.countdown(r, r.QuestionEpoch, isBonus, cancel)
}

// countdown ticks once a second, broadcasting the remaining time, and ends
// the question when it hits zero. A cancelled or superseded countdown is a
// no-op: the epoch check makes a stale fire harmless.
func (m *Manager) countdown(r *room.Room, epoch int, bonus bool, cancel chan struct{}) {
	if bonus {
		select {
		case <-time.After(room.SplashDelay):
		case <-cancel:
			return
		}
	}

	r.Mu.Lock()
	limit := r.TimeLimit
	r.Mu.Unlock()

	for remaining := limit; remaining > 0; remaining-- {
		r.Mu.Lock()
		if r.QuestionEpoch != epoch || r.Phase != room.PhaseQuestion {
			r.Mu.Unlock()
			return
		}
		r.Broadcast(map[string]any{"type": MsgTimer, "remaining": remaining})
		r.Mu.Unlock()

		select {
		case <-time.After(time.Second):
		case <-cancel:
			return
		}
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.QuestionEpoch != epoch || r.Phase != room.PhaseQuestion {
		return
	}
	m.endQuestion(r)
}

// endQuestion moves QUESTION -> LEADERBOARD. Guarded: the timer and the
// all-answered path can race here, and only the first caller wins.
func (m *Manager) endQuestion(r *room.Room) {
	if r.Phase != room.PhaseQuestion {
		return
	}
	r.StopTimer()
	r.Phase = room.PhaseLeaderboard

	// Players who let the clock run out lose their streak too.
	for id, p := range r.Players {
		if !r.AnsweredThisRound[id] {
			p.Streak = 0
		}
	}

	q := r.CurrentQuestion()
	isFinal := r.CurrentQuestionIndex >= len(r.Quiz.Questions)-1
	r.Broadcast(map[string]any{
		"type":                 MsgQuestionOver,
		"answer":               q.AnswerIndex,
		"leaderboard":          r.LeaderboardWithChanges(),
		"previous_leaderboard": r.PreviousLeaderboard,
		"is_final":             isFinal,
	})
}

// podium ends the game, broadcasts the final standings and hands the summary
// to the history recorder.
func (m *Manager) podium(r *room.Room) {
	r.StopTimer()
	r.Phase = room.PhasePodium
	summary := r.Summary()
	r.Broadcast(map[string]any{
		"type":             MsgPodium,
		"leaderboard":      summary.Leaderboard,
		"team_leaderboard": summary.TeamLeaderboard,
	})
	log.Printf("Room %s: game over, %d player(s)", r.Code, summary.PlayerCount)
	if m.recorder != nil {
		go m.recorder(summary)
	}
}

// --- players ---------------------------------------------------------------

func (m *Manager) handleJoin(r *room.Room, clientID string, msg *Inbound) {
	// A connection that already holds a player is done joining; a repeat
	// JOIN is a double-click or stale client and must not touch live state.
	if _, joined := r.Players[clientID]; joined {
		return
	}

	nickname := models.SanitizeText(msg.Nickname)
	if nickname == "" || len(nickname) > m.cfg.MaxNicknameLength {
		r.SendTo(clientID, errorMsg("invalid nickname"))
		return
	}
	avatar := models.SanitizeText(msg.Avatar)
	if len(avatar) > m.cfg.MaxAvatarLength {
		avatar = avatar[:m.cfg.MaxAvatarLength]
	}
	team := models.SanitizeText(msg.Team)
	if len(team) > m.cfg.MaxTeamNameLength {
		team = team[:m.cfg.MaxTeamNameLength]
	}

	// Reconnection: the nickname is parked from a mid-game disconnect.
	if _, parked := r.DisconnectedPlayers[nickname]; parked {
		p, hadAnswered, _ := r.RestorePlayer(clientID, nickname)
		log.Printf("Room %s: %s reconnected with %d points", r.Code, nickname, p.Score)
		r.Broadcast(map[string]any{
			"type":         MsgPlayerReconnected,
			"nickname":     nickname,
			"players":      r.PlayerNames(),
			"player_count": len(r.Players),
		})
		r.SendTo(clientID, m.playerSyncPayload(r, p, hadAnswered))
		return
	}

	// Duplicate tab: the nickname is still live on another connection. Kick
	// the old channel and move the player's state over.
	if oldID, _, live := r.FindByNickname(nickname); live && oldID != clientID {
		r.SendTo(oldID, map[string]any{"type": MsgKicked, "reason": "joined from another tab"})
		r.Detach(oldID)
		p := r.TransferPlayer(oldID, clientID)
		log.Printf("Room %s: %s rejoined from a new tab", r.Code, nickname)
		r.Broadcast(map[string]any{
			"type":         MsgPlayerReconnected,
			"nickname":     nickname,
			"players":      r.PlayerNames(),
			"player_count": len(r.Players),
		})
		r.SendTo(clientID, m.playerSyncPayload(r, p, r.AnsweredThisRound[clientID]))
		return
	}

	if len(r.Players) >= m.cfg.MaxPlayersPerRoom {
		r.SendTo(clientID, errorMsg("room is full"))
		return
	}

	p := r.AddPlayer(clientID, nickname, avatar)
	if team != "" {
		r.Teams[nickname] = team
	}
	log.Printf("Room %s: %s joined (%d player(s))", r.Code, nickname, len(r.Players))
	r.Broadcast(map[string]any{
		"type":         MsgPlayerJoined,
		"nickname":     nickname,
		"avatar":       p.Avatar,
		"team":         team,
		"players":      r.PlayerNames(),
		"player_count": len(r.Players),
	})
}

func (m *Manager) handleAnswer(r *room.Room, clientID string, msg *Inbound) {
	p, isPlayer := r.Players[clientID]
	if !isPlayer || r.Phase != room.PhaseQuestion || r.AnsweredThisRound[clientID] {
		return
	}
	q := r.CurrentQuestion()
	if q == nil || msg.AnswerIndex == nil {
		return
	}
	idx := *msg.AnswerIndex
	if idx < 0 || idx >= len(q.Options) {
		return
	}
	now := time.Now()
	if now.Before(r.QuestionStartTime) {
		// Inside the bonus splash window; the scored clock has not started.
		return
	}

	r.AnsweredThisRound[clientID] = true
	allAnswered := r.AllAnswered()

	elapsed := now.Sub(r.QuestionStartTime).Seconds()
	correct := idx == q.AnswerIndex
	isBonus := r.BonusQuestions[r.CurrentQuestionIndex]

	points := 0
	multiplier := 1.0
	if correct {
		base := room.BasePoints(elapsed, float64(r.TimeLimit))
		if isBonus {
			base *= 2
		}
		p.Streak++
		multiplier = room.StreakMultiplier(p.Streak)
		points = int(float64(base)*multiplier + 0.5)
		if pu := r.PowerUps[p.Nickname]; pu != nil && pu.DoubleArmed {
			points *= 2
			pu.DoubleArmed = false
		}
		p.Score += points
	} else {
		p.Streak = 0
	}

	r.AnswerLog = append(r.AnswerLog, models.AnswerLogEntry{
		QuestionIndex: r.CurrentQuestionIndex,
		Nickname:      p.Nickname,
		AnswerIndex:   idx,
		Correct:       correct,
		TimeTaken:     elapsed,
	})

	r.SendTo(clientID, map[string]any{
		"type":       MsgAnswerResult,
		"correct":    correct,
		"points":     points,
		"streak":     p.Streak,
		"multiplier": multiplier,
		"is_bonus":   isBonus,
	})
	r.SendToOrganizer(map[string]any{
		"type":     MsgAnswerCount,
		"answered": r.AnsweredCount(),
		"total":    len(r.Players),
	})

	if allAnswered {
		m.endQuestion(r)
	}
}

func (m *Manager) handleUsePowerUp(r *room.Room, clientID string, msg *Inbound) {
	p, isPlayer := r.Players[clientID]
	if !isPlayer || r.Phase != room.PhaseQuestion {
		return
	}
	pu := r.PowerUps[p.Nickname]
	if pu == nil {
		return
	}

	switch msg.PowerUp {
	case PowerUpDoublePoints:
		if !pu.DoublePoints {
			return
		}
		pu.DoublePoints = false
		pu.DoubleArmed = true
		r.SendTo(clientID, map[string]any{
			"type":     MsgPowerUpActivated,
			"power_up": PowerUpDoublePoints,
		})

	case PowerUpFiftyFifty:
		if !pu.FiftyFifty {
			return
		}
		q := r.CurrentQuestion()
		if q == nil {
			return
		}
		pu.FiftyFifty = false
		rng := mrand.New(mrand.NewSource(time.Now().UnixNano()))
		r.SendTo(clientID, map[string]any{
			"type":           MsgPowerUpActivated,
			"power_up":       PowerUpFiftyFifty,
			"remove_options": room.FiftyFiftyRemovals(*q, rng),
		})

	default:
		r.SendTo(clientID, errorMsg("unknown power-up"))
		return
	}

	r.SendToOrganizer(map[string]any{
		"type":     MsgPowerUpActivated,
		"nickname": p.Nickname,
		"power_up": msg.PowerUp,
	})
}

// --- resync payloads -------------------------------------------------------

func (m *Manager) timeRemaining(r *room.Room) int {
	if r.Phase != room.PhaseQuestion {
		return 0
	}
	elapsed := time.Since(r.QuestionStartTime).Seconds()
	if elapsed < 0 {
		return r.TimeLimit
	}
	remaining := r.TimeLimit - int(elapsed)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// playerSyncPayload carries everything a reconnecting player needs to pick
// up mid-game; the current question is redacted.
func (m *Manager) playerSyncPayload(r *room.Room, p *models.Player, alreadyAnswered bool) map[string]any {
	payload := map[string]any{
		"type":             MsgPlayerReconnected,
		"nickname":         p.Nickname,
		"score":            p.Score,
		"streak":           p.Streak,
		"avatar":           p.Avatar,
		"phase":            r.Phase,
		"already_answered": alreadyAnswered,
		"power_ups":        r.PowerUps[p.Nickname],
	}
	if r.Phase == room.PhaseQuestion {
		if q := r.CurrentQuestion(); q != nil {
			payload["question"] = q.Public()
			payload["question_number"] = r.CurrentQuestionIndex + 1
			payload["total_questions"] = len(r.Quiz.Questions)
			payload["time_remaining"] = m.timeRemaining(r)
			payload["is_bonus"] = r.BonusQuestions[r.CurrentQuestionIndex]
		}
	}
	return payload
}

// organizerSyncPayload is the full-state resync pushed to a reconnecting
// organizer; unlike players, the organizer sees the answer key.
func (m *Manager) organizerSyncPayload(r *room.Room) map[string]any {
	payload := map[string]any{
		"type":             MsgOrganizerReconnected,
		"room_code":        r.Code,
		"phase":            r.Phase,
		"players":          r.PlayerNames(),
		"player_count":     len(r.Players),
		"leaderboard":      r.Leaderboard(),
		"team_leaderboard": r.TeamLeaderboard(),
		"answered":         r.AnsweredCount(),
		"total":            len(r.Players),
	}
	if r.Phase == room.PhaseQuestion {
		if q := r.CurrentQuestion(); q != nil {
			payload["question"] = q
			payload["question_number"] = r.CurrentQuestionIndex + 1
			payload["total_questions"] = len(r.Quiz.Questions)
			payload["time_remaining"] = m.timeRemaining(r)
			payload["is_bonus"] = r.BonusQuestions[r.CurrentQuestionIndex]
		}
	}
	return payload
}

func (m *Manager) spectatorSyncPayload(r *room.Room) map[string]any {
	payload := map[string]any{
		"type":             MsgSpectatorSync,
		"room_code":        r.Code,
		"phase":            r.Phase,
		"players":          r.PlayerNames(),
		"player_count":     len(r.Players),
		"leaderboard":      r.Leaderboard(),
		"team_leaderboard": r.TeamLeaderboard(),
	}
	if r.Phase == room.PhaseQuestion {
		if q := r.CurrentQuestion(); q != nil {
			payload["question"] = q
			payload["question_number"] = r.CurrentQuestionIndex + 1
			payload["total_questions"] = len(r.Quiz.Questions)
			payload["time_remaining"] = m.timeRemaining(r)
		}
	}
	return payload
}
