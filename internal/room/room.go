package room

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"quizrally/internal/models"
)

// SplashDelay is the window at the start of a bonus question during which the
// client shows the bonus splash. Answers arriving inside it are ignored and
// the scored clock only starts once it has elapsed.
const SplashDelay = 2 * time.Second

// DisconnectedPlayer parks a mid-game player's state under their nickname so
// a later JOIN with the same nickname can pick up where they left off.
type DisconnectedPlayer struct {
	Player      models.Player
	HadAnswered bool
}

// Room holds every piece of state for one game session. All fields are
// guarded by Mu; methods assume the caller already holds it unless noted
// otherwise. Queued sends never block, so broadcasting under the lock is
// safe.
type Room struct {
	Mu sync.Mutex

	Code      string
	Quiz      *models.Quiz
	Phase     Phase
	TimeLimit int // seconds per question, mutable only in LOBBY

	CurrentQuestionIndex int
	QuestionStartTime    time.Time // scored start; after the splash on bonus rounds
	AnsweredThisRound    map[string]bool
	PreviousLeaderboard  []models.LeaderboardEntry

	Players             map[string]*models.Player       // connection id -> live player
	DisconnectedPlayers map[string]*DisconnectedPlayer  // nickname -> parked state
	Teams               map[string]string               // nickname -> team name
	PowerUps            map[string]*models.PowerUpState // nickname -> abilities

	BonusQuestions map[int]bool

	AnswerLog []models.AnswerLogEntry

	OrganizerID    string // connection id, empty while the organizer is away
	OrganizerToken string
	Spectators     map[string]bool

	LastActivity time.Time
	CreatedAt    time.Time

	// QuestionEpoch increments on every transition into QUESTION; a countdown
	// task captures it at start and becomes a no-op once it no longer matches.
	QuestionEpoch int

	conns       map[string]*Client
	timerCancel chan struct{}
	graceCancel chan struct{}
}

func NewRoom(code string, quiz *models.Quiz, timeLimit int, organizerToken string) *Room {
	now := time.Now()
	return &Room{
		Code:                 code,
		Quiz:                 quiz,
		Phase:                PhaseLobby,
		TimeLimit:            timeLimit,
		CurrentQuestionIndex: -1,
		AnsweredThisRound:    make(map[string]bool),
		Players:              make(map[string]*models.Player),
		DisconnectedPlayers:  make(map[string]*DisconnectedPlayer),
		Teams:                make(map[string]string),
		PowerUps:             make(map[string]*models.PowerUpState),
		BonusQuestions:       make(map[int]bool),
		Spectators:           make(map[string]bool),
		OrganizerToken:       organizerToken,
		LastActivity:         now,
		CreatedAt:            now,
		conns:                make(map[string]*Client),
	}
}

func (r *Room) Touch() {
	r.LastActivity = time.Now()
}

func (r *Room) Expired(ttl time.Duration) bool {
	return time.Since(r.LastActivity) > ttl
}

// CurrentQuestion returns nil outside the range of the quiz.
func (r *Room) CurrentQuestion() *models.Question {
	if r.CurrentQuestionIndex < 0 || r.CurrentQuestionIndex >= len(r.Quiz.Questions) {
		return nil
	}
	return &r.Quiz.Questions[r.CurrentQuestionIndex]
}

// --- connections -----------------------------------------------------------

func (r *Room) Attach(c *Client) {
	r.conns[c.ID] = c
}

// Detach drops a connection and closes its send channel, which in turn lets
// the transport's write pump exit.
func (r *Room) Detach(clientID string) {
	if c, ok := r.conns[clientID]; ok {
		c.Close()
	}
	delete(r.conns, clientID)
	delete(r.Spectators, clientID)
	if r.OrganizerID == clientID {
		r.OrganizerID = ""
	}
}

// CloseAll tears down every attached connection.
func (r *Room) CloseAll() {
	for id := range r.conns {
		r.Detach(id)
	}
}

func (r *Room) Conn(clientID string) *Client {
	return r.conns[clientID]
}

func (r *Room) ConnCount() int {
	return len(r.conns)
}

// --- delivery --------------------------------------------------------------

// Broadcast queues a message to every attached connection. A failed queue
// means the reader is dead; the connection is pruned and delivery continues
// to everyone else.
func (r *Room) Broadcast(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling broadcast for room %s: %v", r.Code, err)
		return
	}
	var stale []string
	for id, c := range r.conns {
		if !c.Push(data) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		log.Printf("Room %s: pruning unresponsive connection %s", r.Code, id)
		r.Detach(id)
	}
}

// BroadcastToPlayers delivers to player connections only.
func (r *Room) BroadcastToPlayers(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling broadcast for room %s: %v", r.Code, err)
		return
	}
	var stale []string
	for id, c := range r.conns {
		if _, isPlayer := r.Players[id]; !isPlayer {
			continue
		}
		if !c.Push(data) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		r.Detach(id)
	}
}

func (r *Room) SendTo(clientID string, payload any) {
	if c, ok := r.conns[clientID]; ok {
		if !c.PushJSON(payload) {
			r.Detach(clientID)
		}
	}
}

func (r *Room) SendToOrganizer(payload any) {
	if r.OrganizerID != "" {
		r.SendTo(r.OrganizerID, payload)
	}
}

// --- roster ----------------------------------------------------------------

func (r *Room) AddPlayer(clientID, nickname, avatar string) *models.Player {
	p := &models.Player{Nickname: nickname, Avatar: avatar}
	r.Players[clientID] = p
	if _, ok := r.PowerUps[nickname]; !ok {
		r.PowerUps[nickname] = &models.PowerUpState{DoublePoints: true, FiftyFifty: true}
	}
	return p
}

// FindByNickname scans the live roster.
func (r *Room) FindByNickname(nickname string) (string, *models.Player, bool) {
	for id, p := range r.Players {
		if p.Nickname == nickname {
			return id, p, true
		}
	}
	return "", nil, false
}

// RemovePlayer deletes a lobby player outright, freeing the nickname and all
// attached bookkeeping.
func (r *Room) RemovePlayer(clientID string) {
	p, ok := r.Players[clientID]
	if !ok {
		return
	}
	delete(r.Players, clientID)
	delete(r.AnsweredThisRound, clientID)
	delete(r.Teams, p.Nickname)
	delete(r.PowerUps, p.Nickname)
}

// ParkPlayer moves a mid-game player to the disconnected holding area keyed
// by nickname. Team and power-up state stay put so a reconnect finds them.
func (r *Room) ParkPlayer(clientID string) *models.Player {
	p, ok := r.Players[clientID]
	if !ok {
		return nil
	}
	r.DisconnectedPlayers[p.Nickname] = &DisconnectedPlayer{
		Player:      *p,
		HadAnswered: r.AnsweredThisRound[clientID],
	}
	delete(r.Players, clientID)
	delete(r.AnsweredThisRound, clientID)
	return p
}

// RestorePlayer re-registers a parked player under a fresh connection id,
// clearing the holding-area entry. Reports whether they had already answered
// the current question before dropping.
func (r *Room) RestorePlayer(clientID, nickname string) (*models.Player, bool, bool) {
	parked, ok := r.DisconnectedPlayers[nickname]
	if !ok {
		return nil, false, false
	}
	delete(r.DisconnectedPlayers, nickname)
	p := parked.Player
	r.Players[clientID] = &p
	if parked.HadAnswered {
		r.AnsweredThisRound[clientID] = true
	}
	return &p, parked.HadAnswered, true
}

// TransferPlayer moves a live player's state from an old connection to a new
// one (the duplicate-tab case). Answered status follows the player.
func (r *Room) TransferPlayer(oldID, newID string) *models.Player {
	p, ok := r.Players[oldID]
	if !ok {
		return nil
	}
	delete(r.Players, oldID)
	r.Players[newID] = p
	if r.AnsweredThisRound[oldID] {
		delete(r.AnsweredThisRound, oldID)
		r.AnsweredThisRound[newID] = true
	}
	return p
}

func (r *Room) PlayerNames() []string {
	names := make([]string, 0, len(r.Players))
	for _, p := range r.Players {
		names = append(names, p.Nickname)
	}
	sort.Strings(names)
	return names
}

// AllAnswered reports whether every currently connected player has answered.
// Disconnected players are excluded from the denominator.
func (r *Room) AllAnswered() bool {
	if len(r.Players) == 0 {
		return false
	}
	for id := range r.Players {
		if !r.AnsweredThisRound[id] {
			return false
		}
	}
	return true
}

func (r *Room) AnsweredCount() int {
	n := 0
	for id := range r.Players {
		if r.AnsweredThisRound[id] {
			n++
		}
	}
	return n
}

// --- leaderboards ----------------------------------------------------------

// Leaderboard returns the live roster sorted by descending score, ties broken
// by nickname for stable output.
func (r *Room) Leaderboard() []models.LeaderboardEntry {
	entries := make([]models.LeaderboardEntry, 0, len(r.Players))
	for _, p := range r.Players {
		entries = append(entries, models.LeaderboardEntry{
			Nickname: p.Nickname,
			Score:    p.Score,
			Avatar:   p.Avatar,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Nickname < entries[j].Nickname
	})
	return entries
}

// LeaderboardWithChanges annotates the live leaderboard with each player's
// rank movement since the snapshot taken when the question started. A player
// absent from the snapshot holds their insertion point, which reads as "no
// change".
func (r *Room) LeaderboardWithChanges() []models.LeaderboardEntry {
	prevRank := make(map[string]int, len(r.PreviousLeaderboard))
	for i, e := range r.PreviousLeaderboard {
		prevRank[e.Nickname] = i
	}
	entries := r.Leaderboard()
	for i := range entries {
		prev, ok := prevRank[entries[i].Nickname]
		if !ok {
			prev = i
		}
		entries[i].PrevRank = prev
		entries[i].RankChange = prev - i
	}
	return entries
}

// SnapshotLeaderboard records the pre-question ranking for rank-delta
// computation when the question ends.
func (r *Room) SnapshotLeaderboard() {
	r.PreviousLeaderboard = r.Leaderboard()
}

// TeamLeaderboard aggregates live players by team, descending by total
// score. A player with no team assignment is their own solo team named by
// nickname.
func (r *Room) TeamLeaderboard() []models.TeamEntry {
	totals := make(map[string]*models.TeamEntry)
	for _, p := range r.Players {
		team, ok := r.Teams[p.Nickname]
		if !ok || team == "" {
			team = p.Nickname
		}
		entry, ok := totals[team]
		if !ok {
			entry = &models.TeamEntry{Team: team}
			totals[team] = entry
		}
		entry.Score += p.Score
		entry.Members++
	}
	out := make([]models.TeamEntry, 0, len(totals))
	for _, e := range totals {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Team < out[j].Team
	})
	return out
}

// --- timers ----------------------------------------------------------------

// ArmTimer installs a fresh cancel handle for the countdown task about to
// start, cancelling any stale one first.
func (r *Room) ArmTimer() chan struct{} {
	r.StopTimer()
	r.timerCancel = make(chan struct{})
	return r.timerCancel
}

// StopTimer cancels the live countdown task, if any. Safe to call twice.
func (r *Room) StopTimer() {
	if r.timerCancel != nil {
		close(r.timerCancel)
		r.timerCancel = nil
	}
}

// ArmGrace installs the organizer-reconnect grace timer handle.
func (r *Room) ArmGrace() chan struct{} {
	r.StopGrace()
	r.graceCancel = make(chan struct{})
	return r.graceCancel
}

func (r *Room) StopGrace() {
	if r.graceCancel != nil {
		close(r.graceCancel)
		r.graceCancel = nil
	}
}

// --- reset -----------------------------------------------------------------

// Reset returns the room to LOBBY with new quiz content. Connected players
// are kept with scores and streaks cleared; parked disconnects, bonus picks,
// the answer log and stale team/power-up slots are pruned.
func (r *Room) Reset(quiz *models.Quiz, timeLimit int) {
	r.StopTimer()
	r.Quiz = quiz
	r.TimeLimit = timeLimit
	r.Phase = PhaseLobby
	r.CurrentQuestionIndex = -1
	r.QuestionStartTime = time.Time{}
	r.AnsweredThisRound = make(map[string]bool)
	r.PreviousLeaderboard = nil
	r.DisconnectedPlayers = make(map[string]*DisconnectedPlayer)
	r.BonusQuestions = make(map[int]bool)
	r.AnswerLog = nil

	live := make(map[string]bool, len(r.Players))
	for _, p := range r.Players {
		p.Score = 0
		p.Streak = 0
		live[p.Nickname] = true
	}
	for nick := range r.Teams {
		if !live[nick] {
			delete(r.Teams, nick)
		}
	}
	for nick := range r.PowerUps {
		if !live[nick] {
			delete(r.PowerUps, nick)
			continue
		}
		r.PowerUps[nick] = &models.PowerUpState{DoublePoints: true, FiftyFifty: true}
	}
	r.Touch()
}

// Summary builds the history payload for a finished game.
func (r *Room) Summary() models.GameSummary {
	return models.GameSummary{
		RoomCode:        r.Code,
		QuizTitle:       r.Quiz.Title,
		PlayerCount:     len(r.Players),
		Leaderboard:     r.Leaderboard(),
		TeamLeaderboard: r.TeamLeaderboard(),
		AnswerLog:       append([]models.AnswerLogEntry(nil), r.AnswerLog...),
		FinishedAt:      time.Now(),
	}
}
