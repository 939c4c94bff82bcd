package session

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	mrand "math/rand"
	"sync"
	"time"

	"quizrally/internal/config"
	"quizrally/internal/models"
	"quizrally/internal/room"
)

// Recorder receives the summary of every finished game. The history store
// subscribes through this so the session core never imports it.
type Recorder func(models.GameSummary)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const roomCodeLength = 6

// Manager owns the collection of active rooms: it creates them, routes
// connection and message events into them, and sweeps out the idle ones.
type Manager struct {
	cfg *config.Config

	mu    sync.RWMutex
	rooms map[string]*room.Room

	recorder Recorder

	rngMu sync.Mutex
	rng   *mrand.Rand

	stop     chan struct{}
	stopOnce sync.Once
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		cfg:   cfg,
		rooms: make(map[string]*room.Room),
		rng:   mrand.New(mrand.NewSource(time.Now().UnixNano())),
		stop:  make(chan struct{}),
	}
}

// OnGameComplete registers the history recorder. Must be called before any
// traffic arrives.
func (m *Manager) OnGameComplete(rec Recorder) {
	m.recorder = rec
}

// Run starts the idle-room sweep and blocks until Stop is called.
func (m *Manager) Run() {
	ticker := time.NewTicker(time.Duration(m.cfg.SweepIntervalSecs) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweepIdleRooms()
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) sweepIdleRooms() {
	ttl := time.Duration(m.cfg.RoomTTLSeconds) * time.Second

	m.mu.RLock()
	snapshot := make([]*room.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		snapshot = append(snapshot, r)
	}
	m.mu.RUnlock()

	for _, r := range snapshot {
		r.Mu.Lock()
		if !r.Expired(ttl) {
			r.Mu.Unlock()
			continue
		}
		r.StopTimer()
		r.StopGrace()
		r.Broadcast(map[string]any{"type": MsgRoomClosed, "reason": "room expired"})
		r.CloseAll()
		r.Mu.Unlock()
		m.removeRoom(r.Code)
		log.Printf("Swept idle room %s", r.Code)
	}
}

// RoomCount returns the number of active rooms.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func (m *Manager) GetRoom(code string) *room.Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[code]
}

// CreateRoom allocates a room for an already-validated quiz and returns its
// code plus the organizer secret. Codes are retried against the live
// registry until unique.
func (m *Manager) CreateRoom(quiz *models.Quiz, timeLimit int) (string, string, error) {
	if timeLimit < m.cfg.MinTimeLimit || timeLimit > m.cfg.MaxTimeLimit {
		timeLimit = m.cfg.DefaultTimeLimit
	}

	token, err := newOrganizerToken()
	if err != nil {
		return "", "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.rooms) >= m.cfg.MaxRooms {
		return "", "", ErrTooManyRooms
	}

	for attempt := 0; attempt < m.cfg.MaxRoomCodeAttempts; attempt++ {
		code := m.newRoomCode()
		if _, taken := m.rooms[code]; taken {
			continue
		}
		m.rooms[code] = room.NewRoom(code, quiz, timeLimit, token)
		log.Printf("Created room %s (%d questions, %ds per question)", code, len(quiz.Questions), timeLimit)
		return code, token, nil
	}
	return "", "", ErrCodeExhausted
}

func (m *Manager) newRoomCode() string {
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	code := make([]byte, roomCodeLength)
	for i := range code {
		code[i] = roomCodeAlphabet[m.rng.Intn(len(roomCodeAlphabet))]
	}
	return string(code)
}

func newOrganizerToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func (m *Manager) removeRoom(code string) {
	m.mu.Lock()
	delete(m.rooms, code)
	m.mu.Unlock()
}

// Connect attaches a new channel to a room and runs the role's handshake.
// An error return means the caller should surface an ERROR envelope and
// close the channel.
func (m *Manager) Connect(code, clientID string, role room.Role, token string) (*room.Room, *room.Client, error) {
	r := m.GetRoom(code)
	if r == nil {
		return nil, nil, ErrRoomNotFound
	}

	c := room.NewClient(clientID, role)

	r.Mu.Lock()
	defer r.Mu.Unlock()
	r.Touch()

	switch role {
	case room.RoleOrganizer:
		if token != r.OrganizerToken {
			return nil, nil, ErrInvalidToken
		}
		// A second organizer tab replaces the first.
		if r.OrganizerID != "" && r.OrganizerID != clientID {
			old := r.OrganizerID
			r.SendTo(old, map[string]any{"type": MsgKicked, "reason": "organizer connected elsewhere"})
			r.Detach(old)
		}
		r.Attach(c)
		r.OrganizerID = clientID
		r.StopGrace()
		if r.Phase == room.PhaseLobby {
			r.SendTo(clientID, map[string]any{"type": MsgRoomCreated, "room_code": r.Code})
		} else {
			r.SendTo(clientID, m.organizerSyncPayload(r))
		}

	case room.RoleSpectator:
		r.Attach(c)
		r.Spectators[clientID] = true
		r.SendTo(clientID, m.spectatorSyncPayload(r))

	default:
		r.Attach(c)
		r.SendTo(clientID, map[string]any{"type": MsgJoinedRoom, "room_code": r.Code})
	}

	return r, c, nil
}

// Disconnect handles a lost channel per the recovery protocol: lobby players
// vanish entirely, in-game players are parked for reconnection, a lost
// organizer starts the grace countdown.
func (m *Manager) Disconnect(r *room.Room, clientID string, role room.Role) {
	r.Mu.Lock()
	defer r.Mu.Unlock()

	wasOrganizer := r.OrganizerID == clientID
	r.Detach(clientID)

	switch {
	case wasOrganizer && role == room.RoleOrganizer:
		log.Printf("Room %s: organizer disconnected, grace period %ds", r.Code, m.cfg.OrganizerGraceSecs)
		cancel := r.ArmGrace()
		go m.graceExpiry(r, cancel)

	case role == room.RolePlayer:
		p, live := r.Players[clientID]
		if !live {
			return
		}
		if r.Phase == room.PhaseLobby {
			r.RemovePlayer(clientID)
			log.Printf("Room %s: player %s left the lobby", r.Code, p.Nickname)
		} else {
			r.ParkPlayer(clientID)
			log.Printf("Room %s: player %s disconnected mid-game, state parked", r.Code, p.Nickname)
		}
		r.Broadcast(map[string]any{
			"type":         MsgPlayerDisconnected,
			"nickname":     p.Nickname,
			"players":      r.PlayerNames(),
			"player_count": len(r.Players),
		})
		// The denominator just shrank; the round may be complete now.
		if r.Phase == room.PhaseQuestion && r.AllAnswered() {
			m.endQuestion(r)
		}
	}
}

func (m *Manager) graceExpiry(r *room.Room, cancel chan struct{}) {
	select {
	case <-time.After(time.Duration(m.cfg.OrganizerGraceSecs) * time.Second):
	case <-cancel:
		return
	}

	r.Mu.Lock()
	if r.OrganizerID != "" {
		r.Mu.Unlock()
		return
	}
	log.Printf("Room %s: organizer never returned, closing room", r.Code)
	r.StopTimer()
	r.Broadcast(map[string]any{"type": MsgRoomClosed, "reason": "organizer left"})
	r.CloseAll()
	r.Mu.Unlock()

	m.removeRoom(r.Code)
}
