package quiz

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"quizrally/internal/models"
)

var (
	ErrQuizNotFound = errors.New("quiz not found")
	ErrStoreFull    = errors.New("quiz store is full")
)

type storedQuiz struct {
	quiz      *models.Quiz
	images    map[int]string // question id -> base64 PNG
	expiresAt time.Time
}

// Store keeps generated quizzes and their images in memory until their TTL
// runs out. Rooms copy the quiz at creation time, so eviction never touches
// a running game.
type Store struct {
	mu         sync.RWMutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*storedQuiz

	stop     chan struct{}
	stopOnce sync.Once
}

func NewStore(ttl time.Duration, maxEntries int) *Store {
	return &Store{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*storedQuiz),
		stop:       make(chan struct{}),
	}
}

// Put stores a quiz under a fresh id.
func (s *Store) Put(quiz *models.Quiz) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked()
	if len(s.entries) >= s.maxEntries {
		return "", ErrStoreFull
	}
	id := uuid.New().String()
	s.entries[id] = &storedQuiz{
		quiz:      quiz,
		images:    make(map[int]string),
		expiresAt: time.Now().Add(s.ttl),
	}
	return id, nil
}

func (s *Store) Get(id string) (*models.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, ErrQuizNotFound
	}
	return e.quiz, nil
}

// SetImage attaches a generated image to one question of a stored quiz.
func (s *Store) SetImage(quizID string, questionID int, imageB64 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[quizID]
	if !ok || time.Now().After(e.expiresAt) {
		return ErrQuizNotFound
	}
	e.images[questionID] = imageB64
	return nil
}

func (s *Store) Image(quizID string, questionID int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[quizID]
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	img, ok := e.images[questionID]
	return img, ok
}

// Images returns the question ids that have a stored image.
func (s *Store) Images(quizID string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[quizID]
	if !ok {
		return nil
	}
	ids := make([]int, 0, len(e.images))
	for id := range e.images {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) evictExpiredLocked() {
	now := time.Now()
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
		}
	}
}

// StartSweeping evicts expired quizzes in the background until Stop.
func (s *Store) StartSweeping(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				before := len(s.entries)
				s.evictExpiredLocked()
				evicted := before - len(s.entries)
				s.mu.Unlock()
				if evicted > 0 {
					log.Printf("Evicted %d expired quiz(zes)", evicted)
				}
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
