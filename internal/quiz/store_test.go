package quiz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizrally/internal/models"
)

func storeQuiz(title string) *models.Quiz {
	return &models.Quiz{
		Title: title,
		Questions: []models.Question{
			{ID: 0, Text: "q", Options: []string{"a", "b"}, AnswerIndex: 0},
		},
	}
}

func TestStorePutGet(t *testing.T) {
	s := NewStore(time.Hour, 10)
	id, err := s.Put(storeQuiz("one"))
	require.NoError(t, err)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "one", got.Title)

	_, err = s.Get("no-such-id")
	assert.ErrorIs(t, err, ErrQuizNotFound)
}

func TestStoreTTL(t *testing.T) {
	s := NewStore(10*time.Millisecond, 10)
	id, err := s.Put(storeQuiz("fleeting"))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = s.Get(id)
	assert.ErrorIs(t, err, ErrQuizNotFound)

	// An expired entry frees its slot on the next Put.
	_, err = s.Put(storeQuiz("next"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

func TestStoreCapacity(t *testing.T) {
	s := NewStore(time.Hour, 2)
	for i := 0; i < 2; i++ {
		_, err := s.Put(storeQuiz("q"))
		require.NoError(t, err)
	}
	_, err := s.Put(storeQuiz("overflow"))
	assert.ErrorIs(t, err, ErrStoreFull)
}

func TestStoreImages(t *testing.T) {
	s := NewStore(time.Hour, 10)
	id, err := s.Put(storeQuiz("with images"))
	require.NoError(t, err)

	require.NoError(t, s.SetImage(id, 0, "aGVsbG8="))
	img, ok := s.Image(id, 0)
	assert.True(t, ok)
	assert.Equal(t, "aGVsbG8=", img)

	_, ok = s.Image(id, 99)
	assert.False(t, ok)
	assert.Equal(t, []int{0}, s.Images(id))

	assert.ErrorIs(t, s.SetImage("nope", 0, "x"), ErrQuizNotFound)
}
