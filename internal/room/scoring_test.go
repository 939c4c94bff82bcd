package room

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"quizrally/internal/models"
)

func TestBasePoints(t *testing.T) {
	assert.Equal(t, 1000, BasePoints(0, 15))
	assert.Equal(t, 550, BasePoints(7.5, 15))
	assert.Equal(t, 100, BasePoints(15, 15))
	assert.Equal(t, 100, BasePoints(30, 15), "late answers stay at the floor")
	assert.Equal(t, 100, BasePoints(5, 0), "degenerate limit falls back to the floor")

	for elapsed := 0.0; elapsed <= 20; elapsed += 0.25 {
		p := BasePoints(elapsed, 15)
		assert.GreaterOrEqual(t, p, MinBasePoints)
		assert.LessOrEqual(t, p, MaxBasePoints)
	}
}

func TestStreakMultiplier(t *testing.T) {
	cases := map[int]float64{
		0: 1.0,
		1: 1.0,
		2: 1.0,
		3: 1.5,
		4: 1.5,
		5: 2.0,
		9: 2.0,
	}
	for streak, want := range cases {
		assert.Equal(t, want, StreakMultiplier(streak), "streak %d", streak)
	}
}

func TestPickBonusIndices(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	assert.Empty(t, PickBonusIndices(3, rng), "short quizzes have no bonus rounds")

	for n := 4; n <= 20; n++ {
		bonus := PickBonusIndices(n, rng)
		assert.NotEmpty(t, bonus, "n=%d", n)
		assert.False(t, bonus[0], "first question is never bonus")
		assert.False(t, bonus[n-1], "last question is never bonus")
		for idx := range bonus {
			assert.Greater(t, idx, 0)
			assert.Less(t, idx, n-1)
		}
	}

	bonus := PickBonusIndices(10, rng)
	assert.Len(t, bonus, 3, "30%% of 10 questions")
}

func TestFiftyFiftyRemovals(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	four := models.Question{Options: []string{"a", "b", "c", "d"}, AnswerIndex: 2}
	removed := FiftyFiftyRemovals(four, rng)
	assert.Len(t, removed, 2)
	assert.NotContains(t, removed, 2, "the correct option is never removed")

	two := models.Question{Options: []string{"yes", "no"}, AnswerIndex: 0}
	removed = FiftyFiftyRemovals(two, rng)
	assert.Equal(t, []int{1}, removed)
}
