package room

import (
	"math"
	"math/rand"

	"quizrally/internal/models"
)

const (
	MinBasePoints = 100
	MaxBasePoints = 1000

	// Fraction of a quiz's questions promoted to double-point bonus rounds.
	BonusFraction = 0.3
)

// streakThresholds maps a consecutive-correct count to its score multiplier.
// The highest threshold met wins; they do not stack.
var streakThresholds = []struct {
	Min  int
	Mult float64
}{
	{5, 2.0},
	{3, 1.5},
}

// BasePoints maps elapsed answer time onto [100, 1000]: an instant answer is
// worth 1000, an answer at or past the deadline still earns the floor of 100.
func BasePoints(elapsed, limit float64) int {
	if limit <= 0 {
		return MinBasePoints
	}
	ratio := math.Max(0, 1-elapsed/limit)
	points := int(math.Round(100 + 900*ratio))
	if points < MinBasePoints {
		points = MinBasePoints
	}
	if points > MaxBasePoints {
		points = MaxBasePoints
	}
	return points
}

// StreakMultiplier returns 1.0 for streaks of 0-2, 1.5 for 3-4 and 2.0 from
// 5 up.
func StreakMultiplier(streak int) float64 {
	for _, t := range streakThresholds {
		if streak >= t.Min {
			return t.Mult
		}
	}
	return 1.0
}

// PickBonusIndices chooses which question indices pay double base points.
// The first and last question are never bonus rounds, so quizzes shorter
// than four questions get none at all; longer quizzes always get at least
// one.
func PickBonusIndices(numQuestions int, rng *rand.Rand) map[int]bool {
	bonus := make(map[int]bool)
	if numQuestions < 4 {
		return bonus
	}
	candidates := make([]int, 0, numQuestions-2)
	for i := 1; i < numQuestions-1; i++ {
		candidates = append(candidates, i)
	}
	count := int(math.Round(BonusFraction * float64(numQuestions)))
	if count < 1 {
		count = 1
	}
	if count > len(candidates) {
		count = len(candidates)
	}
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	for _, idx := range candidates[:count] {
		bonus[idx] = true
	}
	return bonus
}

// FiftyFiftyRemovals picks up to two wrong options to hide from the player.
// A two-option question yields a single removal.
func FiftyFiftyRemovals(q models.Question, rng *rand.Rand) []int {
	wrong := make([]int, 0, len(q.Options)-1)
	for i := range q.Options {
		if i != q.AnswerIndex {
			wrong = append(wrong, i)
		}
	}
	rng.Shuffle(len(wrong), func(i, j int) {
		wrong[i], wrong[j] = wrong[j], wrong[i]
	})
	if len(wrong) > 2 {
		wrong = wrong[:2]
	}
	return wrong
}
