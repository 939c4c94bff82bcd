package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizrally/internal/models"
)

func testQuiz() *models.Quiz {
	return &models.Quiz{
		Title: "Capitals",
		Questions: []models.Question{
			{ID: 0, Text: "Capital of France?", Options: []string{"Paris", "Lyon", "Nice", "Lille"}, AnswerIndex: 0},
			{ID: 1, Text: "Capital of Spain?", Options: []string{"Seville", "Madrid", "Bilbao", "Valencia"}, AnswerIndex: 1},
			{ID: 2, Text: "Capital of Italy?", Options: []string{"Milan", "Turin", "Rome", "Naples"}, AnswerIndex: 2},
		},
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	r := NewRoom("ABC123", testQuiz(), 15, "tok")
	r.AddPlayer("c1", "alice", "🦊")
	r.AddPlayer("c2", "bob", "🐼")
	r.AddPlayer("c3", "carol", "🦉")
	r.Players["c1"].Score = 500
	r.Players["c2"].Score = 900
	r.Players["c3"].Score = 500

	lb := r.Leaderboard()
	require.Len(t, lb, 3)
	assert.Equal(t, "bob", lb[0].Nickname)
	assert.Equal(t, "alice", lb[1].Nickname, "ties break alphabetically")
	assert.Equal(t, "carol", lb[2].Nickname)
}

func TestLeaderboardRankChanges(t *testing.T) {
	r := NewRoom("ABC123", testQuiz(), 15, "tok")
	r.AddPlayer("c1", "alice", "")
	r.AddPlayer("c2", "bob", "")
	r.Players["c1"].Score = 100
	r.Players["c2"].Score = 200
	r.SnapshotLeaderboard()

	// Alice overtakes bob.
	r.Players["c1"].Score = 500
	lb := r.LeaderboardWithChanges()
	require.Len(t, lb, 2)
	assert.Equal(t, "alice", lb[0].Nickname)
	assert.Equal(t, 1, lb[0].RankChange)
	assert.Equal(t, -1, lb[1].RankChange)
}

func TestLeaderboardRankChangeNewPlayer(t *testing.T) {
	r := NewRoom("ABC123", testQuiz(), 15, "tok")
	r.AddPlayer("c1", "alice", "")
	r.SnapshotLeaderboard()
	r.AddPlayer("c2", "bob", "")
	r.Players["c2"].Score = 50

	lb := r.LeaderboardWithChanges()
	for _, e := range lb {
		if e.Nickname == "bob" {
			assert.Equal(t, 0, e.RankChange, "unsnapshotted players read as no change")
		}
	}
}

func TestTeamLeaderboard(t *testing.T) {
	r := NewRoom("ABC123", testQuiz(), 15, "tok")
	r.AddPlayer("c1", "alice", "")
	r.AddPlayer("c2", "bob", "")
	r.AddPlayer("c3", "carol", "")
	r.Teams["alice"] = "Red"
	r.Teams["bob"] = "Red"
	r.Players["c1"].Score = 300
	r.Players["c2"].Score = 200
	r.Players["c3"].Score = 400

	teams := r.TeamLeaderboard()
	require.Len(t, teams, 2)
	assert.Equal(t, "Red", teams[0].Team)
	assert.Equal(t, 500, teams[0].Score)
	assert.Equal(t, 2, teams[0].Members)
	assert.Equal(t, "carol", teams[1].Team, "teamless players become solo teams")
	assert.Equal(t, 1, teams[1].Members)
}

func TestParkAndRestorePlayer(t *testing.T) {
	r := NewRoom("ABC123", testQuiz(), 15, "tok")
	r.AddPlayer("c1", "alice", "🦊")
	r.Players["c1"].Score = 450
	r.Players["c1"].Streak = 2
	r.AnsweredThisRound["c1"] = true

	r.ParkPlayer("c1")
	assert.Empty(t, r.Players)
	require.Contains(t, r.DisconnectedPlayers, "alice")

	p, hadAnswered, ok := r.RestorePlayer("c2", "alice")
	require.True(t, ok)
	assert.True(t, hadAnswered)
	assert.Equal(t, 450, p.Score)
	assert.Equal(t, 2, p.Streak)
	assert.True(t, r.AnsweredThisRound["c2"])
	assert.NotContains(t, r.DisconnectedPlayers, "alice")

	_, _, ok = r.RestorePlayer("c3", "nobody")
	assert.False(t, ok)
}

func TestTransferPlayer(t *testing.T) {
	r := NewRoom("ABC123", testQuiz(), 15, "tok")
	r.AddPlayer("c1", "alice", "")
	r.Players["c1"].Score = 300
	r.AnsweredThisRound["c1"] = true

	p := r.TransferPlayer("c1", "c9")
	require.NotNil(t, p)
	assert.NotContains(t, r.Players, "c1")
	assert.Equal(t, 300, r.Players["c9"].Score)
	assert.False(t, r.AnsweredThisRound["c1"])
	assert.True(t, r.AnsweredThisRound["c9"])
}

func TestAllAnswered(t *testing.T) {
	r := NewRoom("ABC123", testQuiz(), 15, "tok")
	assert.False(t, r.AllAnswered(), "empty roster never completes a round")

	r.AddPlayer("c1", "alice", "")
	r.AddPlayer("c2", "bob", "")
	r.AnsweredThisRound["c1"] = true
	assert.False(t, r.AllAnswered())

	// A disconnect mid-question removes bob from the denominator.
	r.ParkPlayer("c2")
	assert.True(t, r.AllAnswered())
}

func TestReset(t *testing.T) {
	r := NewRoom("ABC123", testQuiz(), 15, "tok")
	r.AddPlayer("c1", "alice", "")
	r.Players["c1"].Score = 800
	r.Players["c1"].Streak = 4
	r.PowerUps["alice"].DoublePoints = false
	r.Teams["alice"] = "Red"
	r.Teams["ghost"] = "Blue" // left-over from a departed player
	r.PowerUps["ghost"] = &models.PowerUpState{}
	r.DisconnectedPlayers["ghost"] = &DisconnectedPlayer{}
	r.Phase = PhasePodium
	r.CurrentQuestionIndex = 2
	r.BonusQuestions[1] = true
	r.AnswerLog = append(r.AnswerLog, models.AnswerLogEntry{Nickname: "alice"})

	fresh := testQuiz()
	r.Reset(fresh, 20)

	assert.Equal(t, PhaseLobby, r.Phase)
	assert.Equal(t, 20, r.TimeLimit)
	assert.Equal(t, -1, r.CurrentQuestionIndex)
	assert.Equal(t, 0, r.Players["c1"].Score)
	assert.Equal(t, 0, r.Players["c1"].Streak)
	assert.True(t, r.PowerUps["alice"].DoublePoints, "power-ups are reissued")
	assert.Equal(t, "Red", r.Teams["alice"], "team choice survives a reset")
	assert.NotContains(t, r.Teams, "ghost")
	assert.NotContains(t, r.PowerUps, "ghost")
	assert.Empty(t, r.DisconnectedPlayers)
	assert.Empty(t, r.BonusQuestions)
	assert.Empty(t, r.AnswerLog)
}

func TestBroadcastPrunesDeadConnections(t *testing.T) {
	r := NewRoom("ABC123", testQuiz(), 15, "tok")
	alive := NewClient("c1", RolePlayer)
	dead := NewClient("c2", RolePlayer)
	r.Attach(alive)
	r.Attach(dead)
	dead.Close()

	r.Broadcast(map[string]string{"type": "PING"})
	assert.Equal(t, 1, r.ConnCount())
	assert.NotNil(t, r.Conn("c1"))
	assert.Nil(t, r.Conn("c2"))
}
