package stats

import (
	"testing"

	"github.com/reflex-leaderboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateComputesBestAndAverage(t *testing.T) {
	history := []domain.ScoreRecord{
		{Player: "alice", Time: 200, GameMode: domain.GameModeClassic, Timestamp: "2026-01-01T10:00:00Z"},
		{Player: "alice", Time: 100, GameMode: domain.GameModeClassic, Timestamp: "2026-01-01T10:01:00Z"},
		{Player: "alice", Time: 150, GameMode: domain.GameModeSequence, Timestamp: "2026-01-01T10:02:00Z"},
	}

	out := Aggregate("alice", history, 2)

	assert.Equal(t, "alice", out.Player)
	assert.Equal(t, 3, out.TotalGames)
	require.NotNil(t, out.BestTime)
	assert.Equal(t, int64(100), *out.BestTime)
	require.NotNil(t, out.AverageTime)
	assert.Equal(t, 150.0, *out.AverageTime)
	assert.Equal(t, 2, out.TotalAchievements)
	assert.Equal(t, "2026-01-01T10:02:00Z", out.LastPlayed)
}

func TestAggregateExcludesPenaltiesFromTimeAggregates(t *testing.T) {
	history := []domain.ScoreRecord{
		{Player: "bob", Time: 50, Penalty: true, GameMode: domain.GameModeClassic, Timestamp: "t1"},
		{Player: "bob", Time: 300, GameMode: domain.GameModeClassic, Timestamp: "t2"},
	}

	out := Aggregate("bob", history, 0)

	assert.Equal(t, 2, out.TotalGames)
	require.NotNil(t, out.BestTime)
	assert.Equal(t, int64(300), *out.BestTime)
	require.NotNil(t, out.AverageTime)
	assert.Equal(t, 300.0, *out.AverageTime)
}

func TestAggregateCountsGamesByMode(t *testing.T) {
	history := []domain.ScoreRecord{
		{Player: "carol", Time: 100, GameMode: domain.GameModeClassic, Timestamp: "t1"},
		{Player: "carol", Time: 110, GameMode: domain.GameModeClassic, Timestamp: "t2"},
		{Player: "carol", Time: 30000, GameMode: domain.GameModeEndurance, Timestamp: "t3"},
	}

	out := Aggregate("carol", history, 0)

	assert.Equal(t, 2, out.GamesByMode[domain.GameModeClassic])
	assert.Equal(t, 1, out.GamesByMode[domain.GameModeEndurance])
	assert.Equal(t, 0, out.GamesByMode[domain.GameModePrecision])
}

func TestAggregateRoundsAverageToTwoDecimals(t *testing.T) {
	history := []domain.ScoreRecord{
		{Player: "dan", Time: 100, GameMode: domain.GameModeClassic, Timestamp: "t1"},
		{Player: "dan", Time: 101, GameMode: domain.GameModeClassic, Timestamp: "t2"},
		{Player: "dan", Time: 101, GameMode: domain.GameModeClassic, Timestamp: "t3"},
	}

	out := Aggregate("dan", history, 0)

	require.NotNil(t, out.AverageTime)
	assert.Equal(t, 100.67, *out.AverageTime)
}

func TestAggregateEmptyHistory(t *testing.T) {
	out := Aggregate("ghost", nil, 0)

	assert.Equal(t, "ghost", out.Player)
	assert.Equal(t, 0, out.TotalGames)
	assert.Nil(t, out.BestTime)
	assert.Nil(t, out.AverageTime)
	assert.Empty(t, out.LastPlayed)
	assert.Nil(t, out.StreakCurrent)
	assert.Nil(t, out.StreakBest)
}

func TestAggregateAllPenalties(t *testing.T) {
	history := []domain.ScoreRecord{
		{Player: "eve", Time: 10, Penalty: true, GameMode: domain.GameModeClassic, Timestamp: "t1"},
	}

	out := Aggregate("eve", history, 0)

	assert.Equal(t, 1, out.TotalGames)
	assert.Nil(t, out.BestTime)
	assert.Nil(t, out.AverageTime)
	assert.Equal(t, "t1", out.LastPlayed)
}
