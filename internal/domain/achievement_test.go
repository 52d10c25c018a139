package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnlockRequestFillsCatalogDefaults(t *testing.T) {
	req := UnlockRequest{
		Player:          "alice",
		AchievementType: AchievementSpeedDemon,
	}

	require.NoError(t, req.Validate())
	assert.Equal(t, "Speed Demon", req.Title)
	assert.Equal(t, "⚡", req.Icon)
	assert.NotEmpty(t, req.Description)
}

func TestUnlockRequestKeepsCallerOverrides(t *testing.T) {
	req := UnlockRequest{
		Player:          "alice",
		AchievementType: AchievementConsistencyMaster,
		Title:           "Custom Title",
	}

	require.NoError(t, req.Validate())
	assert.Equal(t, "Custom Title", req.Title)
	assert.Equal(t, "🎯", req.Icon)
}

func TestUnlockRequestRejectsUnknownType(t *testing.T) {
	req := UnlockRequest{
		Player:          "alice",
		AchievementType: "world_domination",
	}

	assert.ErrorIs(t, req.Validate(), ErrValidation)
}

func TestUnlockRequestRequiresPlayer(t *testing.T) {
	req := UnlockRequest{AchievementType: AchievementFirstClick}

	assert.ErrorIs(t, req.Validate(), ErrValidation)
}

func TestAchievementCatalogIsComplete(t *testing.T) {
	catalog := AchievementCatalog()

	require.Len(t, catalog, 7)
	seen := make(map[AchievementType]bool)
	for _, info := range catalog {
		assert.NotEmpty(t, info.Title)
		assert.NotEmpty(t, info.Icon)
		assert.False(t, seen[info.Type], "duplicate type %s", info.Type)
		seen[info.Type] = true
	}
	assert.True(t, seen[AchievementSpeedDemon])
	assert.True(t, seen[AchievementConsistencyMaster])
}

func TestLookupAchievement(t *testing.T) {
	info, ok := LookupAchievement(AchievementOnChainPioneer)
	require.True(t, ok)
	assert.Equal(t, "On-Chain Pioneer", info.Title)

	_, ok = LookupAchievement("nope")
	assert.False(t, ok)
}
