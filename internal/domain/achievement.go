package domain

import (
	"fmt"
	"time"
)

// AchievementType identifies an entry in the fixed achievement catalog.
type AchievementType string

const (
	AchievementFirstClick        AchievementType = "first_click"
	AchievementSpeedDemon        AchievementType = "speed_demon"
	AchievementConsistencyMaster AchievementType = "consistency_master"
	AchievementEnduranceElite    AchievementType = "endurance_elite"
	AchievementSharpshooter      AchievementType = "sharpshooter"
	AchievementSequenceMaster    AchievementType = "sequence_master"
	AchievementOnChainPioneer    AchievementType = "on_chain_pioneer"
)

// AchievementInfo describes a catalog entry. Condition is documentation
// only; the server never evaluates it, unlocks are always explicitly
// requested by the caller.
type AchievementInfo struct {
	Type        AchievementType `json:"type"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Icon        string          `json:"icon"`
	Condition   string          `json:"condition"`
}

var achievementCatalog = []AchievementInfo{
	{Type: AchievementFirstClick, Title: "First Steps", Description: "Complete your first reaction test", Icon: "👶", Condition: "submit any score"},
	{Type: AchievementSpeedDemon, Title: "Speed Demon", Description: "React in under 200ms", Icon: "⚡", Condition: "classic time below 200ms"},
	{Type: AchievementConsistencyMaster, Title: "Consistency Master", Description: "Five games in a row within 50ms of each other", Icon: "🎯", Condition: "five consecutive non-penalty times within a 50ms band"},
	{Type: AchievementEnduranceElite, Title: "Endurance Elite", Description: "Land 50 hits in a single endurance session", Icon: "🔥", Condition: "endurance hits_count of 50 or more"},
	{Type: AchievementSharpshooter, Title: "Sharpshooter", Description: "Finish a precision round at 95% accuracy or better", Icon: "🏹", Condition: "precision accuracy of 95 or more"},
	{Type: AchievementSequenceMaster, Title: "Sequence Master", Description: "Clear a full sequence without a miss", Icon: "🧠", Condition: "sequence round with all targets hit"},
	{Type: AchievementOnChainPioneer, Title: "On-Chain Pioneer", Description: "Anchor a score to the permanent ledger", Icon: "⛓️", Condition: "submit a score with a verified ledger transaction"},
}

// AchievementCatalog returns the fixed catalog in a stable order.
func AchievementCatalog() []AchievementInfo {
	out := make([]AchievementInfo, len(achievementCatalog))
	copy(out, achievementCatalog)
	return out
}

// LookupAchievement returns the catalog entry for a type.
func LookupAchievement(t AchievementType) (AchievementInfo, bool) {
	for _, info := range achievementCatalog {
		if info.Type == t {
			return info, true
		}
	}
	return AchievementInfo{}, false
}

// UnlockStatus is the outcome of an unlock request. Unlocking an
// already-unlocked pair is a no-op, not an error.
type UnlockStatus string

const (
	UnlockStatusUnlocked        UnlockStatus = "unlocked"
	UnlockStatusAlreadyUnlocked UnlockStatus = "already_unlocked"
)

// UnlockRequest is the client payload for POST /achievements/unlock.
// Title, description and icon default to the catalog entry when empty.
type UnlockRequest struct {
	Player          string          `json:"player"`
	AchievementType AchievementType `json:"achievement_type"`
	Title           string          `json:"title,omitempty"`
	Description     string          `json:"description,omitempty"`
	Icon            string          `json:"icon,omitempty"`
	LedgerTxID      string          `json:"ledger_tx_id,omitempty"`
}

// Validate checks the request against the catalog and fills display
// fields from it when the caller omitted them.
func (r *UnlockRequest) Validate() error {
	if r.Player == "" {
		return fmt.Errorf("%w: player is required", ErrValidation)
	}
	info, ok := LookupAchievement(r.AchievementType)
	if !ok {
		return fmt.Errorf("%w: unknown achievement_type %q", ErrValidation, r.AchievementType)
	}
	if r.Title == "" {
		r.Title = info.Title
	}
	if r.Description == "" {
		r.Description = info.Description
	}
	if r.Icon == "" {
		r.Icon = info.Icon
	}
	return nil
}

// AchievementRecord is a stored unlock. At most one record exists per
// (player, achievement_type) pair; records are immutable once created.
type AchievementRecord struct {
	ID              string          `json:"id"`
	Player          string          `json:"player"`
	AchievementType AchievementType `json:"achievement_type"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Icon            string          `json:"icon"`
	UnlockedAt      time.Time       `json:"unlocked_at"`
	LedgerTxID      string          `json:"ledger_tx_id,omitempty"`
	Verified        bool            `json:"verified"`
}
