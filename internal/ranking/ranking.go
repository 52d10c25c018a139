// Package ranking orders score records into leaderboard views. The
// "better" direction is inverted between modes: endurance counts hits,
// where more is better; every other mode measures time, where less is
// better. Ties keep insertion order.
package ranking

import (
	"sort"

	"github.com/reflex-leaderboard/internal/domain"
)

// TopN returns the top limit records for a mode as projected
// leaderboard entries. Records must arrive in insertion order; the sort
// is stable so ties resolve to the earlier submission. An empty mode
// ranks all records together by time ascending.
func TopN(records []domain.ScoreRecord, mode domain.GameMode, limit int) []domain.LeaderboardEntry {
	ordered := make([]domain.ScoreRecord, len(records))
	copy(ordered, records)

	if mode == domain.GameModeEndurance {
		sort.SliceStable(ordered, func(i, j int) bool {
			return hits(ordered[i]) > hits(ordered[j])
		})
	} else {
		sort.SliceStable(ordered, func(i, j int) bool {
			return ordered[i].Time < ordered[j].Time
		})
	}

	if limit > 0 && len(ordered) > limit {
		ordered = ordered[:limit]
	}

	entries := make([]domain.LeaderboardEntry, len(ordered))
	for i, rec := range ordered {
		entries[i] = project(rec, i+1)
	}
	return entries
}

func hits(rec domain.ScoreRecord) int {
	if rec.HitsCount == nil {
		return 0
	}
	return *rec.HitsCount
}

// project shapes a record for callers. Internal fields (seq, creation
// timestamp) are excluded from the projection.
func project(rec domain.ScoreRecord, rank int) domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		Rank:          rank,
		ID:            rec.ID,
		Player:        rec.Player,
		Username:      rec.Username,
		Time:          rec.Time,
		Penalty:       rec.Penalty,
		Timestamp:     rec.Timestamp,
		GameMode:      rec.GameMode,
		LedgerTxID:    rec.LedgerTxID,
		Verified:      rec.Verified,
		HitsCount:     rec.HitsCount,
		Accuracy:      rec.Accuracy,
		TotalTargets:  rec.TotalTargets,
		SequenceTimes: rec.SequenceTimes,
	}
}
