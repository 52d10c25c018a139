// Package stats derives per-player aggregates from score history.
package stats

import (
	"math"

	"github.com/reflex-leaderboard/internal/domain"
)

// Aggregate computes player statistics from a history in storage order.
// Penalized attempts count toward totals and mode counts but are
// excluded from the time aggregates. Last-played comes from the most
// recently stored record, not the client-supplied timestamp ordering,
// because client timestamps are untrusted.
func Aggregate(player string, history []domain.ScoreRecord, achievements int) domain.PlayerStats {
	out := domain.PlayerStats{
		Player:            player,
		TotalGames:        len(history),
		GamesByMode:       make(map[domain.GameMode]int),
		TotalAchievements: achievements,
	}

	var sum int64
	var counted int
	for _, rec := range history {
		out.GamesByMode[rec.GameMode]++
		if rec.Penalty {
			continue
		}
		if out.BestTime == nil || rec.Time < *out.BestTime {
			t := rec.Time
			out.BestTime = &t
		}
		sum += rec.Time
		counted++
	}

	if counted > 0 {
		avg := math.Round(float64(sum)/float64(counted)*100) / 100
		out.AverageTime = &avg
	}

	if len(history) > 0 {
		out.LastPlayed = history[len(history)-1].Timestamp
	}

	// No streak rule exists yet; both streak fields stay null.
	return out
}
