package domain

// PlayerStats is the aggregate view of a player's score history.
// BestTime and AverageTime exclude penalized attempts and are nil when
// no non-penalized score exists. StreakCurrent and StreakBest are
// exposed for forward compatibility but are not computed; they stay
// null until a streak rule is defined.
type PlayerStats struct {
	Player            string           `json:"player"`
	TotalGames        int              `json:"total_games"`
	BestTime          *int64           `json:"best_time"`
	AverageTime       *float64         `json:"average_time"`
	GamesByMode       map[GameMode]int `json:"games_by_mode"`
	TotalAchievements int              `json:"total_achievements"`
	LastPlayed        string           `json:"last_played,omitempty"`
	StreakCurrent     *int             `json:"streak_current"`
	StreakBest        *int             `json:"streak_best"`
}
