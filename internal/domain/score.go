package domain

import (
	"fmt"
	"time"
)

// GameMode identifies a scoring discipline. Each mode has its own
// "better" direction: endurance ranks by hits descending, every other
// mode by time ascending.
type GameMode string

const (
	GameModeClassic   GameMode = "classic"
	GameModeSequence  GameMode = "sequence"
	GameModeEndurance GameMode = "endurance"
	GameModePrecision GameMode = "precision"
)

// Valid reports whether the mode is part of the fixed catalog.
func (m GameMode) Valid() bool {
	switch m {
	case GameModeClassic, GameModeSequence, GameModeEndurance, GameModePrecision:
		return true
	}
	return false
}

// GameModeInfo describes a game mode for the /game-modes catalog.
type GameModeInfo struct {
	ID          GameMode `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Unit        string   `json:"unit"`
}

// GameModes returns the mode catalog in a stable order.
func GameModes() []GameModeInfo {
	return []GameModeInfo{
		{ID: GameModeClassic, Name: "Classic", Description: "Single target reaction time", Unit: "ms"},
		{ID: GameModeSequence, Name: "Sequence", Description: "Chain of targets, total reaction time", Unit: "ms"},
		{ID: GameModeEndurance, Name: "Endurance", Description: "Hit as many targets as possible before time runs out", Unit: "hits"},
		{ID: GameModePrecision, Name: "Precision", Description: "Shrinking targets, reaction time with accuracy tracking", Unit: "ms"},
	}
}

// ScoreSubmission is the client payload for POST /scores. The id and
// verified flag are assigned server-side.
type ScoreSubmission struct {
	Player        string   `json:"player"`
	Username      string   `json:"username"`
	Time          int64    `json:"time"`
	Penalty       bool     `json:"penalty"`
	Timestamp     string   `json:"timestamp"`
	GameMode      GameMode `json:"game_mode,omitempty"`
	LedgerTxID    string   `json:"ledger_tx_id,omitempty"`
	HitsCount     *int     `json:"hits_count,omitempty"`
	Accuracy      *float64 `json:"accuracy,omitempty"`
	SequenceTimes []int64  `json:"sequence_times,omitempty"`
	TotalTargets  *int     `json:"total_targets,omitempty"`
}

// Normalize applies defaults. Older clients submit without a game_mode
// field; those scores are classic.
func (s *ScoreSubmission) Normalize() {
	if s.GameMode == "" {
		s.GameMode = GameModeClassic
	}
}

// Validate rejects malformed submissions and field/mode combinations
// that do not belong together (for example accuracy on a classic
// score). Call Normalize first.
func (s *ScoreSubmission) Validate() error {
	if s.Player == "" {
		return fmt.Errorf("%w: player is required", ErrValidation)
	}
	if s.Timestamp == "" {
		return fmt.Errorf("%w: timestamp is required", ErrValidation)
	}
	if s.Time <= 0 {
		return fmt.Errorf("%w: time must be a positive millisecond value", ErrValidation)
	}
	if !s.GameMode.Valid() {
		return fmt.Errorf("%w: unknown game_mode %q", ErrValidation, s.GameMode)
	}

	switch s.GameMode {
	case GameModeClassic:
		if s.HitsCount != nil || s.Accuracy != nil || len(s.SequenceTimes) > 0 || s.TotalTargets != nil {
			return fmt.Errorf("%w: classic scores carry no mode-specific fields", ErrValidation)
		}
	case GameModeSequence:
		if s.HitsCount != nil || s.Accuracy != nil {
			return fmt.Errorf("%w: sequence scores carry only sequence_times and total_targets", ErrValidation)
		}
		for _, t := range s.SequenceTimes {
			if t <= 0 {
				return fmt.Errorf("%w: sequence_times entries must be positive", ErrValidation)
			}
		}
	case GameModeEndurance:
		if s.Accuracy != nil || len(s.SequenceTimes) > 0 || s.TotalTargets != nil {
			return fmt.Errorf("%w: endurance scores carry only hits_count", ErrValidation)
		}
		if s.HitsCount == nil || *s.HitsCount < 0 {
			return fmt.Errorf("%w: endurance scores require a non-negative hits_count", ErrValidation)
		}
	case GameModePrecision:
		if s.HitsCount != nil || len(s.SequenceTimes) > 0 {
			return fmt.Errorf("%w: precision scores carry only accuracy and total_targets", ErrValidation)
		}
		if s.Accuracy != nil && (*s.Accuracy < 0 || *s.Accuracy > 100) {
			return fmt.Errorf("%w: accuracy must be between 0 and 100", ErrValidation)
		}
	}
	return nil
}

// ScoreRecord is a stored score. Records are immutable after insertion;
// the verified flag is decided during the same request. Seq and
// CreatedAt are internal and never serialized to clients.
type ScoreRecord struct {
	ID            string    `json:"id"`
	Player        string    `json:"player"`
	Username      string    `json:"username"`
	Time          int64     `json:"time"`
	Penalty       bool      `json:"penalty"`
	Timestamp     string    `json:"timestamp"`
	GameMode      GameMode  `json:"game_mode"`
	LedgerTxID    string    `json:"ledger_tx_id,omitempty"`
	Verified      bool      `json:"verified"`
	HitsCount     *int      `json:"hits_count,omitempty"`
	Accuracy      *float64  `json:"accuracy,omitempty"`
	SequenceTimes []int64   `json:"sequence_times,omitempty"`
	TotalTargets  *int      `json:"total_targets,omitempty"`
	Seq           int64     `json:"-"`
	CreatedAt     time.Time `json:"-"`
}

// SubmitResult is returned for an accepted submission. Note is set when
// the score was accepted but could not be durably stored.
type SubmitResult struct {
	ID       string `json:"id"`
	Verified bool   `json:"verified"`
	Note     string `json:"note,omitempty"`
}

// LeaderboardEntry is the projection of a ScoreRecord served to
// leaderboard callers.
type LeaderboardEntry struct {
	Rank          int      `json:"rank"`
	ID            string   `json:"id"`
	Player        string   `json:"player"`
	Username      string   `json:"username"`
	Time          int64    `json:"time"`
	Penalty       bool     `json:"penalty"`
	Timestamp     string   `json:"timestamp"`
	GameMode      GameMode `json:"game_mode"`
	LedgerTxID    string   `json:"ledger_tx_id,omitempty"`
	Verified      bool     `json:"verified"`
	HitsCount     *int     `json:"hits_count,omitempty"`
	Accuracy      *float64 `json:"accuracy,omitempty"`
	TotalTargets  *int     `json:"total_targets,omitempty"`
	SequenceTimes []int64  `json:"sequence_times,omitempty"`
}

// PlayerProfile is the GET /player/{player} payload. BestScore is the
// lowest time in the player's history, nil when the player has no
// scores.
type PlayerProfile struct {
	Player     string        `json:"player"`
	TotalGames int           `json:"total_games"`
	BestScore  *int64        `json:"best_score"`
	Scores     []ScoreRecord `json:"scores"`
}
