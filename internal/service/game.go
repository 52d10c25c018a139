package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/reflex-leaderboard/internal/config"
	"github.com/reflex-leaderboard/internal/domain"
	"github.com/reflex-leaderboard/internal/ranking"
	"github.com/reflex-leaderboard/internal/stats"
	"github.com/reflex-leaderboard/internal/websocket"
)

// ScoreStore persists score records.
type ScoreStore interface {
	InsertScore(ctx context.Context, rec *domain.ScoreRecord) error
	ListScores(ctx context.Context, mode domain.GameMode) ([]domain.ScoreRecord, error)
	PlayerScores(ctx context.Context, player string) ([]domain.ScoreRecord, error)
	PlayerHistory(ctx context.Context, player string) ([]domain.ScoreRecord, error)
}

// AchievementStore persists achievement unlocks.
type AchievementStore interface {
	Unlock(ctx context.Context, rec *domain.AchievementRecord) (domain.UnlockStatus, *domain.AchievementRecord, error)
	ListAchievements(ctx context.Context, player string) ([]domain.AchievementRecord, error)
	CountAchievements(ctx context.Context, player string) (int, error)
}

// AuditStore records ledger upload attempts.
type AuditStore interface {
	RecordUpload(ctx context.Context, rec domain.UploadRecord) error
}

// BoardCache caches rendered leaderboards.
type BoardCache interface {
	GetBoard(ctx context.Context, mode domain.GameMode, limit int) ([]domain.LeaderboardEntry, bool)
	SetBoard(ctx context.Context, mode domain.GameMode, limit int, entries []domain.LeaderboardEntry)
	Invalidate(ctx context.Context, mode domain.GameMode)
}

// LedgerClient talks to the permanent-storage network.
type LedgerClient interface {
	Upload(ctx context.Context, player string, payload []byte, tags []domain.Tag) (domain.UploadResult, []domain.Tag, error)
	Verify(ctx context.Context, txID string) (bool, error)
	GatewayURL(txID string) string
	Sign(message []byte) (string, error)
	PublicKey() (string, string, error)
	Balance(ctx context.Context) (domain.BalanceInfo, error)
	Fund(ctx context.Context, amount string) (domain.FundResult, error)
	Price(ctx context.Context, size int64) (domain.PriceInfo, error)
	NetworkInfo(ctx context.Context) domain.NetworkInfo
	Configured() bool
}

// GameService provides business logic for scores, leaderboards,
// achievements and the ledger integration. All collaborators are
// injected at construction; any of them may be absent, in which case
// the service degrades per contract instead of failing outright.
type GameService struct {
	scores       ScoreStore
	achievements AchievementStore
	audit        AuditStore
	cache        BoardCache
	ledger       LedgerClient
	cfg          *config.LeaderboardConfig
	ledgerCfg    *config.LedgerConfig
	hub          *websocket.Hub
	logger       *slog.Logger
}

// NewGameService creates a new game service
func NewGameService(
	scores ScoreStore,
	achievements AchievementStore,
	audit AuditStore,
	cache BoardCache,
	ledger LedgerClient,
	cfg *config.LeaderboardConfig,
	ledgerCfg *config.LedgerConfig,
	logger *slog.Logger,
) *GameService {
	return &GameService{
		scores:       scores,
		achievements: achievements,
		audit:        audit,
		cache:        cache,
		ledger:       ledger,
		cfg:          cfg,
		ledgerCfg:    ledgerCfg,
		logger:       logger,
	}
}

// SetHub attaches the WebSocket hub for score broadcasts.
func (s *GameService) SetHub(hub *websocket.Hub) {
	s.hub = hub
}

const degradedNote = "accepted but not durably stored"

// SubmitScore validates and stores a score submission. When the record
// carries a ledger transaction id it is verified inline against the
// gateway; verification failure never fails the submission. When the
// persistence layer is down the score is still accepted, with a note
// telling the caller durability was not achieved.
func (s *GameService) SubmitScore(ctx context.Context, sub domain.ScoreSubmission) (domain.SubmitResult, error) {
	sub.Normalize()
	if err := sub.Validate(); err != nil {
		return domain.SubmitResult{}, err
	}

	rec := &domain.ScoreRecord{
		ID:            uuid.New().String(),
		Player:        sub.Player,
		Username:      sub.Username,
		Time:          sub.Time,
		Penalty:       sub.Penalty,
		Timestamp:     sub.Timestamp,
		GameMode:      sub.GameMode,
		LedgerTxID:    sub.LedgerTxID,
		HitsCount:     sub.HitsCount,
		Accuracy:      sub.Accuracy,
		SequenceTimes: sub.SequenceTimes,
		TotalTargets:  sub.TotalTargets,
		CreatedAt:     time.Now(),
	}

	if rec.LedgerTxID != "" && s.ledger != nil {
		verified, err := s.ledger.Verify(ctx, rec.LedgerTxID)
		if err != nil {
			s.logger.Warn("ledger verification unavailable",
				"tx_id", rec.LedgerTxID,
				"error", err,
			)
		}
		rec.Verified = verified
	}

	if s.scores == nil {
		s.logger.Warn("score accepted without persistence layer", "player", rec.Player)
		return domain.SubmitResult{ID: rec.ID, Verified: rec.Verified, Note: degradedNote}, nil
	}

	if err := s.scores.InsertScore(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrDuplicateTransaction) {
			return domain.SubmitResult{}, err
		}
		s.logger.Warn("score accepted but not stored", "player", rec.Player, "error", err)
		return domain.SubmitResult{ID: rec.ID, Verified: rec.Verified, Note: degradedNote}, nil
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, rec.GameMode)
	}
	if s.hub != nil {
		s.hub.BroadcastScoreAccepted(string(rec.GameMode), *rec)
	}

	return domain.SubmitResult{ID: rec.ID, Verified: rec.Verified}, nil
}

// Leaderboard returns the top N records for a mode. An empty mode ranks
// all modes together by time. With the persistence layer absent or
// failing, reads return an empty board rather than an error: no data
// and no backend are indistinguishable at the read layer.
func (s *GameService) Leaderboard(ctx context.Context, modeStr string, limit int) ([]domain.LeaderboardEntry, error) {
	var mode domain.GameMode
	if modeStr != "" {
		mode = domain.GameMode(modeStr)
		if !mode.Valid() {
			return nil, fmt.Errorf("%w: unknown game_mode %q", domain.ErrValidation, modeStr)
		}
	}

	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	if s.cache != nil {
		if entries, ok := s.cache.GetBoard(ctx, mode, limit); ok {
			return entries, nil
		}
	}

	if s.scores == nil {
		return []domain.LeaderboardEntry{}, nil
	}

	records, err := s.scores.ListScores(ctx, mode)
	if err != nil {
		s.logger.Warn("leaderboard read failed, serving empty board", "error", err)
		return []domain.LeaderboardEntry{}, nil
	}

	entries := ranking.TopN(records, mode, limit)
	if entries == nil {
		entries = []domain.LeaderboardEntry{}
	}

	if s.cache != nil {
		s.cache.SetBoard(ctx, mode, limit, entries)
	}
	return entries, nil
}

// PlayerProfile returns a player's score history ordered best-first.
// Unknown players get an empty profile, not an error.
func (s *GameService) PlayerProfile(ctx context.Context, player string) (domain.PlayerProfile, error) {
	profile := domain.PlayerProfile{
		Player: player,
		Scores: []domain.ScoreRecord{},
	}

	if s.scores == nil {
		return profile, nil
	}

	records, err := s.scores.PlayerScores(ctx, player)
	if err != nil {
		s.logger.Warn("player scores read failed, serving empty profile", "player", player, "error", err)
		return profile, nil
	}

	profile.TotalGames = len(records)
	if len(records) > 0 {
		best := records[0].Time
		profile.BestScore = &best
		profile.Scores = records
	}
	return profile, nil
}

// PlayerStats aggregates a player's history. Unknown players get
// zero-valued stats.
func (s *GameService) PlayerStats(ctx context.Context, player string) (domain.PlayerStats, error) {
	var history []domain.ScoreRecord
	if s.scores != nil {
		var err error
		history, err = s.scores.PlayerHistory(ctx, player)
		if err != nil {
			s.logger.Warn("player history read failed, serving zero stats", "player", player, "error", err)
			history = nil
		}
	}

	achievements := 0
	if s.achievements != nil {
		count, err := s.achievements.CountAchievements(ctx, player)
		if err != nil {
			s.logger.Warn("achievement count failed", "player", player, "error", err)
		} else {
			achievements = count
		}
	}

	return stats.Aggregate(player, history, achievements), nil
}

// UnlockAchievement records an achievement unlock. Unlocking the same
// pair twice is a no-op returning the existing record. When anchoring
// is enabled and the request carries no transaction id, the unlock
// event is uploaded to the ledger best-effort before insertion.
func (s *GameService) UnlockAchievement(ctx context.Context, req domain.UnlockRequest) (domain.UnlockStatus, *domain.AchievementRecord, error) {
	if err := req.Validate(); err != nil {
		return "", nil, err
	}

	rec := &domain.AchievementRecord{
		ID:              uuid.New().String(),
		Player:          req.Player,
		AchievementType: req.AchievementType,
		Title:           req.Title,
		Description:     req.Description,
		Icon:            req.Icon,
		LedgerTxID:      req.LedgerTxID,
		UnlockedAt:      time.Now(),
	}

	switch {
	case rec.LedgerTxID != "" && s.ledger != nil:
		verified, err := s.ledger.Verify(ctx, rec.LedgerTxID)
		if err != nil {
			s.logger.Warn("ledger verification unavailable", "tx_id", rec.LedgerTxID, "error", err)
		}
		rec.Verified = verified

	case s.ledger != nil && s.ledgerCfg != nil && s.ledgerCfg.AnchorAchievements:
		payload, err := json.Marshal(map[string]any{
			"event":            "achievement_unlock",
			"player":           rec.Player,
			"achievement_type": rec.AchievementType,
			"title":            rec.Title,
			"unlocked_at":      rec.UnlockedAt.UTC().Format(time.RFC3339),
		})
		if err == nil {
			res, tags, upErr := s.ledger.Upload(ctx, rec.Player, payload, []domain.Tag{{Name: "Type", Value: "achievement"}})
			s.recordUploadAudit(ctx, rec.Player, string(payload), tags, res)
			if upErr != nil {
				s.logger.Warn("achievement anchor upload failed", "player", rec.Player, "error", upErr)
			}
			if res.Success {
				rec.LedgerTxID = res.TxID
				rec.Verified = res.Verified
			}
		}
	}

	if s.achievements == nil {
		return "", nil, domain.ErrStorageUnavailable
	}
	return s.achievements.Unlock(ctx, rec)
}

// Achievements returns a player's unlocks, most recent first.
func (s *GameService) Achievements(ctx context.Context, player string) ([]domain.AchievementRecord, error) {
	if s.achievements == nil {
		return []domain.AchievementRecord{}, nil
	}
	records, err := s.achievements.ListAchievements(ctx, player)
	if err != nil {
		s.logger.Warn("achievement list read failed, serving empty list", "player", player, "error", err)
		return []domain.AchievementRecord{}, nil
	}
	if records == nil {
		records = []domain.AchievementRecord{}
	}
	return records, nil
}

// VerifyTransaction checks a transaction against the gateway and
// returns the public URL when it exists.
func (s *GameService) VerifyTransaction(ctx context.Context, txID string) (bool, string, error) {
	if s.ledger == nil {
		return false, "", domain.ErrLedgerUnavailable
	}
	verified, err := s.ledger.Verify(ctx, txID)
	if err != nil {
		return false, "", err
	}
	if !verified {
		return false, "", nil
	}
	return true, s.ledger.GatewayURL(txID), nil
}

// LedgerUpload uploads arbitrary data to the ledger on behalf of a
// player, recording an audit row for the attempt regardless of outcome.
func (s *GameService) LedgerUpload(ctx context.Context, player string, data json.RawMessage, tags []domain.Tag) (domain.UploadResult, error) {
	if s.ledger == nil {
		return domain.UploadResult{}, domain.ErrLedgerUnavailable
	}
	if len(data) == 0 {
		return domain.UploadResult{}, fmt.Errorf("%w: data is required", domain.ErrValidation)
	}

	res, allTags, err := s.ledger.Upload(ctx, player, data, tags)
	s.recordUploadAudit(ctx, player, string(data), allTags, res)
	return res, err
}

func (s *GameService) recordUploadAudit(ctx context.Context, player, data string, tags []domain.Tag, res domain.UploadResult) {
	if s.audit == nil {
		return
	}
	err := s.audit.RecordUpload(ctx, domain.UploadRecord{
		TxID:      res.TxID,
		Player:    player,
		Data:      data,
		Tags:      tags,
		Timestamp: time.Now(),
		Network:   res.Network,
		Verified:  res.Verified,
		Success:   res.Success,
		Error:     res.Error,
	})
	if err != nil {
		s.logger.Warn("failed to record upload audit", "tx_id", res.TxID, "error", err)
	}
}

// Ledger exposes the underlying ledger client for ledger-only
// endpoints (sign, balance, fund, price, network info).
func (s *GameService) Ledger() LedgerClient {
	return s.ledger
}
