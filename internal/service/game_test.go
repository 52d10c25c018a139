package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/reflex-leaderboard/internal/config"
	"github.com/reflex-leaderboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScoreStore is an in-memory ScoreStore keeping insertion order.
type fakeScoreStore struct {
	records   []domain.ScoreRecord
	insertErr error
	listErr   error
}

func (f *fakeScoreStore) InsertScore(ctx context.Context, rec *domain.ScoreRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if rec.LedgerTxID != "" {
		for _, existing := range f.records {
			if existing.LedgerTxID == rec.LedgerTxID {
				return domain.ErrDuplicateTransaction
			}
		}
	}
	rec.Seq = int64(len(f.records) + 1)
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeScoreStore) ListScores(ctx context.Context, mode domain.GameMode) ([]domain.ScoreRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.ScoreRecord
	for _, rec := range f.records {
		if mode == "" || rec.GameMode == mode {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeScoreStore) PlayerScores(ctx context.Context, player string) ([]domain.ScoreRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.ScoreRecord
	for _, rec := range f.records {
		if rec.Player == player {
			out = append(out, rec)
		}
	}
	// time ascending, matching the storage contract
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Time < out[i].Time {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeScoreStore) PlayerHistory(ctx context.Context, player string) ([]domain.ScoreRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.ScoreRecord
	for _, rec := range f.records {
		if rec.Player == player {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeAchievementStore struct {
	records map[string]domain.AchievementRecord
}

func newFakeAchievementStore() *fakeAchievementStore {
	return &fakeAchievementStore{records: make(map[string]domain.AchievementRecord)}
}

func (f *fakeAchievementStore) key(player string, t domain.AchievementType) string {
	return player + "/" + string(t)
}

func (f *fakeAchievementStore) Unlock(ctx context.Context, rec *domain.AchievementRecord) (domain.UnlockStatus, *domain.AchievementRecord, error) {
	k := f.key(rec.Player, rec.AchievementType)
	if existing, ok := f.records[k]; ok {
		out := existing
		return domain.UnlockStatusAlreadyUnlocked, &out, nil
	}
	f.records[k] = *rec
	out := *rec
	return domain.UnlockStatusUnlocked, &out, nil
}

func (f *fakeAchievementStore) ListAchievements(ctx context.Context, player string) ([]domain.AchievementRecord, error) {
	var out []domain.AchievementRecord
	for _, rec := range f.records {
		if rec.Player == player {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeAchievementStore) CountAchievements(ctx context.Context, player string) (int, error) {
	n := 0
	for _, rec := range f.records {
		if rec.Player == player {
			n++
		}
	}
	return n, nil
}

type fakeAuditStore struct {
	records []domain.UploadRecord
}

func (f *fakeAuditStore) RecordUpload(ctx context.Context, rec domain.UploadRecord) error {
	f.records = append(f.records, rec)
	return nil
}

type fakeCache struct {
	boards      map[string][]domain.LeaderboardEntry
	invalidated []domain.GameMode
}

func newFakeCache() *fakeCache {
	return &fakeCache{boards: make(map[string][]domain.LeaderboardEntry)}
}

func (f *fakeCache) cacheKey(mode domain.GameMode, limit int) string {
	return fmt.Sprintf("%s/%d", mode, limit)
}

func (f *fakeCache) GetBoard(ctx context.Context, mode domain.GameMode, limit int) ([]domain.LeaderboardEntry, bool) {
	entries, ok := f.boards[f.cacheKey(mode, limit)]
	return entries, ok
}

func (f *fakeCache) SetBoard(ctx context.Context, mode domain.GameMode, limit int, entries []domain.LeaderboardEntry) {
	f.boards[f.cacheKey(mode, limit)] = entries
}

func (f *fakeCache) Invalidate(ctx context.Context, mode domain.GameMode) {
	f.invalidated = append(f.invalidated, mode)
	f.boards = make(map[string][]domain.LeaderboardEntry)
}

type fakeLedger struct {
	verifyResult bool
	verifyErr    error
	uploadResult domain.UploadResult
	uploadErr    error
	uploads      int
}

func (f *fakeLedger) Upload(ctx context.Context, player string, payload []byte, tags []domain.Tag) (domain.UploadResult, []domain.Tag, error) {
	f.uploads++
	return f.uploadResult, tags, f.uploadErr
}

func (f *fakeLedger) Verify(ctx context.Context, txID string) (bool, error) {
	return f.verifyResult, f.verifyErr
}

func (f *fakeLedger) GatewayURL(txID string) string {
	return "https://gateway.test/" + txID
}

func (f *fakeLedger) Sign(message []byte) (string, error) { return "sig", nil }

func (f *fakeLedger) PublicKey() (string, string, error) { return "pub", "addr", nil }

func (f *fakeLedger) Balance(ctx context.Context) (domain.BalanceInfo, error) {
	return domain.BalanceInfo{Balance: "1"}, nil
}

func (f *fakeLedger) Fund(ctx context.Context, amount string) (domain.FundResult, error) {
	return domain.FundResult{Amount: amount}, nil
}

func (f *fakeLedger) Price(ctx context.Context, size int64) (domain.PriceInfo, error) {
	return domain.PriceInfo{Bytes: size}, nil
}

func (f *fakeLedger) NetworkInfo(ctx context.Context) domain.NetworkInfo {
	return domain.NetworkInfo{Network: "devnet"}
}

func (f *fakeLedger) Configured() bool { return true }

type deps struct {
	scores       *fakeScoreStore
	achievements *fakeAchievementStore
	audit        *fakeAuditStore
	cache        *fakeCache
	ledger       *fakeLedger
}

func newService(t *testing.T) (*GameService, *deps) {
	t.Helper()
	d := &deps{
		scores:       &fakeScoreStore{},
		achievements: newFakeAchievementStore(),
		audit:        &fakeAuditStore{},
		cache:        newFakeCache(),
		ledger:       &fakeLedger{},
	}
	lbCfg := &config.LeaderboardConfig{DefaultLimit: 10, MaxLimit: 100}
	ledgerCfg := &config.LedgerConfig{}
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))
	svc := NewGameService(d.scores, d.achievements, d.audit, d.cache, d.ledger, lbCfg, ledgerCfg, logger)
	return svc, d
}

func submission() domain.ScoreSubmission {
	return domain.ScoreSubmission{
		Player:    "alice",
		Username:  "Alice",
		Time:      250,
		Timestamp: "2026-01-01T10:00:00Z",
	}
}

func TestSubmitScoreStoresRecord(t *testing.T) {
	svc, d := newService(t)

	result, err := svc.SubmitScore(context.Background(), submission())

	require.NoError(t, err)
	assert.NotEmpty(t, result.ID)
	assert.False(t, result.Verified)
	assert.Empty(t, result.Note)

	require.Len(t, d.scores.records, 1)
	rec := d.scores.records[0]
	assert.Equal(t, "alice", rec.Player)
	assert.Equal(t, domain.GameModeClassic, rec.GameMode)
	assert.Equal(t, []domain.GameMode{domain.GameModeClassic}, d.cache.invalidated)
}

func TestSubmitScoreValidationFailure(t *testing.T) {
	svc, d := newService(t)
	sub := submission()
	sub.Player = ""

	_, err := svc.SubmitScore(context.Background(), sub)

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, d.scores.records)
}

func TestSubmitScoreVerifiesLedgerTransaction(t *testing.T) {
	svc, d := newService(t)
	d.ledger.verifyResult = true
	sub := submission()
	sub.LedgerTxID = "tx-real"

	result, err := svc.SubmitScore(context.Background(), sub)

	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.True(t, d.scores.records[0].Verified)
}

func TestSubmitScoreVerificationFailureStillAccepts(t *testing.T) {
	svc, d := newService(t)
	d.ledger.verifyErr = domain.ErrLedgerUnavailable
	sub := submission()
	sub.LedgerTxID = "tx-unreachable"

	result, err := svc.SubmitScore(context.Background(), sub)

	require.NoError(t, err)
	assert.False(t, result.Verified)
	require.Len(t, d.scores.records, 1)
}

func TestSubmitScoreDuplicateTransaction(t *testing.T) {
	svc, _ := newService(t)
	sub := submission()
	sub.LedgerTxID = "tx-once"

	_, err := svc.SubmitScore(context.Background(), sub)
	require.NoError(t, err)

	_, err = svc.SubmitScore(context.Background(), sub)
	assert.ErrorIs(t, err, domain.ErrDuplicateTransaction)
}

func TestSubmitScoreDegradedWithoutStore(t *testing.T) {
	svc, _ := newService(t)
	svc.scores = nil

	result, err := svc.SubmitScore(context.Background(), submission())

	require.NoError(t, err)
	assert.NotEmpty(t, result.ID)
	assert.NotEmpty(t, result.Note)
}

func TestSubmitScoreDegradedOnInsertFailure(t *testing.T) {
	svc, d := newService(t)
	d.scores.insertErr = errors.New("connection reset")

	result, err := svc.SubmitScore(context.Background(), submission())

	require.NoError(t, err)
	assert.NotEmpty(t, result.Note)
	assert.Empty(t, d.cache.invalidated)
}

func TestLeaderboardRanksStoredScores(t *testing.T) {
	svc, _ := newService(t)
	for _, timeMs := range []int64{300, 100, 200} {
		sub := submission()
		sub.Time = timeMs
		_, err := svc.SubmitScore(context.Background(), sub)
		require.NoError(t, err)
	}

	entries, err := svc.Leaderboard(context.Background(), "classic", 10)

	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(100), entries[0].Time)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, int64(300), entries[2].Time)
}

func TestLeaderboardRejectsUnknownMode(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Leaderboard(context.Background(), "speedrun", 10)

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestLeaderboardClampsLimit(t *testing.T) {
	svc, d := newService(t)
	for i := 0; i < 5; i++ {
		sub := submission()
		sub.Time = int64(100 + i)
		_, err := svc.SubmitScore(context.Background(), sub)
		require.NoError(t, err)
	}
	d.cache.boards = make(map[string][]domain.LeaderboardEntry)

	entries, err := svc.Leaderboard(context.Background(), "", 1000)
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	entries, err = svc.Leaderboard(context.Background(), "", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLeaderboardServesCacheHit(t *testing.T) {
	svc, d := newService(t)
	cached := []domain.LeaderboardEntry{{Rank: 1, Player: "cached"}}
	d.cache.SetBoard(context.Background(), domain.GameModeClassic, 10, cached)

	entries, err := svc.Leaderboard(context.Background(), "classic", 10)

	require.NoError(t, err)
	assert.Equal(t, cached, entries)
}

func TestLeaderboardEmptyOnReadFailure(t *testing.T) {
	svc, d := newService(t)
	d.scores.listErr = errors.New("down")

	entries, err := svc.Leaderboard(context.Background(), "classic", 10)

	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPlayerProfileBestFirst(t *testing.T) {
	svc, _ := newService(t)
	for _, timeMs := range []int64{400, 150, 250} {
		sub := submission()
		sub.Time = timeMs
		_, err := svc.SubmitScore(context.Background(), sub)
		require.NoError(t, err)
	}

	profile, err := svc.PlayerProfile(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, 3, profile.TotalGames)
	require.NotNil(t, profile.BestScore)
	assert.Equal(t, int64(150), *profile.BestScore)
	assert.Equal(t, int64(150), profile.Scores[0].Time)
}

func TestPlayerProfileUnknownPlayer(t *testing.T) {
	svc, _ := newService(t)

	profile, err := svc.PlayerProfile(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Equal(t, 0, profile.TotalGames)
	assert.Nil(t, profile.BestScore)
	assert.Empty(t, profile.Scores)
}

func TestPlayerStatsIncludesAchievementCount(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.SubmitScore(context.Background(), submission())
	require.NoError(t, err)

	_, _, err = svc.UnlockAchievement(context.Background(), domain.UnlockRequest{
		Player:          "alice",
		AchievementType: domain.AchievementFirstClick,
	})
	require.NoError(t, err)

	stats, err := svc.PlayerStats(context.Background(), "alice")

	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalGames)
	assert.Equal(t, 1, stats.TotalAchievements)
}

func TestUnlockAchievementAtMostOnce(t *testing.T) {
	svc, _ := newService(t)
	req := domain.UnlockRequest{
		Player:          "alice",
		AchievementType: domain.AchievementSpeedDemon,
	}

	status, rec, err := svc.UnlockAchievement(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.UnlockStatusUnlocked, status)
	require.NotNil(t, rec)
	firstID := rec.ID

	status, rec, err = svc.UnlockAchievement(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.UnlockStatusAlreadyUnlocked, status)
	require.NotNil(t, rec)
	assert.Equal(t, firstID, rec.ID)
}

func TestUnlockAchievementUnknownType(t *testing.T) {
	svc, _ := newService(t)

	_, _, err := svc.UnlockAchievement(context.Background(), domain.UnlockRequest{
		Player:          "alice",
		AchievementType: "nope",
	})

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestUnlockAchievementAnchorsWhenEnabled(t *testing.T) {
	svc, d := newService(t)
	svc.ledgerCfg.AnchorAchievements = true
	d.ledger.uploadResult = domain.UploadResult{TxID: "anchor-tx", Success: true, Verified: true}

	status, rec, err := svc.UnlockAchievement(context.Background(), domain.UnlockRequest{
		Player:          "alice",
		AchievementType: domain.AchievementOnChainPioneer,
	})

	require.NoError(t, err)
	assert.Equal(t, domain.UnlockStatusUnlocked, status)
	assert.Equal(t, "anchor-tx", rec.LedgerTxID)
	assert.True(t, rec.Verified)
	assert.Equal(t, 1, d.ledger.uploads)
	require.Len(t, d.audit.records, 1)
	assert.Equal(t, "anchor-tx", d.audit.records[0].TxID)
}

func TestUnlockAchievementVerifiesProvidedTransaction(t *testing.T) {
	svc, d := newService(t)
	d.ledger.verifyResult = true

	_, rec, err := svc.UnlockAchievement(context.Background(), domain.UnlockRequest{
		Player:          "alice",
		AchievementType: domain.AchievementFirstClick,
		LedgerTxID:      "tx-provided",
	})

	require.NoError(t, err)
	assert.True(t, rec.Verified)
	assert.Equal(t, 0, d.ledger.uploads)
}

func TestVerifyTransaction(t *testing.T) {
	svc, d := newService(t)
	d.ledger.verifyResult = true

	verified, url, err := svc.VerifyTransaction(context.Background(), "tx-1")

	require.NoError(t, err)
	assert.True(t, verified)
	assert.Equal(t, "https://gateway.test/tx-1", url)
}

func TestVerifyTransactionNotFound(t *testing.T) {
	svc, _ := newService(t)

	verified, url, err := svc.VerifyTransaction(context.Background(), "tx-missing")

	require.NoError(t, err)
	assert.False(t, verified)
	assert.Empty(t, url)
}

func TestLedgerUploadRecordsAudit(t *testing.T) {
	svc, d := newService(t)
	d.ledger.uploadResult = domain.UploadResult{TxID: "up-1", Success: true, Verified: true}

	res, err := svc.LedgerUpload(context.Background(), "alice", json.RawMessage(`{"k":"v"}`), nil)

	require.NoError(t, err)
	assert.Equal(t, "up-1", res.TxID)
	require.Len(t, d.audit.records, 1)
	assert.Equal(t, "alice", d.audit.records[0].Player)
	assert.True(t, d.audit.records[0].Success)
}

func TestLedgerUploadAuditsFailures(t *testing.T) {
	svc, d := newService(t)
	d.ledger.uploadResult = domain.UploadResult{TxID: "local-abc", Success: false, Error: "timeout"}

	res, err := svc.LedgerUpload(context.Background(), "alice", json.RawMessage(`{}`), nil)

	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, d.audit.records, 1)
	assert.False(t, d.audit.records[0].Success)
	assert.Equal(t, "timeout", d.audit.records[0].Error)
}

func TestLedgerUploadRequiresData(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.LedgerUpload(context.Background(), "alice", nil, nil)

	assert.ErrorIs(t, err, domain.ErrValidation)
}
