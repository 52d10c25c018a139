package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reflex-leaderboard/internal/config"
	"github.com/reflex-leaderboard/internal/domain"
)

// Repository provides PostgreSQL-based data access for scores,
// achievements and the ledger upload audit trail.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations. The partial unique index
// on ledger_tx_id enforces uniqueness only for rows that carry a
// transaction id; a plain unique constraint on a nullable column is not
// reliable across engines.
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS scores (
			seq BIGSERIAL PRIMARY KEY,
			id VARCHAR(64) NOT NULL UNIQUE,
			player VARCHAR(128) NOT NULL,
			username VARCHAR(255) NOT NULL DEFAULT '',
			time_ms BIGINT NOT NULL,
			penalty BOOLEAN NOT NULL DEFAULT FALSE,
			client_timestamp VARCHAR(64) NOT NULL,
			game_mode VARCHAR(20) NOT NULL DEFAULT 'classic',
			hits_count INT,
			accuracy DOUBLE PRECISION,
			sequence_times JSONB,
			total_targets INT,
			ledger_tx_id VARCHAR(128),
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS achievements (
			seq BIGSERIAL PRIMARY KEY,
			id VARCHAR(64) NOT NULL UNIQUE,
			player VARCHAR(128) NOT NULL,
			achievement_type VARCHAR(64) NOT NULL,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			icon VARCHAR(16) NOT NULL DEFAULT '',
			ledger_tx_id VARCHAR(128),
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			unlocked_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(player, achievement_type)
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_uploads (
			seq BIGSERIAL PRIMARY KEY,
			tx_id VARCHAR(128) NOT NULL,
			player VARCHAR(128) NOT NULL DEFAULT '',
			data TEXT NOT NULL DEFAULT '',
			tags JSONB,
			uploaded_at TIMESTAMP NOT NULL,
			network VARCHAR(20) NOT NULL,
			verified BOOLEAN NOT NULL DEFAULT FALSE,
			success BOOLEAN NOT NULL DEFAULT FALSE,
			error TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_scores_ledger_tx
			ON scores(ledger_tx_id) WHERE ledger_tx_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_scores_player ON scores(player, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_mode_time ON scores(game_mode, time_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_uploads_tx ON ledger_uploads(tx_id)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// InsertScore stores a new score record. A collision on ledger_tx_id is
// reported as domain.ErrDuplicateTransaction so the caller can surface
// the conflict instead of silently dropping the submission.
func (r *Repository) InsertScore(ctx context.Context, rec *domain.ScoreRecord) error {
	var seqTimes []byte
	if len(rec.SequenceTimes) > 0 {
		var err error
		seqTimes, err = json.Marshal(rec.SequenceTimes)
		if err != nil {
			return fmt.Errorf("marshaling sequence times: %w", err)
		}
	}

	query := `
		INSERT INTO scores (
			id, player, username, time_ms, penalty, client_timestamp, game_mode,
			hits_count, accuracy, sequence_times, total_targets,
			ledger_tx_id, verified, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING seq
	`
	err := r.pool.QueryRow(ctx, query,
		rec.ID,
		rec.Player,
		rec.Username,
		rec.Time,
		rec.Penalty,
		rec.Timestamp,
		string(rec.GameMode),
		rec.HitsCount,
		rec.Accuracy,
		seqTimes,
		rec.TotalTargets,
		nullable(rec.LedgerTxID),
		rec.Verified,
		rec.CreatedAt,
	).Scan(&rec.Seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "idx_scores_ledger_tx" {
			return domain.ErrDuplicateTransaction
		}
		return fmt.Errorf("inserting score: %w", err)
	}
	return nil
}

// ListScores returns score records, optionally filtered by game mode,
// in insertion order. Ordering by seq keeps ranking ties stable.
func (r *Repository) ListScores(ctx context.Context, mode domain.GameMode) ([]domain.ScoreRecord, error) {
	query := `
		SELECT seq, id, player, username, time_ms, penalty, client_timestamp, game_mode,
			hits_count, accuracy, sequence_times, total_targets,
			ledger_tx_id, verified, created_at
		FROM scores
	`
	args := []any{}
	if mode != "" {
		query += ` WHERE game_mode = $1`
		args = append(args, string(mode))
	}
	query += ` ORDER BY seq ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing scores: %w", err)
	}
	defer rows.Close()

	return scanScores(rows)
}

// PlayerScores returns a player's records ordered by time ascending
// (best first), for display.
func (r *Repository) PlayerScores(ctx context.Context, player string) ([]domain.ScoreRecord, error) {
	query := `
		SELECT seq, id, player, username, time_ms, penalty, client_timestamp, game_mode,
			hits_count, accuracy, sequence_times, total_targets,
			ledger_tx_id, verified, created_at
		FROM scores
		WHERE player = $1
		ORDER BY time_ms ASC, seq ASC
	`
	rows, err := r.pool.Query(ctx, query, player)
	if err != nil {
		return nil, fmt.Errorf("getting player scores: %w", err)
	}
	defer rows.Close()

	return scanScores(rows)
}

// PlayerHistory returns a player's records in storage order. Statistics
// derive last-played from this order because client timestamps are
// untrusted.
func (r *Repository) PlayerHistory(ctx context.Context, player string) ([]domain.ScoreRecord, error) {
	query := `
		SELECT seq, id, player, username, time_ms, penalty, client_timestamp, game_mode,
			hits_count, accuracy, sequence_times, total_targets,
			ledger_tx_id, verified, created_at
		FROM scores
		WHERE player = $1
		ORDER BY seq ASC
	`
	rows, err := r.pool.Query(ctx, query, player)
	if err != nil {
		return nil, fmt.Errorf("getting player history: %w", err)
	}
	defer rows.Close()

	return scanScores(rows)
}

// Unlock inserts an achievement record unless the (player, type) pair
// already exists. Lookup-then-insert races are resolved by the unique
// constraint: the losing insert observes zero affected rows and returns
// the existing record with already_unlocked.
func (r *Repository) Unlock(ctx context.Context, rec *domain.AchievementRecord) (domain.UnlockStatus, *domain.AchievementRecord, error) {
	query := `
		INSERT INTO achievements (id, player, achievement_type, title, description, icon, ledger_tx_id, verified, unlocked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (player, achievement_type) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query,
		rec.ID,
		rec.Player,
		string(rec.AchievementType),
		rec.Title,
		rec.Description,
		rec.Icon,
		nullable(rec.LedgerTxID),
		rec.Verified,
		rec.UnlockedAt,
	)
	if err != nil {
		return "", nil, fmt.Errorf("unlocking achievement: %w", err)
	}

	if tag.RowsAffected() > 0 {
		return domain.UnlockStatusUnlocked, rec, nil
	}

	existing, err := r.getAchievement(ctx, rec.Player, rec.AchievementType)
	if err != nil {
		return "", nil, err
	}
	return domain.UnlockStatusAlreadyUnlocked, existing, nil
}

func (r *Repository) getAchievement(ctx context.Context, player string, t domain.AchievementType) (*domain.AchievementRecord, error) {
	query := `
		SELECT id, player, achievement_type, title, description, icon, ledger_tx_id, verified, unlocked_at
		FROM achievements
		WHERE player = $1 AND achievement_type = $2
	`
	var rec domain.AchievementRecord
	var txID *string
	err := r.pool.QueryRow(ctx, query, player, string(t)).Scan(
		&rec.ID,
		&rec.Player,
		&rec.AchievementType,
		&rec.Title,
		&rec.Description,
		&rec.Icon,
		&txID,
		&rec.Verified,
		&rec.UnlockedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting achievement: %w", err)
	}
	if txID != nil {
		rec.LedgerTxID = *txID
	}
	return &rec, nil
}

// ListAchievements returns a player's unlocks, most recent first.
func (r *Repository) ListAchievements(ctx context.Context, player string) ([]domain.AchievementRecord, error) {
	query := `
		SELECT id, player, achievement_type, title, description, icon, ledger_tx_id, verified, unlocked_at
		FROM achievements
		WHERE player = $1
		ORDER BY unlocked_at DESC, seq DESC
	`
	rows, err := r.pool.Query(ctx, query, player)
	if err != nil {
		return nil, fmt.Errorf("listing achievements: %w", err)
	}
	defer rows.Close()

	var records []domain.AchievementRecord
	for rows.Next() {
		var rec domain.AchievementRecord
		var txID *string
		err := rows.Scan(
			&rec.ID,
			&rec.Player,
			&rec.AchievementType,
			&rec.Title,
			&rec.Description,
			&rec.Icon,
			&txID,
			&rec.Verified,
			&rec.UnlockedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning achievement: %w", err)
		}
		if txID != nil {
			rec.LedgerTxID = *txID
		}
		records = append(records, rec)
	}
	return records, nil
}

// CountAchievements returns the number of unlocks for a player.
func (r *Repository) CountAchievements(ctx context.Context, player string) (int, error) {
	query := `SELECT COUNT(*) FROM achievements WHERE player = $1`
	var count int
	err := r.pool.QueryRow(ctx, query, player).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting achievements: %w", err)
	}
	return count, nil
}

// RecordUpload appends a row to the ledger upload audit trail. Every
// attempt is recorded, success or failure.
func (r *Repository) RecordUpload(ctx context.Context, rec domain.UploadRecord) error {
	var tagsJSON []byte
	if len(rec.Tags) > 0 {
		var err error
		tagsJSON, err = json.Marshal(rec.Tags)
		if err != nil {
			return fmt.Errorf("marshaling tags: %w", err)
		}
	}

	query := `
		INSERT INTO ledger_uploads (tx_id, player, data, tags, uploaded_at, network, verified, success, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.TxID,
		rec.Player,
		rec.Data,
		tagsJSON,
		rec.Timestamp,
		rec.Network,
		rec.Verified,
		rec.Success,
		nullable(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("recording upload: %w", err)
	}
	return nil
}

func scanScores(rows pgx.Rows) ([]domain.ScoreRecord, error) {
	var records []domain.ScoreRecord
	for rows.Next() {
		var rec domain.ScoreRecord
		var seqTimes []byte
		var txID *string
		err := rows.Scan(
			&rec.Seq,
			&rec.ID,
			&rec.Player,
			&rec.Username,
			&rec.Time,
			&rec.Penalty,
			&rec.Timestamp,
			&rec.GameMode,
			&rec.HitsCount,
			&rec.Accuracy,
			&seqTimes,
			&rec.TotalTargets,
			&txID,
			&rec.Verified,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		if txID != nil {
			rec.LedgerTxID = *txID
		}
		if len(seqTimes) > 0 {
			if err := json.Unmarshal(seqTimes, &rec.SequenceTimes); err != nil {
				return nil, fmt.Errorf("unmarshaling sequence times: %w", err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// nullable maps an empty string to NULL so partial unique indexes only
// see rows with real values.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
