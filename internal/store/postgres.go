// Gametime - Twitch EventSub ingestion and game time tracking
// Copyright 2026 FelpsBot contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/felpsbot/gametime

// Package store is the state applier: it commits accepted canonical events
// to PostgreSQL inside a single transaction and serves the read side for the
// game-time query endpoint.
package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felpsbot/gametime/internal/eventsub"
	"github.com/felpsbot/gametime/internal/logging"
	"github.com/felpsbot/gametime/internal/metrics"
)

// schemaSQL is embedded so the service can self-bootstrap its schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable persistence layer for streamer/game state.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a connection pool and fails fast if the database
// is unreachable.
func NewPostgresStore(ctx context.Context, dbURL string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return &PersistenceError{Op: "ensure_schema", Err: err}
	}
	return nil
}

// Ping is used by the readiness endpoint to validate connectivity.
func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// ApplyGameChange commits an accepted canonical event in one transaction:
// upsert the streamer, upsert the game, then conditionally advance
// last_time_played. The conditional write carries the monotonicity
// invariant: a late event with an older timestamp leaves the row untouched.
//
// The returned advanced flag is false when the stored timestamp was already
// newer or equal (ignore-as-stale). The streamer/game refreshes still commit
// in that case.
func (p *PostgresStore) ApplyGameChange(ctx context.Context, event *eventsub.CanonicalEvent) (advanced bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("apply_game_change", time.Since(start), err) }()

	streamerID, err := strconv.ParseInt(event.StreamerID, 10, 64)
	if err != nil {
		return false, &PersistenceError{Op: "apply_game_change", Err: fmt.Errorf("non-numeric streamer id %q", event.StreamerID)}
	}
	gameID, err := strconv.ParseInt(event.GameID, 10, 64)
	if err != nil {
		return false, &PersistenceError{Op: "apply_game_change", Err: fmt.Errorf("non-numeric game id %q", event.GameID)}
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, &PersistenceError{Op: "begin", Err: err}
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logging.Ctx(ctx).Warn().Err(rbErr).Msg("Transaction rollback failed")
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO streamer (twitch_id, name)
		VALUES ($1, $2)
		ON CONFLICT (twitch_id) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE streamer.name END
	`, streamerID, event.StreamerName)
	if err != nil {
		return false, &PersistenceError{Op: "upsert_streamer", Err: err}
	}

	// An empty image URL never clobbers one set by a previous enrichment.
	_, err = tx.Exec(ctx, `
		INSERT INTO game (twitch_id, name, image_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (twitch_id) DO UPDATE SET
			name      = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE game.name END,
			image_url = CASE WHEN EXCLUDED.image_url <> '' THEN EXCLUDED.image_url ELSE game.image_url END
	`, gameID, event.GameName, event.GameImageURL)
	if err != nil {
		return false, &PersistenceError{Op: "upsert_game", Err: err}
	}

	// RETURNING 1 only when the row was inserted or advanced; a stale
	// timestamp produces no rows.
	var one int
	err = tx.QueryRow(ctx, `
		INSERT INTO last_time_played (streamer_id, game_id, last_played)
		VALUES ($1, $2, $3)
		ON CONFLICT (streamer_id, game_id) DO UPDATE SET
			last_played = EXCLUDED.last_played
		WHERE last_time_played.last_played < EXCLUDED.last_played
		RETURNING 1
	`, streamerID, gameID, event.OccurredAt).Scan(&one)

	switch {
	case err == nil:
		advanced = true
	case errors.Is(err, pgx.ErrNoRows):
		advanced = false
	default:
		return false, &PersistenceError{Op: "upsert_last_time_played", Err: err}
	}

	if err = tx.Commit(ctx); err != nil {
		return false, &PersistenceError{Op: "commit", Err: err}
	}
	return advanced, nil
}

// LastPlayedRow is the read-side projection for the game-time query.
type LastPlayedRow struct {
	StreamerID   int64     `json:"streamer_id"`
	StreamerName string    `json:"streamer_name"`
	GameID       int64     `json:"game_id"`
	GameName     string    `json:"game_name"`
	LastPlayed   time.Time `json:"last_played"`
}

// GetLastPlayed returns the stored fact for a (streamer, game) pair.
// Returns ErrNotFound when the pair has never been observed.
func (p *PostgresStore) GetLastPlayed(ctx context.Context, streamerID, gameID int64) (row *LastPlayedRow, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_last_played", time.Since(start), err) }()

	row = &LastPlayedRow{}
	err = p.pool.QueryRow(ctx, `
		SELECT ltp.streamer_id, s.name, ltp.game_id, g.name, ltp.last_played
		FROM last_time_played ltp
		JOIN streamer s ON s.twitch_id = ltp.streamer_id
		JOIN game g ON g.twitch_id = ltp.game_id
		WHERE ltp.streamer_id = $1 AND ltp.game_id = $2
	`, streamerID, gameID).Scan(&row.StreamerID, &row.StreamerName, &row.GameID, &row.GameName, &row.LastPlayed)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get_last_played", Err: err}
	}
	return row, nil
}

// ListLastPlayed returns every recorded fact for a streamer, most recent
// first.
func (p *PostgresStore) ListLastPlayed(ctx context.Context, streamerID int64) (rows []LastPlayedRow, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_last_played", time.Since(start), err) }()

	result, err := p.pool.Query(ctx, `
		SELECT ltp.streamer_id, s.name, ltp.game_id, g.name, ltp.last_played
		FROM last_time_played ltp
		JOIN streamer s ON s.twitch_id = ltp.streamer_id
		JOIN game g ON g.twitch_id = ltp.game_id
		WHERE ltp.streamer_id = $1
		ORDER BY ltp.last_played DESC
	`, streamerID)
	if err != nil {
		return nil, &PersistenceError{Op: "list_last_played", Err: err}
	}
	defer result.Close()

	for result.Next() {
		var row LastPlayedRow
		if err := result.Scan(&row.StreamerID, &row.StreamerName, &row.GameID, &row.GameName, &row.LastPlayed); err != nil {
			return nil, &PersistenceError{Op: "list_last_played", Err: err}
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, &PersistenceError{Op: "list_last_played", Err: err}
	}
	return rows, nil
}
