package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dappvibe/defi-lp-manager/internal/model"
)

// Store provides Postgres persistence for bot state.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tracked_messages (
			id TEXT PRIMARY KEY,
			chat_id BIGINT NOT NULL,
			message_id BIGINT NOT NULL,
			checksum BIGINT NOT NULL,
			meta JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS price_alerts (
			id TEXT PRIMARY KEY,
			pool_address TEXT NOT NULL,
			chat_id BIGINT NOT NULL,
			target NUMERIC NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS monitored_wallets (
			address TEXT PRIMARY KEY,
			chat_ids BIGINT[] NOT NULL,
			snapshot JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) PutMessage(ctx context.Context, msg model.TrackedMessage) error {
	meta, err := json.Marshal(msg.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tracked_messages (id, chat_id, message_id, checksum, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id)
		DO UPDATE SET
			chat_id = EXCLUDED.chat_id,
			message_id = EXCLUDED.message_id,
			checksum = EXCLUDED.checksum,
			meta = EXCLUDED.meta,
			updated_at = EXCLUDED.updated_at
	`, msg.ID, msg.ChatID, msg.MessageID, int64(msg.Checksum), meta, msg.CreatedAt, msg.UpdatedAt)
	return err
}

func (s *Store) GetMessage(ctx context.Context, id string) (model.TrackedMessage, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, chat_id, message_id, checksum, meta, created_at, updated_at
		FROM tracked_messages WHERE id = $1
	`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.TrackedMessage{}, false, nil
		}
		return model.TrackedMessage{}, false, err
	}
	return msg, true, nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM tracked_messages WHERE id = $1`, id)
	return err
}

func (s *Store) MessagesByPrefix(ctx context.Context, prefix string) ([]model.TrackedMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, message_id, checksum, meta, created_at, updated_at
		FROM tracked_messages WHERE id LIKE $1 || '%'
	`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.TrackedMessage, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func scanMessage(row pgx.Row) (model.TrackedMessage, error) {
	var msg model.TrackedMessage
	var checksum int64
	var meta []byte
	if err := row.Scan(&msg.ID, &msg.ChatID, &msg.MessageID, &checksum, &meta, &msg.CreatedAt, &msg.UpdatedAt); err != nil {
		return model.TrackedMessage{}, err
	}
	msg.Checksum = uint64(checksum)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &msg.Meta); err != nil {
			return model.TrackedMessage{}, fmt.Errorf("unmarshal meta: %w", err)
		}
	}
	return msg, nil
}

func (s *Store) PutAlert(ctx context.Context, alert model.PriceAlert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_alerts (id, pool_address, chat_id, target, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET target = EXCLUDED.target
	`, alert.ID, alert.Pool.Hex(), alert.ChatID, alert.Target, alert.CreatedAt)
	return err
}

func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM price_alerts WHERE id = $1`, id)
	return err
}

func (s *Store) AlertsByPool(ctx context.Context, pool common.Address) ([]model.PriceAlert, error) {
	return s.queryAlerts(ctx, `
		SELECT id, pool_address, chat_id, target, created_at
		FROM price_alerts WHERE pool_address = $1
	`, pool.Hex())
}

func (s *Store) Alerts(ctx context.Context) ([]model.PriceAlert, error) {
	return s.queryAlerts(ctx, `
		SELECT id, pool_address, chat_id, target, created_at
		FROM price_alerts
	`)
}

func (s *Store) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]model.PriceAlert, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.PriceAlert, 0)
	for rows.Next() {
		var alert model.PriceAlert
		var pool string
		var target decimal.Decimal
		if err := rows.Scan(&alert.ID, &pool, &alert.ChatID, &target, &alert.CreatedAt); err != nil {
			return nil, err
		}
		alert.Pool = common.HexToAddress(pool)
		alert.Target = target
		out = append(out, alert)
	}
	return out, rows.Err()
}

func (s *Store) PutWallet(ctx context.Context, wallet model.MonitoredWallet) error {
	snapshot, err := json.Marshal(wallet.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO monitored_wallets (address, chat_ids, snapshot, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (address)
		DO UPDATE SET
			chat_ids = EXCLUDED.chat_ids,
			snapshot = EXCLUDED.snapshot
	`, wallet.Address.Hex(), wallet.ChatIDs, snapshot, wallet.CreatedAt)
	return err
}

func (s *Store) GetWallet(ctx context.Context, address common.Address) (model.MonitoredWallet, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT address, chat_ids, snapshot, created_at
		FROM monitored_wallets WHERE address = $1
	`, address.Hex())
	wallet, err := scanWallet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MonitoredWallet{}, false, nil
		}
		return model.MonitoredWallet{}, false, err
	}
	return wallet, true, nil
}

func (s *Store) DeleteWallet(ctx context.Context, address common.Address) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM monitored_wallets WHERE address = $1`, address.Hex())
	return err
}

func (s *Store) Wallets(ctx context.Context) ([]model.MonitoredWallet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, chat_ids, snapshot, created_at
		FROM monitored_wallets
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.MonitoredWallet, 0)
	for rows.Next() {
		wallet, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wallet)
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row) (model.MonitoredWallet, error) {
	var wallet model.MonitoredWallet
	var address string
	var snapshot []byte
	if err := row.Scan(&address, &wallet.ChatIDs, &snapshot, &wallet.CreatedAt); err != nil {
		return model.MonitoredWallet{}, err
	}
	wallet.Address = common.HexToAddress(address)
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &wallet.Snapshot); err != nil {
			return model.MonitoredWallet{}, fmt.Errorf("unmarshal snapshot: %w", err)
		}
	}
	return wallet, nil
}
