// Package sqlite provides the SQLite-backed space and account store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"

	"github.com/dkeye/gather/internal/app"
	"github.com/dkeye/gather/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const schema = `
CREATE TABLE IF NOT EXISTS spaces (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	share_token TEXT NOT NULL DEFAULT '',
	only_owner  INTEGER NOT NULL DEFAULT 0,
	map_data    TEXT NOT NULL,
	updated_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS accounts (
	id         TEXT PRIMARY KEY,
	username   TEXT NOT NULL,
	skin       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Store persists spaces and accounts in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the database at path and creates the tables if needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func (s *Store) GetSpace(ctx context.Context, id domain.SpaceID) (*domain.Space, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var (
		sp        domain.Space
		onlyOwner int
		mapData   string
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, owner_id, share_token, only_owner, map_data FROM spaces WHERE id = ?`,
		string(id),
	).Scan(&sp.ID, &sp.OwnerID, &sp.ShareToken, &onlyOwner, &mapData)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, app.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get space: %w", err)
	}
	if err := json.Unmarshal([]byte(mapData), &sp.Map); err != nil {
		return nil, fmt.Errorf("decode map of space %s: %w", id, err)
	}
	sp.OnlyOwner = onlyOwner != 0
	return &sp, nil
}

// PutSpace inserts or replaces a space.
func (s *Store) PutSpace(ctx context.Context, sp domain.Space) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(string(sp.ID)) == "" {
		return fmt.Errorf("space id is required")
	}
	if strings.TrimSpace(string(sp.OwnerID)) == "" {
		return fmt.Errorf("owner id is required")
	}
	mapData, err := json.Marshal(sp.Map)
	if err != nil {
		return fmt.Errorf("encode map: %w", err)
	}
	onlyOwner := 0
	if sp.OnlyOwner {
		onlyOwner = 1
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO spaces (id, owner_id, share_token, only_owner, map_data, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   owner_id = excluded.owner_id,
		   share_token = excluded.share_token,
		   only_owner = excluded.only_owner,
		   map_data = excluded.map_data,
		   updated_at = excluded.updated_at`,
		string(sp.ID), string(sp.OwnerID), sp.ShareToken, onlyOwner, string(mapData), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put space: %w", err)
	}
	return nil
}

func (s *Store) DeleteSpace(ctx context.Context, id domain.SpaceID) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM spaces WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("delete space: %w", err)
	}
	return expectOne(res)
}

func (s *Store) GetAccount(ctx context.Context, uid domain.UserID) (*domain.Account, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var a domain.Account
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, username, skin FROM accounts WHERE id = ?`,
		string(uid),
	).Scan(&a.ID, &a.Username, &a.Skin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, app.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// PutAccount inserts or replaces an account after validating it.
func (s *Store) PutAccount(ctx context.Context, a domain.Account) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := domain.NewAccount(a.ID, a.Username, a.Skin); err != nil {
		return err
	}
	if strings.TrimSpace(string(a.ID)) == "" {
		return fmt.Errorf("account id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO accounts (id, username, skin, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   username = excluded.username,
		   skin = excluded.skin,
		   updated_at = excluded.updated_at`,
		string(a.ID), a.Username, a.Skin, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}

func (s *Store) UpdateSkin(ctx context.Context, uid domain.UserID, skin string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	var a domain.Account
	if err := a.SetSkin(skin); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE accounts SET skin = ?, updated_at = ? WHERE id = ?`,
		skin, time.Now().UTC().UnixMilli(), string(uid),
	)
	if err != nil {
		return fmt.Errorf("update skin: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return app.ErrNotFound
	}
	return nil
}
