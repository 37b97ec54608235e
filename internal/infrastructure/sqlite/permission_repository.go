package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/permission"
)

// PermissionRepository stores permission records in a local SQLite file.
type PermissionRepository struct {
	db *sql.DB
}

func NewPermissionRepository(dbPath string) (*PermissionRepository, error) {
	dbPath = strings.TrimSpace(dbPath)
	if dbPath == "" {
		return nil, fmt.Errorf("empty sqlite database path")
	}
	if dbPath != ":memory:" {
		parent := filepath.Dir(dbPath)
		if parent != "" && parent != "." {
			if err := os.MkdirAll(parent, 0o755); err != nil {
				return nil, err
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PermissionRepository{db: db}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`
CREATE TABLE IF NOT EXISTS permission_users (
    identity_key TEXT PRIMARY KEY,
    identity TEXT NOT NULL,
    updated_at_ms INTEGER NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS permission_nodes (
    identity_key TEXT NOT NULL REFERENCES permission_users(identity_key) ON DELETE CASCADE,
    node TEXT NOT NULL,
    PRIMARY KEY (identity_key, node)
)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure sqlite schema: %w", err)
		}
	}
	return nil
}

func (r *PermissionRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PermissionRepository) Get(ctx context.Context, id identity.Identity) (*permission.Record, error) {
	var (
		name      string
		updatedMs int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT identity, updated_at_ms FROM permission_users WHERE identity_key = ?`, id.Key(),
	).Scan(&name, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, permission.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT node FROM permission_nodes WHERE identity_key = ?`, id.Key())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rec := permission.NewRecord(identity.Identity(name))
	for rows.Next() {
		var node string
		if err := rows.Scan(&node); err != nil {
			return nil, err
		}
		rec.Nodes[node] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rec.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return rec, nil
}

func (r *PermissionRepository) Create(ctx context.Context, id identity.Identity) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO permission_users (identity_key, identity, updated_at_ms)
VALUES (?, ?, ?)
ON CONFLICT (identity_key) DO NOTHING`,
		id.Key(), id.String(), time.Now().UTC().UnixMilli())
	return err
}

func (r *PermissionRepository) Save(ctx context.Context, record *permission.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	key := record.Identity.Key()
	res, err := tx.ExecContext(ctx,
		`UPDATE permission_users SET updated_at_ms = ? WHERE identity_key = ?`,
		record.UpdatedAt.UTC().UnixMilli(), key)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return permission.ErrUserNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM permission_nodes WHERE identity_key = ?`, key); err != nil {
		return err
	}
	for _, node := range record.NodeList() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO permission_nodes (identity_key, node) VALUES (?, ?)`, key, node); err != nil {
			return err
		}
	}
	return tx.Commit()
}
