package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/permission"
)

// PermissionRepository implements permission.Repository.
type PermissionRepository struct {
	pool *pgxpool.Pool
}

func NewPermissionRepository(pool *pgxpool.Pool) *PermissionRepository {
	return &PermissionRepository{pool: pool}
}

func (r *PermissionRepository) Get(ctx context.Context, id identity.Identity) (*permission.Record, error) {
	var (
		name      string
		updatedAt time.Time
	)
	err := r.pool.QueryRow(ctx, `
		SELECT identity, updated_at FROM permission_users WHERE identity_key=$1
	`, id.Key()).Scan(&name, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, permission.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT node FROM permission_nodes WHERE identity_key=$1`, id.Key())
	if err != nil {
		return nil, err
	}
	nodes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	rec := permission.NewRecord(identity.Identity(name))
	for _, n := range nodes {
		rec.Nodes[n] = struct{}{}
	}
	rec.UpdatedAt = updatedAt.UTC()
	return rec, nil
}

func (r *PermissionRepository) Create(ctx context.Context, id identity.Identity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO permission_users (identity_key, identity, updated_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (identity_key) DO NOTHING
	`, id.Key(), id.String(), time.Now().UTC())
	return err
}

func (r *PermissionRepository) Save(ctx context.Context, record *permission.Record) error {
	key := record.Identity.Key()
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE permission_users SET updated_at=$1 WHERE identity_key=$2
		`, record.UpdatedAt.UTC(), key)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return permission.ErrUserNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM permission_nodes WHERE identity_key=$1`, key); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, node := range record.NodeList() {
			batch.Queue(`INSERT INTO permission_nodes (identity_key, node) VALUES ($1,$2)`, key, node)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (r *PermissionRepository) Close() error {
	r.pool.Close()
	return nil
}
