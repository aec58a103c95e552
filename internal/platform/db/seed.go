package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"detailpay/internal/domain/auth"
	"detailpay/internal/platform/config"
)

// Seed brings the permission catalog and role grants up to date and creates the bootstrap
// admin on first start. It runs in one transaction and is safe to repeat.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	var hash string
	email := strings.TrimSpace(cfg.SeedAdminEmail)
	if email != "" && cfg.SeedAdminPassword != "" {
		var err error
		if hash, err = auth.HashPassword(cfg.SeedAdminPassword); err != nil {
			return err
		}
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
      INSERT INTO permissions (key) SELECT unnest($1::text[])
      ON CONFLICT (key) DO NOTHING
    `, auth.DefaultPermissions); err != nil {
			return err
		}

		for role, perms := range auth.RolePermissions {
			if _, err := tx.Exec(ctx, "INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING", role); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
        INSERT INTO role_permissions (role_id, permission_id)
        SELECT r.id, p.id FROM roles r JOIN permissions p ON p.key = ANY($2::text[])
        WHERE r.name = $1
        ON CONFLICT DO NOTHING
      `, role, perms); err != nil {
				return err
			}
		}

		if hash == "" {
			return nil
		}
		_, err := tx.Exec(ctx, `
      INSERT INTO users (email, password_hash, role_id)
      SELECT $1, $2, id FROM roles WHERE name = $3
      ON CONFLICT (email) DO NOTHING
    `, email, hash, auth.RoleAdmin)
		return err
	})
}
