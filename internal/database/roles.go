package database

import (
	"context"
	"fmt"
	"time"

	"companion/internal/models"
)

// HasRole читает user_roles на каждый вызов, без кэша.
func (db *DB) HasRole(ctx context.Context, userID int64, role models.Role) (bool, error) {
	var count int
	query := `SELECT COUNT(*) FROM user_roles WHERE user_id = ? AND role = ?`
	if err := db.GetContext(ctx, &count, query, userID, string(role)); err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return count > 0, nil
}

func (db *DB) GrantRole(ctx context.Context, userID int64, role models.Role, grantedBy int64) error {
	query := `INSERT INTO user_roles (user_id, role, granted_by, granted_at) VALUES (?, ?, ?, ?)
              ON CONFLICT(user_id, role) DO NOTHING`
	if _, err := db.ExecContext(ctx, query, userID, string(role), grantedBy, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

func (db *DB) RevokeRole(ctx context.Context, userID int64, role models.Role) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ? AND role = ?`, userID, string(role)); err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

func (db *DB) ListRoleHolders(ctx context.Context, role models.Role) ([]int64, error) {
	ids := []int64{}
	if err := db.SelectContext(ctx, &ids, `SELECT user_id FROM user_roles WHERE role = ? ORDER BY user_id`, string(role)); err != nil {
		return nil, fmt.Errorf("failed to list role holders: %w", err)
	}
	return ids, nil
}
