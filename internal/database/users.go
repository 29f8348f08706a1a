package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"companion/internal/domain"
	"companion/internal/models"
)

// userRow хранит интересы одной строкой через запятую.
type userRow struct {
	models.User
	InterestsRaw string `db:"interests"`
}

func (r userRow) toModel() *models.User {
	u := r.User
	u.Interests = splitInterests(r.InterestsRaw)
	return &u
}

const userColumns = `id, display_name, email, city, interests, hourly_rate, is_companion,
	is_online, telegram_chat_id, created_at, updated_at`

func (db *DB) CreateOrUpdateUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	interests := joinInterests(user.Interests)

	if user.ID == 0 {
		query := `INSERT INTO users (
					display_name, email, city, interests, hourly_rate, is_companion,
					is_online, telegram_chat_id, created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		result, err := db.ExecContext(ctx, query,
			user.DisplayName, user.Email, user.City, interests, user.HourlyRate,
			user.IsCompanion, user.IsOnline, user.TelegramChatID, now, now)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		user.ID = id
		user.CreatedAt = now
		user.UpdatedAt = now
		return nil
	}

	query := `INSERT INTO users (
				id, display_name, email, city, interests, hourly_rate, is_companion,
				is_online, telegram_chat_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                display_name = excluded.display_name,
                email = excluded.email,
                city = excluded.city,
                interests = excluded.interests,
                hourly_rate = excluded.hourly_rate,
                is_companion = excluded.is_companion,
                is_online = excluded.is_online,
                telegram_chat_id = excluded.telegram_chat_id,
                updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query,
		user.ID, user.DisplayName, user.Email, user.City, interests, user.HourlyRate,
		user.IsCompanion, user.IsOnline, user.TelegramChatID, now, now)
	if err != nil {
		return fmt.Errorf("failed to create or update user: %w", err)
	}
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var row userRow
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	if err := db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, domain.ErrUserNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toModel(), nil
}

func (db *DB) ListCompanions(ctx context.Context) ([]*models.User, error) {
	var rows []userRow
	query := `SELECT ` + userColumns + ` FROM users WHERE is_companion = 1 ORDER BY id ASC`
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list companions: %w", err)
	}

	users := make([]*models.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toModel())
	}
	return users, nil
}

func (db *DB) SetUserOnline(ctx context.Context, id int64, online bool) error {
	_, err := db.ExecContext(ctx, `UPDATE users SET is_online = ?, updated_at = ? WHERE id = ?`, online, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update online flag: %w", err)
	}
	return nil
}

func joinInterests(interests []string) string {
	cleaned := make([]string, 0, len(interests))
	for _, i := range interests {
		i = strings.ToLower(strings.TrimSpace(i))
		if i != "" {
			cleaned = append(cleaned, strings.ReplaceAll(i, ",", " "))
		}
	}
	return strings.Join(cleaned, ",")
}

func splitInterests(raw string) []string {
	if raw == "" {
		return []string{}
	}
	return strings.Split(raw, ",")
}
