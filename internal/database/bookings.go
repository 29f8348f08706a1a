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

	"github.com/jmoiron/sqlx"
)

const bookingColumns = `b.id, b.renter_id, COALESCE(r.display_name, '') AS renter_name,
	b.companion_id, COALESCE(c.display_name, '') AS companion_name,
	b.date, b.start_time, b.duration_hours, b.total_price, b.status,
	b.payment_status, b.notes, b.created_at, b.updated_at, b.version`

const bookingFrom = `FROM bookings b
	LEFT JOIN users r ON r.id = b.renter_id
	LEFT JOIN users c ON c.id = b.companion_id`

// CreateBooking вставляет заявку и первую запись истории в одной транзакции.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking, changedBy int64) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := booking.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if booking.Status == "" {
		booking.Status = models.StatusPending
	}
	if booking.PaymentStatus == "" {
		booking.PaymentStatus = "unpaid"
	}

	query := `INSERT INTO bookings (
				renter_id, companion_id, date, start_time, duration_hours, total_price,
				status, payment_status, notes, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	result, err := tx.ExecContext(ctx, query,
		booking.RenterID,
		booking.CompanionID,
		booking.Date.Format(models.DateLayout),
		booking.StartTime,
		booking.DurationHours,
		booking.TotalPrice,
		booking.Status,
		booking.PaymentStatus,
		booking.Notes,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	entry := models.StatusHistoryEntry{
		BookingID: id,
		Status:    booking.Status,
		Timestamp: now,
		ChangedBy: changedBy,
	}
	if err := insertHistory(ctx, tx, &entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	booking.StatusHistory = []models.StatusHistoryEntry{entry}
	return nil
}

// GetBooking возвращает заявку вместе с историей статусов.
func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` ` + bookingFrom + ` WHERE b.id = ?`
	if err := db.GetContext(ctx, &booking, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("booking %d: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	history, err := db.GetStatusHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	booking.StatusHistory = history
	return &booking, nil
}

func (db *DB) GetStatusHistory(ctx context.Context, bookingID int64) ([]models.StatusHistoryEntry, error) {
	var history []models.StatusHistoryEntry
	query := `SELECT id, booking_id, status, changed_at, notes, changed_by
              FROM booking_status_history WHERE booking_id = ? ORDER BY id ASC`
	if err := db.SelectContext(ctx, &history, query, bookingID); err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	return history, nil
}

func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	filter.Normalize()

	var (
		where []string
		args  []interface{}
	)
	if filter.Status != models.StatusAll {
		where = append(where, "b.status = ?")
		args = append(args, filter.Status)
	}
	if !filter.From.IsZero() {
		where = append(where, "b.date >= ?")
		args = append(args, filter.From.Format(models.DateLayout))
	}
	if !filter.To.IsZero() {
		where = append(where, "b.date <= ?")
		args = append(args, filter.To.Format(models.DateLayout))
	}
	if filter.CompanionID != 0 {
		where = append(where, "b.companion_id = ?")
		args = append(args, filter.CompanionID)
	}
	if filter.RenterID != 0 {
		where = append(where, "b.renter_id = ?")
		args = append(args, filter.RenterID)
	}
	if filter.PartyID != 0 {
		where = append(where, "(b.renter_id = ? OR b.companion_id = ?)")
		args = append(args, filter.PartyID, filter.PartyID)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
		where = append(where, "(LOWER(COALESCE(r.display_name, '')) LIKE ? ESCAPE '\\' OR LOWER(COALESCE(c.display_name, '')) LIKE ? ESCAPE '\\' OR LOWER(b.notes) LIKE ? ESCAPE '\\')")
		args = append(args, pattern, pattern, pattern)
	}

	query := `SELECT ` + bookingColumns + ` ` + bookingFrom
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY b.date DESC, b.start_time DESC, b.id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	bookings := []*models.Booking{}
	if err := db.SelectContext(ctx, &bookings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// likeEscaper экранирует спецсимволы LIKE, поиск идет по подстроке буквально
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ApplyStatusChange переводит заявку в новый статус, только если она все еще
// в ожидаемом статусе и версии. Проигравший гонку получает domain.ErrConflict.
func (db *DB) ApplyStatusChange(ctx context.Context, change domain.StatusChange) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	changedAt := change.ChangedAt
	if changedAt.IsZero() {
		changedAt = time.Now().UTC()
	}

	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND status = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query,
		change.NewStatus, changedAt, change.BookingID, change.ExpectedStatus, change.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("booking %d: %w", change.BookingID, domain.ErrConflict)
	}

	entry := models.StatusHistoryEntry{
		BookingID: change.BookingID,
		Status:    change.NewStatus,
		Timestamp: changedAt,
		Notes:     change.Notes,
		ChangedBy: change.ChangedBy,
	}
	if err := insertHistory(ctx, tx, &entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status change: %w", err)
	}
	return nil
}

func (db *DB) CountByStatus(ctx context.Context) (map[models.BookingStatus]int, error) {
	rows, err := db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM bookings GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count bookings: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.BookingStatus]int, len(models.AllStatuses))
	for _, s := range models.AllStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var (
			status models.BookingStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan booking count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, entry *models.StatusHistoryEntry) error {
	query := `INSERT INTO booking_status_history (booking_id, status, changed_at, notes, changed_by)
              VALUES (?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, query, entry.BookingID, entry.Status, entry.Timestamp, entry.Notes, entry.ChangedBy)
	if err != nil {
		return fmt.Errorf("failed to append status history: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}
