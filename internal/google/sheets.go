package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"companion/internal/events"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	// BookingsSheet holds one row per booking with its latest status.
	BookingsSheet = "Bookings"

	queueSize      = 256
	requestTimeout = 15 * time.Second
)

var errRowNotFound = errors.New("booking row not found")

var auditHeader = []interface{}{
	"Changed At", "Booking ID", "Event", "From", "To", "Actor ID", "Actor Role",
	"Renter", "Companion", "Date", "Start", "Notes",
}

// AuditSheet mirrors booking status changes into a spreadsheet: an
// append-only audit log plus a per-booking snapshot sheet.
type AuditSheet struct {
	service       *sheets.Service
	spreadsheetID string
	auditSheet    string
	logger        *zerolog.Logger

	queue chan *events.Event

	rowCache map[int64]int
	cacheMu  sync.RWMutex
}

func NewAuditSheet(ctx context.Context, credentialsFile, spreadsheetID, auditSheet string, logger *zerolog.Logger) (*AuditSheet, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newAuditSheet(srv, spreadsheetID, auditSheet, logger), nil
}

func newAuditSheet(srv *sheets.Service, spreadsheetID, auditSheet string, logger *zerolog.Logger) *AuditSheet {
	if auditSheet == "" {
		auditSheet = "Audit"
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &AuditSheet{
		service:       srv,
		spreadsheetID: spreadsheetID,
		auditSheet:    auditSheet,
		logger:        logger,
		queue:         make(chan *events.Event, queueSize),
		rowCache:      make(map[int64]int),
	}
}

// ServiceAccountEmail returns the client email of a service account key file,
// the address the spreadsheet must be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// TestConnection проверяет доступ к таблице
func (s *AuditSheet) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.auditSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the header row when the audit sheet is empty.
func (s *AuditSheet) EnsureHeader(ctx context.Context) error {
	rangeData := s.auditSheet + "!A1:L1"
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, rangeData).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{auditHeader},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// Register subscribes the mirror to every booking event. The bus handler
// only enqueues; Start does the network calls.
func (s *AuditSheet) Register(bus *events.EventBus) {
	bus.Subscribe(s.enqueue, events.BookingEvents...)
}

func (s *AuditSheet) enqueue(event *events.Event) error {
	select {
	case s.queue <- event:
		return nil
	default:
		return fmt.Errorf("audit queue is full, dropping %s", event.Type)
	}
}

// Start drains queued events until ctx is done.
func (s *AuditSheet) Start(ctx context.Context) {
	s.logger.Info().Str("sheet", s.auditSheet).Msg("Audit mirror started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Audit mirror stopped")
			return
		case event := <-s.queue:
			reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
			if err := s.Mirror(reqCtx, event); err != nil {
				s.logger.Error().Err(err).Str("event_type", event.Type).Msg("Audit mirror failed")
			}
			cancel()
		}
	}
}

// Mirror appends the audit row and refreshes the booking snapshot row.
func (s *AuditSheet) Mirror(ctx context.Context, event *events.Event) error {
	payload, err := event.DecodeBooking()
	if err != nil {
		return err
	}
	if err := s.AppendChange(ctx, event.Type, payload); err != nil {
		return err
	}
	return s.UpsertBooking(ctx, payload)
}

func (s *AuditSheet) AppendChange(ctx context.Context, eventType string, p events.BookingEventPayload) error {
	row := []interface{}{
		p.ChangedAt.UTC().Format(time.RFC3339),
		p.BookingID,
		eventType,
		p.PreviousState.String(),
		p.Status.String(),
		p.ActorID,
		p.ActorRole.String(),
		p.RenterName,
		p.CompanionName,
		p.Date.Format("2006-01-02"),
		p.StartTime,
		p.Notes,
	}

	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.auditSheet+"!A:A", &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append audit row for booking %d: %w", p.BookingID, err)
	}
	return nil
}

// UpsertBooking updates the booking's snapshot row or appends a new one.
func (s *AuditSheet) UpsertBooking(ctx context.Context, p events.BookingEventPayload) error {
	values := snapshotRow(p)

	rowIdx, err := s.FindBookingRow(ctx, p.BookingID)
	if errors.Is(err, errRowNotFound) {
		resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, BookingsSheet+"!A:A", &sheets.ValueRange{
			Values: [][]interface{}{values},
		}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append booking %d: %w", p.BookingID, err)
		}
		if resp.Updates != nil {
			if row, ok := parseRowFromRange(resp.Updates.UpdatedRange); ok {
				s.setCachedRow(p.BookingID, row)
			}
		}
		return nil
	}
	if err != nil {
		return err
	}

	rangeData := fmt.Sprintf("%s!A%d:H%d", BookingsSheet, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{values},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update booking %d: %w", p.BookingID, err)
	}
	return nil
}

// FindBookingRow locates the 1-based row of a booking in column A, using the cache first.
func (s *AuditSheet) FindBookingRow(ctx context.Context, bookingID int64) (int, error) {
	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, BookingsSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read booking ids: %w", err)
	}

	for i, row := range resp.Values {
		if len(row) == 0 {
			continue
		}
		if cellID(row[0]) == bookingID {
			s.setCachedRow(bookingID, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

func snapshotRow(p events.BookingEventPayload) []interface{} {
	return []interface{}{
		p.BookingID,
		p.Date.Format("2006-01-02"),
		p.StartTime,
		p.RenterName,
		p.CompanionName,
		p.Status.String(),
		p.ChangedAt.UTC().Format(time.RFC3339),
		p.Notes,
	}
}

func cellID(v interface{}) int64 {
	switch v := v.(type) {
	case float64:
		return int64(v)
	case string:
		id, _ := strconv.ParseInt(v, 10, 64)
		return id
	}
	return 0
}

// parseRowFromRange reads the first row number of a range like "Bookings!A10:H10".
func parseRowFromRange(rng string) (int, bool) {
	if _, cells, ok := strings.Cut(rng, "!"); ok {
		rng = cells
	}
	start := -1
	for i, r := range rng {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			row, err := strconv.Atoi(rng[start:i])
			return row, err == nil
		}
	}
	if start < 0 {
		return 0, false
	}
	row, err := strconv.Atoi(rng[start:])
	return row, err == nil
}

func (s *AuditSheet) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *AuditSheet) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}
