package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"companion/internal/export"
	"companion/internal/models"
	"companion/internal/recommend"
	"companion/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type BookingService interface {
	FetchBookings(ctx context.Context, actor models.Actor, filter models.BookingFilter) ([]*models.Booking, error)
	GetByID(ctx context.Context, actor models.Actor, id int64) (*models.Booking, error)
	Create(ctx context.Context, actor models.Actor, in service.CreateBookingInput) (*models.Booking, error)
	Approve(ctx context.Context, actor models.Actor, id int64, notes string) (*models.Booking, error)
	Reject(ctx context.Context, actor models.Actor, id int64, reason string) (*models.Booking, error)
	Cancel(ctx context.Context, actor models.Actor, id int64, reason string) (*models.Booking, error)
	Complete(ctx context.Context, actor models.Actor, id int64, notes string) (*models.Booking, error)
	Stats(ctx context.Context, actor models.Actor) (map[models.BookingStatus]int, error)
	ExportBookings(ctx context.Context, actor models.Actor, from, to time.Time) ([]*models.Booking, error)
	Actions(ctx context.Context, actor models.Actor, b *models.Booking) []models.BookingStatus
}

type UserService interface {
	Profile(ctx context.Context, actor models.Actor) (*models.User, error)
	SaveProfile(ctx context.Context, actor models.Actor, in service.ProfileInput) (*models.User, error)
	RecommendCompanions(ctx context.Context, actor models.Actor, limit int) ([]recommend.Scored, error)
	Notifications(ctx context.Context, actor models.Actor, limit int) ([]*models.Notification, error)
	SetOnline(ctx context.Context, actor models.Actor, online bool) (*models.User, error)
}

type AdminGate interface {
	GrantAdmin(ctx context.Context, actor models.Actor, userID int64) error
	RevokeAdmin(ctx context.Context, actor models.Actor, userID int64) error
	ListAdmins(ctx context.Context, actor models.Actor) ([]int64, error)
}

type DeliveryLog interface {
	FailedDeliveries(ctx context.Context, actor models.Actor) ([]models.DeliveryTask, error)
}

type WorkbookWriter interface {
	Write(w io.Writer, bookings []*models.Booking, from, to time.Time) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	bookings   BookingService
	users      UserService
	admins     AdminGate
	deliveries DeliveryLog
	exporter   WorkbookWriter
	health     Pinger
	logger     *zerolog.Logger
}

type createBookingRequest struct {
	CompanionID   int64  `json:"companion_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	DurationHours int    `json:"duration_hours"`
	Notes         string `json:"notes"`
}

type transitionRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

type profileRequest struct {
	DisplayName    string          `json:"display_name"`
	Email          string          `json:"email"`
	City           string          `json:"city"`
	Interests      []string        `json:"interests"`
	HourlyRate     decimal.Decimal `json:"hourly_rate"`
	IsCompanion    bool            `json:"is_companion"`
	IsOnline       bool            `json:"is_online"`
	TelegramChatID int64           `json:"telegram_chat_id"`
}

type onlineRequest struct {
	Online *bool `json:"online"`
}

// bookingView adds the actions the caller may take next.
type bookingView struct {
	*models.Booking
	Actions []models.BookingStatus `json:"actions"`
}

func (h *Handlers) listBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := models.BookingFilter{
		Status: models.BookingStatus(strings.ToLower(strings.TrimSpace(q.Get("status")))),
		Search: strings.TrimSpace(q.Get("q")),
	}
	var err error
	if filter.From, err = parseDateParam(q.Get("from")); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid from date; expected YYYY-MM-DD")
		return
	}
	if filter.To, err = parseDateParam(q.Get("to")); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid to date; expected YYYY-MM-DD")
		return
	}
	for name, dst := range map[string]*int64{"companion_id": &filter.CompanionID, "renter_id": &filter.RenterID} {
		if *dst, err = parseInt64Param(q.Get(name)); err != nil {
			WriteError(w, http.StatusBadRequest, "bad_request", "invalid "+name)
			return
		}
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if *dst, err = parseIntParam(q.Get(name)); err != nil {
			WriteError(w, http.StatusBadRequest, "bad_request", "invalid "+name)
			return
		}
	}

	list, err := h.bookings.FetchBookings(r.Context(), ActorFromContext(r.Context()), filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": list})
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingRequest
	if err := decodeBody(r, &body, false); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(body.Date))
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, "validation_failed", "invalid date; expected YYYY-MM-DD")
		return
	}

	booking, err := h.bookings.Create(r.Context(), ActorFromContext(r.Context()), service.CreateBookingInput{
		CompanionID:   body.CompanionID,
		Date:          date,
		StartTime:     strings.TrimSpace(body.StartTime),
		DurationHours: body.DurationHours,
		Notes:         body.Notes,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := bookingID(w, r)
	if !ok {
		return
	}
	actor := ActorFromContext(r.Context())
	booking, err := h.bookings.GetByID(r.Context(), actor, id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingView{Booking: booking, Actions: h.bookings.Actions(r.Context(), actor, booking)})
}

type transitionFunc func(ctx context.Context, actor models.Actor, id int64, notes string) (*models.Booking, error)

// transition adapts one of the status-changing service calls. The body is
// optional; "reason" wins over "notes" when both are sent.
func (h *Handlers) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := bookingID(w, r)
		if !ok {
			return
		}
		var body transitionRequest
		if err := decodeBody(r, &body, true); err != nil {
			WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		text := body.Notes
		if strings.TrimSpace(body.Reason) != "" {
			text = body.Reason
		}

		booking, err := fn(r.Context(), ActorFromContext(r.Context()), id, text)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, booking)
	}
}

func (h *Handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Profile(r.Context(), ActorFromContext(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) putProfile(w http.ResponseWriter, r *http.Request) {
	var body profileRequest
	if err := decodeBody(r, &body, false); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	user, err := h.users.SaveProfile(r.Context(), ActorFromContext(r.Context()), service.ProfileInput{
		DisplayName:    body.DisplayName,
		Email:          body.Email,
		City:           body.City,
		Interests:      body.Interests,
		HourlyRate:     body.HourlyRate,
		IsCompanion:    body.IsCompanion,
		IsOnline:       body.IsOnline,
		TelegramChatID: body.TelegramChatID,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) putOnline(w http.ResponseWriter, r *http.Request) {
	var body onlineRequest
	if err := decodeBody(r, &body, false); err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if body.Online == nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "online is required")
		return
	}
	user, err := h.users.SetOnline(r.Context(), ActorFromContext(r.Context()), *body.Online)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r.URL.Query().Get("limit"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid limit")
		return
	}
	list, err := h.users.Notifications(r.Context(), ActorFromContext(r.Context()), limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

func (h *Handlers) recommendedCompanions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseIntParam(r.URL.Query().Get("limit"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid limit")
		return
	}
	list, err := h.users.RecommendCompanions(r.Context(), ActorFromContext(r.Context()), limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"companions": list})
}

func (h *Handlers) adminStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.bookings.Stats(r.Context(), ActorFromContext(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{"counts": counts, "total": total})
}

func (h *Handlers) adminExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDateParam(q.Get("from"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid from date; expected YYYY-MM-DD")
		return
	}
	to, err := parseDateParam(q.Get("to"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid to date; expected YYYY-MM-DD")
		return
	}

	bookings, err := h.bookings.ExportBookings(r.Context(), ActorFromContext(r.Context()), from, to)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := h.exporter.Write(&buf, bookings, from, to); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, to)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handlers) grantAdmin(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.admins.GrantAdmin)
}

func (h *Handlers) revokeAdmin(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, h.admins.RevokeAdmin)
}

func (h *Handlers) listAdmins(w http.ResponseWriter, r *http.Request) {
	ids, err := h.admins.ListAdmins(r.Context(), ActorFromContext(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"admins": ids})
}

func (h *Handlers) failedDeliveries(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.deliveries.FailedDeliveries(r.Context(), ActorFromContext(r.Context()))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []models.DeliveryTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": tasks})
}

func (h *Handlers) moderate(w http.ResponseWriter, r *http.Request, fn func(context.Context, models.Actor, int64) error) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID <= 0 {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid user id")
		return
	}
	if err := fn(r.Context(), ActorFromContext(r.Context()), userID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.health.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("Readiness check failed")
		WriteError(w, http.StatusServiceUnavailable, "not_ready", "database is not reachable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func bookingID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, "bad_request", "invalid booking id")
		return 0, false
	}
	return id, true
}

// decodeBody decodes a JSON body; with optional set an empty body is fine.
func decodeBody(r *http.Request, dst any, optional bool) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func parseDateParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(models.DateLayout, raw)
}

func parseInt64Param(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func parseIntParam(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
