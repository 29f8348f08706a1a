package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"companion/internal/config"
	"companion/internal/database"
	"companion/internal/events"
	"companion/internal/export"
	"companion/internal/models"
	"companion/internal/service"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

type apiEnv struct {
	ts   *httptest.Server
	auth *TokenAuth
	db   *database.DB

	renter    int64
	companion int64
	admin     int64
	outsider  int64
}

func newAPIEnv(t *testing.T, cfg config.APIConfig) *apiEnv {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mk := func(u *models.User) int64 {
		require.NoError(t, db.CreateOrUpdateUser(ctx, u))
		return u.ID
	}
	env := &apiEnv{db: db, auth: NewTokenAuth(testSecret, "companion-test")}
	env.renter = mk(&models.User{DisplayName: "Anna", City: "Kazan"})
	env.companion = mk(&models.User{DisplayName: "Boris", City: "Kazan", IsCompanion: true, HourlyRate: decimal.NewFromInt(50)})
	env.admin = mk(&models.User{DisplayName: "Root"})
	env.outsider = mk(&models.User{DisplayName: "Eve"})

	gate := service.NewAuthGate(db, &logger)
	require.NoError(t, gate.BootstrapAdmins(ctx, []int64{env.admin}))

	bus := events.NewEventBus(&logger)
	bookings := service.NewBookingService(db, db, gate, bus, service.BookingOptions{}, &logger)
	users := service.NewUserService(db, db, &logger)

	router := NewRouter(cfg, Dependencies{
		Bookings:   bookings,
		Users:      users,
		Admins:     gate,
		Deliveries: service.NewDeliveryService(db, gate, &logger),
		Exporter:   export.NewExporter(&logger),
		Health:     db,
		Auth:       env.auth,
		Logger:     &logger,
	})
	env.ts = httptest.NewServer(router)
	t.Cleanup(env.ts.Close)
	return env
}

func (e *apiEnv) do(t *testing.T, method, path string, userID int64, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if userID > 0 {
		token, err := e.auth.Issue(userID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *apiEnv) createBooking(t *testing.T) models.Booking {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/bookings", e.renter, map[string]any{
		"companion_id":   e.companion,
		"date":           time.Now().UTC().AddDate(0, 0, 2).Format(models.DateLayout),
		"start_time":     "19:00",
		"duration_hours": 3,
		"notes":          "theatre",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return readJSON[models.Booking](t, resp)
}

func readJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	return readJSON[ErrorEnvelope](t, resp).Error.Code
}

func TestAPI_RequiresToken(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})

	resp := env.do(t, http.MethodGet, "/api/v1/bookings", 0, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthenticated", errorCode(t, resp))
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
}

func TestAPI_CreateAndApprove(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})

	b := env.createBooking(t)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.True(t, b.TotalPrice.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, env.renter, b.RenterID)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/approve", b.ID), env.renter, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", errorCode(t, resp))

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/approve", b.ID), env.companion, map[string]string{"notes": "see you"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	approved := readJSON[models.Booking](t, resp)
	require.NotEmpty(t, approved.StatusHistory)
	assert.Equal(t, "see you", approved.StatusHistory[len(approved.StatusHistory)-1].Notes)
	assert.Equal(t, models.StatusApproved, approved.Status)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/approve", b.ID), env.companion, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "invalid_transition", errorCode(t, resp))

	history, err := env.db.GetStatusHistory(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.StatusApproved, history[1].Status)
	assert.Equal(t, env.companion, history[1].ChangedBy)
}

func TestAPI_RejectNeedsReason(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	b := env.createBooking(t)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/reject", b.ID), env.companion, map[string]string{"reason": "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "missing_reason", errorCode(t, resp))

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/reject", b.ID), env.companion, map[string]string{"reason": "busy"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusRejected, readJSON[models.Booking](t, resp).Status)
}

func TestAPI_RenterCancels(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	b := env.createBooking(t)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/cancel", b.ID), env.renter, map[string]string{"reason": "plans changed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusCancelled, readJSON[models.Booking](t, resp).Status)
}

func TestAPI_GetBooking(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	b := env.createBooking(t)
	path := fmt.Sprintf("/api/v1/bookings/%d", b.ID)

	type bookingResponse struct {
		ID      int64                  `json:"id"`
		Status  models.BookingStatus   `json:"status"`
		Actions []models.BookingStatus `json:"actions"`
	}

	resp := env.do(t, http.MethodGet, path, env.companion, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := readJSON[bookingResponse](t, resp)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, []models.BookingStatus{models.StatusApproved, models.StatusRejected}, got.Actions)

	resp = env.do(t, http.MethodGet, path, env.renter, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []models.BookingStatus{models.StatusCancelled}, readJSON[bookingResponse](t, resp).Actions)

	resp = env.do(t, http.MethodGet, path, env.admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, path+"/cancel", env.renter, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodGet, path, env.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, readJSON[bookingResponse](t, resp).Actions)

	resp = env.do(t, http.MethodGet, path, env.outsider, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/bookings/9999", env.admin, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", errorCode(t, resp))

	resp = env.do(t, http.MethodGet, "/api/v1/bookings/abc", env.admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ListBookingsScopedToParties(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	env.createBooking(t)

	type listResponse struct {
		Bookings []models.Booking `json:"bookings"`
	}

	resp := env.do(t, http.MethodGet, "/api/v1/bookings", env.outsider, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, readJSON[listResponse](t, resp).Bookings)

	resp = env.do(t, http.MethodGet, "/api/v1/bookings?status=pending", env.renter, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, readJSON[listResponse](t, resp).Bookings, 1)

	resp = env.do(t, http.MethodGet, "/api/v1/bookings", env.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, readJSON[listResponse](t, resp).Bookings, 1)

	resp = env.do(t, http.MethodGet, "/api/v1/bookings?status=lost", env.admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/bookings?from=01.06.2025", env.admin, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CreateValidation(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})

	resp := env.do(t, http.MethodPost, "/api/v1/bookings", env.renter, map[string]any{
		"companion_id":   env.outsider,
		"date":           time.Now().UTC().AddDate(0, 0, 2).Format(models.DateLayout),
		"start_time":     "19:00",
		"duration_hours": 2,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "validation_failed", errorCode(t, resp))

	resp = env.do(t, http.MethodPost, "/api/v1/bookings", env.renter, map[string]any{"unknown": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "bad_request", errorCode(t, resp))
}

func TestAPI_AdminStatsAndExport(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	env.createBooking(t)

	resp := env.do(t, http.MethodGet, "/api/v1/admin/stats", env.renter, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/stats", env.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := readJSON[struct {
		Counts map[string]int `json:"counts"`
		Total  int            `json:"total"`
	}](t, resp)
	assert.Equal(t, 1, stats.Counts["pending"])
	assert.Equal(t, 1, stats.Total)

	from := time.Now().UTC().Format(models.DateLayout)
	to := time.Now().UTC().AddDate(0, 0, 7).Format(models.DateLayout)
	resp = env.do(t, http.MethodGet, "/api/v1/admin/bookings/export?from="+from+"&to="+to, env.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "bookings_"+from+"_to_"+to+".xlsx")
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(raw, []byte("PK")))

	resp = env.do(t, http.MethodGet, "/api/v1/admin/bookings/export", env.companion, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAPI_GrantAndRevokeAdmin(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	path := fmt.Sprintf("/api/v1/admin/users/%d/admin", env.outsider)

	resp := env.do(t, http.MethodPost, path, env.renter, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, path, env.admin, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/stats", env.outsider, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, path, env.admin, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/stats", env.outsider, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/admin/users/%d/admin", env.admin), env.admin, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAPI_Profile(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})

	resp := env.do(t, http.MethodGet, "/api/v1/me", env.companion, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Boris", readJSON[models.User](t, resp).DisplayName)

	resp = env.do(t, http.MethodPut, "/api/v1/me", env.outsider, map[string]any{
		"display_name": "Eve",
		"is_companion": true,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/v1/me", env.outsider, map[string]any{
		"display_name": "Eve",
		"city":         "Kazan",
		"interests":    []string{"jazz"},
		"hourly_rate":  "40",
		"is_companion": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := readJSON[models.User](t, resp)
	assert.True(t, saved.IsCompanion)
	assert.True(t, saved.HourlyRate.Equal(decimal.NewFromInt(40)))

	resp = env.do(t, http.MethodGet, "/api/v1/companions/recommended?limit=5", env.renter, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := readJSON[struct {
		Companions []struct {
			User  models.User `json:"user"`
			Score int         `json:"score"`
		} `json:"companions"`
	}](t, resp)
	assert.Len(t, list.Companions, 2)
}

func TestAPI_SetOnline(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})

	resp := env.do(t, http.MethodPut, "/api/v1/me/online", env.companion, map[string]any{"online": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, readJSON[models.User](t, resp).IsOnline)

	u, err := env.db.GetUserByID(context.Background(), env.companion)
	require.NoError(t, err)
	assert.True(t, u.IsOnline)

	resp = env.do(t, http.MethodPut, "/api/v1/me/online", env.companion, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/api/v1/me/online", 0, map[string]any{"online": true})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_AdminListsAdmins(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})

	resp := env.do(t, http.MethodGet, "/api/v1/admin/users/admins", env.renter, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/users/%d/admin", env.outsider), env.admin, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/users/admins", env.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readJSON[struct {
		Admins []int64 `json:"admins"`
	}](t, resp)
	assert.ElementsMatch(t, []int64{env.admin, env.outsider}, body.Admins)
}

func TestAPI_FailedDeliveries(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})
	ctx := context.Background()

	task := &models.DeliveryTask{NotificationID: 42}
	require.NoError(t, env.db.CreateDeliveryTask(ctx, task))
	require.NoError(t, env.db.UpdateDeliveryTaskStatus(ctx, task.ID, models.TaskStatusFailed, "chat not found", nil))

	resp := env.do(t, http.MethodGet, "/api/v1/admin/notifications/failed", env.companion, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/admin/notifications/failed", env.admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readJSON[struct {
		Deliveries []models.DeliveryTask `json:"deliveries"`
	}](t, resp)
	require.Len(t, body.Deliveries, 1)
	assert.Equal(t, task.ID, body.Deliveries[0].ID)
	require.NotNil(t, body.Deliveries[0].LastError)
	assert.Equal(t, "chat not found", *body.Deliveries[0].LastError)
}

func TestAPI_Notifications(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})

	resp := env.do(t, http.MethodGet, "/api/v1/notifications?limit=10", env.renter, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/notifications?limit=x", env.renter, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_Health(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{})

	resp := env.do(t, http.MethodGet, "/healthz", 0, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))

	resp = env.do(t, http.MethodGet, "/readyz", 0, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/nope", 0, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_RateLimit(t *testing.T) {
	env := newAPIEnv(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 1}})

	resp := env.do(t, http.MethodGet, "/api/v1/me", env.renter, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/me", env.renter, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", errorCode(t, resp))

	// другой пользователь получает свой лимит
	resp = env.do(t, http.MethodGet, "/api/v1/me", env.companion, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
