package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahe-ics/ahe-ics/internal/application/query"
	"github.com/ahe-ics/ahe-ics/internal/domain/schedule"
	"github.com/ahe-ics/ahe-ics/internal/interface/http/handlers"
	"github.com/ahe-ics/ahe-ics/pkg/logger"
)

type stubService struct{}

func (stubService) Fetch(context.Context, query.GetCalendarQuery) (*schedule.Calendar, error) {
	return &schedule.Calendar{StudentID: 1}, nil
}

func (stubService) RenderICS(context.Context, query.GetCalendarQuery) (string, error) {
	return "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", nil
}

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	openapi, err := handlers.NewOpenAPIHandler()
	if err != nil {
		t.Fatal(err)
	}
	health := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return NewServer(cfg, Dependencies{
		Calendar: handlers.NewCalendarHandler(stubService{}, nil),
		Health:   health,
		OpenAPI:  openapi,
		Logger:   logger.Discard(),
	}).Handler()
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestRoutes(t *testing.T) {
	h := newTestServer(t, DefaultConfig())

	testCases := []struct {
		target string
		status int
	}{
		{"/calendar.ics", http.StatusOK},
		{"/calendar/me.ics", http.StatusOK},
		{"/calendar.json", http.StatusOK},
		{"/calendar/me.json", http.StatusOK},
		{"/healthz", http.StatusNoContent},
		{"/openapi.json", http.StatusOK},
		{"/nope", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.target, func(t *testing.T) {
			rec := get(h, tc.target)
			assert.Equal(t, tc.status, rec.Code)
			assert.NotEmpty(t, rec.Header().Get(handlers.RequestIDHeader))
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestOptionalRoutesDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JSONEnabled = false
	cfg.OpenAPIEnabled = false
	h := newTestServer(t, cfg)

	assert.Equal(t, http.StatusNotFound, get(h, "/calendar.json").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/calendar/me.json").Code)
	assert.Equal(t, http.StatusNotFound, get(h, "/openapi.json").Code)
	assert.Equal(t, http.StatusOK, get(h, "/calendar.ics").Code)
}

func TestCalendarRoutesRateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	h := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, get(h, "/calendar.ics").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "/calendar.ics").Code)
	assert.Equal(t, http.StatusNoContent, get(h, "/healthz").Code, "health is not limited")
}
