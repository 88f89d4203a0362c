package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ahe-ics/ahe-ics/internal/application/query"
	"github.com/ahe-ics/ahe-ics/internal/domain/exam"
	"github.com/ahe-ics/ahe-ics/internal/domain/schedule"
	"github.com/ahe-ics/ahe-ics/internal/domain/shared"
	"github.com/ahe-ics/ahe-ics/internal/infrastructure/ics"
	"github.com/ahe-ics/ahe-ics/pkg/timeutil"
)

type mockCalendarService struct {
	mock.Mock
}

func (m *mockCalendarService) Fetch(ctx context.Context, q query.GetCalendarQuery) (*schedule.Calendar, error) {
	args := m.Called(ctx, q)
	cal, _ := args.Get(0).(*schedule.Calendar)
	return cal, args.Error(1)
}

func (m *mockCalendarService) RenderICS(ctx context.Context, q query.GetCalendarQuery) (string, error) {
	args := m.Called(ctx, q)
	return args.String(0), args.Error(1)
}

type staticToken string

func (s staticToken) Verify(provided string) bool { return provided == string(s) }

func noWindow(q query.GetCalendarQuery) bool { return q.From == nil && q.To == nil }

func strPtr(s string) *string { return &s }

func serve(h http.HandlerFunc, target string, headers map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h(rec, r)
	return rec
}

func TestServeICS(t *testing.T) {
	svc := new(mockCalendarService)
	svc.On("RenderICS", mock.Anything, mock.MatchedBy(noWindow)).Return("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", nil)

	h := NewCalendarHandler(svc, nil)
	rec := serve(h.ServeICS, "/calendar.ics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ics.ContentType, rec.Header().Get("Content-Type"))
	assert.Equal(t, "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n", rec.Body.String())
}

func TestServeICSPassesWindow(t *testing.T) {
	svc := new(mockCalendarService)
	svc.On("RenderICS", mock.Anything, mock.MatchedBy(func(q query.GetCalendarQuery) bool {
		return q.From != nil && q.To != nil &&
			q.From.Equal(timeutil.Date(2025, time.January, 1)) &&
			q.To.Equal(timeutil.Date(2025, time.January, 31))
	})).Return("ics", nil)

	h := NewCalendarHandler(svc, nil)
	rec := serve(h.ServeICS, "/calendar.ics?from=2025-01-01&to=2025-01-31", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestCalendarToken(t *testing.T) {
	testCases := []struct {
		name    string
		target  string
		headers map[string]string
		status  int
	}{
		{name: "missing", target: "/calendar.ics", status: http.StatusUnauthorized},
		{name: "wrong_query", target: "/calendar.ics?token=nope", status: http.StatusUnauthorized},
		{name: "query", target: "/calendar.ics?token=s3cret", status: http.StatusOK},
		{name: "header", target: "/calendar.ics", headers: map[string]string{TokenHeader: "s3cret"}, status: http.StatusOK},
		{name: "bearer", target: "/calendar.ics", headers: map[string]string{"Authorization": "Bearer s3cret"}, status: http.StatusOK},
		{name: "basic_is_ignored", target: "/calendar.ics", headers: map[string]string{"Authorization": "Basic s3cret"}, status: http.StatusUnauthorized},
		{name: "query_wins_over_header", target: "/calendar.ics?token=nope", headers: map[string]string{TokenHeader: "s3cret"}, status: http.StatusUnauthorized},
		{name: "empty_query_wins_over_header", target: "/calendar.ics?token=", headers: map[string]string{TokenHeader: "s3cret"}, status: http.StatusUnauthorized},
		{name: "checked_before_dates", target: "/calendar.ics?from=garbage", status: http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockCalendarService)
			svc.On("RenderICS", mock.Anything, mock.Anything).Return("ics", nil).Maybe()

			h := NewCalendarHandler(svc, staticToken("s3cret"))
			rec := serve(h.ServeICS, tc.target, tc.headers)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusUnauthorized {
				assert.Equal(t, "invalid calendar token", rec.Body.String())
				svc.AssertNotCalled(t, "RenderICS", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/calendar.ics?token=", nil)
	r.Header.Set("Authorization", "Bearer s3cret")
	assert.Empty(t, ExtractToken(r))

	r = httptest.NewRequest(http.MethodGet, "/calendar.ics", nil)
	r.Header.Set("Authorization", "Bearer s3cret")
	assert.Equal(t, "s3cret", ExtractToken(r))
}

func TestCalendarBadDate(t *testing.T) {
	svc := new(mockCalendarService)
	h := NewCalendarHandler(svc, nil)

	rec := serve(h.ServeICS, "/calendar.ics?from=2025-13-01", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "from")
	svc.AssertNotCalled(t, "RenderICS", mock.Anything, mock.Anything)
}

func TestCalendarErrorMapping(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{name: "inverted_range", err: shared.ErrInvalidDateRange, status: http.StatusBadRequest, body: "to must be >= from"},
		{name: "upstream", err: fmt.Errorf("fetch class schedule: %w", shared.ErrExternalService), status: http.StatusBadGateway, body: "upstream service error"},
		{name: "internal", err: errors.New("render calendar: boom"), status: http.StatusInternalServerError, body: "internal server error"},
		{name: "cancelled", err: fmt.Errorf("fetch class schedule: %w", context.Canceled), status: http.StatusServiceUnavailable, body: "request cancelled"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(mockCalendarService)
			svc.On("RenderICS", mock.Anything, mock.Anything).Return("", tc.err)

			rec := serve(NewCalendarHandler(svc, nil).ServeICS, "/calendar.ics", nil)

			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
		})
	}
}

func TestServeJSON(t *testing.T) {
	cal := &schedule.Calendar{
		StudentID: 42,
		From:      timeutil.Date(2025, time.January, 1),
		To:        timeutil.Date(2025, time.January, 31),
		Classes: []schedule.ClassEntry{{
			ID:             7,
			StartsAt:       timeutil.DateTime(2025, time.January, 15, 8, 0),
			EndsAt:         timeutil.DateTime(2025, time.January, 15, 9, 30),
			SubjectName:    "Algebra",
			ClassType:      "Wyklad",
			ClassTypeShort: "W",
			RoomNumber:     strPtr("101"),
		}},
		Exams: []exam.Event{{
			PublishedDataID: 9,
			Subject:         "Algebra",
			Lecturer:        strPtr("dr Nowak"),
			Starts:          timeutil.DateTime(2025, time.July, 1, 10, 0),
			Ends:            timeutil.DateTime(2025, time.July, 1, 11, 30),
		}},
	}

	svc := new(mockCalendarService)
	svc.On("Fetch", mock.Anything, mock.Anything).Return(cal, nil)

	rec := serve(NewCalendarHandler(svc, nil).ServeJSON, "/calendar.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 42, body["student_id"])
	assert.Equal(t, "2025-01-01", body["from"])
	assert.Equal(t, "2025-01-31", body["to"])

	classes := body["schedule"].([]any)
	require.Len(t, classes, 1)
	class := classes[0].(map[string]any)
	assert.Equal(t, "2025-01-15T08:00:00", class["starts_at"])
	assert.Equal(t, "101", class["room_number"])
	assert.Nil(t, class["room_address"])
	assert.Equal(t, []any{}, class["instructors"])

	exams := body["exams"].([]any)
	require.Len(t, exams, 1)
	ex := exams[0].(map[string]any)
	assert.Equal(t, "2025-07-01T10:00:00", ex["starts"], "summer time keeps the wall clock")
	assert.Equal(t, "dr Nowak", ex["lecturer"])
}

func TestLocalDateTimeConvertsToWarsaw(t *testing.T) {
	utc := time.Date(2025, time.January, 15, 7, 0, 0, 0, time.UTC)
	b, err := json.Marshal(LocalDateTime(utc))
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-15T08:00:00"`, string(b))
}
