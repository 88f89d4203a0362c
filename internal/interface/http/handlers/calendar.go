package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ahe-ics/ahe-ics/internal/application/query"
	"github.com/ahe-ics/ahe-ics/internal/domain/schedule"
	"github.com/ahe-ics/ahe-ics/internal/domain/shared"
	"github.com/ahe-ics/ahe-ics/internal/infrastructure/ics"
	"github.com/ahe-ics/ahe-ics/pkg/logger"
	"github.com/ahe-ics/ahe-ics/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CalendarService builds calendars for the HTTP layer.
type CalendarService interface {
	Fetch(ctx context.Context, q query.GetCalendarQuery) (*schedule.Calendar, error)
	RenderICS(ctx context.Context, q query.GetCalendarQuery) (string, error)
}

// TokenVerifier checks the calendar access token.
type TokenVerifier interface {
	Verify(provided string) bool
}

// Calendar token sources.
const (
	TokenQueryParam  = "token"
	TokenHeader      = "X-Calendar-Token"
	bearerAuthPrefix = "Bearer "
)

// CalendarHandler serves the ICS feed and the JSON source data.
type CalendarHandler struct {
	svc   CalendarService
	token TokenVerifier
}

// NewCalendarHandler creates a handler. A nil token leaves the routes open.
func NewCalendarHandler(svc CalendarService, token TokenVerifier) *CalendarHandler {
	return &CalendarHandler{svc: svc, token: token}
}

// ServeICS writes the rendered feed.
func (h *CalendarHandler) ServeICS(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	payload, err := h.svc.RenderICS(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", ics.ContentType)
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(payload))
}

// ServeJSON writes the calendar source data.
func (h *CalendarHandler) ServeJSON(w http.ResponseWriter, r *http.Request) {
	q, ok := h.parseRequest(w, r)
	if !ok {
		return
	}

	cal, err := h.svc.Fetch(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(NewCalendarResponse(cal))
}

// parseRequest checks the token, then the date window. It writes the error
// response itself and returns false on failure.
func (h *CalendarHandler) parseRequest(w http.ResponseWriter, r *http.Request) (query.GetCalendarQuery, bool) {
	log := logger.FromContext(r.Context())
	log.Info("calendar request", slog.String("path", r.URL.Path))

	if h.token != nil {
		provided := ExtractToken(r)
		if provided == "" || !h.token.Verify(provided) {
			log.Warn("calendar token rejected")
			writeText(w, http.StatusUnauthorized, "invalid calendar token")
			return query.GetCalendarQuery{}, false
		}
	}

	var q query.GetCalendarQuery
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &q.From}, {"to", &q.To}} {
		raw := r.URL.Query().Get(p.name)
		if raw == "" {
			continue
		}
		day, err := timeutil.ParseDate(raw)
		if err != nil {
			log.Debug("bad date parameter", slog.String("param", p.name), logger.Err(err))
			writeText(w, http.StatusBadRequest, p.name+": "+shared.ErrInvalidDate.Message+", expected YYYY-MM-DD")
			return query.GetCalendarQuery{}, false
		}
		*p.dst = &day
	}
	return q, true
}

// ExtractToken returns the calendar token from the query, the
// X-Calendar-Token header or a bearer Authorization header. A token query
// parameter wins whenever present, even when empty.
func ExtractToken(r *http.Request) string {
	if values, ok := r.URL.Query()[TokenQueryParam]; ok && len(values) > 0 {
		return values[0]
	}
	if v := r.Header.Get(TokenHeader); v != "" {
		return v
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), bearerAuthPrefix); ok {
		return v
	}
	return ""
}

// writeError maps application errors to status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	switch {
	case shared.IsValidation(err):
		writeText(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, context.Canceled):
		log.Info("calendar request cancelled", logger.Err(err))
		writeText(w, http.StatusServiceUnavailable, "request cancelled")
	case shared.IsExternalService(err), errors.Is(err, context.DeadlineExceeded):
		log.Error("upstream failure", logger.Err(err))
		writeText(w, http.StatusBadGateway, "upstream service error")
	default:
		log.Error("calendar request failed", logger.Err(err))
		writeText(w, http.StatusInternalServerError, "internal server error")
	}
}

func validationMessage(err error) string {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}

// ══════════════════════════════════════════════════════════════════════════════
// JSON DTOs
// ══════════════════════════════════════════════════════════════════════════════

// LocalDateTime is encoded as Warsaw wall-clock time without an offset.
type LocalDateTime time.Time

// LocalDateTimeLayout is the JSON layout of LocalDateTime.
const LocalDateTimeLayout = "2006-01-02T15:04:05"

func (t LocalDateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).In(timeutil.Warsaw).Format(LocalDateTimeLayout))
}

// CalendarResponse is the JSON body of the calendar data route.
type CalendarResponse struct {
	StudentID int64      `json:"student_id"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	Schedule  []ClassDTO `json:"schedule"`
	Exams     []ExamDTO  `json:"exams"`
}

// ClassDTO is one class in the JSON response.
type ClassDTO struct {
	ID             int64         `json:"id"`
	StartsAt       LocalDateTime `json:"starts_at"`
	EndsAt         LocalDateTime `json:"ends_at"`
	Subject        string        `json:"subject"`
	ClassType      string        `json:"class_type"`
	ClassTypeShort string        `json:"class_type_short"`
	RoomNumber     *string       `json:"room_number"`
	RoomAddress    *string       `json:"room_address"`
	Webinar        bool          `json:"webinar"`
	Instructors    []string      `json:"instructors"`
}

// ExamDTO is one exam in the JSON response.
type ExamDTO struct {
	PublishedDataID int64         `json:"published_data_id"`
	Subject         string        `json:"subject"`
	Notes           *string       `json:"notes"`
	Location        *string       `json:"location"`
	Lecturer        *string       `json:"lecturer"`
	Details         *string       `json:"details"`
	Starts          LocalDateTime `json:"starts"`
	Ends            LocalDateTime `json:"ends"`
}

// NewCalendarResponse converts a calendar into its JSON form.
func NewCalendarResponse(cal *schedule.Calendar) CalendarResponse {
	resp := CalendarResponse{
		StudentID: cal.StudentID,
		From:      timeutil.FormatDate(cal.From),
		To:        timeutil.FormatDate(cal.To),
		Schedule:  make([]ClassDTO, 0, len(cal.Classes)),
		Exams:     make([]ExamDTO, 0, len(cal.Exams)),
	}

	for _, c := range cal.Classes {
		instructors := c.Instructors
		if instructors == nil {
			instructors = []string{}
		}
		resp.Schedule = append(resp.Schedule, ClassDTO{
			ID:             c.ID,
			StartsAt:       LocalDateTime(c.StartsAt),
			EndsAt:         LocalDateTime(c.EndsAt),
			Subject:        c.SubjectName,
			ClassType:      c.ClassType,
			ClassTypeShort: c.ClassTypeShort,
			RoomNumber:     c.RoomNumber,
			RoomAddress:    c.RoomAddress,
			Webinar:        c.Webinar,
			Instructors:    instructors,
		})
	}

	for _, e := range cal.Exams {
		resp.Exams = append(resp.Exams, ExamDTO{
			PublishedDataID: e.PublishedDataID,
			Subject:         e.Subject,
			Notes:           e.Notes,
			Location:        e.Location,
			Lecturer:        e.Lecturer,
			Details:         e.Details,
			Starts:          LocalDateTime(e.Starts),
			Ends:            LocalDateTime(e.Ends),
		})
	}
	return resp
}
