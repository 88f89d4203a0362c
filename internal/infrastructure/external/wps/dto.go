// Package wps implements the WPS academic records API client.
// This package handles all communication with the university API: login,
// student profile and indexes, exam protocols and schedules, and the class plan.
package wps

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ahe-ics/ahe-ics/internal/domain/shared"
	"github.com/ahe-ics/ahe-ics/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRIMITIVES
// ══════════════════════════════════════════════════════════════════════════════

// LocalTime is an offset-less Warsaw timestamp. Unparseable values decode as
// invalid instead of failing the whole payload.
type LocalTime struct {
	Time  time.Time
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *LocalTime) UnmarshalJSON(data []byte) error {
	*t = LocalTime{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	t.Time, t.Valid = timeutil.ParseLocalDateTime(raw)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTH DTOs
// ══════════════════════════════════════════════════════════════════════════════

// TokenDTO is the login response.
type TokenDTO struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT DTOs
// ══════════════════════════════════════════════════════════════════════════════

// StudentDTO is the authenticated student's profile.
type StudentDTO struct {
	// StudentID is the student identifier used by the plan endpoint
	StudentID int64 `json:"IDStudent"`

	// IndexID is present when the profile already points at an index
	IndexID *int64 `json:"IDIndeks,omitempty"`

	FirstName  *string `json:"Imie,omitempty"`
	MiddleName *string `json:"DrugieImie,omitempty"`
	LastName   *string `json:"Nazwisko,omitempty"`
	Email      *string `json:"Email1,omitempty"`
}

// IndexDTO is one entry of the student's index list.
type IndexDTO struct {
	IndexID      int64   `json:"IDIndeks"`
	StatusSymbol *string `json:"StatusSymbol,omitempty"`
	Year         *int    `json:"Rok,omitempty"`
	Semester     *int    `json:"Semestr,omitempty"`
}

// AcademicYearDTO is the current academic year response.
type AcademicYearDTO struct {
	AcademicYear int `json:"RokAkademicki"`
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAM DTOs
// ══════════════════════════════════════════════════════════════════════════════

// ProtocolItemDTO is one subject row of an exam protocol.
type ProtocolItemDTO struct {
	Subject              string  `json:"Przedmiot"`
	SettlementMethodName *string `json:"FormaZaliczeniaNazwa,omitempty"`
	CardID               int64   `json:"KartaEgzID"`
	CardPositionID       int64   `json:"KartaEgzPozID"`
}

// IntermediateItemDTO is one row of an intermediate exam protocol.
type IntermediateItemDTO struct {
	SettlementMethodName *string `json:"FormaZaliczeniaNazwa,omitempty"`
}

// ExamScheduleItemDTO is one published exam.
type ExamScheduleItemDTO struct {
	PublishedDataID int64     `json:"IDPublikowanaDana"`
	Subject         string    `json:"EgzPrzedmiot"`
	ExamDate        LocalTime `json:"EgzData"`
	StartTime       *string   `json:"GodzOd,omitempty"`
	EndTime         *string   `json:"GodzDo,omitempty"`
	Room            *string   `json:"Sala,omitempty"`
	Lecturer        *string   `json:"Wykladowca,omitempty"`
	Notes           *string   `json:"Uwagi,omitempty"`
	Details         *string   `json:"OpisSzczegolowy,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PLAN DTOs
// ══════════════════════════════════════════════════════════════════════════════

// InstructorDTO is a person teaching a class.
type InstructorDTO struct {
	FullName string `json:"ImieNazwisko"`
}

// PlanItemDTO is one class of the detailed plan.
type PlanItemDTO struct {
	ID             int64           `json:"IDPlanZajecPoz"`
	StartsAt       LocalTime       `json:"DataOD"`
	EndsAt         LocalTime       `json:"DataDO"`
	SubjectName    string          `json:"PNazwa"`
	ClassType      string          `json:"TypZajec"`
	ClassTypeShort string          `json:"TypZajecSkrot"`
	RoomNumber     *string         `json:"SalaNumer,omitempty"`
	RoomAddress    *string         `json:"SalaAdres,omitempty"`
	Webinar        bool            `json:"Webinar"`
	Instructors    []InstructorDTO `json:"Dydaktyk"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// APIError is returned for non-2xx responses.
type APIError struct {
	// StatusCode is the HTTP status returned by the API
	StatusCode int

	// Path is the request path without the query string
	Path string

	// Body is the start of the response body
	Body string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("wps %s: status %d body=%s", e.Path, e.StatusCode, e.Body)
}

// Is lets callers match API errors against the shared error kinds.
func (e *APIError) Is(target error) bool {
	switch target {
	case shared.ErrExternalService:
		return true
	case shared.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case shared.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case shared.ErrServiceUnavailable:
		return e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}
