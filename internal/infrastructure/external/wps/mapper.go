package wps

import (
	"strings"
	"time"

	"github.com/ahe-ics/ahe-ics/internal/domain/credential"
	"github.com/ahe-ics/ahe-ics/internal/domain/exam"
	"github.com/ahe-ics/ahe-ics/internal/domain/schedule"
	"github.com/ahe-ics/ahe-ics/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - DTO to domain transformations
// ══════════════════════════════════════════════════════════════════════════════

// Mapper converts WPS DTOs into domain values, keeping the Polish field names
// and upstream quirks out of the domain.
type Mapper struct{}

// NewMapper creates a new Mapper instance.
func NewMapper() *Mapper {
	return &Mapper{}
}

// GrantFromDTO converts a login response.
func (m *Mapper) GrantFromDTO(dto TokenDTO) credential.Grant {
	tokenType := dto.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	expiresIn := dto.ExpiresIn
	if expiresIn < 0 {
		expiresIn = 0
	}
	return credential.Grant{
		AccessToken: dto.AccessToken,
		TokenType:   tokenType,
		ExpiresIn:   time.Duration(expiresIn) * time.Second,
	}
}

// ProfileFromDTO converts the student profile.
func (m *Mapper) ProfileFromDTO(dto StudentDTO) student.Profile {
	return student.Profile{
		StudentID: dto.StudentID,
		FirstName: strings.TrimSpace(deref(dto.FirstName)),
		LastName:  strings.TrimSpace(deref(dto.LastName)),
		Email:     strings.TrimSpace(deref(dto.Email)),
		IndexID:   dto.IndexID,
	}
}

// IndexesFromDTO converts the index list.
func (m *Mapper) IndexesFromDTO(dtos []IndexDTO) []student.Index {
	out := make([]student.Index, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, student.Index{
			IndexID:      d.IndexID,
			StatusSymbol: d.StatusSymbol,
			Year:         d.Year,
			Semester:     d.Semester,
		})
	}
	return out
}

// ProtocolFromDTO converts exam protocol rows.
func (m *Mapper) ProtocolFromDTO(dtos []ProtocolItemDTO) []exam.ProtocolEntry {
	out := make([]exam.ProtocolEntry, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, exam.ProtocolEntry{
			Subject:              d.Subject,
			SettlementMethodName: d.SettlementMethodName,
			CardID:               d.CardID,
			CardPositionID:       d.CardPositionID,
		})
	}
	return out
}

// IntermediateFromDTO converts intermediate protocol rows.
func (m *Mapper) IntermediateFromDTO(dtos []IntermediateItemDTO) []exam.IntermediateEntry {
	out := make([]exam.IntermediateEntry, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, exam.IntermediateEntry{SettlementMethodName: d.SettlementMethodName})
	}
	return out
}

// ExamScheduleFromDTO converts exam schedule rows. Rows with an unparseable
// exam date keep a zero ExamDate and are dropped later by the range filter.
func (m *Mapper) ExamScheduleFromDTO(dtos []ExamScheduleItemDTO) []exam.ScheduleEntry {
	out := make([]exam.ScheduleEntry, 0, len(dtos))
	for _, d := range dtos {
		var date time.Time
		if d.ExamDate.Valid {
			date = d.ExamDate.Time
		}
		out = append(out, exam.ScheduleEntry{
			PublishedDataID: d.PublishedDataID,
			Subject:         d.Subject,
			ExamDate:        date,
			StartTime:       d.StartTime,
			EndTime:         d.EndTime,
			Room:            d.Room,
			Lecturer:        d.Lecturer,
			Notes:           d.Notes,
			Details:         d.Details,
		})
	}
	return out
}

// ClassFromDTO converts one plan row. It returns false when either timestamp
// is missing or unparseable.
func (m *Mapper) ClassFromDTO(d PlanItemDTO) (schedule.ClassEntry, bool) {
	if !d.StartsAt.Valid || !d.EndsAt.Valid {
		return schedule.ClassEntry{}, false
	}

	instructors := make([]string, 0, len(d.Instructors))
	for _, in := range d.Instructors {
		if name := strings.TrimSpace(in.FullName); name != "" {
			instructors = append(instructors, name)
		}
	}

	return schedule.ClassEntry{
		ID:             d.ID,
		StartsAt:       d.StartsAt.Time,
		EndsAt:         d.EndsAt.Time,
		SubjectName:    d.SubjectName,
		ClassType:      d.ClassType,
		ClassTypeShort: d.ClassTypeShort,
		RoomNumber:     d.RoomNumber,
		RoomAddress:    d.RoomAddress,
		Webinar:        d.Webinar,
		Instructors:    instructors,
	}, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
