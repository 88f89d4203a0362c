// Package ics renders a student's calendar as an iCalendar feed.
package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/ahe-ics/ahe-ics/internal/domain/exam"
	"github.com/ahe-ics/ahe-ics/internal/domain/schedule"
)

const (
	// TimeZone is advertised through X-WR-TIMEZONE.
	TimeZone = "Europe/Warsaw"

	// ContentType is the media type of the rendered feed.
	ContentType = "text/calendar; charset=utf-8"

	uidDomain = "wpsapi.ahe.lodz.pl"
	productID = "-//ahe-ics//AHE calendar feed//PL"

	locationSeparator = " — "
)

// Renderer turns a schedule.Calendar into ICS text.
type Renderer struct {
	texts Texts
	now   func() time.Time
}

// NewRenderer creates a Renderer for the given language.
func NewRenderer(lang Language) *Renderer {
	return &Renderer{texts: TextsFor(lang), now: time.Now}
}

// WithClock returns a copy of the renderer using clock for DTSTAMP.
func (r *Renderer) WithClock(clock func() time.Time) *Renderer {
	cp := *r
	cp.now = clock
	return &cp
}

// Render serializes the calendar. Classes come first in upstream order,
// followed by exams in resolved order.
func (r *Renderer) Render(cal *schedule.Calendar) (string, error) {
	out := ical.NewCalendarFor("ahe-ics")
	out.SetProductId(productID)
	out.SetMethod(ical.MethodPublish)
	out.SetName(r.texts.CalendarName)
	out.SetXWRTimezone(TimeZone)

	stamp := r.now()

	for _, c := range cal.Classes {
		ev := out.AddEvent(ClassUID(cal.StudentID, c.ID))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(c.StartsAt)
		ev.SetEndAt(c.EndsAt)
		ev.SetSummary(ClassSummary(c))
		ev.SetLocation(r.classLocation(c))
		ev.SetDescription(r.classDescription(c))
	}

	for _, e := range cal.Exams {
		ev := out.AddEvent(ExamUID(cal.StudentID, e))
		ev.SetDtStampTime(stamp)
		ev.SetStartAt(e.Starts)
		ev.SetEndAt(e.Ends)
		ev.SetSummary(fmt.Sprintf("%s: %s", r.texts.LabelExam, e.Subject))
		ev.SetLocation(valueOr(e.Location, r.texts.LocationDefault))
		ev.SetDescription(r.examDescription(e))
	}

	var b strings.Builder
	if err := out.SerializeTo(&b); err != nil {
		return "", fmt.Errorf("serialize calendar: %w", err)
	}
	return b.String(), nil
}

// ClassUID is the stable UID of a class event.
func ClassUID(studentID, scheduleItemID int64) string {
	return fmt.Sprintf("ahe-%d-%d@%s", studentID, scheduleItemID, uidDomain)
}

// ExamUID is the stable UID of an exam event.
func ExamUID(studentID int64, e exam.Event) string {
	return fmt.Sprintf("ahe-exam-%d-%d-%d@%s", studentID, e.PublishedDataID, e.Starts.Unix(), uidDomain)
}

// ClassSummary formats "Name [Type Short]", dropping a blank short type.
func ClassSummary(c schedule.ClassEntry) string {
	kind := c.ClassType
	if strings.TrimSpace(c.ClassTypeShort) != "" {
		kind = c.ClassType + " " + c.ClassTypeShort
	}
	return fmt.Sprintf("%s [%s]", c.SubjectName, kind)
}

func (r *Renderer) classLocation(c schedule.ClassEntry) string {
	if c.Webinar {
		return r.texts.LocationWebinar
	}

	var parts []string
	for _, v := range []*string{c.RoomNumber, c.RoomAddress} {
		if v != nil && strings.TrimSpace(*v) != "" {
			parts = append(parts, strings.TrimSpace(*v))
		}
	}
	if len(parts) == 0 {
		return r.texts.LocationDefault
	}
	return strings.Join(parts, locationSeparator)
}

func (r *Renderer) classDescription(c schedule.ClassEntry) string {
	instructors := r.texts.MissingData
	if len(c.Instructors) > 0 {
		instructors = strings.Join(c.Instructors, ", ")
	}
	return fmt.Sprintf("%s: %s\n%s: %s", r.texts.LabelInstructors, instructors, r.texts.LabelType, c.ClassType)
}

func (r *Renderer) examDescription(e exam.Event) string {
	lines := []string{
		fmt.Sprintf("%s: %s", r.texts.LabelInstructors, valueOr(e.Lecturer, r.texts.MissingData)),
	}
	if e.Notes != nil {
		lines = append(lines, fmt.Sprintf("%s: %s", r.texts.LabelExamType, *e.Notes))
	}
	if e.Details != nil {
		lines = append(lines, fmt.Sprintf("%s: %s", r.texts.LabelDetails, *e.Details))
	}
	return strings.Join(lines, "\n")
}

func valueOr(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}
