// Package schedule models the student's class timetable and the assembled
// calendar handed to renderers.
package schedule

import (
	"time"

	"github.com/ahe-ics/ahe-ics/internal/domain/exam"
)

// ClassEntry is one class meeting from the detailed timetable.
type ClassEntry struct {
	ID             int64
	StartsAt       time.Time
	EndsAt         time.Time
	SubjectName    string
	ClassType      string
	ClassTypeShort string
	RoomNumber     *string
	RoomAddress    *string
	Webinar        bool
	Instructors    []string
}

// Calendar is everything needed to render one student's feed for a window.
type Calendar struct {
	StudentID int64
	From      time.Time
	To        time.Time
	Classes   []ClassEntry
	Exams     []exam.Event
}

// IsEmpty reports whether there is nothing to render.
func (c *Calendar) IsEmpty() bool {
	return len(c.Classes) == 0 && len(c.Exams) == 0
}
