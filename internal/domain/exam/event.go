package exam

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/ahe-ics/ahe-ics/pkg/timeutil"
)

// Defaults applied when a schedule row lacks usable times.
const (
	DefaultStartHour   = 9
	DefaultStartMinute = 0
	DefaultDuration    = 90 * time.Minute
)

// Event is a resolved exam.
type Event struct {
	PublishedDataID int64

	// Subject is the trimmed display name.
	Subject string

	// SourceSubject is the subject exactly as the upstream sent it.
	// Ties on Starts are broken by this field.
	SourceSubject string

	Notes    *string
	Location *string
	Lecturer *string
	Details  *string

	Starts time.Time
	Ends   time.Time
}

// MapScheduleEntry turns a schedule row into an Event.
// It returns false when the exam date is unknown or outside [from, to].
func MapScheduleEntry(e ScheduleEntry, from, to time.Time) (Event, bool) {
	if e.ExamDate.IsZero() || !timeutil.DateInRange(e.ExamDate, from, to) {
		return Event{}, false
	}

	hour, minute := DefaultStartHour, DefaultStartMinute
	if e.StartTime != nil {
		if h, m, ok := timeutil.ParseClock(*e.StartTime); ok {
			hour, minute = h, m
		}
	}
	starts := timeutil.AtClock(e.ExamDate, hour, minute)

	ends := starts.Add(DefaultDuration)
	if e.EndTime != nil {
		if h, m, ok := timeutil.ParseClock(*e.EndTime); ok {
			if candidate := timeutil.AtClock(e.ExamDate, h, m); candidate.After(starts) {
				ends = candidate
			}
		}
	}

	return Event{
		PublishedDataID: e.PublishedDataID,
		Subject:         strings.TrimSpace(e.Subject),
		SourceSubject:   e.Subject,
		Notes:           CleanText(e.Notes),
		Location:        CleanText(e.Room),
		Lecturer:        CleanLecturer(e.Lecturer),
		Details:         CleanText(e.Details),
		Starts:          starts,
		Ends:            ends,
	}, true
}

// CleanText trims v and maps blank values to nil.
func CleanText(v *string) *string {
	if v == nil {
		return nil
	}
	return nonEmpty(strings.TrimSpace(*v))
}

// CleanLecturer is CleanText that also drops the leading dashes the upstream
// uses as a placeholder.
func CleanLecturer(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(*v), "-"))
	return nonEmpty(trimmed)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ═══════════════════════════════════════════════════════════════════════════
// Deduplication and ordering
// ═══════════════════════════════════════════════════════════════════════════

// EventKey identifies an exam across terms.
type EventKey struct {
	PublishedDataID int64
	Starts          int64 // unix nanoseconds
	Subject         string
}

// Collector accumulates events, keeping the first of each EventKey.
// It is not safe for concurrent use.
type Collector struct {
	seen   map[EventKey]struct{}
	events []Event
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{seen: make(map[EventKey]struct{})}
}

// Add records ev under its normalized subject. It returns false for duplicates.
func (c *Collector) Add(ev Event, normalizedSubject string) bool {
	key := EventKey{
		PublishedDataID: ev.PublishedDataID,
		Starts:          ev.Starts.UnixNano(),
		Subject:         normalizedSubject,
	}
	if _, dup := c.seen[key]; dup {
		return false
	}
	c.seen[key] = struct{}{}
	c.events = append(c.events, ev)
	return true
}

// Len returns the number of distinct events collected.
func (c *Collector) Len() int {
	return len(c.events)
}

// Sorted returns the events ordered by Starts, then SourceSubject.
func (c *Collector) Sorted() []Event {
	out := slices.Clone(c.events)
	SortEvents(out)
	return out
}

// SortEvents orders events by Starts, then SourceSubject.
func SortEvents(events []Event) {
	slices.SortStableFunc(events, func(a, b Event) int {
		return cmp.Or(
			a.Starts.Compare(b.Starts),
			strings.Compare(a.SourceSubject, b.SourceSubject),
		)
	})
}
