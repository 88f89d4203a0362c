package student

import (
	"cmp"
	"slices"
)

// ActiveStatus is the status symbol of an index the student is currently enrolled on.
const ActiveStatus = "S"

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile is the authenticated student's record.
type Profile struct {
	StudentID int64
	FirstName string
	LastName  string
	Email     string

	// IndexID is set when the profile already names the exam index.
	IndexID *int64
}

// ══════════════════════════════════════════════════════════════════════════════
// INDEX
// ══════════════════════════════════════════════════════════════════════════════

// Index is one enrolment of the student. Optional fields are nil when the
// upstream omits them.
type Index struct {
	IndexID      int64
	StatusSymbol *string
	Year         *int
	Semester     *int
}

// IsActive reports whether the index has the active status symbol.
func (i Index) IsActive() bool {
	return i.StatusSymbol != nil && *i.StatusSymbol == ActiveStatus
}

// compareIndexes orders indexes by (active, year, semester, index id).
func compareIndexes(a, b Index) int {
	if a.IsActive() != b.IsActive() {
		if a.IsActive() {
			return 1
		}
		return -1
	}
	return cmp.Or(
		cmp.Compare(deref(a.Year), deref(b.Year)),
		cmp.Compare(deref(a.Semester), deref(b.Semester)),
		cmp.Compare(a.IndexID, b.IndexID),
	)
}

// PickIndex returns the id of the best index: active status first, then the
// highest year, semester and index id. Missing year or semester count as zero.
func PickIndex(indexes []Index) (int64, bool) {
	if len(indexes) == 0 {
		return 0, false
	}
	return slices.MaxFunc(indexes, compareIndexes).IndexID, true
}

func deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

// Context is the resolved identity used by calendar requests.
// It is immutable once built.
type Context struct {
	studentID   int64
	examIndexID *int64
}

// NewContext creates a Context. A nil index means exams are skipped.
func NewContext(studentID int64, examIndexID *int64) Context {
	if examIndexID != nil {
		id := *examIndexID
		examIndexID = &id
	}
	return Context{studentID: studentID, examIndexID: examIndexID}
}

// StudentID returns the student id.
func (c Context) StudentID() int64 {
	return c.studentID
}

// ExamIndexID returns the exam index id and whether it is present.
func (c Context) ExamIndexID() (int64, bool) {
	if c.examIndexID == nil {
		return 0, false
	}
	return *c.examIndexID, true
}
