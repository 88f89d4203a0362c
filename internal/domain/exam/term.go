package exam

import (
	"cmp"
	"fmt"
)

// Term numbers within an academic year.
const (
	FirstTerm  = 1
	SecondTerm = 2
)

// TermQuery identifies one term of an academic year.
type TermQuery struct {
	AcademicYear int
	Term         int
}

// TermsForYear returns both terms of the year, in order.
func TermsForYear(academicYear int) []TermQuery {
	return []TermQuery{
		{AcademicYear: academicYear, Term: FirstTerm},
		{AcademicYear: academicYear, Term: SecondTerm},
	}
}

// Compare orders terms by (AcademicYear, Term).
func (q TermQuery) Compare(other TermQuery) int {
	return cmp.Or(
		cmp.Compare(q.AcademicYear, other.AcademicYear),
		cmp.Compare(q.Term, other.Term),
	)
}

func (q TermQuery) String() string {
	return fmt.Sprintf("%d/%d", q.AcademicYear, q.Term)
}
