package exam

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// SettlementName is the normalized settlement-method name of a real exam.
const SettlementName = "egzamin"

// NormalizeSubject collapses whitespace, case-folds s and composes it to NFC,
// so a decomposed "o" + U+0301 matches a precomposed "ó".
// The second result is false when nothing is left.
func NormalizeSubject(s string) (string, bool) {
	// A Caser is stateful, so each call gets its own.
	normalized := norm.NFC.String(cases.Fold().String(strings.Join(strings.Fields(s), " ")))
	if normalized == "" {
		return "", false
	}
	return normalized, true
}

// IsExamSettlement reports whether a settlement-method name denotes an exam.
func IsExamSettlement(name *string) bool {
	if name == nil {
		return false
	}
	normalized, ok := NormalizeSubject(*name)
	return ok && normalized == SettlementName
}

// SubjectSet is the set of normalized subjects examined in one term.
type SubjectSet map[string]struct{}

// Add inserts a normalized subject.
func (s SubjectSet) Add(normalized string) {
	s[normalized] = struct{}{}
}

// Contains reports whether the normalized subject is in the set.
func (s SubjectSet) Contains(normalized string) bool {
	_, ok := s[normalized]
	return ok
}
