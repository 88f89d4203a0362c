package ics

import (
	"fmt"
	"strings"
)

// Language selects the calendar texts.
type Language string

const (
	LanguagePL Language = "pl"
	LanguageEN Language = "en"
)

// ParseLanguage parses a language code.
func ParseLanguage(s string) (Language, error) {
	switch Language(strings.ToLower(strings.TrimSpace(s))) {
	case LanguagePL:
		return LanguagePL, nil
	case LanguageEN:
		return LanguageEN, nil
	default:
		return "", fmt.Errorf("unsupported calendar language %q: expected pl or en", s)
	}
}

// Texts holds the user-facing strings written into the feed.
type Texts struct {
	CalendarName     string
	LocationWebinar  string
	LocationDefault  string
	LabelExam        string
	LabelExamType    string
	LabelDetails     string
	LabelInstructors string
	LabelType        string
	MissingData      string
}

var textsPL = Texts{
	CalendarName:     "Plan AHE",
	LocationWebinar:  "Webinar",
	LocationDefault:  "Sala",
	LabelExam:        "Egzamin",
	LabelExamType:    "Rodzaj",
	LabelDetails:     "Szczegoly",
	LabelInstructors: "Prowadzacy",
	LabelType:        "Typ",
	MissingData:      "(brak danych)",
}

var textsEN = Texts{
	CalendarName:     "AHE Schedule",
	LocationWebinar:  "Webinar",
	LocationDefault:  "Room",
	LabelExam:        "Exam",
	LabelExamType:    "Type",
	LabelDetails:     "Details",
	LabelInstructors: "Instructors",
	LabelType:        "Class type",
	MissingData:      "(no data)",
}

// TextsFor returns the texts for lang, falling back to Polish.
func TextsFor(lang Language) Texts {
	if lang == LanguageEN {
		return textsEN
	}
	return textsPL
}
