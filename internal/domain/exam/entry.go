package exam

import (
	"time"
)

// ProtocolEntry is one subject row of a term's exam protocol.
type ProtocolEntry struct {
	Subject              string
	SettlementMethodName *string
	CardID               int64
	CardPositionID       int64
}

// CardKey identifies an exam card position.
type CardKey struct {
	CardID         int64
	CardPositionID int64
}

// Card returns the linked exam card, if both ids are positive.
func (e ProtocolEntry) Card() (CardKey, bool) {
	if e.CardID <= 0 || e.CardPositionID <= 0 {
		return CardKey{}, false
	}
	return CardKey{CardID: e.CardID, CardPositionID: e.CardPositionID}, true
}

// IntermediateEntry is one row of an intermediate exam protocol.
type IntermediateEntry struct {
	SettlementMethodName *string
}

// AnyExamSettlement reports whether any intermediate row is an exam.
func AnyExamSettlement(entries []IntermediateEntry) bool {
	for _, e := range entries {
		if IsExamSettlement(e.SettlementMethodName) {
			return true
		}
	}
	return false
}

// ScheduleEntry is a raw scheduled-exam row.
// ExamDate is zero when the upstream value could not be parsed.
type ScheduleEntry struct {
	PublishedDataID int64
	Subject         string
	ExamDate        time.Time
	StartTime       *string
	EndTime         *string
	Room            *string
	Lecturer        *string
	Notes           *string
	Details         *string
}
