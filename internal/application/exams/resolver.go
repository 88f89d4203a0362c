// Package exams decides which subjects of the current academic year end with
// a real exam and turns the matching exam schedule rows into calendar events.
package exams

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahe-ics/ahe-ics/internal/domain/exam"
	"github.com/ahe-ics/ahe-ics/pkg/logger"
)

// Source is the part of the academic API the resolver reads.
type Source interface {
	GetCurrentAcademicYear(ctx context.Context, token string) (int, error)
	GetExamProtocol(ctx context.Context, token string, indexID int64, term exam.TermQuery) ([]exam.ProtocolEntry, error)
	GetIntermediateProtocol(ctx context.Context, token string, card exam.CardKey) ([]exam.IntermediateEntry, error)
	GetExamSchedule(ctx context.Context, token string, term exam.TermQuery) ([]exam.ScheduleEntry, error)
}

// Resolver resolves exam events for one student index.
type Resolver struct {
	source Source
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(source Source, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{source: source, logger: log.With(logger.Component("exam_resolver"))}
}

type examinedTerm struct {
	term     exam.TermQuery
	subjects exam.SubjectSet
}

// Resolve returns the exams of the current academic year whose date falls in
// [from, to], deduplicated and ordered by start time.
//
// Only the academic year lookup is fatal. Any later failure drops the affected
// term, card or schedule and is logged.
func (r *Resolver) Resolve(ctx context.Context, token string, indexID int64, from, to time.Time) ([]exam.Event, error) {
	year, err := r.source.GetCurrentAcademicYear(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetch current academic year: %w", err)
	}
	log := r.logger.With(logger.IndexID(indexID), logger.AcademicYear(year))

	var terms []examinedTerm
	for _, term := range exam.TermsForYear(year) {
		subjects, ok := r.examinedSubjects(ctx, log, token, indexID, term)
		if !ok || len(subjects) == 0 {
			continue
		}
		terms = append(terms, examinedTerm{term: term, subjects: subjects})
	}

	if len(terms) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		log.Debug("no examined subjects this year")
		return nil, nil
	}

	collector := exam.NewCollector()
	for _, t := range terms {
		r.collectScheduled(ctx, log, token, t, from, to, collector)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return collector.Sorted(), nil
}

// examinedSubjects classifies one term's protocol. The second result is false
// when the protocol could not be fetched.
func (r *Resolver) examinedSubjects(ctx context.Context, log *slog.Logger, token string, indexID int64, term exam.TermQuery) (exam.SubjectSet, bool) {
	log = log.With(logger.TermNumber(term.Term))

	entries, err := r.source.GetExamProtocol(ctx, token, indexID, term)
	if err != nil {
		log.Warn("exam protocol fetch failed, term skipped", logger.Err(err))
		return nil, false
	}

	subjects := exam.SubjectSet{}
	memo := make(map[exam.CardKey]bool)

	for _, entry := range entries {
		normalized, ok := exam.NormalizeSubject(entry.Subject)
		if !ok {
			continue
		}
		if exam.IsExamSettlement(entry.SettlementMethodName) || r.cardHasExam(ctx, log, token, entry, memo) {
			subjects.Add(normalized)
		}
	}
	return subjects, true
}

// cardHasExam looks the entry's card up in the intermediate protocol, once per
// card within a term. A failed lookup counts as no exam.
func (r *Resolver) cardHasExam(ctx context.Context, log *slog.Logger, token string, entry exam.ProtocolEntry, memo map[exam.CardKey]bool) bool {
	card, ok := entry.Card()
	if !ok {
		return false
	}
	if examined, seen := memo[card]; seen {
		return examined
	}

	rows, err := r.source.GetIntermediateProtocol(ctx, token, card)
	examined := false
	if err != nil {
		log.Warn("intermediate protocol fetch failed, subject treated as not examined",
			slog.Int64("card_id", card.CardID),
			slog.Int64("card_position_id", card.CardPositionID),
			logger.Err(err),
		)
	} else {
		examined = exam.AnyExamSettlement(rows)
	}

	memo[card] = examined
	return examined
}

func (r *Resolver) collectScheduled(ctx context.Context, log *slog.Logger, token string, t examinedTerm, from, to time.Time, collector *exam.Collector) {
	log = log.With(logger.TermNumber(t.term.Term))

	rows, err := r.source.GetExamSchedule(ctx, token, t.term)
	if err != nil {
		log.Warn("exam schedule fetch failed, term skipped", logger.Err(err))
		return
	}

	for _, row := range rows {
		normalized, ok := exam.NormalizeSubject(row.Subject)
		if !ok || !t.subjects.Contains(normalized) {
			continue
		}
		ev, ok := exam.MapScheduleEntry(row, from, to)
		if !ok {
			continue
		}
		collector.Add(ev, normalized)
	}
}
