// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ahe-ics/ahe-ics/internal/domain/exam"
	"github.com/ahe-ics/ahe-ics/internal/domain/schedule"
	"github.com/ahe-ics/ahe-ics/internal/domain/shared"
	"github.com/ahe-ics/ahe-ics/internal/domain/student"
	"github.com/ahe-ics/ahe-ics/internal/infrastructure/cache"
	"github.com/ahe-ics/ahe-ics/pkg/logger"
	"github.com/ahe-ics/ahe-ics/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET CALENDAR QUERY
// Builds the student's calendar (classes and exams) for a date window and
// renders it as an iCalendar feed. Rendered feeds are cached per window.
// ══════════════════════════════════════════════════════════════════════════════

// Default window around today when the request does not name one.
const (
	DefaultPastDays   = 60
	DefaultFutureDays = 60

	// FeedCacheTTL is how long a rendered feed is served from memory.
	FeedCacheTTL = 600 * time.Second

	// SharedFetchTimeout bounds a fetch shared by concurrent requests.
	SharedFetchTimeout = 60 * time.Second
)

// GetCalendarQuery holds the requested window. Nil bounds take the defaults.
type GetCalendarQuery struct {
	From *time.Time
	To   *time.Time
}

// Window resolves the query bounds against today.
// It returns shared.ErrInvalidDateRange when to is before from.
func (q GetCalendarQuery) Window(today time.Time, pastDays, futureDays int) (from, to time.Time, err error) {
	from = timeutil.AddDays(today, -pastDays)
	if q.From != nil {
		from = timeutil.StartOfDay(*q.From)
	}
	to = timeutil.AddDays(today, futureDays)
	if q.To != nil {
		to = timeutil.StartOfDay(*q.To)
	}
	r, err := shared.NewDateRange(from, to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return r.From, r.To, nil
}

// FeedKey identifies one rendered feed.
type FeedKey struct {
	StudentID int64
	From      string
	To        string
}

func (k FeedKey) String() string {
	return fmt.Sprintf("%d:%s:%s", k.StudentID, k.From, k.To)
}

// ─────────────────────────────────────────────────────────────────────────────
// Dependencies
// ─────────────────────────────────────────────────────────────────────────────

// TokenProvider hands out the upstream bearer token.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// ContextResolver resolves the student identity behind the token.
type ContextResolver interface {
	Context(ctx context.Context, token string) (student.Context, error)
}

// ClassSource fetches the class schedule.
type ClassSource interface {
	GetClassSchedule(ctx context.Context, token string, studentID int64, from, to time.Time) ([]schedule.ClassEntry, error)
}

// ExamResolver resolves exam events for an index.
type ExamResolver interface {
	Resolve(ctx context.Context, token string, indexID int64, from, to time.Time) ([]exam.Event, error)
}

// Renderer serializes a calendar.
type Renderer interface {
	Render(cal *schedule.Calendar) (string, error)
}

// FeedStore is a shared tier for rendered feeds, consulted after the
// in-process cache.
type FeedStore interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Store(ctx context.Context, key, payload string) error
}

// GetCalendarConfig configures GetCalendarHandler.
type GetCalendarConfig struct {
	PastDays     int
	FutureDays   int
	ExamsEnabled bool

	// CacheTTL defaults to FeedCacheTTL.
	CacheTTL time.Duration

	// FetchTimeout defaults to SharedFetchTimeout.
	FetchTimeout time.Duration

	// Clock defaults to timeutil.Now.
	Clock cache.Clock

	Logger *slog.Logger
}

// DefaultGetCalendarConfig returns the default configuration.
func DefaultGetCalendarConfig() GetCalendarConfig {
	return GetCalendarConfig{
		PastDays:     DefaultPastDays,
		FutureDays:   DefaultFutureDays,
		ExamsEnabled: true,
		CacheTTL:     FeedCacheTTL,
		FetchTimeout: SharedFetchTimeout,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Handler
// ─────────────────────────────────────────────────────────────────────────────

// GetCalendarHandler aggregates classes and exams into a calendar.
type GetCalendarHandler struct {
	tokens   TokenProvider
	contexts ContextResolver
	classes  ClassSource
	exams    ExamResolver
	renderer Renderer
	store    FeedStore

	feeds  *cache.Keyed[FeedKey, string]
	group  singleflight.Group
	cfg    GetCalendarConfig
	logger *slog.Logger
}

// NewGetCalendarHandler creates a handler. store may be nil.
func NewGetCalendarHandler(
	tokens TokenProvider,
	contexts ContextResolver,
	classes ClassSource,
	exams ExamResolver,
	renderer Renderer,
	store FeedStore,
	cfg GetCalendarConfig,
) *GetCalendarHandler {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = FeedCacheTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = SharedFetchTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &GetCalendarHandler{
		tokens:   tokens,
		contexts: contexts,
		classes:  classes,
		exams:    exams,
		renderer: renderer,
		store:    store,
		feeds:    cache.NewKeyedWithClock[FeedKey, string](cfg.CacheTTL, cfg.Clock),
		cfg:      cfg,
		logger:   cfg.Logger.With(logger.Component("get_calendar")),
	}
}

// Fetch assembles the calendar for the query window without caching.
func (h *GetCalendarHandler) Fetch(ctx context.Context, q GetCalendarQuery) (*schedule.Calendar, error) {
	from, to, err := h.window(q)
	if err != nil {
		return nil, err
	}

	token, sc, err := h.session(ctx)
	if err != nil {
		return nil, err
	}
	return h.fetch(ctx, token, sc, from, to)
}

// RenderICS returns the rendered feed for the query window, from cache when
// possible. Concurrent misses for the same window share one upstream fetch.
// The shared fetch outlives any single caller; each caller stops waiting when
// its own context ends.
func (h *GetCalendarHandler) RenderICS(ctx context.Context, q GetCalendarQuery) (string, error) {
	from, to, err := h.window(q)
	if err != nil {
		return "", err
	}

	token, sc, err := h.session(ctx)
	if err != nil {
		return "", err
	}

	key := FeedKey{
		StudentID: sc.StudentID(),
		From:      timeutil.FormatDate(from),
		To:        timeutil.FormatDate(to),
	}
	log := h.logger.With(logger.StudentID(key.StudentID), slog.String("feed", key.String()))

	if payload, ok := h.feeds.Get(key); ok {
		log.Debug("feed served from memory")
		return payload, nil
	}

	ch := h.group.DoChan(key.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.FetchTimeout)
		defer cancel()
		return h.renderFeed(fetchCtx, log, token, sc, key, from, to)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// renderFeed fills both cache tiers for key. It runs once per concurrent miss.
func (h *GetCalendarHandler) renderFeed(
	ctx context.Context,
	log *slog.Logger,
	token string,
	sc student.Context,
	key FeedKey,
	from, to time.Time,
) (string, error) {
	if payload, ok := h.feeds.Get(key); ok {
		return payload, nil
	}

	if payload, ok := h.lookupShared(ctx, log, key); ok {
		h.feeds.Insert(key, payload)
		return payload, nil
	}

	cal, err := h.fetch(ctx, token, sc, from, to)
	if err != nil {
		return "", err
	}
	if cal.IsEmpty() {
		log.Debug("no classes or exams in window")
	}

	payload, err := h.renderer.Render(cal)
	if err != nil {
		return "", fmt.Errorf("render calendar: %w", err)
	}

	h.feeds.Insert(key, payload)
	h.storeShared(ctx, log, key, payload)

	log.Info("feed rendered",
		slog.Int("classes", len(cal.Classes)),
		slog.Int("exams", len(cal.Exams)),
		slog.Int("cached_feeds", h.feeds.Len()),
	)
	return payload, nil
}

func (h *GetCalendarHandler) window(q GetCalendarQuery) (time.Time, time.Time, error) {
	return q.Window(timeutil.StartOfDay(h.cfg.Clock()), h.cfg.PastDays, h.cfg.FutureDays)
}

func (h *GetCalendarHandler) session(ctx context.Context) (string, student.Context, error) {
	token, err := h.tokens.Token(ctx)
	if err != nil {
		return "", student.Context{}, err
	}

	sc, err := h.contexts.Context(ctx, token)
	if err != nil {
		h.dropCredentialIfRejected(err)
		return "", student.Context{}, err
	}
	return token, sc, nil
}

func (h *GetCalendarHandler) fetch(ctx context.Context, token string, sc student.Context, from, to time.Time) (*schedule.Calendar, error) {
	log := h.logger.With(logger.StudentID(sc.StudentID()))
	cal := &schedule.Calendar{StudentID: sc.StudentID(), From: from, To: to}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		classes, err := h.classes.GetClassSchedule(gctx, token, sc.StudentID(), from, to)
		if err != nil {
			return fmt.Errorf("fetch class schedule: %w", err)
		}
		cal.Classes = classes
		return nil
	})

	if indexID, ok := sc.ExamIndexID(); ok && h.cfg.ExamsEnabled {
		g.Go(func() error {
			events, err := h.exams.Resolve(gctx, token, indexID, from, to)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
					return nil
				}
				h.dropCredentialIfRejected(err)
				log.Warn("exam resolution failed, serving classes only", logger.IndexID(indexID), logger.Err(err))
				return nil
			}
			cal.Exams = events
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		h.dropCredentialIfRejected(err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return cal, nil
}

// dropCredentialIfRejected forgets the cached token after an upstream 401 so
// the next request logs in again.
func (h *GetCalendarHandler) dropCredentialIfRejected(err error) {
	if shared.IsUnauthorized(err) {
		h.tokens.Invalidate()
	}
}

func (h *GetCalendarHandler) lookupShared(ctx context.Context, log *slog.Logger, key FeedKey) (string, bool) {
	if h.store == nil {
		return "", false
	}
	payload, ok, err := h.store.Lookup(ctx, key.String())
	if err != nil {
		log.Warn("shared feed lookup failed", logger.Err(err))
		return "", false
	}
	if ok {
		log.Debug("feed served from shared tier")
	}
	return payload, ok
}

func (h *GetCalendarHandler) storeShared(ctx context.Context, log *slog.Logger, key FeedKey, payload string) {
	if h.store == nil {
		return
	}
	if err := h.store.Store(ctx, key.String(), payload); err != nil {
		log.Warn("shared feed store failed", logger.Err(err))
	}
}
