package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahe-ics/ahe-ics/internal/domain/student"
	"github.com/ahe-ics/ahe-ics/internal/infrastructure/cache"
	"github.com/ahe-ics/ahe-ics/pkg/logger"
)

// DefaultStudentContextTTL is how long a resolved context is reused.
const DefaultStudentContextTTL = 6 * time.Hour

// ProfileSource reads the authenticated student's records.
type ProfileSource interface {
	GetProfile(ctx context.Context, token string) (student.Profile, error)
	GetIndexes(ctx context.Context, token string) ([]student.Index, error)
}

// StudentContextConfig configures a StudentContextResolver.
type StudentContextConfig struct {
	TTL time.Duration

	// ExamsEnabled controls whether an exam index is looked up at all.
	ExamsEnabled bool

	// Clock defaults to time.Now.
	Clock cache.Clock

	Logger *slog.Logger
}

// StudentContextResolver resolves and caches the student id and exam index.
type StudentContextResolver struct {
	source ProfileSource
	cfg    StudentContextConfig
	slot   *cache.Slot[student.Context]
	logger *slog.Logger
}

// NewStudentContextResolver creates a resolver with an empty cache.
func NewStudentContextResolver(source ProfileSource, cfg StudentContextConfig) *StudentContextResolver {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultStudentContextTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &StudentContextResolver{
		source: source,
		cfg:    cfg,
		slot:   cache.NewSlotWithClock[student.Context](cfg.Clock),
		logger: cfg.Logger.With(logger.Component("student_context")),
	}
}

// Context returns the cached student context, resolving it with token when
// the cache is empty or expired. Only a profile failure is an error.
func (r *StudentContextResolver) Context(ctx context.Context, token string) (student.Context, error) {
	return r.slot.GetOrCompute(ctx, func(ctx context.Context) (student.Context, time.Time, error) {
		sc, err := r.resolve(ctx, token)
		if err != nil {
			return student.Context{}, time.Time{}, err
		}
		return sc, r.cfg.Clock().Add(r.cfg.TTL), nil
	})
}

// Invalidate drops the cached context.
func (r *StudentContextResolver) Invalidate() {
	r.slot.Invalidate()
}

func (r *StudentContextResolver) resolve(ctx context.Context, token string) (student.Context, error) {
	profile, err := r.source.GetProfile(ctx, token)
	if err != nil {
		return student.Context{}, fmt.Errorf("fetch student profile: %w", err)
	}
	log := r.logger.With(logger.StudentID(profile.StudentID))

	if !r.cfg.ExamsEnabled {
		return student.NewContext(profile.StudentID, nil), nil
	}

	if profile.IndexID != nil {
		log.Debug("exam index taken from profile", logger.IndexID(*profile.IndexID))
		return student.NewContext(profile.StudentID, profile.IndexID), nil
	}

	indexes, err := r.source.GetIndexes(ctx, token)
	if err != nil {
		log.Warn("index list unavailable, exams disabled for this context", logger.Err(err))
		return student.NewContext(profile.StudentID, nil), nil
	}

	indexID, ok := student.PickIndex(indexes)
	if !ok {
		log.Warn("student has no indexes, exams disabled for this context")
		return student.NewContext(profile.StudentID, nil), nil
	}

	log.Info("exam index chosen from index list", logger.IndexID(indexID), slog.Int("candidates", len(indexes)))
	return student.NewContext(profile.StudentID, &indexID), nil
}
