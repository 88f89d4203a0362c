package query

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ahe-ics/ahe-ics/internal/domain/exam"
	"github.com/ahe-ics/ahe-ics/internal/domain/schedule"
	"github.com/ahe-ics/ahe-ics/internal/domain/shared"
	"github.com/ahe-ics/ahe-ics/internal/domain/student"
	"github.com/ahe-ics/ahe-ics/pkg/logger"
	"github.com/ahe-ics/ahe-ics/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// Test doubles
// ═══════════════════════════════════════════════════════════════════════════

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) Token(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockTokens) Invalidate() {
	m.Called()
}

type mockContexts struct {
	mock.Mock
}

func (m *mockContexts) Context(ctx context.Context, token string) (student.Context, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(student.Context), args.Error(1)
}

type mockClasses struct {
	mock.Mock
}

func (m *mockClasses) GetClassSchedule(ctx context.Context, token string, studentID int64, from, to time.Time) ([]schedule.ClassEntry, error) {
	args := m.Called(ctx, token, studentID, from, to)
	classes, _ := args.Get(0).([]schedule.ClassEntry)
	return classes, args.Error(1)
}

type mockExams struct {
	mock.Mock
}

func (m *mockExams) Resolve(ctx context.Context, token string, indexID int64, from, to time.Time) ([]exam.Event, error) {
	args := m.Called(ctx, token, indexID, from, to)
	events, _ := args.Get(0).([]exam.Event)
	return events, args.Error(1)
}

type countingRenderer struct{}

func (countingRenderer) Render(cal *schedule.Calendar) (string, error) {
	return fmt.Sprintf("student=%d classes=%d exams=%d", cal.StudentID, len(cal.Classes), len(cal.Exams)), nil
}

type memoryStore struct {
	mu    sync.Mutex
	items map[string]string
	sets  int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{items: make(map[string]string)}
}

func (s *memoryStore) Lookup(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok, nil
}

func (s *memoryStore) Store(_ context.Context, key, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = payload
	s.sets++
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	tokens   *mockTokens
	contexts *mockContexts
	classes  *mockClasses
	exams    *mockExams
	clock    *fakeClock
	store    *memoryStore
}

const studentID = int64(321)

var today = timeutil.DateTime(2025, time.January, 15, 13, 0)

func newFixture(indexID *int64) *fixture {
	f := &fixture{
		tokens:   &mockTokens{},
		contexts: &mockContexts{},
		classes:  &mockClasses{},
		exams:    &mockExams{},
		clock:    &fakeClock{now: today},
	}
	f.tokens.On("Token", mock.Anything).Return("tok", nil)
	f.contexts.On("Context", mock.Anything, "tok").Return(student.NewContext(studentID, indexID), nil)
	return f
}

func (f *fixture) handler(examsEnabled bool) *GetCalendarHandler {
	cfg := DefaultGetCalendarConfig()
	cfg.PastDays = 7
	cfg.FutureDays = 14
	cfg.ExamsEnabled = examsEnabled
	cfg.Clock = f.clock.Now
	cfg.Logger = logger.Discard()

	var store FeedStore
	if f.store != nil {
		store = f.store
	}
	return NewGetCalendarHandler(f.tokens, f.contexts, f.classes, f.exams, countingRenderer{}, store, cfg)
}

func int64Ptr(v int64) *int64 { return &v }

func dayPtr(year int, month time.Month, day int) *time.Time {
	d := timeutil.Date(year, month, day)
	return &d
}

func sameInstant(want time.Time) any {
	return mock.MatchedBy(func(got time.Time) bool { return got.Equal(want) })
}

var oneClass = []schedule.ClassEntry{{ID: 1, SubjectName: "Bazy danych"}}

// ═══════════════════════════════════════════════════════════════════════════
// Window
// ═══════════════════════════════════════════════════════════════════════════

func TestGetCalendarQueryWindow(t *testing.T) {
	day := timeutil.Date(2025, time.January, 15)

	testCases := []struct {
		name     string
		query    GetCalendarQuery
		wantFrom time.Time
		wantTo   time.Time
		wantErr  error
	}{
		{
			name:     "defaults",
			wantFrom: timeutil.Date(2024, time.November, 16),
			wantTo:   timeutil.Date(2025, time.March, 16),
		},
		{
			name:     "explicit_bounds",
			query:    GetCalendarQuery{From: dayPtr(2025, time.February, 1), To: dayPtr(2025, time.February, 1)},
			wantFrom: timeutil.Date(2025, time.February, 1),
			wantTo:   timeutil.Date(2025, time.February, 1),
		},
		{
			name:     "only_to",
			query:    GetCalendarQuery{To: dayPtr(2025, time.January, 20)},
			wantFrom: timeutil.Date(2024, time.November, 16),
			wantTo:   timeutil.Date(2025, time.January, 20),
		},
		{
			name:    "to_before_from",
			query:   GetCalendarQuery{From: dayPtr(2025, time.February, 2), To: dayPtr(2025, time.February, 1)},
			wantErr: shared.ErrInvalidInput,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			from, to, err := tc.query.Window(day, DefaultPastDays, DefaultFutureDays)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.True(t, shared.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, tc.wantFrom.Equal(from), "from = %s", from)
			assert.True(t, tc.wantTo.Equal(to), "to = %s", to)
		})
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Fetch
// ═══════════════════════════════════════════════════════════════════════════

func TestFetchMergesClassesAndExams(t *testing.T) {
	f := newFixture(int64Ptr(55))
	from := timeutil.Date(2025, time.January, 8)
	to := timeutil.Date(2025, time.January, 29)
	f.classes.On("GetClassSchedule", mock.Anything, "tok", studentID, sameInstant(from), sameInstant(to)).Return(oneClass, nil)
	f.exams.On("Resolve", mock.Anything, "tok", int64(55), sameInstant(from), sameInstant(to)).
		Return([]exam.Event{{PublishedDataID: 9, Subject: "Fizyka"}}, nil)

	cal, err := f.handler(true).Fetch(context.Background(), GetCalendarQuery{})
	require.NoError(t, err)

	assert.Equal(t, studentID, cal.StudentID)
	assert.True(t, from.Equal(cal.From))
	assert.True(t, to.Equal(cal.To))
	assert.Len(t, cal.Classes, 1)
	require.Len(t, cal.Exams, 1)
	assert.Equal(t, "Fizyka", cal.Exams[0].Subject)
}

func TestFetchSkipsExams(t *testing.T) {
	testCases := []struct {
		name         string
		indexID      *int64
		examsEnabled bool
	}{
		{name: "no_index", indexID: nil, examsEnabled: true},
		{name: "exams_disabled", indexID: int64Ptr(55), examsEnabled: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(tc.indexID)
			f.classes.On("GetClassSchedule", mock.Anything, "tok", studentID, mock.Anything, mock.Anything).Return(oneClass, nil)

			cal, err := f.handler(tc.examsEnabled).Fetch(context.Background(), GetCalendarQuery{})
			require.NoError(t, err)

			assert.Empty(t, cal.Exams)
			f.exams.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestFetchSwallowsExamErrors(t *testing.T) {
	f := newFixture(int64Ptr(55))
	f.classes.On("GetClassSchedule", mock.Anything, "tok", studentID, mock.Anything, mock.Anything).Return(oneClass, nil)
	f.exams.On("Resolve", mock.Anything, "tok", int64(55), mock.Anything, mock.Anything).Return(nil, errors.New("year lookup failed"))

	cal, err := f.handler(true).Fetch(context.Background(), GetCalendarQuery{})
	require.NoError(t, err)

	assert.Len(t, cal.Classes, 1)
	assert.Empty(t, cal.Exams)
}

func TestFetchClassFailureIsFatal(t *testing.T) {
	f := newFixture(nil)
	boom := errors.New("plan down")
	f.classes.On("GetClassSchedule", mock.Anything, "tok", studentID, mock.Anything, mock.Anything).Return(nil, boom)

	_, err := f.handler(true).Fetch(context.Background(), GetCalendarQuery{})
	require.ErrorIs(t, err, boom)
	f.tokens.AssertNotCalled(t, "Invalidate")
}

func TestFetchUnauthorizedDropsCredential(t *testing.T) {
	f := newFixture(nil)
	rejected := shared.WrapError("wps", "GetClassSchedule", shared.ErrUnauthorized, "401", nil)
	f.classes.On("GetClassSchedule", mock.Anything, "tok", studentID, mock.Anything, mock.Anything).Return(nil, rejected)
	f.tokens.On("Invalidate").Return().Once()

	_, err := f.handler(true).Fetch(context.Background(), GetCalendarQuery{})
	require.Error(t, err)

	f.tokens.AssertCalled(t, "Invalidate")
}

func TestFetchTokenFailure(t *testing.T) {
	f := &fixture{tokens: &mockTokens{}, contexts: &mockContexts{}, classes: &mockClasses{}, exams: &mockExams{}, clock: &fakeClock{now: today}}
	boom := errors.New("login failed")
	f.tokens.On("Token", mock.Anything).Return("", boom)

	_, err := f.handler(true).Fetch(context.Background(), GetCalendarQuery{})
	require.ErrorIs(t, err, boom)
	f.contexts.AssertNotCalled(t, "Context", mock.Anything, mock.Anything)
}

func TestFetchRejectsInvertedRangeBeforeUpstream(t *testing.T) {
	f := newFixture(nil)

	_, err := f.handler(true).Fetch(context.Background(), GetCalendarQuery{
		From: dayPtr(2025, time.March, 2),
		To:   dayPtr(2025, time.March, 1),
	})
	require.ErrorIs(t, err, shared.ErrInvalidDateRange)
	f.tokens.AssertNotCalled(t, "Token", mock.Anything)
}

// ═══════════════════════════════════════════════════════════════════════════
// RenderICS
// ═══════════════════════════════════════════════════════════════════════════

func TestRenderICSCachesPerWindow(t *testing.T) {
	f := newFixture(nil)
	f.classes.On("GetClassSchedule", mock.Anything, "tok", studentID, mock.Anything, mock.Anything).Return(oneClass, nil)
	h := f.handler(true)

	first, err := h.RenderICS(context.Background(), GetCalendarQuery{})
	require.NoError(t, err)
	assert.Equal(t, "student=321 classes=1 exams=0", first)

	second, err := h.RenderICS(context.Background(), GetCalendarQuery{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	f.classes.AssertNumberOfCalls(t, "GetClassSchedule", 1)

	// A different window is a different entry.
	_, err = h.RenderICS(context.Background(), GetCalendarQuery{From: dayPtr(2025, time.January, 1)})
	require.NoError(t, err)
	f.classes.AssertNumberOfCalls(t, "GetClassSchedule", 2)

	f.clock.Advance(FeedCacheTTL)
	_, err = h.RenderICS(context.Background(), GetCalendarQuery{})
	require.NoError(t, err)
	f.classes.AssertNumberOfCalls(t, "GetClassSchedule", 3)
}

func TestRenderICSConcurrentMissesFetchOnce(t *testing.T) {
	f := newFixture(nil)
	f.classes.On("GetClassSchedule", mock.Anything, "tok", studentID, mock.Anything, mock.Anything).
		After(30*time.Millisecond).
		Return(oneClass, nil)
	h := f.handler(true)

	var wg sync.WaitGroup
	results := make([]string, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = h.RenderICS(context.Background(), GetCalendarQuery{})
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "student=321 classes=1 exams=0", results[i])
	}
	f.classes.AssertNumberOfCalls(t, "GetClassSchedule", 1)
}

func TestRenderICSCancelledCallerDoesNotFailOthers(t *testing.T) {
	f := newFixture(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	var upstreamErr error
	f.classes.On("GetClassSchedule", mock.Anything, "tok", studentID, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
			upstreamErr = args.Get(0).(context.Context).Err()
		}).
		Return(oneClass, nil).Once()
	h := f.handler(true)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.RenderICS(firstCtx, GetCalendarQuery{})
		firstErr <- err
	}()

	<-started
	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	type result struct {
		payload string
		err     error
	}
	second := make(chan result, 1)
	go func() {
		payload, err := h.RenderICS(context.Background(), GetCalendarQuery{})
		second <- result{payload, err}
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "student=321 classes=1 exams=0", res.payload)
	assert.NoError(t, upstreamErr, "shared fetch must not see the first caller's cancellation")
	f.classes.AssertNumberOfCalls(t, "GetClassSchedule", 1)
}

func TestRenderICSSharedFetchIsBounded(t *testing.T) {
	f := newFixture(nil)
	f.classes.On("GetClassSchedule", mock.Anything, "tok", studentID, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	cfg := DefaultGetCalendarConfig()
	cfg.FetchTimeout = 20 * time.Millisecond
	cfg.Clock = f.clock.Now
	cfg.Logger = logger.Discard()
	h := NewGetCalendarHandler(f.tokens, f.contexts, f.classes, f.exams, countingRenderer{}, nil, cfg)

	_, err := h.RenderICS(context.Background(), GetCalendarQuery{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRenderICSErrorIsNotCached(t *testing.T) {
	f := newFixture(nil)
	f.classes.On("GetClassSchedule", mock.Anything, "tok", studentID, mock.Anything, mock.Anything).
		Return(nil, errors.New("plan down")).Once()
	f.classes.On("GetClassSchedule", mock.Anything, "tok", studentID, mock.Anything, mock.Anything).
		Return(oneClass, nil).Once()
	h := f.handler(true)

	_, err := h.RenderICS(context.Background(), GetCalendarQuery{})
	require.Error(t, err)

	payload, err := h.RenderICS(context.Background(), GetCalendarQuery{})
	require.NoError(t, err)
	assert.Equal(t, "student=321 classes=1 exams=0", payload)
}

func TestRenderICSUsesSharedStore(t *testing.T) {
	f := newFixture(nil)
	f.store = newMemoryStore()
	f.classes.On("GetClassSchedule", mock.Anything, "tok", studentID, mock.Anything, mock.Anything).Return(oneClass, nil)

	_, err := f.handler(true).RenderICS(context.Background(), GetCalendarQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.sets)
	assert.Contains(t, f.store.items, "321:2025-01-08:2025-01-29")

	// A fresh replica finds the payload in the shared tier.
	f.store.items["321:2025-01-08:2025-01-29"] = "from-redis"
	payload, err := f.handler(true).RenderICS(context.Background(), GetCalendarQuery{})
	require.NoError(t, err)
	assert.Equal(t, "from-redis", payload)
	f.classes.AssertNumberOfCalls(t, "GetClassSchedule", 1)
}
