package handlers

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ahe-ics/ahe-ics/internal/domain/credential"
	"github.com/ahe-ics/ahe-ics/internal/domain/student"
	"github.com/ahe-ics/ahe-ics/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECK TYPES
// ══════════════════════════════════════════════════════════════════════════════

// HealthCheckFunc performs a single health check.
// It returns an error if the check fails.
type HealthCheckFunc func(ctx context.Context) error

// HealthStatus represents the overall health status of the service.
type HealthStatus struct {
	Healthy bool

	// Message is the public summary: the failed checks' messages, joined.
	Message string

	Checks    map[string]CheckResult
	Uptime    time.Duration
	Timestamp time.Time
}

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Healthy  bool
	Message  string
	Duration time.Duration
}

// CheckError is a failed check with a message safe to show to callers.
type CheckError struct {
	Message string
	Err     error
}

func (e *CheckError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPOSITE HEALTH CHECKER
// ══════════════════════════════════════════════════════════════════════════════

// HealthChecker runs named checks concurrently.
type HealthChecker struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheckFunc
	startTime time.Time
	timeout   time.Duration
	logger    *slog.Logger
}

// NewHealthChecker creates a checker with no checks.
func NewHealthChecker(log *slog.Logger) *HealthChecker {
	if log == nil {
		log = slog.Default()
	}
	return &HealthChecker{
		checks:    make(map[string]HealthCheckFunc),
		startTime: time.Now(),
		timeout:   10 * time.Second,
		logger:    log.With(logger.Component("health")),
	}
}

// SetTimeout sets the timeout for individual health checks.
func (c *HealthChecker) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// AddCheck adds a named health check function.
func (c *HealthChecker) AddCheck(name string, check HealthCheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Check performs all health checks and returns the aggregated status.
func (c *HealthChecker) Check(ctx context.Context) HealthStatus {
	c.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	status := HealthStatus{
		Healthy:   true,
		Checks:    make(map[string]CheckResult, len(checks)),
		Uptime:    time.Since(c.startTime),
		Timestamp: time.Now().UTC(),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := time.Now()
			err := check(checkCtx)
			result := CheckResult{Healthy: err == nil, Duration: time.Since(start), Message: "ok"}
			if err != nil {
				result.Message = publicMessage(err)
				c.logger.Warn("health check failed", slog.String("check", name), logger.Err(err))
			}

			mu.Lock()
			status.Checks[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	var failed []string
	for _, name := range slices.Sorted(maps.Keys(status.Checks)) {
		if r := status.Checks[name]; !r.Healthy {
			status.Healthy = false
			failed = append(failed, r.Message)
		}
	}
	status.Message = strings.Join(failed, "; ")
	return status
}

// ServeHTTP answers 204 when every check passes and 503 with the failure
// messages otherwise.
func (c *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := c.Check(r.Context())
	if !status.Healthy {
		writeText(w, http.StatusServiceUnavailable, status.Message)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func publicMessage(err error) string {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return "check failed"
}

// ══════════════════════════════════════════════════════════════════════════════
// PREDEFINED HEALTH CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// Upstream is the part of the academic API the upstream check exercises.
type Upstream interface {
	Login(ctx context.Context, username, password string) (credential.Grant, error)
	GetProfile(ctx context.Context, token string) (student.Profile, error)
}

// Health check messages.
const (
	MsgUpstreamLogin = "upstream login failed"
	MsgUpstreamAPI   = "upstream api unavailable"
	MsgFeedStore     = "feed store unavailable"
)

// NewUpstreamCheck logs in with a fresh session and reads the profile.
// It does not touch the cached credential.
func NewUpstreamCheck(api Upstream, username, password string) HealthCheckFunc {
	return func(ctx context.Context) error {
		grant, err := api.Login(ctx, username, password)
		if err != nil {
			return &CheckError{Message: MsgUpstreamLogin, Err: err}
		}
		if _, err := api.GetProfile(ctx, grant.AccessToken); err != nil {
			return &CheckError{Message: MsgUpstreamAPI, Err: err}
		}
		return nil
	}
}

// Pinger is a dependency that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPingCheck wraps a Pinger failure in the given public message.
func NewPingCheck(p Pinger, message string) HealthCheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return &CheckError{Message: message, Err: err}
		}
		return nil
	}
}
