package wps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ahe-ics/ahe-ics/internal/domain/credential"
	"github.com/ahe-ics/ahe-ics/internal/domain/exam"
	"github.com/ahe-ics/ahe-ics/internal/domain/schedule"
	"github.com/ahe-ics/ahe-ics/internal/domain/shared"
	"github.com/ahe-ics/ahe-ics/internal/domain/student"
	"github.com/ahe-ics/ahe-ics/pkg/logger"
	"github.com/ahe-ics/ahe-ics/pkg/timeutil"
)

// API paths.
const (
	PathLogin               = "/api/Profil/zaloguj"
	PathStudent             = "/api/Student/GetDaneStudenta"
	PathStudentIndexes      = "/api/Indeks/GETPobierzListeIndeksowDlaStudenta"
	PathPlan                = "/api/PlanyZajec/GETPlanSzczegolowy"
	PathExamProtocol        = "/api/ProtokolyEgzaminacyjne/GetProtokolEgzaminacyjnySzczegolowy"
	PathExamIntermediate    = "/api/ProtokolyEgzaminacyjne/GetProtokolEgzaminacyjnyPosredni"
	PathExamFilter          = "/api/Egzaminy/GETEgazminFiltr"
	PathCurrentAcademicYear = "/api/Slowniki/GETPobierzAktualnyRokAkademicki"
)

const (
	loginRoleID    = "2"
	loginGrantType = "password"

	// maxBodySize caps how much of a response we read.
	maxBodySize = 16 << 20
	// maxErrorBody caps the body kept in an APIError.
	maxErrorBody = 512
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the WPS API client.
type ClientConfig struct {
	// BaseURL is the WPS API base URL
	BaseURL string

	// UserAgent is sent with every request
	UserAgent string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// RateLimiterConfig for outbound rate limiting
	RateLimiterConfig RateLimiterConfig

	// HTTPClient overrides the default client (tests)
	HTTPClient *http.Client

	// Logger for structured logging
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:           baseURL,
		UserAgent:         "ahe-ics/dev",
		Timeout:           30 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the WPS API client. It holds no credential state: every call takes
// the bearer token explicitly, and caching lives in the application layer.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	rateLimiter *RateLimiter
	mapper      *Mapper
}

// NewClient creates a new WPS API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		config:      config,
		httpClient:  httpClient,
		logger:      config.Logger.With(logger.Component("wps")),
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		mapper:      NewMapper(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATION
// ══════════════════════════════════════════════════════════════════════════════

// Login exchanges the service account credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (credential.Grant, error) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set("roleID", loginRoleID)
	form.Set("grant_type", loginGrantType)

	req, err := c.newRequest(ctx, http.MethodPost, PathLogin, nil, strings.NewReader(form.Encode()))
	if err != nil {
		return credential.Grant{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var dto TokenDTO
	if err := c.do(req, PathLogin, &dto); err != nil {
		return credential.Grant{}, fmt.Errorf("login: %w", err)
	}
	if dto.AccessToken == "" {
		return credential.Grant{}, shared.NewDomainError("wps", "Login", shared.ErrExternalService, "login response has no access_token")
	}

	return c.mapper.GrantFromDTO(dto), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetProfile fetches the authenticated student's profile.
func (c *Client) GetProfile(ctx context.Context, token string) (student.Profile, error) {
	var dto StudentDTO
	if err := c.get(ctx, token, PathStudent, nil, &dto); err != nil {
		return student.Profile{}, fmt.Errorf("get student profile: %w", err)
	}
	return c.mapper.ProfileFromDTO(dto), nil
}

// GetIndexes fetches all indexes of the authenticated student.
func (c *Client) GetIndexes(ctx context.Context, token string) ([]student.Index, error) {
	var dtos []IndexDTO
	if err := c.get(ctx, token, PathStudentIndexes, nil, &dtos); err != nil {
		return nil, fmt.Errorf("get student indexes: %w", err)
	}
	return c.mapper.IndexesFromDTO(dtos), nil
}

// GetCurrentAcademicYear fetches the academic year in progress.
func (c *Client) GetCurrentAcademicYear(ctx context.Context, token string) (int, error) {
	var dto AcademicYearDTO
	if err := c.get(ctx, token, PathCurrentAcademicYear, nil, &dto); err != nil {
		return 0, fmt.Errorf("get current academic year: %w", err)
	}
	return dto.AcademicYear, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EXAM OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetExamProtocol fetches the exam protocol of an index for one term.
func (c *Client) GetExamProtocol(ctx context.Context, token string, indexID int64, term exam.TermQuery) ([]exam.ProtocolEntry, error) {
	params := url.Values{}
	params.Set("IndeksID", strconv.FormatInt(indexID, 10))
	params.Set("RokAkad", strconv.Itoa(term.AcademicYear))
	params.Set("SemestrID", strconv.Itoa(term.Term))

	var dtos []ProtocolItemDTO
	if err := c.get(ctx, token, PathExamProtocol, params, &dtos); err != nil {
		return nil, fmt.Errorf("get exam protocol %s: %w", term, err)
	}
	return c.mapper.ProtocolFromDTO(dtos), nil
}

// GetIntermediateProtocol fetches the intermediate protocol of an exam card position.
func (c *Client) GetIntermediateProtocol(ctx context.Context, token string, card exam.CardKey) ([]exam.IntermediateEntry, error) {
	params := url.Values{}
	params.Set("KartaEgzID", strconv.FormatInt(card.CardID, 10))
	params.Set("KartaEgzPozID", strconv.FormatInt(card.CardPositionID, 10))

	var dtos []IntermediateItemDTO
	if err := c.get(ctx, token, PathExamIntermediate, params, &dtos); err != nil {
		return nil, fmt.Errorf("get intermediate protocol %d/%d: %w", card.CardID, card.CardPositionID, err)
	}
	return c.mapper.IntermediateFromDTO(dtos), nil
}

// GetExamSchedule fetches all published exams of a term.
func (c *Client) GetExamSchedule(ctx context.Context, token string, term exam.TermQuery) ([]exam.ScheduleEntry, error) {
	// The endpoint expects every filter key, empty ones included.
	params := url.Values{}
	for _, key := range []string{"KierunekID", "PracownikID", "SekcjaID", "SystemID", "TrybID"} {
		params.Set(key, "")
	}
	params.Set("RokAkad", strconv.Itoa(term.AcademicYear))
	params.Set("SemestrID", strconv.Itoa(term.Term))

	var dtos []ExamScheduleItemDTO
	if err := c.get(ctx, token, PathExamFilter, params, &dtos); err != nil {
		return nil, fmt.Errorf("get exam schedule %s: %w", term, err)
	}
	return c.mapper.ExamScheduleFromDTO(dtos), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PLAN OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetClassSchedule fetches the detailed class plan of a student for [from, to].
func (c *Client) GetClassSchedule(ctx context.Context, token string, studentID int64, from, to time.Time) ([]schedule.ClassEntry, error) {
	params := url.Values{}
	params.Set("CzyNieaktywnePlany", "0")
	params.Set("DataOd", timeutil.FormatDate(from))
	params.Set("DataDo", timeutil.FormatDate(to))
	params.Set("StudentID", strconv.FormatInt(studentID, 10))
	params.Set("loader", "none")

	var dtos []PlanItemDTO
	if err := c.get(ctx, token, PathPlan, params, &dtos); err != nil {
		return nil, fmt.Errorf("get class schedule: %w", err)
	}

	classes := make([]schedule.ClassEntry, 0, len(dtos))
	for _, d := range dtos {
		entry, ok := c.mapper.ClassFromDTO(d)
		if !ok {
			c.logger.Debug("skipping plan item with invalid time", slog.Int64("schedule_item_id", d.ID))
			continue
		}
		classes = append(classes, entry)
	}
	return classes, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// get performs an authenticated GET and decodes the JSON body into result.
func (c *Client) get(ctx context.Context, token, path string, params url.Values, result any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.do(req, path, result)
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	fullURL := c.config.BaseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	return req, nil
}

// do sends the request through the rate limiter and decodes a 2xx JSON body.
func (c *Client) do(req *http.Request, path string, result any) error {
	ctx := req.Context()
	if err := c.rateLimiter.Allow(ctx); err != nil {
		var rlErr *RateLimitError
		if errors.As(err, &rlErr) {
			status := c.rateLimiter.Status()
			c.logger.Warn("outbound rate limit exhausted",
				slog.String("path", path),
				slog.Float64("limit", status.Limit),
				slog.Int("burst", status.Burst),
				slog.Float64("tokens", status.AvailableTokens),
				logger.Latency(rlErr.Waited),
			)
		}
		return fmt.Errorf("rate limiter: %w", err)
	}

	start := time.Now()
	c.logger.Debug("wps api request", slog.String("method", req.Method), slog.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return shared.WrapError("wps", path, shared.ErrTimeout, "http request timed out", err)
		}
		return shared.WrapError("wps", path, shared.ErrServiceUnavailable, "http request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return shared.WrapError("wps", path, shared.ErrExternalService, "read response failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("wps api request failed",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			logger.Latency(time.Since(start)),
		)
		return &APIError{StatusCode: resp.StatusCode, Path: path, Body: truncate(string(respBody), maxErrorBody)}
	}

	c.logger.Debug("wps api request ok",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return shared.WrapError("wps", path, shared.ErrExternalService, "invalid json", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
