package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahe-ics/ahe-ics/internal/domain/credential"
	"github.com/ahe-ics/ahe-ics/internal/infrastructure/cache"
	"github.com/ahe-ics/ahe-ics/pkg/logger"
)

// Authenticator exchanges the service-account credentials for a bearer grant.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (credential.Grant, error)
}

// CredentialCacheConfig configures a CredentialCache.
type CredentialCacheConfig struct {
	Username string
	Password string

	// Clock defaults to time.Now.
	Clock cache.Clock

	Logger *slog.Logger
}

// CredentialCache hands out a valid bearer token, logging in when the cached
// one is missing or about to expire.
type CredentialCache struct {
	auth     Authenticator
	username string
	password string
	slot     *cache.Slot[credential.Credential]
	now      cache.Clock
	logger   *slog.Logger
}

// NewCredentialCache creates an empty CredentialCache.
func NewCredentialCache(auth Authenticator, cfg CredentialCacheConfig) *CredentialCache {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CredentialCache{
		auth:     auth,
		username: cfg.Username,
		password: cfg.Password,
		slot:     cache.NewSlotWithClock[credential.Credential](cfg.Clock),
		now:      cfg.Clock,
		logger:   cfg.Logger.With(logger.Component("credential_cache")),
	}
}

// Token returns a bearer token valid at the time of the call.
// Login failures are returned to the caller and nothing is cached.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	cred, err := c.slot.GetOrCompute(ctx, c.login)
	if err != nil {
		return "", err
	}
	return cred.Token, nil
}

// Invalidate forgets the cached token. The next Token call logs in again.
func (c *CredentialCache) Invalidate() {
	c.slot.Invalidate()
	c.logger.Info("cached credential dropped")
}

func (c *CredentialCache) login(ctx context.Context) (credential.Credential, time.Time, error) {
	grant, err := c.auth.Login(ctx, c.username, c.password)
	if err != nil {
		return credential.Credential{}, time.Time{}, fmt.Errorf("login: %w", err)
	}

	cred := credential.FromGrant(grant, c.now())
	c.logger.Debug("logged in",
		slog.Time("expires_at", cred.ExpiresAt),
		slog.Duration("expires_in", grant.ExpiresIn),
	)
	return cred, cred.ExpiresAt, nil
}
