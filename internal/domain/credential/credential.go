// Package credential models the upstream bearer credential and its lifetime.
package credential

import (
	"time"
)

// RefreshGrace is subtracted from the upstream lifetime so the token is
// refreshed before the upstream invalidates it.
const RefreshGrace = 30 * time.Second

// Grant is the result of a successful login.
type Grant struct {
	AccessToken string
	TokenType   string
	ExpiresIn   time.Duration
}

// Credential is a bearer token with the instant we stop trusting it.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// FromGrant builds a Credential expiring at now + max(0, ExpiresIn - RefreshGrace).
func FromGrant(g Grant, now time.Time) Credential {
	lifetime := g.ExpiresIn - RefreshGrace
	if lifetime < 0 {
		lifetime = 0
	}
	return Credential{Token: g.AccessToken, ExpiresAt: now.Add(lifetime)}
}
