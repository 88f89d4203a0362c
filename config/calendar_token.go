package config

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// TokenKind identifies how a calendar token is stored.
type TokenKind int

const (
	TokenPlain TokenKind = iota
	TokenArgon2id
	TokenBcrypt
)

func (k TokenKind) String() string {
	switch k {
	case TokenArgon2id:
		return "argon2id"
	case TokenBcrypt:
		return "bcrypt"
	default:
		return "plain"
	}
}

// CalendarToken guards the calendar routes.
type CalendarToken struct {
	kind  TokenKind
	plain string
	hash  string
	phc   *argon2Params
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

// ParseCalendarToken parses the AHE_CAL_TOKEN value.
//
// Accepted forms: "plain:<token>", "argon2:<phc>", "bcrypt:<hash>", a bare
// "$argon2id$" PHC string, a bare "$2a$/$2b$/$2y$" bcrypt hash, or anything
// else as a plain token.
func ParseCalendarToken(value string) (*CalendarToken, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, errors.New("token cannot be empty")
	}

	switch {
	case strings.HasPrefix(trimmed, "plain:"):
		token := strings.TrimSpace(strings.TrimPrefix(trimmed, "plain:"))
		if token == "" {
			return nil, errors.New("plain token cannot be empty")
		}
		return &CalendarToken{kind: TokenPlain, plain: token}, nil
	case strings.HasPrefix(trimmed, "argon2:"):
		return parseArgon2Token(strings.TrimSpace(strings.TrimPrefix(trimmed, "argon2:")))
	case strings.HasPrefix(trimmed, "bcrypt:"):
		return parseBcryptToken(strings.TrimSpace(strings.TrimPrefix(trimmed, "bcrypt:")))
	case strings.HasPrefix(trimmed, "$argon2id$"):
		return parseArgon2Token(trimmed)
	case isBcryptHash(trimmed):
		return parseBcryptToken(trimmed)
	default:
		return &CalendarToken{kind: TokenPlain, plain: trimmed}, nil
	}
}

// Kind returns the storage kind of the token.
func (t *CalendarToken) Kind() TokenKind {
	return t.kind
}

// Verify reports whether provided matches the configured token.
func (t *CalendarToken) Verify(provided string) bool {
	switch t.kind {
	case TokenArgon2id:
		p := t.phc
		derived := argon2.IDKey([]byte(provided), p.salt, p.time, p.memory, p.threads, uint32(len(p.key)))
		return subtle.ConstantTimeCompare(derived, p.key) == 1
	case TokenBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(t.hash), []byte(provided)) == nil
	default:
		return subtle.ConstantTimeCompare([]byte(provided), []byte(t.plain)) == 1
	}
}

func parseArgon2Token(hash string) (*CalendarToken, error) {
	if hash == "" {
		return nil, errors.New("argon2id hash cannot be empty")
	}
	params, err := parsePHC(hash)
	if err != nil {
		return nil, err
	}
	return &CalendarToken{kind: TokenArgon2id, hash: hash, phc: params}, nil
}

// parsePHC decodes $argon2id$v=19$m=<mem>,t=<time>,p=<threads>$<salt>$<key>.
func parsePHC(hash string) (*argon2Params, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("argon2id hash is not a valid PHC string")
	}
	if parts[1] != "argon2id" {
		return nil, fmt.Errorf("unsupported algorithm %q: expected prefix '$argon2id$'", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version %q", parts[2])
	}

	p := &argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, fmt.Errorf("invalid argon2 parameters %q: %w", parts[3], err)
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return nil, fmt.Errorf("invalid argon2 parameters %q", parts[3])
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("invalid argon2 salt: %w", err)
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("invalid argon2 hash: %w", err)
	}
	if len(p.key) == 0 {
		return nil, errors.New("argon2 hash is empty")
	}
	return p, nil
}

func parseBcryptToken(hash string) (*CalendarToken, error) {
	if hash == "" {
		return nil, errors.New("bcrypt hash cannot be empty")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("invalid bcrypt hash: %w", err)
	}
	return &CalendarToken{kind: TokenBcrypt, hash: hash}, nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
