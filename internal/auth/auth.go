// Package auth verifies HTTP Basic credentials against configured bcrypt
// hashes. Verification outcomes are cached because Prometheus re-sends the
// same credentials on every scrape and bcrypt is deliberately slow.
package auth

import (
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// sentinelPassword is hashed at startup and compared against for unknown
// usernames, so a request for a missing user costs the same bcrypt work as
// one for an existing user.
const sentinelPassword = "fakepassword"

// cacheSize bounds the outcome cache. At one entry per (user, password) pair
// this is far beyond any legitimate credential set; it exists to keep a
// credential-guessing client from growing the cache without bound.
const cacheSize = 1_000_000

type cacheKey struct {
	username string
	password string
}

// Authenticator verifies usernames and passwords. The zero credential set
// means authentication is disabled.
type Authenticator struct {
	users    map[string]string
	sentinel []byte
	cache    *lru.Cache[cacheKey, bool]
	logger   *zap.Logger
}

// New creates an Authenticator for the username → bcrypt hash map. The
// sentinel hash is generated at the highest cost found among the configured
// hashes so the unknown-user path is no cheaper than the slowest real
// verification.
func New(users map[string]string, logger *zap.Logger) (*Authenticator, error) {
	cache, err := lru.New[cacheKey, bool](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create auth cache: %w", err)
	}

	cost, ok := maxCost(users)
	if !ok {
		cost = bcrypt.DefaultCost
	}
	sentinel, err := bcrypt.GenerateFromPassword([]byte(sentinelPassword), cost)
	if err != nil {
		// Out-of-range costs (the parser accepts any integer) fall back
		// to the library default.
		sentinel, err = bcrypt.GenerateFromPassword([]byte(sentinelPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("generate sentinel hash: %w", err)
		}
	}

	return &Authenticator{
		users:    users,
		sentinel: sentinel,
		cache:    cache,
		logger:   logger,
	}, nil
}

// Enabled reports whether any credentials are configured.
func (a *Authenticator) Enabled() bool {
	return len(a.users) > 0
}

// Verify reports whether the username/password pair is valid. Unknown
// usernames are verified against the sentinel hash and always rejected;
// their outcomes are not cached.
func (a *Authenticator) Verify(username, password string) bool {
	hash, known := a.users[username]
	if !known {
		// Equalize timing with the known-user path.
		_ = bcrypt.CompareHashAndPassword(a.sentinel, []byte(password))
		a.logger.Debug("authentication failed for unknown user", zap.String("username", username))
		return false
	}

	key := cacheKey{username: username, password: password}
	if granted, ok := a.cache.Get(key); ok {
		return granted
	}

	granted := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
	a.cache.Add(key, granted)
	if !granted {
		a.logger.Debug("authentication failed", zap.String("username", username))
	}
	return granted
}

// maxCost returns the highest bcrypt cost among the configured hashes.
// Returns false when no hash carries a parseable cost.
func maxCost(users map[string]string) (int, bool) {
	cost, found := 0, false
	for _, hash := range users {
		if c, ok := hashCost(hash); ok && (!found || c > cost) {
			cost, found = c, true
		}
	}
	return cost, found
}

// hashCost extracts the cost field of a modular crypt format hash
// ("$2y$12$..." yields 12). Returns false when the field is missing or not
// an integer.
func hashCost(hash string) (int, bool) {
	parts := strings.Split(hash, "$")
	if len(parts) < 3 {
		return 0, false
	}
	cost, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, false
	}
	return cost, true
}
