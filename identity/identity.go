// Package identity mints and verifies the Finder's per-registration
// cookie: a signed, stateless token binding a target registration to the
// class and Finder generation it was issued under. The cookie lets
// the Finder detect a stale or forged
// registration presented by a since-reconnected client without retaining
// registration history across restarts.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCookie is returned by Verify for any cookie that does not
// parse, does not verify against the signing key, or has expired.
var ErrInvalidCookie = errors.New("identity: invalid or expired cookie")

// Claims binds a registration to the target/class it was issued for and
// the generation of the Minter that issued it. A cookie whose generation
// differs from the verifying Minter's never verifies, even under the same
// signing key. cmd/finder always constructs its Finder with generation 1,
// so across its restarts it is the fresh signing key that rejects old
// cookies.
type Claims struct {
	jwt.RegisteredClaims
	Target     string `json:"target"`
	Class      string `json:"class"`
	Generation uint64 `json:"gen"`
}

// Minter mints and verifies cookies under one HMAC signing key. A Finder
// process holds exactly one Minter for its lifetime; the key is generated
// fresh at startup, so a cookie from a prior Finder process never
// verifies.
type Minter struct {
	key        []byte
	generation uint64
	ttl        time.Duration
}

// DefaultTTL bounds how long a minted cookie remains valid; registrations
// normally renew well before this (the cookie is reissued on every
// register_client call), so this mainly bounds exposure if a client never
// reconnects.
const DefaultTTL = 24 * time.Hour

// NewMinter returns a Minter signing with key, scoped to generation (the
// value the owning Finder was constructed with).
func NewMinter(key []byte, generation uint64) *Minter {
	return &Minter{key: key, generation: generation, ttl: DefaultTTL}
}

// SetTTLForTesting overrides the cookie TTL. Exported only for tests that
// need to exercise expiry without waiting DefaultTTL.
func (m *Minter) SetTTLForTesting(ttl time.Duration) { m.ttl = ttl }

// Mint issues a cookie for a registration of target under class.
func (m *Minter) Mint(target, class string) (string, error) {
	var now = time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Target:     target,
		Class:      class,
		Generation: m.generation,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.key)
}

// Verify checks cookie and returns the claims it carries if it was minted
// by this Minter's key, for its current generation, and has not expired.
// A cookie minted by a prior Finder generation (e.g. presented by a client
// that never noticed the Finder restarted) is rejected with
// ErrInvalidCookie, not with a distinct error, so callers cannot
// distinguish "forged" from "stale" — both require the same corrective
// action, a fresh register_client.
func (m *Minter) Verify(cookie string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(cookie, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("identity: unexpected signing method %v", t.Header["alg"])
		}
		return m.key, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidCookie
	}
	if claims.Generation != m.generation {
		return Claims{}, ErrInvalidCookie
	}
	return claims, nil
}

// VerifyForTarget is Verify plus a check that the cookie was minted for
// target. register_client uses it to accept an in_cookie for an existing
// target; a cookie for the wrong target leaves that call failing with
// ALREADY_REGISTERED.
func (m *Minter) VerifyForTarget(cookie, target string) (Claims, error) {
	claims, err := m.Verify(cookie)
	if err != nil {
		return Claims{}, err
	}
	if claims.Target != target {
		return Claims{}, ErrInvalidCookie
	}
	return claims, nil
}
