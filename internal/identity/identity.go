// Package identity provides anonymous per-browser player identity.
//
// The player key is the session key a lobby slot is bound to. It lives in an
// HTTP-only cookie and is never shown to other players.
package identity

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	PlayerCookieName   = "evo_player"
	playerCookieMaxAge = 30 * 24 * time.Hour
	playerKeyPrefix    = "p_"
)

type contextKey int

const playerKeyKey contextKey = iota

// PlayerKeyFromContext extracts the player key from the request context.
func PlayerKeyFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(playerKeyKey).(string); ok {
		return v
	}
	return ""
}

// WithPlayerKey returns a context carrying key.
func WithPlayerKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, playerKeyKey, key)
}

func newPlayerKey() string {
	return playerKeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func isValidPlayerKey(key string) bool {
	raw, ok := strings.CutPrefix(key, playerKeyPrefix)
	if !ok || len(raw) != 32 {
		return false
	}
	_, err := uuid.Parse(raw)
	return err == nil
}

func setPlayerCookie(w http.ResponseWriter, key string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     PlayerCookieName,
		Value:    key,
		Path:     "/",
		MaxAge:   int(playerCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(playerCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreatePlayerKey(w http.ResponseWriter, r *http.Request, isDev bool) string {
	if c, err := r.Cookie(PlayerCookieName); err == nil && isValidPlayerKey(c.Value) {
		setPlayerCookie(w, c.Value, isDev)
		return c.Value
	}
	key := newPlayerKey()
	setPlayerCookie(w, key, isDev)
	return key
}

// Middleware injects the caller's player key, minting one on first contact.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := getOrCreatePlayerKey(w, r, isDev)
			next.ServeHTTP(w, r.WithContext(WithPlayerKey(r.Context(), key)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for rate limiting and logs.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
