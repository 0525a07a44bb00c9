// Package auth attaches bearer credentials to backend requests. A missing
// token is not an error; the backend decides access.
package auth

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the current bearer token. Implementations return an
// empty string when no token is available.
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed bearer token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token() string { return string(t) }

// EnvToken reads the token from an environment variable on every request,
// so external refreshes are picked up without restarting.
type EnvToken string

// Token implements TokenSource.
func (t EnvToken) Token() string { return os.Getenv(string(t)) }

// Attach sets the Authorization header when a usable token is present.
// Tokens that parse as JWTs and are already past their expiry are skipped;
// sending them would only produce a guaranteed 401.
func Attach(req *http.Request, src TokenSource, logger *slog.Logger) {
	if src == nil {
		return
	}
	tok := src.Token()
	if tok == "" {
		return
	}
	if Expired(tok) {
		if logger != nil {
			logger.Debug("skipping expired bearer token")
		}
		return
	}
	req.Header.Set("Authorization", "Bearer "+tok)
}

// Header returns headers carrying the bearer token, for transports that
// dial without an *http.Request. Nil when no usable token exists.
func Header(src TokenSource, logger *slog.Logger) http.Header {
	if src == nil {
		return nil
	}
	tok := src.Token()
	if tok == "" || Expired(tok) {
		if tok != "" && logger != nil {
			logger.Debug("skipping expired bearer token")
		}
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+tok)
	return h
}

// Expired reports whether tok is a JWT with an exp claim in the past.
// Opaque tokens and JWTs without an expiry are treated as usable.
func Expired(tok string) bool {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tok, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
