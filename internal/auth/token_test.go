package auth

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "student-42",
		"exp": exp.Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestAttach_SetsBearerHeader(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	Attach(req, StaticToken("opaque-session-token"), nil)
	assert.Equal(t, "Bearer opaque-session-token", req.Header.Get("Authorization"))
}

func TestAttach_NoTokenIsNotAnError(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	Attach(req, nil, nil)
	assert.Empty(t, req.Header.Get("Authorization"))

	Attach(req, StaticToken(""), nil)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestAttach_SkipsExpiredJWT(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	Attach(req, StaticToken(signedToken(t, time.Now().Add(-time.Hour))), nil)
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestAttach_KeepsValidJWT(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	Attach(req, StaticToken(signedToken(t, time.Now().Add(time.Hour))), nil)
	assert.Contains(t, req.Header.Get("Authorization"), "Bearer ")
}

func TestExpired(t *testing.T) {
	assert.True(t, Expired(signedToken(t, time.Now().Add(-time.Minute))))
	assert.False(t, Expired(signedToken(t, time.Now().Add(time.Minute))))
	assert.False(t, Expired("not-a-jwt"))
}
