package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venturelink/pitchcall/internal/infra/appctx"
)

const testSecret = "test-secret"

func signToken(t *testing.T, subject string, expiresAt time.Time) string {
	t.Helper()

	claims := &jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	return signed
}

func doRequest(cookie *http.Cookie) (*httptest.ResponseRecorder, uuid.UUID, bool) {
	e := echo.New()

	var (
		gotUserID uuid.UUID
		gotOK     bool
	)

	handler := JWTAuthMiddleware(testSecret)(func(c echo.Context) error {
		gotUserID, gotOK = appctx.UserID(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	_ = handler(e.NewContext(req, rec))

	return rec, gotUserID, gotOK
}

func TestJWTAuthPutsUserIDIntoContext(t *testing.T) {
	userID := uuid.New()
	token := signToken(t, userID.String(), time.Now().Add(time.Hour))

	rec, gotUserID, ok := doRequest(&http.Cookie{Name: "jwt", Value: token})

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ok)
	assert.Equal(t, userID, gotUserID)
}

func TestJWTAuthRejectsMissingCookie(t *testing.T) {
	rec, _, ok := doRequest(nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, ok)
}

func TestJWTAuthRejectsExpiredToken(t *testing.T) {
	token := signToken(t, uuid.NewString(), time.Now().Add(-time.Hour))

	rec, _, ok := doRequest(&http.Cookie{Name: "jwt", Value: token})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, ok)
}

func TestJWTAuthRejectsBadSubject(t *testing.T) {
	token := signToken(t, "not-a-uuid", time.Now().Add(time.Hour))

	rec, _, ok := doRequest(&http.Cookie{Name: "jwt", Value: token})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, ok)
}

func TestBuildCookieDomain(t *testing.T) {
	cases := []struct {
		host string
		want string
	}{
		{"localhost", ""},
		{"localhost:5001", ""},
		{"127.0.0.1", ""},
		{"127.0.0.1:5001", ""},
		{"example.com", ".example.com"},
		{"api.example.com", ".example.com"},
		{"api.example.com:443", ".example.com"},
		{"", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, BuildCookieDomain(tc.host), "host %q", tc.host)
	}
}
