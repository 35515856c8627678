package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validToken(t *testing.T, sub string) string {
	return sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
}

func TestParse(t *testing.T) {
	token := validToken(t, "42")

	s, err := Parse(token, []byte(secret))
	require.NoError(t, err)
	assert.Equal(t, "42", s.UserID)
	assert.Equal(t, token, s.Token)
	assert.True(t, s.Authenticated())
}

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"wrong secret": sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.RegisteredClaims{Subject: "42"}),
		"expired": sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}),
		"no subject": sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.RegisteredClaims{}),
		"other alg":  sign(t, jwt.SigningMethodHS512, []byte(secret), jwt.RegisteredClaims{Subject: "42"}),
		"garbage":    "not-a-token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(token, []byte(secret))
			assert.Error(t, err)
		})
	}
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(secret))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, From(c).UserID)
	})
	r.POST("/private", Require(), func(c *gin.Context) {
		c.String(http.StatusOK, From(c).UserID)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	r := newRouter()

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid", "Bearer " + validToken(t, "42"), "42"},
		{"lowercase scheme", "bearer " + validToken(t, "7"), "7"},
		{"anonymous", "", ""},
		{"invalid token", "Bearer nope", ""},
		{"basic auth", "Basic dXNlcjpwYXNz", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}

func TestRequire(t *testing.T) {
	r := newRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/private", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"authentication required"}`, w.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+validToken(t, "42"))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())
}

func TestMiddleware_NoSecretIsAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(""))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, From(c).UserID)
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+validToken(t, "42"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Body.String())
}
