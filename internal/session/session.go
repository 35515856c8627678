// Package session carries the caller's identity through a request.
package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const contextKey = "session"

var ErrUnauthenticated = errors.New("authentication required")

// Context is the identity of the caller. The zero value is an anonymous viewer.
type Context struct {
	UserID string
	Token  string
}

// Authenticated reports whether a user id is known.
func (s Context) Authenticated() bool {
	return s.UserID != ""
}

// Parse validates an HS256 token and returns the session it names.
func Parse(token string, secret []byte) (Context, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Context{}, err
	}
	if !parsed.Valid || claims.Subject == "" {
		return Context{}, ErrUnauthenticated
	}
	return Context{UserID: claims.Subject, Token: token}, nil
}

// Middleware attaches a Context to every request. Requests without a valid bearer
// token continue anonymously; use Require to reject them.
func Middleware(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		s := Context{}
		if token, ok := bearer(c.GetHeader("Authorization")); ok && len(key) > 0 {
			if parsed, err := Parse(token, key); err == nil {
				s = parsed
			}
		}
		c.Set(contextKey, s)
		c.Next()
	}
}

// Require aborts with 401 unless the request carries an authenticated session.
func Require() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !From(c).Authenticated() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthenticated.Error()})
			return
		}
		c.Next()
	}
}

// From returns the session attached by Middleware.
func From(c *gin.Context) Context {
	if v, ok := c.Get(contextKey); ok {
		if s, ok := v.(Context); ok {
			return s
		}
	}
	return Context{}
}

func bearer(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
