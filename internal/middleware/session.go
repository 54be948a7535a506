package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionCookieName holds the signed login session used by /oauth2/authorize.
	SessionCookieName = "oauth2_session"
	// SessionUserKey is the gin context key carrying the logged-in user id (string).
	SessionUserKey = "sessionUserID"

	DefaultSessionLifetime = 8 * time.Hour
)

// NewSessionToken signs a session for userID with HS256.
func NewSessionToken(secret []byte, userID string, lifetime time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
	})
	return token.SignedString(secret)
}

// ParseSessionToken returns the user id of a valid session token.
func ParseSessionToken(secret []byte, tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("session parsing failed: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("session is invalid")
	}
	return claims.Subject, nil
}

// SetSessionCookie writes the session cookie for userID.
func SetSessionCookie(c *gin.Context, secret []byte, userID string, lifetime time.Duration) error {
	token, err := NewSessionToken(secret, userID, lifetime)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, token, int(lifetime.Seconds()), "/", "", c.Request.TLS != nil, true)
	return nil
}

// SessionAuth resolves the session cookie when present. It never rejects a
// request; handlers decide what an anonymous caller may do.
func SessionAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(SessionCookieName)
		if err == nil && cookie != "" {
			if userID, err := ParseSessionToken(secret, cookie); err == nil {
				c.Set(SessionUserKey, userID)
			}
		}
		c.Next()
	}
}
