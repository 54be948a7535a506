package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by OAuth2Auth.
const (
	UserIDKey   = "userID"
	ClientIDKey = "clientID"
	RoleKey     = "userRole"
	ScopesKey   = "scopes"
)

var allowedRoles = map[string]bool{
	"admin": true,
	"user":  true,
}

// OAuth2Auth validates access tokens minted by this server's token endpoint
// (RFC 6750 bearer usage) and exposes their claims on the gin context.
func OAuth2Auth(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			respondWithBearerError(c, "invalid_request",
				"Missing Authorization header. A valid Bearer token is required.")
			return
		}

		tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok {
			respondWithBearerError(c, "invalid_request",
				"Authorization header must use Bearer scheme. Format: 'Bearer <token>'")
			return
		}
		if tokenString == "" {
			respondWithBearerError(c, "invalid_token", "Bearer token is empty")
			return
		}

		claims, err := parseAccessToken(tokenString, jwtSecret)
		if err != nil {
			respondWithBearerError(c, "invalid_token", err.Error())
			return
		}

		if err := extractAndSetClaims(c, claims); err != nil {
			respondWithBearerError(c, "invalid_token", err.Error())
			return
		}

		c.Next()
	}
}

// RequireScope rejects tokens whose scope claim lacks scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		granted := strings.Fields(c.GetString(ScopesKey))
		for _, s := range granted {
			if s == scope {
				c.Next()
				return
			}
		}
		c.Header("WWW-Authenticate", fmt.Sprintf(`Bearer error="insufficient_scope", scope=%q`, scope))
		respondWithOAuth2Error(c, http.StatusForbidden, "insufficient_scope",
			fmt.Sprintf("Token lacks the required scope %q", scope))
	}
}

// respondWithOAuth2Error responds with RFC 6750 compliant error format
func respondWithOAuth2Error(c *gin.Context, status int, errorCode, description string) {
	c.JSON(status, gin.H{
		"error":             errorCode,
		"error_description": description,
	})
	c.Abort()
}

func respondWithBearerError(c *gin.Context, errorCode, description string) {
	c.Header("WWW-Authenticate", fmt.Sprintf(`Bearer error=%q`, errorCode))
	respondWithOAuth2Error(c, http.StatusUnauthorized, errorCode, description)
}

// parseAccessToken verifies signature and time claims. Only HMAC algorithms
// are accepted, which blocks algorithm confusion with "none" or RSA headers.
func parseAccessToken(tokenString string, jwtSecret []byte) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v. Expected HMAC", token.Header["alg"])
		}
		return jwtSecret, nil
	}, jwt.WithIssuedAt(), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("token parsing failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims format")
	}
	return claims, nil
}

// extractAndSetClaims copies uid, aud, role and scope into the gin context.
func extractAndSetClaims(c *gin.Context, claims jwt.MapClaims) error {
	userID, err := extractUserID(claims)
	if err != nil {
		return err
	}
	c.Set(UserIDKey, userID)

	if aud, err := claims.GetAudience(); err == nil && len(aud) > 0 && aud[0] != "" {
		c.Set(ClientIDKey, aud[0])
	}

	role, err := extractRole(claims)
	if err != nil {
		return err
	}
	c.Set(RoleKey, role)

	if scope, ok := claims["scope"].(string); ok && scope != "" {
		c.Set(ScopesKey, scope)
	}
	return nil
}

// extractUserID reads the numeric "uid" claim. Admin routes key ownership on it.
func extractUserID(claims jwt.MapClaims) (uint, error) {
	switch uid := claims["uid"].(type) {
	case string:
		if uid == "" {
			break
		}
		parsed, err := strconv.ParseUint(uid, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid uid claim format: must be a numeric string, got: %s", uid)
		}
		if parsed == 0 {
			return 0, fmt.Errorf("invalid user identifier: cannot be zero")
		}
		return uint(parsed), nil
	case float64:
		if uid <= 0 {
			return 0, fmt.Errorf("invalid uid claim: must be positive, got: %f", uid)
		}
		return uint(uid), nil
	}
	return 0, fmt.Errorf("token missing required 'uid' claim. This token is not valid for this API")
}

// extractRole requires an explicit, known role claim.
func extractRole(claims jwt.MapClaims) (string, error) {
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return "", fmt.Errorf("token missing required 'role' claim")
	}
	if !allowedRoles[role] {
		return "", fmt.Errorf("invalid role '%s'. Allowed roles: admin, user", role)
	}
	return role, nil
}
