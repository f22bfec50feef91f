package httpserver

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	contextUserIdKey = "user_id"
	contextRolesKey  = "roles"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the caller; Subject is the wallet account id
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func ExtractBearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Authenticate requires a valid HS256 bearer token with a subject
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractBearer(c.GetHeader("Authorization"))
		if token == "" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing token", nil)
			return
		}

		claims, err := ParseJWT(token, secret)
		if err != nil || claims.Subject == "" {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
			return
		}

		c.Set(contextUserIdKey, claims.Subject)
		c.Set(contextRolesKey, claims.Roles)
		c.Next()
	}
}

// RequireRole must run after Authenticate
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles := c.GetStringSlice(contextRolesKey)
		if !slices.Contains(roles, role) {
			abortWithError(c, http.StatusForbidden, "FORBIDDEN", "operator role required", nil)
			return
		}
		c.Next()
	}
}

func userIdFromContext(c *gin.Context) string {
	return c.GetString(contextUserIdKey)
}
