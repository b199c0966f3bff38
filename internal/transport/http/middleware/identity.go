package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"invoicechat/internal/pkg/jwtutil"
	"invoicechat/internal/transport/http/response"
)

const (
	ContextUserIDKey   = "user_id"
	ContextVerifiedKey = "identity_verified"
)

// BearerIdentity requires a token from the identity provider and stores its
// subject as the caller's user id.
func BearerIdentity(secret, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Abort(c, 401, response.CodeUnauthorized, "missing authorization header")
			return
		}

		const prefix = "Bearer "
		if len(authHeader) <= len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
			response.Abort(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
			return
		}

		claims, err := jwtutil.ParseToken(secret, issuer, strings.TrimSpace(authHeader[len(prefix):]))
		if err != nil {
			response.Abort(c, 401, response.CodeUnauthorized, "invalid or expired token")
			return
		}

		c.Set(ContextUserIDKey, claims.Subject)
		c.Set(ContextVerifiedKey, true)
		c.Next()
	}
}

// UserID returns the verified subject, if any.
func UserID(c *gin.Context) (string, bool) {
	if !c.GetBool(ContextVerifiedKey) {
		return "", false
	}
	id := c.GetString(ContextUserIDKey)
	return id, id != ""
}
