package middleware

import (
	"context"
	"net/http"
	"strings"

	"dmchat/internal/transport/httpdto"
	"dmchat/pkg/logger"

	"github.com/gin-gonic/gin"
)

// UsernameKey is the gin context key holding the authenticated username.
const UsernameKey = "username"

// TokenParser validates an access token and returns its subject.
type TokenParser interface {
	ParseAccessToken(token string) (string, error)
}

func AuthMiddleware(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, err := parser.ParseAccessToken(ExtractBearer(c))
		if err != nil {
			c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("Could not validate credentials"))
			c.Abort()
			return
		}

		c.Set(UsernameKey, username)
		ctx := context.WithValue(c.Request.Context(), logger.UsernameKey, username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Username returns the subject set by AuthMiddleware.
func Username(c *gin.Context) string {
	return c.GetString(UsernameKey)
}

func ExtractBearer(c *gin.Context) string {
	value := c.GetHeader("Authorization")
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
