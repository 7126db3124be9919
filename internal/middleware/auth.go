package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hiremebahamas/hirebahamas-api/internal/auth"
)

// AuthMiddleware creates a gin.HandlerFunc that acts as our "security guard".
// It sets "userID" and "userType" for the handlers behind it.
func AuthMiddleware(tokens *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. --- Get Authorization Header ---
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format (must be Bearer)"})
			return
		}

		// 2. --- Validate Token ---
		userID, userType, err := tokens.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		// 3. --- Success ---
		c.Set("userID", userID)
		c.Set("userType", userType)
		c.Next()
	}
}

// RequireUserType lets only the listed user types through. It must run
// after AuthMiddleware.
func RequireUserType(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userType := c.GetString("userType")
		for _, t := range allowed {
			if userType == t {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied for this account type"})
	}
}
