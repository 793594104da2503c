package middlewares

import (
	"net/http"
	"strings"

	"github.com/KilluaDB/topology/internal/responses"
	"github.com/KilluaDB/topology/internal/utils"

	"github.com/gin-gonic/gin"
)

// Authenticate returns a middleware that requires a bearer token signed with
// secret. The token subject is stored under "subject".
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			responses.Abort(c, http.StatusUnauthorized, "Missing Authorization header")
			return
		}

		// Expected format: "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			responses.Abort(c, http.StatusUnauthorized, "Invalid Authorization format")
			return
		}

		claims, err := utils.VerifyJWT(parts[1], secret)
		if err != nil {
			responses.Abort(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		c.Set("subject", claims.Subject)
		c.Next()
	}
}
