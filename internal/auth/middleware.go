package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware rejects requests whose bearer token does not satisfy v.
func Middleware(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := Authorize(v, c.GetHeader("Authorization")); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": err.Error()})
			return
		}
		c.Next()
	}
}
