package middleware

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,64}$`)

// RequireValidID ensures the path param is a plausible action, feedback or choice id.
func RequireValidID(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !validID.MatchString(c.Param(param)) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "invalid " + param})
			return
		}
		c.Next()
	}
}
