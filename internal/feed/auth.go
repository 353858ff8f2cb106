package feed

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
)

// authenticate checks the feed token via either a `?token=` query
// parameter or the password field of HTTP Basic auth, comparing in
// constant time so response timing cannot leak the token.
func authenticate(c *gin.Context, token string) bool {
	if q := c.Query("token"); q != "" {
		return constantTimeEq(q, token)
	}

	if user, pass, ok := c.Request.BasicAuth(); ok {
		_ = user
		return constantTimeEq(pass, token)
	}

	return false
}

func constantTimeEq(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
