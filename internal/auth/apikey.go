package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// operatorCtxKey is the Gin context key used to store the authenticated operator ID.
const operatorCtxKey = "operator_id"

// APIKeyMiddleware guards operator actions by mapping X-API-Key → operatorID.
func APIKeyMiddleware(keys map[string]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		operatorID, ok := keys[apiKey]
		if apiKey == "" || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(operatorCtxKey, operatorID)
		c.Next()
	}
}

// OperatorID returns the authenticated operator ID from the request context.
func OperatorID(c *gin.Context) string {
	v, _ := c.Get(operatorCtxKey)
	s, _ := v.(string)
	return s
}

// WebhookToken rejects requests whose ?token= does not equal credential.
// This is the only check on the webhook that answers with a non-2xx status.
func WebhookToken(credential string) gin.HandlerFunc {
	want := []byte(credential)
	return func(c *gin.Context) {
		got := []byte(c.Query("token"))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
