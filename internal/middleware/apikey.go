package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/relaypoint/mailadmin/internal/service"
)

// RequireAPIKey gates the service-to-service endpoints (quota checks from
// the MTA frontends). Unlike the operator JWT flow, a missing key is a hard
// failure here.
func RequireAPIKey(apiKeyService *service.APIKeyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "X-API-Key header required",
			})
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		apiKey, err := apiKeyService.Validate(ctx, key)
		if err != nil || apiKey == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			c.Abort()
			return
		}

		c.Set("api_key_id", apiKey.ID)
		c.Set("api_key_name", apiKey.Name)

		go apiKeyService.UpdateLastUsed(ctx, apiKey.ID)

		c.Next()
	}
}
