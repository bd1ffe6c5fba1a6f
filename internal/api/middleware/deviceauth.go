package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tavola/printbridge/internal/core"
	"github.com/tavola/printbridge/internal/db"
)

const deviceContextKey = "bridge_device"

// DeviceAuth authenticates bridge devices by their opaque token. Unknown and
// disabled devices fail identically.
func DeviceAuth(registry *core.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := deviceTokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		device, err := registry.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(deviceContextKey, device)
		c.Next()
	}
}

func deviceTokenFromRequest(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return c.GetHeader("X-Device-Token")
}

// DeviceFromContext returns the authenticated device set by DeviceAuth.
func DeviceFromContext(c *gin.Context) *db.Device {
	v, ok := c.Get(deviceContextKey)
	if !ok {
		return nil
	}
	device, _ := v.(*db.Device)
	return device
}
