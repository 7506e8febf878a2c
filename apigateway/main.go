// Package gateway holds the gin middleware shared by every resource route:
// request ids, access logging, metrics, CORS, panic recovery and the
// per-request database transaction.
package gateway

import (
	"net/http"

	"github.com/adonese/crud/resource"
	"github.com/gin-gonic/gin"
)

// OptionsMiddleware for cors headers
func OptionsMiddleware(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Expose-Headers", RequestIDHeader+", "+resource.DeletedCountHeader)
	if c.Request.Method != http.MethodOptions {
		c.Next()
		return
	}
	c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	c.Header("Access-Control-Allow-Headers", "authorization, origin, content-type, accept, "+RequestIDHeader)
	c.Header("Allow", "HEAD,GET,POST,PUT,DELETE,OPTIONS")
	c.Header("Content-Type", "application/json")
	c.AbortWithStatus(http.StatusOK)
}
