package gateway

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/adonese/crud/apperr"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Recovery turns a panic into a 500 carrying the usual error payload.
func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		err := apperr.Wrap(fmt.Errorf("panic: %v", recovered), apperr.ErrInternal, http.StatusText(http.StatusInternalServerError))
		logger.WithFields(logrus.Fields{
			"request_id": RequestIDFromCtx(c),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"stack":      string(debug.Stack()),
		}).WithError(err.Err).Error("panic_recovered")
		c.AbortWithStatusJSON(http.StatusInternalServerError, apperr.Payload(err))
	})
}
