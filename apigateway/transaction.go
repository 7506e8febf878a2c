package gateway

import (
	"bytes"
	"net/http"

	"github.com/adonese/crud/apperr"
	"github.com/adonese/crud/store"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Transaction opens one database transaction per request and exposes it to
// store.Sessions through the request context. The transaction commits when
// the handlers recorded no error and answered below 400; otherwise it rolls
// back. A panic further down rolls back before propagating.
//
// The response is held back until the outcome is known, so a failed commit
// answers 500 instead of whatever the handler wrote.
func Transaction(db *gorm.DB, logger *logrus.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(c *gin.Context) {
		tx := db.WithContext(c.Request.Context()).Begin()
		if tx.Error != nil {
			err := apperr.Wrap(tx.Error, apperr.ErrUnavailable, "unable to begin transaction")
			logger.WithError(tx.Error).WithField("request_id", RequestIDFromCtx(c)).Error("db_begin_failed")
			_ = c.Error(err)
			c.AbortWithStatusJSON(apperr.Status(err), apperr.Payload(err))
			return
		}
		c.Request = c.Request.WithContext(store.WithTx(c.Request.Context(), tx))

		out := c.Writer
		buf := newBufferedWriter(out)
		c.Writer = buf

		done := false
		defer func() {
			if done {
				return
			}
			c.Writer = out
			tx.Rollback()
		}()

		c.Next()

		done = true
		c.Writer = out
		if len(c.Errors) > 0 || buf.Status() >= http.StatusBadRequest {
			if err := tx.Rollback().Error; err != nil {
				logger.WithError(err).WithField("request_id", RequestIDFromCtx(c)).Warn("db_rollback_failed")
			}
			buf.flush()
			return
		}
		if err := tx.Commit().Error; err != nil {
			logger.WithError(err).WithField("request_id", RequestIDFromCtx(c)).Error("db_commit_failed")
			failed := apperr.Wrap(err, apperr.ErrDatabase, "unable to commit transaction")
			_ = c.Error(failed)
			c.AbortWithStatusJSON(apperr.Status(failed), apperr.Payload(failed))
			return
		}
		buf.flush()
	}
}

// bufferedWriter records status, headers and body in memory. flush sends
// them to the wrapped writer.
type bufferedWriter struct {
	gin.ResponseWriter
	header  http.Header
	status  int
	written bool
	body    bytes.Buffer
}

func newBufferedWriter(w gin.ResponseWriter) *bufferedWriter {
	return &bufferedWriter{ResponseWriter: w, header: http.Header{}, status: http.StatusOK}
}

func (w *bufferedWriter) Header() http.Header { return w.header }

func (w *bufferedWriter) WriteHeader(code int) {
	if code > 0 && !w.written {
		w.status = code
	}
}

func (w *bufferedWriter) WriteHeaderNow() { w.written = true }

func (w *bufferedWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.body.Write(b)
}

func (w *bufferedWriter) WriteString(s string) (int, error) {
	w.written = true
	return w.body.WriteString(s)
}

func (w *bufferedWriter) Status() int { return w.status }

func (w *bufferedWriter) Size() int {
	if !w.written {
		return -1
	}
	return w.body.Len()
}

func (w *bufferedWriter) Written() bool { return w.written }

// Flush is a no-op: nothing reaches the client before the transaction ends.
func (w *bufferedWriter) Flush() {}

func (w *bufferedWriter) flush() {
	dst := w.ResponseWriter.Header()
	for k, v := range w.header {
		dst[k] = v
	}
	w.ResponseWriter.WriteHeader(w.status)
	if w.written {
		w.ResponseWriter.WriteHeaderNow()
	}
	if w.body.Len() > 0 {
		_, _ = w.ResponseWriter.Write(w.body.Bytes())
	}
}
