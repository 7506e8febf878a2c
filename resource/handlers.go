package resource

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adonese/crud/apperr"
	"github.com/adonese/crud/validation"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DeletedCountHeader carries the number of records removed by drop. A 204
// response has no body to put it in.
const DeletedCountHeader = "X-Deleted-Count"

type operation[M any] func(c *gin.Context, s Session[M], scope Scope) error

// handle wraps op with scope extraction, session resolution, tracing,
// metrics and error rendering.
func (r *Resource[M, In, Out]) handle(m Method, op operation[M]) gin.HandlerFunc {
	spanName := r.name + "." + string(m)
	return func(c *gin.Context) {
		start := time.Now()
		ctx, span := r.tracer.Start(c.Request.Context(), spanName,
			trace.WithAttributes(
				attribute.String("crud.resource", r.name),
				attribute.String("crud.method", string(m)),
			))
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		err := r.run(c, m, op)
		r.metrics.observe(r.name, m, err, time.Since(start))
		if err == nil {
			r.logger.WithFields(logrus.Fields{
				"resource":   r.name,
				"method":     m,
				"request_id": c.GetString("request_id"),
			}).Debug("resource_operation")
			return
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.Message(err))
		r.fail(c, m, err)
	}
}

func (r *Resource[M, In, Out]) run(c *gin.Context, m Method, op operation[M]) error {
	scope, err := scopeFor(c, r.params, m)
	if err != nil {
		return err
	}
	s, err := r.sessions(c)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrUnavailable, "session unavailable")
	}
	return op(c, s, scope)
}

func (r *Resource[M, In, Out]) fail(c *gin.Context, m Method, err error) {
	status := apperr.Status(err)
	entry := r.logger.WithFields(logrus.Fields{
		"resource":   r.name,
		"method":     m,
		"status":     status,
		"code":       apperr.Code(err),
		"request_id": c.GetString("request_id"),
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("resource_operation_failed")
	} else {
		entry.Warn("resource_operation_failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, apperr.Payload(err))
}

func (r *Resource[M, In, Out]) create() gin.HandlerFunc {
	return r.handle(MethodCreate, func(c *gin.Context, s Session[M], scope Scope) error {
		in, _, err := r.bind(c)
		if err != nil {
			return err
		}
		values := fieldValues(&in, false)
		for k, v := range scope {
			values[k] = v
		}
		record := new(M)
		if err := assign(record, values); err != nil {
			return apperr.Wrap(err, apperr.ErrBadRequest, err.Error())
		}
		if err := s.Insert(c.Request.Context(), record); err != nil {
			return err
		}
		return r.respond(c, http.StatusCreated, record)
	})
}

func (r *Resource[M, In, Out]) retrieve() gin.HandlerFunc {
	return r.handle(MethodRetrieve, func(c *gin.Context, s Session[M], scope Scope) error {
		record, err := s.Get(c.Request.Context(), c.Param("id"), scope)
		if err != nil {
			return err
		}
		return r.respond(c, http.StatusOK, record)
	})
}

func (r *Resource[M, In, Out]) update() gin.HandlerFunc {
	return r.handle(MethodUpdate, func(c *gin.Context, s Session[M], scope Scope) error {
		ctx := c.Request.Context()
		record, err := s.Get(ctx, c.Param("id"), scope)
		if err != nil {
			return err
		}
		in, provided, err := r.bind(c)
		if err != nil {
			return err
		}
		// Only keys present in the body are written, and never the identity.
		values := map[string]any{}
		for k, v := range fieldValues(&in, true) {
			if _, ok := lookupKey(provided, k); !ok {
				continue
			}
			if strings.EqualFold(k, r.idField) {
				continue
			}
			values[k] = v
		}
		if err := assign(record, values); err != nil {
			return apperr.Wrap(err, apperr.ErrBadRequest, err.Error())
		}
		if err := s.Save(ctx, record); err != nil {
			return err
		}
		return r.respond(c, http.StatusOK, record)
	})
}

func (r *Resource[M, In, Out]) delete() gin.HandlerFunc {
	return r.handle(MethodDelete, func(c *gin.Context, s Session[M], scope Scope) error {
		if err := s.Delete(c.Request.Context(), c.Param("id"), scope); err != nil {
			return err
		}
		c.Status(http.StatusNoContent)
		return nil
	})
}

func (r *Resource[M, In, Out]) list() gin.HandlerFunc {
	return r.handle(MethodList, func(c *gin.Context, s Session[M], scope Scope) error {
		records, err := s.All(c.Request.Context(), scope)
		if err != nil {
			return err
		}
		out := make([]Out, 0, len(records))
		for i := range records {
			o, err := r.output(&records[i])
			if err != nil {
				return apperr.Wrap(err, apperr.ErrInternal, "")
			}
			out = append(out, o)
		}
		c.JSON(http.StatusOK, out)
		return nil
	})
}

func (r *Resource[M, In, Out]) drop() gin.HandlerFunc {
	return r.handle(MethodDrop, func(c *gin.Context, s Session[M], scope Scope) error {
		ctx := c.Request.Context()
		n, err := s.Count(ctx, scope)
		if err != nil {
			return err
		}
		if err := s.DeleteAll(ctx, scope); err != nil {
			return err
		}
		c.Header(DeletedCountHeader, strconv.FormatInt(n, 10))
		c.Status(http.StatusNoContent)
		return nil
	})
}

func (r *Resource[M, In, Out]) respond(c *gin.Context, status int, record *M) error {
	out, err := r.output(record)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrInternal, "")
	}
	c.JSON(status, out)
	return nil
}

// bind decodes and validates the input schema. It also returns the raw
// object so update can tell which keys the client actually sent.
func (r *Resource[M, In, Out]) bind(c *gin.Context) (In, map[string]json.RawMessage, error) {
	var in In
	body, err := c.GetRawData()
	if err != nil {
		return in, nil, apperr.Wrap(err, apperr.ErrBadRequest, "unable to read request body")
	}
	if len(body) == 0 {
		return in, nil, apperr.ErrEmptyBody
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		if err == nil {
			err = apperr.ErrBadRequest
		}
		return in, nil, apperr.Wrap(err, apperr.ErrBadRequest, "request body must be a JSON object")
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return in, nil, apperr.Wrap(err, apperr.ErrBadRequest, err.Error())
	}
	if err := validation.ValidateStruct(&in); err != nil {
		if fields := validation.Fields(err); fields != nil {
			verr := apperr.WithFields(apperr.ErrValidation, fields)
			verr.Err = err
			verr.Message = "invalid " + r.name
			return in, nil, verr
		}
		return in, nil, apperr.Wrap(err, apperr.ErrInternal, "")
	}
	return in, raw, nil
}
