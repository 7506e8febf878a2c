package resource

import (
	"context"

	"github.com/gin-gonic/gin"
)

// Scope holds equality filters keyed by json field name. It is built from a
// resource's extra parameters on every request.
type Scope = map[string]any

// Session is the unit of work a generated handler issues its queries
// through. Its lifecycle (begin, commit, rollback) belongs to whoever
// resolves it; handlers only call into it.
//
// Get returns an error matching apperr.ErrNotFound when nothing matches.
// Delete and DeleteAll treat "nothing matched" as success.
type Session[M any] interface {
	Insert(ctx context.Context, record *M) error
	Get(ctx context.Context, id string, scope Scope) (*M, error)
	Save(ctx context.Context, record *M) error
	Delete(ctx context.Context, id string, scope Scope) error
	All(ctx context.Context, scope Scope) ([]M, error)
	Count(ctx context.Context, scope Scope) (int64, error)
	DeleteAll(ctx context.Context, scope Scope) error
}

// SessionFunc resolves the session for the request being served.
type SessionFunc[M any] func(c *gin.Context) (Session[M], error)
