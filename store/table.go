package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/adonese/crud/apperr"
	"github.com/adonese/crud/resource"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Table is a resource.Session over the gorm model M. It issues queries
// through whatever *gorm.DB it was built on, normally the request
// transaction.
type Table[M any] struct {
	db   *gorm.DB
	meta *tableMeta
}

var _ resource.Session[struct{}] = (*Table[struct{}])(nil)

type tableMeta struct {
	schema  *schema.Schema
	kind    string
	pk      *schema.Field
	columns map[string]*schema.Field
}

// NewTable parses M's gorm schema and binds it to db.
func NewTable[M any](db *gorm.DB) (*Table[M], error) {
	meta, err := parseMeta[M](db)
	if err != nil {
		return nil, err
	}
	return &Table[M]{db: db, meta: meta}, nil
}

// Sessions resolves a Table per request, preferring the transaction that
// gateway.Transaction placed on the request context.
func Sessions[M any](db *gorm.DB) resource.SessionFunc[M] {
	var (
		once    sync.Once
		meta    *tableMeta
		metaErr error
	)
	return func(c *gin.Context) (resource.Session[M], error) {
		once.Do(func() { meta, metaErr = parseMeta[M](db) })
		if metaErr != nil {
			return nil, metaErr
		}
		return &Table[M]{db: conn(c.Request.Context(), db), meta: meta}, nil
	}
}

func parseMeta[M any](db *gorm.DB) (*tableMeta, error) {
	if db == nil {
		return nil, fmt.Errorf("nil db")
	}
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(M)); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	s := stmt.Schema
	if s.PrioritizedPrimaryField == nil {
		return nil, fmt.Errorf("model %s has no primary key", s.Name)
	}
	meta := &tableMeta{
		schema:  s,
		kind:    strings.ToLower(s.Name),
		pk:      s.PrioritizedPrimaryField,
		columns: make(map[string]*schema.Field, len(s.Fields)),
	}
	for _, f := range s.Fields {
		if f.DBName == "" {
			continue
		}
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			name = f.Name
		}
		meta.columns[name] = f
	}
	return meta, nil
}

// field finds the schema field behind a json name, falling back to gorm's
// own lookup by Go or column name.
func (m *tableMeta) field(key string) (*schema.Field, bool) {
	if f, ok := m.columns[key]; ok {
		return f, true
	}
	for name, f := range m.columns {
		if strings.EqualFold(name, key) {
			return f, true
		}
	}
	if f := m.schema.LookUpField(key); f != nil && f.DBName != "" {
		return f, true
	}
	return nil, false
}

func (m *tableMeta) keyClause(id string) (clause.Expression, error) {
	v, err := parseValue(m.pk, id)
	if err != nil {
		return nil, err
	}
	return clause.Eq{Column: clause.Column{Table: clause.CurrentTable, Name: m.pk.DBName}, Value: v}, nil
}

// parseValue converts a path or query string into f's Go kind.
func parseValue(f *schema.Field, raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return raw, nil
	}
	switch f.IndirectFieldType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.ParseInt(s, 10, 64)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.ParseUint(s, 10, 64)
	case reflect.Float32, reflect.Float64:
		return strconv.ParseFloat(s, 64)
	case reflect.Bool:
		return strconv.ParseBool(s)
	default:
		return s, nil
	}
}

func (t *Table[M]) query(ctx context.Context, scope resource.Scope) (*gorm.DB, error) {
	q := t.db.WithContext(ctx).Model(new(M))
	if len(scope) == 0 {
		return q, nil
	}
	where := make(map[string]any, len(scope))
	for key, raw := range scope {
		f, ok := t.meta.field(key)
		if !ok {
			return nil, apperr.Wrap(fmt.Errorf("unknown field %q", key), apperr.ErrInternal, "")
		}
		v, err := parseValue(f, raw)
		if err != nil {
			return nil, apperr.WithFields(apperr.ErrValidation, map[string]any{key: "type"})
		}
		where[f.DBName] = v
	}
	return q.Where(where), nil
}

func (t *Table[M]) Insert(ctx context.Context, m *M) error {
	return t.translate(t.db.WithContext(ctx).Create(m).Error, "")
}

func (t *Table[M]) Get(ctx context.Context, id string, scope resource.Scope) (*M, error) {
	key, err := t.meta.keyClause(id)
	if err != nil {
		return nil, apperr.NotFound(t.meta.kind, id)
	}
	q, err := t.query(ctx, scope)
	if err != nil {
		return nil, err
	}
	var m M
	if err := q.Where(key).Take(&m).Error; err != nil {
		return nil, t.translate(err, id)
	}
	return &m, nil
}

func (t *Table[M]) Save(ctx context.Context, m *M) error {
	return t.translate(t.db.WithContext(ctx).Save(m).Error, "")
}

// Delete removes the record if it exists. A miss is not an error.
func (t *Table[M]) Delete(ctx context.Context, id string, scope resource.Scope) error {
	key, err := t.meta.keyClause(id)
	if err != nil {
		return nil
	}
	q, err := t.query(ctx, scope)
	if err != nil {
		return err
	}
	return t.translate(q.Where(key).Delete(new(M)).Error, id)
}

func (t *Table[M]) All(ctx context.Context, scope resource.Scope) ([]M, error) {
	q, err := t.query(ctx, scope)
	if err != nil {
		return nil, err
	}
	out := []M{}
	order := clause.OrderByColumn{Column: clause.Column{Table: clause.CurrentTable, Name: t.meta.pk.DBName}}
	if err := q.Order(order).Find(&out).Error; err != nil {
		return nil, t.translate(err, "")
	}
	return out, nil
}

func (t *Table[M]) Count(ctx context.Context, scope resource.Scope) (int64, error) {
	q, err := t.query(ctx, scope)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, t.translate(err, "")
	}
	return n, nil
}

// DeleteAll removes every record matching scope, or the whole table when
// scope is empty.
func (t *Table[M]) DeleteAll(ctx context.Context, scope resource.Scope) error {
	global := &Table[M]{db: t.db.Session(&gorm.Session{AllowGlobalUpdate: true}), meta: t.meta}
	q, err := global.query(ctx, scope)
	if err != nil {
		return err
	}
	return t.translate(q.Delete(new(M)).Error, "")
}

func (t *Table[M]) translate(err error, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(t.meta.kind, id)
	case errors.Is(err, gorm.ErrDuplicatedKey), isDuplicate(err):
		return apperr.Wrap(err, apperr.ErrConflict, t.meta.kind+" already exists")
	default:
		return apperr.Wrap(err, apperr.ErrDatabase, "database error")
	}
}

func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
