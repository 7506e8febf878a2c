// Package resource builds the standard CRUD handlers (create, retrieve,
// update, delete, list, drop) for a model, an input schema and an output
// schema.
//
// A resource is declared once at startup:
//
//	puppies, err := resource.New(resource.Config[Puppy, PuppyInput, PuppyOutput]{
//		Name:     "puppy",
//		Sessions: store.Sessions[Puppy](db),
//	})
//	puppies.Mount(engine)
//
// Each generated handler resolves the request's Session, issues its queries
// through it and writes the output schema as JSON. Sessions never begin or
// end transactions from here; see gateway.Transaction.
package resource

import (
	"fmt"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Method names one generated operation.
type Method string

const (
	MethodCreate   Method = "create"
	MethodRetrieve Method = "retrieve"
	MethodUpdate   Method = "update"
	MethodDelete   Method = "delete"
	MethodList     Method = "list"
	MethodDrop     Method = "drop"
)

// AllMethods lists every operation in routing order.
var AllMethods = []Method{MethodCreate, MethodRetrieve, MethodUpdate, MethodDelete, MethodList, MethodDrop}

func (m Method) valid() bool {
	for _, v := range AllMethods {
		if v == m {
			return true
		}
	}
	return false
}

const defaultIDField = "id"

// Config declares a resource over model M with input schema In and output
// schema Out. All three must be structs.
type Config[M, In, Out any] struct {
	// Name is the collection name, used for mounting, logs and metrics.
	Name string
	// Methods defaults to AllMethods.
	Methods []Method
	// IDField is the json name of the identity field. Defaults to "id".
	IDField  string
	Params   []Param
	Sessions SessionFunc[M]
	// Output converts a record into the response body. When nil, fields are
	// copied by json name.
	Output    func(*M) Out
	Overrides map[Method]gin.HandlerFunc
	Logger    *logrus.Logger
}

// Resource is a named collection of CRUD handlers bound to one model.
type Resource[M, In, Out any] struct {
	name     string
	idField  string
	methods  []Method
	params   []Param
	sessions SessionFunc[M]
	output   func(*M) (Out, error)
	handlers map[Method]gin.HandlerFunc
	// generated marks handlers built here rather than supplied as overrides.
	generated map[Method]bool
	logger    *logrus.Logger
	tracer    trace.Tracer
	metrics   *opMetrics
}

// New validates cfg and synthesizes one handler per configured method.
func New[M, In, Out any](cfg Config[M, In, Out]) (*Resource[M, In, Out], error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("resource: empty name")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("resource %s: nil session resolver", cfg.Name)
	}
	for _, t := range []reflect.Type{typeOf[M](), typeOf[In](), typeOf[Out]()} {
		if t.Kind() != reflect.Struct {
			return nil, fmt.Errorf("resource %s: %s is not a struct", cfg.Name, t)
		}
	}
	methods := cfg.Methods
	if len(methods) == 0 {
		methods = AllMethods
	}
	seen := map[Method]bool{}
	for _, m := range methods {
		if !m.valid() {
			return nil, fmt.Errorf("resource %s: unknown method %q", cfg.Name, m)
		}
		if seen[m] {
			return nil, fmt.Errorf("resource %s: duplicate method %q", cfg.Name, m)
		}
		seen[m] = true
	}
	for m := range cfg.Overrides {
		if !seen[m] {
			return nil, fmt.Errorf("resource %s: override for unconfigured method %q", cfg.Name, m)
		}
	}
	if err := checkParams(cfg.Params); err != nil {
		return nil, fmt.Errorf("resource %s: %w", cfg.Name, err)
	}

	r := &Resource[M, In, Out]{
		name:     cfg.Name,
		idField:  cfg.IDField,
		methods:  ordered(seen),
		params:   cfg.Params,
		sessions: cfg.Sessions,
		logger:   cfg.Logger,
		tracer:   otel.Tracer("github.com/adonese/crud/resource"),
		metrics:  operationMetrics(),
	}
	if r.idField == "" {
		r.idField = defaultIDField
	}
	if r.logger == nil {
		r.logger = logrus.StandardLogger()
	}
	if cfg.Output != nil {
		r.output = func(m *M) (Out, error) { return cfg.Output(m), nil }
	} else {
		r.output = copyOutput[M, Out]
	}

	r.handlers = make(map[Method]gin.HandlerFunc, len(r.methods))
	r.generated = make(map[Method]bool, len(r.methods))
	for _, m := range r.methods {
		if h, ok := cfg.Overrides[m]; ok && h != nil {
			r.handlers[m] = h
			continue
		}
		r.handlers[m] = r.generate(m)
		r.generated[m] = true
	}
	return r, nil
}

// Name returns the collection name.
func (r *Resource[M, In, Out]) Name() string { return r.name }

// Methods returns the configured methods in routing order.
func (r *Resource[M, In, Out]) Methods() []Method {
	return append([]Method(nil), r.methods...)
}

// Handler returns the handler registered under m.
func (r *Resource[M, In, Out]) Handler(m Method) (gin.HandlerFunc, bool) {
	h, ok := r.handlers[m]
	return h, ok
}

// Handlers returns a copy of the method → handler mapping.
func (r *Resource[M, In, Out]) Handlers() map[Method]gin.HandlerFunc {
	out := make(map[Method]gin.HandlerFunc, len(r.handlers))
	for m, h := range r.handlers {
		out[m] = h
	}
	return out
}

func (r *Resource[M, In, Out]) generate(m Method) gin.HandlerFunc {
	switch m {
	case MethodCreate:
		return r.create()
	case MethodRetrieve:
		return r.retrieve()
	case MethodUpdate:
		return r.update()
	case MethodDelete:
		return r.delete()
	case MethodList:
		return r.list()
	default:
		return r.drop()
	}
}

func ordered(seen map[Method]bool) []Method {
	out := make([]Method, 0, len(seen))
	for _, m := range AllMethods {
		if seen[m] {
			out = append(out, m)
		}
	}
	return out
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func copyOutput[M, Out any](m *M) (Out, error) {
	var out Out
	err := assign(&out, fieldValues(m, false))
	return out, err
}
