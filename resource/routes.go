package resource

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
)

// BodyField documents one field of a request body.
type BodyField struct {
	Field string `json:"field" yaml:"field"`
	Type  string `json:"type" yaml:"type"`
	Rules string `json:"rules" yaml:"rules"`
}

// RouteParam describes one input of a route for introspection.
type RouteParam struct {
	Name     string `json:"name" yaml:"name"`
	In       string `json:"in" yaml:"in"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
}

// Route is the routing and introspection record of one handler.
type Route struct {
	Name       string       `json:"name" yaml:"name"`
	Method     Method       `json:"operation" yaml:"operation"`
	HTTPMethod string       `json:"method" yaml:"method"`
	Path       string       `json:"path" yaml:"path"`
	Status     int          `json:"status" yaml:"status"`
	Params     []RouteParam `json:"params,omitempty" yaml:"params,omitempty"`
	Body       []BodyField  `json:"body,omitempty" yaml:"body,omitempty"`
	Response   string       `json:"response,omitempty" yaml:"response,omitempty"`
	Overridden bool         `json:"overridden,omitempty" yaml:"overridden,omitempty"`

	handler gin.HandlerFunc
}

type routeShape struct {
	httpMethod string
	path       string
	status     int
	byID       bool
	body       bool
	many       bool
	empty      bool
}

var shapes = map[Method]routeShape{
	MethodCreate:   {http.MethodPost, "/", http.StatusCreated, false, true, false, false},
	MethodRetrieve: {http.MethodGet, "/:id", http.StatusOK, true, false, false, false},
	MethodUpdate:   {http.MethodPut, "/:id", http.StatusOK, true, true, false, false},
	MethodDelete:   {http.MethodDelete, "/:id", http.StatusNoContent, true, false, false, true},
	MethodList:     {http.MethodGet, "/", http.StatusOK, false, false, true, false},
	MethodDrop:     {http.MethodDelete, "/", http.StatusNoContent, false, false, false, true},
}

// Routes returns the route table relative to the resource's mount point.
func (r *Resource[M, In, Out]) Routes() []Route {
	out := make([]Route, 0, len(r.methods))
	inType := typeOf[In]().String()
	outType := typeOf[Out]().String()
	for _, m := range r.methods {
		shape := shapes[m]
		route := Route{
			Name:       r.name + "." + string(m),
			Method:     m,
			HTTPMethod: shape.httpMethod,
			Path:       shape.path,
			Status:     shape.status,
			Overridden: !r.generated[m],
			handler:    r.handlers[m],
		}
		if shape.byID {
			route.Params = append(route.Params, RouteParam{Name: "id", In: "path", Type: "string", Required: true})
		}
		for _, p := range r.params {
			if p.appliesTo(m) {
				route.Params = append(route.Params, RouteParam{Name: p.Name, In: "query", Type: "string", Required: p.Required})
			}
		}
		if shape.body {
			route.Params = append(route.Params, RouteParam{Name: "body", In: "body", Type: inType, Required: true})
			route.Body = bodyFields(typeOf[In]())
		}
		switch {
		case shape.empty:
		case shape.many:
			route.Response = "[]" + outType
		default:
			route.Response = outType
		}
		out = append(out, route)
	}
	return out
}

// Register attaches every route to router, relative to its base path.
func (r *Resource[M, In, Out]) Register(router gin.IRoutes) {
	for _, route := range r.Routes() {
		router.Handle(route.HTTPMethod, route.Path, route.handler)
	}
}

// Mount registers the resource under /<name> and returns the group.
func (r *Resource[M, In, Out]) Mount(router gin.IRouter, middleware ...gin.HandlerFunc) *gin.RouterGroup {
	group := router.Group("/"+r.name, middleware...)
	r.Register(group)
	return group
}

// bodyFields lists the json fields of t with their validation rules.
func bodyFields(t reflect.Type) []BodyField {
	var fields []BodyField
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, skip := jsonName(f)
		if skip {
			continue
		}
		if f.Anonymous && name == "" {
			fields = append(fields, bodyFields(f.Type)...)
			continue
		}
		if !f.IsExported() {
			continue
		}
		if name == "" {
			name = f.Name
		}
		rules := f.Tag.Get("binding")
		if rules == "" {
			rules = "optional"
		}
		ft := f.Type
		for ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		fields = append(fields, BodyField{Field: name, Type: ft.String(), Rules: rules})
	}
	return fields
}
