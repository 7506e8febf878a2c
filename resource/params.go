package resource

import (
	"fmt"

	"github.com/adonese/crud/apperr"
	"github.com/gin-gonic/gin"
)

// Param is an extra named input a resource wants injected into its
// generated handlers. It is read from the query string and, when present,
// becomes an equality filter on Field.
type Param struct {
	Name     string
	Field    string
	Required bool
	// Methods limits the handlers that accept the param. Empty means all.
	Methods []Method
}

func (p Param) field() string {
	if p.Field != "" {
		return p.Field
	}
	return p.Name
}

func (p Param) appliesTo(m Method) bool {
	if len(p.Methods) == 0 {
		return true
	}
	for _, pm := range p.Methods {
		if pm == m {
			return true
		}
	}
	return false
}

func checkParams(params []Param) error {
	seen := map[string]bool{}
	for _, p := range params {
		if p.Name == "" {
			return fmt.Errorf("param with empty name")
		}
		if p.Name == "id" {
			return fmt.Errorf("param %q shadows the identity path parameter", p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate param %q", p.Name)
		}
		seen[p.Name] = true
		for _, m := range p.Methods {
			if !m.valid() {
				return fmt.Errorf("param %q: unknown method %q", p.Name, m)
			}
		}
	}
	return nil
}

// scopeFor collects the params that apply to m from the request query.
func scopeFor(c *gin.Context, params []Param, m Method) (Scope, error) {
	scope := Scope{}
	missing := map[string]any{}
	for _, p := range params {
		if !p.appliesTo(m) {
			continue
		}
		v, ok := c.GetQuery(p.Name)
		if !ok || v == "" {
			if p.Required {
				missing[p.Name] = "required"
			}
			continue
		}
		scope[p.field()] = v
	}
	if len(missing) > 0 {
		err := apperr.WithFields(apperr.ErrValidation, missing)
		err.Message = "missing required parameters"
		return nil, err
	}
	return scope, nil
}
