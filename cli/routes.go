package main

import (
	"fmt"
	"io"

	"github.com/adonese/crud/apperr"
	"github.com/adonese/crud/puppy"
	"github.com/adonese/crud/resource"
	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

type mountedRoutes struct {
	Resource string           `yaml:"resource"`
	Prefix   string           `yaml:"prefix"`
	Routes   []resource.Route `yaml:"routes"`
}

// printRoutes writes the route table of every served resource. It needs no
// backend, so sessions always report unavailable.
func printRoutes(w io.Writer) error {
	offline := func(*gin.Context) (resource.Session[puppy.Puppy], error) {
		return nil, apperr.ErrUnavailable
	}
	puppies, err := puppy.NewResource(offline, logrusLogger)
	if err != nil {
		return err
	}
	out := []mountedRoutes{{
		Resource: puppies.Name(),
		Prefix:   "/" + puppies.Name(),
		Routes:   puppies.Routes(),
	}}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode routes: %w", err)
	}
	return enc.Close()
}
