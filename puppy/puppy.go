// Package puppy is the reference resource served by the crud binary.
package puppy

import (
	"github.com/adonese/crud/resource"
	"github.com/sirupsen/logrus"
)

const Name = "puppy"

// Puppy is the stored record.
type Puppy struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"size:64;index"`
}

// Input is the request body for create and update. Absent fields are nil.
type Input struct {
	ID   *uint   `json:"id"`
	Name *string `json:"name" binding:"omitempty,min=1,max=64"`
}

// Output is the response body.
type Output struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// NewResource declares the puppy collection over sessions. The list
// operation accepts an optional ?name= filter.
func NewResource(sessions resource.SessionFunc[Puppy], logger *logrus.Logger) (*resource.Resource[Puppy, Input, Output], error) {
	return resource.New(resource.Config[Puppy, Input, Output]{
		Name:     Name,
		Methods:  resource.AllMethods,
		Sessions: sessions,
		Params: []resource.Param{
			{Name: "name", Methods: []resource.Method{resource.MethodList}},
		},
		Logger: logger,
	})
}
