package parser

import (
	"github.com/apx-embedded/goapx/internal/apx"
)

// DataType is a named, addressable data element produced by a T"Name"
// declaration.
type DataType struct {
	Name       string
	ID         apx.TypeID
	LineNumber int
	Element    *DataElement
	Attributes *TypeAttributes

	derived bool
}

// NewDataType returns a data type wrapping the given element.
func NewDataType(name string, lineNumber int, elem *DataElement) *DataType {
	return &DataType{
		Name:       name,
		ID:         apx.InvalidTypeID,
		LineNumber: lineNumber,
		Element:    elem,
	}
}

// DeriveTypes resolves references inside the type's own element. Safe to
// call repeatedly; derivation happens once.
func (t *DataType) DeriveTypes(typeList []*DataType, typeMap map[string]*DataType) error {
	if t.derived {
		return nil
	}
	t.derived = true
	return t.Element.DeriveTypes(typeList, typeMap)
}

// Derived follows the type's element through any further references to the
// concrete element.
func (t *DataType) Derived() (*DataElement, error) {
	return t.Element.Derived()
}

// HasAttributes reports whether the type carries computations.
func (t *DataType) HasAttributes() bool {
	return t.Attributes != nil && len(t.Attributes.Computations) > 0
}
