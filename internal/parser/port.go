package parser

import (
	"github.com/apx-embedded/goapx/internal/apx"
)

// DataSignature owns the raw parsed element of a port and, after node
// finalization, the effective (flattened) element with all type references
// resolved.
type DataSignature struct {
	Raw       string
	Element   *DataElement
	Effective *DataElement
}

// Port is one provide- or require-port declaration.
type Port struct {
	Type       apx.PortType
	Name       string
	ID         apx.PortID
	LineNumber int
	Signature  DataSignature
	Attributes *PortAttributes
}

// NewPort returns a port wrapping the given parsed element.
func NewPort(portType apx.PortType, name string, lineNumber int, signature DataSignature) *Port {
	return &Port{
		Type:       portType,
		Name:       name,
		ID:         apx.InvalidPortID,
		LineNumber: lineNumber,
		Signature:  signature,
	}
}

// IsQueued reports whether the port carries the Q attribute.
func (p *Port) IsQueued() bool {
	return p.Attributes != nil && p.Attributes.IsQueued
}

// IsParameter reports whether the port carries the P attribute.
func (p *Port) IsParameter() bool {
	return p.Attributes != nil && p.Attributes.IsParameter
}

// QueueLength returns the queue length of a queued port, 0 otherwise.
func (p *Port) QueueLength() uint32 {
	if p.IsQueued() {
		return p.Attributes.QueueLength
	}
	return 0
}

// EffectiveElement returns the flattened element. Only valid after the
// owning node has been finalized.
func (p *Port) EffectiveElement() *DataElement {
	return p.Signature.Effective
}

// DeriveTypes resolves type references in the port's parsed element.
func (p *Port) DeriveTypes(typeList []*DataType, typeMap map[string]*DataType) error {
	return p.Signature.Element.DeriveTypes(typeList, typeMap)
}

// ReferencedTypeAttributes returns the computation list of the type the
// port's element refers to, following reference chains, or nil.
func (p *Port) ReferencedTypeAttributes() *TypeAttributes {
	elem := p.Signature.Element
	for i := 0; i < apx.MaxTypeRefFollowCount; i++ {
		if elem.TypeCode != apx.TypeCodeRefPtr || elem.TypeRefPtr == nil {
			return nil
		}
		dataType := elem.TypeRefPtr
		if dataType.HasAttributes() {
			return dataType.Attributes
		}
		elem = dataType.Element
	}
	return nil
}

// Flatten computes the effective element of the port. The parsed element
// must already have its references derived into pointers.
func (p *Port) Flatten() error {
	effective, err := expandRefs(p.Signature.Element)
	if err != nil {
		return err
	}
	p.Signature.Effective = effective
	return nil
}

// DeriveProperInitValue converts the port's parsed init value against the
// effective element. A port without an init value derives nothing.
func (p *Port) DeriveProperInitValue() error {
	if !p.Attributes.HasInitValue() {
		return nil
	}
	value, err := p.Signature.Effective.DeriveProperInitValue(p.Attributes.InitValue)
	if err != nil {
		return err
	}
	p.Attributes.ProperInitValue = value
	return nil
}

// PackedSize returns the byte size of the port's slot in the packed port
// data buffer, including queue overhead for queued ports.
func (p *Port) PackedSize() (int, error) {
	elemSize, err := p.Signature.Effective.PackedSize()
	if err != nil {
		return 0, err
	}
	if p.IsQueued() {
		if p.Signature.Effective.IsDynamicArray {
			// queued dynamic arrays are unsupported
			return 0, apx.NewError(apx.ErrUnsupported)
		}
		q := p.QueueLength()
		return LenBytes(q) + int(q)*elemSize, nil
	}
	return elemSize, nil
}

// expandRefs returns a reference-free deep copy of elem. An array suffix on
// a reference is inherited by the expanded element, but only when the
// referent is not itself an array.
func expandRefs(elem *DataElement) (*DataElement, error) {
	switch elem.TypeCode {
	case apx.TypeCodeRefID, apx.TypeCodeRefName:
		return nil, apx.NewError(apx.ErrUnsupported)
	case apx.TypeCodeRefPtr:
		derived, err := elem.Derived()
		if err != nil {
			return nil, err
		}
		effective, err := expandRefs(derived)
		if err != nil {
			return nil, err
		}
		effective.Name = elem.Name
		if elem.IsArray() {
			if effective.IsArray() {
				// arrays of arrays are rejected
				return nil, apx.NewError(apx.ErrUnsupported)
			}
			effective.ArrayLen = elem.ArrayLen
			effective.IsDynamicArray = elem.IsDynamicArray
		}
		if err := checkDynamicRecordField(effective); err != nil {
			return nil, err
		}
		return effective, nil
	case apx.TypeCodeRecord:
		record := elem.Clone()
		record.Elements = make([]*DataElement, len(elem.Elements))
		for i, child := range elem.Elements {
			expanded, err := expandRefs(child)
			if err != nil {
				return nil, err
			}
			record.Elements[i] = expanded
		}
		if err := checkDynamicRecordField(record); err != nil {
			return nil, err
		}
		return record, nil
	}
	return elem.Clone(), nil
}

// checkDynamicRecordField rejects a dynamic-array-typed field inside a
// record that itself carries an array suffix.
func checkDynamicRecordField(elem *DataElement) error {
	if elem.TypeCode != apx.TypeCodeRecord || !elem.IsArray() {
		return nil
	}
	for _, child := range elem.Elements {
		if child.IsDynamicArray {
			return apx.NewError(apx.ErrUnsupported)
		}
	}
	return nil
}
