// Package parser implements the APX definition language front-end: the
// packed-binary signature grammar, the attribute grammar and the node text
// format. Parsing produces a Node which, once finalized, carries a
// flattened, reference-free data element per port.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/apx-embedded/goapx/internal/apx"
)

// Limits is an optional numeric value range on a scalar element. Whether the
// signed or unsigned pair applies is decided by the element's type code.
type Limits struct {
	LowerI int64
	UpperI int64
	LowerU uint64
	UpperU uint64
}

// DataElement is one node of a parsed data signature tree.
type DataElement struct {
	TypeCode       apx.TypeCode
	Name           string // set when the element is a record field
	ArrayLen       uint32 // 0 = scalar
	IsDynamicArray bool
	Limits         *Limits

	Elements []*DataElement // record children

	TypeRefID   apx.TypeID
	TypeRefName string
	TypeRefPtr  *DataType

	ID uint32
}

// NewDataElement returns an element of the given type code.
func NewDataElement(typeCode apx.TypeCode) *DataElement {
	return &DataElement{TypeCode: typeCode, TypeRefID: apx.InvalidTypeID}
}

// IsArray reports whether the element has an array suffix.
func (e *DataElement) IsArray() bool {
	return e.ArrayLen > 0
}

// SetLimitsSigned attaches a signed value range.
func (e *DataElement) SetLimitsSigned(lower, upper int64) {
	e.Limits = &Limits{LowerI: lower, UpperI: upper}
}

// SetLimitsUnsigned attaches an unsigned value range.
func (e *DataElement) SetLimitsUnsigned(lower, upper uint64) {
	e.Limits = &Limits{LowerU: lower, UpperU: upper}
}

// AppendChild adds a record field element.
func (e *DataElement) AppendChild(child *DataElement) {
	e.Elements = append(e.Elements, child)
}

// Clone returns a deep copy of the element tree. Type reference pointers are
// shared, not copied.
func (e *DataElement) Clone() *DataElement {
	c := *e
	if e.Limits != nil {
		l := *e.Limits
		c.Limits = &l
	}
	if e.Elements != nil {
		c.Elements = make([]*DataElement, len(e.Elements))
		for i, child := range e.Elements {
			c.Elements[i] = child.Clone()
		}
	}
	return &c
}

// DeriveTypes resolves REF_ID and REF_NAME codes in the element tree into
// REF_PTR using the node's type list and type map.
func (e *DataElement) DeriveTypes(typeList []*DataType, typeMap map[string]*DataType) error {
	switch e.TypeCode {
	case apx.TypeCodeRecord:
		for _, child := range e.Elements {
			if err := child.DeriveTypes(typeList, typeMap); err != nil {
				return err
			}
		}
	case apx.TypeCodeRefID:
		if e.TypeRefID >= uint32(len(typeList)) {
			return apx.Errorf(apx.ErrInvalidTypeRef, "type index %d", e.TypeRefID)
		}
		dataType := typeList[e.TypeRefID]
		if err := dataType.DeriveTypes(typeList, typeMap); err != nil {
			return err
		}
		e.TypeCode = apx.TypeCodeRefPtr
		e.TypeRefPtr = dataType
	case apx.TypeCodeRefName:
		dataType, ok := typeMap[e.TypeRefName]
		if !ok {
			return apx.Errorf(apx.ErrInvalidTypeRef, "type %q", e.TypeRefName)
		}
		if err := dataType.DeriveTypes(typeList, typeMap); err != nil {
			return err
		}
		e.TypeCode = apx.TypeCodeRefPtr
		e.TypeRefPtr = dataType
	}
	return nil
}

// Derived follows a chain of REF_PTR references and returns the concrete
// element at the end. The follow depth is bounded to protect against
// reference cycles.
func (e *DataElement) Derived() (*DataElement, error) {
	elem := e
	for i := 0; i < apx.MaxTypeRefFollowCount; i++ {
		switch elem.TypeCode {
		case apx.TypeCodeRefID, apx.TypeCodeRefName:
			return nil, apx.NewError(apx.ErrUnsupported)
		case apx.TypeCodeRefPtr:
			if elem.TypeRefPtr == nil {
				return nil, apx.NewError(apx.ErrInvalidTypeRef)
			}
			elem = elem.TypeRefPtr.Element
		default:
			return elem, nil
		}
	}
	return nil, apx.NewError(apx.ErrTooManyReferences)
}

// elementSize returns the packed size of one array item (or the scalar
// itself), without any dynamic-array length prefix.
func (e *DataElement) elementSize() (int, error) {
	switch e.TypeCode {
	case apx.TypeCodeUint8, apx.TypeCodeInt8, apx.TypeCodeChar, apx.TypeCodeChar8,
		apx.TypeCodeBool, apx.TypeCodeByte:
		return 1, nil
	case apx.TypeCodeUint16, apx.TypeCodeInt16, apx.TypeCodeChar16:
		return 2, nil
	case apx.TypeCodeUint32, apx.TypeCodeInt32, apx.TypeCodeChar32:
		return 4, nil
	case apx.TypeCodeUint64, apx.TypeCodeInt64:
		return 8, nil
	case apx.TypeCodeRecord:
		sum := 0
		for _, child := range e.Elements {
			size, err := child.PackedSize()
			if err != nil {
				return 0, err
			}
			sum += size
		}
		return sum, nil
	}
	return 0, apx.Errorf(apx.ErrDataSignature, "cannot size element with type code %d", e.TypeCode)
}

// LenBytes returns the number of bytes used to encode a current-length field
// for a dynamic array or queue with the given maximum length.
func LenBytes(n uint32) int {
	switch {
	case n <= 0xFF:
		return 1
	case n <= 0xFFFF:
		return 2
	}
	return 4
}

// PackedSize returns the total packed byte size of the element including any
// array multiplier and dynamic length prefix.
func (e *DataElement) PackedSize() (int, error) {
	size, err := e.elementSize()
	if err != nil {
		return 0, err
	}
	if !e.IsArray() {
		return size, nil
	}
	total := int(e.ArrayLen) * size
	if e.IsDynamicArray {
		total += LenBytes(e.ArrayLen)
	}
	return total, nil
}

// String returns the canonical signature string of the element. When
// normalized, dynamic array suffixes render as "[*]" instead of "[n*]".
func (e *DataElement) String(normalized bool) string {
	var sb strings.Builder
	e.appendString(&sb, normalized)
	return sb.String()
}

func (e *DataElement) appendString(sb *strings.Builder, normalized bool) {
	if e.TypeCode == apx.TypeCodeRecord {
		sb.WriteByte('{')
		for _, child := range e.Elements {
			sb.WriteByte('"')
			sb.WriteString(child.Name)
			sb.WriteByte('"')
			child.appendString(sb, normalized)
		}
		sb.WriteByte('}')
	} else {
		var c byte
		switch e.TypeCode {
		case apx.TypeCodeUint8:
			c = 'C'
		case apx.TypeCodeUint16:
			c = 'S'
		case apx.TypeCodeUint32:
			c = 'L'
		case apx.TypeCodeUint64:
			c = 'Q'
		case apx.TypeCodeInt8:
			c = 'c'
		case apx.TypeCodeInt16:
			c = 's'
		case apx.TypeCodeInt32:
			c = 'l'
		case apx.TypeCodeInt64:
			c = 'q'
		case apx.TypeCodeChar:
			c = 'a'
		case apx.TypeCodeChar8:
			c = 'A'
		case apx.TypeCodeChar16:
			c = 'u'
		case apx.TypeCodeChar32:
			c = 'U'
		case apx.TypeCodeBool:
			c = 'b'
		case apx.TypeCodeByte:
			c = 'B'
		case apx.TypeCodeRefID:
			fmt.Fprintf(sb, "T[%d]", e.TypeRefID)
		case apx.TypeCodeRefName:
			fmt.Fprintf(sb, "T[%q]", e.TypeRefName)
		case apx.TypeCodeRefPtr:
			if e.TypeRefPtr != nil {
				fmt.Fprintf(sb, "T[%q]", e.TypeRefPtr.Name)
			}
		}
		if c != 0 {
			sb.WriteByte(c)
			if e.Limits != nil {
				e.appendLimits(sb)
			}
		}
	}
	if e.IsArray() {
		e.appendArray(sb, normalized)
	}
}

func (e *DataElement) appendLimits(sb *strings.Builder) {
	if e.TypeCode.IsSigned() {
		sb.WriteByte('(')
		sb.WriteString(strconv.FormatInt(e.Limits.LowerI, 10))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatInt(e.Limits.UpperI, 10))
		sb.WriteByte(')')
	} else {
		sb.WriteByte('(')
		sb.WriteString(strconv.FormatUint(e.Limits.LowerU, 10))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatUint(e.Limits.UpperU, 10))
		sb.WriteByte(')')
	}
}

func (e *DataElement) appendArray(sb *strings.Builder, normalized bool) {
	switch {
	case e.IsDynamicArray && normalized:
		sb.WriteString("[*]")
	case e.IsDynamicArray:
		fmt.Fprintf(sb, "[%d*]", e.ArrayLen)
	default:
		fmt.Fprintf(sb, "[%d]", e.ArrayLen)
	}
}
