package parser

import (
	"fmt"
	"strings"

	"github.com/apx-embedded/goapx/internal/apx"
)

// PortAttributes holds the parsed attribute list of a port declaration.
type PortAttributes struct {
	IsParameter bool
	IsQueued    bool
	QueueLength uint32

	InitValue       interface{} // parsed form
	ProperInitValue interface{} // derived during node finalize
}

// HasInitValue reports whether an init value attribute was given.
func (a *PortAttributes) HasInitValue() bool {
	return a != nil && a.InitValue != nil
}

// Computation is one value-table or rational-scaling entry attached to a
// data type.
type Computation interface {
	// Range returns the integer sub-range of the owning type the
	// computation covers.
	Range() (lower, upper int64)
	String() string
}

// ValueTable maps a contiguous integer sub-range onto symbolic names.
type ValueTable struct {
	Lower  int64
	Upper  int64
	Values []string
}

func (vt *ValueTable) Range() (int64, int64) {
	return vt.Lower, vt.Upper
}

func (vt *ValueTable) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "VT(%d,%d", vt.Lower, vt.Upper)
	for _, v := range vt.Values {
		fmt.Fprintf(&sb, ",%q", v)
	}
	sb.WriteByte(')')
	return sb.String()
}

// RationalScaling maps a contiguous integer sub-range onto physical values
// via value*num/denom + offset.
type RationalScaling struct {
	Lower       int64
	Upper       int64
	Offset      float64
	Numerator   int32
	Denominator int32
	Unit        string
}

func (rs *RationalScaling) Range() (int64, int64) {
	return rs.Lower, rs.Upper
}

func (rs *RationalScaling) String() string {
	return fmt.Sprintf("RS(%d,%d,%g,%d,%d,%q)", rs.Lower, rs.Upper, rs.Offset,
		rs.Numerator, rs.Denominator, rs.Unit)
}

// TypeAttributes is the ordered computation list of a type declaration.
type TypeAttributes struct {
	Computations []Computation
}

// CheckRanges validates every computation range against the natural range of
// the owning element's type code. Ranges outside the type fail with a
// value-range error; overlapping value tables are rejected as well.
func (a *TypeAttributes) CheckRanges(elem *DataElement) error {
	var typeLo, typeHi int64
	switch elem.TypeCode {
	case apx.TypeCodeUint8, apx.TypeCodeByte:
		typeLo, typeHi = 0, 0xFF
	case apx.TypeCodeUint16:
		typeLo, typeHi = 0, 0xFFFF
	case apx.TypeCodeUint32:
		typeLo, typeHi = 0, 0xFFFFFFFF
	case apx.TypeCodeInt8:
		typeLo, typeHi = -128, 127
	case apx.TypeCodeInt16:
		typeLo, typeHi = -32768, 32767
	case apx.TypeCodeInt32:
		typeLo, typeHi = -2147483648, 2147483647
	case apx.TypeCodeUint64, apx.TypeCodeInt64:
		// full 64-bit range, nothing to check against
		return a.checkOverlap()
	default:
		return apx.NewError(apx.ErrUnsupported)
	}
	for _, comp := range a.Computations {
		lo, hi := comp.Range()
		if lo > hi || lo < typeLo || hi > typeHi {
			return apx.NewError(apx.ErrValueRange)
		}
	}
	return a.checkOverlap()
}

func (a *TypeAttributes) checkOverlap() error {
	tables := make([]*ValueTable, 0, len(a.Computations))
	for _, comp := range a.Computations {
		if vt, ok := comp.(*ValueTable); ok {
			tables = append(tables, vt)
		}
	}
	for i, vt := range tables {
		for _, other := range tables[:i] {
			if vt.Lower <= other.Upper && other.Lower <= vt.Upper {
				return apx.NewError(apx.ErrValueRange)
			}
		}
	}
	return nil
}
