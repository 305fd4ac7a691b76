package parser

import (
	"math"

	"github.com/apx-embedded/goapx/internal/apx"
)

// DeriveProperInitValue converts a parsed init value into the proper init
// value for this element: records become map[string]interface{}, arrays
// become []interface{}, scalars are range-checked and passed through.
func (e *DataElement) DeriveProperInitValue(parsed interface{}) (interface{}, error) {
	switch e.TypeCode {
	case apx.TypeCodeNone, apx.TypeCodeRefID, apx.TypeCodeRefName, apx.TypeCodeRefPtr:
		return nil, apx.NewError(apx.ErrUnsupported)
	}

	if e.TypeCode == apx.TypeCodeRecord {
		parsedList, ok := parsed.([]interface{})
		if !ok {
			return nil, apx.NewError(apx.ErrValueType)
		}
		if e.IsArray() {
			if e.IsDynamicArray {
				if len(parsedList) != 0 {
					return nil, apx.NewError(apx.ErrUnsupported)
				}
				return []interface{}{}, nil
			}
			if uint32(len(parsedList)) != e.ArrayLen {
				return nil, apx.NewError(apx.ErrValueLength)
			}
			derived := make([]interface{}, 0, len(parsedList))
			for _, child := range parsedList {
				childList, ok := child.([]interface{})
				if !ok {
					return nil, apx.NewError(apx.ErrValueType)
				}
				hv, err := e.deriveRecordInitValue(childList)
				if err != nil {
					return nil, err
				}
				derived = append(derived, hv)
			}
			return derived, nil
		}
		return e.deriveRecordInitValue(parsedList)
	}

	if e.IsArray() {
		switch v := parsed.(type) {
		case []interface{}:
			if e.IsDynamicArray {
				if len(v) != 0 {
					// only empty initializers are supported for dynamic arrays
					return nil, apx.NewError(apx.ErrUnsupported)
				}
				return []interface{}{}, nil
			}
			if uint32(len(v)) != e.ArrayLen {
				return nil, apx.NewError(apx.ErrValueLength)
			}
			derived := make([]interface{}, 0, len(v))
			for _, child := range v {
				scalar, err := e.checkScalar(child)
				if err != nil {
					return nil, err
				}
				derived = append(derived, scalar)
			}
			return derived, nil
		case string:
			if e.TypeCode == apx.TypeCodeChar || e.TypeCode == apx.TypeCodeChar8 {
				if uint32(len(v)) > e.ArrayLen {
					return nil, apx.NewError(apx.ErrValueLength)
				}
				return v, nil
			}
			return nil, apx.NewError(apx.ErrValueType)
		}
		return nil, apx.NewError(apx.ErrValueType)
	}

	return e.checkScalar(parsed)
}

func (e *DataElement) deriveRecordInitValue(parsedList []interface{}) (map[string]interface{}, error) {
	if len(parsedList) != len(e.Elements) {
		return nil, apx.NewError(apx.ErrValueLength)
	}
	hv := make(map[string]interface{}, len(e.Elements))
	for i, child := range e.Elements {
		derivedChild, err := child.Derived()
		if err != nil {
			return nil, err
		}
		// a derived record field keeps the field's own array spec
		field := derivedChild
		if child.TypeCode == apx.TypeCodeRefPtr && child.IsArray() {
			field = derivedChild.Clone()
			field.ArrayLen = child.ArrayLen
			field.IsDynamicArray = child.IsDynamicArray
		}
		value, err := field.DeriveProperInitValue(parsedList[i])
		if err != nil {
			return nil, err
		}
		hv[child.Name] = value
	}
	return hv, nil
}

// checkScalar validates a parsed scalar against the element's natural range
// and optional limits, returning the canonical scalar value.
func (e *DataElement) checkScalar(parsed interface{}) (interface{}, error) {
	if e.TypeCode == apx.TypeCodeBool {
		switch v := parsed.(type) {
		case bool:
			return v, nil
		case uint64:
			return v != 0, nil
		}
		return nil, apx.NewError(apx.ErrValueType)
	}
	if e.TypeCode == apx.TypeCodeChar || e.TypeCode == apx.TypeCodeChar8 {
		// single character from a string literal or a numeric code point
		switch v := parsed.(type) {
		case string:
			if len(v) != 1 {
				return nil, apx.NewError(apx.ErrValueLength)
			}
			return uint64(v[0]), nil
		case uint64:
			if v > 0xFF {
				return nil, apx.NewError(apx.ErrValueRange)
			}
			return v, nil
		}
		return nil, apx.NewError(apx.ErrValueType)
	}

	if e.TypeCode.IsSigned() {
		var value int64
		switch v := parsed.(type) {
		case int64:
			value = v
		case uint64:
			if v > math.MaxInt64 {
				return nil, apx.NewError(apx.ErrValueRange)
			}
			value = int64(v)
		default:
			return nil, apx.NewError(apx.ErrValueType)
		}
		var lo, hi int64
		switch e.TypeCode {
		case apx.TypeCodeInt8:
			lo, hi = math.MinInt8, math.MaxInt8
		case apx.TypeCodeInt16:
			lo, hi = math.MinInt16, math.MaxInt16
		case apx.TypeCodeInt32:
			lo, hi = math.MinInt32, math.MaxInt32
		default:
			lo, hi = math.MinInt64, math.MaxInt64
		}
		if value < lo || value > hi {
			return nil, apx.NewError(apx.ErrValueRange)
		}
		if e.Limits != nil && (value < e.Limits.LowerI || value > e.Limits.UpperI) {
			return nil, apx.NewError(apx.ErrValueRange)
		}
		return value, nil
	}

	var value uint64
	switch v := parsed.(type) {
	case uint64:
		value = v
	case int64:
		if v < 0 {
			return nil, apx.NewError(apx.ErrValueRange)
		}
		value = uint64(v)
	default:
		return nil, apx.NewError(apx.ErrValueType)
	}
	var hi uint64
	switch e.TypeCode {
	case apx.TypeCodeUint8, apx.TypeCodeByte:
		hi = math.MaxUint8
	case apx.TypeCodeUint16, apx.TypeCodeChar16:
		hi = math.MaxUint16
	case apx.TypeCodeUint32, apx.TypeCodeChar32:
		hi = math.MaxUint32
	default:
		hi = math.MaxUint64
	}
	if value > hi {
		return nil, apx.NewError(apx.ErrValueRange)
	}
	if e.Limits != nil && (value < e.Limits.LowerU || value > e.Limits.UpperU) {
		return nil, apx.NewError(apx.ErrValueRange)
	}
	return value, nil
}
