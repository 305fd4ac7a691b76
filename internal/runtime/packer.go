package runtime

import (
	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/parser"
)

// createPackedInitData renders a port's proper init value into its packed
// byte layout. A nil value produces zeroed bytes of the right size; queued
// ports start with an empty queue.
func createPackedInitData(port *parser.Port) ([]byte, error) {
	size, err := port.PackedSize()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if port.IsQueued() {
		// queue starts empty; the current-length prefix stays zero
		return buf, nil
	}
	value := port.Attributes.ProperInitValue
	if value == nil {
		return buf, nil
	}
	if err := packValue(buf, port.EffectiveElement(), value); err != nil {
		return nil, err
	}
	return buf, nil
}

// packValue writes one proper init value into buf, which must be exactly
// the element's packed size.
func packValue(buf []byte, elem *parser.DataElement, value interface{}) error {
	if elem.TypeCode == apx.TypeCodeRecord {
		return packRecord(buf, elem, value)
	}
	if elem.IsArray() {
		return packArray(buf, elem, value)
	}
	return packScalar(buf, elem, value)
}

func packRecord(buf []byte, elem *parser.DataElement, value interface{}) error {
	if elem.IsArray() {
		items, ok := value.([]interface{})
		if !ok {
			return apx.NewError(apx.ErrValueType)
		}
		itemSize := len(buf) / int(elem.ArrayLen)
		for i, item := range items {
			if err := packRecordFields(buf[i*itemSize:(i+1)*itemSize], elem, item); err != nil {
				return err
			}
		}
		return nil
	}
	return packRecordFields(buf, elem, value)
}

func packRecordFields(buf []byte, elem *parser.DataElement, value interface{}) error {
	fields, ok := value.(map[string]interface{})
	if !ok {
		return apx.NewError(apx.ErrValueType)
	}
	offset := 0
	for _, child := range elem.Elements {
		size, err := child.PackedSize()
		if err != nil {
			return err
		}
		fieldValue, ok := fields[child.Name]
		if ok {
			if err := packValue(buf[offset:offset+size], child, fieldValue); err != nil {
				return err
			}
		}
		offset += size
	}
	return nil
}

func packArray(buf []byte, elem *parser.DataElement, value interface{}) error {
	if elem.IsDynamicArray {
		// only empty dynamic arrays are packable; the length prefix is zero
		return nil
	}
	switch v := value.(type) {
	case string:
		copy(buf, v)
		return nil
	case []interface{}:
		itemSize := len(buf) / int(elem.ArrayLen)
		for i, item := range v {
			if err := packScalar(buf[i*itemSize:(i+1)*itemSize], elem, item); err != nil {
				return err
			}
		}
		return nil
	}
	return apx.NewError(apx.ErrValueType)
}

func packScalar(buf []byte, elem *parser.DataElement, value interface{}) error {
	var bits uint64
	switch v := value.(type) {
	case uint64:
		bits = v
	case int64:
		bits = uint64(v)
	case bool:
		if v {
			bits = 1
		}
	default:
		return apx.NewError(apx.ErrValueType)
	}
	var size int
	switch elem.TypeCode {
	case apx.TypeCodeUint8, apx.TypeCodeInt8, apx.TypeCodeChar, apx.TypeCodeChar8,
		apx.TypeCodeBool, apx.TypeCodeByte:
		size = 1
	case apx.TypeCodeUint16, apx.TypeCodeInt16, apx.TypeCodeChar16:
		size = 2
	case apx.TypeCodeUint32, apx.TypeCodeInt32, apx.TypeCodeChar32:
		size = 4
	case apx.TypeCodeUint64, apx.TypeCodeInt64:
		size = 8
	default:
		return apx.NewError(apx.ErrValueType)
	}
	for i := 0; i < size; i++ {
		buf[i] = byte(bits >> (8 * i))
	}
	return nil
}
