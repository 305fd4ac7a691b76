package parser

import (
	"github.com/apx-embedded/goapx/internal/apx"
)

// sigParser is the recursive-descent state for one signature parse. The
// position is a byte offset into the signature and is reported on error.
type sigParser struct {
	data []byte
	pos  int
}

// ParseSignature parses a data signature string into a freshly owned element
// tree. The whole input must be consumed; trailing characters are an error.
func ParseSignature(signature string) (*DataElement, error) {
	elem, n, err := parseSignaturePrefix(signature)
	if err != nil {
		return nil, err
	}
	if n != len(signature) {
		return nil, apx.NewErrorAt(apx.ErrStrayCharactersAfterParse, n)
	}
	return elem, nil
}

// parseSignaturePrefix parses one element starting at the beginning of the
// input and returns it together with the number of bytes consumed.
func parseSignaturePrefix(signature string) (*DataElement, int, error) {
	p := &sigParser{data: []byte(signature)}
	elem, err := p.parseElement()
	if err != nil {
		return nil, p.pos, err
	}
	return elem, p.pos, nil
}

func (p *sigParser) peek() (byte, bool) {
	if p.pos >= len(p.data) {
		return 0, false
	}
	return p.data[p.pos], true
}

func (p *sigParser) parseElement() (*DataElement, error) {
	c, ok := p.peek()
	if !ok {
		return nil, apx.NewErrorAt(apx.ErrDataSignature, p.pos)
	}
	switch c {
	case '{':
		return p.parseRecord()
	case 'T':
		return p.parseTypeReference()
	}
	return p.parseScalar()
}

func (p *sigParser) parseRecord() (*DataElement, error) {
	open := p.pos
	p.pos++ // '{'
	elem := NewDataElement(apx.TypeCodeRecord)
	for {
		c, ok := p.peek()
		if !ok {
			return nil, apx.NewErrorAt(apx.ErrUnmatchedBrace, open)
		}
		if c == '}' {
			p.pos++
			break
		}
		if c != '"' {
			return nil, apx.NewErrorAt(apx.ErrDataSignature, p.pos)
		}
		name, err := p.parseQuotedName()
		if err != nil {
			return nil, err
		}
		child, err := p.parseElement()
		if err != nil {
			return nil, err
		}
		child.Name = name
		elem.AppendChild(child)
	}
	if len(elem.Elements) == 0 {
		return nil, apx.NewErrorAt(apx.ErrEmptyRecord, open)
	}
	if err := p.parseOptionalArray(elem); err != nil {
		return nil, err
	}
	return elem, nil
}

func (p *sigParser) parseScalar() (*DataElement, error) {
	c, _ := p.peek()
	var typeCode apx.TypeCode
	switch c {
	case 'C':
		typeCode = apx.TypeCodeUint8
	case 'S':
		typeCode = apx.TypeCodeUint16
	case 'L':
		typeCode = apx.TypeCodeUint32
	case 'Q':
		typeCode = apx.TypeCodeUint64
	case 'c':
		typeCode = apx.TypeCodeInt8
	case 's':
		typeCode = apx.TypeCodeInt16
	case 'l':
		typeCode = apx.TypeCodeInt32
	case 'q':
		typeCode = apx.TypeCodeInt64
	case 'a':
		typeCode = apx.TypeCodeChar
	case 'A':
		typeCode = apx.TypeCodeChar8
	case 'u':
		typeCode = apx.TypeCodeChar16
	case 'U':
		typeCode = apx.TypeCodeChar32
	case 'b':
		typeCode = apx.TypeCodeBool
	case 'B':
		typeCode = apx.TypeCodeByte
	default:
		return nil, apx.NewErrorAt(apx.ErrDataSignature, p.pos)
	}
	p.pos++
	elem := NewDataElement(typeCode)
	if c, ok := p.peek(); ok && c == '(' {
		switch typeCode {
		case apx.TypeCodeChar, apx.TypeCodeChar8, apx.TypeCodeChar16, apx.TypeCodeChar32:
			// character types do not accept limits
			return nil, apx.NewErrorAt(apx.ErrDataSignature, p.pos)
		}
		if err := p.parseLimits(elem); err != nil {
			return nil, err
		}
	}
	if err := p.parseOptionalArray(elem); err != nil {
		return nil, err
	}
	return elem, nil
}

func (p *sigParser) parseTypeReference() (*DataElement, error) {
	p.pos++ // 'T'
	c, ok := p.peek()
	if !ok || c != '[' {
		return nil, apx.NewErrorAt(apx.ErrExpectedBracket, p.pos)
	}
	open := p.pos
	p.pos++
	var elem *DataElement
	c, ok = p.peek()
	if !ok {
		return nil, apx.NewErrorAt(apx.ErrUnmatchedBracket, open)
	}
	if c == '"' {
		name, err := p.parseQuotedName()
		if err != nil {
			return nil, err
		}
		elem = NewDataElement(apx.TypeCodeRefName)
		elem.TypeRefName = name
	} else {
		value, err := p.parseUnsigned()
		if err != nil {
			return nil, err
		}
		elem = NewDataElement(apx.TypeCodeRefID)
		elem.TypeRefID = uint32(value)
	}
	c, ok = p.peek()
	if !ok || c != ']' {
		return nil, apx.NewErrorAt(apx.ErrUnmatchedBracket, open)
	}
	p.pos++
	// a type reference may carry an array suffix but never its own limits
	if c, ok := p.peek(); ok && c == '(' {
		return nil, apx.NewErrorAt(apx.ErrDataSignature, p.pos)
	}
	if err := p.parseOptionalArray(elem); err != nil {
		return nil, err
	}
	return elem, nil
}

func (p *sigParser) parseQuotedName() (string, error) {
	open := p.pos
	p.pos++ // '"'
	start := p.pos
	for p.pos < len(p.data) {
		if p.data[p.pos] == '"' {
			name := string(p.data[start:p.pos])
			p.pos++
			return name, nil
		}
		p.pos++
	}
	return "", apx.NewErrorAt(apx.ErrUnmatchedString, open)
}

func (p *sigParser) parseLimits(elem *DataElement) error {
	open := p.pos
	p.pos++ // '('
	if elem.TypeCode.IsSigned() {
		lower, err := p.parseSigned()
		if err != nil {
			return err
		}
		if err := p.expect(','); err != nil {
			return err
		}
		upper, err := p.parseSigned()
		if err != nil {
			return err
		}
		if c, ok := p.peek(); !ok || c != ')' {
			return apx.NewErrorAt(apx.ErrUnmatchedBracket, open)
		}
		p.pos++
		if lower > upper {
			return apx.NewErrorAt(apx.ErrValueRange, open)
		}
		elem.SetLimitsSigned(lower, upper)
		return nil
	}
	lower, err := p.parseUnsigned()
	if err != nil {
		return err
	}
	if err := p.expect(','); err != nil {
		return err
	}
	upper, err := p.parseUnsigned()
	if err != nil {
		return err
	}
	if c, ok := p.peek(); !ok || c != ')' {
		return apx.NewErrorAt(apx.ErrUnmatchedBracket, open)
	}
	p.pos++
	if lower > upper {
		return apx.NewErrorAt(apx.ErrValueRange, open)
	}
	elem.SetLimitsUnsigned(lower, upper)
	return nil
}

func (p *sigParser) parseOptionalArray(elem *DataElement) error {
	c, ok := p.peek()
	if !ok || c != '[' {
		return nil
	}
	open := p.pos
	p.pos++
	length, err := p.parseUnsigned()
	if err != nil {
		return err
	}
	if length == 0 || length > 0xFFFFFFFF {
		return apx.NewErrorAt(apx.ErrValueRange, open)
	}
	dynamic := false
	if c, ok := p.peek(); ok && c == '*' {
		dynamic = true
		p.pos++
	}
	if c, ok := p.peek(); !ok || c != ']' {
		return apx.NewErrorAt(apx.ErrUnmatchedBracket, open)
	}
	p.pos++
	elem.ArrayLen = uint32(length)
	elem.IsDynamicArray = dynamic
	return nil
}

func (p *sigParser) expect(c byte) error {
	got, ok := p.peek()
	if !ok || got != c {
		return apx.NewErrorAt(apx.ErrDataSignature, p.pos)
	}
	p.pos++
	return nil
}

func (p *sigParser) parseUnsigned() (uint64, error) {
	start := p.pos
	base := uint64(10)
	if p.pos+1 < len(p.data) && p.data[p.pos] == '0' && p.data[p.pos+1] == 'x' {
		base = 16
		p.pos += 2
	}
	var value uint64
	digits := 0
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		var d uint64
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case base == 16 && c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		case base == 16 && c >= 'A' && c <= 'F':
			d = uint64(c-'A') + 10
		default:
			goto done
		}
		if value > (0xFFFFFFFFFFFFFFFF-d)/base {
			return 0, apx.NewErrorAt(apx.ErrNumberTooLarge, start)
		}
		value = value*base + d
		digits++
		p.pos++
	}
done:
	if digits == 0 {
		return 0, apx.NewErrorAt(apx.ErrParse, start)
	}
	return value, nil
}

func (p *sigParser) parseSigned() (int64, error) {
	neg := false
	if c, ok := p.peek(); ok && c == '-' {
		neg = true
		p.pos++
	}
	value, err := p.parseUnsigned()
	if err != nil {
		return 0, err
	}
	if neg {
		if value > 1<<63 {
			return 0, apx.NewErrorAt(apx.ErrNumberTooLarge, p.pos)
		}
		return -int64(value), nil
	}
	if value > 1<<63-1 {
		return 0, apx.NewErrorAt(apx.ErrNumberTooLarge, p.pos)
	}
	return int64(value), nil
}
