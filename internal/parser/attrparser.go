package parser

import (
	"github.com/apx-embedded/goapx/internal/apx"
)

// attrParser walks a comma-separated attribute list. The position is a byte
// offset into the attribute string, reported on the first unrecognized
// token.
type attrParser struct {
	data []byte
	pos  int
}

// ParsePortAttributes parses the attribute list of a port declaration.
// Allowed attributes: "=value", "P" and "Q[n]".
func ParsePortAttributes(attributes string) (*PortAttributes, error) {
	p := &attrParser{data: []byte(attributes)}
	attr := &PortAttributes{}
	for {
		p.skipSpace()
		if p.pos >= len(p.data) {
			break
		}
		if err := p.parseSinglePortAttribute(attr); err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.data) {
			break
		}
		if p.data[p.pos] != ',' {
			return nil, apx.NewErrorAt(apx.ErrInvalidAttribute, p.pos)
		}
		p.pos++
	}
	return attr, nil
}

// ParseTypeAttributes parses the attribute list of a type declaration.
// Allowed attributes: "VT(...)" and "RS(...)".
func ParseTypeAttributes(attributes string) (*TypeAttributes, error) {
	p := &attrParser{data: []byte(attributes)}
	attr := &TypeAttributes{}
	for {
		p.skipSpace()
		if p.pos >= len(p.data) {
			break
		}
		if err := p.parseSingleTypeAttribute(attr); err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.data) {
			break
		}
		if p.data[p.pos] != ',' {
			return nil, apx.NewErrorAt(apx.ErrInvalidAttribute, p.pos)
		}
		p.pos++
	}
	return attr, nil
}

func (p *attrParser) parseSinglePortAttribute(attr *PortAttributes) error {
	switch p.data[p.pos] {
	case '=':
		p.pos++
		value, err := p.parseInitValue()
		if err != nil {
			return err
		}
		attr.InitValue = value
		return nil
	case 'P':
		p.pos++
		attr.IsParameter = true
		return nil
	case 'Q':
		p.pos++
		length, err := p.parseBracketedLength()
		if err != nil {
			return err
		}
		attr.IsQueued = true
		attr.QueueLength = length
		return nil
	}
	return apx.NewErrorAt(apx.ErrInvalidAttribute, p.pos)
}

func (p *attrParser) parseSingleTypeAttribute(attr *TypeAttributes) error {
	start := p.pos
	switch {
	case p.match("VT("):
		vt, err := p.parseValueTable()
		if err != nil {
			return err
		}
		attr.Computations = append(attr.Computations, vt)
		return nil
	case p.match("RS("):
		rs, err := p.parseRationalScaling()
		if err != nil {
			return err
		}
		attr.Computations = append(attr.Computations, rs)
		return nil
	}
	return apx.NewErrorAt(apx.ErrInvalidAttribute, start)
}

// parseValueTable parses the arguments of "VT(lo, hi, "txt"...)" with the
// opening parenthesis already consumed.
func (p *attrParser) parseValueTable() (*ValueTable, error) {
	vt := &ValueTable{}
	var err error
	if vt.Lower, err = p.parseIntArg(); err != nil {
		return nil, err
	}
	if err = p.expectComma(); err != nil {
		return nil, err
	}
	if vt.Upper, err = p.parseIntArg(); err != nil {
		return nil, err
	}
	for {
		if err = p.expectComma(); err != nil {
			return nil, err
		}
		s, err := p.parseStringArg()
		if err != nil {
			return nil, err
		}
		vt.Values = append(vt.Values, s)
		p.skipSpace()
		if p.pos < len(p.data) && p.data[p.pos] == ')' {
			p.pos++
			return vt, nil
		}
	}
}

// parseRationalScaling parses the arguments of
// "RS(lo, hi, offset, num, denom, "unit")" with the opening parenthesis
// already consumed.
func (p *attrParser) parseRationalScaling() (*RationalScaling, error) {
	rs := &RationalScaling{}
	var err error
	if rs.Lower, err = p.parseIntArg(); err != nil {
		return nil, err
	}
	if err = p.expectComma(); err != nil {
		return nil, err
	}
	if rs.Upper, err = p.parseIntArg(); err != nil {
		return nil, err
	}
	if err = p.expectComma(); err != nil {
		return nil, err
	}
	offset, err := p.parseFloatArg()
	if err != nil {
		return nil, err
	}
	rs.Offset = offset
	if err = p.expectComma(); err != nil {
		return nil, err
	}
	num, err := p.parseIntArg()
	if err != nil {
		return nil, err
	}
	rs.Numerator = int32(num)
	if err = p.expectComma(); err != nil {
		return nil, err
	}
	denom, err := p.parseIntArg()
	if err != nil {
		return nil, err
	}
	if denom == 0 {
		return nil, apx.NewErrorAt(apx.ErrValueRange, p.pos)
	}
	rs.Denominator = int32(denom)
	if err = p.expectComma(); err != nil {
		return nil, err
	}
	unit, err := p.parseStringArg()
	if err != nil {
		return nil, err
	}
	rs.Unit = unit
	p.skipSpace()
	if p.pos >= len(p.data) || p.data[p.pos] != ')' {
		return nil, apx.NewErrorAt(apx.ErrInvalidAttribute, p.pos)
	}
	p.pos++
	return rs, nil
}

// parseInitValue parses a single init value: an unsigned integer (decimal or
// 0x hex), a signed integer, a string literal, or a brace-enclosed recursive
// list.
func (p *attrParser) parseInitValue() (interface{}, error) {
	p.skipSpace()
	if p.pos >= len(p.data) {
		return nil, apx.NewErrorAt(apx.ErrInitValue, p.pos)
	}
	switch c := p.data[p.pos]; {
	case c >= '0' && c <= '9':
		value, err := p.parseUnsigned()
		if err != nil {
			return nil, err
		}
		return value, nil
	case c == '-':
		p.pos++
		if p.pos >= len(p.data) || p.data[p.pos] < '0' || p.data[p.pos] > '9' {
			return nil, apx.NewErrorAt(apx.ErrParse, p.pos)
		}
		value, err := p.parseUnsigned()
		if err != nil {
			return nil, err
		}
		if value > 1<<63 {
			return nil, apx.NewErrorAt(apx.ErrNumberTooLarge, p.pos)
		}
		return -int64(value), nil
	case c == '"':
		return p.parseString()
	case c == '{':
		return p.parseInitList()
	}
	return nil, apx.NewErrorAt(apx.ErrParse, p.pos)
}

func (p *attrParser) parseInitList() (interface{}, error) {
	open := p.pos
	p.pos++ // '{'
	list := []interface{}{}
	for {
		p.skipSpace()
		if p.pos >= len(p.data) {
			return nil, apx.NewErrorAt(apx.ErrUnmatchedBrace, open)
		}
		if p.data[p.pos] == '}' {
			p.pos++
			return list, nil
		}
		value, err := p.parseInitValue()
		if err != nil {
			return nil, err
		}
		list = append(list, value)
		p.skipSpace()
		if p.pos >= len(p.data) {
			return nil, apx.NewErrorAt(apx.ErrUnmatchedBrace, open)
		}
		switch p.data[p.pos] {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, apx.NewErrorAt(apx.ErrParse, p.pos)
		}
	}
}

func (p *attrParser) parseBracketedLength() (uint32, error) {
	p.skipSpace()
	if p.pos >= len(p.data) || p.data[p.pos] != '[' {
		return 0, apx.NewErrorAt(apx.ErrInvalidAttribute, p.pos)
	}
	open := p.pos
	p.pos++
	value, err := p.parseUnsigned()
	if err != nil {
		return 0, err
	}
	if value == 0 || value > 0xFFFFFFFF {
		return 0, apx.NewErrorAt(apx.ErrValueRange, open)
	}
	if p.pos >= len(p.data) || p.data[p.pos] != ']' {
		return 0, apx.NewErrorAt(apx.ErrUnmatchedBracket, open)
	}
	p.pos++
	return uint32(value), nil
}

func (p *attrParser) parseIntArg() (int64, error) {
	p.skipSpace()
	neg := false
	if p.pos < len(p.data) && p.data[p.pos] == '-' {
		neg = true
		p.pos++
	}
	value, err := p.parseUnsigned()
	if err != nil {
		return 0, err
	}
	if value > 1<<63-1 {
		return 0, apx.NewErrorAt(apx.ErrNumberTooLarge, p.pos)
	}
	if neg {
		return -int64(value), nil
	}
	return int64(value), nil
}

func (p *attrParser) parseFloatArg() (float64, error) {
	p.skipSpace()
	start := p.pos
	if p.pos < len(p.data) && (p.data[p.pos] == '-' || p.data[p.pos] == '+') {
		p.pos++
	}
	digits := 0
	for p.pos < len(p.data) && p.data[p.pos] >= '0' && p.data[p.pos] <= '9' {
		p.pos++
		digits++
	}
	if p.pos < len(p.data) && p.data[p.pos] == '.' {
		p.pos++
		for p.pos < len(p.data) && p.data[p.pos] >= '0' && p.data[p.pos] <= '9' {
			p.pos++
			digits++
		}
	}
	if digits == 0 {
		return 0, apx.NewErrorAt(apx.ErrParse, start)
	}
	var value float64
	neg := p.data[start] == '-'
	i := start
	if p.data[i] == '-' || p.data[i] == '+' {
		i++
	}
	for ; i < p.pos && p.data[i] != '.'; i++ {
		value = value*10 + float64(p.data[i]-'0')
	}
	if i < p.pos && p.data[i] == '.' {
		i++
		scale := 0.1
		for ; i < p.pos; i++ {
			value += float64(p.data[i]-'0') * scale
			scale /= 10
		}
	}
	if neg {
		value = -value
	}
	return value, nil
}

func (p *attrParser) parseStringArg() (string, error) {
	p.skipSpace()
	if p.pos >= len(p.data) || p.data[p.pos] != '"' {
		return "", apx.NewErrorAt(apx.ErrParse, p.pos)
	}
	return p.parseString()
}

func (p *attrParser) parseString() (string, error) {
	open := p.pos
	p.pos++ // '"'
	var sb []byte
	for p.pos < len(p.data) {
		c := p.data[p.pos]
		if c == '\\' && p.pos+1 < len(p.data) {
			p.pos++
			sb = append(sb, p.data[p.pos])
			p.pos++
			continue
		}
		if c == '"' {
			p.pos++
			return string(sb), nil
		}
		sb = append(sb, c)
		p.pos++
	}
	return "", apx.NewErrorAt(apx.ErrUnmatchedString, open)
}

func (p *attrParser) parseUnsigned() (uint64, error) {
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

func (p *attrParser) expectComma() error {
	p.skipSpace()
	if p.pos >= len(p.data) || p.data[p.pos] != ',' {
		return apx.NewErrorAt(apx.ErrParse, p.pos)
	}
	p.pos++
	return nil
}

func (p *attrParser) match(prefix string) bool {
	if len(p.data)-p.pos < len(prefix) {
		return false
	}
	if string(p.data[p.pos:p.pos+len(prefix)]) == prefix {
		p.pos += len(prefix)
		return true
	}
	return false
}

func (p *attrParser) skipSpace() {
	for p.pos < len(p.data) && (p.data[p.pos] == ' ' || p.data[p.pos] == '\t') {
		p.pos++
	}
}
