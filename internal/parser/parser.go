package parser

import (
	"fmt"
	"strings"

	"github.com/apx-embedded/goapx/internal/apx"
)

// SyntaxError annotates a parse failure with the 1-based line number on
// which it occurred.
type SyntaxError struct {
	Line int
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Parser is the text front-end for the node definition language.
type Parser struct {
	majorVersion int
	minorVersion int
}

// NewParser returns a parser accepting the default language versions.
func NewParser() *Parser {
	return &Parser{}
}

// ParseString parses a complete node definition text and returns the
// unfinalized node. The first line must be a version line; a node
// declaration must precede any type or port lines.
func (p *Parser) ParseString(text string) (*Node, error) {
	var node *Node
	sawVersion := false

	lineNumber := 0
	for len(text) > 0 {
		lineNumber++
		var line string
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			line, text = text[:i], text[i+1:]
		} else {
			line, text = text, ""
		}
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		if !sawVersion {
			if err := p.parseVersionLine(line); err != nil {
				return nil, &SyntaxError{Line: lineNumber, Err: err}
			}
			sawVersion = true
			continue
		}

		switch line[0] {
		case 'N':
			name, rest, err := parseDeclarationName(line[1:])
			if err != nil {
				return nil, &SyntaxError{Line: lineNumber, Err: err}
			}
			if rest != "" {
				return nil, &SyntaxError{Line: lineNumber, Err: apx.NewError(apx.ErrStrayCharactersAfterParse)}
			}
			if node != nil {
				return nil, &SyntaxError{Line: lineNumber, Err: apx.NewError(apx.ErrTooManyNodes)}
			}
			node = NewNode(name)
		case 'T':
			if node == nil {
				return nil, &SyntaxError{Line: lineNumber, Err: apx.NewError(apx.ErrParse)}
			}
			if p.majorVersion == 1 && p.minorVersion < 3 {
				return nil, &SyntaxError{Line: lineNumber, Err: apx.NewError(apx.ErrUnsupported)}
			}
			if err := p.parseTypeLine(node, line, lineNumber); err != nil {
				return nil, &SyntaxError{Line: lineNumber, Err: err}
			}
		case 'P':
			if node == nil {
				return nil, &SyntaxError{Line: lineNumber, Err: apx.NewError(apx.ErrParse)}
			}
			if err := p.parsePortLine(node, apx.ProvidePort, line, lineNumber); err != nil {
				return nil, &SyntaxError{Line: lineNumber, Err: err}
			}
		case 'R':
			if node == nil {
				return nil, &SyntaxError{Line: lineNumber, Err: apx.NewError(apx.ErrParse)}
			}
			if err := p.parsePortLine(node, apx.RequirePort, line, lineNumber); err != nil {
				return nil, &SyntaxError{Line: lineNumber, Err: err}
			}
		default:
			return nil, &SyntaxError{Line: lineNumber, Err: apx.NewError(apx.ErrParse)}
		}
	}

	if node == nil {
		return nil, &SyntaxError{Line: lineNumber, Err: apx.NewError(apx.ErrParse)}
	}
	return node, nil
}

// BuildNode parses and finalizes a node definition in one call.
func (p *Parser) BuildNode(text string) (*Node, error) {
	node, err := p.ParseString(text)
	if err != nil {
		return nil, err
	}
	if err := node.Finalize(); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseVersionLine(line string) error {
	var major, minor int
	if n, err := fmt.Sscanf(line, "APX/%d.%d", &major, &minor); n != 2 || err != nil {
		return apx.NewError(apx.ErrInvalidHeader)
	}
	if major != 1 || minor < 2 || minor > 3 {
		return apx.Errorf(apx.ErrUnsupported, "version %d.%d", major, minor)
	}
	p.majorVersion = major
	p.minorVersion = minor
	return nil
}

func (p *Parser) parseTypeLine(node *Node, line string, lineNumber int) error {
	name, rest, err := parseDeclarationName(line[1:])
	if err != nil {
		return err
	}
	elem, attributes, err := parseSignatureAndAttributes(rest)
	if err != nil {
		return err
	}
	dataType := NewDataType(name, lineNumber, elem)
	if attributes != "" {
		typeAttr, err := ParseTypeAttributes(attributes)
		if err != nil {
			return err
		}
		dataType.Attributes = typeAttr
	}
	return node.AppendDataType(dataType)
}

func (p *Parser) parsePortLine(node *Node, portType apx.PortType, line string, lineNumber int) error {
	name, rest, err := parseDeclarationName(line[1:])
	if err != nil {
		return err
	}
	elem, attributes, err := parseSignatureAndAttributes(rest)
	if err != nil {
		return err
	}
	port := NewPort(portType, name, lineNumber, DataSignature{Raw: rest, Element: elem})
	if attributes != "" {
		portAttr, err := ParsePortAttributes(attributes)
		if err != nil {
			return err
		}
		port.Attributes = portAttr
	}
	return node.AppendPort(port)
}

// parseDeclarationName parses the leading quoted name of a declaration and
// returns the remainder of the line.
func parseDeclarationName(s string) (string, string, error) {
	if len(s) == 0 || s[0] != '"' {
		return "", "", apx.NewError(apx.ErrParse)
	}
	end := strings.IndexByte(s[1:], '"')
	if end < 0 {
		return "", "", apx.NewError(apx.ErrUnmatchedString)
	}
	name := s[1 : 1+end]
	if len(name) > rmfMaxNameLen {
		return "", "", apx.NewError(apx.ErrNameTooLong)
	}
	return name, s[2+end:], nil
}

// name limit that keeps a published file name, extension included, within
// the 255-byte file name limit of the RemoteFile layer
const rmfMaxNameLen = 249

// parseSignatureAndAttributes splits the tail of a declaration line into a
// parsed data signature and the raw attribute string following ':'.
func parseSignatureAndAttributes(s string) (*DataElement, string, error) {
	elem, consumed, err := parseSignaturePrefix(s)
	if err != nil {
		return nil, "", err
	}
	rest := s[consumed:]
	if rest == "" {
		return elem, "", nil
	}
	if rest[0] != ':' {
		return nil, "", apx.NewErrorAt(apx.ErrStrayCharactersAfterParse, consumed)
	}
	return elem, rest[1:], nil
}
