package runtime

import (
	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/parser"
)

// PortInstance is the runtime projection of one port: its packed location
// inside the port data buffer, the emitted pack/unpack programs and the
// signature string used as a routing key.
type PortInstance struct {
	node *NodeInstance

	portType apx.PortType
	id       apx.PortID
	name     string

	effective *parser.DataElement

	packProgram   Program
	unpackProgram Program // require ports only

	dataOffset uint32
	dataSize   uint32

	portSignature  string
	hasDynamicData bool

	computations *parser.TypeAttributes

	queueLength uint32
	isParameter bool
}

func newPortInstance(node *NodeInstance, port *parser.Port, offset uint32) (*PortInstance, error) {
	size, err := port.PackedSize()
	if err != nil {
		return nil, err
	}
	effective := port.EffectiveElement()
	p := &PortInstance{
		node:           node,
		portType:       port.Type,
		id:             port.ID,
		name:           port.Name,
		effective:      effective,
		dataOffset:     offset,
		dataSize:       uint32(size),
		portSignature:  `"` + port.Name + `"` + effective.String(true),
		hasDynamicData: hasDynamicData(effective),
		computations:   port.ReferencedTypeAttributes(),
		queueLength:    port.QueueLength(),
		isParameter:    port.IsParameter(),
	}
	p.packProgram, err = CreateProgram(effective, PackProgram, p.queueLength)
	if err != nil {
		return nil, err
	}
	if port.Type == apx.RequirePort {
		p.unpackProgram, err = CreateProgram(effective, UnpackProgram, p.queueLength)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Node returns the owning node instance.
func (p *PortInstance) Node() *NodeInstance { return p.node }

// PortType returns which side of the node the port belongs to.
func (p *PortInstance) PortType() apx.PortType { return p.portType }

// ID returns the port id within its side.
func (p *PortInstance) ID() apx.PortID { return p.id }

// Name returns the declared port name.
func (p *PortInstance) Name() string { return p.name }

// EffectiveElement returns the flattened data element.
func (p *PortInstance) EffectiveElement() *parser.DataElement { return p.effective }

// DataOffset returns the port's byte offset inside the packed buffer.
func (p *PortInstance) DataOffset() uint32 { return p.dataOffset }

// DataSize returns the port's packed byte size.
func (p *PortInstance) DataSize() uint32 { return p.dataSize }

// PackProgram returns the emitted pack program.
func (p *PortInstance) PackProgram() Program { return p.packProgram }

// UnpackProgram returns the emitted unpack program (require ports only).
func (p *PortInstance) UnpackProgram() Program { return p.unpackProgram }

// PortSignature returns the routing key: the quoted port name followed by
// the normalized effective signature. HasDynamicData reports whether the
// signature contains dynamic arrays.
func (p *PortInstance) PortSignature() (string, bool) {
	return p.portSignature, p.hasDynamicData
}

// Computations returns the value tables and scalings of the referenced
// type, or nil.
func (p *PortInstance) Computations() *parser.TypeAttributes { return p.computations }

// QueueLength returns the queue length of a queued port, 0 otherwise.
func (p *PortInstance) QueueLength() uint32 { return p.queueLength }

// IsParameter reports whether the port is a parameter.
func (p *PortInstance) IsParameter() bool { return p.isParameter }
