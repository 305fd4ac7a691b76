// Package runtime holds the runtime projection of parsed nodes: packed port
// buffers, port instances with pack/unpack programs, the byte-offset map and
// the node manager that builds instances from text or from remote files.
package runtime

import (
	"sync"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/rmf"
)

// NodeData is the mutable runtime state of one node instance: definition
// bytes, packed provide and require buffers and per-port connection counts.
// All access goes through the instance lock; provide reads and require
// writes run concurrently with the network I/O goroutine.
type NodeData struct {
	mu sync.Mutex

	definitionData  []byte
	providePortData []byte
	requirePortData []byte

	numProvidePorts uint32
	numRequirePorts uint32

	provideConnectionCount []uint32
	requireConnectionCount []uint32

	checksumType rmf.DigestType
	checksumData []byte
}

// NewNodeData returns empty node data.
func NewNodeData() *NodeData {
	return &NodeData{}
}

// CreateDefinitionData initializes the definition buffer from the given
// source bytes, or as zeros when data is nil.
func (d *NodeData) CreateDefinitionData(data []byte, size uint32) error {
	if size > apx.MaxDefinitionSize {
		return apx.NewError(apx.ErrFileTooLarge)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.definitionData = make([]byte, size)
	copy(d.definitionData, data)
	return nil
}

// WriteDefinitionData writes into the definition buffer at the given offset.
func (d *NodeData) WriteDefinitionData(offset uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(offset)+len(data) > len(d.definitionData) {
		return apx.NewError(apx.ErrInvalidWrite)
	}
	copy(d.definitionData[offset:], data)
	return nil
}

// DefinitionData returns a snapshot of the definition bytes.
func (d *NodeData) DefinitionData() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.definitionData...)
}

// DefinitionSize returns the definition buffer size.
func (d *NodeData) DefinitionSize() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint32(len(d.definitionData))
}

// CreatePortData initializes both packed port buffers and the connection
// count arrays.
func (d *NodeData) CreatePortData(numProvidePorts, numRequirePorts uint32, provideInit, requireInit []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.numProvidePorts = numProvidePorts
	d.numRequirePorts = numRequirePorts
	d.providePortData = append([]byte(nil), provideInit...)
	d.requirePortData = append([]byte(nil), requireInit...)
	d.provideConnectionCount = make([]uint32, numProvidePorts)
	d.requireConnectionCount = make([]uint32, numRequirePorts)
}

// NumProvidePorts returns the provide port count.
func (d *NodeData) NumProvidePorts() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numProvidePorts
}

// NumRequirePorts returns the require port count.
func (d *NodeData) NumRequirePorts() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numRequirePorts
}

// ProvidePortDataSize returns the packed provide buffer size.
func (d *NodeData) ProvidePortDataSize() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint32(len(d.providePortData))
}

// RequirePortDataSize returns the packed require buffer size.
func (d *NodeData) RequirePortDataSize() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint32(len(d.requirePortData))
}

// WriteProvidePortData writes packed bytes into the provide buffer.
func (d *NodeData) WriteProvidePortData(offset uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(offset)+len(data) > len(d.providePortData) {
		return apx.NewError(apx.ErrInvalidWrite)
	}
	copy(d.providePortData[offset:], data)
	return nil
}

// ReadProvidePortData copies packed bytes out of the provide buffer.
func (d *NodeData) ReadProvidePortData(offset uint32, size uint32) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(offset)+int(size) > len(d.providePortData) {
		return nil, apx.NewError(apx.ErrInvalidArgument)
	}
	return append([]byte(nil), d.providePortData[offset:offset+size]...), nil
}

// ProvidePortDataSnapshot returns a copy of the whole provide buffer.
func (d *NodeData) ProvidePortDataSnapshot() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.providePortData...)
}

// WriteRequirePortData writes packed bytes into the require buffer.
func (d *NodeData) WriteRequirePortData(offset uint32, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(offset)+len(data) > len(d.requirePortData) {
		return apx.NewError(apx.ErrInvalidWrite)
	}
	copy(d.requirePortData[offset:], data)
	return nil
}

// ReadRequirePortData copies packed bytes out of the require buffer.
func (d *NodeData) ReadRequirePortData(offset uint32, size uint32) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(offset)+int(size) > len(d.requirePortData) {
		return nil, apx.NewError(apx.ErrInvalidArgument)
	}
	return append([]byte(nil), d.requirePortData[offset:offset+size]...), nil
}

// RequirePortDataSnapshot returns a copy of the whole require buffer.
func (d *NodeData) RequirePortDataSnapshot() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.requirePortData...)
}

// IncProvideConnectionCount bumps the connection count of a provide port and
// returns the new count.
func (d *NodeData) IncProvideConnectionCount(portID apx.PortID) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(portID) >= len(d.provideConnectionCount) {
		return 0
	}
	d.provideConnectionCount[portID]++
	return d.provideConnectionCount[portID]
}

// DecProvideConnectionCount drops the connection count of a provide port.
func (d *NodeData) DecProvideConnectionCount(portID apx.PortID) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(portID) >= len(d.provideConnectionCount) || d.provideConnectionCount[portID] == 0 {
		return 0
	}
	d.provideConnectionCount[portID]--
	return d.provideConnectionCount[portID]
}

// IncRequireConnectionCount bumps the connection count of a require port.
func (d *NodeData) IncRequireConnectionCount(portID apx.PortID) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(portID) >= len(d.requireConnectionCount) {
		return 0
	}
	d.requireConnectionCount[portID]++
	return d.requireConnectionCount[portID]
}

// DecRequireConnectionCount drops the connection count of a require port.
func (d *NodeData) DecRequireConnectionCount(portID apx.PortID) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(portID) >= len(d.requireConnectionCount) || d.requireConnectionCount[portID] == 0 {
		return 0
	}
	d.requireConnectionCount[portID]--
	return d.requireConnectionCount[portID]
}

// ProvideConnectionCount returns the connection count of a provide port.
func (d *NodeData) ProvideConnectionCount(portID apx.PortID) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(portID) >= len(d.provideConnectionCount) {
		return 0
	}
	return d.provideConnectionCount[portID]
}

// RequireConnectionCount returns the connection count of a require port.
func (d *NodeData) RequireConnectionCount(portID apx.PortID) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(portID) >= len(d.requireConnectionCount) {
		return 0
	}
	return d.requireConnectionCount[portID]
}

// ProvideConnectionCountData renders the provide-side connection counts as
// one byte per port, saturating at 255. This is the payload of the .cout
// file.
func (d *NodeData) ProvideConnectionCountData() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return countBytes(d.provideConnectionCount)
}

// RequireConnectionCountData renders the require-side connection counts;
// the payload of the .cin file.
func (d *NodeData) RequireConnectionCountData() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return countBytes(d.requireConnectionCount)
}

func countBytes(counts []uint32) []byte {
	data := make([]byte, len(counts))
	for i, c := range counts {
		if c > 0xFF {
			c = 0xFF
		}
		data[i] = byte(c)
	}
	return data
}

// SetChecksum stores the definition checksum.
func (d *NodeData) SetChecksum(checksumType rmf.DigestType, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checksumType = checksumType
	d.checksumData = append([]byte(nil), data...)
}

// Checksum returns the definition checksum.
func (d *NodeData) Checksum() (rmf.DigestType, []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.checksumType, append([]byte(nil), d.checksumData...)
}
