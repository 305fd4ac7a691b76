package runtime

import (
	"github.com/apx-embedded/goapx/internal/apx"
)

// BytePortMap maps every byte offset inside a packed port data buffer back
// to the port id owning that byte. Built once after the port instances have
// been laid out.
type BytePortMap struct {
	entries []apx.PortID
}

// NewBytePortMap builds the map from the given port instances; totalSize
// must equal the packed buffer size.
func NewBytePortMap(totalSize uint32, ports []*PortInstance) *BytePortMap {
	entries := make([]apx.PortID, totalSize)
	for i := range entries {
		entries[i] = apx.InvalidPortID
	}
	for _, port := range ports {
		for i := port.DataOffset(); i < port.DataOffset()+port.DataSize(); i++ {
			entries[i] = port.ID()
		}
	}
	return &BytePortMap{entries: entries}
}

// Length returns the mapped buffer size.
func (m *BytePortMap) Length() uint32 {
	return uint32(len(m.entries))
}

// Lookup returns the id of the port owning the given byte offset.
func (m *BytePortMap) Lookup(offset uint32) apx.PortID {
	if offset >= uint32(len(m.entries)) {
		return apx.InvalidPortID
	}
	return m.entries[offset]
}
