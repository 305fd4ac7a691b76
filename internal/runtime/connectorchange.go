package runtime

import (
	"github.com/apx-embedded/goapx/internal/apx"
)

// ConnectorChangeEntry records the connect/disconnect delta of one port.
// The counter is 0 for no change, +1/-1 for a single connect or disconnect
// carrying the peer inline, and |n|>1 once the entry spills into a list of
// peers.
type ConnectorChangeEntry struct {
	Count int32
	peer  *PortInstance   // |Count| == 1
	peers []*PortInstance // |Count| > 1
}

// AddConnect records a connect to the given peer.
func (e *ConnectorChangeEntry) AddConnect(peer *PortInstance) error {
	if e.Count < 0 {
		return apx.NewError(apx.ErrInvalidState)
	}
	switch e.Count {
	case 0:
		e.peer = peer
	case 1:
		e.peers = []*PortInstance{e.peer, peer}
		e.peer = nil
	default:
		e.peers = append(e.peers, peer)
	}
	e.Count++
	return nil
}

// AddDisconnect records a disconnect from the given peer.
func (e *ConnectorChangeEntry) AddDisconnect(peer *PortInstance) error {
	if e.Count > 0 {
		return apx.NewError(apx.ErrInvalidState)
	}
	switch e.Count {
	case 0:
		e.peer = peer
	case -1:
		e.peers = []*PortInstance{e.peer, peer}
		e.peer = nil
	default:
		e.peers = append(e.peers, peer)
	}
	e.Count--
	return nil
}

// Peers returns the recorded peer ports in insertion order.
func (e *ConnectorChangeEntry) Peers() []*PortInstance {
	switch {
	case e.Count == 0:
		return nil
	case e.Count == 1 || e.Count == -1:
		return []*PortInstance{e.peer}
	}
	return e.peers
}

// ConnectorChangeTable tracks connect/disconnect deltas for every port on
// one side of a node instance.
type ConnectorChangeTable struct {
	Entries []ConnectorChangeEntry
}

// NewConnectorChangeTable returns a table with one entry per port.
func NewConnectorChangeTable(numPorts int) *ConnectorChangeTable {
	return &ConnectorChangeTable{Entries: make([]ConnectorChangeEntry, numPorts)}
}

// Entry returns the entry for the given port id, or nil.
func (t *ConnectorChangeTable) Entry(portID apx.PortID) *ConnectorChangeEntry {
	if int(portID) >= len(t.Entries) {
		return nil
	}
	return &t.Entries[portID]
}

// Connect records that the port with the given id gained the peer.
func (t *ConnectorChangeTable) Connect(portID apx.PortID, peer *PortInstance) error {
	entry := t.Entry(portID)
	if entry == nil {
		return apx.NewError(apx.ErrInvalidArgument)
	}
	return entry.AddConnect(peer)
}

// Disconnect records that the port with the given id lost the peer.
func (t *ConnectorChangeTable) Disconnect(portID apx.PortID, peer *PortInstance) error {
	entry := t.Entry(portID)
	if entry == nil {
		return apx.NewError(apx.ErrInvalidArgument)
	}
	return entry.AddDisconnect(peer)
}
