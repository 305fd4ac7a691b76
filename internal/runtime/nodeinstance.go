package runtime

import (
	"crypto/sha256"
	"sync"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/filemgr"
	"github.com/apx-embedded/goapx/internal/parser"
	"github.com/apx-embedded/goapx/internal/rmf"
)

// NodeInstance is the runtime realization of one parsed node on a
// connection: port instances, packed buffers, the byte-offset map, the
// connector change tables and the three published files.
type NodeInstance struct {
	name string
	mode apx.Mode

	node *parser.Node
	data *NodeData

	providePorts []*PortInstance
	requirePorts []*PortInstance

	bytePortMap *BytePortMap

	provideChanges *ConnectorChangeTable
	requireChanges *ConnectorChangeTable

	// server-side routing: for every provide port, the require ports
	// currently routed to it
	connectorMu    sync.Mutex
	connectorTable [][]*PortInstance

	definitionFile *filemgr.File
	provideFile    *filemgr.File
	requireFile    *filemgr.File

	stateMu sync.Mutex
	state   apx.DataState
}

// NewNodeInstance returns an empty instance in the Init state.
func NewNodeInstance(name string, mode apx.Mode) *NodeInstance {
	return &NodeInstance{
		name:  name,
		mode:  mode,
		data:  NewNodeData(),
		state: apx.DataStateInit,
	}
}

// Name returns the node name.
func (n *NodeInstance) Name() string { return n.name }

// Mode returns the side this instance lives on.
func (n *NodeInstance) Mode() apx.Mode { return n.mode }

// Node returns the parsed node, or nil before the definition is built.
func (n *NodeInstance) Node() *parser.Node { return n.node }

// NodeData returns the instance's mutable runtime state.
func (n *NodeInstance) NodeData() *NodeData { return n.data }

// State returns the instance's data state.
func (n *NodeInstance) State() apx.DataState {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state
}

// SetState moves the instance to a new data state.
func (n *NodeInstance) SetState(state apx.DataState) {
	n.stateMu.Lock()
	n.state = state
	n.stateMu.Unlock()
}

// NumProvidePorts returns the provide port count.
func (n *NodeInstance) NumProvidePorts() int { return len(n.providePorts) }

// NumRequirePorts returns the require port count.
func (n *NodeInstance) NumRequirePorts() int { return len(n.requirePorts) }

// ProvidePort returns the provide port instance with the given id, or nil.
func (n *NodeInstance) ProvidePort(id apx.PortID) *PortInstance {
	if int(id) < len(n.providePorts) {
		return n.providePorts[id]
	}
	return nil
}

// RequirePort returns the require port instance with the given id, or nil.
func (n *NodeInstance) RequirePort(id apx.PortID) *PortInstance {
	if int(id) < len(n.requirePorts) {
		return n.requirePorts[id]
	}
	return nil
}

// ProvidePorts returns all provide port instances in id order.
func (n *NodeInstance) ProvidePorts() []*PortInstance { return n.providePorts }

// RequirePorts returns all require port instances in id order.
func (n *NodeInstance) RequirePorts() []*PortInstance { return n.requirePorts }

// FindPort returns the port instance with the given name, or nil.
func (n *NodeInstance) FindPort(name string) *PortInstance {
	for _, p := range n.providePorts {
		if p.Name() == name {
			return p
		}
	}
	for _, p := range n.requirePorts {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// BytePortMap returns the byte-offset to port-id map.
func (n *NodeInstance) BytePortMap() *BytePortMap { return n.bytePortMap }

// ProvideChanges returns the provide-side connector change table.
func (n *NodeInstance) ProvideChanges() *ConnectorChangeTable { return n.provideChanges }

// RequireChanges returns the require-side connector change table.
func (n *NodeInstance) RequireChanges() *ConnectorChangeTable { return n.requireChanges }

// SwapProvideChanges replaces the provide change table with a fresh one and
// returns the old table for notification processing.
func (n *NodeInstance) SwapProvideChanges() *ConnectorChangeTable {
	old := n.provideChanges
	n.provideChanges = NewConnectorChangeTable(len(n.providePorts))
	return old
}

// SwapRequireChanges replaces the require change table with a fresh one.
func (n *NodeInstance) SwapRequireChanges() *ConnectorChangeTable {
	old := n.requireChanges
	n.requireChanges = NewConnectorChangeTable(len(n.requirePorts))
	return old
}

// LockConnectorTable takes the server routing table lock.
func (n *NodeInstance) LockConnectorTable() { n.connectorMu.Lock() }

// UnlockConnectorTable releases the server routing table lock.
func (n *NodeInstance) UnlockConnectorTable() { n.connectorMu.Unlock() }

// InsertConnector adds a require port to a provide port's routing list.
// Caller holds the connector table lock.
func (n *NodeInstance) InsertConnector(provideID apx.PortID, peer *PortInstance) error {
	if int(provideID) >= len(n.connectorTable) {
		return apx.NewError(apx.ErrInvalidArgument)
	}
	n.connectorTable[provideID] = append(n.connectorTable[provideID], peer)
	return nil
}

// RemoveConnector removes a require port from a provide port's routing
// list. Caller holds the connector table lock.
func (n *NodeInstance) RemoveConnector(provideID apx.PortID, peer *PortInstance) error {
	if int(provideID) >= len(n.connectorTable) {
		return apx.NewError(apx.ErrInvalidArgument)
	}
	list := n.connectorTable[provideID]
	for i, p := range list {
		if p == peer {
			n.connectorTable[provideID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return apx.NewError(apx.ErrNotFound)
}

// Connectors returns the require ports routed to a provide port. Caller
// holds the connector table lock.
func (n *NodeInstance) Connectors(provideID apx.PortID) []*PortInstance {
	if int(provideID) >= len(n.connectorTable) {
		return nil
	}
	return n.connectorTable[provideID]
}

// BuildFromNode materializes port instances, packed buffers and maps from a
// finalized parse tree.
func (n *NodeInstance) BuildFromNode(node *parser.Node) error {
	if !node.IsFinalized {
		if err := node.Finalize(); err != nil {
			return err
		}
	}
	n.node = node
	n.name = node.Name

	var provideInit, requireInit []byte
	offset := uint32(0)
	n.providePorts = make([]*PortInstance, 0, len(node.ProvidePorts))
	for _, port := range node.ProvidePorts {
		instance, err := newPortInstance(n, port, offset)
		if err != nil {
			return err
		}
		initData, err := createPackedInitData(port)
		if err != nil {
			return err
		}
		provideInit = append(provideInit, initData...)
		offset += instance.DataSize()
		n.providePorts = append(n.providePorts, instance)
	}
	provideSize := offset

	offset = 0
	n.requirePorts = make([]*PortInstance, 0, len(node.RequirePorts))
	for _, port := range node.RequirePorts {
		instance, err := newPortInstance(n, port, offset)
		if err != nil {
			return err
		}
		initData, err := createPackedInitData(port)
		if err != nil {
			return err
		}
		requireInit = append(requireInit, initData...)
		offset += instance.DataSize()
		n.requirePorts = append(n.requirePorts, instance)
	}
	requireSize := offset

	n.data.CreatePortData(uint32(len(n.providePorts)), uint32(len(n.requirePorts)), provideInit, requireInit)

	if n.mode == apx.ServerMode {
		// the server routes writes arriving in remote .out files
		n.bytePortMap = NewBytePortMap(provideSize, n.providePorts)
		n.connectorTable = make([][]*PortInstance, len(n.providePorts))
	} else {
		n.bytePortMap = NewBytePortMap(requireSize, n.requirePorts)
	}
	n.provideChanges = NewConnectorChangeTable(len(n.providePorts))
	n.requireChanges = NewConnectorChangeTable(len(n.requirePorts))
	return nil
}

// BuildFromText parses, finalizes and materializes a node from definition
// text, storing the text as the definition data with a SHA-256 checksum.
func (n *NodeInstance) BuildFromText(text string) error {
	node, err := parser.NewParser().BuildNode(text)
	if err != nil {
		return err
	}
	if err := n.BuildFromNode(node); err != nil {
		return err
	}
	if err := n.data.CreateDefinitionData([]byte(text), uint32(len(text))); err != nil {
		return err
	}
	digest := sha256.Sum256([]byte(text))
	n.data.SetChecksum(rmf.DigestTypeSHA256, digest[:])
	n.SetState(apx.DataStateWaitingForFileInfo)
	return nil
}

// FileInfos returns the metadata for the instance's three published files,
// unaddressed; the file map assigns addresses on insertion.
func (n *NodeInstance) FileInfos() []*rmf.FileInfo {
	definition := rmf.NewFileInfo(n.name+apx.DefinitionFileExt, n.data.DefinitionSize())
	checksumType, checksum := n.data.Checksum()
	if checksumType != rmf.DigestTypeNone {
		_ = definition.SetDigest(checksumType, checksum)
	}
	infos := []*rmf.FileInfo{definition}
	if size := n.data.ProvidePortDataSize(); size > 0 {
		infos = append(infos, rmf.NewFileInfo(n.name+apx.ProvidePortDataFileExt, size))
	}
	if size := n.data.RequirePortDataSize(); size > 0 {
		infos = append(infos, rmf.NewFileInfo(n.name+apx.RequirePortDataFileExt, size))
	}
	return infos
}

// CountFileInfos returns the metadata for the optional connection-count
// files (.cout / .cin), one byte per port.
func (n *NodeInstance) CountFileInfos() []*rmf.FileInfo {
	var infos []*rmf.FileInfo
	if num := n.data.NumProvidePorts(); num > 0 {
		infos = append(infos, rmf.NewFileInfo(n.name+apx.ProvidePortCountFileExt, num))
	}
	if num := n.data.NumRequirePorts(); num > 0 {
		infos = append(infos, rmf.NewFileInfo(n.name+apx.RequirePortCountFileExt, num))
	}
	return infos
}

// SetFiles records the file handles backing this instance.
func (n *NodeInstance) SetFiles(definition, provide, require *filemgr.File) {
	n.definitionFile = definition
	n.provideFile = provide
	n.requireFile = require
}

// DefinitionFile returns the .apx file handle, or nil.
func (n *NodeInstance) DefinitionFile() *filemgr.File { return n.definitionFile }

// ProvideFile returns the .out file handle, or nil.
func (n *NodeInstance) ProvideFile() *filemgr.File { return n.provideFile }

// RequireFile returns the .in file handle, or nil.
func (n *NodeInstance) RequireFile() *filemgr.File { return n.requireFile }

// WriteRequirePortData applies an inbound .in write and returns the ids of
// the require ports whose bytes changed.
func (n *NodeInstance) WriteRequirePortData(offset uint32, data []byte) ([]apx.PortID, error) {
	if err := n.data.WriteRequirePortData(offset, data); err != nil {
		return nil, err
	}
	return n.portsInRange(n.requirePorts, offset, uint32(len(data))), nil
}

// WriteProvidePortData applies an inbound .out write (server side) and
// returns the ids of the provide ports whose bytes changed.
func (n *NodeInstance) WriteProvidePortData(offset uint32, data []byte) ([]apx.PortID, error) {
	if err := n.data.WriteProvidePortData(offset, data); err != nil {
		return nil, err
	}
	return n.portsInRange(n.providePorts, offset, uint32(len(data))), nil
}

func (n *NodeInstance) portsInRange(ports []*PortInstance, offset, size uint32) []apx.PortID {
	var ids []apx.PortID
	for _, p := range ports {
		if p.DataOffset() < offset+size && offset < p.DataOffset()+p.DataSize() {
			ids = append(ids, p.ID())
		}
	}
	return ids
}
