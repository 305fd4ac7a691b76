package runtime

import (
	"crypto/sha256"
	"strings"
	"sync"

	log "github.com/apx-embedded/goapx/pkg/apxlog"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/parser"
	"github.com/apx-embedded/goapx/internal/rmf"
)

// NodeManager owns all node instances on one connection. Clients build
// nodes from definition text; servers build them from remote file info and
// fill in the definition once its bytes arrive.
type NodeManager struct {
	mode apx.Mode

	mu           sync.Mutex
	instances    map[string]*NodeInstance
	lastAttached *NodeInstance
}

// NewNodeManager returns an empty manager for the given mode.
func NewNodeManager(mode apx.Mode) *NodeManager {
	return &NodeManager{
		mode:      mode,
		instances: make(map[string]*NodeInstance),
	}
}

// Mode returns the manager's connection mode.
func (m *NodeManager) Mode() apx.Mode { return m.mode }

// Length returns the number of attached instances.
func (m *NodeManager) Length() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}

// Find returns the instance with the given node name, or nil.
func (m *NodeManager) Find(name string) *NodeInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instances[name]
}

// LastAttached returns the most recently attached instance.
func (m *NodeManager) LastAttached() *NodeInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAttached
}

// Instances returns all attached instances.
func (m *NodeManager) Instances() []*NodeInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	instances := make([]*NodeInstance, 0, len(m.instances))
	for _, instance := range m.instances {
		instances = append(instances, instance)
	}
	return instances
}

// BuildNode parses definition text and attaches a fully materialized
// instance. Used in client mode.
func (m *NodeManager) BuildNode(text string) (*NodeInstance, error) {
	instance := NewNodeInstance("", m.mode)
	if err := instance.BuildFromText(text); err != nil {
		return nil, err
	}
	if err := m.attach(instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// BuildNodeFromFileInfo creates an instance for a remotely published .apx
// file: an empty definition buffer sized per the file info, waiting for the
// definition bytes. Used in server mode.
func (m *NodeManager) BuildNodeFromFileInfo(info *rmf.FileInfo) (*NodeInstance, error) {
	if !strings.HasSuffix(info.Name, apx.DefinitionFileExt) {
		return nil, apx.NewError(apx.ErrInvalidArgument)
	}
	name := strings.TrimSuffix(info.Name, apx.DefinitionFileExt)
	instance := NewNodeInstance(name, m.mode)
	if err := instance.NodeData().CreateDefinitionData(nil, info.Size); err != nil {
		return nil, err
	}
	if info.DigestType != rmf.DigestTypeNone {
		instance.NodeData().SetChecksum(info.DigestType, info.Digest)
	}
	instance.SetState(apx.DataStateWaitingForFileData)
	if err := m.attach(instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// BuildNodeFromDefinitionData parses the received definition bytes of an
// instance created by BuildNodeFromFileInfo and materializes its ports. The
// instance stays in the waiting state if parsing fails.
func (m *NodeManager) BuildNodeFromDefinitionData(instance *NodeInstance) error {
	data := instance.NodeData().DefinitionData()

	if checksumType, checksum := instance.NodeData().Checksum(); checksumType == rmf.DigestTypeSHA256 {
		digest := sha256.Sum256(data)
		if string(digest[:]) != string(checksum) {
			log.Warn("node %s: definition checksum mismatch", instance.Name())
		}
	}

	node, err := parser.NewParser().BuildNode(string(data))
	if err != nil {
		return err
	}
	if node.Name != instance.Name() {
		return apx.Errorf(apx.ErrParse, "definition names node %q, file names %q", node.Name, instance.Name())
	}
	if err := instance.BuildFromNode(node); err != nil {
		return err
	}
	instance.SetState(apx.DataStateConnected)
	return nil
}

// Detach removes an instance from the manager.
func (m *NodeManager) Detach(instance *NodeInstance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, instance.Name())
	if m.lastAttached == instance {
		m.lastAttached = nil
	}
	instance.SetState(apx.DataStateDisconnected)
}

func (m *NodeManager) attach(instance *NodeInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.instances[instance.Name()]; exists {
		return apx.Errorf(apx.ErrFileAlreadyExists, "node %q", instance.Name())
	}
	m.instances[instance.Name()] = instance
	m.lastAttached = instance
	return nil
}
