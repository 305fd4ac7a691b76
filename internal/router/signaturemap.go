// Package router groups ports with identical effective signatures across
// all nodes on a server and tracks the connect/disconnect deltas produced
// when nodes come and go.
package router

import (
	log "github.com/apx-embedded/goapx/pkg/apxlog"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/runtime"
)

// Entry holds the two port lists sharing one signature, plus the provider
// preferred for initial data when several exist.
type Entry struct {
	signature         string
	requirePorts      []*runtime.PortInstance
	providePorts      []*runtime.PortInstance
	preferredProvider *runtime.PortInstance
}

// Signature returns the entry's routing key.
func (e *Entry) Signature() string { return e.signature }

// RequirePorts returns the require-side ports of the entry.
func (e *Entry) RequirePorts() []*runtime.PortInstance { return e.requirePorts }

// ProvidePorts returns the provide-side ports of the entry.
func (e *Entry) ProvidePorts() []*runtime.PortInstance { return e.providePorts }

// PreferredProvider returns the provider used to seed newly connected
// require ports, or nil.
func (e *Entry) PreferredProvider() *runtime.PortInstance { return e.preferredProvider }

func (e *Entry) empty() bool {
	return len(e.requirePorts) == 0 && len(e.providePorts) == 0
}

// PortSignatureMap is the fleet-wide index from effective port signature to
// the ports carrying it. Not goroutine safe; the server serializes access.
type PortSignatureMap struct {
	entries map[string]*Entry
}

// NewPortSignatureMap returns an empty map.
func NewPortSignatureMap() *PortSignatureMap {
	return &PortSignatureMap{entries: make(map[string]*Entry)}
}

// Length returns the number of live entries.
func (m *PortSignatureMap) Length() int {
	return len(m.entries)
}

// Find returns the entry under the given signature, or nil.
func (m *PortSignatureMap) Find(signature string) *Entry {
	return m.entries[signature]
}

// AttachNode inserts every port of the instance and records connect deltas
// in the change tables of all affected node instances.
func (m *PortSignatureMap) AttachNode(instance *runtime.NodeInstance) error {
	for _, port := range instance.ProvidePorts() {
		if err := m.insertProvidePort(port); err != nil {
			return err
		}
	}
	for _, port := range instance.RequirePorts() {
		if err := m.insertRequirePort(port); err != nil {
			return err
		}
	}
	return nil
}

// DetachNode removes every port of the instance and records disconnect
// deltas. Entries left empty are dropped.
func (m *PortSignatureMap) DetachNode(instance *runtime.NodeInstance) {
	for _, port := range instance.ProvidePorts() {
		m.removeProvidePort(port)
	}
	for _, port := range instance.RequirePorts() {
		m.removeRequirePort(port)
	}
}

func (m *PortSignatureMap) entryFor(port *runtime.PortInstance) *Entry {
	signature, _ := port.PortSignature()
	entry, ok := m.entries[signature]
	if !ok {
		entry = &Entry{signature: signature}
		m.entries[signature] = entry
	}
	return entry
}

func (m *PortSignatureMap) insertProvidePort(port *runtime.PortInstance) error {
	entry := m.entryFor(port)
	entry.providePorts = append(entry.providePorts, port)
	if entry.preferredProvider == nil {
		entry.preferredProvider = port
	}
	for _, peer := range entry.requirePorts {
		if err := connect(port, peer); err != nil {
			return err
		}
	}
	return nil
}

func (m *PortSignatureMap) insertRequirePort(port *runtime.PortInstance) error {
	entry := m.entryFor(port)
	entry.requirePorts = append(entry.requirePorts, port)
	for _, peer := range entry.providePorts {
		if err := connect(peer, port); err != nil {
			return err
		}
	}
	return nil
}

func (m *PortSignatureMap) removeProvidePort(port *runtime.PortInstance) {
	signature, _ := port.PortSignature()
	entry, ok := m.entries[signature]
	if !ok {
		return
	}
	entry.providePorts = removePort(entry.providePorts, port)
	if entry.preferredProvider == port {
		entry.preferredProvider = nil
		if len(entry.providePorts) > 0 {
			entry.preferredProvider = entry.providePorts[0]
		}
	}
	for _, peer := range entry.requirePorts {
		disconnect(port, peer)
	}
	if entry.empty() {
		delete(m.entries, signature)
	}
}

func (m *PortSignatureMap) removeRequirePort(port *runtime.PortInstance) {
	signature, _ := port.PortSignature()
	entry, ok := m.entries[signature]
	if !ok {
		return
	}
	entry.requirePorts = removePort(entry.requirePorts, port)
	for _, peer := range entry.providePorts {
		disconnect(peer, port)
	}
	if entry.empty() {
		delete(m.entries, signature)
	}
}

func removePort(ports []*runtime.PortInstance, port *runtime.PortInstance) []*runtime.PortInstance {
	for i, p := range ports {
		if p == port {
			return append(ports[:i], ports[i+1:]...)
		}
	}
	return ports
}

// connect records the delta on both sides of a new provide/require pairing.
func connect(provide, require *runtime.PortInstance) error {
	if err := provide.Node().ProvideChanges().Connect(provide.ID(), require); err != nil {
		return err
	}
	return require.Node().RequireChanges().Connect(require.ID(), provide)
}

func disconnect(provide, require *runtime.PortInstance) {
	if err := provide.Node().ProvideChanges().Disconnect(provide.ID(), require); err != nil {
		log.Error("router: disconnect provide %s: %v", provide.Name(), err)
	}
	if err := require.Node().RequireChanges().Disconnect(require.ID(), provide); err != nil {
		log.Error("router: disconnect require %s: %v", require.Name(), err)
	}
}

// ConnectorEvent is one connect/disconnect notification emitted to upper
// layers after the change tables are swapped out.
type ConnectorEvent struct {
	Kind        apx.ConnectorEvent
	ProvidePort *runtime.PortInstance
	RequirePort *runtime.PortInstance
}

// CollectEvents walks an instance's swapped-out change tables and returns
// the connect/disconnect events in port order: provide-side entries first,
// then require-side entries. A pairing between two attached nodes appears
// in both nodes' tables, so callers collecting across nodes see it twice.
func CollectEvents(instance *runtime.NodeInstance, provideChanges, requireChanges *runtime.ConnectorChangeTable) []ConnectorEvent {
	var events []ConnectorEvent
	if provideChanges != nil {
		for id := range provideChanges.Entries {
			entry := &provideChanges.Entries[id]
			kind := apx.PortConnectedEvent
			if entry.Count < 0 {
				kind = apx.PortDisconnectedEvent
			}
			for _, peer := range entry.Peers() {
				events = append(events, ConnectorEvent{
					Kind:        kind,
					ProvidePort: instance.ProvidePort(apx.PortID(id)),
					RequirePort: peer,
				})
			}
		}
	}
	if requireChanges != nil {
		for id := range requireChanges.Entries {
			entry := &requireChanges.Entries[id]
			kind := apx.PortConnectedEvent
			if entry.Count < 0 {
				kind = apx.PortDisconnectedEvent
			}
			for _, peer := range entry.Peers() {
				events = append(events, ConnectorEvent{
					Kind:        kind,
					ProvidePort: peer,
					RequirePort: instance.RequirePort(apx.PortID(id)),
				})
			}
		}
	}
	return events
}
