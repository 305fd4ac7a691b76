package server

import (
	log "github.com/apx-embedded/goapx/pkg/apxlog"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/connection"
	"github.com/apx-embedded/goapx/internal/router"
	"github.com/apx-embedded/goapx/internal/runtime"
)

// NodeAttached indexes a freshly materialized node in the signature map and
// applies the resulting connect deltas: connector tables, connection counts
// and initial data transfer.
func (s *Server) NodeAttached(conn *connection.ServerConnection, instance *runtime.NodeInstance) {
	s.mu.Lock()
	s.owners[instance] = conn
	if err := s.signatures.AttachNode(instance); err != nil {
		log.Error("server: attach node %s: %v", instance.Name(), err)
		s.mu.Unlock()
		return
	}
	events := s.collectAllEvents()
	s.mu.Unlock()

	s.applyConnectorEvents(events)
}

// NodeDetached removes a node from the signature map and applies the
// disconnect deltas.
func (s *Server) NodeDetached(conn *connection.ServerConnection, instance *runtime.NodeInstance) {
	s.mu.Lock()
	s.signatures.DetachNode(instance)
	events := s.collectAllEvents()
	delete(s.owners, instance)
	s.mu.Unlock()

	s.applyConnectorEvents(events)
}

// ProvideDataWritten routes freshly written provide-port bytes to every
// require port currently connected to the affected provide ports.
func (s *Server) ProvideDataWritten(conn *connection.ServerConnection, instance *runtime.NodeInstance, offset uint32, data []byte) {
	end := offset + uint32(len(data))

	instance.LockConnectorTable()
	defer instance.UnlockConnectorTable()
	for _, providePort := range instance.ProvidePorts() {
		pStart := providePort.DataOffset()
		pEnd := pStart + providePort.DataSize()
		if pStart >= end || offset >= pEnd {
			continue
		}
		start := offset
		if pStart > start {
			start = pStart
		}
		stop := end
		if pEnd < stop {
			stop = pEnd
		}
		chunk := data[start-offset : stop-offset]
		intra := start - pStart
		for _, requirePort := range instance.Connectors(providePort.ID()) {
			s.routeChunk(requirePort, intra, chunk)
		}
	}
}

// collectAllEvents swaps out the change tables of every attached instance.
// Each pairing is recorded on both nodes' tables when both are attached, so
// events are deduplicated on (kind, provide, require). Caller holds the
// server lock.
func (s *Server) collectAllEvents() []router.ConnectorEvent {
	type eventKey struct {
		kind    apx.ConnectorEvent
		provide *runtime.PortInstance
		require *runtime.PortInstance
	}
	seen := make(map[eventKey]bool)
	var events []router.ConnectorEvent
	for instance := range s.owners {
		collected := router.CollectEvents(instance, instance.SwapProvideChanges(), instance.SwapRequireChanges())
		for _, event := range collected {
			key := eventKey{event.Kind, event.ProvidePort, event.RequirePort}
			if seen[key] {
				continue
			}
			seen[key] = true
			events = append(events, event)
		}
	}
	return events
}

func (s *Server) applyConnectorEvents(events []router.ConnectorEvent) {
	for _, event := range events {
		provide := event.ProvidePort
		require := event.RequirePort
		if event.Kind == apx.PortConnectedEvent {
			provide.Node().LockConnectorTable()
			if err := provide.Node().InsertConnector(provide.ID(), require); err != nil {
				log.Error("server: connector insert: %v", err)
			}
			provide.Node().UnlockConnectorTable()
			provide.Node().NodeData().IncProvideConnectionCount(provide.ID())
			require.Node().NodeData().IncRequireConnectionCount(require.ID())
			s.transferInitialData(provide, require)
		} else {
			provide.Node().LockConnectorTable()
			if err := provide.Node().RemoveConnector(provide.ID(), require); err != nil {
				log.Debug("server: connector remove: %v", err)
			}
			provide.Node().UnlockConnectorTable()
			provide.Node().NodeData().DecProvideConnectionCount(provide.ID())
			require.Node().NodeData().DecRequireConnectionCount(require.ID())
		}
	}
}

// transferInitialData seeds a newly connected require port with the
// provider's current bytes.
func (s *Server) transferInitialData(provide, require *runtime.PortInstance) {
	data, err := provide.Node().NodeData().ReadProvidePortData(provide.DataOffset(), provide.DataSize())
	if err != nil {
		log.Error("server: initial data read: %v", err)
		return
	}
	s.routeChunk(require, 0, data)
}

// routeChunk writes bytes into one require port: the server-side mirror
// buffer first, then the owning connection's .in file.
func (s *Server) routeChunk(require *runtime.PortInstance, intra uint32, chunk []byte) {
	target := require.Node()
	offset := require.DataOffset() + intra
	if _, err := target.WriteRequirePortData(offset, chunk); err != nil {
		log.Error("server: require mirror write: %v", err)
		return
	}
	s.mu.Lock()
	conn := s.owners[target]
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteRequireData(target, offset, chunk); err != nil {
		log.Error("server: route to %s/%s: %v", target.Name(), require.Name(), err)
	}
}
