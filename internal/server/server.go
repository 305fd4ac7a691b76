// Package server implements the router/broker: it accepts connections,
// indexes every node's ports in the port signature map and shovels
// provide-port bytes to matching require-ports on other connections.
package server

import (
	"net"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	log "github.com/apx-embedded/goapx/pkg/apxlog"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/connection"
	"github.com/apx-embedded/goapx/internal/router"
	"github.com/apx-embedded/goapx/internal/runtime"
)

// Config carries the server tunables.
type Config struct {
	TCPAddress     string // empty disables the TCP acceptor
	UnixSocketPath string // empty disables the Unix-socket acceptor
	MaxConnections int    // concurrent connection cap, 0 = default
}

// Server owns all server connections and the fleet-wide routing state.
type Server struct {
	config Config

	mu          sync.Mutex
	connections map[*connection.ServerConnection]string // conn -> instance tag
	owners      map[*runtime.NodeInstance]*connection.ServerConnection
	signatures  *router.PortSignatureMap
	nextID      uint32

	listeners []net.Listener
	group     errgroup.Group
	closed    bool
}

// New returns a stopped server.
func New(config Config) *Server {
	if config.MaxConnections <= 0 {
		config.MaxConnections = apx.ServerMaxConcurrentConnections
	}
	return &Server{
		config:      config,
		connections: make(map[*connection.ServerConnection]string),
		owners:      make(map[*runtime.NodeInstance]*connection.ServerConnection),
		signatures:  router.NewPortSignatureMap(),
	}
}

// Listen opens the configured acceptors and serves until Close.
func (s *Server) Listen() error {
	if s.config.TCPAddress != "" {
		ln, err := net.Listen("tcp", s.config.TCPAddress)
		if err != nil {
			return errors.Wrap(err, "tcp listen")
		}
		s.addListener(ln)
	}
	if s.config.UnixSocketPath != "" {
		ln, err := net.Listen("unix", s.config.UnixSocketPath)
		if err != nil {
			return errors.Wrap(err, "unix listen")
		}
		s.addListener(ln)
	}
	if len(s.listeners) == 0 {
		return errors.New("server: no acceptors configured")
	}
	return nil
}

func (s *Server) addListener(ln net.Listener) {
	ln = netutil.LimitListener(ln, s.config.MaxConnections)
	s.listeners = append(s.listeners, ln)
	s.group.Go(func() error {
		return s.acceptLoop(ln)
	})
}

// Wait blocks until every acceptor has stopped.
func (s *Server) Wait() error {
	return s.group.Wait()
}

// Close stops the acceptors and tears down every connection.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	listeners := s.listeners
	conns := make([]*connection.ServerConnection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, ln := range listeners {
		ln.Close()
	}
	for _, conn := range conns {
		s.dropConnection(conn)
	}
	return nil
}

// NumConnections returns the live connection count.
func (s *Server) NumConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// Nodes returns every attached node instance with its connection tag.
func (s *Server) Nodes() map[*runtime.NodeInstance]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := make(map[*runtime.NodeInstance]string, len(s.owners))
	for instance, conn := range s.owners {
		nodes[instance] = s.connections[conn]
	}
	return nodes
}

func (s *Server) acceptLoop(ln net.Listener) error {
	for {
		stream, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return errors.Wrap(err, "accept")
		}
		if err := s.Attach(stream); err != nil {
			log.Error("server: attach: %v", err)
			stream.Close()
		}
	}
}

// Attach wraps an accepted stream in a server connection and starts it.
func (s *Server) Attach(stream net.Conn) error {
	tag := "conn"
	if id, err := uuid.NewV4(); err == nil {
		tag = id.String()[:8]
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	events := &connectionEvents{server: s}
	conn := connection.NewServerConnection(stream, events, s)
	events.conn = conn
	conn.SetID(id)

	s.mu.Lock()
	s.connections[conn] = tag
	s.mu.Unlock()

	log.Info("server: connection %d (%s) attached", id, tag)
	return conn.Start()
}

func (s *Server) dropConnection(conn *connection.ServerConnection) {
	s.mu.Lock()
	tag, ok := s.connections[conn]
	delete(s.connections, conn)
	s.mu.Unlock()
	if !ok {
		return
	}
	conn.DetachAll()
	if err := conn.Close(); err != nil {
		log.Debug("server: close %s: %v", tag, err)
	}
	log.Info("server: connection %d (%s) detached", conn.ID(), tag)
}

// connectionEvents forwards per-connection lifecycle events back into the
// server.
type connectionEvents struct {
	connection.NopEvents
	server *Server
	conn   *connection.ServerConnection
}

func (e *connectionEvents) Disconnected(err error) {
	// the read loop is down; reap the connection off the event loop
	go e.server.dropConnection(e.conn)
}
