package connection

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	log "github.com/apx-embedded/goapx/pkg/apxlog"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/filemgr"
	"github.com/apx-embedded/goapx/internal/rmf"
	"github.com/apx-embedded/goapx/internal/runtime"
)

// baseConnection carries the machinery shared by client and server
// connections: the framed transport, the file manager, the node manager and
// the event loop. The read loop splits the inbound stream into messages and
// hands them to the mode-specific handler.
type baseConnection struct {
	mode      apx.Mode
	stream    io.ReadWriteCloser
	transport *socketTransport

	fileManager *filemgr.FileManager
	nodeManager *runtime.NodeManager

	events Events
	loop   *eventLoop

	// handleMessage processes one de-framed message before the greeting
	// handshake completes and every message after it
	handleMessage func(msg []byte) error

	mu               sync.Mutex
	greetingAccepted bool
	started          bool
	closed           bool
	readDone         chan struct{}
}

func newBaseConnection(mode apx.Mode, stream io.ReadWriteCloser, events Events, handler filemgr.RemoteFileHandler) *baseConnection {
	transport := newSocketTransport(stream)
	c := &baseConnection{
		mode:        mode,
		stream:      stream,
		transport:   transport,
		nodeManager: runtime.NewNodeManager(mode),
		events:      events,
		loop:        newEventLoop(),
		readDone:    make(chan struct{}),
	}
	c.fileManager = filemgr.NewFileManager(mode, transport, handler)
	return c
}

// FileManager returns the connection's file manager.
func (c *baseConnection) FileManager() *filemgr.FileManager {
	return c.fileManager
}

// NodeManager returns the connection's node manager.
func (c *baseConnection) NodeManager() *runtime.NodeManager {
	return c.nodeManager
}

// Mode returns the connection mode.
func (c *baseConnection) Mode() apx.Mode {
	return c.mode
}

// GreetingAccepted reports whether the handshake has completed.
func (c *baseConnection) GreetingAccepted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.greetingAccepted
}

func (c *baseConnection) setGreetingAccepted() {
	c.mu.Lock()
	c.greetingAccepted = true
	c.mu.Unlock()
}

func (c *baseConnection) start() error {
	if err := c.fileManager.Start(); err != nil {
		return err
	}
	c.loop.start()
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	go c.readLoop()
	return nil
}

// Close tears the connection down: the stream, the read loop, the worker
// and the event loop.
func (c *baseConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	c.mu.Unlock()

	err := c.transport.Close()
	if started {
		<-c.readDone
	}
	c.fileManager.Disconnected()
	if stopErr := c.fileManager.Stop(); stopErr != nil {
		log.Error("connection: worker stop: %v", stopErr)
	}
	c.loop.stop()
	return err
}

// readLoop reads the inbound stream, splits numheader-framed messages and
// dispatches them. Transport failure closes the connection.
func (c *baseConnection) readLoop() {
	defer close(c.readDone)

	var pending []byte
	chunk := make([]byte, 32768)
	for {
		n, err := c.stream.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			consumed, perr := c.processPending(pending)
			if perr != nil {
				log.Error("connection: %v", perr)
				c.emitDisconnected(perr)
				return
			}
			pending = pending[consumed:]
		}
		if err != nil {
			if err != io.EOF {
				log.Debug("connection: read: %v", err)
			}
			c.emitDisconnected(err)
			return
		}
	}
}

func (c *baseConnection) processPending(pending []byte) (int, error) {
	offset := 0
	for {
		headerSize, msgSize := rmf.DecodeNumheader32(pending[offset:])
		if headerSize == 0 {
			return offset, nil
		}
		if msgSize > apx.MaxFileSize {
			return offset, apx.NewError(apx.ErrInvalidMsg)
		}
		total := headerSize + int(msgSize)
		if len(pending)-offset < total {
			return offset, nil
		}
		msg := pending[offset+headerSize : offset+total]
		if err := c.handleMessage(msg); err != nil {
			if apx.IsCode(err, apx.ErrInvalidMsg) || apx.IsCode(err, apx.ErrInvalidAddress) {
				return offset, errors.Wrap(err, "inbound message")
			}
			// per-message errors do not kill the connection
			log.Warn("connection: message dropped: %v", err)
		}
		offset += total
	}
}

func (c *baseConnection) emitDisconnected(err error) {
	c.loop.emit(func() {
		c.events.Disconnected(err)
	})
}

// isAckMessage reports whether the de-framed message is an ACK written to
// the command area.
func isAckMessage(msg []byte) bool {
	headerSize, address, _ := rmf.DecodeAddress(msg)
	if headerSize == 0 || address != rmf.CmdAreaStartAddress {
		return false
	}
	_, cmd, err := rmf.DecodeCmd(msg[headerSize:])
	return err == nil && cmd.Type == rmf.CmdAck
}
