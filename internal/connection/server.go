package connection

import (
	"io"

	log "github.com/apx-embedded/goapx/pkg/apxlog"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/filemgr"
	"github.com/apx-embedded/goapx/internal/runtime"
)

// ServerHandler is implemented by the routing fabric sitting above all
// server connections: it learns about nodes appearing and disappearing and
// about provide-port data written by clients.
type ServerHandler interface {
	NodeAttached(conn *ServerConnection, instance *runtime.NodeInstance)
	NodeDetached(conn *ServerConnection, instance *runtime.NodeInstance)
	ProvideDataWritten(conn *ServerConnection, instance *runtime.NodeInstance, offset uint32, data []byte)
}

// ServerConnection drives the server side of one connection: it waits for
// the client greeting, mirrors published files, transfers node definitions
// and materializes node instances.
type ServerConnection struct {
	*baseConnection
	handler ServerHandler
	id      uint32
}

// NewServerConnection wraps an accepted stream in a server connection.
func NewServerConnection(stream io.ReadWriteCloser, events Events, handler ServerHandler) *ServerConnection {
	if events == nil {
		events = NopEvents{}
	}
	c := &ServerConnection{handler: handler}
	c.baseConnection = newBaseConnection(apx.ServerMode, stream, events, c)
	c.handleMessage = c.onMessage
	return c
}

// Start launches the worker, the event loop and the read loop. The server
// stays silent until the client's greeting arrives.
func (c *ServerConnection) Start() error {
	return c.start()
}

// SetID stores the id the acceptor assigned to this connection.
func (c *ServerConnection) SetID(id uint32) {
	c.id = id
	c.fileManager.Shared().SetConnectionID(id)
}

// ID returns the connection id.
func (c *ServerConnection) ID() uint32 {
	return c.id
}

// WriteRequireData pushes packed require-port bytes into the client's .in
// file at the given offset.
func (c *ServerConnection) WriteRequireData(instance *runtime.NodeInstance, offset uint32, data []byte) error {
	requireFile := instance.RequireFile()
	if requireFile == nil {
		return apx.NewError(apx.ErrFileNotFound)
	}
	return c.fileManager.SendRemoteData(requireFile.AddressWithoutFlags()+offset, append([]byte(nil), data...))
}

// RemoteFilePublishedNotification reacts to a client's publish-file
// command. Definition files trigger node creation and an open-file request;
// a provide-port data file is opened once its node's definition has parsed,
// and a require-port data file is only bound to its node, never opened.
func (c *ServerConnection) RemoteFilePublishedNotification(file *filemgr.File) error {
	c.loop.emit(func() {
		c.events.RemoteFilePublished(file)
	})
	switch file.FileType() {
	case apx.DefinitionFileType:
		instance, err := c.nodeManager.BuildNodeFromFileInfo(file.Info())
		if err != nil {
			return err
		}
		instance.SetFiles(file, nil, nil)
		file.Open()
		return c.fileManager.SendOpenFileRequest(file.AddressWithoutFlags())
	case apx.ProvidePortDataFileType:
		instance := c.nodeManager.Find(file.Info().BaseName())
		if instance != nil && instance.State() == apx.DataStateConnected {
			return c.openProvideFile(instance, file)
		}
	case apx.RequirePortDataFileType:
		instance := c.nodeManager.Find(file.Info().BaseName())
		if instance != nil {
			instance.SetFiles(instance.DefinitionFile(), instance.ProvideFile(), file)
		}
	}
	return nil
}

// RemoteFileWriteNotification dispatches completed writes into remote
// files: definition bytes feed the definition buffer, provide-port bytes
// feed the packed provide buffer and the routing fabric.
func (c *ServerConnection) RemoteFileWriteNotification(file *filemgr.File, offset uint32, data []byte) error {
	switch file.FileType() {
	case apx.DefinitionFileType:
		return c.onDefinitionWrite(file, offset, data)
	case apx.ProvidePortDataFileType:
		return c.onProvideDataWrite(file, offset, data)
	}
	return file.WriteNotify(offset, data)
}

func (c *ServerConnection) onDefinitionWrite(file *filemgr.File, offset uint32, data []byte) error {
	instance := c.nodeManager.Find(file.Info().BaseName())
	if instance == nil {
		return apx.NewError(apx.ErrNotFound)
	}
	if err := instance.NodeData().WriteDefinitionData(offset, data); err != nil {
		return err
	}
	if offset+uint32(len(data)) < file.Size() {
		// wait for the remainder of the definition
		return nil
	}
	if err := c.nodeManager.BuildNodeFromDefinitionData(instance); err != nil {
		log.Error("server connection: node %s: %v", instance.Name(), err)
		c.loop.emit(func() {
			c.events.DefinitionError(instance, err)
		})
		// a malformed definition leaves the node waiting; other nodes
		// on the connection continue to operate
		return nil
	}
	if outFile := c.fileManager.FindRemoteFileByName(instance.Name() + apx.ProvidePortDataFileExt); outFile != nil {
		if err := c.openProvideFile(instance, outFile); err != nil {
			return err
		}
	}
	if inFile := c.fileManager.FindRemoteFileByName(instance.Name() + apx.RequirePortDataFileExt); inFile != nil {
		instance.SetFiles(instance.DefinitionFile(), instance.ProvideFile(), inFile)
	}
	c.loop.emit(func() {
		c.events.NodeCreated(instance)
	})
	if c.handler != nil {
		c.handler.NodeAttached(c, instance)
	}
	return nil
}

func (c *ServerConnection) onProvideDataWrite(file *filemgr.File, offset uint32, data []byte) error {
	instance := c.nodeManager.Find(file.Info().BaseName())
	if instance == nil {
		return apx.NewError(apx.ErrNotFound)
	}
	if _, err := instance.WriteProvidePortData(offset, data); err != nil {
		return err
	}
	if c.handler != nil {
		c.handler.ProvideDataWritten(c, instance, offset, data)
	}
	return nil
}

func (c *ServerConnection) openProvideFile(instance *runtime.NodeInstance, file *filemgr.File) error {
	instance.SetFiles(instance.DefinitionFile(), file, instance.RequireFile())
	file.Open()
	return c.fileManager.SendOpenFileRequest(file.AddressWithoutFlags())
}

func (c *ServerConnection) onMessage(msg []byte) error {
	if !c.GreetingAccepted() {
		if !IsGreeting(msg) {
			return apx.NewError(apx.ErrInvalidHeader)
		}
		if err := ParseGreeting(msg); err != nil {
			return err
		}
		c.setGreetingAccepted()
		log.Debug("server connection %d: greeting accepted", c.id)
		c.fileManager.Connected()
		c.loop.emit(func() {
			c.events.Connected()
		})
		return nil
	}
	return c.fileManager.MessageReceived(msg)
}

// DetachAll detaches every node instance, notifying the routing fabric.
// Called when the connection goes down.
func (c *ServerConnection) DetachAll() {
	for _, instance := range c.nodeManager.Instances() {
		if c.handler != nil && instance.State() == apx.DataStateConnected {
			c.handler.NodeDetached(c, instance)
		}
		c.nodeManager.Detach(instance)
	}
}
