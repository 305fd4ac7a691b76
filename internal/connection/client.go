package connection

import (
	"io"

	"github.com/pkg/errors"

	log "github.com/apx-embedded/goapx/pkg/apxlog"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/filemgr"
	"github.com/apx-embedded/goapx/internal/runtime"
)

// ClientConnection drives the client side of one connection: it sends the
// greeting, publishes the files of every attached node once the server
// acknowledges, and applies inbound require-port writes.
type ClientConnection struct {
	*baseConnection
}

// NewClientConnection wraps an established stream in a client connection.
// Call Start to begin the handshake.
func NewClientConnection(stream io.ReadWriteCloser, events Events) *ClientConnection {
	if events == nil {
		events = NopEvents{}
	}
	c := &ClientConnection{}
	c.baseConnection = newBaseConnection(apx.ClientMode, stream, events, nil)
	c.handleMessage = c.onMessage
	return c
}

// Start launches the worker, the event loop and the read loop, then sends
// the greeting.
func (c *ClientConnection) Start() error {
	if err := c.start(); err != nil {
		return err
	}
	c.transport.TransmitBegin()
	_, err := c.transport.TransmitDirectMessage(BuildGreeting())
	c.transport.TransmitEnd()
	return errors.Wrap(err, "send greeting")
}

// BuildNode parses definition text, attaches the node instance and creates
// its local files. Files publish when the greeting completes (or
// immediately when it already has).
func (c *ClientConnection) BuildNode(text string) (*runtime.NodeInstance, error) {
	instance, err := c.nodeManager.BuildNode(text)
	if err != nil {
		return nil, err
	}
	if err := c.createNodeFiles(instance); err != nil {
		return nil, err
	}
	if c.GreetingAccepted() {
		for _, info := range instance.FileInfos() {
			localFile := c.fileManager.FindLocalFileByName(info.Name)
			if localFile != nil {
				if err := c.fileManager.PublishLocalFile(localFile.Info()); err != nil {
					return nil, err
				}
			}
		}
	}
	return instance, nil
}

// PublishPortCountFiles creates and publishes the optional connection-count
// files (.cout / .cin) of a node. Opening one sends a snapshot of the
// corresponding connection-count array.
func (c *ClientConnection) PublishPortCountFiles(instance *runtime.NodeInstance) error {
	for _, info := range instance.CountFileInfos() {
		file, err := c.fileManager.CreateLocalFile(info)
		if err != nil {
			return err
		}
		countData := instance.NodeData().ProvideConnectionCountData
		if file.FileType() == apx.RequirePortCountFileType {
			countData = instance.NodeData().RequireConnectionCountData
		}
		file.SetNotificationHandler(filemgr.NotificationHandler{
			OpenNotify: func(f *filemgr.File) error {
				return c.fileManager.SendLocalConstData(f.AddressWithoutFlags(), countData())
			},
		})
		if c.GreetingAccepted() {
			if err := c.fileManager.PublishLocalFile(file.Info()); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteProvidePort writes packed bytes for one provide port into the node
// data and pushes them to the server when the .out file is open.
func (c *ClientConnection) WriteProvidePort(instance *runtime.NodeInstance, portID apx.PortID, data []byte) error {
	port := instance.ProvidePort(portID)
	if port == nil {
		return apx.NewError(apx.ErrInvalidArgument)
	}
	if uint32(len(data)) != port.DataSize() {
		return apx.NewError(apx.ErrValueLength)
	}
	if err := instance.NodeData().WriteProvidePortData(port.DataOffset(), data); err != nil {
		return err
	}
	outFile := instance.ProvideFile()
	if outFile == nil || !outFile.IsOpen() {
		return nil
	}
	address := outFile.AddressWithoutFlags() + port.DataOffset()
	// a BufferFull result is transient; the caller may retry once the
	// worker drains
	return c.fileManager.SendLocalData(address, append([]byte(nil), data...))
}

// ReadRequirePort returns the packed bytes of one require port.
func (c *ClientConnection) ReadRequirePort(instance *runtime.NodeInstance, portID apx.PortID) ([]byte, error) {
	port := instance.RequirePort(portID)
	if port == nil {
		return nil, apx.NewError(apx.ErrInvalidArgument)
	}
	return instance.NodeData().ReadRequirePortData(port.DataOffset(), port.DataSize())
}

func (c *ClientConnection) createNodeFiles(instance *runtime.NodeInstance) error {
	infos := instance.FileInfos()
	var definition, provide, require *filemgr.File
	for _, info := range infos {
		file, err := c.fileManager.CreateLocalFile(info)
		if err != nil {
			return err
		}
		switch file.FileType() {
		case apx.DefinitionFileType:
			definition = file
			file.SetNotificationHandler(filemgr.NotificationHandler{
				OpenNotify: func(f *filemgr.File) error {
					return c.fileManager.SendLocalConstData(f.AddressWithoutFlags(), instance.NodeData().DefinitionData())
				},
			})
		case apx.ProvidePortDataFileType:
			provide = file
			file.SetNotificationHandler(filemgr.NotificationHandler{
				OpenNotify: func(f *filemgr.File) error {
					return c.fileManager.SendLocalConstData(f.AddressWithoutFlags(), instance.NodeData().ProvidePortDataSnapshot())
				},
			})
		case apx.RequirePortDataFileType:
			require = file
			file.SetNotificationHandler(filemgr.NotificationHandler{
				WriteNotify: func(f *filemgr.File, offset uint32, data []byte) error {
					return c.onRequireFileWrite(instance, offset, data)
				},
			})
		}
	}
	instance.SetFiles(definition, provide, require)
	return nil
}

func (c *ClientConnection) onRequireFileWrite(instance *runtime.NodeInstance, offset uint32, data []byte) error {
	portIDs, err := instance.WriteRequirePortData(offset, data)
	if err != nil {
		return err
	}
	c.loop.emit(func() {
		c.events.RequirePortsWritten(instance, portIDs)
	})
	return nil
}

func (c *ClientConnection) onMessage(msg []byte) error {
	if !c.GreetingAccepted() {
		if !isAckMessage(msg) {
			return apx.NewError(apx.ErrInvalidHeader)
		}
		c.setGreetingAccepted()
		log.Debug("client connection: greeting accepted")
		c.fileManager.Connected()
		c.loop.emit(func() {
			c.events.Connected()
		})
		return nil
	}
	return c.fileManager.MessageReceived(msg)
}
