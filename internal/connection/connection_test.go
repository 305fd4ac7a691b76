package connection

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/filemgr"
	"github.com/apx-embedded/goapx/internal/runtime"
)

const testNodeText = "APX/1.2\n" +
	"N\"TestNode\"\n" +
	"P\"U16Signal\"S:=65535\n" +
	"P\"U8Signal1\"C:=7\n" +
	"P\"U8Signal2\"C:=15\n" +
	"R\"U8Signal3\"C:=7\n" +
	"R\"U32Signal\"L:=0\n"

// recorder collects connection events on channels so tests can wait on them.
type recorder struct {
	NopEvents
	connected    chan struct{}
	nodeCreated  chan *runtime.NodeInstance
	defError     chan error
	requireWrite chan []apx.PortID
}

func newRecorder() *recorder {
	return &recorder{
		connected:    make(chan struct{}, 8),
		nodeCreated:  make(chan *runtime.NodeInstance, 8),
		defError:     make(chan error, 8),
		requireWrite: make(chan []apx.PortID, 8),
	}
}

func (r *recorder) Connected() {
	r.connected <- struct{}{}
}

func (r *recorder) NodeCreated(instance *runtime.NodeInstance) {
	r.nodeCreated <- instance
}

func (r *recorder) DefinitionError(instance *runtime.NodeInstance, err error) {
	r.defError <- err
}

func (r *recorder) RequirePortsWritten(instance *runtime.NodeInstance, portIDs []apx.PortID) {
	r.requireWrite <- portIDs
}

// routingRecorder collects server handler callbacks.
type routingRecorder struct {
	attached     chan *runtime.NodeInstance
	provideWrite chan []byte
}

func newRoutingRecorder() *routingRecorder {
	return &routingRecorder{
		attached:     make(chan *runtime.NodeInstance, 8),
		provideWrite: make(chan []byte, 8),
	}
}

func (r *routingRecorder) NodeAttached(conn *ServerConnection, instance *runtime.NodeInstance) {
	r.attached <- instance
}

func (r *routingRecorder) NodeDetached(conn *ServerConnection, instance *runtime.NodeInstance) {}

func (r *routingRecorder) ProvideDataWritten(conn *ServerConnection, instance *runtime.NodeInstance, offset uint32, data []byte) {
	r.provideWrite <- append([]byte(nil), data...)
}

func waitInstance(t *testing.T, ch chan *runtime.NodeInstance) *runtime.NodeInstance {
	t.Helper()
	select {
	case instance := <-ch:
		return instance
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for node instance")
		return nil
	}
}

func wait(t *testing.T, ch chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for %s", what)
	}
}

func startPair(t *testing.T) (*ClientConnection, *ServerConnection, *recorder, *recorder, *routingRecorder) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()

	clientEvents := newRecorder()
	serverEvents := newRecorder()
	routing := newRoutingRecorder()

	server := NewServerConnection(serverEnd, serverEvents, routing)
	require.NoError(t, server.Start())

	client := NewClientConnection(clientEnd, clientEvents)
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server, clientEvents, serverEvents, routing
}

func TestGreetingHandshake(t *testing.T) {
	client, server, clientEvents, serverEvents, _ := startPair(t)

	require.NoError(t, client.Start())
	wait(t, serverEvents.connected, "server connected")
	wait(t, clientEvents.connected, "client connected")
	assert.True(t, client.GreetingAccepted())
	assert.True(t, server.GreetingAccepted())
}

func TestNodeTransferEndToEnd(t *testing.T) {
	client, server, _, _, routing := startPair(t)

	_, err := client.BuildNode(testNodeText)
	require.NoError(t, err)
	require.NoError(t, client.Start())

	instance := waitInstance(t, routing.attached)
	assert.Equal(t, "TestNode", instance.Name())
	assert.Equal(t, apx.DataStateConnected, instance.State())
	assert.Equal(t, 1, server.NodeManager().Length())

	// initial provide data flows once the server opens the .out file
	select {
	case data := <-routing.provideWrite:
		assert.Equal(t, []byte{0xFF, 0xFF, 0x07, 0x0F}, data)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for provide data")
	}
	assert.Equal(t, []byte{0xFF, 0xFF, 0x07, 0x0F}, instance.NodeData().ProvidePortDataSnapshot())
}

func TestProvidePortWritePropagates(t *testing.T) {
	client, _, _, _, routing := startPair(t)

	clientInstance, err := client.BuildNode(testNodeText)
	require.NoError(t, err)
	require.NoError(t, client.Start())

	serverInstance := waitInstance(t, routing.attached)
	<-routing.provideWrite // initial data

	require.NoError(t, client.WriteProvidePort(clientInstance, 1, []byte{0x2A}))

	select {
	case data := <-routing.provideWrite:
		assert.Equal(t, []byte{0x2A}, data)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for provide write")
	}
	assert.Equal(t, []byte{0xFF, 0xFF, 0x2A, 0x0F}, serverInstance.NodeData().ProvidePortDataSnapshot())
}

func TestRequireDataFlowsBackToClient(t *testing.T) {
	client, server, clientEvents, _, routing := startPair(t)

	clientInstance, err := client.BuildNode(testNodeText)
	require.NoError(t, err)
	require.NoError(t, client.Start())

	serverInstance := waitInstance(t, routing.attached)
	<-routing.provideWrite

	// server pushes new require data into the client's .in file
	require.NoError(t, server.WriteRequireData(serverInstance, 0, []byte{0x09}))

	select {
	case portIDs := <-clientEvents.requireWrite:
		assert.Equal(t, []apx.PortID{0}, portIDs)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for require write")
	}
	data, err := client.ReadRequirePort(clientInstance, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x09}, data)
}

func TestMalformedDefinitionSurfacesError(t *testing.T) {
	client, server, _, serverEvents, _ := startPair(t)

	_, err := client.BuildNode("APX/1.2\nN\"BadNode\"\nP\"Bad\"Z\n")
	require.Error(t, err)

	// a node with an unparsable signature never leaves the client; a
	// definition whose limits are reversed is rejected by the client as
	// well, so the server never sees either node
	badText := "APX/1.2\nN\"BadNode\"\nP\"Bad\"C(5,1):=0\n"
	_, err = client.BuildNode(badText)
	require.Error(t, err)

	require.NoError(t, client.Start())
	wait(t, serverEvents.connected, "server connected")
	assert.Zero(t, server.NodeManager().Length())
}

func TestPortCountFilesPublishOnRequest(t *testing.T) {
	client, server, _, _, routing := startPair(t)

	clientInstance, err := client.BuildNode(testNodeText)
	require.NoError(t, err)
	require.NoError(t, client.Start())

	waitInstance(t, routing.attached)
	<-routing.provideWrite

	require.NoError(t, client.PublishPortCountFiles(clientInstance))

	var coutFile *filemgr.File
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if coutFile = server.FileManager().FindRemoteFileByName("TestNode.cout"); coutFile != nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(t, coutFile)
	require.NotNil(t, server.FileManager().FindRemoteFileByName("TestNode.cin"))

	writes := make(chan []byte, 1)
	coutFile.SetNotificationHandler(filemgr.NotificationHandler{
		WriteNotify: func(f *filemgr.File, offset uint32, data []byte) error {
			writes <- append([]byte(nil), data...)
			return nil
		},
	})
	coutFile.Open()
	require.NoError(t, server.FileManager().SendOpenFileRequest(coutFile.AddressWithoutFlags()))

	select {
	case data := <-writes:
		// one byte per provide port, no connections recorded client-side
		assert.Equal(t, []byte{0, 0, 0}, data)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for count data")
	}
}

func TestGreetingRejectsUnknownProtocol(t *testing.T) {
	assert.Error(t, ParseGreeting([]byte("HTTP/1.1\n\n")))
	assert.NoError(t, ParseGreeting([]byte("RMFP/1.0\n\n")))
	assert.NoError(t, ParseGreeting([]byte("RMFP/1.1\nNumheader-Format:32\n\n")))
	assert.True(t, apx.IsCode(ParseGreeting([]byte("RMFP/1.1\nNumheader-Format:16\n\n")), apx.ErrUnsupported))
}

func TestBuildGreetingRoundTrip(t *testing.T) {
	greeting := BuildGreeting()
	assert.True(t, IsGreeting(greeting))
	assert.NoError(t, ParseGreeting(greeting))
	assert.LessOrEqual(t, len(greeting), 127)
}

var _ filemgr.RemoteFileHandler = (*ServerConnection)(nil)
