package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/connection"
	"github.com/apx-embedded/goapx/internal/runtime"
)

const providerText = "APX/1.2\n" +
	"N\"Provider\"\n" +
	"P\"VehicleSpeed\"S:=65535\n"

const consumerText = "APX/1.2\n" +
	"N\"Consumer\"\n" +
	"R\"VehicleSpeed\"S:=65535\n"

type clientEvents struct {
	connection.NopEvents
	requireWrite chan []apx.PortID
}

func newClientEvents() *clientEvents {
	return &clientEvents{requireWrite: make(chan []apx.PortID, 16)}
}

func (e *clientEvents) RequirePortsWritten(instance *runtime.NodeInstance, portIDs []apx.PortID) {
	e.requireWrite <- portIDs
}

// attachClient connects a client with one node definition to the server.
func attachClient(t *testing.T, s *Server, text string) (*connection.ClientConnection, *runtime.NodeInstance, *clientEvents) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()

	events := newClientEvents()
	client := connection.NewClientConnection(clientEnd, events)
	require.NoError(t, s.Attach(serverEnd))

	instance, err := client.BuildNode(text)
	require.NoError(t, err)
	require.NoError(t, client.Start())
	t.Cleanup(func() {
		client.Close()
	})
	return client, instance, events
}

func waitForNode(t *testing.T, s *Server, name string) *runtime.NodeInstance {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for instance := range s.Nodes() {
			if instance.Name() == name {
				return instance
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for node %s", name)
	return nil
}

func waitRequireValue(t *testing.T, client *connection.ClientConnection, instance *runtime.NodeInstance, portID apx.PortID, expected []byte) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, err := client.ReadRequirePort(instance, portID)
		require.NoError(t, err)
		if string(data) == string(expected) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	data, _ := client.ReadRequirePort(instance, portID)
	t.Fatalf("require port never reached %v, last value %v", expected, data)
}

func TestRoutingBetweenTwoClients(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	_, _, _ = attachClient(t, s, providerText)
	consumer, consumerInstance, _ := attachClient(t, s, consumerText)

	waitForNode(t, s, "Provider")
	waitForNode(t, s, "Consumer")

	// initial provide data reaches the consumer's require port
	waitRequireValue(t, consumer, consumerInstance, 0, []byte{0xFF, 0xFF})
}

func TestProvideWriteRoutesToConsumer(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	provider, providerInstance, _ := attachClient(t, s, providerText)
	consumer, consumerInstance, consumerEvents := attachClient(t, s, consumerText)

	waitForNode(t, s, "Provider")
	waitForNode(t, s, "Consumer")
	waitRequireValue(t, consumer, consumerInstance, 0, []byte{0xFF, 0xFF})

	require.NoError(t, provider.WriteProvidePort(providerInstance, 0, []byte{0x34, 0x12}))
	waitRequireValue(t, consumer, consumerInstance, 0, []byte{0x34, 0x12})

	select {
	case portIDs := <-consumerEvents.requireWrite:
		assert.Equal(t, []apx.PortID{0}, portIDs)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for require write event")
	}
}

func TestConnectionCountsTrackRouting(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	_, _, _ = attachClient(t, s, providerText)
	consumer, consumerInstance, _ := attachClient(t, s, consumerText)

	providerNode := waitForNode(t, s, "Provider")
	waitForNode(t, s, "Consumer")
	waitRequireValue(t, consumer, consumerInstance, 0, []byte{0xFF, 0xFF})

	assert.Equal(t, uint32(1), providerNode.NodeData().ProvideConnectionCount(0))

	consumer.Close()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if providerNode.NodeData().ProvideConnectionCount(0) == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, uint32(0), providerNode.NodeData().ProvideConnectionCount(0))
}

func TestLateProviderSeedsExistingConsumer(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	consumer, consumerInstance, _ := attachClient(t, s, consumerText)
	waitForNode(t, s, "Consumer")

	provider, providerInstance, _ := attachClient(t, s, providerText)
	waitForNode(t, s, "Provider")

	waitRequireValue(t, consumer, consumerInstance, 0, []byte{0xFF, 0xFF})

	require.NoError(t, provider.WriteProvidePort(providerInstance, 0, []byte{0x01, 0x02}))
	waitRequireValue(t, consumer, consumerInstance, 0, []byte{0x01, 0x02})
}

func TestUnrelatedSignaturesStayApart(t *testing.T) {
	s := New(Config{})
	defer s.Close()

	_, _, _ = attachClient(t, s, providerText)
	other, otherInstance, _ := attachClient(t, s, "APX/1.2\nN\"Other\"\nR\"EngineSpeed\"S:=0\n")

	waitForNode(t, s, "Provider")
	waitForNode(t, s, "Other")

	// different port names never connect, the require port keeps its init
	time.Sleep(100 * time.Millisecond)
	data, err := other.ReadRequirePort(otherInstance, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00}, data)
}
