package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/runtime"
)

func buildInstance(t *testing.T, text string) *runtime.NodeInstance {
	t.Helper()
	manager := runtime.NewNodeManager(apx.ServerMode)
	instance, err := manager.BuildNode(text)
	require.NoError(t, err)
	return instance
}

const providerText = "APX/1.2\n" +
	"N\"Provider\"\n" +
	"P\"VehicleSpeed\"S:=65535\n"

const consumerText = "APX/1.2\n" +
	"N\"Consumer\"\n" +
	"R\"VehicleSpeed\"S:=65535\n"

func TestAttachGroupsPortsBySignature(t *testing.T) {
	m := NewPortSignatureMap()

	provider := buildInstance(t, providerText)
	consumer := buildInstance(t, consumerText)

	require.NoError(t, m.AttachNode(provider))
	assert.Equal(t, 1, m.Length())
	require.NoError(t, m.AttachNode(consumer))
	assert.Equal(t, 1, m.Length())

	entry := m.Find(`"VehicleSpeed"S`)
	require.NotNil(t, entry)
	assert.Len(t, entry.ProvidePorts(), 1)
	assert.Len(t, entry.RequirePorts(), 1)
	assert.Same(t, provider.ProvidePort(0), entry.PreferredProvider())
}

func TestAttachRecordsConnectDeltas(t *testing.T) {
	m := NewPortSignatureMap()

	provider := buildInstance(t, providerText)
	consumer := buildInstance(t, consumerText)

	require.NoError(t, m.AttachNode(provider))
	require.NoError(t, m.AttachNode(consumer))

	provideEntry := provider.ProvideChanges().Entry(0)
	require.NotNil(t, provideEntry)
	assert.Equal(t, int32(1), provideEntry.Count)
	require.Len(t, provideEntry.Peers(), 1)
	assert.Same(t, consumer.RequirePort(0), provideEntry.Peers()[0])

	requireEntry := consumer.RequireChanges().Entry(0)
	require.NotNil(t, requireEntry)
	assert.Equal(t, int32(1), requireEntry.Count)
	assert.Same(t, provider.ProvidePort(0), requireEntry.Peers()[0])
}

func TestMismatchedSignaturesDoNotConnect(t *testing.T) {
	m := NewPortSignatureMap()

	provider := buildInstance(t, providerText)
	other := buildInstance(t, "APX/1.2\nN\"Other\"\nR\"VehicleSpeed\"L:=0\n")

	require.NoError(t, m.AttachNode(provider))
	require.NoError(t, m.AttachNode(other))

	// u16 provide and u32 require stay apart
	assert.Equal(t, 2, m.Length())
	assert.Equal(t, int32(0), provider.ProvideChanges().Entry(0).Count)
	assert.Equal(t, int32(0), other.RequireChanges().Entry(0).Count)
}

func TestMultipleConsumersSpillIntoPeerList(t *testing.T) {
	m := NewPortSignatureMap()

	provider := buildInstance(t, providerText)
	require.NoError(t, m.AttachNode(provider))

	consumers := make([]*runtime.NodeInstance, 3)
	for i := range consumers {
		text := "APX/1.2\n" +
			"N\"Consumer" + string(rune('0'+i)) + "\"\n" +
			"R\"VehicleSpeed\"S:=65535\n"
		consumers[i] = buildInstance(t, text)
		require.NoError(t, m.AttachNode(consumers[i]))
	}

	entry := provider.ProvideChanges().Entry(0)
	assert.Equal(t, int32(3), entry.Count)
	assert.Len(t, entry.Peers(), 3)
}

func TestDetachRecordsDisconnectDeltas(t *testing.T) {
	m := NewPortSignatureMap()

	provider := buildInstance(t, providerText)
	consumer := buildInstance(t, consumerText)
	require.NoError(t, m.AttachNode(provider))
	require.NoError(t, m.AttachNode(consumer))

	// clear the connect deltas before detaching
	provider.SwapProvideChanges()
	consumer.SwapRequireChanges()

	m.DetachNode(consumer)
	assert.Equal(t, int32(-1), provider.ProvideChanges().Entry(0).Count)

	// entry survives while the provider remains
	assert.Equal(t, 1, m.Length())
	m.DetachNode(provider)
	assert.Zero(t, m.Length())
}

func TestCollectEvents(t *testing.T) {
	m := NewPortSignatureMap()

	provider := buildInstance(t, providerText)
	consumer := buildInstance(t, consumerText)
	require.NoError(t, m.AttachNode(provider))
	require.NoError(t, m.AttachNode(consumer))

	events := CollectEvents(provider, provider.SwapProvideChanges(), provider.SwapRequireChanges())
	require.Len(t, events, 1)
	assert.Equal(t, apx.PortConnectedEvent, events[0].Kind)
	assert.Same(t, provider.ProvidePort(0), events[0].ProvidePort)
	assert.Same(t, consumer.RequirePort(0), events[0].RequirePort)

	// change tables are consumed by the swap
	assert.Equal(t, int32(0), provider.ProvideChanges().Entry(0).Count)
}
