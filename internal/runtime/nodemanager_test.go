package runtime

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/rmf"
)

func TestServerBuildsNodeFromFileInfo(t *testing.T) {
	manager := NewNodeManager(apx.ServerMode)

	info := rmf.NewFileInfoAt("Node1.apx", 40, 0x04000000)
	instance, err := manager.BuildNodeFromFileInfo(info)
	require.NoError(t, err)
	assert.Equal(t, "Node1", instance.Name())
	assert.Equal(t, apx.DataStateWaitingForFileData, instance.State())
	assert.Equal(t, uint32(40), instance.NodeData().DefinitionSize())
	assert.Equal(t, make([]byte, 40), instance.NodeData().DefinitionData())
	assert.Equal(t, 1, manager.Length())
}

func TestServerRejectsNonDefinitionFile(t *testing.T) {
	manager := NewNodeManager(apx.ServerMode)
	_, err := manager.BuildNodeFromFileInfo(rmf.NewFileInfoAt("Node1.out", 4, 0x0))
	assert.True(t, apx.IsCode(err, apx.ErrInvalidArgument))
}

func TestServerMaterializesPortsAfterDefinitionWrite(t *testing.T) {
	text := "APX/1.2\n" +
		"N\"Node1\"\n" +
		"P\"U16Signal\"S:=65535\n" +
		"R\"U8Signal\"C:=7\n"

	manager := NewNodeManager(apx.ServerMode)
	info := rmf.NewFileInfoAt("Node1.apx", uint32(len(text)), 0x04000000)
	digest := sha256.Sum256([]byte(text))
	require.NoError(t, info.SetDigest(rmf.DigestTypeSHA256, digest[:]))

	instance, err := manager.BuildNodeFromFileInfo(info)
	require.NoError(t, err)

	require.NoError(t, instance.NodeData().WriteDefinitionData(0, []byte(text)))
	require.NoError(t, manager.BuildNodeFromDefinitionData(instance))

	assert.Equal(t, apx.DataStateConnected, instance.State())
	assert.Equal(t, 1, instance.NumProvidePorts())
	assert.Equal(t, 1, instance.NumRequirePorts())
	assert.Equal(t, []byte{0xFF, 0xFF}, instance.NodeData().ProvidePortDataSnapshot())
	assert.Equal(t, []byte{0x07}, instance.NodeData().RequirePortDataSnapshot())

	// server-side byte map covers the provide buffer
	require.NotNil(t, instance.BytePortMap())
	assert.Equal(t, uint32(2), instance.BytePortMap().Length())
}

func TestServerMalformedDefinitionKeepsWaitingState(t *testing.T) {
	badText := "APX/1.2\nN\"Node1\"\nP\"Bad\"Z\n"

	manager := NewNodeManager(apx.ServerMode)
	info := rmf.NewFileInfoAt("Node1.apx", uint32(len(badText)), 0x04000000)
	instance, err := manager.BuildNodeFromFileInfo(info)
	require.NoError(t, err)

	require.NoError(t, instance.NodeData().WriteDefinitionData(0, []byte(badText)))
	err = manager.BuildNodeFromDefinitionData(instance)
	require.Error(t, err)
	assert.Equal(t, apx.DataStateWaitingForFileData, instance.State())

	// other nodes on the connection are unaffected
	_, err = manager.BuildNodeFromFileInfo(rmf.NewFileInfoAt("Node2.apx", 10, 0x04040000))
	assert.NoError(t, err)
	assert.Equal(t, 2, manager.Length())
}

func TestServerDefinitionNameMismatch(t *testing.T) {
	text := "APX/1.2\nN\"Other\"\nP\"V\"C:=0\n"

	manager := NewNodeManager(apx.ServerMode)
	info := rmf.NewFileInfoAt("Node1.apx", uint32(len(text)), 0x04000000)
	instance, err := manager.BuildNodeFromFileInfo(info)
	require.NoError(t, err)

	require.NoError(t, instance.NodeData().WriteDefinitionData(0, []byte(text)))
	err = manager.BuildNodeFromDefinitionData(instance)
	assert.True(t, apx.IsCode(err, apx.ErrParse))
}

func TestDetach(t *testing.T) {
	manager := NewNodeManager(apx.ClientMode)
	instance, err := manager.BuildNode(testNodeText)
	require.NoError(t, err)

	manager.Detach(instance)
	assert.Zero(t, manager.Length())
	assert.Nil(t, manager.Find("TestNode"))
	assert.Equal(t, apx.DataStateDisconnected, instance.State())
}
