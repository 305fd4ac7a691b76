package filemgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/rmf"
)

func TestFileMapAutoAssignDefinitionFiles(t *testing.T) {
	m := NewFileMap(false)

	f1, err := m.CreateFile(rmf.NewFileInfo("Node1.apx", 100))
	require.NoError(t, err)
	f2, err := m.CreateFile(rmf.NewFileInfo("Node2.apx", 200))
	require.NoError(t, err)
	f3, err := m.CreateFile(rmf.NewFileInfo("Node3.apx", 300))
	require.NoError(t, err)

	assert.Equal(t, uint32(0x04000000), f1.Address())
	assert.Equal(t, uint32(0x04040000), f2.Address())
	assert.Equal(t, uint32(0x04080000), f3.Address())
}

func TestFileMapAutoAssignPortDataFiles(t *testing.T) {
	m := NewFileMap(false)

	out, err := m.CreateFile(rmf.NewFileInfo("Node1.out", 4))
	require.NoError(t, err)
	in, err := m.CreateFile(rmf.NewFileInfo("Node1.in", 5))
	require.NoError(t, err)

	assert.Equal(t, uint32(0x0), out.Address())
	assert.Equal(t, uint32(0x400), in.Address())
}

func TestFileMapMixedTypesStayOrdered(t *testing.T) {
	m := NewFileMap(false)

	_, err := m.CreateFile(rmf.NewFileInfo("Node1.apx", 100))
	require.NoError(t, err)
	_, err = m.CreateFile(rmf.NewFileInfo("Node1.out", 4))
	require.NoError(t, err)
	_, err = m.CreateFile(rmf.NewFileInfo("Node1.in", 4))
	require.NoError(t, err)

	files := m.Files()
	require.Len(t, files, 3)
	for i := 1; i < len(files); i++ {
		assert.True(t, files[i-1].AddressWithoutFlags() < files[i].AddressWithoutFlags())
		assert.True(t, files[i-1].EndAddress() <= files[i].AddressWithoutFlags())
	}
}

func TestFileMapExplicitAddressOverlapRejected(t *testing.T) {
	m := NewFileMap(false)

	_, err := m.CreateFile(rmf.NewFileInfoAt("a.out", 0x100, 0x0))
	require.NoError(t, err)

	_, err = m.CreateFile(rmf.NewFileInfoAt("b.out", 0x100, 0x80))
	assert.True(t, apx.IsCode(err, apx.ErrFileAlreadyExists))

	_, err = m.CreateFile(rmf.NewFileInfoAt("c.out", 0x100, 0x100))
	assert.NoError(t, err)
}

func TestFileMapRejectsCommandAreaOverlap(t *testing.T) {
	m := NewFileMap(false)

	_, err := m.CreateFile(rmf.NewFileInfoAt("big.bin", 0x800, rmf.CmdAreaStartAddress-0x400))
	assert.True(t, apx.IsCode(err, apx.ErrInvalidAddress))
}

func TestFileMapFindByAddress(t *testing.T) {
	m := NewFileMap(false)

	f, err := m.CreateFile(rmf.NewFileInfoAt("a.out", 4, 0x0))
	require.NoError(t, err)
	g, err := m.CreateFile(rmf.NewFileInfoAt("b.out", 8, 0x400))
	require.NoError(t, err)

	assert.Same(t, f, m.FindByAddress(0x0))
	assert.Same(t, f, m.FindByAddress(0x3))
	assert.Nil(t, m.FindByAddress(0x4))
	assert.Same(t, g, m.FindByAddress(0x407))
	// repeated lookups hit the cache
	assert.Same(t, g, m.FindByAddress(0x400))
}

func TestFileMapFindByName(t *testing.T) {
	m := NewFileMap(false)

	f, err := m.CreateFile(rmf.NewFileInfo("TestNode.apx", 40))
	require.NoError(t, err)
	assert.Same(t, f, m.FindByName("TestNode.apx"))
	assert.Nil(t, m.FindByName("Other.apx"))
}

func TestFileMapRemoteFilesCarryRemoteBit(t *testing.T) {
	m := NewFileMap(true)

	f, err := m.CreateFile(rmf.NewFileInfoAt("Node1.apx", 40, 0x04000000))
	require.NoError(t, err)
	assert.True(t, f.IsRemote())
	assert.Equal(t, uint32(0x04000000)|rmf.RemoteAddressBit, f.Address())
	assert.Equal(t, uint32(0x04000000), f.AddressWithoutFlags())
	assert.Same(t, f, m.FindByAddress(0x04000000))
}

func TestFileMapRemoveFile(t *testing.T) {
	m := NewFileMap(false)

	f, err := m.CreateFile(rmf.NewFileInfo("Node1.apx", 40))
	require.NoError(t, err)
	require.NoError(t, m.RemoveFile(f))
	assert.Zero(t, m.Length())
	assert.True(t, apx.IsCode(m.RemoveFile(f), apx.ErrNotFound))
}
