package filemgr

import (
	"sort"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/rmf"
)

// FileMap is an address-ordered list of files plus a one-element lookup
// cache. Files never overlap and never cross into the command area. The map
// itself is not goroutine safe; its owner serializes access.
type FileMap struct {
	isRemote bool
	files    []*File
	lastFile *File
}

// NewFileMap returns an empty map. Remote maps tag inserted files with the
// remote address bit.
func NewFileMap(isRemote bool) *FileMap {
	return &FileMap{isRemote: isRemote}
}

// IsRemote reports whether this is the remote-side map.
func (m *FileMap) IsRemote() bool {
	return m.isRemote
}

// Length returns the number of files in the map.
func (m *FileMap) Length() int {
	return len(m.files)
}

// Files returns the address-ordered file list.
func (m *FileMap) Files() []*File {
	return m.files
}

// CreateFile constructs a file from the given metadata and inserts it. Files
// without an address get one auto-assigned from their type's region.
func (m *FileMap) CreateFile(info *rmf.FileInfo) (*File, error) {
	file := NewFile(info)
	var left int
	if file.AddressWithoutFlags() == rmf.InvalidAddress {
		left = m.autoAssignAddress(file)
	} else {
		left = m.findInsertionPoint(file)
	}
	if m.isRemote {
		file.SetAddress(file.Address() | rmf.RemoteAddressBit)
	}
	if err := m.insertAt(file, left); err != nil {
		return nil, err
	}
	return file, nil
}

// RemoveFile removes the given file from the map.
func (m *FileMap) RemoveFile(file *File) error {
	m.lastFile = nil
	for i, f := range m.files {
		if f == file {
			m.files = append(m.files[:i], m.files[i+1:]...)
			return nil
		}
	}
	return apx.NewError(apx.ErrNotFound)
}

// FindByAddress returns the file whose range covers the given address, or
// nil. The last hit is cached for fast repeated access.
func (m *FileMap) FindByAddress(address uint32) *File {
	address &= 0x7FFFFFFF
	if m.lastFile != nil && m.lastFile.AddressInRange(address) {
		return m.lastFile
	}
	for _, f := range m.files {
		if f.AddressInRange(address) {
			m.lastFile = f
			return f
		}
	}
	return nil
}

// FindByName returns the file with the given name, or nil.
func (m *FileMap) FindByName(name string) *File {
	if m.lastFile != nil && m.lastFile.Name() == name {
		return m.lastFile
	}
	for _, f := range m.files {
		if f.Name() == name {
			m.lastFile = f
			return f
		}
	}
	return nil
}

// regionOf returns the start address and alignment for a file type.
func regionOf(fileType apx.FileType) (uint32, uint32) {
	switch fileType {
	case apx.DefinitionFileType:
		return DefinitionAddressStart, DefinitionAddressAlignment
	case apx.ProvidePortDataFileType, apx.RequirePortDataFileType:
		return PortDataAddressStart, PortDataAddressAlignment
	case apx.ProvidePortCountFileType, apx.RequirePortCountFileType:
		return PortCountAddressStart, PortCountAddressAlignment
	}
	return UserDefinedAddressStart, UserDefinedAddressAlign
}

// autoAssignAddress picks the next aligned address after the last file of
// the same type and returns the index of the element the new file follows
// (-1 when it goes first).
func (m *FileMap) autoAssignAddress(file *File) int {
	start, alignment := regionOf(file.FileType())
	last := m.findLastOfType(file.FileType())
	if last < 0 {
		file.SetAddress(start)
		return m.findInsertionPoint(file)
	}
	end := m.files[last].EndAddress()
	var address uint32
	if alignment&(alignment-1) == 0 {
		// alignment is a power of 2, round up directly
		address = (end + alignment - 1) &^ (alignment - 1)
	} else {
		address = start
		for address < end {
			address += alignment
		}
	}
	file.SetAddress(address)
	return last
}

// findLastOfType returns the index of the last file allocated from the same
// address region, or -1. Provide and require port data share one region, so
// matching is by region rather than by exact file type.
func (m *FileMap) findLastOfType(fileType apx.FileType) int {
	start, _ := regionOf(fileType)
	last := -1
	for i, f := range m.files {
		if s, _ := regionOf(f.FileType()); s == start {
			last = i
		} else if last >= 0 {
			break
		}
	}
	return last
}

// findInsertionPoint returns the index of the last file starting before the
// given file, or -1.
func (m *FileMap) findInsertionPoint(file *File) int {
	address := file.AddressWithoutFlags()
	i := sort.Search(len(m.files), func(i int) bool {
		return m.files[i].AddressWithoutFlags() >= address
	})
	return i - 1
}

// insertAt places the file after index left, rejecting any overlap with the
// following file or with the command area.
func (m *FileMap) insertAt(file *File, left int) error {
	m.lastFile = nil
	start := file.AddressWithoutFlags()
	end := file.EndAddress() & 0x7FFFFFFF

	if end > rmf.CmdAreaStartAddress {
		return apx.NewError(apx.ErrInvalidAddress)
	}
	if left >= 0 {
		if m.files[left].EndAddress() > start {
			return apx.NewError(apx.ErrFileAlreadyExists)
		}
	}
	right := left + 1
	if right < len(m.files) {
		if end > m.files[right].AddressWithoutFlags() {
			return apx.NewError(apx.ErrFileAlreadyExists)
		}
	}
	m.files = append(m.files, nil)
	copy(m.files[right+1:], m.files[right:])
	m.files[right] = file
	return nil
}
