// Package filemgr implements the per-connection file machinery of the
// RemoteFile layer: stateful files, the address-ordered file map, the
// receive reassembly buffer, the outbound command worker and the file
// manager tying them together.
package filemgr

import (
	"sync"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/rmf"
)

// Address regions and alignments used when auto-assigning file addresses.
const (
	PortDataAddressStart       = uint32(0x0)
	PortDataAddressAlignment   = uint32(0x400)
	DefinitionAddressStart     = uint32(0x04000000)
	DefinitionAddressAlignment = uint32(0x40000)
	PortCountAddressStart      = uint32(0x08000000)
	PortCountAddressAlignment  = uint32(0x400)
	UserDefinedAddressStart    = uint32(0x20000000)
	UserDefinedAddressAlign    = uint32(0x1000)
)

// NotificationHandler receives callbacks for one file. OpenNotify fires when
// the remote side opens a local file; WriteNotify fires for every completed
// inbound write into the file.
type NotificationHandler struct {
	OpenNotify  func(file *File) error
	CloseNotify func(file *File)
	WriteNotify func(file *File, offset uint32, data []byte) error
}

// File is a stateful published file: metadata plus open state and
// notification handlers.
type File struct {
	info     rmf.FileInfo
	fileType apx.FileType

	mu            sync.Mutex
	isOpen        bool
	hasFirstWrite bool
	handler       NotificationHandler
}

// NewFile constructs a file from a copy of the given metadata.
func NewFile(info *rmf.FileInfo) *File {
	return &File{
		info:     *info.Clone(),
		fileType: rmf.FileTypeOf(info.Name),
	}
}

// Info returns the file's metadata record.
func (f *File) Info() *rmf.FileInfo {
	return &f.info
}

// Name returns the published file name.
func (f *File) Name() string {
	return f.info.Name
}

// Size returns the file size in bytes.
func (f *File) Size() uint32 {
	return f.info.Size
}

// FileType returns the APX file type derived from the name extension.
func (f *File) FileType() apx.FileType {
	return f.fileType
}

// Address returns the file's address including any flags.
func (f *File) Address() uint32 {
	return f.info.Address
}

// AddressWithoutFlags returns the file's address with flags cleared.
func (f *File) AddressWithoutFlags() uint32 {
	return f.info.AddressWithoutFlags()
}

// EndAddress returns the first address after the file's range.
func (f *File) EndAddress() uint32 {
	return f.info.EndAddress()
}

// SetAddress assigns the file address. Only valid before the file enters a
// file map.
func (f *File) SetAddress(address uint32) {
	f.info.Address = address
}

// IsRemote reports whether the file lives in the remote file map.
func (f *File) IsRemote() bool {
	return f.info.IsRemote()
}

// IsLocal reports whether the file has a valid local address.
func (f *File) IsLocal() bool {
	return f.info.Address&rmf.RemoteAddressBit == 0 &&
		f.info.AddressWithoutFlags() != rmf.InvalidAddress
}

// AddressInRange reports whether the flag-less address falls inside the
// file's range.
func (f *File) AddressInRange(address uint32) bool {
	return f.info.AddressInRange(address)
}

// Open marks the file open.
func (f *File) Open() {
	f.mu.Lock()
	f.isOpen = true
	f.mu.Unlock()
}

// Close marks the file closed.
func (f *File) Close() {
	f.mu.Lock()
	f.isOpen = false
	f.mu.Unlock()
}

// IsOpen reports whether the file is open.
func (f *File) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isOpen
}

// SetNotificationHandler installs the file's callbacks.
func (f *File) SetNotificationHandler(handler NotificationHandler) {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
}

// OpenNotify invokes the open callback, if any.
func (f *File) OpenNotify() error {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler.OpenNotify != nil {
		return handler.OpenNotify(f)
	}
	return nil
}

// CloseNotify invokes the close callback, if any.
func (f *File) CloseNotify() {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler.CloseNotify != nil {
		handler.CloseNotify(f)
	}
}

// WriteNotify marks the first write and forwards the data to the write
// callback. Writes without a handler are dropped with an error.
func (f *File) WriteNotify(offset uint32, data []byte) error {
	f.mu.Lock()
	if !f.hasFirstWrite {
		f.hasFirstWrite = true
	}
	handler := f.handler
	f.mu.Unlock()
	if handler.WriteNotify != nil {
		return handler.WriteNotify(f, offset, data)
	}
	return apx.NewError(apx.ErrInvalidWrite)
}

// HasFirstWrite reports whether the file has received at least one write.
func (f *File) HasFirstWrite() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasFirstWrite
}

// Less orders files by flag-less address; used to keep file maps sorted.
func (f *File) Less(other *File) bool {
	return f.AddressWithoutFlags() < other.AddressWithoutFlags()
}
