package rmf

import (
	"strings"

	"github.com/apx-embedded/goapx/internal/apx"
)

// FileInfo is the metadata record describing one published file.
type FileInfo struct {
	Name       string
	Size       uint32
	Address    uint32 // may carry RemoteAddressBit
	Kind       FileKind
	DigestType DigestType
	Digest     []byte
}

// NewFileInfo returns a fixed-kind FileInfo with no assigned address.
func NewFileInfo(name string, size uint32) *FileInfo {
	return &FileInfo{
		Name:    name,
		Size:    size,
		Address: InvalidAddress,
		Kind:    FileKindFixed,
	}
}

// NewFileInfoAt is like NewFileInfo but with an explicit start address.
func NewFileInfoAt(name string, size uint32, address uint32) *FileInfo {
	info := NewFileInfo(name, size)
	info.Address = address
	return info
}

// SetDigest attaches a content digest. The digest length must match the
// digest type.
func (f *FileInfo) SetDigest(digestType DigestType, digest []byte) error {
	switch digestType {
	case DigestTypeNone:
		if len(digest) != 0 {
			return apx.NewError(apx.ErrInvalidArgument)
		}
	case DigestTypeSHA1:
		if len(digest) != SHA1Size {
			return apx.NewError(apx.ErrInvalidArgument)
		}
	case DigestTypeSHA256:
		if len(digest) != SHA256Size {
			return apx.NewError(apx.ErrInvalidArgument)
		}
	default:
		return apx.NewError(apx.ErrInvalidArgument)
	}
	f.DigestType = digestType
	f.Digest = append([]byte(nil), digest...)
	return nil
}

// AddressWithoutFlags returns the address with the remote bit cleared.
func (f *FileInfo) AddressWithoutFlags() uint32 {
	return f.Address & 0x7FFFFFFF
}

// EndAddress returns the first address after the file's range, ignoring
// address flags.
func (f *FileInfo) EndAddress() uint32 {
	return f.AddressWithoutFlags() + f.Size
}

// IsRemote reports whether the remote address bit is set.
func (f *FileInfo) IsRemote() bool {
	return f.Address&RemoteAddressBit != 0 && f.AddressWithoutFlags() != InvalidAddress
}

// AddressInRange reports whether the given flag-less address falls inside
// the file's range.
func (f *FileInfo) AddressInRange(address uint32) bool {
	start := f.AddressWithoutFlags()
	return address >= start && address < start+f.Size
}

// Clone returns a deep copy.
func (f *FileInfo) Clone() *FileInfo {
	c := *f
	c.Digest = append([]byte(nil), f.Digest...)
	return &c
}

// BaseName returns the file name with its well-known extension removed.
func (f *FileInfo) BaseName() string {
	if i := strings.LastIndexByte(f.Name, '.'); i > 0 {
		return f.Name[:i]
	}
	return f.Name
}

// FileTypeOf derives the APX file type from the file name extension.
// Names with unrecognized extensions map to the user-defined type.
func FileTypeOf(name string) apx.FileType {
	switch {
	case strings.HasSuffix(name, apx.DefinitionFileExt):
		return apx.DefinitionFileType
	// count extensions before data extensions: ".cout" ends in ".out"
	case strings.HasSuffix(name, apx.ProvidePortCountFileExt):
		return apx.ProvidePortCountFileType
	case strings.HasSuffix(name, apx.RequirePortCountFileExt):
		return apx.RequirePortCountFileType
	case strings.HasSuffix(name, apx.ProvidePortDataFileExt):
		return apx.ProvidePortDataFileType
	case strings.HasSuffix(name, apx.RequirePortDataFileExt):
		return apx.RequirePortDataFileType
	}
	return apx.UserDefinedFileTypeBegin
}
