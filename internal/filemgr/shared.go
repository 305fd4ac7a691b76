package filemgr

import (
	"sync"

	"github.com/apx-embedded/goapx/internal/rmf"
)

// Shared is the state a file manager shares between its caller-facing API
// and its worker: the local and remote file maps plus the transport.
type Shared struct {
	mu           sync.Mutex
	localMap     *FileMap
	remoteMap    *FileMap
	transport    Transport
	connectionID uint32
}

// NewShared returns shared state bound to the given transport.
func NewShared(transport Transport) *Shared {
	return &Shared{
		localMap:     NewFileMap(false),
		remoteMap:    NewFileMap(true),
		transport:    transport,
		connectionID: 0xFFFFFFFF,
	}
}

// Transport returns the connection's transport.
func (s *Shared) Transport() Transport {
	return s.transport
}

// SetConnectionID stores the id assigned to this connection.
func (s *Shared) SetConnectionID(id uint32) {
	s.mu.Lock()
	s.connectionID = id
	s.mu.Unlock()
}

// ConnectionID returns the id assigned to this connection.
func (s *Shared) ConnectionID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionID
}

// CreateLocalFile inserts a new file into the local map.
func (s *Shared) CreateLocalFile(info *rmf.FileInfo) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localMap.CreateFile(info)
}

// CreateRemoteFile inserts a new file into the remote map.
func (s *Shared) CreateRemoteFile(info *rmf.FileInfo) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteMap.CreateFile(info)
}

// RemoveRemoteFile removes a file from the remote map.
func (s *Shared) RemoveRemoteFile(file *File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteMap.RemoveFile(file)
}

// FindFileByAddress looks up a file by address; the remote address bit
// selects which map is searched.
func (s *Shared) FindFileByAddress(address uint32) *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	if address&rmf.RemoteAddressBit != 0 {
		return s.remoteMap.FindByAddress(address)
	}
	return s.localMap.FindByAddress(address)
}

// FindLocalFileByName looks up a local file by name.
func (s *Shared) FindLocalFileByName(name string) *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localMap.FindByName(name)
}

// FindRemoteFileByName looks up a remote file by name.
func (s *Shared) FindRemoteFileByName(name string) *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteMap.FindByName(name)
}

// CopyLocalFileInfo returns a snapshot of the local files' metadata in
// address order.
func (s *Shared) CopyLocalFileInfo() []*rmf.FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]*rmf.FileInfo, 0, s.localMap.Length())
	for _, f := range s.localMap.Files() {
		infos = append(infos, f.Info().Clone())
	}
	return infos
}

// NumLocalFiles returns the local file count.
func (s *Shared) NumLocalFiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localMap.Length()
}

// NumRemoteFiles returns the remote file count.
func (s *Shared) NumRemoteFiles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteMap.Length()
}

// Disconnected closes every file in both maps.
func (s *Shared) Disconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.localMap.Files() {
		f.Close()
	}
	for _, f := range s.remoteMap.Files() {
		f.Close()
	}
}
