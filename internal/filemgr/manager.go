package filemgr

import (
	log "github.com/apx-embedded/goapx/pkg/apxlog"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/rmf"
)

// FileManager owns one connection's file maps, receiver and worker. Inbound
// messages are dispatched either to the command handlers or to file write
// notifications; outbound operations are queued onto the worker.
type FileManager struct {
	mode     apx.Mode
	shared   *Shared
	receiver *Receiver
	worker   *Worker
	handler  RemoteFileHandler
}

// NewFileManager returns a stopped file manager for the given mode.
func NewFileManager(mode apx.Mode, transport Transport, handler RemoteFileHandler) *FileManager {
	shared := NewShared(transport)
	return &FileManager{
		mode:     mode,
		shared:   shared,
		receiver: NewReceiver(),
		worker:   NewWorker(shared, mode),
		handler:  handler,
	}
}

// Mode returns the manager's connection mode.
func (m *FileManager) Mode() apx.Mode {
	return m.mode
}

// Shared exposes the file maps for the owning connection.
func (m *FileManager) Shared() *Shared {
	return m.shared
}

// Start launches the worker goroutine.
func (m *FileManager) Start() error {
	return m.worker.Start()
}

// Stop drains the worker and joins it.
func (m *FileManager) Stop() error {
	return m.worker.Stop()
}

// Connected is called when the greeting handshake completes. Clients
// publish all local files; servers acknowledge the client's header.
func (m *FileManager) Connected() {
	if m.mode == apx.ClientMode {
		m.publishLocalFiles()
	} else {
		if err := m.worker.PrepareAcknowledge(); err != nil {
			log.Error("file manager: acknowledge: %v", err)
		}
	}
}

// Disconnected closes all files and resets the receiver.
func (m *FileManager) Disconnected() {
	m.shared.Disconnected()
	m.receiver.Reset()
}

// CreateLocalFile inserts a local file without publishing it.
func (m *FileManager) CreateLocalFile(info *rmf.FileInfo) (*File, error) {
	return m.shared.CreateLocalFile(info)
}

// PublishLocalFile queues a publish-file command for an already-created
// local file.
func (m *FileManager) PublishLocalFile(info *rmf.FileInfo) error {
	return m.worker.PreparePublishLocalFile(info.Clone())
}

// RevokeLocalFile marks a local file closed and announces the revocation.
func (m *FileManager) RevokeLocalFile(address uint32) error {
	file := m.shared.FindFileByAddress(address)
	if file == nil {
		return apx.NewError(apx.ErrFileNotFound)
	}
	file.Close()
	return m.worker.PrepareRevokeLocalFile(address)
}

// FindFileByAddress looks up a file in either map by flagged address.
func (m *FileManager) FindFileByAddress(address uint32) *File {
	return m.shared.FindFileByAddress(address)
}

// FindLocalFileByName looks up a local file by name.
func (m *FileManager) FindLocalFileByName(name string) *File {
	return m.shared.FindLocalFileByName(name)
}

// FindRemoteFileByName looks up a remote file by name.
func (m *FileManager) FindRemoteFileByName(name string) *File {
	return m.shared.FindRemoteFileByName(name)
}

// MessageReceived feeds one framed message (address header plus payload)
// into the receiver and dispatches any completed message.
func (m *FileManager) MessageReceived(msg []byte) error {
	headerSize, address, moreBit := rmf.DecodeAddress(msg)
	if headerSize == 0 {
		return apx.NewError(apx.ErrInvalidMsg)
	}
	result, err := m.receiver.Write(address, msg[headerSize:], moreBit)
	if err != nil {
		return err
	}
	if result.IsComplete {
		return m.processMessage(result.Address, result.Data)
	}
	return nil
}

// SendLocalConstData queues a write of immutable local file data. The file
// must exist and be open.
func (m *FileManager) SendLocalConstData(address uint32, data []byte) error {
	file := m.shared.FindFileByAddress(address)
	if file == nil {
		return apx.NewError(apx.ErrFileNotFound)
	}
	if !file.IsOpen() {
		return apx.NewError(apx.ErrFileNotOpen)
	}
	return m.worker.PrepareSendLocalConstData(address, data)
}

// SendLocalData queues a write of local file data; the worker takes
// ownership of the slice.
func (m *FileManager) SendLocalData(address uint32, data []byte) error {
	file := m.shared.FindFileByAddress(address)
	if file == nil {
		return apx.NewError(apx.ErrFileNotFound)
	}
	if !file.IsOpen() {
		return apx.NewError(apx.ErrFileNotOpen)
	}
	return m.worker.PrepareSendLocalData(address, data)
}

// SendRemoteData queues a write into a file the peer published. The
// address is the flag-less start address of the target bytes; being the
// publisher, the peer accepts writes without an open handshake.
func (m *FileManager) SendRemoteData(address uint32, data []byte) error {
	file := m.shared.FindFileByAddress(address | rmf.RemoteAddressBit)
	if file == nil {
		return apx.NewError(apx.ErrFileNotFound)
	}
	return m.worker.PrepareSendLocalData(address, data)
}

// SendOpenFileRequest queues an open-file request for a remote file.
func (m *FileManager) SendOpenFileRequest(address uint32) error {
	return m.worker.PrepareSendOpenFileRequest(address)
}

// SendErrorCode queues an error code reply to the peer.
func (m *FileManager) SendErrorCode(errorCode uint32) error {
	return m.worker.PrepareSendErrorCode(errorCode)
}

// NumPendingCommands returns the worker queue length.
func (m *FileManager) NumPendingCommands() int {
	return m.worker.NumPendingCommands()
}

// RunWorkerOnce drains the worker queue on the caller's goroutine; used by
// tests and single-threaded callers.
func (m *FileManager) RunWorkerOnce() bool {
	return m.worker.RunOnce()
}

func (m *FileManager) publishLocalFiles() {
	for _, info := range m.shared.CopyLocalFileInfo() {
		if err := m.worker.PreparePublishLocalFile(info); err != nil {
			log.Error("file manager: publish %s: %v", info.Name, err)
		}
	}
}

func (m *FileManager) processMessage(address uint32, data []byte) error {
	if address == rmf.CmdAreaStartAddress {
		return m.processCommandMessage(data)
	}
	if address < rmf.CmdAreaStartAddress {
		return m.processFileWriteMessage(address, data)
	}
	return apx.NewError(apx.ErrInvalidAddress)
}

func (m *FileManager) processCommandMessage(data []byte) error {
	_, cmd, err := rmf.DecodeCmd(data)
	if err != nil {
		return err
	}
	switch cmd.Type {
	case rmf.CmdPublishFile:
		return m.processRemoteFilePublished(cmd.Info)
	case rmf.CmdRevokeFile:
		return m.processRemoteFileRevoked(cmd.Address)
	case rmf.CmdOpenFile:
		return m.processOpenFileRequest(cmd.Address)
	case rmf.CmdCloseFile:
		return m.processCloseFileRequest(cmd.Address)
	case rmf.CmdAck, rmf.CmdNack:
		// handled at connection level during the greeting; ignored here
		return nil
	}
	return apx.NewError(apx.ErrUnsupported)
}

func (m *FileManager) processFileWriteMessage(address uint32, data []byte) error {
	file := m.shared.FindFileByAddress(address | rmf.RemoteAddressBit)
	if file != nil {
		if !file.IsOpen() {
			// writes on closed files are ignored
			return nil
		}
	} else {
		// writes into local files: the peer pushes data into files we
		// published (require port data on the client side)
		file = m.shared.FindFileByAddress(address)
		if file == nil {
			return apx.NewError(apx.ErrInvalidWrite)
		}
	}
	offset := address - file.AddressWithoutFlags()
	if m.handler != nil {
		return m.handler.RemoteFileWriteNotification(file, offset, data)
	}
	return file.WriteNotify(offset, data)
}

func (m *FileManager) processOpenFileRequest(startAddress uint32) error {
	file := m.shared.FindFileByAddress(startAddress)
	if file == nil {
		return apx.NewError(apx.ErrFileNotFound)
	}
	file.Open()
	return file.OpenNotify()
}

// processCloseFileRequest marks the local file closed. There is no final
// flush; data queued before the close still drains in order.
func (m *FileManager) processCloseFileRequest(startAddress uint32) error {
	file := m.shared.FindFileByAddress(startAddress)
	if file == nil {
		return apx.NewError(apx.ErrFileNotFound)
	}
	file.Close()
	file.CloseNotify()
	return nil
}

func (m *FileManager) processRemoteFilePublished(info *rmf.FileInfo) error {
	// grow the reassembly buffer so a full write of this file fits
	if err := m.receiver.Reserve(info.Size); err != nil {
		return err
	}
	file, err := m.shared.CreateRemoteFile(info)
	if err != nil {
		return apx.NewError(apx.ErrFileCreate)
	}
	if m.handler != nil {
		return m.handler.RemoteFilePublishedNotification(file)
	}
	return nil
}

// processRemoteFileRevoked removes a revoked file from the remote map.
func (m *FileManager) processRemoteFileRevoked(address uint32) error {
	file := m.shared.FindFileByAddress(address | rmf.RemoteAddressBit)
	if file == nil {
		return apx.NewError(apx.ErrFileNotFound)
	}
	file.Close()
	file.CloseNotify()
	return m.shared.RemoveRemoteFile(file)
}
