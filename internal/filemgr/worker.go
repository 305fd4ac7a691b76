package filemgr

import (
	"sync"
	"time"

	log "github.com/apx-embedded/goapx/pkg/apxlog"

	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/rmf"
)

// Command kinds processed by the worker.
const (
	cmdExit = iota
	cmdSendAck
	cmdSendErrorCode
	cmdPublishLocalFile
	cmdRevokeLocalFile
	cmdOpenRemoteFile
	cmdCloseRemoteFile
	cmdSendLocalConstData
	cmdSendLocalData
	cmdSendHeaderAccepted
)

// smallDataSize is the inline payload capacity of a command; larger
// payloads travel as an owned slice.
const smallDataSize = 8

type command struct {
	kind  uint8
	data1 uint32
	data2 uint32
	small [smallDataSize]byte
	data  []byte
	info  *rmf.FileInfo
}

const workerJoinTimeout = 5 * time.Second

// Worker owns the sole write half of the transport. Commands are queued
// onto a bounded buffer and serialized onto the wire by a single goroutine
// in enqueue order.
type Worker struct {
	shared *Shared
	mode   apx.Mode

	mu      sync.Mutex
	queue   []command
	wake    chan struct{}
	done    chan struct{}
	running bool
}

// NewWorker returns a stopped worker bound to the shared state.
func NewWorker(shared *Shared, mode apx.Mode) *Worker {
	return &Worker{
		shared: shared,
		mode:   mode,
		wake:   make(chan struct{}, 1),
	}
}

// Start launches the worker goroutine.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return apx.NewError(apx.ErrInvalidState)
	}
	w.running = true
	w.done = make(chan struct{})
	go w.run()
	return nil
}

// Stop enqueues the exit command and joins the worker. A worker that does
// not exit within the join timeout is reported but abandoned.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.queue = append(w.queue, command{kind: cmdExit})
	done := w.done
	w.mu.Unlock()
	w.post()

	select {
	case <-done:
		return nil
	case <-time.After(workerJoinTimeout):
		return apx.NewError(apx.ErrThreadJoinTimeout)
	}
}

// NumPendingCommands returns the queue length.
func (w *Worker) NumPendingCommands() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

func (w *Worker) post() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// enqueue appends a command, failing with a transient error when the queue
// is at capacity. Callers never block.
func (w *Worker) enqueue(cmd command) error {
	w.mu.Lock()
	if len(w.queue) >= apx.MaxNumMessages {
		w.mu.Unlock()
		return apx.NewError(apx.ErrBufferFull)
	}
	w.queue = append(w.queue, cmd)
	w.mu.Unlock()
	w.post()
	return nil
}

// PrepareAcknowledge queues an ACK for transmission.
func (w *Worker) PrepareAcknowledge() error {
	return w.enqueue(command{kind: cmdSendAck})
}

// PrepareHeaderAccepted queues the server's greeting acceptance.
func (w *Worker) PrepareHeaderAccepted(connectionID uint32) error {
	return w.enqueue(command{kind: cmdSendHeaderAccepted, data1: connectionID})
}

// PrepareSendErrorCode queues an error code reply.
func (w *Worker) PrepareSendErrorCode(errorCode uint32) error {
	return w.enqueue(command{kind: cmdSendErrorCode, data1: errorCode})
}

// PreparePublishLocalFile queues a publish-file command. The worker takes
// ownership of the file info.
func (w *Worker) PreparePublishLocalFile(info *rmf.FileInfo) error {
	return w.enqueue(command{kind: cmdPublishLocalFile, info: info})
}

// PrepareRevokeLocalFile queues a revoke-file command.
func (w *Worker) PrepareRevokeLocalFile(address uint32) error {
	return w.enqueue(command{kind: cmdRevokeLocalFile, data1: address})
}

// PrepareSendOpenFileRequest queues an open-file request.
func (w *Worker) PrepareSendOpenFileRequest(address uint32) error {
	return w.enqueue(command{kind: cmdOpenRemoteFile, data1: address})
}

// PrepareSendCloseFileRequest queues a close-file request.
func (w *Worker) PrepareSendCloseFileRequest(address uint32) error {
	return w.enqueue(command{kind: cmdCloseRemoteFile, data1: address})
}

// PrepareSendLocalConstData queues a write of caller-owned, immutable data.
func (w *Worker) PrepareSendLocalConstData(address uint32, data []byte) error {
	return w.enqueue(command{kind: cmdSendLocalConstData, data1: address, data2: uint32(len(data)), data: data})
}

// PrepareSendLocalData queues a write of data the worker takes ownership of.
// Small payloads are copied inline into the command.
func (w *Worker) PrepareSendLocalData(address uint32, data []byte) error {
	cmd := command{kind: cmdSendLocalData, data1: address, data2: uint32(len(data))}
	if len(data) <= smallDataSize {
		copy(cmd.small[:], data)
	} else {
		cmd.data = data
	}
	return w.enqueue(cmd)
}

// RunOnce drains the current queue on the caller's goroutine. Used by tests
// and by callers that run without the worker goroutine.
func (w *Worker) RunOnce() bool {
	return w.drain()
}

func (w *Worker) run() {
	defer close(w.done)
	for range w.wake {
		if !w.drain() {
			return
		}
	}
}

// drain pops all queued commands and serializes them inside one
// transmit_begin/transmit_end bracket. Returns false when the exit command
// was seen.
func (w *Worker) drain() bool {
	w.mu.Lock()
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()
	if len(batch) == 0 {
		return true
	}

	transport := w.shared.Transport()
	transport.TransmitBegin()
	defer transport.TransmitEnd()
	for i := range batch {
		if !w.processCommand(&batch[i]) {
			return false
		}
	}
	return true
}

func (w *Worker) processCommand(cmd *command) bool {
	var err error
	switch cmd.kind {
	case cmdExit:
		return false
	case cmdSendAck, cmdSendHeaderAccepted:
		err = w.runSendAcknowledge()
	case cmdSendErrorCode:
		err = w.runSendErrorCode(cmd.data1)
	case cmdPublishLocalFile:
		err = w.runPublishLocalFile(cmd.info)
	case cmdRevokeLocalFile:
		err = w.runRevokeLocalFile(cmd.data1)
	case cmdOpenRemoteFile:
		err = w.runSendAddressCmd(rmf.EncodeOpenFileCmd, cmd.data1)
	case cmdCloseRemoteFile:
		err = w.runSendAddressCmd(rmf.EncodeCloseFileCmd, cmd.data1)
	case cmdSendLocalConstData:
		err = w.runSendLocalData(cmd.data1, cmd.data)
	case cmdSendLocalData:
		data := cmd.data
		if data == nil {
			data = cmd.small[:cmd.data2]
		}
		err = w.runSendLocalData(cmd.data1, data)
	default:
		log.Error("worker: unknown command kind %d", cmd.kind)
		return false
	}
	if err != nil {
		log.Error("worker: command %d: %v", cmd.kind, err)
	}
	return true
}

func (w *Worker) runSendAcknowledge() error {
	var buf [rmf.CmdTypeSize]byte
	n := rmf.EncodeAckCmd(buf[:])
	if n == 0 {
		return apx.NewError(apx.ErrBufferBoundary)
	}
	_, err := w.shared.Transport().TransmitDataMessage(rmf.CmdAreaStartAddress, false, buf[:n])
	return err
}

func (w *Worker) runSendErrorCode(errorCode uint32) error {
	var buf [rmf.CmdTypeSize + 4]byte
	n := rmf.EncodeNackCmd(buf[:])
	if n == 0 {
		return apx.NewError(apx.ErrBufferBoundary)
	}
	buf[n] = byte(errorCode)
	buf[n+1] = byte(errorCode >> 8)
	buf[n+2] = byte(errorCode >> 16)
	buf[n+3] = byte(errorCode >> 24)
	_, err := w.shared.Transport().TransmitDataMessage(rmf.CmdAreaStartAddress, false, buf[:n+4])
	return err
}

func (w *Worker) runPublishLocalFile(info *rmf.FileInfo) error {
	var buf [rmf.FileInfoHeaderSize + rmf.MaxFileNameSize + 1]byte
	n := rmf.EncodePublishFileCmd(buf[:], info)
	if n == 0 {
		return apx.NewError(apx.ErrBufferBoundary)
	}
	_, err := w.shared.Transport().TransmitDataMessage(rmf.CmdAreaStartAddress, false, buf[:n])
	return err
}

func (w *Worker) runRevokeLocalFile(address uint32) error {
	var buf [rmf.CmdTypeSize + 4]byte
	n := rmf.EncodeRevokeFileCmd(buf[:], address)
	if n == 0 {
		return apx.NewError(apx.ErrBufferBoundary)
	}
	_, err := w.shared.Transport().TransmitDataMessage(rmf.CmdAreaStartAddress, false, buf[:n])
	return err
}

func (w *Worker) runSendAddressCmd(encode func([]byte, uint32) int, address uint32) error {
	var buf [rmf.CmdTypeSize + 4]byte
	n := encode(buf[:], address)
	if n == 0 {
		return apx.NewError(apx.ErrBufferBoundary)
	}
	_, err := w.shared.Transport().TransmitDataMessage(rmf.CmdAreaStartAddress, false, buf[:n])
	return err
}

func (w *Worker) runSendLocalData(address uint32, data []byte) error {
	_, err := w.shared.Transport().TransmitDataMessage(address, false, data)
	return err
}
