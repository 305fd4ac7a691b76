package filemgr

import (
	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/rmf"
)

// ReceptionResult is the outcome of feeding one write into the receiver.
// When IsComplete is set, Data holds the reassembled message; the slice
// aliases the receiver's buffer and is only valid until the next write.
type ReceptionResult struct {
	IsComplete bool
	Address    uint32
	Data       []byte
}

// Receiver reassembles possibly-fragmented writes into complete messages.
// At most one fragmented message is in progress at any time; a fragment at
// the wrong continuation address breaks the stream.
type Receiver struct {
	buf          []byte
	bufPos       uint32
	startAddress uint32
}

// NewReceiver returns a receiver with the command area size pre-reserved.
func NewReceiver() *Receiver {
	r := &Receiver{startAddress: rmf.InvalidAddress}
	_ = r.Reserve(rmf.CmdAreaSize)
	return r
}

// Reset drops any in-progress reception.
func (r *Receiver) Reset() {
	r.bufPos = 0
	r.startAddress = rmf.InvalidAddress
}

// Reserve grows the reassembly buffer to at least size bytes.
func (r *Receiver) Reserve(size uint32) error {
	if size > apx.MaxFileSize {
		return apx.NewError(apx.ErrFileTooLarge)
	}
	if size > uint32(len(r.buf)) {
		buf := make([]byte, size)
		copy(buf, r.buf[:r.bufPos])
		r.buf = buf
	}
	return nil
}

// BufferSize returns the current reassembly buffer size.
func (r *Receiver) BufferSize() uint32 {
	return uint32(len(r.buf))
}

// Write feeds one (address, data, moreBit) fragment into the receiver.
func (r *Receiver) Write(address uint32, data []byte, moreBit bool) (ReceptionResult, error) {
	if address >= rmf.InvalidAddress {
		return ReceptionResult{}, apx.NewError(apx.ErrInvalidArgument)
	}
	if uint32(len(data)) > apx.MaxFileSize {
		return ReceptionResult{}, apx.NewError(apx.ErrFileTooLarge)
	}
	if r.startAddress == rmf.InvalidAddress {
		return r.startNewReception(address, data, moreBit)
	}
	return r.continueReception(address, data, moreBit)
}

func (r *Receiver) startNewReception(address uint32, data []byte, moreBit bool) (ReceptionResult, error) {
	if len(r.buf) == 0 {
		return ReceptionResult{}, apx.NewError(apx.ErrMissingBuffer)
	}
	if uint32(len(data)) > uint32(len(r.buf)) {
		return ReceptionResult{}, apx.NewError(apx.ErrBufferFull)
	}
	copy(r.buf, data)
	r.bufPos = uint32(len(data))
	r.startAddress = address
	return r.processMoreBit(moreBit), nil
}

func (r *Receiver) continueReception(address uint32, data []byte, moreBit bool) (ReceptionResult, error) {
	expected := r.startAddress + r.bufPos
	if expected != address {
		return ReceptionResult{}, apx.NewError(apx.ErrInvalidAddress)
	}
	if len(r.buf) == 0 {
		return ReceptionResult{}, apx.NewError(apx.ErrMissingBuffer)
	}
	if r.bufPos+uint32(len(data)) > uint32(len(r.buf)) {
		return ReceptionResult{}, apx.NewError(apx.ErrBufferFull)
	}
	copy(r.buf[r.bufPos:], data)
	r.bufPos += uint32(len(data))
	return r.processMoreBit(moreBit), nil
}

func (r *Receiver) processMoreBit(moreBit bool) ReceptionResult {
	if moreBit {
		return ReceptionResult{}
	}
	result := ReceptionResult{
		IsComplete: true,
		Address:    r.startAddress,
		Data:       r.buf[:r.bufPos],
	}
	r.Reset()
	return result
}
