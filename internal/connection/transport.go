// Package connection implements the connection layer of the middleware:
// numheader message framing over a byte stream, the greeting exchange, the
// per-connection event loop and the client and server connection types.
package connection

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/apx-embedded/goapx/internal/rmf"
)

// SendBufferSize bounds the bytes coalesced between TransmitBegin and
// TransmitEnd before an intermediate flush.
const SendBufferSize = 65536

// socketTransport frames messages with a numheader length prefix and writes
// them to the underlying stream. Writes between TransmitBegin and
// TransmitEnd are coalesced and written at TransmitEnd, with an earlier
// flush whenever the buffer reaches SendBufferSize.
type socketTransport struct {
	mu     sync.Mutex
	stream io.ReadWriteCloser
	buf    []byte
	depth  int
	err    error
}

func newSocketTransport(stream io.ReadWriteCloser) *socketTransport {
	return &socketTransport{stream: stream}
}

func (t *socketTransport) TransmitBegin() {
	t.mu.Lock()
	t.depth++
	t.mu.Unlock()
}

func (t *socketTransport) TransmitEnd() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.depth--
	if t.depth == 0 {
		t.flushLocked()
	}
}

func (t *socketTransport) TransmitMaxBufferSize() int {
	return SendBufferSize
}

func (t *socketTransport) TransmitCurrentBytesAvailable() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return SendBufferSize - len(t.buf)
}

// TransmitDataMessage frames an address header plus payload.
func (t *socketTransport) TransmitDataMessage(address uint32, moreBit bool, data []byte) (int, error) {
	var addrBuf [4]byte
	addrSize := rmf.EncodeAddress(addrBuf[:], address, moreBit)
	if addrSize == 0 {
		return 0, errors.New("transport: invalid address")
	}
	msgSize := addrSize + len(data)

	var lenBuf [4]byte
	lenSize := rmf.EncodeNumheader32(lenBuf[:], uint32(msgSize))
	if lenSize == 0 {
		return 0, errors.New("transport: message too large")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, lenBuf[:lenSize]...)
	t.buf = append(t.buf, addrBuf[:addrSize]...)
	t.buf = append(t.buf, data...)
	if t.depth == 0 || len(t.buf) >= SendBufferSize {
		t.flushLocked()
	}
	if t.err != nil {
		return 0, t.err
	}
	return SendBufferSize - len(t.buf), nil
}

// TransmitDirectMessage frames a pre-built message (the greeting) with only
// the length prefix.
func (t *socketTransport) TransmitDirectMessage(data []byte) (int, error) {
	var lenBuf [4]byte
	lenSize := rmf.EncodeNumheader32(lenBuf[:], uint32(len(data)))
	if lenSize == 0 {
		return 0, errors.New("transport: message too large")
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, lenBuf[:lenSize]...)
	t.buf = append(t.buf, data...)
	if t.depth == 0 {
		t.flushLocked()
	}
	if t.err != nil {
		return 0, t.err
	}
	return SendBufferSize - len(t.buf), nil
}

func (t *socketTransport) flushLocked() {
	if len(t.buf) == 0 || t.err != nil {
		return
	}
	_, err := t.stream.Write(t.buf)
	if err != nil {
		t.err = errors.Wrap(err, "transport write")
	}
	t.buf = t.buf[:0]
}

// Err returns the sticky transport error, if any.
func (t *socketTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *socketTransport) Close() error {
	return t.stream.Close()
}
