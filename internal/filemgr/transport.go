package filemgr

// Transport is the lower edge of a connection: the write half the worker
// serializes commands onto. Implementations are free to coalesce the bytes
// produced between TransmitBegin and TransmitEnd.
type Transport interface {
	TransmitBegin()
	TransmitEnd()
	TransmitMaxBufferSize() int
	TransmitCurrentBytesAvailable() int

	// TransmitDataMessage frames one payload at the given address and
	// writes it to the peer. Returns the bytes still available in the
	// transport's send buffer.
	TransmitDataMessage(address uint32, moreBit bool, data []byte) (int, error)

	// TransmitDirectMessage writes a pre-framed message (greeting bytes)
	// with only the length prefix added.
	TransmitDirectMessage(data []byte) (int, error)
}

// RemoteFileHandler is the upper edge of the file manager: upcalls issued
// when the peer publishes files or writes into them.
type RemoteFileHandler interface {
	RemoteFilePublishedNotification(file *File) error
	RemoteFileWriteNotification(file *File, offset uint32, data []byte) error
}
