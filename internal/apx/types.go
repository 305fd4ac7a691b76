// Package apx holds the data types and error codes shared by every layer of
// the middleware.
package apx

// Mode selects which side of a connection an object serves.
type Mode uint8

const (
	NoMode Mode = iota
	ClientMode
	ServerMode
	MonitorMode
)

func (m Mode) String() string {
	switch m {
	case ClientMode:
		return "client"
	case ServerMode:
		return "server"
	case MonitorMode:
		return "monitor"
	}
	return "none"
}

// PortType separates require (input) ports from provide (output) ports.
type PortType uint8

const (
	RequirePort PortType = iota
	ProvidePort
)

func (p PortType) String() string {
	if p == ProvidePort {
		return "provide"
	}
	return "require"
}

// FileType classifies the well-known files a node publishes.
type FileType uint8

const (
	UnknownFileType FileType = iota
	DefinitionFileType
	ProvidePortDataFileType
	RequirePortDataFileType
	ProvidePortCountFileType
	RequirePortCountFileType

	// 6-63 reserved
	UserDefinedFileTypeBegin FileType = 64
)

// Well-known file name extensions.
const (
	DefinitionFileExt       = ".apx"
	ProvidePortDataFileExt  = ".out"
	RequirePortDataFileExt  = ".in"
	ProvidePortCountFileExt = ".cout"
	RequirePortCountFileExt = ".cin"
)

// TypeCode identifies the kind of a data element.
type TypeCode uint8

const (
	TypeCodeNone TypeCode = iota
	TypeCodeUint8
	TypeCodeUint16
	TypeCodeUint32
	TypeCodeUint64
	TypeCodeInt8
	TypeCodeInt16
	TypeCodeInt32
	TypeCodeInt64
	TypeCodeChar
	TypeCodeChar8
	TypeCodeChar16
	TypeCodeChar32
	TypeCodeBool
	TypeCodeByte
	TypeCodeRecord
	TypeCodeRefID
	TypeCodeRefName
	TypeCodeRefPtr
)

// IsReference reports whether the type code is any form of type reference.
func (tc TypeCode) IsReference() bool {
	return tc == TypeCodeRefID || tc == TypeCodeRefName || tc == TypeCodeRefPtr
}

// IsSigned reports whether limits on this type code use signed values.
func (tc TypeCode) IsSigned() bool {
	switch tc {
	case TypeCodeInt8, TypeCodeInt16, TypeCodeInt32, TypeCodeInt64:
		return true
	}
	return false
}

// PortID identifies a port within one side (provide or require) of a node.
type PortID = uint32

const InvalidPortID PortID = 0xFFFFFFFF

// TypeID identifies a data type within a node.
type TypeID = uint32

const InvalidTypeID TypeID = 0xFFFFFFFF

// DataState tracks the lifecycle of a node instance's data.
type DataState uint8

const (
	DataStateInit DataState = iota
	DataStateWaitingForFileInfo        // client mode
	DataStateWaitingForFileOpenRequest // server mode
	DataStateWaitingForFileData
	DataStateConnected
	DataStateDisconnected
)

func (s DataState) String() string {
	switch s {
	case DataStateInit:
		return "init"
	case DataStateWaitingForFileInfo:
		return "waiting-for-file-info"
	case DataStateWaitingForFileOpenRequest:
		return "waiting-for-file-open-request"
	case DataStateWaitingForFileData:
		return "waiting-for-file-data"
	case DataStateConnected:
		return "connected"
	case DataStateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// ConnectorEvent is the kind of a port connector change notification.
type ConnectorEvent uint8

const (
	PortConnectedEvent ConnectorEvent = iota
	PortDisconnectedEvent
)

// Process-wide limits.
const (
	MaxFileSize                    = 16 * 1024 * 1024
	MaxDefinitionSize              = 8 * 1024 * 1024
	MaxNumMessages                 = 1000
	ServerMaxConcurrentConnections = 4000
	MaxTypeRefFollowCount          = 255
)

// Default node definition language version.
const (
	NodeDefaultVersionMajor = 1
	NodeDefaultVersionMinor = 3
)
