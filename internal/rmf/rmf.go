// Package rmf implements the RemoteFile byte-stream layer: variable-length
// address headers, the numheader length prefix, command messages and
// file-info records. All multi-byte command fields are little-endian.
package rmf

const (
	RemoteAddressBit = uint32(0x80000000) // overlaid with HighAddrBit
	InvalidAddress   = uint32(0x7FFFFFFF) // outside the 30-bit address region
	AddressMask      = uint32(0x3FFFFFFF)

	LowAddrMax  = uint32(0x3FFF)
	HighAddrMin = uint32(0x4000)
	HighAddrMax = uint32(0x3FFFFFFF)

	CmdAreaStartAddress = uint32(0x3FFFFC00)
	CmdAreaEndAddress   = uint32(0x3FFFFFFF)
	CmdAreaSize         = 1024

	moreBitLowAddr  = uint32(0x4000)
	moreBitHighAddr = uint32(0x40000000)
	highAddrBit     = uint32(0x80000000)

	u8MoreBit     = uint8(0x40)
	u8HighAddrBit = uint8(0x80)

	MaxFileNameSize    = 255
	FileInfoHeaderSize = 48

	CmdTypeSize = 4
)

// Command message types.
const (
	CmdAck         = uint32(0)
	CmdNack        = uint32(1)
	CmdPublishFile = uint32(3)
	CmdFileInfo    = CmdPublishFile
	CmdRevokeFile  = uint32(4)
	CmdOpenFile    = uint32(10)
	CmdCloseFile   = uint32(11)
)

// FileKind is the RemoteFile representation of a file's content model.
type FileKind uint16

const (
	FileKindFixed FileKind = iota
	FileKindDynamic8
	FileKindDynamic16
	FileKindDynamic32
	FileKindDevice
	FileKindStream
)

// DigestType selects the optional content digest carried in a FileInfo.
type DigestType uint16

const (
	DigestTypeNone DigestType = iota
	DigestTypeSHA1
	DigestTypeSHA256
)

const (
	SHA1Size   = 20
	SHA256Size = 32
)

// Greeting protocol.
const (
	GreetingMaxLen       = 127
	Greeting10Start      = "RMFP/1.0\n"
	Greeting11Start      = "RMFP/1.1\n"
	NumheaderFormatHdr   = "Numheader-Format"
	ConnectionTypeHdr    = "Connection-Type"
	NumheaderFormat32    = 32
)
