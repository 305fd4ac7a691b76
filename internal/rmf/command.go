package rmf

import (
	"github.com/apx-embedded/goapx/internal/apx"
)

// Command is a decoded control message from the command area.
type Command struct {
	Type    uint32
	Address uint32    // OpenFile, CloseFile, RevokeFile
	Info    *FileInfo // PublishFile
}

func packLE32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func packLE16(buf []byte, v uint16) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
}

func unpackLE32(data []byte) uint32 {
	return uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
}

func unpackLE16(data []byte) uint16 {
	return uint16(data[0]) | uint16(data[1])<<8
}

// EncodeAckCmd writes an acknowledge command and returns its size, or 0 when
// buf is too small.
func EncodeAckCmd(buf []byte) int {
	if len(buf) < CmdTypeSize {
		return 0
	}
	packLE32(buf, CmdAck)
	return CmdTypeSize
}

// EncodeNackCmd writes a negative-acknowledge command.
func EncodeNackCmd(buf []byte) int {
	if len(buf) < CmdTypeSize {
		return 0
	}
	packLE32(buf, CmdNack)
	return CmdTypeSize
}

func encodeAddressCmd(buf []byte, cmdType uint32, address uint32) int {
	if len(buf) < CmdTypeSize+4 {
		return 0
	}
	packLE32(buf, cmdType)
	packLE32(buf[CmdTypeSize:], address)
	return CmdTypeSize + 4
}

// EncodeOpenFileCmd writes an open-file request for the given address.
func EncodeOpenFileCmd(buf []byte, address uint32) int {
	return encodeAddressCmd(buf, CmdOpenFile, address)
}

// EncodeCloseFileCmd writes a close-file request for the given address.
func EncodeCloseFileCmd(buf []byte, address uint32) int {
	return encodeAddressCmd(buf, CmdCloseFile, address)
}

// EncodeRevokeFileCmd writes a revoke-file message for the given address.
func EncodeRevokeFileCmd(buf []byte, address uint32) int {
	return encodeAddressCmd(buf, CmdRevokeFile, address)
}

// EncodePublishFileCmd writes a publish-file command: the fixed 48-byte
// header followed by the null-terminated file name. Returns 0 when buf is
// too small or the name is too long.
func EncodePublishFileCmd(buf []byte, info *FileInfo) int {
	if len(info.Name) > MaxFileNameSize {
		return 0
	}
	needed := FileInfoHeaderSize + len(info.Name) + 1
	if len(buf) < needed {
		return 0
	}
	packLE32(buf, CmdPublishFile)
	packLE32(buf[4:], info.Address)
	packLE32(buf[8:], info.Size)
	packLE16(buf[12:], uint16(info.Kind))
	packLE16(buf[14:], uint16(info.DigestType))
	digest := buf[16:FileInfoHeaderSize]
	for i := range digest {
		digest[i] = 0
	}
	copy(digest, info.Digest)
	copy(buf[FileInfoHeaderSize:], info.Name)
	buf[FileInfoHeaderSize+len(info.Name)] = 0
	return needed
}

// DecodePublishFileCmd parses a publish-file command including its command
// type word. Returns the number of bytes consumed, or 0 on malformed input.
func DecodePublishFileCmd(data []byte) (int, *FileInfo) {
	if len(data) < FileInfoHeaderSize+1 {
		return 0, nil
	}
	if unpackLE32(data) != CmdPublishFile {
		return 0, nil
	}
	info := &FileInfo{
		Address:    unpackLE32(data[4:]),
		Size:       unpackLE32(data[8:]),
		Kind:       FileKind(unpackLE16(data[12:])),
		DigestType: DigestType(unpackLE16(data[14:])),
	}
	switch info.DigestType {
	case DigestTypeSHA1:
		info.Digest = append([]byte(nil), data[16:16+SHA1Size]...)
	case DigestTypeSHA256:
		info.Digest = append([]byte(nil), data[16:16+SHA256Size]...)
	case DigestTypeNone:
	default:
		return 0, nil
	}
	name := data[FileInfoHeaderSize:]
	end := -1
	for i, b := range name {
		if b == 0 {
			end = i
			break
		}
	}
	if end < 0 || end > MaxFileNameSize {
		return 0, nil
	}
	info.Name = string(name[:end])
	return FileInfoHeaderSize + end + 1, info
}

// DecodeCmd parses a command-area message and returns the number of bytes
// consumed plus the decoded command.
func DecodeCmd(data []byte) (int, *Command, error) {
	if len(data) < CmdTypeSize {
		return 0, nil, apx.NewError(apx.ErrInvalidMsg)
	}
	cmdType := unpackLE32(data)
	switch cmdType {
	case CmdAck, CmdNack:
		return CmdTypeSize, &Command{Type: cmdType}, nil
	case CmdPublishFile:
		consumed, info := DecodePublishFileCmd(data)
		if consumed == 0 {
			return 0, nil, apx.NewError(apx.ErrInvalidMsg)
		}
		return consumed, &Command{Type: cmdType, Info: info}, nil
	case CmdOpenFile, CmdCloseFile, CmdRevokeFile:
		if len(data) < CmdTypeSize+4 {
			return 0, nil, apx.NewError(apx.ErrInvalidMsg)
		}
		address := unpackLE32(data[CmdTypeSize:])
		return CmdTypeSize + 4, &Command{Type: cmdType, Address: address}, nil
	}
	return 0, nil, apx.NewError(apx.ErrUnsupported)
}
