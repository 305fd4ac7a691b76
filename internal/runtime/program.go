package runtime

import (
	"github.com/apx-embedded/goapx/internal/apx"
	"github.com/apx-embedded/goapx/internal/parser"
)

// Pack/unpack programs are flat byte sequences consumed by the packer VM:
// a short header describing the data size followed by an instruction stream.
// Instruction byte layout: 3 opcode bits, 4 variant bits, 1 flag bit.

// ProgramType selects pack or unpack emission.
type ProgramType uint8

const (
	UnpackProgram ProgramType = iota
	PackProgram
)

const (
	opcodeUnpack   = uint8(0)
	opcodePack     = uint8(1)
	opcodeDataSize = uint8(2)
	opcodeDataCtrl = uint8(3)

	variantUint8  = uint8(0)
	variantUint16 = uint8(1)
	variantUint32 = uint8(2)
	variantUint64 = uint8(3)
	variantInt8   = uint8(4)
	variantInt16  = uint8(5)
	variantInt32  = uint8(6)
	variantInt64  = uint8(7)
	variantBool   = uint8(8)
	variantByte   = uint8(9)
	variantRecord = uint8(10)
	variantChar   = uint8(12)
	variantChar8  = uint8(13)
	variantChar16 = uint8(14)
	variantChar32 = uint8(15)

	variantArraySizeU8  = uint8(0)
	variantArraySizeU16 = uint8(1)
	variantArraySizeU32 = uint8(2)

	variantElementSizeU8Base  = uint8(3)
	variantElementSizeU16Base = uint8(6)
	variantElementSizeU32Base = uint8(9)

	variantRecordSelect = uint8(0)

	instructionFlag = uint8(0x80)

	headerProgTypePack    = uint8(0x08)
	headerFlagDynamicData = uint8(0x10)
	headerFlagQueuedData  = uint8(0x20)
)

// Program is an emitted pack or unpack byte program.
type Program []byte

type programBuilder struct {
	prog Program
}

func (b *programBuilder) instruction(opcode, variant, flag uint8) {
	b.prog = append(b.prog, opcode|variant<<3|flag)
}

func (b *programBuilder) uintValue(value uint32) {
	switch {
	case value <= 0xFF:
		b.prog = append(b.prog, byte(value))
	case value <= 0xFFFF:
		b.prog = append(b.prog, byte(value), byte(value>>8))
	default:
		b.prog = append(b.prog, byte(value), byte(value>>8), byte(value>>16), byte(value>>24))
	}
}

func sizeVariantOf(value uint32) uint8 {
	switch {
	case value <= 0xFF:
		return variantUint8
	case value <= 0xFFFF:
		return variantUint16
	}
	return variantUint32
}

// CreateProgram emits a pack or unpack program for the given effective
// element. A non-zero queueLength wraps the element in queue framing.
func CreateProgram(elem *parser.DataElement, progType ProgramType, queueLength uint32) (Program, error) {
	elementSize, err := elem.PackedSize()
	if err != nil {
		return nil, err
	}
	dataSize := uint32(elementSize)
	if queueLength > 0 {
		dataSize = uint32(parser.LenBytes(queueLength)) + queueLength*uint32(elementSize)
	}

	b := &programBuilder{}
	header := sizeVariantOf(dataSize)
	if progType == PackProgram {
		header |= headerProgTypePack
	}
	if hasDynamicData(elem) {
		header |= headerFlagDynamicData
	}
	if queueLength > 0 {
		header |= headerFlagQueuedData
	}
	b.prog = append(b.prog, header)
	b.uintValue(dataSize)
	if queueLength > 0 {
		b.emitQueueSize(uint32(elementSize), queueLength)
	}
	if err := b.emitElement(elem, progType); err != nil {
		return nil, err
	}
	return b.prog, nil
}

func (b *programBuilder) emitQueueSize(elementSize, queueLength uint32) {
	var base uint8
	switch sizeVariantOf(elementSize) {
	case variantUint8:
		base = variantElementSizeU8Base
	case variantUint16:
		base = variantElementSizeU16Base
	default:
		base = variantElementSizeU32Base
	}
	b.instruction(opcodeDataSize, base+sizeVariantOf(queueLength), 0)
	b.uintValue(elementSize)
}

func (b *programBuilder) emitElement(elem *parser.DataElement, progType ProgramType) error {
	opcode := opcodeUnpack
	if progType == PackProgram {
		opcode = opcodePack
	}
	variant, err := scalarVariantOf(elem.TypeCode)
	if err != nil {
		return err
	}
	var flag uint8
	if elem.IsArray() {
		flag = instructionFlag
	}
	b.instruction(opcode, variant, flag)
	if elem.IsArray() {
		var dynFlag uint8
		if elem.IsDynamicArray {
			dynFlag = instructionFlag
		}
		b.instruction(opcodeDataSize, variantArraySizeU8+sizeVariantOf(elem.ArrayLen), dynFlag)
		b.uintValue(elem.ArrayLen)
	}
	if elem.TypeCode == apx.TypeCodeRecord {
		for i, child := range elem.Elements {
			var lastFlag uint8
			if i == len(elem.Elements)-1 {
				lastFlag = instructionFlag
			}
			b.instruction(opcodeDataCtrl, variantRecordSelect, lastFlag)
			b.prog = append(b.prog, child.Name...)
			b.prog = append(b.prog, 0)
			if err := b.emitElement(child, progType); err != nil {
				return err
			}
		}
	}
	return nil
}

func scalarVariantOf(typeCode apx.TypeCode) (uint8, error) {
	switch typeCode {
	case apx.TypeCodeUint8:
		return variantUint8, nil
	case apx.TypeCodeUint16:
		return variantUint16, nil
	case apx.TypeCodeUint32:
		return variantUint32, nil
	case apx.TypeCodeUint64:
		return variantUint64, nil
	case apx.TypeCodeInt8:
		return variantInt8, nil
	case apx.TypeCodeInt16:
		return variantInt16, nil
	case apx.TypeCodeInt32:
		return variantInt32, nil
	case apx.TypeCodeInt64:
		return variantInt64, nil
	case apx.TypeCodeBool:
		return variantBool, nil
	case apx.TypeCodeByte:
		return variantByte, nil
	case apx.TypeCodeRecord:
		return variantRecord, nil
	case apx.TypeCodeChar:
		return variantChar, nil
	case apx.TypeCodeChar8:
		return variantChar8, nil
	case apx.TypeCodeChar16:
		return variantChar16, nil
	case apx.TypeCodeChar32:
		return variantChar32, nil
	}
	return 0, apx.NewError(apx.ErrInvalidInstruction)
}

func hasDynamicData(elem *parser.DataElement) bool {
	if elem.IsDynamicArray {
		return true
	}
	for _, child := range elem.Elements {
		if hasDynamicData(child) {
			return true
		}
	}
	return false
}
