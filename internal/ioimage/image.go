package ioimage

import (
	"encoding/binary"

	"github.com/trustplatform/trustrun/internal/value"
)

// ProcessImage holds the three byte buffers the core addresses via %I/%Q/%M:
// Input, Output, and Memory. Multi-byte granularities are little-endian, the
// same wire convention the bytecode module uses.
type ProcessImage struct {
	Input  []byte
	Output []byte
	Memory []byte
}

// NewProcessImage allocates all three buffers at the given byte size.
func NewProcessImage(inputSize, outputSize, memorySize int) *ProcessImage {
	return &ProcessImage{
		Input:  make([]byte, inputSize),
		Output: make([]byte, outputSize),
		Memory: make([]byte, memorySize),
	}
}

func (img *ProcessImage) buf(area Area) []byte {
	switch area {
	case AreaInput:
		return img.Input
	case AreaOutput:
		return img.Output
	case AreaMemory:
		return img.Memory
	}
	return nil
}

func (img *ProcessImage) ensure(area Area, endByte int64) error {
	buf := img.buf(area)
	if endByte > int64(len(buf)) {
		return value.NewFault(value.FaultInvalidIoAddress, "address byte %d exceeds %s image size %d", endByte-1, area, len(buf))
	}
	return nil
}

// ReadRaw reads the raw bits/bytes addr designates and returns them as an
// unsigned integer of the addressed width (1 for bit/byte, up to 8 bytes
// for lword).
func (img *ProcessImage) ReadRaw(addr IoAddress) (uint64, error) {
	w := addr.Size.byteWidth()
	if err := img.ensure(addr.Area, addr.Byte+w); err != nil {
		return 0, err
	}
	buf := img.buf(addr.Area)
	switch addr.Size {
	case SizeBit:
		if addr.Bit < 0 || addr.Bit > 7 {
			return 0, value.NewFault(value.FaultInvalidIoAddress, "bit address %s has no bit index", addr)
		}
		b := buf[addr.Byte]
		return uint64((b >> uint(addr.Bit)) & 1), nil
	case SizeByte:
		return uint64(buf[addr.Byte]), nil
	case SizeWord:
		return uint64(binary.LittleEndian.Uint16(buf[addr.Byte:])), nil
	case SizeDWord:
		return uint64(binary.LittleEndian.Uint32(buf[addr.Byte:])), nil
	case SizeLWord:
		return binary.LittleEndian.Uint64(buf[addr.Byte:]), nil
	}
	return 0, value.NewFault(value.FaultInvalidIoAddress, "unknown size for address %s", addr)
}

// WriteRaw writes n into the bits/bytes addr designates, leaving the rest of
// the containing byte(s) untouched for SizeBit.
func (img *ProcessImage) WriteRaw(addr IoAddress, n uint64) error {
	w := addr.Size.byteWidth()
	if err := img.ensure(addr.Area, addr.Byte+w); err != nil {
		return err
	}
	buf := img.buf(addr.Area)
	switch addr.Size {
	case SizeBit:
		if addr.Bit < 0 || addr.Bit > 7 {
			return value.NewFault(value.FaultInvalidIoAddress, "bit address %s has no bit index", addr)
		}
		mask := byte(1) << uint(addr.Bit)
		if n != 0 {
			buf[addr.Byte] |= mask
		} else {
			buf[addr.Byte] &^= mask
		}
	case SizeByte:
		buf[addr.Byte] = byte(n)
	case SizeWord:
		binary.LittleEndian.PutUint16(buf[addr.Byte:], uint16(n))
	case SizeDWord:
		binary.LittleEndian.PutUint32(buf[addr.Byte:], uint32(n))
	case SizeLWord:
		binary.LittleEndian.PutUint64(buf[addr.Byte:], n)
	default:
		return value.NewFault(value.FaultInvalidIoAddress, "unknown size for address %s", addr)
	}
	return nil
}
