package ber

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Errors
var (
	ErrValueTooLarge    = errors.New("value too large")
	ErrTruncatedInput   = errors.New("truncated input")
	ErrLengthTooLarge   = errors.New("length too large")
	ErrIndefiniteLength = errors.New("indefinite length not supported")
	ErrIntegerTooLarge  = errors.New("integer too large")
)

// MaxLength is the largest value length the 0x83 long form can carry.
const MaxLength = 0xFFFFFF

// Triplet is a single BER tag-length-value unit.
// The length is always len(Value), it is never stored separately.
type Triplet struct {
	Identifier Identifier
	Value      []byte
}

// NewTriplet creates a Triplet from a raw identifier octet.
func NewTriplet(tag byte, value []byte) Triplet {
	return Triplet{Identifier: IdentifierFromByte(tag), Value: value}
}

// Tag returns the identifier octet.
func (t Triplet) Tag() byte {
	return t.Identifier.Byte()
}

// Length returns the value length.
func (t Triplet) Length() int {
	return len(t.Value)
}

// EncodedSize returns the number of bytes Bytes would produce.
func (t Triplet) EncodedSize() int {
	return 1 + LengthSize(len(t.Value)) + len(t.Value)
}

// Bytes encodes the triplet.
func (t Triplet) Bytes() ([]byte, error) {
	return Encode(t.Identifier, t.Value)
}

// Children decodes the value of a constructed triplet as a sequence of triplets.
func (t Triplet) Children() ([]Triplet, error) {
	var children []Triplet
	offset := 0
	for offset < len(t.Value) {
		child, next, err := DecodeChild(t.Value, offset)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
		offset = next
	}
	return children, nil
}

// Decoder functions

// DecodeLength decodes a BER definite length field from the buffer.
// Returns the new buffer position and the decoded length, or an error.
// The declared length must fit between the new position and maxBufPos.
func DecodeLength(buffer []byte, bufPos, maxBufPos int) (newPos int, length int, err error) {
	if maxBufPos > len(buffer) {
		maxBufPos = len(buffer)
	}
	if bufPos >= maxBufPos {
		return -1, 0, ErrTruncatedInput
	}

	len1 := buffer[bufPos]
	bufPos++

	if len1&0x80 == 0 {
		length = int(len1)
	} else {
		lenLength := int(len1 & 0x7f)
		switch {
		case lenLength == 0:
			return -1, 0, ErrIndefiniteLength
		case lenLength > 3:
			return -1, 0, fmt.Errorf("%w: %d length octets", ErrLengthTooLarge, lenLength)
		}
		if bufPos+lenLength > maxBufPos {
			return -1, 0, ErrTruncatedInput
		}
		for i := 0; i < lenLength; i++ {
			length = (length << 8) | int(buffer[bufPos])
			bufPos++
		}
	}

	if bufPos+length > maxBufPos {
		return -1, 0, fmt.Errorf("%w: declared %d, available %d", ErrTruncatedInput, length, maxBufPos-bufPos)
	}

	return bufPos, length, nil
}

// Decode reads one triplet from the start of data.
// It returns the triplet and the number of bytes consumed; bytes after the
// triplet are left to the caller. The returned Value aliases data.
func Decode(data []byte) (Triplet, int, error) {
	return DecodeChild(data, 0)
}

// DecodeChild decodes one triplet starting at offset inside a constructed value
// and returns the offset of the next sibling.
func DecodeChild(parent []byte, offset int) (Triplet, int, error) {
	if offset < 0 || offset >= len(parent) {
		return Triplet{}, offset, ErrTruncatedInput
	}
	id := IdentifierFromByte(parent[offset])
	pos, length, err := DecodeLength(parent, offset+1, len(parent))
	if err != nil {
		return Triplet{}, offset, err
	}
	return Triplet{Identifier: id, Value: parent[pos : pos+length]}, pos + length, nil
}

// DecodeUnsigned decodes a big-endian unsigned integer of the value's byte width.
// A leading zero octet (used to keep the BER sign bit clear) does not count against the width.
func DecodeUnsigned[T constraints.Unsigned](value []byte) (T, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	for len(value) > size && value[0] == 0 {
		value = value[1:]
	}
	if len(value) > size {
		return zero, fmt.Errorf("%w: %d bytes into %d", ErrIntegerTooLarge, len(value), size)
	}
	var v uint64
	for _, b := range value {
		v = v<<8 | uint64(b)
	}
	return T(v), nil
}

// DecodeBoolean decodes a BER boolean, any nonzero octet means true.
func DecodeBoolean(value []byte) (bool, error) {
	if len(value) == 0 {
		return false, ErrTruncatedInput
	}
	for _, b := range value {
		if b != 0 {
			return true, nil
		}
	}
	return false, nil
}

// Encoder functions

// LengthSize determines the size needed to encode a length value
func LengthSize(length int) int {
	switch {
	case length < 0x80:
		return 1
	case length <= 0xFF:
		return 2
	case length <= 0xFFFF:
		return 3
	}
	return 4
}

// AppendLength appends the minimal definite length encoding.
func AppendLength(dst []byte, length int) ([]byte, error) {
	switch {
	case length < 0:
		return dst, fmt.Errorf("negative length %d", length)
	case length < 0x80:
		return append(dst, byte(length)), nil
	case length <= 0xFF:
		return append(dst, 0x81, byte(length)), nil
	case length <= 0xFFFF:
		return append(dst, 0x82, byte(length>>8), byte(length)), nil
	case length <= MaxLength:
		return append(dst, 0x83, byte(length>>16), byte(length>>8), byte(length)), nil
	}
	return dst, fmt.Errorf("%w: %d bytes", ErrValueTooLarge, length)
}

// AppendTriplet appends tag, length and value to dst.
func AppendTriplet(dst []byte, tag byte, value []byte) ([]byte, error) {
	dst = append(dst, tag)
	dst, err := AppendLength(dst, len(value))
	if err != nil {
		return dst[:len(dst)-1], err
	}
	return append(dst, value...), nil
}

// Encode encodes a triplet with the minimal length form.
func Encode(id Identifier, value []byte) ([]byte, error) {
	if len(value) > MaxLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrValueTooLarge, len(value))
	}
	buf := make([]byte, 0, 1+LengthSize(len(value))+len(value))
	return AppendTriplet(buf, id.Byte(), value)
}

// UnsignedSize determines the encoded size of an unsigned integer.
func UnsignedSize(value uint64) int {
	size := 1
	for v := value; v > 0x7F; v >>= 8 {
		size++
	}
	return size
}

// AppendUnsigned appends the minimal big-endian encoding of value.
// A leading zero octet is added when the high bit would otherwise be set.
func AppendUnsigned(dst []byte, value uint64) []byte {
	size := UnsignedSize(value)
	for i := size - 1; i >= 0; i-- {
		if i >= 8 {
			dst = append(dst, 0)
			continue
		}
		dst = append(dst, byte(value>>(8*i)))
	}
	return dst
}

// EncodeBoolean returns the one-octet boolean value.
func EncodeBoolean(value bool) []byte {
	if value {
		return []byte{0x01}
	}
	return []byte{0x00}
}
