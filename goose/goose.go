package goose

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"unicode/utf8"

	"golang.org/x/exp/constraints"

	"github.com/slonegd/goose61850/ber"
	"github.com/slonegd/goose61850/datatypes"
)

// EtherType is the GOOSE ethertype (IEC 61850-8-1 Annex C).
const EtherType = 0x88B8

const (
	EthernetHeaderSize = 14
	// APPID, length and two reserved fields
	apduHeaderSize = 8
	// HeaderSize is the offset of the goosePdu tag in a frame.
	HeaderSize = EthernetHeaderSize + apduHeaderSize
)

// goosePdu tags
var (
	TagGoosePDU          = ber.MakeApplicationTag(1, true)
	TagGoCBRef           = ber.MakeContextSpecificTag(0, false)
	TagTimeAllowedToLive = ber.MakeContextSpecificTag(1, false)
	TagDatSet            = ber.MakeContextSpecificTag(2, false)
	TagGoID              = ber.MakeContextSpecificTag(3, false)
	TagTimestamp         = ber.MakeContextSpecificTag(4, false)
	TagStNum             = ber.MakeContextSpecificTag(5, false)
	TagSqNum             = ber.MakeContextSpecificTag(6, false)
	TagTest              = ber.MakeContextSpecificTag(7, false)
	TagConfRev           = ber.MakeContextSpecificTag(8, false)
	TagNdsCom            = ber.MakeContextSpecificTag(9, false)
	TagNumDatSetEntries  = ber.MakeContextSpecificTag(10, false)
	TagAllData           = ber.MakeContextSpecificTag(11, true)
	// TagTrip is the boolean point inside allData.
	TagTrip = ber.MakeContextSpecificTag(3, false)
)

// Errors
var (
	ErrInvalidEtherType             = errors.New("not a GOOSE ethertype")
	ErrTruncatedFrame               = errors.New("frame shorter than GOOSE header")
	ErrLengthMismatch               = errors.New("GOOSE length does not match frame size")
	ErrMissingPDU                   = errors.New("GOOSE PDU not found")
	ErrMissingControlBlockReference = errors.New("GOOSE control block reference not found")
	ErrUnexpectedTag                = errors.New("unexpected tag")
	ErrInvalidString                = errors.New("string is not valid UTF-8")
	ErrInvalidMAC                   = errors.New("invalid MAC address")
)

// APDU is everything after the ethertype: header fields and the decoded goosePdu.
type APDU struct {
	AppID  uint16
	Length uint16
	// Reserved1 and Reserved2 are zero unless the caller sets them,
	// e.g. bit 15 of Reserved1 as the simulation flag.
	Reserved1 uint16
	Reserved2 uint16

	GoCBRef string
	// TimeAllowedToLive in milliseconds
	TimeAllowedToLive uint32
	DatSet            string
	GoID              string
	Timestamp         datatypes.Timestamp
	StNum             uint32
	SqNum             uint32
	Test              bool
	ConfRev           uint32
	NdsCom            bool
	NumDatSetEntries  uint32
	// Trip is the single boolean point of the data set.
	Trip bool
}

// PDU is a decoded GOOSE frame.
type PDU struct {
	Destination net.HardwareAddr
	Source      net.HardwareAddr
	EtherType   uint16
	APDU
}

// Encode builds the Ethernet frame. EtherType and Length are computed,
// the values in p are ignored. The reserved fields are written as given.
func Encode(p *PDU) ([]byte, error) {
	if len(p.Destination) != 6 {
		return nil, fmt.Errorf("%w: destination %v", ErrInvalidMAC, p.Destination)
	}
	if len(p.Source) != 6 {
		return nil, fmt.Errorf("%w: source %v", ErrInvalidMAC, p.Source)
	}

	frame := make([]byte, HeaderSize, HeaderSize+256)
	copy(frame[0:6], p.Destination)
	copy(frame[6:12], p.Source)
	binary.BigEndian.PutUint16(frame[12:14], EtherType)

	frame, err := p.APDU.appendPDU(frame)
	if err != nil {
		return nil, err
	}
	length := len(frame) - EthernetHeaderSize
	if length > 0xFFFF {
		return nil, fmt.Errorf("%w: GOOSE length %d", ber.ErrValueTooLarge, length)
	}

	binary.BigEndian.PutUint16(frame[14:16], p.AppID)
	binary.BigEndian.PutUint16(frame[16:18], uint16(length))
	binary.BigEndian.PutUint16(frame[18:20], p.Reserved1)
	binary.BigEndian.PutUint16(frame[20:22], p.Reserved2)
	return frame, nil
}

// appendPDU appends the goosePdu triplet in the fixed field order.
func (a *APDU) appendPDU(dst []byte) ([]byte, error) {
	allData, err := ber.AppendTriplet(nil, TagTrip, ber.EncodeBoolean(a.Trip))
	if err != nil {
		return dst, err
	}

	fields := []ber.Triplet{
		ber.NewTriplet(TagGoCBRef, []byte(a.GoCBRef)),
		ber.NewTriplet(TagTimeAllowedToLive, appendFixedUnsigned(nil, uint64(a.TimeAllowedToLive), 2)),
		ber.NewTriplet(TagDatSet, []byte(a.DatSet)),
		ber.NewTriplet(TagGoID, []byte(a.GoID)),
		ber.NewTriplet(TagTimestamp, a.Timestamp.Bytes()),
		ber.NewTriplet(TagStNum, ber.AppendUnsigned(nil, uint64(a.StNum))),
		ber.NewTriplet(TagSqNum, ber.AppendUnsigned(nil, uint64(a.SqNum))),
		ber.NewTriplet(TagTest, ber.EncodeBoolean(a.Test)),
		ber.NewTriplet(TagConfRev, ber.AppendUnsigned(nil, uint64(a.ConfRev))),
		ber.NewTriplet(TagNdsCom, ber.EncodeBoolean(a.NdsCom)),
		ber.NewTriplet(TagNumDatSetEntries, ber.AppendUnsigned(nil, uint64(a.NumDatSetEntries))),
		ber.NewTriplet(TagAllData, allData),
	}

	size := 0
	for _, f := range fields {
		size += f.EncodedSize()
	}
	value := make([]byte, 0, size)
	for _, f := range fields {
		value, err = ber.AppendTriplet(value, f.Tag(), f.Value)
		if err != nil {
			return dst, fmt.Errorf("encode %s: %w", f.Identifier, err)
		}
	}
	return ber.AppendTriplet(dst, TagGoosePDU, value)
}

// appendFixedUnsigned encodes at least width bytes, more if value needs them.
func appendFixedUnsigned(dst []byte, value uint64, width int) []byte {
	for i := ber.UnsignedSize(value); i < width; i++ {
		dst = append(dst, 0)
	}
	return ber.AppendUnsigned(dst, value)
}

// Decode parses a complete Ethernet frame.
func Decode(frame []byte) (*PDU, error) {
	return NewDecoder().Decode(frame)
}

// decode parses the bytes following the ethertype.
func (a *APDU) decode(data []byte) error {
	if len(data) < apduHeaderSize {
		return fmt.Errorf("%w: %d bytes after ethertype", ErrTruncatedFrame, len(data))
	}
	a.AppID = binary.BigEndian.Uint16(data[0:2])
	a.Length = binary.BigEndian.Uint16(data[2:4])
	if int(a.Length) != len(data) {
		return fmt.Errorf("%w: declared %d, got %d", ErrLengthMismatch, a.Length, len(data))
	}
	a.Reserved1 = binary.BigEndian.Uint16(data[4:6])
	a.Reserved2 = binary.BigEndian.Uint16(data[6:8])

	if len(data) == apduHeaderSize || data[apduHeaderSize] != TagGoosePDU {
		return ErrMissingPDU
	}
	pdu, consumed, err := ber.Decode(data[apduHeaderSize:])
	if err != nil {
		return fmt.Errorf("goosePdu: %w", err)
	}
	if rest := len(data) - apduHeaderSize; consumed != rest {
		return fmt.Errorf("%w: goosePdu spans %d of %d bytes", ErrLengthMismatch, consumed, rest)
	}
	if len(pdu.Value) == 0 || pdu.Value[0] != TagGoCBRef {
		return ErrMissingControlBlockReference
	}

	r := fieldReader{value: pdu.Value}
	a.GoCBRef = r.string(TagGoCBRef)
	a.TimeAllowedToLive = unsigned[uint32](&r, TagTimeAllowedToLive)
	a.DatSet = r.string(TagDatSet)
	a.GoID = r.string(TagGoID)
	if raw := r.next(TagTimestamp); r.err == nil {
		a.Timestamp, r.err = datatypes.TimestampFromBytes(raw)
	}
	a.StNum = unsigned[uint32](&r, TagStNum)
	a.SqNum = unsigned[uint32](&r, TagSqNum)
	a.Test = r.boolean(TagTest)
	a.ConfRev = unsigned[uint32](&r, TagConfRev)
	a.NdsCom = r.boolean(TagNdsCom)
	a.NumDatSetEntries = unsigned[uint32](&r, TagNumDatSetEntries)
	allData := r.next(TagAllData)
	if r.err != nil {
		return r.err
	}

	points := fieldReader{value: allData}
	a.Trip = points.boolean(TagTrip)
	return points.err
}

// fieldReader walks the children of a constructed value in a fixed order.
// After the first error every call is a no-op.
type fieldReader struct {
	value  []byte
	offset int
	err    error
}

func (r *fieldReader) next(tag byte) []byte {
	if r.err != nil {
		return nil
	}
	t, offset, err := ber.DecodeChild(r.value, r.offset)
	if err != nil {
		r.err = fmt.Errorf("field %s: %w", ber.IdentifierFromByte(tag), err)
		return nil
	}
	if t.Tag() != tag {
		r.err = fmt.Errorf("%w: want %s, got %s", ErrUnexpectedTag, ber.IdentifierFromByte(tag), t.Identifier)
		return nil
	}
	r.offset = offset
	return t.Value
}

func (r *fieldReader) string(tag byte) string {
	v := r.next(tag)
	if r.err != nil {
		return ""
	}
	if !utf8.Valid(v) {
		r.err = fmt.Errorf("%w: field %s", ErrInvalidString, ber.IdentifierFromByte(tag))
		return ""
	}
	return string(v)
}

func (r *fieldReader) boolean(tag byte) bool {
	v := r.next(tag)
	if r.err != nil {
		return false
	}
	b, err := ber.DecodeBoolean(v)
	if err != nil {
		r.err = fmt.Errorf("field %s: %w", ber.IdentifierFromByte(tag), err)
	}
	return b
}

func unsigned[T constraints.Unsigned](r *fieldReader, tag byte) T {
	v := r.next(tag)
	if r.err != nil {
		return 0
	}
	n, err := ber.DecodeUnsigned[T](v)
	if err != nil {
		r.err = fmt.Errorf("field %s: %w", ber.IdentifierFromByte(tag), err)
	}
	return n
}
