package goose

import (
	"encoding/binary"
	"encoding/hex"
	"net"
	"strings"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/slonegd/goose61850/ber"
	"github.com/slonegd/goose61850/datatypes"
)

// parseHexString converts a spaced or multi-line hex dump into bytes
func parseHexString(hexStr string) []byte {
	hexStr = strings.ReplaceAll(hexStr, " ", "")
	hexStr = strings.ReplaceAll(hexStr, "\n", "")
	hexStr = strings.ReplaceAll(hexStr, "\t", "")
	data, err := hex.DecodeString(hexStr)
	if err != nil {
		panic(err)
	}
	return data
}

// tripFrame: stNum 2, sqNum 0, trip true, timestamp 0x6954F4F7.0F1205 quality 0x87
const tripFrame = `
010ccd0100010030a7229d0188b80000
0073000000006169801b53454c5f3432
315f5375624346472f4c4c4e3024474f
2450494f43810207d0821853454c5f34
32315f5375624346472f4c4c4e302450
494f43830b53454c5f3432315f537562
84086954f4f70f120587850102860100
8701008801018901008a0101ab038301
01`

func samplePDU(t *testing.T) *PDU {
	t.Helper()
	fraction, err := datatypes.FractionFromBits(0x0F1205)
	require.NoError(t, err)
	ts, err := datatypes.NewTimestamp(0x6954F4F7, fraction, datatypes.DefaultTimeQuality())
	require.NoError(t, err)
	dst, err := ParseMAC("01:0c:cd:01:00:01")
	require.NoError(t, err)
	src, err := ParseMAC("00-30-a7-22-9d-01")
	require.NoError(t, err)

	return &PDU{
		Destination: dst,
		Source:      src,
		EtherType:   EtherType,
		APDU: APDU{
			AppID:             0,
			Length:            0x73,
			GoCBRef:           "SEL_421_SubCFG/LLN0$GO$PIOC",
			TimeAllowedToLive: 2000,
			DatSet:            "SEL_421_SubCFG/LLN0$PIOC",
			GoID:              "SEL_421_Sub",
			Timestamp:         ts,
			StNum:             2,
			SqNum:             0,
			ConfRev:           1,
			NumDatSetEntries:  1,
			Trip:              true,
		},
	}
}

func TestEncode(t *testing.T) {
	frame, err := Encode(samplePDU(t))
	require.NoError(t, err)
	assert.Equal(t, parseHexString(tripFrame), frame)
}

func TestDecode(t *testing.T) {
	p, err := Decode(parseHexString(tripFrame))
	require.NoError(t, err)
	assert.Equal(t, samplePDU(t), p)
	assert.Equal(t, "01:0C:CD:01:00:01", BytesToMAC(p.Destination))
	assert.Equal(t, "00:30:A7:22:9D:01", BytesToMAC(p.Source))
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *PDU)
	}{
		{name: "sample", modify: func(p *PDU) {}},
		{name: "large counters", modify: func(p *PDU) {
			p.StNum = 0xFFFFFFFF
			p.SqNum = 0x80
			p.ConfRev = 0x8000
			p.TimeAllowedToLive = 0x1FFFF
		}},
		{name: "flags", modify: func(p *PDU) {
			p.Test = true
			p.NdsCom = true
			p.Trip = false
			p.AppID = 0x3FFF
			p.Reserved1 = 0x8000
		}},
		{name: "long references", modify: func(p *PDU) {
			p.GoCBRef = strings.Repeat("G", 129)
			p.DatSet = strings.Repeat("D", 300)
			p.GoID = "ид"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := samplePDU(t)
			tt.modify(in)
			frame, err := Encode(in)
			require.NoError(t, err)
			in.Length = uint16(len(frame) - 14)

			out, err := Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, in, out)

			again, err := Encode(out)
			require.NoError(t, err)
			assert.Equal(t, frame, again)
		})
	}
}

func TestEncodeFieldWidths(t *testing.T) {
	// ttl keeps two bytes even for small values
	p := samplePDU(t)
	p.TimeAllowedToLive = 5
	frame, err := Encode(p)
	require.NoError(t, err)
	pdu, _, err := ber.Decode(frame[HeaderSize:])
	require.NoError(t, err)
	children, err := pdu.Children()
	require.NoError(t, err)
	require.Len(t, children, 12)
	assert.Equal(t, []byte{0x00, 0x05}, children[1].Value)
	assert.Equal(t, []byte{0x01}, children[11].Value[2:])

	wantTags := []byte{0x80, 0x81, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89, 0x8A, 0xAB}
	for i, c := range children {
		assert.Equal(t, wantTags[i], c.Tag())
	}
}

func TestEncodeReserved(t *testing.T) {
	p := samplePDU(t)
	frame, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, frame[18:22])

	p.Reserved1 = 0x8000
	p.Reserved2 = 0x0102
	frame, err = Encode(p)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0x00, 0x01, 0x02}, frame[18:22])
}

func TestEncodeErrors(t *testing.T) {
	p := samplePDU(t)
	p.Destination = net.HardwareAddr{1, 2, 3}
	_, err := Encode(p)
	assert.ErrorIs(t, err, ErrInvalidMAC)

	p = samplePDU(t)
	p.DatSet = strings.Repeat("x", 0x10000)
	_, err = Encode(p)
	assert.ErrorIs(t, err, ber.ErrValueTooLarge)
}

func TestDecodeErrors(t *testing.T) {
	valid := parseHexString(tripFrame)

	clone := func() []byte { return append([]byte(nil), valid...) }

	tests := []struct {
		name    string
		frame   func() []byte
		wantErr error
	}{
		{
			name:    "too short for ethernet",
			frame:   func() []byte { return valid[:10] },
			wantErr: ErrTruncatedFrame,
		},
		{
			name: "wrong ethertype",
			frame: func() []byte {
				f := clone()
				binary.BigEndian.PutUint16(f[12:14], 0x0800)
				return f
			},
			wantErr: ErrInvalidEtherType,
		},
		{
			name:    "no APDU header",
			frame:   func() []byte { return valid[:18] },
			wantErr: ErrTruncatedFrame,
		},
		{
			name:    "truncated frame",
			frame:   func() []byte { return valid[:len(valid)-1] },
			wantErr: ErrLengthMismatch,
		},
		{
			name:    "trailing bytes",
			frame:   func() []byte { return append(clone(), 0x00) },
			wantErr: ErrLengthMismatch,
		},
		{
			name: "bytes after goosePdu",
			frame: func() []byte {
				f := append(clone(), 0xDE, 0xAD)
				binary.BigEndian.PutUint16(f[16:18], uint16(len(f)-EthernetHeaderSize))
				return f
			},
			wantErr: ErrLengthMismatch,
		},
		{
			name: "LLC length field",
			frame: func() []byte {
				f := clone()
				binary.BigEndian.PutUint16(f[12:14], uint16(len(f)-EthernetHeaderSize))
				return f
			},
			wantErr: ErrInvalidEtherType,
		},
		{
			name:    "ethertype only",
			frame:   func() []byte { return valid[:EthernetHeaderSize] },
			wantErr: ErrTruncatedFrame,
		},
		{
			name: "missing goosePdu tag",
			frame: func() []byte {
				f := clone()
				f[HeaderSize] = 0x62
				return f
			},
			wantErr: ErrMissingPDU,
		},
		{
			name: "missing gocbRef",
			frame: func() []byte {
				f := clone()
				f[HeaderSize+2] = 0x81
				return f
			},
			wantErr: ErrMissingControlBlockReference,
		},
		{
			name: "field out of order",
			frame: func() []byte {
				f := clone()
				// ttl tag follows the 27 byte gocbRef
				f[HeaderSize+2+2+27] = 0x82
				return f
			},
			wantErr: ErrUnexpectedTag,
		},
		{
			name: "inner length overruns",
			frame: func() []byte {
				f := clone()
				f[HeaderSize+1] = 0x70
				return f
			},
			wantErr: ber.ErrTruncatedInput,
		},
		{
			name: "reserved accuracy",
			frame: func() []byte {
				f := clone()
				i := strings.Index(string(f), "\x84\x08")
				f[i+2+7] = 0x99
				return f
			},
			wantErr: datatypes.ErrInvalidAccuracy,
		},
		{
			name: "invalid utf-8",
			frame: func() []byte {
				f := clone()
				f[HeaderSize+4] = 0xFF
				return f
			},
			wantErr: ErrInvalidString,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLayer(t *testing.T) {
	packet := gopacket.NewPacket(parseHexString(tripFrame), layers.LayerTypeEthernet, gopacket.Default)
	require.Nil(t, packet.ErrorLayer())

	eth, ok := packet.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.True(t, ok)
	assert.Equal(t, EthernetTypeGOOSE, eth.EthernetType)

	l, ok := packet.Layer(LayerTypeGOOSE).(*Layer)
	require.True(t, ok)
	assert.Equal(t, samplePDU(t).APDU, l.APDU)
	assert.Equal(t, "GOOSE", EthernetTypeGOOSE.String())

	var (
		ethLayer   layers.Ethernet
		gooseLayer Layer
	)
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &ethLayer, &gooseLayer)
	decoded := make([]gopacket.LayerType, 0, 2)
	err := parser.DecodeLayers(parseHexString(tripFrame), &decoded)
	require.NoError(t, err)
	assert.Equal(t, []gopacket.LayerType{layers.LayerTypeEthernet, LayerTypeGOOSE}, decoded)
	assert.True(t, gooseLayer.Trip)
}

func TestDecoder(t *testing.T) {
	d := NewDecoder()
	frame := parseHexString(tripFrame)

	first, err := d.Decode(frame)
	require.NoError(t, err)
	assert.True(t, first.Trip)

	_, err = d.Decode(frame[:len(frame)-1])
	assert.ErrorIs(t, err, ErrLengthMismatch)

	// decoded values survive reuse of the decoder and of the frame buffer
	p := samplePDU(t)
	p.Trip = false
	p.GoID = "other"
	other, err := Encode(p)
	require.NoError(t, err)
	second, err := d.Decode(other)
	require.NoError(t, err)
	for i := range frame {
		frame[i] = 0
	}
	assert.True(t, first.Trip)
	assert.Equal(t, "SEL_421_Sub", first.GoID)
	assert.Equal(t, "01:0C:CD:01:00:01", BytesToMAC(first.Destination))
	assert.False(t, second.Trip)
	assert.Equal(t, "other", second.GoID)
}

func TestMACHelpers(t *testing.T) {
	zero := make([]byte, 6)
	for _, s := range []string{"00:00:00:00:00:00", "00-00-00-00-00-00", "000000000000"} {
		b, err := MACToBytes(s)
		require.NoError(t, err)
		assert.Equal(t, zero, b)
	}
	assert.Equal(t, "00:00:00:00:00:00", BytesToMAC(zero))

	colon, err := MACToBytes("01:0c:cd:01:00:01")
	require.NoError(t, err)
	hyphen, err := MACToBytes("01-0C-CD-01-00-01")
	require.NoError(t, err)
	none, err := MACToBytes("010ccd010001")
	require.NoError(t, err)
	assert.Equal(t, colon, hyphen)
	assert.Equal(t, colon, none)
	assert.Equal(t, "01:0C:CD:01:00:01", BytesToMAC(none))

	for _, s := range []string{"", "01:02:03", "zz:00:00:00:00:00", "01:0c:cd:01:00:01:02"} {
		_, err := MACToBytes(s)
		assert.ErrorIs(t, err, ErrInvalidMAC, s)
	}

	assert.Equal(t, "0x88B8", BytesToHexString([]byte{0x88, 0xB8}))
	assert.Equal(t, "0x0000", BytesToHexString([]byte{0, 0}))
}

func TestPDUMarshaler(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)

	p := samplePDU(t)
	p.Reserved2 = 7
	log.Debug("rx", zap.Object("goose", PDUMarshaler{PDU: p}))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()["goose"].(map[string]interface{})
	assert.Equal(t, "0x88B8", fields["EtherType"])
	assert.Equal(t, "0x0000", fields["AppID"])
	assert.Equal(t, "SEL_421_Sub", fields["GoID"])
	assert.Equal(t, uint32(2), fields["StNum"])
	assert.Equal(t, true, fields["Trip"])
	assert.Equal(t, uint16(7), fields["Reserved2"])
	assert.NotContains(t, fields, "Reserved1")
}
