package goose

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// LayerTypeGOOSE identifies Layer in gopacket packets.
var LayerTypeGOOSE = gopacket.RegisterLayerType(
	1850,
	gopacket.LayerTypeMetadata{
		Name:    "GOOSE",
		Decoder: gopacket.DecodeFunc(decodeGOOSE),
	},
)

// EthernetTypeGOOSE makes layers.Ethernet hand 0x88B8 payloads to Layer.
const EthernetTypeGOOSE layers.EthernetType = EtherType

func init() {
	layers.EthernetTypeMetadata[EthernetTypeGOOSE] = layers.EnumMetadata{
		DecodeWith: gopacket.DecodeFunc(decodeGOOSE),
		Name:       "GOOSE",
		LayerType:  LayerTypeGOOSE,
	}
}

// Layer is the GOOSE APDU as a gopacket layer, everything after the ethertype.
type Layer struct {
	layers.BaseLayer
	APDU
}

var (
	_ gopacket.Layer         = &Layer{}
	_ gopacket.DecodingLayer = &Layer{}
)

// LayerType returns LayerTypeGOOSE.
func (l *Layer) LayerType() gopacket.LayerType {
	return LayerTypeGOOSE
}

// DecodeFromBytes decodes the APDU, data starts at the APPID.
func (l *Layer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < apduHeaderSize {
		df.SetTruncated()
	}
	l.APDU = APDU{}
	if err := l.APDU.decode(data); err != nil {
		return err
	}
	l.BaseLayer = layers.BaseLayer{Contents: data}
	return nil
}

func (l *Layer) CanDecode() gopacket.LayerClass {
	return LayerTypeGOOSE
}

func (l *Layer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypeZero
}

func decodeGOOSE(data []byte, p gopacket.PacketBuilder) error {
	l := &Layer{}
	if err := l.DecodeFromBytes(data, p); err != nil {
		return err
	}
	p.AddLayer(l)
	return nil
}

// Decoder decodes Ethernet frames through a gopacket layer parser.
// It reuses its layers and is not safe for concurrent use.
type Decoder struct {
	eth     layers.Ethernet
	apdu    Layer
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

// NewDecoder returns a Decoder for Ethernet frames carrying GOOSE.
func NewDecoder() *Decoder {
	d := &Decoder{decoded: make([]gopacket.LayerType, 0, 2)}
	d.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &d.eth, &d.apdu)
	d.parser.IgnoreUnsupported = true
	return d
}

// Decode parses a complete Ethernet frame. The returned PDU does not alias frame.
func (d *Decoder) Decode(frame []byte) (*PDU, error) {
	err := d.parser.DecodeLayers(frame, &d.decoded)
	switch {
	case len(d.decoded) == 0:
		return nil, fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
	case err != nil:
		return nil, err
	case d.eth.EthernetType != EthernetTypeGOOSE:
		return nil, fmt.Errorf("%w: 0x%04X", ErrInvalidEtherType, uint16(d.eth.EthernetType))
	case len(d.decoded) < 2:
		return nil, fmt.Errorf("%w: no APDU after ethertype", ErrTruncatedFrame)
	}
	return &PDU{
		Destination: append(net.HardwareAddr(nil), d.eth.DstMAC...),
		Source:      append(net.HardwareAddr(nil), d.eth.SrcMAC...),
		EtherType:   uint16(d.eth.EthernetType),
		APDU:        d.apdu.APDU,
	}, nil
}
