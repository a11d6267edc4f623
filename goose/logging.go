package goose

import (
	"go.uber.org/zap/zapcore"

	"github.com/slonegd/goose61850/datatypes"
)

// PDUMarshaler logs a PDU as a zap object, reserved fields only when set.
type PDUMarshaler struct {
	PDU *PDU
}

func (m PDUMarshaler) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	var err error
	p := m.PDU
	enc.AddString("Destination", BytesToMAC(p.Destination))
	enc.AddString("Source", BytesToMAC(p.Source))
	enc.AddString("EtherType", BytesToHexString([]byte{byte(p.EtherType >> 8), byte(p.EtherType)}))
	enc.AddString("AppID", BytesToHexString([]byte{byte(p.AppID >> 8), byte(p.AppID)}))
	enc.AddUint16("Length", p.Length)
	if p.Reserved1 != 0 {
		enc.AddUint16("Reserved1", p.Reserved1)
	}
	if p.Reserved2 != 0 {
		enc.AddUint16("Reserved2", p.Reserved2)
	}
	enc.AddString("GoCBRef", p.GoCBRef)
	enc.AddUint32("TimeAllowedToLive", p.TimeAllowedToLive)
	enc.AddString("DatSet", p.DatSet)
	enc.AddString("GoID", p.GoID)
	err = enc.AddObject("Timestamp", datatypes.TimestampMarshaler{TS: p.Timestamp})
	if err != nil {
		return err
	}
	enc.AddUint32("StNum", p.StNum)
	enc.AddUint32("SqNum", p.SqNum)
	enc.AddBool("Test", p.Test)
	enc.AddUint32("ConfRev", p.ConfRev)
	enc.AddBool("NdsCom", p.NdsCom)
	enc.AddUint32("NumDatSetEntries", p.NumDatSetEntries)
	enc.AddBool("Trip", p.Trip)
	return nil
}
