package subscriber

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/slonegd/goose61850/goose"
)

func hex16(v uint16) string {
	return goose.BytesToHexString([]byte{byte(v >> 8), byte(v)})
}

// WriteReport prints a decoded frame in the human-readable report layout.
func WriteReport(w io.Writer, pdu *goose.PDU, meta Meta) error {
	bw := bufio.NewWriter(w)
	n := meta.Index
	fmt.Fprintf(bw, "%d | %.3f ms\n", n, float64(meta.Elapsed)/float64(time.Millisecond))
	fmt.Fprintf(bw, "%d | From %s to %s [%s]\n", n,
		goose.BytesToMAC(pdu.Source), goose.BytesToMAC(pdu.Destination), hex16(pdu.EtherType))
	fmt.Fprintf(bw, "%d | APPID %s, %d bytes\n", n, hex16(pdu.AppID), pdu.Length)
	if pdu.Reserved1 != 0 || pdu.Reserved2 != 0 {
		fmt.Fprintf(bw, "%d | Reserved %s, %s\n", n, hex16(pdu.Reserved1), hex16(pdu.Reserved2))
	}
	fmt.Fprintf(bw, "\nControl Block Reference: %s\n", pdu.GoCBRef)
	fmt.Fprintf(bw, "Time Allowed to Live: %d\n", pdu.TimeAllowedToLive)
	fmt.Fprintf(bw, "Data Set: %s\n", pdu.DatSet)
	fmt.Fprintf(bw, "GOOSE ID: %s\n", pdu.GoID)
	fmt.Fprintf(bw, "Timestamp [%s]:\n%s\n", pdu.Timestamp.Quality(), pdu.Timestamp.Time().Format(time.RFC3339Nano))
	fmt.Fprintf(bw, "Status Number: %d\n", pdu.StNum)
	fmt.Fprintf(bw, "Sequence Number: %d\n", pdu.SqNum)
	fmt.Fprintf(bw, "Testing: %t\n", pdu.Test)
	fmt.Fprintf(bw, "Configuration Revision: %d\n", pdu.ConfRev)
	fmt.Fprintf(bw, "Needs Commissioning: %t\n", pdu.NdsCom)
	fmt.Fprintf(bw, "Number of entries: %d\n", pdu.NumDatSetEntries)
	fmt.Fprintf(bw, "All Data: %t\n", pdu.Trip)
	fmt.Fprintln(bw, strings.Repeat("-", 10))
	return bw.Flush()
}

// ReportHandler writes a report for every frame. Write errors are dropped.
func ReportHandler(w io.Writer) Handler {
	return func(pdu *goose.PDU, meta Meta) {
		_ = WriteReport(w, pdu, meta)
	}
}
