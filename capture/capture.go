// Package capture records GOOSE frames to pcap files and replays them.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/slonegd/goose61850/clock"
)

// SnapLen covers a full untagged Ethernet frame.
const SnapLen = 1514

var ErrLinkType = errors.New("capture is not Ethernet")

// Sender matches publisher.Sender.
type Sender interface {
	Send(frame []byte) error
}

// Writer appends frames to a pcap stream, stamped with the clock.
type Writer struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	clk    clock.Clock
	closer io.Closer
}

// NewWriter writes the pcap file header to w.
func NewWriter(w io.Writer, clk clock.Clock) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(SnapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("pcap header: %w", err)
	}
	return &Writer{w: pw, clk: clk}, nil
}

// Create truncates path and writes a pcap file header to it.
func Create(path string, clk clock.Clock) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := NewWriter(f, clk)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// WriteFrame records frame as captured at ts.
func (w *Writer) WriteFrame(ts time.Time, frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if ci.CaptureLength > SnapLen {
		ci.CaptureLength = SnapLen
		frame = frame[:SnapLen]
	}
	return w.w.WritePacket(ci, frame)
}

// Send records frame at the current time, so a Writer can stand in for a socket.
func (w *Writer) Send(frame []byte) error {
	return w.WriteFrame(w.clk.Now(), frame)
}

func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

type tee struct {
	s Sender
	w *Writer
}

// Tee sends through s and records every frame that was sent.
func Tee(s Sender, w *Writer) Sender {
	return &tee{s: s, w: w}
}

func (t *tee) Send(frame []byte) error {
	if err := t.s.Send(frame); err != nil {
		return err
	}
	return t.w.Send(frame)
}

// Reader replays a pcap stream as a frame source.
type Reader struct {
	r      *pcapgo.Reader
	closer io.Closer
	last   time.Time
}

func NewReader(r io.Reader) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("pcap header: %w", err)
	}
	if pr.LinkType() != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("%w: %s", ErrLinkType, pr.LinkType())
	}
	return &Reader{r: pr}, nil
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Receive copies the next recorded frame into buf. The timeout is ignored,
// the end of the capture is io.EOF.
func (r *Reader) Receive(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, ci, err := r.r.ReadPacketData()
	if err != nil {
		return 0, err
	}
	r.last = ci.Timestamp
	return copy(buf, data), nil
}

// LastTimestamp is the capture time of the frame returned by the last Receive.
func (r *Reader) LastTimestamp() time.Time {
	return r.last
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
