// Package subscriber receives GOOSE frames, drops malformed ones and hands
// the decoded PDUs to a callback.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/slonegd/goose61850/clock"
	"github.com/slonegd/goose61850/goose"
	"github.com/slonegd/goose61850/metrics"
	"github.com/slonegd/goose61850/rawsock"
)

// DefaultTimeout is the receive timeout used when none is configured.
const DefaultTimeout = time.Second

// Receiver reads one frame into buf, waiting at most timeout.
// A timeout is reported as rawsock.ErrTimeout and the end of a finite
// source as io.EOF.
type Receiver interface {
	Receive(ctx context.Context, buf []byte, timeout time.Duration) (int, error)
}

// timestamped is implemented by receivers that know when a frame was captured.
type timestamped interface {
	LastTimestamp() time.Time
}

// FrameWriter records raw frames, see capture.Writer.
type FrameWriter interface {
	WriteFrame(ts time.Time, frame []byte) error
}

// Meta describes how a PDU arrived.
type Meta struct {
	// Index counts decoded frames from 1.
	Index      int
	ReceivedAt time.Time
	// Elapsed since the previous decoded frame, zero for the first one.
	Elapsed time.Duration
	Size    int
}

// Handler is called for every decoded frame. pdu is not reused by the Subscriber.
type Handler func(pdu *goose.PDU, meta Meta)

type subscriberMetrics struct {
	framesReceived prometheus.Counter
	decodeErrors   prometheus.Counter
	stateChanges   prometheus.Counter
	interArrival   prometheus.Histogram
}

func newSubscriberMetrics() *subscriberMetrics {
	return &subscriberMetrics{
		framesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.SubscriberFramesReceivedN,
			Help: metrics.SubscriberFramesReceivedH,
		}),
		decodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.SubscriberDecodeErrorsN,
			Help: metrics.SubscriberDecodeErrorsH,
		}),
		stateChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.SubscriberStateChangesN,
			Help: metrics.SubscriberStateChangesH,
		}),
		interArrival: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    metrics.SubscriberInterArrivalN,
			Help:    metrics.SubscriberInterArrivalH,
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
}

var subscriberMtrcs atomic.Pointer[subscriberMetrics]

func init() {
	subscriberMtrcs.Store(newSubscriberMetrics())
}

// Option configures a Subscriber.
type Option func(*Subscriber)

// WithLogger sets the logger, state changes are logged at info level.
func WithLogger(l *zap.Logger) Option {
	return func(s *Subscriber) { s.log = l }
}

// WithClock sets the clock used for arrival times of receivers without
// capture timestamps.
func WithClock(clk clock.Clock) Option {
	return func(s *Subscriber) { s.clk = clk }
}

// WithTimeout bounds a single Receive call.
func WithTimeout(d time.Duration) Option {
	return func(s *Subscriber) { s.timeout = d }
}

// WithMaxFrameSize sets the receive buffer size, longer frames are truncated.
func WithMaxFrameSize(n int) Option {
	return func(s *Subscriber) { s.maxFrameSize = n }
}

// WithHandler sets the callback for decoded frames.
func WithHandler(h Handler) Option {
	return func(s *Subscriber) { s.handler = h }
}

// WithStats records inter-arrival times per goID into st.
func WithStats(st *Stats) Option {
	return func(s *Subscriber) { s.stats = st }
}

// WithCapture records every received frame, malformed ones included.
func WithCapture(w FrameWriter) Option {
	return func(s *Subscriber) { s.capture = w }
}

// WithMaxFrames stops Run after n decoded frames. Zero runs until cancelled.
func WithMaxFrames(n int) Option {
	return func(s *Subscriber) { s.maxFrames = n }
}

// Subscriber receives GOOSE frames and hands the decoded PDUs to a Handler.
type Subscriber struct {
	rx           Receiver
	clk          clock.Clock
	log          *zap.Logger
	timeout      time.Duration
	maxFrameSize int
	maxFrames    int
	handler      Handler
	stats        *Stats
	capture      FrameWriter
	decoder      *goose.Decoder

	stNums map[string]uint32
}

// New creates a Subscriber reading from rx.
func New(rx Receiver, opts ...Option) (*Subscriber, error) {
	s := &Subscriber{
		rx:           rx,
		clk:          clock.System{},
		log:          zap.NewNop(),
		timeout:      DefaultTimeout,
		maxFrameSize: rawsock.MaxFrameSize,
		decoder:      goose.NewDecoder(),
		stNums:       make(map[string]uint32),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.timeout <= 0 {
		return nil, fmt.Errorf("receive timeout must be positive, got %s", s.timeout)
	}
	if s.maxFrameSize < goose.HeaderSize {
		return nil, fmt.Errorf("max frame size %d is below the GOOSE header size", s.maxFrameSize)
	}
	if s.maxFrames < 0 {
		return nil, fmt.Errorf("negative frame count %d", s.maxFrames)
	}
	return s, nil
}

// Run receives until ctx is done, the receiver is exhausted or the frame
// limit is reached. Malformed frames are logged and skipped.
func (s *Subscriber) Run(ctx context.Context) error {
	mtrcs := subscriberMtrcs.Load()
	buf := make([]byte, s.maxFrameSize)

	var prev time.Time
	index := 0
	for s.maxFrames == 0 || index < s.maxFrames {
		n, err := s.rx.Receive(ctx, buf, s.timeout)
		switch {
		case errors.Is(err, rawsock.ErrTimeout):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		at := s.clk.Now()
		if ts, ok := s.rx.(timestamped); ok {
			at = ts.LastTimestamp()
		}
		frame := buf[:n]
		if s.capture != nil {
			if err := s.capture.WriteFrame(at, frame); err != nil {
				return fmt.Errorf("capture: %w", err)
			}
		}

		pdu, err := s.decoder.Decode(frame)
		if err != nil {
			mtrcs.decodeErrors.Inc()
			s.log.Debug("dropping frame", zap.Int("size", n), zap.Error(err))
			continue
		}
		mtrcs.framesReceived.Inc()

		index++
		meta := Meta{Index: index, ReceivedAt: at, Size: n}
		if !prev.IsZero() {
			meta.Elapsed = at.Sub(prev)
			mtrcs.interArrival.Observe(meta.Elapsed.Seconds())
		}
		prev = at

		if st, ok := s.stNums[pdu.GoID]; ok && st != pdu.StNum {
			mtrcs.stateChanges.Inc()
			s.log.Info("state change",
				zap.String("goID", pdu.GoID),
				zap.Uint32("stNum", pdu.StNum),
				zap.Bool("trip", pdu.Trip),
			)
		}
		s.stNums[pdu.GoID] = pdu.StNum

		if s.stats != nil {
			s.stats.Observe(pdu.GoID, at)
		}
		if ce := s.log.Check(zap.DebugLevel, "frame received"); ce != nil {
			ce.Write(zap.Int("index", index), zap.Object("pdu", goose.PDUMarshaler{PDU: pdu}))
		}
		if s.handler != nil {
			s.handler(pdu, meta)
		}
	}
	return nil
}
