// Package goose61850 wires the GOOSE codec, scheduler and link layer into a
// ready to run publisher and subscriber.
package goose61850

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/slonegd/goose61850/capture"
	"github.com/slonegd/goose61850/clock"
	"github.com/slonegd/goose61850/config"
	"github.com/slonegd/goose61850/goose"
	"github.com/slonegd/goose61850/logger"
	"github.com/slonegd/goose61850/publisher"
	"github.com/slonegd/goose61850/rawsock"
	"github.com/slonegd/goose61850/subscriber"
)

var ErrNoInterface = errors.New("no network interface configured")

type options struct {
	log          *zap.Logger
	startAt      time.Time
	tripSchedule map[int]bool
	handler      subscriber.Handler
	stats        *subscriber.Stats
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithStartAt delays the first published frame until t.
func WithStartAt(t time.Time) Option {
	return func(o *options) { o.startAt = t }
}

// WithTripSchedule scripts the trip value by frame index.
func WithTripSchedule(schedule map[int]bool) Option {
	return func(o *options) { o.tripSchedule = schedule }
}

func WithHandler(h subscriber.Handler) Option {
	return func(o *options) { o.handler = h }
}

func WithStats(s *subscriber.Stats) Option {
	return func(o *options) { o.stats = s }
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Publisher is a publisher.Publisher bound to its socket and capture file.
type Publisher struct {
	*publisher.Publisher
	closers
}

// NewPublisher opens the link described by cfg. With DryRun set frames are
// only written to the pcap output.
func NewPublisher(cfg config.Config, opts ...Option) (*Publisher, error) {
	o := buildOptions(opts)
	pc := cfg.Publisher
	clk := clock.System{SpinThreshold: pc.SpinThreshold.Std()}

	tmpl, err := cfg.Template()
	if err != nil {
		return nil, err
	}

	var cs closers
	var sender publisher.Sender
	switch {
	case pc.DryRun:
		if pc.PcapOutput == "" {
			return nil, errors.New("dry run needs a pcap output")
		}
		w, err := capture.Create(pc.PcapOutput, clk)
		if err != nil {
			return nil, err
		}
		cs = append(cs, w)
		sender = w
	case cfg.Interface == "":
		return nil, ErrNoInterface
	default:
		conn, err := rawsock.Open(cfg.Interface, goose.EtherType,
			rawsock.WithLogger(logger.FromZap(o.log, "rawsock")))
		if err != nil {
			return nil, err
		}
		cs = append(cs, conn)
		sender = conn
		if pc.PcapOutput != "" {
			w, err := capture.Create(pc.PcapOutput, clk)
			if err != nil {
				cs.Close()
				return nil, err
			}
			cs = append(cs, w)
			sender = capture.Tee(conn, w)
		}
	}

	popts := []publisher.Option{
		publisher.WithClock(clk),
		publisher.WithLogger(o.log.Named("publisher")),
		publisher.WithMaxFrames(pc.Frames),
	}
	if o.tripSchedule != nil {
		popts = append(popts, publisher.WithTripSchedule(o.tripSchedule))
	}
	if !o.startAt.IsZero() {
		popts = append(popts, publisher.WithStartAt(o.startAt))
	}
	p, err := publisher.New(sender, cfg.Scheduler(), tmpl, popts...)
	if err != nil {
		cs.Close()
		return nil, fmt.Errorf("publisher: %w", err)
	}
	return &Publisher{Publisher: p, closers: cs}, nil
}

// Subscriber is a subscriber.Subscriber bound to its frame source.
type Subscriber struct {
	*subscriber.Subscriber
	closers
}

// NewSubscriber listens on cfg.Interface, or replays PcapInput when set.
func NewSubscriber(cfg config.Config, opts ...Option) (*Subscriber, error) {
	o := buildOptions(opts)
	sc := cfg.Subscriber

	var cs closers
	var rx subscriber.Receiver
	switch {
	case sc.PcapInput != "":
		r, err := capture.Open(sc.PcapInput)
		if err != nil {
			return nil, err
		}
		cs = append(cs, r)
		rx = r
	case cfg.Interface == "":
		return nil, ErrNoInterface
	default:
		ropts := []rawsock.Option{
			rawsock.WithLogger(logger.FromZap(o.log, "rawsock")),
			rawsock.WithAllMulticast(),
		}
		if sc.Promiscuous {
			ropts = append(ropts, rawsock.WithPromiscuous())
		}
		conn, err := rawsock.Open(cfg.Interface, goose.EtherType, ropts...)
		if err != nil {
			return nil, err
		}
		cs = append(cs, conn)
		rx = conn
	}

	sopts := []subscriber.Option{
		subscriber.WithLogger(o.log.Named("subscriber")),
		subscriber.WithTimeout(sc.ReceiveTimeout.Std()),
		subscriber.WithMaxFrameSize(sc.MaxFrameSize),
		subscriber.WithMaxFrames(sc.Frames),
	}
	if sc.PcapCapture != "" {
		w, err := capture.Create(sc.PcapCapture, clock.System{})
		if err != nil {
			cs.Close()
			return nil, err
		}
		cs = append(cs, w)
		sopts = append(sopts, subscriber.WithCapture(w))
	}
	if o.handler != nil {
		sopts = append(sopts, subscriber.WithHandler(o.handler))
	}
	if o.stats != nil {
		sopts = append(sopts, subscriber.WithStats(o.stats))
	}
	s, err := subscriber.New(rx, sopts...)
	if err != nil {
		cs.Close()
		return nil, fmt.Errorf("subscriber: %w", err)
	}
	return &Subscriber{Subscriber: s, closers: cs}, nil
}
