// Package publisher runs the GOOSE transmission loop: wait, send, advance.
package publisher

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/slonegd/goose61850/clock"
	"github.com/slonegd/goose61850/datatypes"
	"github.com/slonegd/goose61850/goose"
	"github.com/slonegd/goose61850/metrics"
	"github.com/slonegd/goose61850/scheduler"
)

// Sender transmits one complete Ethernet frame.
type Sender interface {
	Send(frame []byte) error
}

type publisherMetrics struct {
	framesSent   prometheus.Counter
	stateChanges prometheus.Counter
	sendErrors   prometheus.Counter
	stNum        prometheus.Gauge
}

func newPublisherMetrics() *publisherMetrics {
	return &publisherMetrics{
		framesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.PublisherFramesSentN,
			Help: metrics.PublisherFramesSentH,
		}),
		stateChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.PublisherStateChangesN,
			Help: metrics.PublisherStateChangesH,
		}),
		sendErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: metrics.PublisherSendErrorsN,
			Help: metrics.PublisherSendErrorsH,
		}),
		stNum: promauto.NewGauge(prometheus.GaugeOpts{
			Name: metrics.PublisherStNumN,
			Help: metrics.PublisherStNumH,
		}),
	}
}

var publisherMtrcs atomic.Pointer[publisherMetrics]

func init() {
	publisherMtrcs.Store(newPublisherMetrics())
}

// DemoTripSchedule sets trip before frame 4 and clears it before frame 8.
func DemoTripSchedule() map[int]bool {
	return map[int]bool{4: true, 8: false}
}

// DemoFrames is the length of the demo run.
const DemoFrames = 12

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger, nothing is logged by default.
func WithLogger(l *zap.Logger) Option {
	return func(p *Publisher) { p.log = l }
}

// WithClock sets the clock that times waits and stamps state changes.
func WithClock(clk clock.Clock) Option {
	return func(p *Publisher) { p.clk = clk }
}

// WithMaxFrames stops Run after n frames. Zero publishes until cancelled.
func WithMaxFrames(n int) Option {
	return func(p *Publisher) { p.maxFrames = n }
}

// WithTripSchedule applies trip values before the frames with the given indices.
func WithTripSchedule(schedule map[int]bool) Option {
	return func(p *Publisher) {
		p.tripSchedule = make(map[int]bool, len(schedule))
		for i, v := range schedule {
			p.tripSchedule[i] = v
		}
	}
}

// WithStartAt delays the first frame until t.
func WithStartAt(t time.Time) Option {
	return func(p *Publisher) { p.startAt = t }
}

// WithTimeQuality sets the quality byte of every timestamp,
// datatypes.DefaultTimeQuality by default.
func WithTimeQuality(q datatypes.TimeQuality) Option {
	return func(p *Publisher) { p.quality = q }
}

// Publisher sends the frames of one GOOSE control block.
type Publisher struct {
	sender   Sender
	sched    *scheduler.Scheduler
	template goose.PDU

	clk          clock.Clock
	log          *zap.Logger
	quality      datatypes.TimeQuality
	maxFrames    int
	tripSchedule map[int]bool
	startAt      time.Time

	trips chan bool
}

// New checks that template encodes. Its StNum, SqNum, Trip and Timestamp
// are overwritten for every frame.
func New(sender Sender, cfg scheduler.Config, template goose.PDU, opts ...Option) (*Publisher, error) {
	p := &Publisher{
		sender:   sender,
		template: template,
		clk:      clock.System{},
		log:      zap.NewNop(),
		quality:  datatypes.DefaultTimeQuality(),
		trips:    make(chan bool, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.maxFrames < 0 {
		return nil, fmt.Errorf("negative frame count %d", p.maxFrames)
	}

	sched, err := scheduler.New(cfg, p.clk)
	if err != nil {
		return nil, err
	}
	p.sched = sched

	p.template.NumDatSetEntries = 1
	if _, err := goose.Encode(&p.template); err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	return p, nil
}

// SetTrip requests a new trip value. It may be called from any goroutine;
// a pending value not yet picked up by Run is replaced.
func (p *Publisher) SetTrip(trip bool) {
	for {
		select {
		case p.trips <- trip:
			return
		default:
		}
		select {
		case <-p.trips:
		default:
		}
	}
}

// Run publishes until ctx is done or the frame limit is reached.
func (p *Publisher) Run(ctx context.Context) error {
	if !p.startAt.IsZero() {
		p.log.Info("waiting for start", zap.Time("at", p.startAt))
		if err := clock.Sleep(ctx, p.clk, p.startAt.Sub(p.clk.Now())); err != nil {
			return err
		}
	}

	last := p.clk.Now()
	for n := 0; p.maxFrames == 0 || n < p.maxFrames; n++ {
		if trip, ok := p.tripSchedule[n]; ok {
			p.changeTrip(trip)
		}
		if err := p.wait(ctx, last); err != nil {
			return err
		}
		last = p.clk.Now()
		if err := p.publish(p.sched.Next()); err != nil {
			return err
		}
	}
	return nil
}

// wait blocks until the scheduled wait since last has elapsed.
// A trip change restarts the back-off table, which shortens the wait.
func (p *Publisher) wait(ctx context.Context, last time.Time) error {
	for {
		select {
		case trip := <-p.trips:
			p.changeTrip(trip)
		default:
		}

		remaining := last.Add(p.sched.Wait()).Sub(p.clk.Now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case trip := <-p.trips:
			p.changeTrip(trip)
		case <-p.clk.After(remaining):
			return nil
		}
	}
}

func (p *Publisher) changeTrip(trip bool) {
	if p.sched.SetTrip(trip) {
		p.log.Info("state change", zap.Bool("trip", trip), zap.Uint32("stNum", p.sched.StNum()))
	}
}

func (p *Publisher) publish(step scheduler.Step) error {
	mtrcs := publisherMtrcs.Load()

	ts, err := datatypes.TimestampFromTime(step.Timestamp, p.quality)
	if err != nil {
		return fmt.Errorf("frame %d: %w", step.Index, err)
	}
	pdu := p.template
	pdu.StNum = step.StNum
	pdu.SqNum = step.SqNum
	pdu.Trip = step.Trip
	pdu.Timestamp = ts

	frame, err := goose.Encode(&pdu)
	if err != nil {
		return fmt.Errorf("frame %d: %w", step.Index, err)
	}
	if err := p.sender.Send(frame); err != nil {
		mtrcs.sendErrors.Inc()
		return fmt.Errorf("frame %d: %w", step.Index, err)
	}

	mtrcs.framesSent.Inc()
	mtrcs.stNum.Set(float64(step.StNum))
	if step.Changed {
		mtrcs.stateChanges.Inc()
	}
	if ce := p.log.Check(zap.DebugLevel, "frame sent"); ce != nil {
		pdu.EtherType = goose.EtherType
		pdu.Length = uint16(len(frame) - goose.EthernetHeaderSize)
		ce.Write(
			zap.Int("index", step.Index),
			zap.Duration("wait", step.Wait),
			zap.Object("pdu", goose.PDUMarshaler{PDU: &pdu}),
		)
	}
	return nil
}
