package scheduler

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/slonegd/goose61850/clock"
)

var (
	ErrNegativeWait = errors.New("negative wait")
	ErrEmptyBackoff = errors.New("empty back-off table")
	ErrZeroSteady   = errors.New("steady interval must be positive")
)

// Config is the retransmission timing.
// Backoff[k] is the wait before the k-th frame after start or after a state
// change; once the table is exhausted every frame waits Steady.
type Config struct {
	Backoff []time.Duration
	Steady  time.Duration
}

// DefaultConfig is the 0, 2, 4, 8 ms back-off followed by a 1 s heartbeat.
func DefaultConfig() Config {
	return Config{
		Backoff: []time.Duration{0, 2 * time.Millisecond, 4 * time.Millisecond, 8 * time.Millisecond},
		Steady:  time.Second,
	}
}

// Validate rejects an empty back-off table, negative waits and a zero Steady.
func (c Config) Validate() error {
	if len(c.Backoff) == 0 {
		return ErrEmptyBackoff
	}
	for i, d := range c.Backoff {
		if d < 0 {
			return fmt.Errorf("%w: backoff[%d] = %s", ErrNegativeWait, i, d)
		}
	}
	if c.Steady < 0 {
		return fmt.Errorf("%w: steady = %s", ErrNegativeWait, c.Steady)
	}
	if c.Steady == 0 {
		return ErrZeroSteady
	}
	return nil
}

// Step is one frame to publish after waiting Wait.
type Step struct {
	// Index counts frames since the scheduler was created, from 0.
	Index int
	Wait  time.Duration
	StNum uint32
	SqNum uint32
	Trip  bool
	// Changed is set on the first frame after a state change.
	Changed bool
	// Timestamp is the time of the last state change.
	Timestamp time.Time
}

// Scheduler generates the GOOSE stNum/sqNum sequence and retransmission waits
// for a single data set. It must be owned by one goroutine.
type Scheduler struct {
	cfg Config
	clk clock.Clock

	index     int
	counter   int
	stNum     uint32
	sqNum     uint32
	trip      bool
	changed   bool
	changedAt time.Time
}

// New starts at stNum 1, sqNum 1, trip false.
func New(cfg Config, clk clock.Clock) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Backoff = append([]time.Duration(nil), cfg.Backoff...)
	return &Scheduler{
		cfg:       cfg,
		clk:       clk,
		stNum:     1,
		sqNum:     1,
		changedAt: clk.Now(),
	}, nil
}

// Wait is the delay before the next frame, without advancing.
func (s *Scheduler) Wait() time.Duration {
	if s.counter < len(s.cfg.Backoff) {
		return s.cfg.Backoff[s.counter]
	}
	return s.cfg.Steady
}

// Next returns the next frame and advances the sequence.
func (s *Scheduler) Next() Step {
	step := Step{
		Index:     s.index,
		Wait:      s.Wait(),
		StNum:     s.stNum,
		SqNum:     s.sqNum,
		Trip:      s.trip,
		Changed:   s.changed,
		Timestamp: s.changedAt,
	}
	s.index++
	s.counter++
	s.changed = false
	// sqNum 0 only marks the first frame after a change
	if s.sqNum == math.MaxUint32 {
		s.sqNum = 1
	} else {
		s.sqNum++
	}
	return step
}

// SetTrip injects a state change and reports whether the value differed.
// A change increments stNum, resets sqNum to 0 and restarts the back-off table.
func (s *Scheduler) SetTrip(trip bool) bool {
	if trip == s.trip {
		return false
	}
	s.trip = trip
	s.stNum++
	if s.stNum == 0 {
		s.stNum = 1
	}
	s.sqNum = 0
	s.counter = 0
	s.changed = true
	s.changedAt = s.clk.Now()
	return true
}

// Trip returns the current trip value.
func (s *Scheduler) Trip() bool {
	return s.trip
}

// StNum returns the status number of the next frame.
func (s *Scheduler) StNum() uint32 {
	return s.stNum
}
