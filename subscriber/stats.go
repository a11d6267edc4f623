package subscriber

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// inter-arrival times are recorded in microseconds up to a minute
const (
	statsMinValue = 1
	statsMaxValue = 60_000_000
	statsSigFigs  = 3
)

// Stats tracks inter-arrival times per goID. It is safe for concurrent use.
type Stats struct {
	mu     sync.Mutex
	series map[string]*series
}

type series struct {
	hg   *hdrhistogram.Histogram
	last time.Time
}

func NewStats() *Stats {
	return &Stats{series: make(map[string]*series)}
}

// Observe records a frame of goID received at t.
func (s *Stats) Observe(goID string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sr, ok := s.series[goID]
	if !ok {
		s.series[goID] = &series{
			hg:   hdrhistogram.New(statsMinValue, statsMaxValue, statsSigFigs),
			last: t,
		}
		return
	}
	v := t.Sub(sr.last).Microseconds()
	sr.last = t
	if v < statsMinValue {
		v = statsMinValue
	} else if v > statsMaxValue {
		v = statsMaxValue
	}
	_ = sr.hg.RecordValue(v)
}

// Summary is the inter-arrival distribution of one goID.
type Summary struct {
	GoID  string
	Count int64
	Min   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Snapshot returns one Summary per goID, ordered by goID.
func (s *Stats) Snapshot() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, 0, len(s.series))
	for goID, sr := range s.series {
		out = append(out, Summary{
			GoID:  goID,
			Count: sr.hg.TotalCount(),
			Min:   micros(sr.hg.Min()),
			Mean:  time.Duration(sr.hg.Mean() * float64(time.Microsecond)),
			P50:   micros(sr.hg.ValueAtQuantile(50)),
			P99:   micros(sr.hg.ValueAtQuantile(99)),
			Max:   micros(sr.hg.Max()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GoID < out[j].GoID })
	return out
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
