package goose61850

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slonegd/goose61850/config"
	"github.com/slonegd/goose61850/goose"
	"github.com/slonegd/goose61850/publisher"
	"github.com/slonegd/goose61850/subscriber"
)

func TestDryRunReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.pcap")

	cfg := config.Default()
	cfg.Publisher.DryRun = true
	cfg.Publisher.PcapOutput = path
	require.NoError(t, cfg.Validate())

	pub, err := NewPublisher(cfg, WithTripSchedule(publisher.DemoTripSchedule()))
	require.NoError(t, err)
	require.NoError(t, pub.Run(context.Background()))
	require.NoError(t, pub.Close())

	cfg.Subscriber.PcapInput = path
	stats := subscriber.NewStats()
	var pdus []*goose.PDU
	sub, err := NewSubscriber(cfg,
		WithStats(stats),
		WithHandler(func(pdu *goose.PDU, _ subscriber.Meta) { pdus = append(pdus, pdu) }),
	)
	require.NoError(t, err)
	defer sub.Close()
	require.NoError(t, sub.Run(context.Background()))

	require.Len(t, pdus, publisher.DemoFrames)
	var trips []bool
	var stNums []uint32
	for _, p := range pdus {
		trips = append(trips, p.Trip)
		stNums = append(stNums, p.StNum)
		assert.Equal(t, "SEL_421_Sub", p.GoID)
	}
	assert.Equal(t, []bool{
		false, false, false, false,
		true, true, true, true,
		false, false, false, false,
	}, trips)
	assert.Equal(t, []uint32{1, 1, 1, 1, 2, 2, 2, 2, 3, 3, 3, 3}, stNums)

	snap := stats.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(publisher.DemoFrames-1), snap[0].Count)
}

func TestNoInterface(t *testing.T) {
	cfg := config.Default()

	_, err := NewPublisher(cfg)
	assert.ErrorIs(t, err, ErrNoInterface)

	_, err = NewSubscriber(cfg)
	assert.ErrorIs(t, err, ErrNoInterface)
}

func TestDryRunNeedsOutput(t *testing.T) {
	cfg := config.Default()
	cfg.Publisher.DryRun = true
	_, err := NewPublisher(cfg)
	assert.Error(t, err)
}
