package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slonegd/goose61850/capture"
	"github.com/slonegd/goose61850/clock"
	"github.com/slonegd/goose61850/config"
	"github.com/slonegd/goose61850/datatypes"
	"github.com/slonegd/goose61850/goose"
)

func writeCapture(t *testing.T, path string, frames int) {
	t.Helper()
	clk := clock.NewManual(time.Unix(1700000000, 0))
	w, err := capture.Create(path, clk)
	require.NoError(t, err)
	defer w.Close()

	cfg := config.Default()
	tmpl, err := cfg.Template()
	require.NoError(t, err)
	for i := 0; i < frames; i++ {
		pdu := tmpl
		pdu.StNum = 1
		pdu.SqNum = uint32(i + 1)
		pdu.Timestamp, err = datatypes.TimestampFromTime(clk.Now(), datatypes.DefaultTimeQuality())
		require.NoError(t, err)
		frame, err := goose.Encode(&pdu)
		require.NoError(t, err)
		require.NoError(t, w.Send(frame))
		clk.Advance(time.Second)
	}
}

func TestReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rx.pcap")
	writeCapture(t, path, 3)

	var out bytes.Buffer
	cmd := newCommand(&out)
	cmd.SetArgs([]string{"-r", path, "--stats"})
	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Equal(t, 3, strings.Count(text, "GOOSE ID: SEL_421_Sub\n"))
	assert.Contains(t, text, "3 | 1000.000 ms\n")
	assert.Contains(t, text, "Sequence Number: 3\n")
	assert.Contains(t, text, "SEL_421_Sub: 2 intervals")
}

func TestReplayFrameLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rx.pcap")
	writeCapture(t, path, 5)

	var out bytes.Buffer
	cmd := newCommand(&out)
	cmd.SetArgs([]string{"-r", path, "-n", "2"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, 2, strings.Count(out.String(), "All Data:"))
}
