package datatypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeQualityFlags(t *testing.T) {
	tests := []struct {
		name     string
		leap     bool
		failure  bool
		notSync  bool
		accuracy uint8
		want     byte
	}{
		{"true true true", true, true, true, 0, 0xE0},
		{"true true false", true, true, false, 0, 0xC0},
		{"true false true", true, false, true, 0, 0xA0},
		{"true false false", true, false, false, 0, 0x80},
		{"false true true", false, true, true, 0, 0x60},
		{"false true false", false, true, false, 0, 0x40},
		{"false false true", false, false, true, 0, 0x20},
		{"false false false", false, false, false, 0, 0x00},
		{"unspecified accuracy", false, false, false, UnspecifiedAccuracy, 0x1F},
		{"min accuracy", false, false, false, 1, 0x01},
		{"max accuracy", false, false, false, 24, 0x18},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewTimeQuality(tt.leap, tt.failure, tt.notSync, tt.accuracy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Byte())

			decoded, err := TimeQualityFromByte(tt.want)
			require.NoError(t, err)
			assert.Equal(t, q, decoded)
			assert.Equal(t, tt.leap, decoded.LeapSecondKnown())
			assert.Equal(t, tt.failure, decoded.ClockFailure())
			assert.Equal(t, tt.notSync, decoded.ClockNotSync())
			assert.Equal(t, tt.accuracy, decoded.Accuracy())
		})
	}
}

func TestTimeQualityDefault(t *testing.T) {
	q := DefaultTimeQuality()
	assert.True(t, q.LeapSecondKnown())
	assert.False(t, q.ClockFailure())
	assert.False(t, q.ClockNotSync())
	assert.Equal(t, uint8(DefaultAccuracy), q.Accuracy())
	assert.Equal(t, byte(0x87), q.Byte())
}

func TestTimeQualityInvalidAccuracy(t *testing.T) {
	for _, accuracy := range []uint8{25, 26, 29, 30} {
		_, err := NewTimeQuality(false, false, false, accuracy)
		assert.ErrorIs(t, err, ErrInvalidAccuracy)

		_, err = TimeQualityFromByte(0x80 | accuracy)
		assert.ErrorIs(t, err, ErrInvalidAccuracy)
	}

	_, err := TimeQualityFromByte(0x19)
	assert.ErrorContains(t, err, "25")
	_, err = TimeQualityFromByte(0x1E)
	assert.ErrorContains(t, err, "30")

	for _, accuracy := range []uint8{0, 24, 31} {
		_, err := NewTimeQuality(false, false, false, accuracy)
		assert.NoError(t, err)
	}

	_, err = NewTimeQuality(false, false, false, 32)
	assert.ErrorIs(t, err, ErrInvalidAccuracy)
}

func TestTimeQualityAllBytes(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		q, err := TimeQualityFromByte(b)
		acc := b & 0x1F
		if acc > 24 && acc != 31 {
			assert.ErrorIs(t, err, ErrInvalidAccuracy)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, b, q.Byte())
	}
}

func TestTimeQualityString(t *testing.T) {
	assert.Equal(t,
		"Leap second known, Clock ok, Clock synchronised, 7 bits accuracy [0.0078125 seconds accuracy]",
		DefaultTimeQuality().String())

	q, err := NewTimeQuality(false, true, true, UnspecifiedAccuracy)
	require.NoError(t, err)
	assert.Equal(t,
		"Leap second unknown, Clock failure, Clock not synchronised, 31 bits accuracy [unspecified behaviour]",
		q.String())
}

func TestTimeQualityAccuracyBound(t *testing.T) {
	d, ok := DefaultTimeQuality().AccuracyBound()
	assert.True(t, ok)
	assert.Equal(t, 7812500*time.Nanosecond, d)

	q, err := NewTimeQuality(true, false, false, 0)
	require.NoError(t, err)
	d, ok = q.AccuracyBound()
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)

	q, err = NewTimeQuality(true, false, false, UnspecifiedAccuracy)
	require.NoError(t, err)
	_, ok = q.AccuracyBound()
	assert.False(t, ok)
}
