package datatypes

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

// FractionBits is the width of the binary fraction of a second.
const FractionBits = 24

const (
	fractionSize  = 3
	fractionScale = 1 << FractionBits
)

var (
	ErrInvalidFraction = errors.New("fraction of second out of [0, 1)")
	ErrInvalidSize     = errors.New("invalid size")
)

// FractionOfSecond is a 24-bit binary fraction where bit i (MSB first)
// contributes 2^-(i+1) seconds.
type FractionOfSecond struct {
	bits uint32
}

// NewFractionOfSecond quantizes f to the largest representable value not above it.
func NewFractionOfSecond(f float64) (FractionOfSecond, error) {
	if math.IsNaN(f) || f < 0 || f >= 1 {
		return FractionOfSecond{}, fmt.Errorf("%w: %v", ErrInvalidFraction, f)
	}
	return FractionFromRat(new(big.Rat).SetFloat64(f))
}

// FractionFromRat quantizes an exact rational, e.g. one parsed from a decimal string.
func FractionFromRat(r *big.Rat) (FractionOfSecond, error) {
	if r.Sign() < 0 || r.Cmp(big.NewRat(1, 1)) >= 0 {
		return FractionOfSecond{}, fmt.Errorf("%w: %s", ErrInvalidFraction, r.FloatString(24))
	}
	return FractionOfSecond{bits: quantize(r.Num(), r.Denom())}, nil
}

// FractionFromNanoseconds quantizes ns/1e9.
func FractionFromNanoseconds(ns int64) (FractionOfSecond, error) {
	if ns < 0 || ns >= 1e9 {
		return FractionOfSecond{}, fmt.Errorf("%w: %d ns", ErrInvalidFraction, ns)
	}
	return FractionOfSecond{bits: quantize(big.NewInt(ns), big.NewInt(1e9))}, nil
}

// FractionFromBits takes the raw 24 bits, upper bits must be zero.
func FractionFromBits(bits uint32) (FractionOfSecond, error) {
	if bits >= fractionScale {
		return FractionOfSecond{}, fmt.Errorf("%w: 0x%X", ErrInvalidFraction, bits)
	}
	return FractionOfSecond{bits: bits}, nil
}

// FractionFromBytes decodes the 3-byte big-endian wire form.
func FractionFromBytes(b []byte) (FractionOfSecond, error) {
	if len(b) != fractionSize {
		return FractionOfSecond{}, fmt.Errorf("%w: fraction needs %d bytes, got %d", ErrInvalidSize, fractionSize, len(b))
	}
	return FractionOfSecond{bits: uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])}, nil
}

// quantize accumulates bits greedily: bit i is set when acc + 2^-(i+1) <= num/den.
// Comparison is done on integers scaled by 2^24*den.
func quantize(num, den *big.Int) uint32 {
	target := new(big.Int).Lsh(num, FractionBits)
	var acc uint32
	candidate := new(big.Int)
	for i := 0; i < FractionBits; i++ {
		next := acc | 1<<(FractionBits-1-i)
		candidate.SetUint64(uint64(next))
		candidate.Mul(candidate, den)
		if candidate.Cmp(target) <= 0 {
			acc = next
		}
	}
	return acc
}

// Bits returns the raw 24-bit value.
func (f FractionOfSecond) Bits() uint32 {
	return f.bits
}

// Bytes returns the 3-byte big-endian wire form.
func (f FractionOfSecond) Bytes() []byte {
	return []byte{byte(f.bits >> 16), byte(f.bits >> 8), byte(f.bits)}
}

// Rat returns the exact value, sum of bit_i * 2^-(i+1).
func (f FractionOfSecond) Rat() *big.Rat {
	return big.NewRat(int64(f.bits), fractionScale)
}

func (f FractionOfSecond) Float64() float64 {
	return float64(f.bits) / fractionScale
}

// Nanoseconds rounds up, so that FractionFromNanoseconds(f.Nanoseconds()) == f.
func (f FractionOfSecond) Nanoseconds() int64 {
	return (int64(f.bits)*1e9 + fractionScale - 1) / fractionScale
}

func (f FractionOfSecond) String() string {
	return f.Rat().FloatString(FractionBits)
}
