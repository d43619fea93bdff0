// Package dequant implements the Q8.24 fixed-point dequantization pipeline:
// subtract the input zero-point, scale, round-and-shift, optionally apply
// ReLU, add the output zero-point, and saturate to signed 8 bits.
//
// The package is split into a quantization-parameter holder and a lookup-
// free transform function, the same way a latency model separates its
// timing configuration (data) from the table lookup performed against it —
// here there is no lookup table, only a fixed arithmetic pipeline, so
// Dequantizer plays the combined role.
package dequant

import (
	"github.com/hwquant/cnnaccel/internal/accel/types"
)

// roundBias is 0.5 in Q8.24 (0x00800000), added before the arithmetic right
// shift so that the rounding-add is applied even to negative products. This
// is an asymmetric rounding choice, not round-half-to-even.
const roundBias int64 = 0x0080_0000

// scaleShift is the Q8.24 fractional width.
const scaleShift = 24

// Dequantizer converts signed MAC accumulators into saturated int8 outputs
// under one QuantConfig.
type Dequantizer struct {
	cfg types.QuantConfig
}

// New creates a Dequantizer bound to the given quantization parameters.
func New(cfg types.QuantConfig) *Dequantizer {
	return &Dequantizer{cfg: cfg}
}

// saturateInt8 clamps a wide integer into the signed 8-bit range.
// Idempotent under re-application: once a value is within [-128, 127]
// saturating it again is a no-op.
func saturateInt8(v int64) int8 {
	if v > 127 {
		return 127
	}
	if v < -128 {
		return -128
	}
	return int8(v)
}

// DequantizeScalar runs the full pipeline on one accumulator value and
// returns both the saturated int8 result and the per-stage trace used for
// golden-trace verification.
func (d *Dequantizer) DequantizeScalar(accumulator int64) (int8, types.DequantTrace) {
	trace := types.DequantTrace{AccumBefore: accumulator}

	// Stage 1: subtract input zero-point.
	afterZP := accumulator - int64(d.cfg.ZeroPointIn)
	trace.AccumAfterZP = afterZP

	// Stage 2+3: multiply by the Q8.24 scale factor, add the rounding bias,
	// then arithmetic-shift right by 24. The shift is on a signed value and
	// must be an arithmetic (sign-extending) shift.
	scaled := afterZP * int64(d.cfg.ScaleFactor)
	shifted := (scaled + roundBias) >> scaleShift
	trace.ProductShifted = shifted

	// Stage 4: optional ReLU.
	afterReLU := shifted
	if d.cfg.EnableReLU && afterReLU < 0 {
		afterReLU = 0
	}
	trace.AfterReLU = afterReLU

	// Stage 5: add output zero-point and saturate.
	final := afterReLU + int64(d.cfg.ZeroPointOut)
	result := saturateInt8(final)
	trace.FinalInt8 = result

	return result, trace
}

// DequantizeVector applies DequantizeScalar element-wise.
func (d *Dequantizer) DequantizeVector(accumulators []int64) ([]int8, []types.DequantTrace) {
	results := make([]int8, len(accumulators))
	traces := make([]types.DequantTrace, len(accumulators))

	for i, accum := range accumulators {
		results[i], traces[i] = d.DequantizeScalar(accum)
	}

	return results, traces
}
