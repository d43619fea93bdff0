package dequant_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hwquant/cnnaccel/internal/accel/dequant"
	"github.com/hwquant/cnnaccel/internal/accel/types"
)

var _ = Describe("Dequantizer", func() {
	Describe("basic dequantization with ReLU enabled", func() {
		var d *dequant.Dequantizer

		BeforeEach(func() {
			cfg := types.NewQuantConfig(0, 0, 0, 0x0080_0000, true)
			d = dequant.New(cfg)
		})

		DescribeTable("accumulator -> output",
			func(accum int64, expected int8) {
				result, _ := d.DequantizeScalar(accum)
				Expect(result).To(Equal(expected))
			},
			Entry("zero", int64(0), int8(0)),
			Entry("positive halves", int64(100), int8(50)),
			Entry("large positive halves", int64(200), int8(100)),
			Entry("saturates at max", int64(512), int8(127)),
			Entry("negative clipped by relu", int64(-100), int8(0)),
			Entry("small negative clipped by relu", int64(-50), int8(0)),
		)
	})

	Describe("saturation without ReLU", func() {
		var d *dequant.Dequantizer

		BeforeEach(func() {
			cfg := types.NewQuantConfig(0, 0, 0, 0x0100_0000, false)
			d = dequant.New(cfg)
		})

		DescribeTable("accumulator -> output",
			func(accum int64, expected int8) {
				result, _ := d.DequantizeScalar(accum)
				Expect(result).To(Equal(expected))
			},
			Entry("zero", int64(0), int8(0)),
			Entry("max positive", int64(127), int8(127)),
			Entry("overflow by one", int64(128), int8(127)),
			Entry("large overflow", int64(255), int8(127)),
			Entry("min negative", int64(-128), int8(-128)),
			Entry("underflow by one", int64(-129), int8(-128)),
			Entry("large underflow", int64(-200), int8(-128)),
		)
	})

	Describe("vector dequantization", func() {
		It("applies the scalar pipeline element-wise", func() {
			cfg := types.NewQuantConfig(0, 0, 0, 0x0080_0000, true)
			d := dequant.New(cfg)

			accums := []int64{0, 100, 200, -100, -50, 300}
			expected := []int8{0, 50, 100, 0, 0, 127}

			results, traces := d.DequantizeVector(accums)
			Expect(results).To(Equal(expected))
			Expect(traces).To(HaveLen(len(accums)))
		})
	})

	Describe("saturation is idempotent", func() {
		It("leaves an already-saturated output unchanged under re-saturation", func() {
			cfg := types.NewQuantConfig(0, 0, 0, 0x0100_0000, false)
			d := dequant.New(cfg)

			result, _ := d.DequantizeScalar(10000)
			Expect(result).To(Equal(int8(127)))

			again, _ := d.DequantizeScalar(int64(result))
			Expect(again).To(Equal(result))
		})
	})

	Describe("rounding semantics for negative intermediates", func() {
		It("adds the rounding bias before the arithmetic shift even when the product is negative", func() {
			// scale = 1.0, zero-points = 0: accumulator -1 scales to
			// -1 * 0x01000000 = -16777216; + 0x00800000 rounding bias =
			// -8388608; arithmetic shift right 24 = -1 (floors toward
			// -infinity, not rounded toward zero).
			cfg := types.NewQuantConfig(0, 0, 0, 0x0100_0000, false)
			d := dequant.New(cfg)

			result, trace := d.DequantizeScalar(-1)
			Expect(result).To(Equal(int8(-1)))
			Expect(trace.ProductShifted).To(Equal(int64(-1)))
		})
	})
})
