package outstore_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hwquant/cnnaccel/internal/accel/outstore"
	"github.com/hwquant/cnnaccel/internal/accel/ram"
	"github.com/hwquant/cnnaccel/internal/accel/types"
)

func newTestBank() *ram.Bank {
	backing := ram.NewByteSliceBacking(4096)
	return ram.NewBank(ram.Config{SizeBytes: 256, Associativity: 4, BlockSize: 64}, backing)
}

var _ = Describe("Storage", func() {
	Describe("StoreOutput", func() {
		var (
			cfg types.OutputConfig
			s   *outstore.Storage
		)

		BeforeEach(func() {
			cfg = types.OutputConfig{OutputHeight: 4, OutputWidth: 4, OutputChannels: 4, OutputBaseAddr: 0}
			s = outstore.New(cfg, newTestBank())
		})

		It("packs four channels of one pixel into a single word", func() {
			word := uint32(0)
			for c := 0; c < 4; c++ {
				record, err := s.StoreOutput(0, 0, c, int8(10+c), word)
				Expect(err).NotTo(HaveOccurred())
				word = record.NewWord
			}
			Expect(outstore.ExtractByte(word, 0)).To(Equal(int8(10)))
			Expect(outstore.ExtractByte(word, 1)).To(Equal(int8(11)))
			Expect(outstore.ExtractByte(word, 2)).To(Equal(int8(12)))
			Expect(outstore.ExtractByte(word, 3)).To(Equal(int8(13)))
		})

		It("rejects coordinates outside the declared output tensor", func() {
			_, err := s.StoreOutput(4, 0, 0, 1, 0)
			Expect(err).To(HaveOccurred())

			_, err = s.StoreOutput(0, 0, 4, 1, 0)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ProcessStream", func() {
		var (
			cfg types.OutputConfig
			s   *outstore.Storage
		)

		BeforeEach(func() {
			cfg = types.OutputConfig{OutputHeight: 2, OutputWidth: 2, OutputChannels: 4, OutputBaseAddr: 0}
			s = outstore.New(cfg, newTestBank())
		})

		It("commits every channel of a pixel and advances the pixel counter on tlast", func() {
			for c := 0; c < 4; c++ {
				_, ok := s.ProcessStream(int8(c+1), c, c == 3)
				Expect(ok).To(BeTrue())
			}
			Expect(s.PixelCount()).To(Equal(1))
		})

		It("drops records once every output pixel has been written", func() {
			total := cfg.OutputHeight * cfg.OutputWidth
			for p := 0; p < total; p++ {
				for c := 0; c < 4; c++ {
					s.ProcessStream(int8(1), c, c == 3)
				}
			}
			Expect(s.PixelCount()).To(Equal(total))

			_, ok := s.ProcessStream(int8(1), 0, false)
			Expect(ok).To(BeFalse())
		})

		It("round-trips through the backing bank across word boundaries", func() {
			_, _ = s.ProcessStream(7, 0, false)
			_, _ = s.ProcessStream(8, 1, false)
			_, _ = s.ProcessStream(9, 2, false)
			record, ok := s.ProcessStream(10, 3, true)
			Expect(ok).To(BeTrue())
			Expect(outstore.ExtractByte(record.NewWord, 0)).To(Equal(int8(7)))
			Expect(outstore.ExtractByte(record.NewWord, 3)).To(Equal(int8(10)))
		})
	})

	Describe("pooling", func() {
		It("buffers four scalars and flushes their maximum", func() {
			var buf outstore.PoolBuffer

			_, flushed := buf.Push(1)
			Expect(flushed).To(BeFalse())
			_, flushed = buf.Push(5)
			Expect(flushed).To(BeFalse())
			_, flushed = buf.Push(-3)
			Expect(flushed).To(BeFalse())

			max, flushed := buf.Push(2)
			Expect(flushed).To(BeTrue())
			Expect(max).To(Equal(int8(5)))
		})

		It("resets after a flush so the next window starts empty", func() {
			var buf outstore.PoolBuffer
			buf.Push(1)
			buf.Push(1)
			buf.Push(1)
			buf.Push(1)

			_, flushed := buf.Push(9)
			Expect(flushed).To(BeFalse())
		})

		It("PoolMax2x2 returns the signed maximum of exactly four values", func() {
			Expect(outstore.PoolMax2x2([4]int8{-5, -1, -128, -3})).To(Equal(int8(-1)))
		})
	})

	Describe("Verify", func() {
		It("flags word addresses outside the output tensor's word range", func() {
			cfg := types.OutputConfig{OutputHeight: 2, OutputWidth: 2, OutputChannels: 4, OutputBaseAddr: 100}
			s := outstore.New(cfg, newTestBank())

			result := s.Verify([]int{100, 103, 104})
			Expect(result.OK).To(BeFalse())
			Expect(result.Failures).To(HaveLen(1))
		})
	})
})
