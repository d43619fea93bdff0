package ram_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/hwquant/cnnaccel/internal/accel/ram"
)

var _ = Describe("Bank", func() {
	var (
		bank    *ram.Bank
		backing *ram.ByteSliceBacking
	)

	BeforeEach(func() {
		backing = ram.NewByteSliceBacking(64 * 1024)
		bank = ram.NewBank(ram.Config{SizeBytes: 1024, Associativity: 4, BlockSize: 64}, backing)
	})

	Describe("byte addressing", func() {
		It("reads back zero-filled backing memory on a cold miss", func() {
			Expect(bank.ReadByte(0x100)).To(Equal(byte(0)))

			stats := bank.Stats()
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
		})

		It("hits on a subsequent access to the same block", func() {
			bank.WriteByte(0x100, 0x42)
			bank.ReadByte(0x100)

			stats := bank.Stats()
			Expect(stats.Hits).To(BeNumerically(">=", 1))
		})

		It("round-trips a written byte", func() {
			bank.WriteByte(0x200, 0x7F)
			Expect(bank.ReadByte(0x200)).To(Equal(byte(0x7F)))
		})
	})

	Describe("word addressing", func() {
		It("round-trips a written word", func() {
			bank.WriteWord(4, 0xDEADBEEF)
			Expect(bank.ReadWord(4)).To(Equal(uint32(0xDEADBEEF)))
		})

		It("packs words little-endian over the byte interface", func() {
			bank.WriteWord(8, 0x11223344)
			Expect(bank.ReadByte(32)).To(Equal(byte(0x44)))
			Expect(bank.ReadByte(33)).To(Equal(byte(0x33)))
			Expect(bank.ReadByte(34)).To(Equal(byte(0x22)))
			Expect(bank.ReadByte(35)).To(Equal(byte(0x11)))
		})
	})

	Describe("eviction and writeback", func() {
		It("preserves dirty data across an eviction by writing back to the backing store", func() {
			// Fill far more blocks than the bank's associativity so every
			// set is forced to evict.
			for i := 0; i < 256; i++ {
				bank.WriteByte(i*64, byte(i))
			}

			for i := 0; i < 256; i++ {
				Expect(bank.ReadByte(i * 64)).To(Equal(byte(i)))
			}

			stats := bank.Stats()
			Expect(stats.Evictions).To(BeNumerically(">", 0))
			Expect(stats.Writebacks).To(BeNumerically(">", 0))
		})
	})

	Describe("Flush", func() {
		It("commits dirty lines to the backing store without needing further accesses", func() {
			bank.WriteWord(0, 0xCAFEBABE)
			bank.Flush()

			raw := backing.Bytes()
			Expect(raw[0]).To(Equal(byte(0xBE)))
			Expect(raw[1]).To(Equal(byte(0xBA)))
			Expect(raw[2]).To(Equal(byte(0xFE)))
			Expect(raw[3]).To(Equal(byte(0xCA)))
		})
	})
})
