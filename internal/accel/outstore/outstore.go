// Package outstore implements the Output Storage read-modify-write packer:
// it maps a stream of (value, lane, tlast) records to (y, x, channel)
// output coordinates and commits each byte into a 32-bit little-endian
// word memory, with an optional 2x2 max-pooling fusion stage in front of
// the byte-packing path.
//
// The BRAM map itself is backed by an Akita cache-directory bank (package
// ram) rather than a bare Go map, so the same directory/victim-finder
// machinery used elsewhere to model an L1 data cache here models the
// accelerator's output BRAM port — see ram.Bank.
package outstore

import (
	"github.com/hwquant/cnnaccel/internal/accel/ram"
	"github.com/hwquant/cnnaccel/internal/accel/types"
)

// Storage owns the BRAM word memory and the streaming pixel counter for
// one layer invocation.
type Storage struct {
	cfg        types.OutputConfig
	bank       *ram.Bank
	pixelCount int
}

// New creates a Storage backed by the given Bank (see ram.NewBank). The
// Bank supplies the directory-cached word memory; Storage only knows how
// to address it and pack/extract bytes.
func New(cfg types.OutputConfig, bank *ram.Bank) *Storage {
	return &Storage{cfg: cfg, bank: bank}
}

// calcOutputAddr computes the word address and byte-lane selector for one
// (out_y, out_x, out_c) coordinate, row-major with channels innermost.
func (s *Storage) calcOutputAddr(outY, outX, outC int) (wordAddr, byteSel int) {
	linear := (outY*s.cfg.OutputWidth+outX)*s.cfg.OutputChannels + outC
	return s.cfg.OutputBaseAddr + linear/4, linear % 4
}

// insertByte places value into the given byte lane of a 32-bit
// little-endian word, leaving the other three bytes untouched.
func insertByte(oldWord uint32, value int8, byteSel int) uint32 {
	shift := uint(byteSel) * 8
	mask := ^(uint32(0xFF) << shift)
	return (oldWord & mask) | (uint32(uint8(value)) << shift)
}

// ExtractByte extracts the byte at byteSel from a 32-bit word. Round-tripped
// with insertByte this is the identity on the low 8 bits of the original
// value.
func ExtractByte(word uint32, byteSel int) int8 {
	shift := uint(byteSel) * 8
	return int8((word >> shift) & 0xFF)
}

// StoreOutput is the pure, non-mutating form of one RMW event: it computes
// the address and packed word for (out_y, out_x, out_c, value) against a
// caller-supplied old word, without touching Storage's own BRAM bank. It
// exists to let golden-trace emission replay a single RMW in isolation.
func (s *Storage) StoreOutput(outY, outX, outC int, value int8, oldWord uint32) (types.StoreRecord, error) {
	if outY >= s.cfg.OutputHeight || outX >= s.cfg.OutputWidth || outC >= s.cfg.OutputChannels {
		return types.StoreRecord{}, &types.CoordinateOutOfBoundsError{
			Y: outY, X: outX, C: outC,
			Height: s.cfg.OutputHeight, Width: s.cfg.OutputWidth, Chan: s.cfg.OutputChannels,
		}
	}

	wordAddr, byteSel := s.calcOutputAddr(outY, outX, outC)
	newWord := insertByte(oldWord, value, byteSel)

	return types.StoreRecord{
		OutY: outY, OutX: outX, OutC: outC,
		WordAddr: wordAddr,
		ByteSel:  byteSel,
		Value:    value,
		OldWord:  oldWord,
		NewWord:  newWord,
	}, nil
}

// ProcessStream is the stateful AXI-Stream-shaped entry point: it derives
// (out_y, out_x) from the internal pixel counter, takes out_c from tid,
// performs the RMW against the Bank, and advances the pixel counter on
// tlast. Records past the end of the output tensor are silently dropped
// (end-of-stream guard), returning (zero value, false).
func (s *Storage) ProcessStream(tdata int8, tid int, tlast bool) (types.StoreRecord, bool) {
	pixelIdx := s.pixelCount
	outY := pixelIdx / s.cfg.OutputWidth
	outX := pixelIdx % s.cfg.OutputWidth
	outC := tid

	if outY >= s.cfg.OutputHeight {
		return types.StoreRecord{}, false
	}

	wordAddr, byteSel := s.calcOutputAddr(outY, outX, outC)
	oldWord := s.bank.ReadWord(wordAddr)
	newWord := insertByte(oldWord, tdata, byteSel)
	s.bank.WriteWord(wordAddr, newWord)

	if tlast {
		s.pixelCount++
	}

	return types.StoreRecord{
		OutY: outY, OutX: outX, OutC: outC,
		WordAddr: wordAddr,
		ByteSel:  byteSel,
		Value:    tdata,
		OldWord:  oldWord,
		NewWord:  newWord,
	}, true
}

// PixelCount returns the number of complete output pixels committed so
// far.
func (s *Storage) PixelCount() int {
	return s.pixelCount
}

// PoolMax2x2 returns the signed maximum of exactly four values covering one
// 2x2 output region. The caller (the pooling driver, see PoolBuffer) is
// responsible for buffering policy; this is only the primitive.
func PoolMax2x2(values [4]int8) int8 {
	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// PoolBuffer accumulates scalar outputs until a 2x2 pooling window is
// complete, then flushes the max through PoolMax2x2. The order in which the
// four window members arrive (row-major within the 2x2 block) and how they
// are batched is this package's own buffering policy, not dictated by any
// upstream stage.
type PoolBuffer struct {
	values [4]int8
	filled int
}

// Push adds one scalar value to the window. When the fourth value arrives
// it returns (max, true) and resets the window; otherwise it returns
// (0, false).
func (p *PoolBuffer) Push(value int8) (int8, bool) {
	p.values[p.filled] = value
	p.filled++

	if p.filled < 4 {
		return 0, false
	}

	max := PoolMax2x2(p.values)
	p.filled = 0
	return max, true
}

// Verify checks that every supplied word address lies within
// [base, base + ceil(num_outputs/4)).
func (s *Storage) Verify(addresses []int) types.VerifyResult {
	result := types.NewVerifyResult()
	maxAddr := s.cfg.OutputBaseAddr + s.cfg.NumWords()

	for i, addr := range addresses {
		if addr < s.cfg.OutputBaseAddr || addr >= maxAddr {
			result.Fail("outstore", i, rangeStr(s.cfg.OutputBaseAddr, maxAddr), itoa(addr), "word address out of bounds")
		}
	}

	return result
}
