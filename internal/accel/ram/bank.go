// Package ram models the accelerator's three byte-addressable banks
// (activation input, weight, and output BRAM) as directory-cached ports in
// front of a flat backing store.
//
// This reuses the same L1/L2 cache modeling machinery a CPU data cache is
// built on (github.com/sarchlab/akita/v4/mem/cache, via DirectoryImpl and
// the LRU victim finder) but repurposes its hit/miss/eviction bookkeeping as
// bank-port telemetry for a BRAM: every bank still holds the complete
// backing array, so a cache miss only costs a refill/writeback round trip
// through the BackingStore, never data loss — exactly the correctness
// property a real BRAM port requires.
package ram

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config describes one bank's directory geometry.
type Config struct {
	// SizeBytes is the cached working-set size, in bytes.
	SizeBytes int
	// Associativity is the number of ways per set.
	Associativity int
	// BlockSize is the cache line size in bytes.
	BlockSize int
}

// DefaultBankConfig returns a small, generically-sized directory
// configuration suitable for any of the three banks; callers that care
// about distinguishing input/weight/output port contention can supply
// their own Config instead.
func DefaultBankConfig() Config {
	return Config{SizeBytes: 64 * 1024, Associativity: 8, BlockSize: 64}
}

// Stats mirrors a conventional cache Statistics struct, repurposed as BRAM
// port telemetry: Hits/Misses/Evictions/Writebacks describe bank-conflict
// behavior, not logical correctness (every access is always logically
// correct; see package doc).
type Stats struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// BackingStore is the next level behind a Bank: a flat byte array large
// enough to hold the bank's entire address range.
type BackingStore interface {
	Read(addr uint64, size int) []byte
	Write(addr uint64, data []byte)
}

// Bank is one directory-cached memory port.
type Bank struct {
	config    Config
	directory *akitacache.DirectoryImpl
	dataStore [][]byte
	backing   BackingStore
	stats     Stats
}

// NewBank creates a Bank of the given configuration, backed by backing.
func NewBank(config Config, backing BackingStore) *Bank {
	numSets := config.SizeBytes / (config.Associativity * config.BlockSize)
	if numSets < 1 {
		numSets = 1
	}
	totalBlocks := numSets * config.Associativity

	dataStore := make([][]byte, totalBlocks)
	for i := range dataStore {
		dataStore[i] = make([]byte, config.BlockSize)
	}

	return &Bank{
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
		dataStore: dataStore,
		backing:   backing,
	}
}

// Stats returns a snapshot of the bank's port telemetry.
func (b *Bank) Stats() Stats {
	return b.stats
}

func (b *Bank) blockIndex(block *akitacache.Block) int {
	return block.SetID*b.config.Associativity + block.WayID
}

// ReadByte returns one byte at addr.
func (b *Bank) ReadByte(addr int) byte {
	return byte(b.read(uint64(addr), 1))
}

// WriteByte writes one byte at addr.
func (b *Bank) WriteByte(addr int, value byte) {
	b.write(uint64(addr), 1, uint64(value))
}

// ReadWord returns the little-endian 32-bit word at a word-aligned addr
// (addr is a word index, not a byte offset).
func (b *Bank) ReadWord(addr int) uint32 {
	return uint32(b.read(uint64(addr)*4, 4))
}

// WriteWord writes a little-endian 32-bit word at a word-aligned addr.
func (b *Bank) WriteWord(addr int, word uint32) {
	b.write(uint64(addr)*4, 4, uint64(word))
}

func (b *Bank) read(addr uint64, size int) uint64 {
	b.stats.Reads++

	blockAddr := (addr / uint64(b.config.BlockSize)) * uint64(b.config.BlockSize)
	block := b.directory.Lookup(0, blockAddr)

	if block != nil && block.IsValid {
		b.stats.Hits++
		b.directory.Visit(block)
		offset := addr % uint64(b.config.BlockSize)
		return extractData(b.dataStore[b.blockIndex(block)], offset, size)
	}

	b.stats.Misses++
	return b.handleMiss(addr, size, false, 0)
}

func (b *Bank) write(addr uint64, size int, data uint64) {
	b.stats.Writes++

	blockAddr := (addr / uint64(b.config.BlockSize)) * uint64(b.config.BlockSize)
	block := b.directory.Lookup(0, blockAddr)

	if block != nil && block.IsValid {
		b.stats.Hits++
		b.directory.Visit(block)
		offset := addr % uint64(b.config.BlockSize)
		storeData(b.dataStore[b.blockIndex(block)], offset, size, data)
		block.IsDirty = true
		return
	}

	b.stats.Misses++
	b.handleMiss(addr, size, true, data)
}

func (b *Bank) handleMiss(addr uint64, size int, isWrite bool, writeData uint64) uint64 {
	blockAddr := (addr / uint64(b.config.BlockSize)) * uint64(b.config.BlockSize)

	victim := b.directory.FindVictim(blockAddr)
	if victim == nil {
		return 0
	}

	victimData := b.dataStore[b.blockIndex(victim)]

	if victim.IsValid {
		b.stats.Evictions++
		if victim.IsDirty && b.backing != nil {
			b.stats.Writebacks++
			b.backing.Write(victim.Tag, victimData)
		}
	}

	if b.backing != nil {
		copy(victimData, b.backing.Read(blockAddr, b.config.BlockSize))
	} else {
		for i := range victimData {
			victimData[i] = 0
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = false

	var result uint64
	offset := addr % uint64(b.config.BlockSize)
	if isWrite {
		storeData(victimData, offset, size, writeData)
		victim.IsDirty = true
	} else {
		result = extractData(victimData, offset, size)
	}

	b.directory.Visit(victim)

	return result
}

// Flush writes back every dirty line to the backing store without
// invalidating the directory. The pipeline coordinator calls this at the
// end of a layer so the backing store (and anything reading it directly,
// such as ByteSliceBacking.Bytes) observes every committed byte.
func (b *Bank) Flush() {
	for _, set := range b.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty && b.backing != nil {
				b.backing.Write(block.Tag, b.dataStore[b.blockIndex(block)])
				b.stats.Writebacks++
				block.IsDirty = false
			}
		}
	}
}

func extractData(data []byte, offset uint64, size int) uint64 {
	if data == nil || int(offset)+size > len(data) {
		return 0
	}
	var result uint64
	for i := 0; i < size; i++ {
		result |= uint64(data[int(offset)+i]) << (i * 8)
	}
	return result
}

func storeData(data []byte, offset uint64, size int, value uint64) {
	if data == nil || int(offset)+size > len(data) {
		return
	}
	for i := 0; i < size; i++ {
		data[int(offset)+i] = byte(value >> (i * 8))
	}
}
