// Package indexgen produces the deterministic (input-address, weight-address,
// TLAST, output-channel-lane) stream for one tiled convolution layer, in the
// exact outermost-to-innermost order hardware iterates: output-channel
// batch, tile, within-tile pixel, lane, then filter taps (fy, fx, ic).
//
// Generator owns nothing persistent; it is a pure function of ConvConfig,
// the same way a pipeline's fetch stage derives an instruction stream purely
// from program counter and memory rather than holding mutable simulation
// state of its own.
package indexgen

import (
	"github.com/hwquant/cnnaccel/internal/accel/types"
)

// Generator generates the address stream for one ConvConfig.
type Generator struct {
	conv           types.ConvConfig
	inputBaseAddr  int
	weightBaseAddr int
	tilesPerRow    int
	tilesPerCol    int
	totalTiles     int
}

// New creates a Generator for the given configuration and BRAM base
// addresses. conv must already be validated (types.NewConvConfig).
func New(conv types.ConvConfig, inputBaseAddr, weightBaseAddr int) *Generator {
	tilesPerRow := ceilDiv(conv.OutputWidth, types.TileSize)
	tilesPerCol := ceilDiv(conv.OutputHeight, types.TileSize)

	return &Generator{
		conv:           conv,
		inputBaseAddr:  inputBaseAddr,
		weightBaseAddr: weightBaseAddr,
		tilesPerRow:    tilesPerRow,
		tilesPerCol:    tilesPerCol,
		totalTiles:     tilesPerRow * tilesPerCol,
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// calcInputAddr computes the row-major, channels-innermost input address.
func (g *Generator) calcInputAddr(inY, inX, ic int) int {
	offset := (inY*g.conv.InputWidth+inX)*g.conv.InputChannels + ic
	return g.inputBaseAddr + offset
}

// calcWeightAddr computes the weight address for filter tap (fy, fx, ic) of
// output channel oc.
func (g *Generator) calcWeightAddr(oc, fy, fx, ic int) int {
	offset := (oc*g.conv.FilterHeight+fy)*g.conv.FilterWidth*g.conv.InputChannels +
		fx*g.conv.InputChannels + ic
	return g.weightBaseAddr + offset
}

// calcInputPosition computes the padded-aware input position for output
// position (outY, outX) and filter offset (fy, fx). It reports whether the
// position lies inside the input; when it does not, the caller is expected
// to clamp to (0, 0) per spec's padding policy rather than skip the record.
func (g *Generator) calcInputPosition(outY, outX, fy, fx int) (inY, inX int, valid bool) {
	tempY := outY*g.conv.Stride - g.conv.Padding + fy
	tempX := outX*g.conv.Stride - g.conv.Padding + fx

	if tempY < 0 || tempY >= g.conv.InputHeight || tempX < 0 || tempX >= g.conv.InputWidth {
		return 0, 0, false
	}
	return tempY, tempX, true
}

// GenerateAll produces the complete, deterministic address stream for the
// layer.
func (g *Generator) GenerateAll() []types.AddressRecord {
	return g.generate(-1)
}

// GenerateFirstN produces a prefix of GenerateAll of at most n records.
func (g *Generator) GenerateFirstN(n int) []types.AddressRecord {
	return g.generate(n)
}

// generate implements the shared body of GenerateAll/GenerateFirstN. A
// negative limit means "no limit".
func (g *Generator) generate(limit int) []types.AddressRecord {
	conv := g.conv
	var out []types.AddressRecord
	if limit < 0 {
		out = make([]types.AddressRecord, 0, conv.TotalMacs())
	} else {
		out = make([]types.AddressRecord, 0, limit)
	}

	for ocBatch := 0; ocBatch < conv.OutputChannelBatches(); ocBatch++ {
		for tileID := 0; tileID < g.totalTiles; tileID++ {
			tileRow := tileID / g.tilesPerRow
			tileCol := tileID % g.tilesPerRow

			for outYInTile := 0; outYInTile < types.TileSize; outYInTile++ {
				actualOutY := tileRow*types.TileSize + outYInTile
				if actualOutY >= conv.OutputHeight {
					continue
				}

				for outXInTile := 0; outXInTile < types.TileSize; outXInTile++ {
					actualOutX := tileCol*types.TileSize + outXInTile
					if actualOutX >= conv.OutputWidth {
						continue
					}

					for ocOffset := 0; ocOffset < types.LanesPerBatch; ocOffset++ {
						oc := ocBatch*types.LanesPerBatch + ocOffset
						if oc >= conv.NumFilters {
							continue
						}

						for fy := 0; fy < conv.FilterHeight; fy++ {
							for fx := 0; fx < conv.FilterWidth; fx++ {
								for ic := 0; ic < conv.InputChannels; ic++ {
									inY, inX, valid := g.calcInputPosition(actualOutY, actualOutX, fy, fx)
									if !valid {
										inY, inX = 0, 0
									}

									tlast := fy == conv.FilterHeight-1 &&
										fx == conv.FilterWidth-1 &&
										ic == conv.InputChannels-1

									out = append(out, types.AddressRecord{
										InputAddr:  g.calcInputAddr(inY, inX, ic),
										WeightAddr: g.calcWeightAddr(oc, fy, fx, ic),
										TLast:      tlast,
										OCLane:     ocOffset,
										OCBatch:    ocBatch,
									})

									if limit >= 0 && len(out) >= limit {
										return out
									}
								}
							}
						}
					}
				}
			}
		}
	}

	return out
}

// Verify checks an emitted address sequence for internal consistency:
// total length, TLAST placement, address bounds, and lane range. It never
// panics or aborts mid-check; every violation is aggregated into the
// returned VerifyResult.
func (g *Generator) Verify(addresses []types.AddressRecord) types.VerifyResult {
	result := types.NewVerifyResult()
	conv := g.conv

	expectedTotal := conv.TotalMacs()
	if len(addresses) != expectedTotal {
		result.Fail("indexgen", -1, itoa(expectedTotal), itoa(len(addresses)), "total MAC count mismatch")
	}

	maxInputAddr := g.inputBaseAddr + conv.InputSize()
	maxWeightAddr := g.weightBaseAddr + conv.WeightSize()

	for i, addr := range addresses {
		expectedTLast := (i+1)%conv.MacsPerPixel == 0
		if addr.TLast != expectedTLast {
			result.Fail("indexgen", i, boolStr(expectedTLast), boolStr(addr.TLast), "tlast placement mismatch")
		}

		if addr.InputAddr < g.inputBaseAddr || addr.InputAddr >= maxInputAddr {
			result.Fail("indexgen", i, rangeStr(g.inputBaseAddr, maxInputAddr), itoa(addr.InputAddr), "input address out of bounds")
		}
		if addr.WeightAddr < g.weightBaseAddr || addr.WeightAddr >= maxWeightAddr {
			result.Fail("indexgen", i, rangeStr(g.weightBaseAddr, maxWeightAddr), itoa(addr.WeightAddr), "weight address out of bounds")
		}
		if addr.OCLane < 0 || addr.OCLane >= types.LanesPerBatch {
			result.Fail("indexgen", i, "[0,4)", itoa(addr.OCLane), "oc_lane out of range")
		}
		if addr.OC() >= conv.NumFilters {
			result.Fail("indexgen", i, "< num_filters", itoa(addr.OC()), "reconstructed output channel out of range")
		}
	}

	return result
}

// ConvConfig returns the configuration this generator was built from.
func (g *Generator) ConvConfig() types.ConvConfig {
	return g.conv
}

// TilesPerRow returns the number of 16-wide output tile columns. A
// consumer that needs to walk the same tile-major order GenerateAll/
// GenerateFirstN emit (rather than assume raster order) derives tileRow/
// tileCol from this the same way generate does.
func (g *Generator) TilesPerRow() int {
	return g.tilesPerRow
}

// TilesPerCol returns the number of 16-tall output tile rows.
func (g *Generator) TilesPerCol() int {
	return g.tilesPerCol
}

// TotalTiles returns TilesPerRow * TilesPerCol.
func (g *Generator) TotalTiles() int {
	return g.totalTiles
}
