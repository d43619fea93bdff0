// Package pipeline wires the Index Generator, Staged MAC Cluster,
// Dequantizer and Output Storage into one layer-at-a-time coordinator.
//
// RunLayer is the single entry point: given a configured layer and its
// input/weight/output banks, it drives the full address stream through the
// MAC cluster, dequantizes every completed pixel's accumulators, and packs
// the result into the output bank, returning a summary Trace for
// regression comparison.
package pipeline

import (
	"github.com/sirupsen/logrus"

	"github.com/hwquant/cnnaccel/internal/accel/dequant"
	"github.com/hwquant/cnnaccel/internal/accel/indexgen"
	"github.com/hwquant/cnnaccel/internal/accel/mac"
	"github.com/hwquant/cnnaccel/internal/accel/outstore"
	"github.com/hwquant/cnnaccel/internal/accel/ram"
	"github.com/hwquant/cnnaccel/internal/accel/types"
)

// Banks groups the three byte-addressable memories a layer invocation
// reads from and writes to.
type Banks struct {
	Input  *ram.Bank
	Weight *ram.Bank
	Output *ram.Bank
}

// Coordinator runs one convolution layer end to end.
type Coordinator struct {
	name   string
	conv   types.ConvConfig
	quant  types.QuantConfig
	output types.OutputConfig
	banks  Banks

	inputBaseAddr  int
	weightBaseAddr int

	log *logrus.Entry
}

// New creates a Coordinator for one layer invocation. conv and quant must
// already be validated. name is carried through to the returned Trace for
// reporting; it may be empty.
func New(name string, conv types.ConvConfig, quant types.QuantConfig, output types.OutputConfig,
	inputBaseAddr, weightBaseAddr int, banks Banks, log *logrus.Entry) *Coordinator {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Coordinator{
		name:           name,
		conv:           conv,
		quant:          quant,
		output:         output,
		banks:          banks,
		inputBaseAddr:  inputBaseAddr,
		weightBaseAddr: weightBaseAddr,
		log:            log,
	}
}

// RunLayer drives the complete address stream for this layer through the
// MAC cluster and dequantization pipeline, committing the result into the
// output bank, and optionally through a 2x2 max-pooling fusion stage into
// pooledBank.
func (c *Coordinator) RunLayer(pooledBank *ram.Bank) (types.Trace, error) {
	gen := indexgen.New(c.conv, c.inputBaseAddr, c.weightBaseAddr)
	addresses := gen.GenerateAll()

	c.log.WithFields(logrus.Fields{
		"layer_macs":    len(addresses),
		"output_height": c.conv.OutputHeight,
		"output_width":  c.conv.OutputWidth,
		"num_filters":   c.conv.NumFilters,
	}).Debug("generated address stream")

	macConfig := types.MacConfigFromQuant(c.quant)
	dq := dequant.New(c.quant)

	numPixels := c.conv.OutputHeight * c.conv.OutputWidth
	results := make([]int8, numPixels*c.conv.NumFilters)

	// The address stream is tile-major (outer tile loop, row-major only
	// within each 16x16 tile — see indexgen.Generator.generate), not
	// raster order. A flat pixel counter divided by OutputWidth only
	// recovers the true (outY, outX) when the whole output fits in one
	// tile column; walk the identical tile/row/col nesting here so the
	// group at any position in the stream lands on the raster coordinate
	// it was actually generated for.
	tilesPerRow := gen.TilesPerRow()
	totalTiles := gen.TotalTiles()

	pos := 0
	batches := c.conv.OutputChannelBatches()

	for ocBatch := 0; ocBatch < batches; ocBatch++ {
		activeLanes := c.conv.NumFilters - ocBatch*types.LanesPerBatch
		if activeLanes > types.LanesPerBatch {
			activeLanes = types.LanesPerBatch
		}

		cluster := mac.NewCluster(macConfig)

		for tileID := 0; tileID < totalTiles; tileID++ {
			tileRow := tileID / tilesPerRow
			tileCol := tileID % tilesPerRow

			for outYInTile := 0; outYInTile < types.TileSize; outYInTile++ {
				outY := tileRow*types.TileSize + outYInTile
				if outY >= c.conv.OutputHeight {
					continue
				}

				for outXInTile := 0; outXInTile < types.TileSize; outXInTile++ {
					outX := tileCol*types.TileSize + outXInTile
					if outX >= c.conv.OutputWidth {
						continue
					}

					groupStart := pos
					var accum [types.LanesPerBatch]int64

					for s := 0; s < c.conv.MacsPerPixel; s++ {
						var inputs, weights [types.LanesPerBatch]int64

						for lane := 0; lane < activeLanes; lane++ {
							rec := addresses[groupStart+lane*c.conv.MacsPerPixel+s]
							inputs[lane] = int64(int8(c.banks.Input.ReadByte(rec.InputAddr)))
							weights[lane] = int64(int8(c.banks.Weight.ReadByte(rec.WeightAddr)))
						}

						tlast := s == c.conv.MacsPerPixel-1
						result := cluster.Step(inputs, weights, tlast)
						if tlast {
							accum = result.Accumulators
						}
					}

					pos += activeLanes * c.conv.MacsPerPixel

					linear := (outY*c.conv.OutputWidth + outX) * c.conv.NumFilters
					for lane := 0; lane < activeLanes; lane++ {
						oc := ocBatch*types.LanesPerBatch + lane
						value, _ := dq.DequantizeScalar(accum[lane])
						results[linear+oc] = value
					}
				}
			}
		}
	}

	store := outstore.New(c.output, c.banks.Output)
	for pixel := 0; pixel < numPixels; pixel++ {
		for oc := 0; oc < c.conv.NumFilters; oc++ {
			tlast := oc == c.conv.NumFilters-1
			store.ProcessStream(results[pixel*c.conv.NumFilters+oc], oc, tlast)
		}
	}
	c.banks.Output.Flush()

	if c.output.EnablePooling && pooledBank != nil {
		c.runPooling(results, pooledBank)
	}

	trace := types.Trace{
		LayerName:    c.name,
		TotalMacs:    len(addresses),
		TotalPixels:  numPixels,
		TotalOutputs: numPixels * c.conv.NumFilters,
	}

	c.log.WithFields(logrus.Fields{
		"total_macs":    trace.TotalMacs,
		"total_pixels":  trace.TotalPixels,
		"total_outputs": trace.TotalOutputs,
	}).Info("layer complete")

	return trace, nil
}

// runPooling applies non-overlapping 2x2 max pooling over the raw output
// tensor, row-major with channels innermost, and streams the pooled result
// into pooledBank through its own Storage/ProcessStream path.
func (c *Coordinator) runPooling(results []int8, pooledBank *ram.Bank) {
	pooledHeight := c.conv.OutputHeight / 2
	pooledWidth := c.conv.OutputWidth / 2

	pooledCfg := types.OutputConfig{
		OutputHeight:   pooledHeight,
		OutputWidth:    pooledWidth,
		OutputChannels: c.conv.NumFilters,
		OutputBaseAddr: c.output.OutputBaseAddr,
	}
	pooledStore := outstore.New(pooledCfg, pooledBank)

	for py := 0; py < pooledHeight; py++ {
		for px := 0; px < pooledWidth; px++ {
			for oc := 0; oc < c.conv.NumFilters; oc++ {
				var buf outstore.PoolBuffer
				var pooled int8
				for _, v := range [4]int8{
					results[((py*2)*c.conv.OutputWidth+px*2)*c.conv.NumFilters+oc],
					results[((py*2)*c.conv.OutputWidth+px*2+1)*c.conv.NumFilters+oc],
					results[((py*2+1)*c.conv.OutputWidth+px*2)*c.conv.NumFilters+oc],
					results[((py*2+1)*c.conv.OutputWidth+px*2+1)*c.conv.NumFilters+oc],
				} {
					if windowMax, done := buf.Push(v); done {
						pooled = windowMax
					}
				}

				tlast := oc == c.conv.NumFilters-1
				pooledStore.ProcessStream(pooled, oc, tlast)
			}
		}
	}

	pooledBank.Flush()
}

// Verify checks addresses against the Index Generator's own invariants, and
// checks every output-bank word address written during RunLayer against the
// Output Storage bounds check.
func (c *Coordinator) Verify(addresses []types.AddressRecord, outputWordAddrs []int) types.VerifyResult {
	gen := indexgen.New(c.conv, c.inputBaseAddr, c.weightBaseAddr)
	result := gen.Verify(addresses)

	store := outstore.New(c.output, c.banks.Output)
	storeResult := store.Verify(outputWordAddrs)
	result.Failures = append(result.Failures, storeResult.Failures...)
	result.OK = result.OK && storeResult.OK

	return result
}
