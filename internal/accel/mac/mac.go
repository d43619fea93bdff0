// Package mac models the four parallel 3-stage pipelined multiply-
// accumulate lanes of the accelerator's Staged MAC Cluster.
//
// Each lane keeps three pipeline stage registers (S0 multiply, S1
// accumulate, S2 result) plus a running accumulator — the same
// shift-registers-between-named-stages shape as a scalar CPU's
// IF/ID/EX/MEM/WB pipeline registers, here shrunk to a 3-stage MAC datapath
// replicated across four lanes.
package mac

import (
	"github.com/hwquant/cnnaccel/internal/accel/types"
)

// Lane is one staged multiply-accumulate unit.
type Lane struct {
	zeroPointIn     int64
	zeroPointWeight int64
	state           types.MacState
}

// NewLane creates a Lane with zero-initialized pipeline state.
func NewLane(cfg types.MacConfig) *Lane {
	return &Lane{
		zeroPointIn:     int64(cfg.ZeroPointIn),
		zeroPointWeight: int64(cfg.ZeroPointWeight),
	}
}

// State returns a snapshot of the lane's current runtime state.
func (l *Lane) State() types.MacState {
	return l.state
}

// step advances the lane by one cycle, consuming (input, weight). If reset
// is false it returns the product emitted from S2 this cycle (the value that
// was in-flight at S2 before the shift, or 0 while S2 is invalid). If reset
// is true it instead returns the running accumulator, including this
// cycle's product, and then clears the accumulator to zero.
//
// The accumulate step uses the product computed by S0 in this very cycle
// (multiply-then-accumulate, same cycle) rather than the product latched a
// cycle earlier: S1/S2 still shift forward every cycle to carry the valid
// bit and product for tracing, but they do not gate when a product joins
// the running sum. This is what makes the 5-cycle, 5-product accumulation
// in scenario S3 sum to the product total on the very cycle TLAST is
// asserted, instead of lagging one MAC behind.
func (l *Lane) step(input, weight int64, reset bool) int64 {
	emitted := l.state.Stages[2].Product
	if !l.state.Stages[2].Valid {
		emitted = 0
	}

	// S2 <- S1.
	l.state.Stages[2] = l.state.Stages[1]

	// Multiply at S0.
	product := (input - l.zeroPointIn) * (weight - l.zeroPointWeight)
	l.state.Stages[0] = types.PipelineReg{
		Valid:   true,
		Input:   input,
		Weight:  weight,
		Product: product,
	}

	// Accumulate this cycle's freshly computed product.
	if l.state.Stages[0].Valid {
		l.state.CurrentAccumulator += l.state.Stages[0].Product
		l.state.Stages[1] = types.PipelineReg{Valid: true, Product: l.state.Stages[0].Product}
	}

	l.state.CycleCount++

	if reset {
		captured := l.state.CurrentAccumulator
		l.state.CurrentAccumulator = 0
		return captured
	}

	return emitted
}

// Cluster models the four parallel Lane units that together produce one
// output pixel's four output channels per TLAST pulse.
type Cluster struct {
	lanes [types.LanesPerBatch]*Lane
}

// NewCluster creates a 4-lane cluster, all lanes sharing the same
// zero-point configuration.
func NewCluster(cfg types.MacConfig) *Cluster {
	c := &Cluster{}
	for i := range c.lanes {
		c.lanes[i] = NewLane(cfg)
	}
	return c
}

// StepResult is the per-cycle output of Cluster.Step.
type StepResult struct {
	// Accumulators holds, per lane, either the in-flight running sum
	// (informational only, when !Valid) or the just-completed pixel's
	// accumulator (when Valid, i.e. tlast was asserted this cycle).
	Accumulators [types.LanesPerBatch]int64
	Valid        bool
}

// Step executes one cycle across all four lanes: each lane consumes one
// (input, weight) pair; when tlast is asserted, every lane's running
// accumulator is captured into the result and then reset to zero.
func (c *Cluster) Step(inputs, weights [types.LanesPerBatch]int64, tlast bool) StepResult {
	result := StepResult{Valid: tlast}

	for i := 0; i < types.LanesPerBatch; i++ {
		emitted := c.lanes[i].step(inputs[i], weights[i], tlast)
		if tlast {
			result.Accumulators[i] = emitted
		} else {
			result.Accumulators[i] = c.lanes[i].state.CurrentAccumulator
		}
	}

	return result
}

// LaneState returns a snapshot of one lane's runtime state, for tracing.
func (c *Cluster) LaneState(lane int) types.MacState {
	return c.lanes[lane].State()
}
