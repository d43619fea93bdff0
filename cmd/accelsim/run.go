package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hwquant/cnnaccel/internal/accel/outstore"
	"github.com/hwquant/cnnaccel/internal/accel/pipeline"
	"github.com/hwquant/cnnaccel/internal/accel/ram"
	"github.com/hwquant/cnnaccel/internal/accel/types"
)

var (
	runConfigPath string
	runPoolOut    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one convolution layer through the accelerator pipeline",
	Run: func(cmd *cobra.Command, args []string) {
		if runConfigPath == "" {
			logrus.Fatal("--config is required")
		}

		spec, err := types.LoadLayerSpec(runConfigPath)
		if err != nil {
			logrus.Fatalf("failed to load layer spec: %v", err)
		}
		if runPoolOut {
			spec.EnablePooling = true
		}

		trace, err := runLayer(spec)
		if err != nil {
			logrus.Fatalf("layer run failed: %v", err)
		}

		fmt.Printf("layer %q: %d macs, %d pixels, %d outputs\n",
			trace.LayerName, trace.TotalMacs, trace.TotalPixels, trace.TotalOutputs)
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to layer spec YAML file")
	runCmd.Flags().BoolVar(&runPoolOut, "pool", false, "Also run the 2x2 max-pooling fusion stage")
}

// loadLayerBanks builds the conv/quant/output configs named by spec, and
// populates the input/weight banks by quantizing the float32 tensors spec
// points at. It returns the configs and banks for runLayer.
func loadLayerBanks(spec *types.LayerSpec) (types.ConvConfig, types.QuantConfig, types.OutputConfig, pipeline.Banks, error) {
	conv, err := spec.ToConvConfig()
	if err != nil {
		return types.ConvConfig{}, types.QuantConfig{}, types.OutputConfig{}, pipeline.Banks{}, fmt.Errorf("invalid conv config: %w", err)
	}
	quant := spec.ToQuantConfig()
	output := types.OutputConfigFromConv(conv, spec.OutputBaseAddr, spec.EnablePooling)

	inputFloats, err := ram.LoadFloat32Blob(spec.InputFile)
	if err != nil {
		return types.ConvConfig{}, types.QuantConfig{}, types.OutputConfig{}, pipeline.Banks{}, fmt.Errorf("loading input tensor: %w", err)
	}
	weightFloats, err := ram.LoadKernelBlob(spec.WeightFile)
	if err != nil {
		return types.ConvConfig{}, types.QuantConfig{}, types.OutputConfig{}, pipeline.Banks{}, fmt.Errorf("loading weight tensor: %w", err)
	}

	inputQuant := ram.QuantizeActivations(inputFloats, 1.0, int(quant.ZeroPointIn))
	weightQuant := ram.QuantizeWeights(weightFloats, 1.0, int(quant.ZeroPointWeight))

	inputBacking := ram.NewByteSliceBacking(spec.InputBaseAddr + conv.InputSize())
	weightBacking := ram.NewByteSliceBacking(spec.WeightBaseAddr + conv.WeightSize())
	outputBacking := ram.NewByteSliceBacking((spec.OutputBaseAddr + output.NumWords()) * 4)

	inputBank := ram.NewBank(ram.DefaultBankConfig(), inputBacking)
	weightBank := ram.NewBank(ram.DefaultBankConfig(), weightBacking)
	outputBank := ram.NewBank(ram.DefaultBankConfig(), outputBacking)

	for i, v := range inputQuant {
		inputBank.WriteByte(spec.InputBaseAddr+i, byte(v))
	}
	for i, v := range weightQuant {
		weightBank.WriteByte(spec.WeightBaseAddr+i, byte(v))
	}

	banks := pipeline.Banks{Input: inputBank, Weight: weightBank, Output: outputBank}
	return conv, quant, output, banks, nil
}

func runLayer(spec *types.LayerSpec) (types.Trace, error) {
	conv, quant, output, banks, err := loadLayerBanks(spec)
	if err != nil {
		return types.Trace{}, err
	}

	coord := pipeline.New(spec.Name, conv, quant, output, spec.InputBaseAddr, spec.WeightBaseAddr, banks, logrus.NewEntry(logrus.StandardLogger()))

	var pooledBank *ram.Bank
	if output.EnablePooling {
		pooledHeight := conv.OutputHeight / 2
		pooledWidth := conv.OutputWidth / 2
		pooledBacking := ram.NewByteSliceBacking((spec.OutputBaseAddr + (pooledHeight*pooledWidth*conv.NumFilters+3)/4) * 4)
		pooledBank = ram.NewBank(ram.DefaultBankConfig(), pooledBacking)
	}

	trace, err := coord.RunLayer(pooledBank)
	if err != nil {
		return types.Trace{}, err
	}

	if spec.OutputFile != "" {
		if err := writeOutputTensor(spec, conv, output, banks.Output); err != nil {
			return trace, fmt.Errorf("writing output tensor: %w", err)
		}
	}

	return trace, nil
}

func writeOutputTensor(spec *types.LayerSpec, conv types.ConvConfig, output types.OutputConfig, bank *ram.Bank) error {
	values := make([]int8, output.NumOutputs())
	for linear := range values {
		wordAddr := spec.OutputBaseAddr + linear/4
		byteSel := linear % 4
		word := bank.ReadWord(wordAddr)
		values[linear] = outstore.ExtractByte(word, byteSel)
	}
	return ram.WriteTensorBlob(spec.OutputFile, values)
}
