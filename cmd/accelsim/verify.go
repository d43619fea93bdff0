package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hwquant/cnnaccel/internal/accel/indexgen"
	"github.com/hwquant/cnnaccel/internal/accel/types"
)

var verifyConfigPath string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that a layer spec's generated address stream is internally consistent",
	Run: func(cmd *cobra.Command, args []string) {
		if verifyConfigPath == "" {
			logrus.Fatal("--config is required")
		}

		spec, err := types.LoadLayerSpec(verifyConfigPath)
		if err != nil {
			logrus.Fatalf("failed to load layer spec: %v", err)
		}

		conv, err := spec.ToConvConfig()
		if err != nil {
			logrus.Fatalf("invalid conv config: %v", err)
		}

		gen := indexgen.New(conv, spec.InputBaseAddr, spec.WeightBaseAddr)
		addresses := gen.GenerateAll()
		result := gen.Verify(addresses)

		if result.OK {
			fmt.Printf("layer %q: %d addresses, all invariants hold\n", spec.Name, len(addresses))
			return
		}

		fmt.Printf("layer %q: %d failures across %d addresses\n", spec.Name, len(result.Failures), len(addresses))
		for _, failure := range result.Failures {
			fmt.Println(failure.String())
		}
		os.Exit(1)
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyConfigPath, "config", "", "Path to layer spec YAML file")
}
