package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "accelsim",
	Short: "Bit-accurate reference simulator for the CNN convolution accelerator",
}

// Execute runs the CLI, exiting non-zero on command failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")
	cobra.OnInitialize(func() {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
	})

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(verifyCmd)
}
