// Package main is the accelsim CLI: it loads a layer spec, runs it through
// the accelerator pipeline, and reports or verifies the result.
package main

func main() {
	Execute()
}
