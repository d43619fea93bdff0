package types

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadLayerSpec reads and strictly parses a YAML layer specification file.
// Strict parsing rejects unrecognized keys, catching typos in hand-written
// layer configs early.
func LoadLayerSpec(path string) (*LayerSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layer spec: %w", err)
	}

	var spec LayerSpec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing layer spec: %w", err)
	}
	return &spec, nil
}
