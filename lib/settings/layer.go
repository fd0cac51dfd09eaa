// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package settings

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// ParseLayer strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Settings mapping. Layer files are flat
// string-to-string JSON objects extended with // line comments,
// /* block comments */, and trailing commas, so operators can annotate
// why a value is what it is.
func ParseLayer(data []byte) (Settings, error) {
	stripped := jsonc.ToJSON(data)

	var layer Settings
	if err := json.Unmarshal(stripped, &layer); err != nil {
		return nil, fmt.Errorf("parsing layer: %w", err)
	}
	return layer, nil
}

// ReadLayerFile reads a JSONC layer file from disk and parses it into
// a Settings mapping. Returns a descriptive error if the file cannot
// be read or the JSON is malformed.
func ReadLayerFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	layer, err := ParseLayer(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return layer, nil
}

// ReadLayerFiles reads multiple layer files in order. The returned
// slice preserves argument order so it can be passed directly to
// Merge (most-generic file first).
func ReadLayerFiles(paths ...string) ([]Settings, error) {
	layers := make([]Settings, 0, len(paths))
	for _, path := range paths {
		layer, err := ReadLayerFile(path)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	return layers, nil
}
