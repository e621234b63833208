package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/alpkeskin/gotoon"
)

// emit prints v as JSON or toon when requested and reports whether it did
func emit(v any, asJSON, asToon bool) (bool, error) {
	if asJSON {
		output, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return true, fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(output))
		return true, nil
	}

	if asToon {
		output, err := gotoon.Encode(v)
		if err != nil {
			return true, fmt.Errorf("failed to encode Toon: %w", err)
		}
		fmt.Println(output)
		return true, nil
	}

	return false, nil
}
