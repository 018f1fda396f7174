// Package format shapes CLI output for scripting or human reading.
package format

import (
	"encoding/json"
	"fmt"
)

// OutputFormat selects how a finished report is printed to stdout.
type OutputFormat string

const (
	// TextFormat prints the report as-is (default).
	TextFormat OutputFormat = "text"

	// JSONFormat wraps the report in a JSON object for scripting.
	JSONFormat OutputFormat = "json"
)

func (f OutputFormat) IsValid() bool {
	return f == TextFormat || f == JSONFormat
}

func (f OutputFormat) String() string {
	return string(f)
}

// FormatOutput renders the report content in the requested format.
func FormatOutput(content string, format OutputFormat) (string, error) {
	switch format {
	case TextFormat:
		return content, nil
	case JSONFormat:
		jsonBytes, err := json.MarshalIndent(map[string]string{"report": content}, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return string(jsonBytes), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}
