package api

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects how CLI commands render responses.
type OutputFormat string

const (
	OutputFormatYAML OutputFormat = "yaml"
	OutputFormatJSON OutputFormat = "json"
)

// outputFormat is set once by the root command's --output flag.
var outputFormat = OutputFormatYAML

// SetOutputFormat parses the --output flag value. Unrecognized values
// fall back to YAML.
func SetOutputFormat(format string) {
	switch format {
	case "json":
		outputFormat = OutputFormatJSON
	default:
		outputFormat = OutputFormatYAML
	}
}

// Output renders data to stdout in the configured format.
func Output(data any) error {
	return outputTo(os.Stdout, outputFormat, data)
}

func outputTo(w io.Writer, format OutputFormat, data any) error {
	switch format {
	case OutputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
