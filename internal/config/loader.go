package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

var configSchema = jsonschema.MustCompileString("sheetload.schema.json", schemaJSON)

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// The result is Default overlaid with the file. It is checked against the
// configuration schema but not validated semantically; call Validate after
// applying any overrides.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data. The format is taken from the
// extension of path and defaults to YAML.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	isJSON := strings.EqualFold(filepath.Ext(path), ".json")

	doc, err := decodeDocument(data, isJSON)
	if err != nil {
		return nil, err
	}
	if err := checkSchema(doc); err != nil {
		return nil, err
	}

	config := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return config, nil
	}

	if isJSON {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	return config, nil
}

// decodeDocument turns the file into generic JSON values for the schema
// check. YAML is round-tripped through JSON so both formats validate alike.
func decodeDocument(data []byte, isJSON bool) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	raw := data
	if !isJSON {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		if doc == nil {
			return map[string]any{}, nil
		}
		var err error
		raw, err = json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert YAML config: %w", err)
		}
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON config: %w", err)
	}
	return doc, nil
}

// checkSchema reports every schema violation of doc as ValidationErrors.
func checkSchema(doc any) error {
	err := configSchema.Validate(doc)
	if err == nil {
		return nil
	}

	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	errs := &ValidationErrors{}
	collectSchemaErrors(validationErr, errs)
	if !errs.HasErrors() {
		errs.Add("", validationErr.Message)
	}
	return errs
}

func collectSchemaErrors(e *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(e.Causes) == 0 {
		errs.Add(fieldPath(e.InstanceLocation), e.Message)
		return
	}
	for _, cause := range e.Causes {
		collectSchemaErrors(cause, errs)
	}
}

// fieldPath turns a JSON pointer like /waitTime/min into waitTime.min.
func fieldPath(pointer string) string {
	return strings.ReplaceAll(strings.TrimPrefix(pointer, "/"), "/", ".")
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var seconds int
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil && fmt.Sprint(seconds) == s {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}
