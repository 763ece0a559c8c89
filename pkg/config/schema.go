package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// processingSchema is the published contract for processing config
// documents. Validate() rechecks the same ranges after binding; this
// schema rejects malformed documents before they bind at all, including
// unknown keys.
const processingSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "default_language": {"type": "string", "minLength": 2},
    "fallback_language": {"type": "string"},
    "max_concurrency": {"type": "integer", "minimum": 1},
    "timeout_seconds": {"type": "integer", "exclusiveMinimum": 0, "maximum": 3600},
    "enable_watermark_removal": {"type": "boolean"},
    "enable_deskewing": {"type": "boolean"},
    "enable_binarization": {"type": "boolean"},
    "oem": {"type": "integer", "minimum": 0, "maximum": 3},
    "psm": {"type": "integer", "minimum": 0, "maximum": 13},
    "confidence_threshold": {"type": "number", "minimum": 0, "maximum": 1},
    "max_retries": {"type": "integer", "minimum": 0, "maximum": 10},
    "retry_delay_seconds": {"type": "integer", "minimum": 0},
    "output_format": {"enum": ["json", "xml", "csv", "txt", "pdf"]},
    "max_file_size_mb": {"type": "integer", "minimum": 1},
    "batch_size": {"type": "integer", "minimum": 1},
    "max_memory_usage_mb": {"type": "integer", "minimum": 1}
  },
  "additionalProperties": false
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const schemaURL = "https://oficios.schemas.local/processing.schema.json"
		if err := c.AddResource(schemaURL, strings.NewReader(processingSchema)); err != nil {
			schemaErr = fmt.Errorf("processing schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// ValidateDocument checks a raw YAML or JSON processing config document
// against the published schema. Unknown keys are rejected.
func ValidateDocument(data []byte) error {
	schema, err := compiled()
	if err != nil {
		return err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config document is not valid YAML or JSON: %w", err)
	}
	v, err := toJSONValue(raw)
	if err != nil {
		return err
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("config document rejected: %w", err)
	}
	return nil
}

// toJSONValue converts a yaml-decoded value into json-decoded shape, which
// is what the schema validator expects.
func toJSONValue(raw any) (any, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config document has non-JSON structure: %w", err)
	}
	var v any
	if err := json.Unmarshal(buf, &v); err != nil {
		return nil, err
	}
	return v, nil
}
