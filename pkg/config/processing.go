package config

import (
	"fmt"
	"strings"
)

// ProcessingConfig controls extraction and OCR behavior. OEM and PSM are
// the Tesseract engine and page-segmentation modes.
//
//nolint:govet // fieldalignment: grouped by concern for readability
type ProcessingConfig struct {
	DefaultLanguage  string `yaml:"default_language" json:"default_language"`
	FallbackLanguage string `yaml:"fallback_language" json:"fallback_language"`

	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`

	EnableWatermarkRemoval bool `yaml:"enable_watermark_removal" json:"enable_watermark_removal"`
	EnableDeskewing        bool `yaml:"enable_deskewing" json:"enable_deskewing"`
	EnableBinarization     bool `yaml:"enable_binarization" json:"enable_binarization"`

	OEM                 int     `yaml:"oem" json:"oem"`
	PSM                 int     `yaml:"psm" json:"psm"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`

	MaxRetries        int    `yaml:"max_retries" json:"max_retries"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds" json:"retry_delay_seconds"`
	OutputFormat      string `yaml:"output_format" json:"output_format"`

	MaxFileSizeMB    int `yaml:"max_file_size_mb" json:"max_file_size_mb"`
	BatchSize        int `yaml:"batch_size" json:"batch_size"`
	MaxMemoryUsageMB int `yaml:"max_memory_usage_mb" json:"max_memory_usage_mb"`
}

// ValidationResult reports whether a ProcessingConfig is usable. Errors
// make the config unusable; warnings flag suspicious but legal values.
// ValidatedConfig carries the normalized config and is nil when invalid.
type ValidationResult struct {
	IsValid         bool              `json:"is_valid"`
	Errors          []string          `json:"errors,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
	ValidatedConfig *ProcessingConfig `json:"validated_config,omitempty"`
}

var outputFormats = map[string]bool{
	"json": true,
	"xml":  true,
	"csv":  true,
	"txt":  true,
	"pdf":  true,
}

// Validate range-checks every field and returns the normalized config on
// success. Language codes and the output format are lowercased.
func (c ProcessingConfig) Validate() ValidationResult {
	var result ValidationResult

	fail := func(format string, args ...any) {
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}
	warn := func(format string, args ...any) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(format, args...))
	}

	normalized := c
	normalized.DefaultLanguage = strings.ToLower(strings.TrimSpace(c.DefaultLanguage))
	normalized.FallbackLanguage = strings.ToLower(strings.TrimSpace(c.FallbackLanguage))
	normalized.OutputFormat = strings.ToLower(strings.TrimSpace(c.OutputFormat))

	if normalized.DefaultLanguage == "" {
		fail("default_language is required")
	}
	if normalized.OEM < 0 || normalized.OEM > 3 {
		fail("oem must be between 0 and 3, got %d", normalized.OEM)
	}
	if normalized.PSM < 0 || normalized.PSM > 13 {
		fail("psm must be between 0 and 13, got %d", normalized.PSM)
	}
	if normalized.ConfidenceThreshold < 0 || normalized.ConfidenceThreshold > 1 {
		fail("confidence_threshold must be between 0 and 1, got %g", normalized.ConfidenceThreshold)
	} else {
		if normalized.ConfidenceThreshold < 0.3 {
			warn("confidence_threshold %g accepts very low-quality extractions", normalized.ConfidenceThreshold)
		}
		if normalized.ConfidenceThreshold > 0.95 {
			warn("confidence_threshold %g will route most documents to manual review", normalized.ConfidenceThreshold)
		}
	}
	if normalized.TimeoutSeconds <= 0 || normalized.TimeoutSeconds > 3600 {
		fail("timeout_seconds must be in (0, 3600], got %d", normalized.TimeoutSeconds)
	} else if normalized.TimeoutSeconds < 5 {
		warn("timeout_seconds %d may abort OCR mid-page", normalized.TimeoutSeconds)
	}
	if normalized.MaxRetries < 0 || normalized.MaxRetries > 10 {
		fail("max_retries must be between 0 and 10, got %d", normalized.MaxRetries)
	}
	if normalized.RetryDelaySeconds < 0 {
		fail("retry_delay_seconds must not be negative, got %d", normalized.RetryDelaySeconds)
	}
	if !outputFormats[normalized.OutputFormat] {
		fail("output_format must be one of json, xml, csv, txt, pdf; got %q", normalized.OutputFormat)
	}
	if normalized.MaxFileSizeMB <= 0 {
		fail("max_file_size_mb must be positive, got %d", normalized.MaxFileSizeMB)
	} else if normalized.MaxFileSizeMB > 500 {
		warn("max_file_size_mb %d may exhaust memory during OCR", normalized.MaxFileSizeMB)
	}
	if normalized.MaxConcurrency <= 0 {
		fail("max_concurrency must be positive, got %d", normalized.MaxConcurrency)
	} else if normalized.MaxConcurrency > 32 {
		warn("max_concurrency %d may exhaust worker threads", normalized.MaxConcurrency)
	}
	if normalized.BatchSize <= 0 {
		fail("batch_size must be positive, got %d", normalized.BatchSize)
	} else if normalized.BatchSize > 1000 {
		warn("batch_size %d may exhaust memory", normalized.BatchSize)
	}
	if normalized.MaxMemoryUsageMB <= 0 {
		fail("max_memory_usage_mb must be positive, got %d", normalized.MaxMemoryUsageMB)
	} else if normalized.MaxMemoryUsageMB < 256 {
		warn("max_memory_usage_mb %d is likely too small for OCR", normalized.MaxMemoryUsageMB)
	}

	result.IsValid = len(result.Errors) == 0
	if result.IsValid {
		result.ValidatedConfig = &normalized
	}
	return result
}

// DefaultProcessingConfig is the balanced preset.
func DefaultProcessingConfig() ProcessingConfig {
	return ProcessingConfig{
		DefaultLanguage:        "spa",
		FallbackLanguage:       "eng",
		MaxConcurrency:         4,
		TimeoutSeconds:         300,
		EnableWatermarkRemoval: true,
		EnableDeskewing:        true,
		EnableBinarization:     true,
		OEM:                    3,
		PSM:                    3,
		ConfidenceThreshold:    0.7,
		MaxRetries:             3,
		RetryDelaySeconds:      5,
		OutputFormat:           "json",
		MaxFileSizeMB:          100,
		BatchSize:              10,
		MaxMemoryUsageMB:       2048,
	}
}

// HighPerformanceProcessingConfig trades extraction quality for
// throughput: more workers, shorter timeouts, lighter preprocessing and a
// lower acceptance threshold.
func HighPerformanceProcessingConfig() ProcessingConfig {
	cfg := DefaultProcessingConfig()
	cfg.MaxConcurrency = 16
	cfg.TimeoutSeconds = 120
	cfg.EnableWatermarkRemoval = false
	cfg.EnableDeskewing = false
	cfg.OEM = 1
	cfg.ConfidenceThreshold = 0.6
	cfg.MaxRetries = 1
	cfg.RetryDelaySeconds = 1
	cfg.BatchSize = 50
	cfg.MaxMemoryUsageMB = 8192
	return cfg
}

// ConservativeProcessingConfig trades throughput for quality: one document
// at a time, generous timeouts, full preprocessing and a high acceptance
// threshold.
func ConservativeProcessingConfig() ProcessingConfig {
	cfg := DefaultProcessingConfig()
	cfg.MaxConcurrency = 1
	cfg.TimeoutSeconds = 1800
	cfg.ConfidenceThreshold = 0.9
	cfg.MaxRetries = 5
	cfg.RetryDelaySeconds = 30
	cfg.MaxFileSizeMB = 50
	cfg.BatchSize = 1
	cfg.MaxMemoryUsageMB = 1024
	return cfg
}

// Preset resolves a preset name: default, high-performance or
// conservative.
func Preset(name string) (ProcessingConfig, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return DefaultProcessingConfig(), nil
	case "high-performance":
		return HighPerformanceProcessingConfig(), nil
	case "conservative":
		return ConservativeProcessingConfig(), nil
	default:
		return ProcessingConfig{}, fmt.Errorf("unknown preset %q", name)
	}
}
