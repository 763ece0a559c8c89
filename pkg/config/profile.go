package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SourceProfile describes one government portal the pipeline ingests
// from: where to fetch, which files to take and how to process them.
type SourceProfile struct {
	Name          string           `yaml:"name" json:"name"`
	Source        string           `yaml:"source" json:"source"`
	PortalURL     string           `yaml:"portal_url" json:"portal_url"`
	FilePatterns  []string         `yaml:"file_patterns" json:"file_patterns"`
	SLAWindowDays int              `yaml:"sla_window_days" json:"sla_window_days"`
	Processing    ProcessingConfig `yaml:"processing" json:"processing"`
}

// LoadProfile loads a source profile YAML by portal code. It reads
// profile_<source>.yaml from the profiles directory. A profile without a
// processing block gets the default preset.
func LoadProfile(profilesDir, source string) (*SourceProfile, error) {
	source = strings.ToLower(source)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", source))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", source, err)
	}

	var profile SourceProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", source, err)
	}

	if profile.Source == "" {
		profile.Source = source
	}
	if profile.Processing == (ProcessingConfig{}) {
		profile.Processing = DefaultProcessingConfig()
	}

	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml from the profiles directory,
// keyed by portal code.
func LoadAllProfiles(profilesDir string) (map[string]*SourceProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*SourceProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile SourceProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Source == "" {
			// Extract code from filename: profile_sat.yaml -> sat
			base := filepath.Base(path)
			profile.Source = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		if profile.Processing == (ProcessingConfig{}) {
			profile.Processing = DefaultProcessingConfig()
		}

		profiles[profile.Source] = &profile
	}

	return profiles, nil
}
