package config

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// ServiceOverride adjusts one declared service's descriptor before
// registration, or disables it entirely.
type ServiceOverride struct {
	Name        string   `yaml:"name"`
	Criticality string   `yaml:"criticality,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty"`
	Disabled    bool     `yaml:"disabled,omitempty"`
}

// ProbeDefinition declares an HTTP endpoint to supervise as a managed service.
type ProbeDefinition struct {
	Name        string   `yaml:"name"`
	URL         string   `yaml:"url"`
	Criticality string   `yaml:"criticality,omitempty"`
	DependsOn   []string `yaml:"depends_on,omitempty"`
}

// Manifest is the parsed YAML structure declaring service overrides and
// HTTP probes:
//
//	services: [{name, criticality, depends_on, disabled}]
//	probes:   [{name, url, criticality, depends_on}]
type Manifest struct {
	Services []ServiceOverride `yaml:"services"`
	Probes   []ProbeDefinition `yaml:"probes"`
}

// LoadManifest parses a YAML manifest from the given path.
// Returns an empty manifest if path is empty (no manifest file).
func LoadManifest(path string) (Manifest, error) {
	if path == "" {
		return Manifest{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}

	if err := validateManifest(manifest); err != nil {
		return Manifest{}, err
	}

	return manifest, nil
}

// validateManifest ensures all entries are usable. Overrides target probes
// by name, so names are unique within each list but may repeat across them.
func validateManifest(manifest Manifest) error {
	seenOverrides := make(map[string]bool)
	for i, override := range manifest.Services {
		if override.Name == "" {
			return fmt.Errorf("service override %d: name is required", i)
		}
		if seenOverrides[override.Name] {
			return fmt.Errorf("service override %d: duplicate name %q", i, override.Name)
		}
		seenOverrides[override.Name] = true
		if err := validateCriticality(override.Criticality); err != nil {
			return fmt.Errorf("service override %q: %w", override.Name, err)
		}
	}

	seenProbes := make(map[string]bool)
	for i, probe := range manifest.Probes {
		if probe.Name == "" {
			return fmt.Errorf("probe %d: name is required", i)
		}
		if seenProbes[probe.Name] {
			return fmt.Errorf("probe %d: duplicate name %q", i, probe.Name)
		}
		seenProbes[probe.Name] = true
		if probe.URL == "" {
			return fmt.Errorf("probe %q: url is required", probe.Name)
		}
		parsed, err := url.Parse(probe.URL)
		if err != nil {
			return fmt.Errorf("probe %q: invalid url: %w", probe.Name, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("probe %q: url must include scheme and host", probe.Name)
		}
		if err := validateCriticality(probe.Criticality); err != nil {
			return fmt.Errorf("probe %q: %w", probe.Name, err)
		}
	}

	return nil
}

func validateCriticality(value string) error {
	switch value {
	case "", "required", "optional":
		return nil
	}
	return fmt.Errorf("criticality must be required or optional, got %q", value)
}
