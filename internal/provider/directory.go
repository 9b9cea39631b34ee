package provider

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Descriptor is one provider entry as reported by the directory.
type Descriptor struct {
	// Package is the provider identity.
	Package string `yaml:"package"`

	// Marker is the protection marker the provider declares on its
	// remote interface.
	Marker string `yaml:"permission_marker"`

	// Flavor selects the connection strategy (current, legacy, static).
	Flavor string `yaml:"flavor"`

	// DynamicQuery marks providers whose features must be queried at
	// runtime instead of read from the static declaration.
	DynamicQuery bool `yaml:"dynamic_query"`

	// Features lists the statically declared (slot, feature) pairs.
	// Ignored when DynamicQuery is set.
	Features []DescriptorFeature `yaml:"features"`
}

// DescriptorFeature is a single declared (slot, feature) pair.
type DescriptorFeature struct {
	Slot    int    `yaml:"slot"`
	Feature string `yaml:"feature"`
}

// Directory answers discovery queries about installed providers.
// Implementations must be safe for concurrent use.
type Directory interface {
	// Query returns descriptors for installed providers. A non-empty
	// packageFilter restricts the result to that package.
	Query(ctx context.Context, packageFilter string) ([]Descriptor, error)
}

// FileDirectory is a Directory backed by a YAML descriptor file.
//
// The file is re-read on every Query so that package installs and removals
// are picked up without restarting the service.
type FileDirectory struct {
	path string
}

// directoryFile is the on-disk layout of the descriptor file.
type directoryFile struct {
	Providers []Descriptor `yaml:"providers"`
}

// NewFileDirectory creates a directory reading descriptors from path.
func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{path: path}
}

// Query implements Directory.
func (d *FileDirectory) Query(_ context.Context, packageFilter string) ([]Descriptor, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrDirectoryUnavailable, d.path, err)
	}

	var file directoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrDirectoryUnavailable, d.path, err)
	}

	if packageFilter == "" {
		return file.Providers, nil
	}

	var out []Descriptor
	for _, desc := range file.Providers {
		if desc.Package == packageFilter {
			out = append(out, desc)
		}
	}
	return out, nil
}
