package region

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type file struct {
	Regions []Region `yaml:"regions"`
}

// Parse decodes a YAML regions document.
//
//	regions:
//	  - id: eu
//	    channel_id: "1705754"
//	    label: European Union
//	  - id: row
//	    channel_id: "1705753"
//	    label: Rest of World
//	    default: true
func Parse(data []byte) ([]Region, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode regions: %w", err)
	}
	if len(f.Regions) == 0 {
		return nil, ErrNoRegions
	}
	return f.Regions, nil
}

// LoadFile reads a regions file and builds a registry from it.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read regions file: %w", err)
	}
	regions, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NewRegistry(regions)
}
