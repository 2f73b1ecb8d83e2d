// Package manifest loads the optional tap.yaml file that records default
// run settings for a service, so a bare `tap run <name>` can work without
// repeating flags every time. Flags passed on the command line always win
// over manifest values.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const FileName = "tap.yaml"

// Service is one entry under the top-level "services" map.
type Service struct {
	Command  []string `yaml:"command"`
	Cwd      string   `yaml:"cwd"`
	PTY      *bool    `yaml:"pty"`
	Forward  *bool    `yaml:"forward"`
	MaxLines int      `yaml:"max_lines"`
	MaxBytes int      `yaml:"max_bytes"`
}

// Manifest is the parsed contents of a tap.yaml file.
type Manifest struct {
	Services map[string]Service `yaml:"services"`
}

// Load reads and parses the manifest at path. A missing file returns an
// empty Manifest, not an error, since manifests are optional.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{Services: map[string]Service{}}, nil
		}
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if m.Services == nil {
		m.Services = map[string]Service{}
	}
	return &m, nil
}

// FindNear walks up from dir looking for a tap.yaml, stopping at the
// filesystem root. It returns nil, nil if none is found.
func FindNear(dir string) (*Manifest, string, error) {
	cur := dir
	for {
		candidate := filepath.Join(cur, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			m, err := Load(candidate)
			if err != nil {
				return nil, "", err
			}
			return m, candidate, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return nil, "", nil
		}
		cur = parent
	}
}

// Lookup returns the entry for name, if present.
func (m *Manifest) Lookup(name string) (Service, bool) {
	if m == nil {
		return Service{}, false
	}
	svc, ok := m.Services[name]
	return svc, ok
}
