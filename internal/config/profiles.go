package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SessionProfile declares a named session to pre-create during warmup.
type SessionProfile struct {
	Name string `yaml:"name"`
	Dir  string `yaml:"dir"`
}

type profilesFile struct {
	Sessions []SessionProfile `yaml:"sessions"`
}

// LoadProfiles reads the optional session-profiles YAML file. A missing or
// unconfigured file is not an error; the server just starts with the default
// session only.
func LoadProfiles(path string) ([]SessionProfile, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session profiles: %w", err)
	}

	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse session profiles: %w", err)
	}

	var out []SessionProfile
	for _, p := range f.Sessions {
		if p.Name == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
