package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// File is the optional on-disk configuration. Flags override its values.
type File struct {
	Source        string `json:"source,omitempty"`
	Input         string `json:"input,omitempty"`
	SysExCapacity *int   `json:"sysexCapacity,omitempty"`
	Listen        string `json:"listen,omitempty"`
	IdleTimeout   string `json:"idleTimeout,omitempty"`
}

// Dir returns the config directory path
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midistream"), nil
}

// DefaultFile returns the full path to config.json
func DefaultFile() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config file at path, or returns an empty File if not found
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, err
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	return &f, nil
}

// Save writes the config file to path
func (f *File) Save(path string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
