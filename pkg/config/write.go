package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	configFileMode = 0o600
	configDirMode  = 0o700
)

// ErrConfigExists is returned by WriteDefault when the file exists and overwrite is false
var ErrConfigExists = errors.New("config file already exists")

// WriteDefault writes a config file holding every default value to path
func WriteDefault(path string, overwrite bool) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}

	baseDir, err := DefaultDir()
	if err != nil {
		return err
	}

	data, err := toml.Marshal(defaultDocument(baseDir))
	if err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), configDirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, configFileMode); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// defaultDocument nests the dotted default keys into TOML tables.
// Durations are written in their string form so the file stays readable.
func defaultDocument(baseDir string) map[string]map[string]any {
	doc := map[string]map[string]any{}
	for key, value := range defaults(baseDir) {
		section, name, _ := strings.Cut(key, ".")
		if doc[section] == nil {
			doc[section] = map[string]any{}
		}
		if d, ok := value.(time.Duration); ok {
			value = d.String()
		}
		doc[section][name] = value
	}
	return doc
}
