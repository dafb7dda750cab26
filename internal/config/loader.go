package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"go2tv.app/screenrec/internal/atomicfile"
)

// DefaultPath is where the settings file lives unless overridden.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "screenrec.yaml"
	}
	return filepath.Join(dir, "screenrec", "config.yaml")
}

// Load builds settings from defaults, the YAML file at path (when it
// exists) and the environment, then validates the result. Unknown keys in
// the file are an error.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Settings{}, fmt.Errorf("read config: %w", err)
		default:
			if err := decodeStrict(data, &s); err != nil {
				return Settings{}, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	s = applyEnv(s)
	if err := Validate(s); err != nil {
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
}

func decodeStrict(data []byte, s *Settings) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

// Save writes s to path atomically.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return atomicfile.Write(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
