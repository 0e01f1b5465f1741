package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"github.com/kortschak/qr"
	"gopkg.in/yaml.v3"
)

// Config represents a urtool.yaml configuration file. All values
// are optional and act as defaults for flags. Flags always override
// config values.
type Config struct {
	Type              string       `yaml:"type"`
	MaxFragmentLength int          `yaml:"max_fragment_length"`
	MinFragmentLength int          `yaml:"min_fragment_length"`
	FirstSeqNum       uint32       `yaml:"first_seq_num"`
	Ratio             float64      `yaml:"ratio"`
	Uppercase         bool         `yaml:"uppercase"`
	QR                QRConfig     `yaml:"qr"`
	Log               LogConfig    `yaml:"log"`
	Decode            DecodeConfig `yaml:"decode"`
}

type QRConfig struct {
	// Level is the error correction level: L, M, Q or H.
	Level string `yaml:"level"`
	// Scale is the number of pixels per module.
	Scale int `yaml:"scale"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type DecodeConfig struct {
	// State is the file that persists received parts between runs.
	State string `yaml:"state"`
}

func defaultConfig() Config {
	return Config{
		Type:              "bytes",
		MaxFragmentLength: 200,
		MinFragmentLength: 10,
		QR: QRConfig{
			Level: "M",
			Scale: 4,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// loadConfig reads a YAML config file, expands environment variables, and
// unmarshals it over the defaults. An empty path results in the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config file not found: %s", path)
		}
		return Config{}, fmt.Errorf("cannot read config file %q: %w", path, err)
	}
	expanded := expandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.MinFragmentLength < 1 || c.MaxFragmentLength < c.MinFragmentLength:
		return fmt.Errorf("invalid fragment lengths %d-%d", c.MinFragmentLength, c.MaxFragmentLength)
	case c.Ratio < 0:
		return fmt.Errorf("negative ratio %v", c.Ratio)
	case c.QR.Scale < 1:
		return fmt.Errorf("invalid qr scale %d", c.QR.Scale)
	}
	if _, err := c.QR.level(); err != nil {
		return err
	}
	return nil
}

func (q QRConfig) level() (qr.Level, error) {
	switch q.Level {
	case "L", "l":
		return qr.L, nil
	case "M", "m":
		return qr.M, nil
	case "Q", "q":
		return qr.Q, nil
	case "H", "h":
		return qr.H, nil
	}
	return 0, fmt.Errorf("unknown qr level %q", q.Level)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandEnv replaces ${VAR} and ${VAR:-default} patterns with their
// environment variable values. Unset variables without defaults expand
// to the empty string.
func expandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if value, ok := os.LookupEnv(groups[1]); ok && value != "" {
			return value
		}
		return groups[2]
	})
}
