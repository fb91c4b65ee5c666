package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	logger "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} placeholders.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)}`)

// LoadFile reads a YAML configuration file on top of cfg. Keys absent from the
// file keep their current values. ${ENV_VAR} references are expanded before
// parsing; unset variables expand to the empty string.
func LoadFile(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(expandEnv(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty file: defaults stand.
			return nil
		}
		return fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return nil
}

func expandEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := string(envVarPattern.FindSubmatch(match)[1])
		if val, ok := os.LookupEnv(varName); ok {
			return []byte(val)
		}
		logger.Warnf("Environment variable %q is not set", varName)
		return nil
	})
}
