package publishers

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported sink types.
const (
	TypeHTTP   = "http"
	TypeSQS    = "sqs"
	TypeSNS    = "sns"
	TypePubSub = "pubsub"
)

// sinksFile is the layout of the publishers file. JSON is accepted as well,
// since it is valid YAML.
type sinksFile struct {
	Publishers []SinkConfig `yaml:"publishers"`
}

// SinkConfig declares one notification sink. Exactly the block matching Type is read.
type SinkConfig struct {
	ID      string      `yaml:"id"`
	Type    string      `yaml:"type"`
	Enabled *bool       `yaml:"enabled"`
	HTTP    *HTTPSink   `yaml:"http"`
	SQS     *SQSSink    `yaml:"sqs"`
	SNS     *SNSSink    `yaml:"sns"`
	PubSub  *PubSubSink `yaml:"pubsub"`
}

// IsEnabled reports the enabled flag, which defaults to true.
func (c SinkConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Settings is the type-specific block of a SinkConfig.
type Settings interface {
	normalize()
	validate() error
}

// LoadSinks reads the publishers file, expands ${VAR} references from the
// environment, validates every entry against reg and returns the enabled ones.
// Unknown keys are rejected so a misspelt option does not silently fall back
// to a default.
func LoadSinks(path string, reg *Registry) ([]SinkConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}
	if reg == nil {
		reg = DefaultRegistry()
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}

	var file sinksFile
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode publishers file: %w", err)
	}
	if len(file.Publishers) == 0 {
		return nil, errors.New("publishers file contains no publishers entries")
	}

	seen := make(map[string]struct{}, len(file.Publishers))
	enabled := make([]SinkConfig, 0, len(file.Publishers))
	for i := range file.Publishers {
		cfg := file.Publishers[i]
		if err := reg.Validate(&cfg); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate publisher id %q", cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
		if cfg.IsEnabled() {
			enabled = append(enabled, cfg)
		}
	}
	return enabled, nil
}
