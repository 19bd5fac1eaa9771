package features

import (
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Schema is the feature contract exported alongside the tabular model at
// training time. UsableFeatures is the selected feature list and
// ExpectedOrder the exact column order the model was fitted on.
type Schema struct {
	Version        string   `yaml:"version"`
	Model          string   `yaml:"model"`
	UsableFeatures []string `yaml:"usable_features"`
	ExpectedOrder  []string `yaml:"expected_order"`
}

func LoadSchema(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read feature schema %s", path)
	}
	return ParseSchema(raw)
}

func ParseSchema(raw []byte) (*Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return nil, errors.Wrap(err, "failed to parse feature schema")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	for _, name := range schema.ExpectedOrder {
		if _, ok := Lookup(name); !ok {
			log.Warn().Str("column", name).Str("schema", schema.Version).
				Msg("expected column is never produced and will be zero-filled")
		}
	}
	return &schema, nil
}

func (s *Schema) Validate() error {
	if len(s.ExpectedOrder) == 0 {
		return errors.New("feature schema: expected_order is empty")
	}
	seen := make(map[string]struct{}, len(s.ExpectedOrder))
	for _, name := range s.ExpectedOrder {
		if name == "" {
			return errors.New("feature schema: expected_order contains an empty column name")
		}
		if _, dup := seen[name]; dup {
			return errors.Errorf("feature schema: duplicate column %q in expected_order", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
