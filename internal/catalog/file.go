package catalog

import (
	"fmt"
	"os"

	"github.com/fieldscope/fieldscope/internal/model"
	"gopkg.in/yaml.v3"
)

// catalogFile is the YAML shape of an external catalog overlay.
type catalogFile struct {
	Types   map[string]model.SensorProfile `yaml:"types"`
	Default *model.SensorProfile           `yaml:"default"`
}

// LoadFile overlays sensor types from a YAML file onto the catalog.
// Types in the file replace built-in types with the same key; other built-ins
// are kept. A "default" entry replaces the unknown-type fallback profile.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", path, err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("catalog: parse %s: %w", path, err)
	}

	for key, profile := range f.Types {
		if err := validateProfile(key, profile); err != nil {
			return err
		}
		c.types[key] = profile
	}
	if f.Default != nil {
		c.fallback = *f.Default
	}
	return nil
}

func validateProfile(key string, p model.SensorProfile) error {
	seen := make(map[string]struct{}, len(p.Metrics))
	for _, m := range p.Metrics {
		if m.ID == "" {
			return fmt.Errorf("catalog: type %s has a metric without an id", key)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("catalog: type %s defines metric %s twice", key, m.ID)
		}
		seen[m.ID] = struct{}{}
		if m.SourceKey == "" {
			return fmt.Errorf("catalog: type %s metric %s has no source_key", key, m.ID)
		}
	}
	return nil
}
