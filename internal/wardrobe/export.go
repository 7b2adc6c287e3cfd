package wardrobe

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"
)

// RepositoryPath is where a wardrobe's export lives in the configuration
// repository.
func (w *Wardrobe) RepositoryPath() string {
	return "wardrobe/" + w.name + ".yml"
}

// document is the YAML export shape. Instances carry only their stored
// overrides, so inheritance survives an export/import round trip.
type document struct {
	Wardrobe  string                       `yaml:"wardrobe"`
	Instances map[string]map[string]string `yaml:"instances"`
}

// ToYAML serializes the wardrobe: every instance with its stored overrides,
// hidden attributes excluded.
func (w *Wardrobe) ToYAML(ctx context.Context) ([]byte, error) {
	instances, err := w.Instances(ctx)
	if err != nil {
		return nil, err
	}

	doc := document{Wardrobe: w.name, Instances: make(map[string]map[string]string, len(instances))}
	for _, instance := range instances {
		stored, err := w.engine.HGetAll(ctx, w.instanceKey(instance))
		if err != nil {
			return nil, err
		}
		attrs := make(map[string]string, len(stored))
		for attr, value := range stored {
			if !hidden(attr) {
				attrs[attr] = string(value)
			}
		}
		doc.Instances[instance] = attrs
	}
	return yaml.Marshal(doc)
}

// FromYAML merges an exported document back in: instances are created as
// needed and listed attributes overwrite stored ones. Attributes absent from
// the document are left untouched.
func (w *Wardrobe) FromYAML(ctx context.Context, data []byte) error {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("wardrobe: parse export: %w", err)
	}

	for instance, attrs := range doc.Instances {
		if instance != DefaultInstance {
			exists, err := w.hasInstance(ctx, instance)
			if err != nil {
				return err
			}
			if !exists {
				if err := w.engine.RPush(ctx, w.instancesKey(), []byte(instance)); err != nil {
					return err
				}
				if err := w.stamp(ctx, instance, attrCreated); err != nil {
					return err
				}
			}
		}
		for attr, value := range attrs {
			if hidden(attr) {
				continue
			}
			if err := w.engine.HSet(ctx, w.instanceKey(instance), attr, []byte(value)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Repository is the slice of the repository client the export needs.
type Repository interface {
	Read(path string) (content []byte, version int64, err error)
	Write(path string, content []byte, expectedVersion int64) (int64, error)
}

// ToRepository pushes the YAML export into the configuration repository
// under RepositoryPath, replacing any previous export.
func (w *Wardrobe) ToRepository(ctx context.Context, repo Repository) error {
	data, err := w.ToYAML(ctx)
	if err != nil {
		return err
	}
	path := w.RepositoryPath()

	version := int64(0)
	if _, current, err := repo.Read(path); err == nil {
		version = current
	}
	if _, err := repo.Write(path, data, version); err != nil {
		return fmt.Errorf("wardrobe: export to repository: %w", err)
	}
	return nil
}
