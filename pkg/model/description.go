package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LayerDescription is one entry of the layers file.
type LayerDescription struct {
	Key     string            `yaml:"key"`
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Options Options           `yaml:",inline"`
}

func (l *LayerDescription) UnmarshalYAML(value *yaml.Node) error {
	type plain LayerDescription

	p := plain{Options: DefaultOptions()}
	if err := value.Decode(&p); err != nil {
		return err
	}

	*l = LayerDescription(p)

	if l.Name == "" {
		l.Name = l.Key
	}

	return nil
}

// ReadLayers reads a yaml list of layer descriptions.
func ReadLayers(path string) ([]*LayerDescription, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var res []*LayerDescription

	if err := yaml.Unmarshal(d, &res); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	keys := make(map[string]bool, len(res))

	for i, l := range res {
		if l.Key == "" {
			return nil, configErr("key", "layer %d has no key", i)
		}

		if keys[l.Key] {
			return nil, configErr("key", "duplicate layer %s", l.Key)
		}

		keys[l.Key] = true
	}

	return res, nil
}
