package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// loadContextFile reads template variables from a JSON, YAML or TOML file,
// chosen by extension. An empty path means no context.
func loadContextFile(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &data)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &data)
	case ".toml":
		err = toml.Unmarshal(raw, &data)
	default:
		return nil, errors.Errorf("unsupported context file format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return data, nil
}
