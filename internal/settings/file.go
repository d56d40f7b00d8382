package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSource reads settings from a YAML file. Both flat dotted keys and
// nested mappings are accepted:
//
//	table_log.enable: "on"
//
//	table_log:
//	  enable: "on"
//
// A missing file yields no values, so every setting keeps its default.
type FileSource struct {
	Path string
}

func (f FileSource) Load() (map[string]string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}

	out := make(map[string]string)
	if err := flatten("", doc, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		case []any:
			return fmt.Errorf("setting %q: lists are not supported", key)
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return nil
}
