package config

import (
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"slices"

	"gopkg.in/yaml.v3"
)

// Merge combines configuration files (or directories of them) into one
// document. Mappings merge key by key and sequences such as outputs or
// entry_points are concatenated in file order. Any other repeated value is
// overwritten by the later file, or reported when conflictError is set.
func Merge(configFiles []string, conflictError bool) ([]byte, error) {

	var paths []string
	for _, f := range configFiles {
		if err := filepath.WalkDir(f, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			paths = append(paths, path)
			return nil
		}); err != nil {
			return nil, err
		}
	}

	docs := make([]map[string]any, 0, len(paths))
	for _, f := range paths {
		bs, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %v: %w", f, err)
		}
		var x map[string]any
		if err := yaml.Unmarshal(bs, &x); err != nil {
			return nil, fmt.Errorf("failed to unmarshal configuration file %v: %w", f, err)
		}
		docs = append(docs, x)
	}

	merged, err := merge(docs, "", conflictError)
	if err != nil {
		return nil, err
	}

	bs, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged configuration: %w", err)
	}

	return bs, nil
}

func merge(docs []map[string]any, path string, conflictError bool) (map[string]any, error) {
	result := make(map[string]any)
	for _, doc := range docs {
		for _, key := range slices.Sorted(maps.Keys(doc)) { // Sort keys to ensure deterministic merge errors.
			value := doc[key]
			existing, ok := result[key]
			if !ok {
				result[key] = value
				continue
			}

			switch e := existing.(type) {
			case map[string]any:
				if v, ok := value.(map[string]any); ok {
					var err error
					result[key], err = merge([]map[string]any{e, v}, path+"/"+key, conflictError)
					if err != nil {
						return nil, err
					}
					continue
				}
			case []any:
				if v, ok := value.([]any); ok {
					result[key] = append(slices.Clone(e), v...)
					continue
				}
			}

			if conflictError && !reflect.DeepEqual(existing, value) {
				return nil, fmt.Errorf("conflict for config path %s", path+"/"+key)
			}
			result[key] = value
		}
	}
	return result, nil
}
