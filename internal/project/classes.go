package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// ClassNamesFile is the class names file kept at the dataset root.
const ClassNamesFile = "classes.txt"

// DataYAMLFile is the Ultralytics dataset description file.
const DataYAMLFile = "data.yaml"

// ErrEmptyClassNames is returned when a class list has no usable names.
var ErrEmptyClassNames = errors.New("class names cannot be empty")

// DefaultClassNames returns the names used when a dataset defines none.
func DefaultClassNames() []string {
	return []string{"class0", "class1", "class2"}
}

// NormalizeClassNames trims names and drops blanks. An empty result is an error.
func NormalizeClassNames(names []string) ([]string, error) {
	clean := lo.FilterMap(names, func(n string, _ int) (string, bool) {
		n = strings.TrimSpace(n)
		return n, n != ""
	})
	if len(clean) == 0 {
		return nil, ErrEmptyClassNames
	}
	return clean, nil
}

// ParseClassNames reads a class list that is either one name per line or a
// single comma-separated line.
func ParseClassNames(text string) ([]string, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	nonEmpty := lo.Filter(lines, func(l string, _ int) bool { return strings.TrimSpace(l) != "" })
	if len(nonEmpty) == 1 && strings.Contains(nonEmpty[0], ",") {
		return NormalizeClassNames(strings.Split(nonEmpty[0], ","))
	}
	return NormalizeClassNames(lines)
}

// LoadClassNames reads the class names of a dataset root. It tries classes.txt,
// then the names of data.yaml, then falls back to DefaultClassNames. The second
// result names the source used.
func LoadClassNames(root string) ([]string, string, error) {
	path := filepath.Join(root, ClassNamesFile)
	data, err := os.ReadFile(path)
	if err == nil {
		names, err := ParseClassNames(string(data))
		if err != nil {
			return nil, path, fmt.Errorf("%s: %w", path, err)
		}
		return names, path, nil
	}
	if !os.IsNotExist(err) {
		return nil, path, err
	}

	yamlPath := filepath.Join(root, DataYAMLFile)
	data, err = os.ReadFile(yamlPath)
	if err == nil {
		names, err := parseDataYAMLNames(data)
		if err != nil {
			return nil, yamlPath, fmt.Errorf("%s: %w", yamlPath, err)
		}
		return names, yamlPath, nil
	}
	return DefaultClassNames(), "defaults", nil
}

// parseDataYAMLNames accepts both the list and the index-map form of names.
func parseDataYAMLNames(data []byte) ([]string, error) {
	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	switch doc.Names.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := doc.Names.Decode(&names); err != nil {
			return nil, err
		}
		return NormalizeClassNames(names)
	case yaml.MappingNode:
		var byIndex map[int]string
		if err := doc.Names.Decode(&byIndex); err != nil {
			return nil, err
		}
		keys := lo.Keys(byIndex)
		sort.Ints(keys)
		return NormalizeClassNames(lo.Map(keys, func(k int, _ int) string { return byIndex[k] }))
	default:
		return nil, ErrEmptyClassNames
	}
}

// SaveClassNames writes names, one per line, to the class names file of root.
func SaveClassNames(root string, names []string) error {
	clean, err := NormalizeClassNames(names)
	if err != nil {
		return err
	}
	path := filepath.Join(root, ClassNamesFile)
	if err := os.WriteFile(path, []byte(strings.Join(clean, "\n")+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to save class names: %w", err)
	}
	return nil
}
