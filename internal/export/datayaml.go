package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// DataYAML is the dataset descriptor read by YOLO trainers.
type DataYAML struct {
	Path  string   `yaml:"path"`
	Train string   `yaml:"train,omitempty"`
	Val   string   `yaml:"val,omitempty"`
	Test  string   `yaml:"test,omitempty"`
	NC    int      `yaml:"nc"`
	Names []string `yaml:"names"`
}

// WriteDataYAML writes a data.yaml describing root with the given splits.
func WriteDataYAML(path, root string, splits, classes []string) error {
	d := DataYAML{
		Path:  filepath.ToSlash(root),
		NC:    len(classes),
		Names: lo.Ternary(classes == nil, []string{}, classes),
	}
	for _, sp := range splits {
		dir := "images/" + sp
		switch sp {
		case "train":
			d.Train = dir
		case "val":
			d.Val = dir
		case "test":
			d.Test = dir
		}
	}
	data, err := yaml.Marshal(&d)
	if err != nil {
		return err
	}
	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadDataYAML reads a data.yaml file.
func ReadDataYAML(path string) (*DataYAML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d DataYAML
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &d, nil
}
