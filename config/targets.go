package config

import (
	"fmt"
	"os"
	"strings"

	perrors "pokequant/priceworker/pkg/errors"

	"gopkg.in/yaml.v3"
)

// CardTarget identifies a single card by name, collector number and set
type CardTarget struct {
	Name   string `yaml:"name"`
	Number string `yaml:"number"`
	Set    string `yaml:"set"`
}

// Target is one item to price: a card or sealed product on a given source
type Target struct {
	ID       string                 `yaml:"id"`
	Source   string                 `yaml:"source"`
	Keywords string                 `yaml:"keywords"`
	Card     *CardTarget            `yaml:"card"`
	Filters  map[string]interface{} `yaml:"filters"`
}

type targetsFile struct {
	Targets []Target `yaml:"targets"`
}

// LoadTargets reads the target list from a YAML file
func LoadTargets(path string) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.NewConfiguration(fmt.Sprintf("failed to read targets file %s", path), err)
	}
	return ParseTargets(data)
}

// ParseTargets decodes and validates a YAML target list
func ParseTargets(data []byte) ([]Target, error) {
	var file targetsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, perrors.NewConfiguration("failed to parse targets", err)
	}

	seen := make(map[string]bool, len(file.Targets))
	for i, t := range file.Targets {
		if strings.TrimSpace(t.ID) == "" {
			return nil, perrors.NewConfiguration(fmt.Sprintf("target #%d has no id", i), nil)
		}
		if strings.TrimSpace(t.Source) == "" {
			return nil, perrors.NewConfiguration(fmt.Sprintf("target %s has no source", t.ID), nil)
		}
		if strings.TrimSpace(t.Keywords) == "" && (t.Card == nil || strings.TrimSpace(t.Card.Name) == "") {
			return nil, perrors.NewConfiguration(fmt.Sprintf("target %s needs keywords or a card name", t.ID), nil)
		}
		key := t.Source + "/" + t.ID
		if seen[key] {
			return nil, perrors.NewConfiguration(fmt.Sprintf("duplicate target %s", key), nil)
		}
		seen[key] = true
	}

	return file.Targets, nil
}
