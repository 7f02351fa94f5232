package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/zjy-dev/covmerge/internal/coverage"
)

// UpdateThresholds rewrites coverage.thresholds.{functions,branches,lines,statements}
// in the YAML file at path. Comments and every other key are preserved;
// missing mappings are created.
func UpdateThresholds(path string, th coverage.Thresholds) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("config file %s is not a YAML mapping", path)
	}

	thresholds := mappingChild(mappingChild(doc.Content[0], "coverage"), "thresholds")
	for _, c := range []coverage.Category{
		coverage.CategoryFunctions,
		coverage.CategoryBranches,
		coverage.CategoryLines,
		coverage.CategoryStatements,
	} {
		setScalar(thresholds, string(c), strconv.FormatFloat(th.Get(c), 'f', -1, 64))
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode config file %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode config file %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat config file %s: %w", path, err)
	}
	return os.WriteFile(path, buf.Bytes(), info.Mode().Perm())
}

// mappingChild returns the mapping stored under key, creating it if needed.
func mappingChild(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			child := m.Content[i+1]
			if child.Kind != yaml.MappingNode {
				*child = yaml.Node{Kind: yaml.MappingNode}
			}
			return child
		}
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, child)
	return child
}

func setScalar(m *yaml.Node, key, value string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			v := m.Content[i+1]
			v.Kind = yaml.ScalarNode
			v.Tag = ""
			v.Style = 0
			v.Value = value
			v.Content = nil
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Value: value},
	)
}
