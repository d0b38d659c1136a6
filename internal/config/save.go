package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// SaveDefaultModel updates chat.default_model in the config file.
// This preserves comments and formatting in other sections by using yaml.Node.
func SaveDefaultModel(configPath, model string) error {
	if model == "" {
		return fmt.Errorf("model must not be empty")
	}
	return SaveValue(configPath, []string{"chat", "default_model"}, scalarNode(model))
}

// SaveFlag updates a single feature flag in the config file. A running
// process watching the file picks the change up.
func SaveFlag(configPath, name string, enabled bool) error {
	if name == "" {
		return fmt.Errorf("flag name must not be empty")
	}
	node := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(enabled)}
	return SaveValue(configPath, []string{"flags", name}, node)
}

// SaveValue sets the value at keyPath, creating intermediate mappings as
// needed, and writes the file atomically. Everything else in the file,
// including comments, is kept.
func SaveValue(configPath string, keyPath []string, value *yaml.Node) error {
	if len(keyPath) == 0 {
		return fmt.Errorf("empty key path")
	}

	data, err := os.ReadFile(configPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Parse into yaml.Node to preserve comments
	var doc yaml.Node
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	if doc.Kind != yaml.DocumentNode {
		return fmt.Errorf("parsing config: unexpected document structure")
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode}}
	}

	root := doc.Content[0]
	// A file holding only comments parses to a null scalar.
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		root.Kind, root.Tag, root.Value = yaml.MappingNode, "", ""
	}
	if err := setPath(root, keyPath, value); err != nil {
		return err
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	_ = encoder.Close()

	return writeAtomic(configPath, buf.Bytes())
}

// setPath walks mapping nodes along keys, replacing or appending the last
// key's value.
func setPath(node *yaml.Node, keys []string, value *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("config key %q is not a mapping", keys[0])
	}
	for i := 0; i < len(node.Content)-1; i += 2 {
		if node.Content[i].Value != keys[0] {
			continue
		}
		if len(keys) == 1 {
			node.Content[i+1] = value
			return nil
		}
		child := node.Content[i+1]
		// "chat:" with nothing under it
		if child.Kind == yaml.ScalarNode && child.Tag == "!!null" {
			child.Kind, child.Tag, child.Value = yaml.MappingNode, "", ""
		}
		return setPath(child, keys[1:], value)
	}

	if len(keys) == 1 {
		node.Content = append(node.Content, scalarNode(keys[0]), value)
		return nil
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	node.Content = append(node.Content, scalarNode(keys[0]), child)
	return setPath(child, keys[1:], value)
}

func scalarNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
}

// writeAtomic writes to a temp file in the same directory, then renames.
func writeAtomic(configPath string, data []byte) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	temp, err := os.CreateTemp(dir, ".forkchat.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tempPath := temp.Name()

	if _, err := temp.Write(data); err != nil {
		_ = temp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := temp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tempPath, configPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
