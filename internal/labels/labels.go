// Package labels maps model class ids to symbol names.
//
// Two file formats are accepted. Plain text files carry one name per line,
// the line order giving the class id (blank lines and lines starting with
// '#' are skipped). YAML files (.yaml, .yml) carry either a sequence of
// names, a mapping from id to name, or either of those under a top-level
// "names" key.
package labels

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Table is an immutable class-id → name mapping. The zero value and nil are
// valid empty tables.
type Table struct {
	names map[int]string
}

// New builds a table from an ordered list of names.
func New(names ...string) *Table {
	t := &Table{names: make(map[int]string, len(names))}
	for i, n := range names {
		t.names[i] = n
	}
	return t
}

// Load reads a label file. An empty path returns an empty table.
func Load(path string) (*Table, error) {
	if path == "" {
		return &Table{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read labels %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return parseYAML(data)
	default:
		return parseText(data)
	}
}

func parseText(data []byte) (*Table, error) {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan labels: %w", err)
	}
	return New(names...), nil
}

func parseYAML(data []byte) (*Table, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse labels: %w", err)
	}
	if len(root.Content) == 0 {
		return &Table{}, nil
	}
	node := root.Content[0]
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "names" {
				node = node.Content[i+1]
				break
			}
		}
	}

	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return nil, fmt.Errorf("failed to decode label list: %w", err)
		}
		return New(names...), nil
	case yaml.MappingNode:
		var m map[int]string
		if err := node.Decode(&m); err != nil {
			return nil, fmt.Errorf("failed to decode label map: %w", err)
		}
		for id := range m {
			if id < 0 {
				return nil, fmt.Errorf("negative class id %d", id)
			}
		}
		return &Table{names: m}, nil
	default:
		return nil, errors.New("labels must be a list or an id-to-name map")
	}
}

// Len returns the number of named classes.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// Symbol returns the name of a class, falling back to its decimal id.
func (t *Table) Symbol(class int) string {
	if t != nil {
		if n, ok := t.names[class]; ok && n != "" {
			return n
		}
	}
	return strconv.Itoa(class)
}
