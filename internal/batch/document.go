package batch

import (
	"bytes"
	"encoding/json"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// document is the undecoded form of an input file, indexed the same way as
// File.Batches
type document interface {
	len() int
	setStatus(i int, status string)
	encode() ([]byte, error)
}

type jsonDocument struct {
	entries []map[string]json.RawMessage
}

func (d *jsonDocument) len() int { return len(d.entries) }

func (d *jsonDocument) setStatus(i int, status string) {
	if d.entries[i] == nil {
		d.entries[i] = make(map[string]json.RawMessage)
	}
	v, _ := json.Marshal(status)
	d.entries[i]["status"] = v
}

func (d *jsonDocument) encode() ([]byte, error) {
	data, err := json.MarshalIndent(d.entries, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// yamlDocument edits the node tree in place, which also keeps key order
// and comments
type yamlDocument struct {
	root *yaml.Node
}

func (d *yamlDocument) seq() *yaml.Node {
	if d.root == nil || len(d.root.Content) == 0 {
		return nil
	}
	if n := d.root.Content[0]; n.Kind == yaml.SequenceNode {
		return n
	}
	return nil
}

func (d *yamlDocument) len() int {
	if s := d.seq(); s != nil {
		return len(s.Content)
	}
	return 0
}

func (d *yamlDocument) setStatus(i int, status string) {
	entry := d.seq().Content[i]
	for k := 0; k+1 < len(entry.Content); k += 2 {
		if entry.Content[k].Value == "status" {
			v := entry.Content[k+1]
			v.Kind, v.Tag, v.Value, v.Style = yaml.ScalarNode, "!!str", status, 0
			return
		}
	}
	entry.Content = append(entry.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "status"},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: status},
	)
}

func (d *yamlDocument) encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// tomlDocument holds the whole TOML tree since a TOML document must be a
// table; the batches live under [[batch]]
type tomlDocument struct {
	tree map[string]any
}

func (d *tomlDocument) batches() []any {
	list, _ := d.tree["batch"].([]any)
	return list
}

func (d *tomlDocument) len() int { return len(d.batches()) }

func (d *tomlDocument) setStatus(i int, status string) {
	if entry, ok := d.batches()[i].(map[string]any); ok {
		entry["status"] = status
	}
}

func (d *tomlDocument) encode() ([]byte, error) {
	return toml.Marshal(d.tree)
}
