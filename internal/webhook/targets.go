package webhook

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Group is a set of receiver URLs sharing one payload transformer.
type Group struct {
	Key  string   `json:"key" yaml:"key"`
	URLs []string `json:"urls" yaml:"urls"`
}

// Targets is the ordered group configuration. Groups are delivered in order;
// a URL listed twice is called twice.
type Targets []Group

// Len returns the number of URLs across all groups.
func (t Targets) Len() int {
	n := 0
	for _, g := range t {
		n += len(g.URLs)
	}
	return n
}

// Clone deep-copies t so callers can keep a snapshot.
func (t Targets) Clone() Targets {
	if t == nil {
		return nil
	}
	out := make(Targets, len(t))
	for i, g := range t {
		out[i] = Group{Key: g.Key, URLs: append([]string(nil), g.URLs...)}
	}
	return out
}

// Add appends urls to the group key, creating the group at the end when it
// does not exist yet.
func (t *Targets) Add(key string, urls ...string) {
	for i := range *t {
		if (*t)[i].Key == key {
			(*t)[i].URLs = append((*t)[i].URLs, urls...)
			return
		}
	}
	*t = append(*t, Group{Key: key, URLs: append([]string(nil), urls...)})
}

// FromMap builds Targets from a map. Map iteration order is random, so keys
// are taken in the order given by keys.
func FromMap(m map[string][]string, keys ...string) Targets {
	var t Targets
	for _, k := range keys {
		if urls, ok := m[k]; ok {
			t.Add(k, urls...)
		}
	}
	return t
}

// UnmarshalYAML decodes a mapping of group key to URL list, keeping the order
// the keys appear in the document.
func (t *Targets) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*t = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: webhook targets must be a mapping of group key to url list", node.Line)
	}
	var out Targets
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]
		var urls []string
		if valNode.Kind == yaml.ScalarNode && valNode.Tag != "!!null" {
			urls = []string{valNode.Value}
		} else if err := valNode.Decode(&urls); err != nil {
			return fmt.Errorf("line %d: group %q: %w", valNode.Line, keyNode.Value, err)
		}
		out.Add(keyNode.Value, urls...)
	}
	*t = out
	return nil
}

// Merge concatenates several target sets, folding same-key groups into the
// first occurrence.
func Merge(sets ...Targets) Targets {
	var out Targets
	for _, s := range sets {
		for _, g := range s {
			out.Add(g.Key, g.URLs...)
		}
	}
	return out
}
