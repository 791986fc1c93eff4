package tile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Paths returns the registry paths in order.
func (r Registry) Paths() []string {
	paths := make([]string, len(r))
	for i, e := range r {
		paths[i] = e.Path
	}
	return paths
}

// UnmarshalYAML accepts either a mapping of key to path, kept in document
// order, or a plain sequence of paths keyed by position.
func (r *Registry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		reg := make(Registry, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var e Entry
			if err := node.Content[i].Decode(&e.Key); err != nil {
				return err
			}
			if err := node.Content[i+1].Decode(&e.Path); err != nil {
				return fmt.Errorf("registry entry %q: %w", e.Key, err)
			}
			reg = append(reg, e)
		}
		*r = reg
	case yaml.SequenceNode:
		reg := make(Registry, 0, len(node.Content))
		for i, n := range node.Content {
			var p string
			if err := n.Decode(&p); err != nil {
				return fmt.Errorf("registry entry %d: %w", i, err)
			}
			reg = append(reg, Entry{Key: strconv.Itoa(i), Path: p})
		}
		*r = reg
	default:
		return fmt.Errorf("line %d: registry must be a mapping or a sequence", node.Line)
	}
	return nil
}

// UnmarshalJSON decodes a JSON object keeping member order.
func (r *Registry) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("registry must be a JSON object")
	}

	reg := Registry{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var p string
		if err := dec.Decode(&p); err != nil {
			return fmt.Errorf("registry entry %q: %w", key, err)
		}
		reg = append(reg, Entry{Key: key, Path: p})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = reg
	return nil
}

// MarshalJSON encodes the registry as a JSON object in registry order.
func (r Registry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.Path)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DiscoverRegistry walks tilesDir below siteRoot and registers every file
// found, keyed and addressed by its slash-separated path relative to
// siteRoot. Walk order is lexical, so the result is deterministic.
func DiscoverRegistry(fs afero.Fs, siteRoot, tilesDir string) (Registry, error) {
	root := filepath.Join(siteRoot, filepath.FromSlash(tilesDir))
	var reg Registry
	err := afero.Walk(fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(siteRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		reg = append(reg, Entry{Key: rel, Path: rel})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover tiles in %s: %w", root, err)
	}
	return reg, nil
}
