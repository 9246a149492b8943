package catalog

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog document.
type File struct {
	Tracks []TrackDefinition `yaml:"tracks"`
}

// ParseYAML decodes and validates a catalog document.
func ParseYAML(data []byte) (*Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, invalidf("", "catalog document is empty")
	}
	var doc File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, &Error{Kind: ErrInvalidCatalog, Msg: fmt.Sprintf("decode: %v", err)}
	}
	return New(doc.Tracks...)
}

// LoadFile reads a YAML catalog from path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	c, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s: %w", path, err)
	}
	return c, nil
}

// Load returns the catalog at path, or the built-in tracks when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// MarshalYAML renders the catalog back into its file format.
func (c *Catalog) MarshalYAML() (any, error) {
	return File{Tracks: c.Definitions()}, nil
}
