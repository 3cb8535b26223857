package ontology

import (
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileEntry is one label of an ontology file.
type fileEntry struct {
	Label    string `yaml:"label"`
	Category *Code  `yaml:"category,omitempty"`
	Type     Code   `yaml:"type"`
	Color    string `yaml:"color,omitempty"`
}

// file is the YAML layout of an ontology override.
type file struct {
	Category Code        `yaml:"category"`
	ROI      *fileEntry  `yaml:"roi,omitempty"`
	Labels   []fileEntry `yaml:"labels"`
}

// Parse reads a YAML ontology. Entries without a category use the
// document-level category.
func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse ontology: %w", err)
	}
	if len(f.Labels) == 0 {
		return nil, fmt.Errorf("ontology has no labels")
	}

	entries := make([]Entry, 0, len(f.Labels))
	for _, fe := range f.Labels {
		e, err := fe.entry(f.Category)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	roi := Default().ROI()
	if f.ROI != nil {
		e, err := f.ROI.entry(f.Category)
		if err != nil {
			return nil, err
		}
		if e.Label == "" {
			e.Label = ROILabel
		}
		roi = e
	}
	return NewTable(entries, roi)
}

// Load reads a YAML ontology from path.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ontology: %w", err)
	}
	return Parse(data)
}

func (fe fileEntry) entry(defaultCategory Code) (Entry, error) {
	e := Entry{Label: fe.Label, Category: defaultCategory, Type: fe.Type, Color: color.RGBA{R: 128, G: 128, B: 128, A: 255}}
	if fe.Category != nil {
		e.Category = *fe.Category
	}
	if fe.Color != "" {
		c, err := parseHexColor(fe.Color)
		if err != nil {
			return Entry{}, fmt.Errorf("label %q: %w", fe.Label, err)
		}
		e.Color = c
	}
	return e, nil
}

// parseHexColor parses "#rrggbb".
func parseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q, want #rrggbb", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}
