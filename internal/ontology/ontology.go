// Package ontology holds the read-only lookup from annotation labels to coded
// concepts and display colors.
package ontology

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/mrsinham/annforge/internal/util"
)

// Code is a coded concept (CodeValue, CodingSchemeDesignator, CodeMeaning).
type Code struct {
	Value   string `yaml:"value"`
	Scheme  string `yaml:"scheme"`
	Meaning string `yaml:"meaning"`
}

// String returns the code in "(value, scheme, meaning)" form.
func (c Code) String() string {
	return fmt.Sprintf("(%s, %s, %q)", c.Value, c.Scheme, c.Meaning)
}

// IsZero reports whether the code is unset.
func (c Code) IsZero() bool {
	return c.Value == "" && c.Scheme == ""
}

// Entry describes one label of the vocabulary.
type Entry struct {
	Label    string
	Category Code
	Type     Code
	Color    color.RGBA
}

// Measurement concepts attached to annotation groups.
var (
	CellIdentifier = Code{Value: "CELLID", Scheme: "99BMDEEP", Meaning: "Cell identifier"}
	ROIIdentifier  = Code{Value: "ROIID", Scheme: "99BMDEEP", Meaning: "Region of interest identifier"}
	ROIReference   = Code{Value: "ROIREF", Scheme: "99BMDEEP", Meaning: "Referenced region of interest identifier"}
	NoUnits        = Code{Value: "1", Scheme: "UCUM", Meaning: "no units"}
)

// ROILabel is the group label of region-of-interest objects.
const ROILabel = "region_of_interest"

// Table maps labels to entries. It is never mutated after construction.
type Table struct {
	entries map[string]Entry
	labels  []string
	roi     Entry
}

// NewTable builds a table from cell entries and the region-of-interest entry.
func NewTable(cells []Entry, roi Entry) (*Table, error) {
	t := &Table{entries: make(map[string]Entry, len(cells)), roi: roi}
	for _, e := range cells {
		if e.Label == "" {
			return nil, fmt.Errorf("ontology entry without label")
		}
		if e.Category.IsZero() || e.Type.IsZero() {
			return nil, fmt.Errorf("ontology entry %q: category and type codes are required", e.Label)
		}
		if _, dup := t.entries[e.Label]; dup {
			return nil, fmt.Errorf("duplicate ontology entry %q", e.Label)
		}
		t.entries[e.Label] = e
		t.labels = append(t.labels, e.Label)
	}
	sort.Strings(t.labels)
	if roi.Label == "" {
		t.roi.Label = ROILabel
	}
	return t, nil
}

// Has reports whether label is part of the vocabulary.
func (t *Table) Has(label string) bool {
	_, ok := t.entries[label]
	return ok
}

// Labels returns every label, sorted.
func (t *Table) Labels() []string {
	return append([]string(nil), t.labels...)
}

// Lookup returns the entry of label.
func (t *Table) Lookup(label string) (Entry, error) {
	if e, ok := t.entries[label]; ok {
		return e, nil
	}
	if suggestion := util.ClosestMatch(label, t.labels, 5); suggestion != "" {
		return Entry{}, fmt.Errorf("unknown label %q, did you mean %q?", label, suggestion)
	}
	return Entry{}, fmt.Errorf("unknown label %q", label)
}

// ROI returns the region-of-interest entry.
func (t *Table) ROI() Entry {
	return t.roi
}

// Color returns the display color of label, or gray for unknown labels.
func (t *Table) Color(label string) color.RGBA {
	if label == t.roi.Label {
		return t.roi.Color
	}
	if e, ok := t.entries[label]; ok {
		return e.Color
	}
	return color.RGBA{R: 128, G: 128, B: 128, A: 255}
}
