package ontology

import (
	"image/color"
	"sort"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	table := Default()

	labels := table.Labels()
	if !sort.StringsAreSorted(labels) {
		t.Error("Labels() should be sorted")
	}
	// Every canonical target of the label clean-up must be part of the vocabulary
	for _, label := range []string{
		"technically_unfit", "basophilic_erythroblast", "degranulated_neutrophilic_myelocyte",
		"phagocytosis", "giant_platelet", "unknown_blast", "thrombocyte_aggregate",
		"damaged_cell", "lymphoid_precursor_cell", "immature_monoblast",
		"myeloid_precursor_cell", "haematological_structure",
	} {
		if !table.Has(label) {
			t.Errorf("default vocabulary is missing %q", label)
		}
	}

	e, err := table.Lookup("lymphocyte")
	if err != nil {
		t.Fatalf("Lookup(lymphocyte) failed: %v", err)
	}
	if e.Category.Value != "91723000" || e.Type.Scheme != "99BMDEEP" {
		t.Errorf("unexpected entry %+v", e)
	}

	if table.ROI().Label != ROILabel {
		t.Errorf("ROI label = %q", table.ROI().Label)
	}
}

func TestLookup_Suggestion(t *testing.T) {
	_, err := Default().Lookup("lymphocite")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `did you mean "lymphocyte"`) {
		t.Errorf("error %q should suggest lymphocyte", err)
	}
}

func TestParse(t *testing.T) {
	doc := `
category: {value: "91723000", scheme: SCT, meaning: Anatomical structure}
roi:
  type: {value: "111099", scheme: DCM, meaning: Selected region}
  color: "#ff0000"
labels:
  - label: blast
    type: {value: X1, scheme: 99TEST, meaning: Blast}
    color: "#00ff00"
  - label: other
    category: {value: C1, scheme: 99TEST, meaning: Other category}
    type: {value: X2, scheme: 99TEST, meaning: Other}
`
	table, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := table.Labels(); strings.Join(got, ",") != "blast,other" {
		t.Errorf("Labels() = %v", got)
	}
	blast, _ := table.Lookup("blast")
	if blast.Category.Scheme != "SCT" || blast.Color != (color.RGBA{G: 255, A: 255}) {
		t.Errorf("blast = %+v", blast)
	}
	other, _ := table.Lookup("other")
	if other.Category.Value != "C1" {
		t.Errorf("other category = %v", other.Category)
	}
	if table.ROI().Label != ROILabel || table.ROI().Color != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("roi = %+v", table.ROI())
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"no labels":    "category: {value: a, scheme: b, meaning: c}\n",
		"missing type": "category: {value: a, scheme: b, meaning: c}\nlabels:\n  - label: x\n",
		"bad color":    "category: {value: a, scheme: b, meaning: c}\nlabels:\n  - label: x\n    type: {value: a, scheme: b}\n    color: red\n",
		"duplicate":    "category: {value: a, scheme: b, meaning: c}\nlabels:\n  - label: x\n    type: {value: a, scheme: b}\n  - label: x\n    type: {value: a, scheme: b}\n",
		"invalid yaml": "labels: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
