package annotation

import "strings"

// DetectionLabel is the label of every cell in detection-only datasets, which
// carry no per-cell classification.
const DetectionLabel = "haematological_structure"

// Canonicalizer maps recorded labels onto the closed vocabulary in two
// table-driven stages. Unmapped labels pass through unchanged.
type Canonicalizer struct {
	// Synonyms maps free-text and German labels onto vocabulary tokens.
	Synonyms map[string]string
	// Renames maps historically renamed categories onto current names.
	Renames map[string]string
}

// DefaultCanonicalizer returns the substitution tables of the bone marrow
// cytology dataset.
func DefaultCanonicalizer() *Canonicalizer {
	return &Canonicalizer{
		Synonyms: map[string]string{
			"other:basophiler Erythroblast":     "basophilic_erythroblast",
			"other:Dichter Zellhaufen":          "technically_unfit",
			"other:Zellhaufen":                  "technically_unfit",
			"other:degranulierter Promyelozyt":  "degranulated_neutrophilic_myelocyte",
			"other:Hämophagozytose":             "phagocytosis",
			"other:Riesenthrombozyt":            "giant_platelet",
			"other:Osteoblast":                  "unknown_blast",
			"other:osteoblast":                  "unknown_blast",
			"other:Mikrogerinsel":               "thrombocyte_aggregate",
			"other:Plasma eines Megakaryozyten": "damaged_cell",
			"other:Makrothrombozyt":             "giant_platelet",
			"other:Kernreste":                   "damaged_cell",
			"annotation_error":                  "technically_unfit",
		},
		Renames: map[string]string{
			"lymphoblast": "lymphoid_precursor_cell",
			"monoblast":   "immature_monoblast",
			"myeloblast":  "myeloid_precursor_cell",
		},
	}
}

// Opinion canonicalizes a label recorded in an annotation session. Both
// stages apply.
func (c *Canonicalizer) Opinion(label string) string {
	label = strings.TrimSpace(label)
	if to, ok := c.Synonyms[label]; ok {
		label = to
	}
	if to, ok := c.Renames[label]; ok {
		label = to
	}
	return label
}

// Consensus canonicalizes a consensus label. Consensus labels were computed
// after the synonym cleanup, so only renames apply.
func (c *Canonicalizer) Consensus(label string) string {
	label = strings.TrimSpace(label)
	if to, ok := c.Renames[label]; ok {
		return to
	}
	return label
}

// Opinions splits a comma-joined list of session labels and canonicalizes
// each entry. An empty list yields no opinions.
func (c *Canonicalizer) Opinions(joined string) []string {
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	for i, p := range parts {
		parts[i] = c.Opinion(p)
	}
	return parts
}
