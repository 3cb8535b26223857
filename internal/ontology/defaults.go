package ontology

import "image/color"

var anatomicalStructure = Code{Value: "91723000", Scheme: "SCT", Meaning: "Anatomical structure"}

func rgb(r, g, b uint8) color.RGBA { return color.RGBA{R: r, G: g, B: b, A: 255} }

// defaultLabels lists the bone marrow cytology vocabulary with local codes and
// display colors.
var defaultLabels = []struct {
	label, value, meaning string
	color                 color.RGBA
}{
	{"band_neutrophil", "BMD001", "Band neutrophil", rgb(31, 119, 180)},
	{"basophil", "BMD002", "Basophil", rgb(148, 103, 189)},
	{"basophilic_erythroblast", "BMD003", "Basophilic erythroblast", rgb(214, 39, 40)},
	{"damaged_cell", "BMD004", "Damaged cell", rgb(127, 127, 127)},
	{"degranulated_neutrophilic_myelocyte", "BMD005", "Degranulated neutrophilic myelocyte", rgb(174, 199, 232)},
	{"eosinophil", "BMD006", "Eosinophil", rgb(255, 127, 14)},
	{"giant_platelet", "BMD007", "Giant platelet", rgb(188, 189, 34)},
	{"haematological_structure", "BMD008", "Haematological structure", rgb(23, 190, 207)},
	{"immature_monoblast", "BMD009", "Immature monoblast", rgb(140, 86, 75)},
	{"lymphocyte", "BMD010", "Lymphocyte", rgb(44, 160, 44)},
	{"lymphoid_precursor_cell", "BMD011", "Lymphoid precursor cell", rgb(152, 223, 138)},
	{"megakaryocyte", "BMD012", "Megakaryocyte", rgb(227, 119, 194)},
	{"mitosis", "BMD013", "Mitosis", rgb(247, 182, 210)},
	{"monocyte", "BMD014", "Monocyte", rgb(196, 156, 148)},
	{"myeloid_precursor_cell", "BMD015", "Myeloid precursor cell", rgb(255, 152, 150)},
	{"neutrophilic_metamyelocyte", "BMD016", "Neutrophilic metamyelocyte", rgb(158, 218, 229)},
	{"neutrophilic_myelocyte", "BMD017", "Neutrophilic myelocyte", rgb(57, 59, 121)},
	{"orthochromatic_erythroblast", "BMD018", "Orthochromatic erythroblast", rgb(173, 73, 74)},
	{"phagocytosis", "BMD019", "Phagocytosis", rgb(99, 121, 57)},
	{"plasma_cell", "BMD020", "Plasma cell", rgb(206, 219, 156)},
	{"polychromatic_erythroblast", "BMD021", "Polychromatic erythroblast", rgb(231, 150, 156)},
	{"proerythroblast", "BMD022", "Proerythroblast", rgb(123, 65, 115)},
	{"promyelocyte", "BMD023", "Promyelocyte", rgb(107, 110, 207)},
	{"segmented_neutrophil", "BMD024", "Segmented neutrophil", rgb(82, 84, 163)},
	{"smudge_cell", "BMD025", "Smudge cell", rgb(165, 81, 148)},
	{"technically_unfit", "BMD026", "Technically unfit", rgb(64, 64, 64)},
	{"thrombocyte_aggregate", "BMD027", "Thrombocyte aggregate", rgb(219, 219, 141)},
	{"unknown_blast", "BMD028", "Unknown blast", rgb(255, 187, 120)},
}

// Default returns the built-in vocabulary.
func Default() *Table {
	entries := make([]Entry, 0, len(defaultLabels))
	for _, l := range defaultLabels {
		entries = append(entries, Entry{
			Label:    l.label,
			Category: anatomicalStructure,
			Type:     Code{Value: l.value, Scheme: "99BMDEEP", Meaning: l.meaning},
			Color:    l.color,
		})
	}
	roi := Entry{
		Label:    ROILabel,
		Category: Code{Value: "91723000", Scheme: "SCT", Meaning: "Anatomical structure"},
		Type:     Code{Value: "111099", Scheme: "DCM", Meaning: "Selected region"},
		Color:    rgb(255, 215, 0),
	}
	t, err := NewTable(entries, roi)
	if err != nil {
		panic(err)
	}
	return t
}
