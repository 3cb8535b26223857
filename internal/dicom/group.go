package dicom

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/mrsinham/annforge/internal/annotation"
	"github.com/mrsinham/annforge/internal/geometry"
	"github.com/mrsinham/annforge/internal/ontology"
	"github.com/mrsinham/annforge/internal/projection"
	"github.com/mrsinham/annforge/internal/util"
)

// Measurement is one named value per group member, index-aligned with the
// group's graphic data.
type Measurement struct {
	Name   ontology.Code
	Unit   ontology.Code
	Values []float64
}

// AnnotationGroup is one labelled set of annotations of an object.
type AnnotationGroup struct {
	Number       int
	UID          string
	Label        string
	Description  string
	Category     ontology.Code
	Type         ontology.Code
	Color        color.RGBA
	Graphic      projection.GraphicType
	GraphicData  [][]float32
	Measurements []Measurement
}

// Len returns the number of annotations in the group.
func (g *AnnotationGroup) Len() int {
	return len(g.GraphicData)
}

// Measurement returns the values measured for name, or nil.
func (g *AnnotationGroup) Measurement(name ontology.Code) []float64 {
	for _, m := range g.Measurements {
		if m.Name.Value == name.Value && m.Name.Scheme == name.Scheme {
			return m.Values
		}
	}
	return nil
}

// Validate checks that the group is non-empty, that every graphic entry has
// the point count and dimension of coords, and that every measurement is
// aligned with the graphic data.
func (g *AnnotationGroup) Validate(coords projection.CoordinateType) error {
	if len(g.GraphicData) == 0 {
		return &EncodingError{Group: g.Number, Err: fmt.Errorf("group %q is empty", g.Label)}
	}
	if g.UID == "" {
		return &EncodingError{Group: g.Number, Err: fmt.Errorf("group %q has no UID", g.Label)}
	}
	want := g.Graphic.PointsPerAnnotation() * coords.Dimensions()
	if want == 0 {
		return &EncodingError{Group: g.Number, Err: fmt.Errorf("graphic type %s with %s coordinates not supported", g.Graphic, coords)}
	}
	for i, data := range g.GraphicData {
		if len(data) != want {
			return &EncodingError{Group: g.Number, Err: fmt.Errorf("annotation %d has %d coordinates, want %d", i, len(data), want)}
		}
	}
	for _, m := range g.Measurements {
		if len(m.Values) != len(g.GraphicData) {
			return &EncodingError{Group: g.Number, Err: fmt.Errorf("measurement %s has %d values for %d annotations",
				m.Name.Value, len(m.Values), len(g.GraphicData))}
		}
		// Values are stored as single precision floats.
		for _, v := range m.Values {
			if float64(float32(v)) != v {
				return &EncodingError{Group: g.Number, Err: fmt.Errorf("measurement %s value %v is not representable as a 32-bit float",
					m.Name.Value, v)}
			}
		}
	}
	return nil
}

// Points returns the graphic data of every annotation as total pixel matrix
// points. 3D data is mapped back through frame, which must then be set.
func (g *AnnotationGroup) Points(coords projection.CoordinateType, frame *geometry.Frame) ([][]geometry.Point, error) {
	dims := coords.Dimensions()
	if dims == 3 && frame == nil {
		return nil, fmt.Errorf("group %d: 3D coordinates need a frame of reference", g.Number)
	}
	out := make([][]geometry.Point, 0, len(g.GraphicData))
	for i, data := range g.GraphicData {
		if dims == 0 || len(data) == 0 || len(data)%dims != 0 {
			return nil, fmt.Errorf("group %d: annotation %d has %d coordinates, not a list of %dD points", g.Number, i, len(data), dims)
		}
		pts := make([]geometry.Point, 0, len(data)/dims)
		for j := 0; j < len(data); j += dims {
			if dims == 3 {
				pts = append(pts, frame.ReferenceToImage(geometry.Point3{X: float64(data[j]), Y: float64(data[j+1]), Z: float64(data[j+2])}))
				continue
			}
			pts = append(pts, geometry.Point{X: float64(data[j]), Y: float64(data[j+1])})
		}
		out = append(out, pts)
	}
	return out, nil
}

// BuildCellGroups partitions cells by label and region of interest
// membership. Labels are visited in sorted order; for each label the group of
// cells inside a region of interest comes before the group of cells outside
// any. Empty groups are skipped and numbers are contiguous from 1. graphicData
// is index-aligned with cells.
func BuildCellGroups(cells []annotation.CellAnnotation, graphicData [][]float32, table *ontology.Table, graphic projection.GraphicType) ([]AnnotationGroup, error) {
	if len(cells) != len(graphicData) {
		return nil, &EncodingError{Err: fmt.Errorf("%d cells but %d graphic entries", len(cells), len(graphicData))}
	}

	byLabel := make(map[string][]int)
	for i, c := range cells {
		byLabel[c.Label] = append(byLabel[c.Label], i)
	}
	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var groups []AnnotationGroup
	for _, label := range labels {
		entry, err := table.Lookup(label)
		if err != nil {
			return nil, &EncodingError{Err: err}
		}

		var inside, outside []int
		for _, i := range byLabel[label] {
			if cells[i].InROI() {
				inside = append(inside, i)
			} else {
				outside = append(outside, i)
			}
		}

		for _, part := range []struct {
			members []int
			inROI   bool
		}{{inside, true}, {outside, false}} {
			if len(part.members) == 0 {
				continue
			}
			g := AnnotationGroup{
				Number:      len(groups) + 1,
				UID:         util.NewUID(),
				Label:       label,
				Description: cellGroupDescription(label, part.inROI),
				Category:    entry.Category,
				Type:        entry.Type,
				Color:       entry.Color,
				Graphic:     graphic,
				GraphicData: make([][]float32, 0, len(part.members)),
			}
			ids := make([]float64, 0, len(part.members))
			var refs []float64
			for _, i := range part.members {
				g.GraphicData = append(g.GraphicData, graphicData[i])
				ids = append(ids, float64(cells[i].ID))
				if part.inROI {
					refs = append(refs, float64(cells[i].ROI))
				}
			}
			g.Measurements = []Measurement{{Name: ontology.CellIdentifier, Unit: ontology.NoUnits, Values: ids}}
			if part.inROI {
				g.Measurements = append(g.Measurements, Measurement{Name: ontology.ROIReference, Unit: ontology.NoUnits, Values: refs})
			}
			groups = append(groups, g)
		}
	}
	return groups, nil
}

func cellGroupDescription(label string, inROI bool) string {
	if inROI {
		return label + " inside a region of interest"
	}
	return label + " outside any region of interest"
}

// BuildROIGroup builds the single group of a region of interest object.
func BuildROIGroup(rois []annotation.ROIAnnotation, graphicData [][]float32, table *ontology.Table, graphic projection.GraphicType) (AnnotationGroup, error) {
	if len(rois) == 0 {
		return AnnotationGroup{}, &EncodingError{Err: fmt.Errorf("no regions of interest")}
	}
	if len(rois) != len(graphicData) {
		return AnnotationGroup{}, &EncodingError{Err: fmt.Errorf("%d regions of interest but %d graphic entries", len(rois), len(graphicData))}
	}
	entry := table.ROI()
	ids := make([]float64, len(rois))
	for i, roi := range rois {
		ids[i] = float64(roi.ID)
	}
	return AnnotationGroup{
		Number:       1,
		UID:          util.NewUID(),
		Label:        entry.Label,
		Description:  "regions of interest",
		Category:     entry.Category,
		Type:         entry.Type,
		Color:        entry.Color,
		Graphic:      graphic,
		GraphicData:  graphicData,
		Measurements: []Measurement{{Name: ontology.ROIIdentifier, Unit: ontology.NoUnits, Values: ids}},
	}, nil
}
