package annotation

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/mrsinham/annforge/internal/util"
)

// Vocabulary is the closed set of labels a cell may carry.
type Vocabulary interface {
	Has(label string) bool
	Labels() []string
}

// ROIFilter keeps only ROIs of the expected footprint. A zero dimension
// disables the check for that dimension.
type ROIFilter struct {
	Width     float64 `yaml:"width"`
	Height    float64 `yaml:"height"`
	Tolerance float64 `yaml:"tolerance"`
}

// Enabled reports whether any dimension is checked.
func (f ROIFilter) Enabled() bool {
	return f.Width > 0 || f.Height > 0
}

// Accepts reports whether box matches the expected footprint.
func (f ROIFilter) Accepts(box BoundingBox) bool {
	tol := f.Tolerance
	if tol <= 0 {
		tol = 0.5
	}
	if f.Width > 0 && math.Abs(box.Width()-f.Width) > tol {
		return false
	}
	if f.Height > 0 && math.Abs(box.Height()-f.Height) > tol {
		return false
	}
	return true
}

// errIDPrecision rejects identifiers the float32 measurement values of an
// annotation object cannot hold exactly (beyond 2^24 in magnitude).
var errIDPrecision = errors.New("id is not exactly representable as a 32-bit float measurement")

func exactFloat32(id int64) bool {
	return int64(float32(id)) == id
}

// Normalizer produces canonical annotations per slide and session.
type Normalizer struct {
	canon  *Canonicalizer
	vocab  Vocabulary
	filter ROIFilter

	cells     map[string][]CellRecord
	rois      map[string][]ROIRecord
	haveROIs  bool
	orphans   []*RecordError
	detection bool
}

// NewNormalizer indexes the tables by slide. rois may be nil when no ROI
// table exists; cross-references are then not checked. Cell records without a
// slide id are attributed through the ROI they reference.
func NewNormalizer(cells *CellTable, rois *ROITable, canon *Canonicalizer, vocab Vocabulary, filter ROIFilter) *Normalizer {
	n := &Normalizer{
		canon:  canon,
		vocab:  vocab,
		filter: filter,
		cells:  make(map[string][]CellRecord),
		rois:   make(map[string][]ROIRecord),
	}

	roiSlide := make(map[int64]string)
	if rois != nil {
		n.haveROIs = true
		for _, rec := range rois.Records {
			n.rois[rec.SlideID] = append(n.rois[rec.SlideID], rec)
			if rec.Err == nil {
				roiSlide[rec.ID] = rec.SlideID
			}
		}
	}

	if cells != nil {
		n.detection = cells.DetectionOnly
		for _, rec := range cells.Records {
			if rec.SlideID == "" && rec.ROI != NoROI {
				rec.SlideID = roiSlide[int64(rec.ROI)]
			}
			if rec.SlideID == "" {
				n.orphans = append(n.orphans, &RecordError{
					Table: "cells", Row: rec.Row, ID: rec.ID,
					Err: fmt.Errorf("cannot attribute cell to a slide"),
				})
				continue
			}
			n.cells[rec.SlideID] = append(n.cells[rec.SlideID], rec)
		}
	}
	return n
}

// Slides returns every slide id present in either table, sorted.
func (n *Normalizer) Slides() []string {
	seen := make(map[string]bool)
	var slides []string
	for id := range n.cells {
		if !seen[id] && id != "" {
			seen[id] = true
			slides = append(slides, id)
		}
	}
	for id := range n.rois {
		if !seen[id] && id != "" {
			seen[id] = true
			slides = append(slides, id)
		}
	}
	sort.Strings(slides)
	return slides
}

// Orphans returns cell records that could not be attributed to any slide.
func (n *Normalizer) Orphans() []*RecordError {
	return n.orphans
}

// DetectionOnly reports whether cells carry no classification.
func (n *Normalizer) DetectionOnly() bool {
	return n.detection
}

// HasROIs reports whether the slide has any ROI records.
func (n *Normalizer) HasROIs(slide string) bool {
	return len(n.rois[slide]) > 0
}

// HasCells reports whether the slide has any cell records.
func (n *Normalizer) HasCells(slide string) bool {
	return len(n.cells[slide]) > 0
}

// ROIs returns the valid regions of interest of a slide that pass the
// footprint filter. Malformed records are returned as errors.
func (n *Normalizer) ROIs(slide string) ([]ROIAnnotation, []*RecordError) {
	var (
		result []ROIAnnotation
		errs   []*RecordError
	)
	for _, rec := range n.rois[slide] {
		err := rec.Err
		if err == nil {
			err = rec.Box.Validate()
		}
		if err != nil {
			errs = append(errs, &RecordError{SlideID: slide, Table: "rois", Row: rec.Row, ID: rec.ID, Err: err})
			continue
		}
		if !exactFloat32(rec.ID) {
			errs = append(errs, &RecordError{SlideID: slide, Table: "rois", Row: rec.Row, ID: rec.ID, Err: errIDPrecision})
			continue
		}
		if n.filter.Enabled() && !n.filter.Accepts(rec.Box) {
			continue
		}
		result = append(result, ROIAnnotation{ID: rec.ID, Box: rec.Box})
	}
	return result, errs
}

// Sessions returns the number of annotation sessions recorded for the slide,
// i.e. the largest number of opinions any of its cells carries.
func (n *Normalizer) Sessions(slide string) int {
	maxSessions := 0
	for _, rec := range n.cells[slide] {
		if k := len(n.canon.Opinions(rec.Opinions)); k > maxSessions {
			maxSessions = k
		}
	}
	return maxSessions
}

// Cells returns the canonical cell annotations of a slide for one session.
// A numbered session includes only cells with at least that many opinions.
// Records that are malformed, carry a label outside the vocabulary, or
// reference an unknown ROI are skipped and reported. Cells of a ROI the
// footprint filter drops are kept as out-of-ROI cells, so every ROI reference
// written points at an annotation of the ROI object.
func (n *Normalizer) Cells(slide string, session Session) ([]CellAnnotation, []*RecordError) {
	knownROIs := make(map[ROIID]bool)
	droppedROIs := make(map[ROIID]bool)
	for _, rec := range n.rois[slide] {
		if rec.Err != nil || rec.Box.Validate() != nil || !exactFloat32(rec.ID) {
			continue
		}
		if n.filter.Enabled() && !n.filter.Accepts(rec.Box) {
			droppedROIs[ROIID(rec.ID)] = true
			continue
		}
		knownROIs[ROIID(rec.ID)] = true
	}

	var (
		result []CellAnnotation
		errs   []*RecordError
	)
	for _, rec := range n.cells[slide] {
		var label string
		if session.IsConsensus() {
			label = n.canon.Consensus(rec.Consensus)
		} else {
			opinions := n.canon.Opinions(rec.Opinions)
			if len(opinions) < session.Number() {
				continue
			}
			label = opinions[session.Number()-1]
		}

		fail := func(err error) {
			errs = append(errs, &RecordError{SlideID: slide, Table: "cells", Row: rec.Row, ID: rec.ID, Err: err})
		}
		if rec.Err != nil {
			fail(rec.Err)
			continue
		}
		if err := rec.Box.Validate(); err != nil {
			fail(err)
			continue
		}
		if !exactFloat32(rec.ID) {
			fail(errIDPrecision)
			continue
		}
		if label == "" {
			fail(fmt.Errorf("empty label for session %s", session))
			continue
		}
		if n.vocab != nil && !n.vocab.Has(label) {
			if suggestion := util.ClosestMatch(label, n.vocab.Labels(), 5); suggestion != "" {
				fail(fmt.Errorf("unknown label %q, did you mean %q?", label, suggestion))
			} else {
				fail(fmt.Errorf("unknown label %q", label))
			}
			continue
		}
		roi := rec.ROI
		if roi != NoROI && droppedROIs[roi] {
			roi = NoROI
		}
		if roi != NoROI && n.haveROIs && !knownROIs[roi] {
			fail(fmt.Errorf("references unknown ROI %d", rec.ROI))
			continue
		}

		result = append(result, CellAnnotation{
			ID:      rec.ID,
			ROI:     roi,
			Box:     rec.Box,
			Label:   label,
			Session: session,
		})
	}
	return result, errs
}
