package annotation

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mrsinham/annforge/internal/util"
)

// Column names of the exported annotation tables.
const (
	colSlideID   = "slide_id"
	colROIID     = "id"
	colROIIDAlt  = "roi_id"
	colCellID    = "cell_id"
	colCellROI   = "rocellboxing_id"
	colX         = "x_in_slide"
	colY         = "y_in_slide"
	colWidth     = "width"
	colHeight    = "height"
	colCellW     = "cell_width"
	colCellH     = "cell_height"
	colX1        = "x1"
	colY1        = "y1"
	colX2        = "x2"
	colY2        = "y2"
	colOpinions  = "all_original_annotations"
	colConsensus = "original_consensus_label"
)

// ROIRecord is one parsed row of the ROI table. Err is set when the row could
// not be parsed; such rows are reported and skipped during normalization.
type ROIRecord struct {
	Row     int
	SlideID string
	ID      int64
	Box     BoundingBox
	Err     error
}

// ROITable holds every ROI record of a run.
type ROITable struct {
	Records []ROIRecord
}

// CellRecord is one parsed row of the cell table.
type CellRecord struct {
	Row       int
	SlideID   string
	ID        int64
	ROI       ROIID
	Box       BoundingBox
	Opinions  string // comma-joined labels, one per annotation session
	Consensus string
	Err       error
}

// CellTable holds every cell record of a run.
type CellTable struct {
	Records []CellRecord
	// DetectionOnly is set for datasets without classification columns.
	DetectionOnly bool
	// HasSlideColumn is false for exports that only link cells to ROIs.
	HasSlideColumn bool
}

// boxColumns names the columns a bounding box is read from.
type boxColumns struct {
	corners       bool
	width, height string
}

func detectBoxColumns(t *util.Table, width, height string) (boxColumns, error) {
	if t.Has(colX1) {
		if err := t.Require(colX1, colY1, colX2, colY2); err != nil {
			return boxColumns{}, err
		}
		return boxColumns{corners: true}, nil
	}
	if err := t.Require(colX, colY, width, height); err != nil {
		return boxColumns{}, err
	}
	return boxColumns{width: width, height: height}, nil
}

func (c boxColumns) read(t *util.Table, row int) (BoundingBox, error) {
	names := []string{colX1, colY1, colX2, colY2}
	if !c.corners {
		names = []string{colX, colY, c.width, c.height}
	}
	var v [4]float64
	for i, name := range names {
		f, err := t.Float(row, name)
		if err != nil {
			return BoundingBox{}, err
		}
		v[i] = f
	}
	if c.corners {
		return BoundingBox{XMin: v[0], YMin: v[1], XMax: v[2], YMax: v[3]}, nil
	}
	return BoxFromOrigin(v[0], v[1], v[2], v[3]), nil
}

// ReadROITable parses an ROI table.
func ReadROITable(r io.Reader) (*ROITable, error) {
	t, err := util.ReadTable(r)
	if err != nil {
		return nil, fmt.Errorf("roi table: %w", err)
	}
	idCol := colROIID
	if !t.Has(idCol) {
		idCol = colROIIDAlt
	}
	if err := t.Require(colSlideID, idCol); err != nil {
		return nil, fmt.Errorf("roi table: %w", err)
	}
	boxCols, err := detectBoxColumns(t, colWidth, colHeight)
	if err != nil {
		return nil, fmt.Errorf("roi table: %w", err)
	}

	table := &ROITable{Records: make([]ROIRecord, 0, len(t.Rows))}
	for i := range t.Rows {
		rec := ROIRecord{Row: i + 2, SlideID: t.String(i, colSlideID)}
		rec.ID, rec.Err = t.Int(i, idCol)
		if rec.Err == nil {
			rec.Box, rec.Err = boxCols.read(t, i)
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

// ReadCellTable parses a cell table.
func ReadCellTable(r io.Reader) (*CellTable, error) {
	t, err := util.ReadTable(r)
	if err != nil {
		return nil, fmt.Errorf("cell table: %w", err)
	}
	if err := t.Require(colCellID); err != nil {
		return nil, fmt.Errorf("cell table: %w", err)
	}
	roiCol := colCellROI
	if !t.Has(roiCol) {
		roiCol = colROIIDAlt
	}
	boxCols, err := detectBoxColumns(t, colCellW, colCellH)
	if err != nil {
		return nil, fmt.Errorf("cell table: %w", err)
	}

	table := &CellTable{
		Records:        make([]CellRecord, 0, len(t.Rows)),
		DetectionOnly:  !t.Has(colConsensus),
		HasSlideColumn: t.Has(colSlideID),
	}
	for i := range t.Rows {
		rec := CellRecord{Row: i + 2, SlideID: t.String(i, colSlideID), ROI: NoROI}
		rec.ID, rec.Err = t.Int(i, colCellID)
		if rec.Err == nil {
			rec.Box, rec.Err = boxCols.read(t, i)
		}
		if rec.Err == nil && t.Has(roiCol) {
			rec.ROI, rec.Err = parseROIRef(t, i, roiCol)
		}
		if table.DetectionOnly {
			rec.Consensus = DetectionLabel
		} else {
			rec.Opinions = t.String(i, colOpinions)
			rec.Consensus = t.String(i, colConsensus)
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

// parseROIRef reads an ROI cross-reference. Empty, NaN and -1 mean "no ROI".
func parseROIRef(t *util.Table, row int, column string) (ROIID, error) {
	s := t.String(row, column)
	if s == "" || strings.EqualFold(s, "nan") {
		return NoROI, nil
	}
	v, err := t.Int(row, column)
	if err != nil {
		return NoROI, err
	}
	if v < 0 {
		return NoROI, nil
	}
	return ROIID(v), nil
}

// LoadROITable reads the ROI table at path.
func LoadROITable(path string) (*ROITable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open roi table: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadROITable(f)
}

// LoadCellTable reads the cell table at path.
func LoadCellTable(path string) (*CellTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cell table: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadCellTable(f)
}
