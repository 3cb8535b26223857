// Package annotation turns raw cell and region-of-interest tables into
// canonical annotation entities.
package annotation

import "fmt"

// BoundingBox is an axis-aligned box in source-slide pixel coordinates.
type BoundingBox struct {
	XMin, YMin, XMax, YMax float64
}

// BoxFromOrigin builds a box from its top-left corner and size.
func BoxFromOrigin(x, y, width, height float64) BoundingBox {
	return BoundingBox{XMin: x, YMin: y, XMax: x + width, YMax: y + height}
}

// Width returns XMax - XMin.
func (b BoundingBox) Width() float64 { return b.XMax - b.XMin }

// Height returns YMax - YMin.
func (b BoundingBox) Height() float64 { return b.YMax - b.YMin }

// Validate checks xmin < xmax and ymin < ymax.
func (b BoundingBox) Validate() error {
	if !(b.XMin < b.XMax) || !(b.YMin < b.YMax) {
		return fmt.Errorf("malformed bounding box (%g,%g)-(%g,%g): width and height must be positive",
			b.XMin, b.YMin, b.XMax, b.YMax)
	}
	return nil
}

// ROIID identifies a region of interest within a slide.
type ROIID int64

// NoROI marks a cell that lies outside every region of interest.
const NoROI ROIID = -1

// CellAnnotation is one labelled cell of one annotation session.
type CellAnnotation struct {
	ID      int64
	ROI     ROIID
	Box     BoundingBox
	Label   string
	Session Session
}

// InROI reports whether the cell belongs to a region of interest.
func (c CellAnnotation) InROI() bool {
	return c.ROI != NoROI
}

// ROIAnnotation is a region of interest.
type ROIAnnotation struct {
	ID  int64
	Box BoundingBox
}

// RecordError reports a single input record that was skipped.
type RecordError struct {
	SlideID string
	Table   string // "cells" or "rois"
	Row     int    // 1-based line number in the source table, header included
	ID      int64
	Err     error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("slide %s: %s row %d (id %d): %v", e.SlideID, e.Table, e.Row, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
