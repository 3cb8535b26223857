// Package geometry reconciles the pixel frame annotations were drawn in with
// the total pixel matrix of the re-encoded DICOM image.
package geometry

import (
	"fmt"
	"math"
)

// Point is a 2D position in total-pixel-matrix coordinates.
type Point struct {
	X, Y float64
}

// Point3 is a position in the slide coordinate system (millimetres).
type Point3 struct {
	X, Y, Z float64
}

// Frame is the spatial reference of a total pixel matrix.
type Frame struct {
	Origin Point3
	// RowDirection is the direction of increasing column index (first three
	// values of ImageOrientationSlide).
	RowDirection [3]float64
	// ColumnDirection is the direction of increasing row index (last three
	// values of ImageOrientationSlide).
	ColumnDirection [3]float64
	RowSpacing      float64 // distance between rows, mm
	ColumnSpacing   float64 // distance between columns, mm
}

const orientationTolerance = 1e-3

// NewFrame builds a Frame from DICOM attribute values: ImageOrientationSlide
// (6 values) and PixelSpacing ([row spacing, column spacing]).
func NewFrame(origin Point3, orientation []float64, spacing []float64) (*Frame, error) {
	if len(orientation) != 6 {
		return nil, fmt.Errorf("image orientation needs 6 values, got %d", len(orientation))
	}
	if len(spacing) != 2 {
		return nil, fmt.Errorf("pixel spacing needs 2 values, got %d", len(spacing))
	}
	f := &Frame{
		Origin:          origin,
		RowDirection:    [3]float64{orientation[0], orientation[1], orientation[2]},
		ColumnDirection: [3]float64{orientation[3], orientation[4], orientation[5]},
		RowSpacing:      spacing[0],
		ColumnSpacing:   spacing[1],
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks spacing is positive and orientation is orthonormal.
func (f *Frame) Validate() error {
	if f.RowSpacing <= 0 || f.ColumnSpacing <= 0 {
		return fmt.Errorf("pixel spacing must be positive, got [%g, %g]", f.RowSpacing, f.ColumnSpacing)
	}
	if math.Abs(norm(f.RowDirection)-1) > orientationTolerance {
		return fmt.Errorf("row direction %v is not a unit vector", f.RowDirection)
	}
	if math.Abs(norm(f.ColumnDirection)-1) > orientationTolerance {
		return fmt.Errorf("column direction %v is not a unit vector", f.ColumnDirection)
	}
	if math.Abs(dot(f.RowDirection, f.ColumnDirection)) > orientationTolerance {
		return fmt.Errorf("row and column directions are not orthogonal")
	}
	return nil
}

// ImageToReference maps a total-pixel-matrix position to the slide coordinate system.
func (f *Frame) ImageToReference(p Point) Point3 {
	dx := p.X * f.ColumnSpacing
	dy := p.Y * f.RowSpacing
	return Point3{
		X: f.Origin.X + f.RowDirection[0]*dx + f.ColumnDirection[0]*dy,
		Y: f.Origin.Y + f.RowDirection[1]*dx + f.ColumnDirection[1]*dy,
		Z: f.Origin.Z + f.RowDirection[2]*dx + f.ColumnDirection[2]*dy,
	}
}

// ReferenceToImage maps a slide coordinate back onto the pixel matrix plane.
func (f *Frame) ReferenceToImage(r Point3) Point {
	d := [3]float64{r.X - f.Origin.X, r.Y - f.Origin.Y, r.Z - f.Origin.Z}
	return Point{
		X: dot(d, f.RowDirection) / f.ColumnSpacing,
		Y: dot(d, f.ColumnDirection) / f.RowSpacing,
	}
}

func dot(a, b [3]float64) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func norm(a [3]float64) float64 {
	return math.Sqrt(dot(a, a))
}
