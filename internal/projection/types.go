// Package projection turns annotation bounding boxes into the graphic data of
// DICOM annotation groups.
package projection

import (
	"fmt"
	"strings"
)

// GraphicType is the graphic primitive stored for each annotation.
type GraphicType int

const (
	Rectangle GraphicType = iota + 1
	Point
)

// String returns the DICOM GraphicType value.
func (g GraphicType) String() string {
	switch g {
	case Rectangle:
		return "RECTANGLE"
	case Point:
		return "POINT"
	default:
		return fmt.Sprintf("GraphicType(%d)", int(g))
	}
}

// PointsPerAnnotation returns how many points one annotation has.
func (g GraphicType) PointsPerAnnotation() int {
	switch g {
	case Rectangle:
		return 4
	case Point:
		return 1
	default:
		return 0
	}
}

// ParseGraphicType parses a DICOM GraphicType value. Only RECTANGLE and POINT
// are supported.
func ParseGraphicType(s string) (GraphicType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RECTANGLE":
		return Rectangle, nil
	case "POINT":
		return Point, nil
	default:
		return 0, &Error{Op: "parse graphic type", Err: fmt.Errorf("graphic type %q not supported (valid: RECTANGLE, POINT)", s)}
	}
}

// CoordinateType selects where graphic data lives: the 2D total pixel matrix
// or the 3D slide coordinate system.
type CoordinateType int

const (
	Scoord CoordinateType = iota + 1
	Scoord3D
)

// String returns "SCOORD" or "SCOORD3D".
func (c CoordinateType) String() string {
	switch c {
	case Scoord:
		return "SCOORD"
	case Scoord3D:
		return "SCOORD3D"
	default:
		return fmt.Sprintf("CoordinateType(%d)", int(c))
	}
}

// DICOMValue returns the AnnotationCoordinateType attribute value.
func (c CoordinateType) DICOMValue() string {
	if c == Scoord3D {
		return "3D"
	}
	return "2D"
}

// Dimensions returns the number of values per point.
func (c CoordinateType) Dimensions() int {
	if c == Scoord3D {
		return 3
	}
	return 2
}

// ParseCoordinateType parses SCOORD/2D or SCOORD3D/3D.
func ParseCoordinateType(s string) (CoordinateType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SCOORD", "2D":
		return Scoord, nil
	case "SCOORD3D", "3D":
		return Scoord3D, nil
	default:
		return 0, &Error{Op: "parse coordinate type", Err: fmt.Errorf("coordinate type %q not supported (valid: SCOORD, SCOORD3D)", s)}
	}
}

// Error is a projection failure. It fails the unit of work being encoded.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "projection: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
