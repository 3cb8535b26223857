package geometry

import (
	"fmt"
	"io"
	"os"

	"github.com/mrsinham/annforge/internal/util"
)

// Geometry table columns. mpp_x and mpp_y are optional.
const (
	colSlideID = "slide_id"
	colWidth   = "width"
	colHeight  = "height"
	colBoundsX = "bounds_x"
	colBoundsY = "bounds_y"
	colMPPX    = "mpp_x"
	colMPPY    = "mpp_y"
)

// ReadSourceGeometries reads one SourceGeometry per slide from a CSV table
// exported from the MRXS slide properties.
func ReadSourceGeometries(r io.Reader) (map[string]SourceGeometry, error) {
	t, err := util.ReadTable(r)
	if err != nil {
		return nil, err
	}
	if err := t.Require(colSlideID, colWidth, colHeight, colBoundsX, colBoundsY); err != nil {
		return nil, err
	}

	result := make(map[string]SourceGeometry, len(t.Rows))
	for i := range t.Rows {
		slideID := t.String(i, colSlideID)
		if slideID == "" {
			return nil, fmt.Errorf("row %d: empty slide_id", i+2)
		}
		if _, dup := result[slideID]; dup {
			return nil, fmt.Errorf("row %d: duplicate slide_id %q", i+2, slideID)
		}

		g := SourceGeometry{SlideID: slideID}
		width, err := t.Int(i, colWidth)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		height, err := t.Int(i, colHeight)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		g.Width, g.Height = int(width), int(height)

		if g.CropOrigin.X, err = t.Float(i, colBoundsX); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if g.CropOrigin.Y, err = t.Float(i, colBoundsY); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}

		if t.Has(colMPPX) && t.String(i, colMPPX) != "" {
			if g.MPPX, err = t.Float(i, colMPPX); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+2, err)
			}
		}
		if t.Has(colMPPY) && t.String(i, colMPPY) != "" {
			if g.MPPY, err = t.Float(i, colMPPY); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+2, err)
			}
		}

		result[slideID] = g
	}
	return result, nil
}

// LoadSourceGeometries reads the geometry table at path.
func LoadSourceGeometries(path string) (map[string]SourceGeometry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geometry table: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadSourceGeometries(f)
}
