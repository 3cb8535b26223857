package geometry

import "fmt"

// SourceGeometry describes the MRXS slide the annotations were drawn on.
type SourceGeometry struct {
	SlideID string
	// Width and Height of the region kept by the re-encoder (openslide bounds).
	Width, Height int
	// CropOrigin is the openslide bounds offset removed during re-encoding.
	CropOrigin Point
	// MPPX and MPPY are source microns per pixel, used when no Frame is given.
	MPPX, MPPY float64
	Frame      *Frame
}

// DestinationGeometry describes the total pixel matrix of the DICOM image.
type DestinationGeometry struct {
	Columns, Rows int
	Frame         *Frame
}

// ConfigError reports geometry that cannot safely place annotations. It is
// fatal for the slide it belongs to.
type ConfigError struct {
	SlideID string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("slide %s: geometry: %s", e.SlideID, e.Reason)
}

// Reconcile selects the transform for one slide. Equal dimensions yield a pure
// translation by the crop origin. Differing dimensions need spatial frames on
// both sides and yield an Affine.
func Reconcile(src SourceGeometry, dst DestinationGeometry) (Transform, error) {
	if dst.Columns <= 0 || dst.Rows <= 0 {
		return nil, &ConfigError{SlideID: src.SlideID, Reason: fmt.Sprintf("invalid destination dimensions %dx%d", dst.Columns, dst.Rows)}
	}

	if src.Width == dst.Columns && src.Height == dst.Rows {
		return Translation{DX: src.CropOrigin.X, DY: src.CropOrigin.Y}, nil
	}

	if dst.Frame == nil {
		return nil, &ConfigError{SlideID: src.SlideID, Reason: fmt.Sprintf(
			"source %dx%d differs from destination %dx%d and destination has no spatial reference",
			src.Width, src.Height, dst.Columns, dst.Rows)}
	}
	if err := dst.Frame.Validate(); err != nil {
		return nil, &ConfigError{SlideID: src.SlideID, Reason: "destination frame: " + err.Error()}
	}

	srcFrame, err := src.frameFor(dst.Frame)
	if err != nil {
		return nil, &ConfigError{SlideID: src.SlideID, Reason: err.Error()}
	}

	return Affine{Crop: src.CropOrigin, Source: *srcFrame, Dest: *dst.Frame}, nil
}

// frameFor returns the source frame. Without an explicit one, the cropped
// source is assumed to share the destination's origin and orientation at the
// source resolution.
func (s SourceGeometry) frameFor(dst *Frame) (*Frame, error) {
	if s.Frame != nil {
		if err := s.Frame.Validate(); err != nil {
			return nil, fmt.Errorf("source frame: %w", err)
		}
		return s.Frame, nil
	}
	if s.MPPX <= 0 || s.MPPY <= 0 {
		return nil, fmt.Errorf("source has no spatial reference (mpp %g x %g)", s.MPPX, s.MPPY)
	}
	f := *dst
	f.ColumnSpacing = s.MPPX / 1000
	f.RowSpacing = s.MPPY / 1000
	return &f, nil
}
