package pipeline

import (
	"errors"
	"fmt"

	"github.com/mrsinham/annforge/internal/annotation"
	"github.com/mrsinham/annforge/internal/dicom"
	"github.com/mrsinham/annforge/internal/geometry"
	"github.com/mrsinham/annforge/internal/projection"
)

// Stage names the pipeline step a failure happened in.
type Stage string

const (
	StageInput      Stage = "input"
	StageSource     Stage = "source"
	StageGeometry   Stage = "geometry"
	StageProjection Stage = "projection"
	StageEncoding   Stage = "encoding"
	StageWrite      Stage = "write"
	StagePreview    Stage = "preview"
	StagePublish    Stage = "publish"
	StageLedger     Stage = "ledger"
	StageFileSet    Stage = "fileset"
)

// InputError reports missing or malformed input for a slide or unit.
type InputError struct {
	SlideID string
	Err     error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("slide %s: input: %v", e.SlideID, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// stageOf classifies err by its type, falling back to def for untyped errors.
func stageOf(err error, def Stage) Stage {
	var (
		inputErr    *InputError
		recordErr   *annotation.RecordError
		configErr   *geometry.ConfigError
		projErr     *projection.Error
		encodingErr *dicom.EncodingError
	)
	switch {
	case errors.As(err, &encodingErr):
		return StageEncoding
	case errors.As(err, &projErr):
		return StageProjection
	case errors.As(err, &configErr):
		return StageGeometry
	case errors.As(err, &inputErr), errors.As(err, &recordErr):
		return StageInput
	}
	return def
}
