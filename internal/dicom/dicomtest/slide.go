// Package dicomtest writes synthetic whole slide image metadata files for
// tests.
package dicomtest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Slide describes the base level written by WriteSlide.
type Slide struct {
	FileName       string
	SOPInstanceUID string
	Flavor         string // third ImageType value, VOLUME by default
	Columns, Rows  int
	// WithFrame adds origin, orientation and pixel spacing.
	WithFrame  bool
	OriginX    float64
	OriginY    float64
	PixelSpace float64 // mm, 0.00025 by default
	// NoOrientation drops ImageOrientationSlide from a framed slide.
	NoOrientation bool
}

// Identity shared by every fixture slide.
const (
	StudyInstanceUID    = "1.2.826.0.1.3680043.8.498.10"
	SeriesInstanceUID   = "1.2.826.0.1.3680043.8.498.11"
	FrameOfReferenceUID = "1.2.826.0.1.3680043.8.498.12"
	PatientID           = "BMD-0001"
	PatientName         = "Anonymous^Slide"
	SOPClassUID         = "1.2.840.10008.5.1.4.1.1.77.1.6"
)

func mustNewElement(t tag.Tag, value any) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

func typed(group, element uint16, rawVR string, data any) *dicom.Element {
	t := tag.Tag{Group: group, Element: element}
	value, err := dicom.NewValue(data)
	if err != nil {
		panic(fmt.Sprintf("failed to create value for element %v: %v", t, err))
	}
	return &dicom.Element{Tag: t, ValueRepresentation: tag.GetVRKind(t, rawVR), RawValueRepresentation: rawVR, Value: value}
}

func ds(f float64) string {
	return fmt.Sprintf("%g", f)
}

// WriteSlide writes the metadata of one whole slide image level into dir and
// returns its path.
func WriteSlide(t testing.TB, dir string, s Slide) string {
	t.Helper()

	if s.FileName == "" {
		s.FileName = "level0.dcm"
	}
	if s.SOPInstanceUID == "" {
		s.SOPInstanceUID = "1.2.826.0.1.3680043.8.498.13." + fmt.Sprint(s.Columns)
	}
	if s.Flavor == "" {
		s.Flavor = "VOLUME"
	}
	if s.PixelSpace == 0 {
		s.PixelSpace = 0.00025
	}

	elements := []*dicom.Element{
		mustNewElement(tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustNewElement(tag.MediaStorageSOPClassUID, []string{SOPClassUID}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{s.SOPInstanceUID}),
		mustNewElement(tag.ImageType, []string{"ORIGINAL", "PRIMARY", s.Flavor, "NONE"}),
		mustNewElement(tag.SOPClassUID, []string{SOPClassUID}),
		mustNewElement(tag.SOPInstanceUID, []string{s.SOPInstanceUID}),
		mustNewElement(tag.StudyDate, []string{"20240115"}),
		mustNewElement(tag.StudyTime, []string{"101500"}),
		mustNewElement(tag.Modality, []string{"SM"}),
		mustNewElement(tag.PatientName, []string{PatientName}),
		mustNewElement(tag.PatientID, []string{PatientID}),
		mustNewElement(tag.StudyInstanceUID, []string{StudyInstanceUID}),
		mustNewElement(tag.SeriesInstanceUID, []string{SeriesInstanceUID}),
		mustNewElement(tag.StudyID, []string{"S1"}),
		mustNewElement(tag.SeriesNumber, []string{"1"}),
		mustNewElement(tag.FrameOfReferenceUID, []string{FrameOfReferenceUID}),
		typed(0x0040, 0x0512, "LO", []string{"SLIDE-1"}),
		typed(0x0048, 0x0006, "UL", []int{s.Columns}),
		typed(0x0048, 0x0007, "UL", []int{s.Rows}),
	}
	if s.WithFrame {
		elements = append(elements,
			typed(0x0048, 0x0008, "SQ", [][]*dicom.Element{{
				typed(0x0040, 0x072A, "DS", []string{ds(s.OriginX)}),
				typed(0x0040, 0x073A, "DS", []string{ds(s.OriginY)}),
			}}),
		)
		if !s.NoOrientation {
			elements = append(elements, typed(0x0048, 0x0102, "DS", []string{"0", "-1", "0", "-1", "0", "0"}))
		}
		elements = append(elements,
			typed(0x5200, 0x9229, "SQ", [][]*dicom.Element{{
				typed(0x0028, 0x9110, "SQ", [][]*dicom.Element{{
					mustNewElement(tag.PixelSpacing, []string{ds(s.PixelSpace), ds(s.PixelSpace)}),
				}}),
			}}),
		)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("create slide directory: %v", err)
	}
	path := filepath.Join(dir, s.FileName)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create slide file: %v", err)
	}
	defer func() { _ = f.Close() }()
	if err := dicom.Write(f, dicom.Dataset{Elements: elements}, dicom.SkipVRVerification(), dicom.SkipValueTypeVerification()); err != nil {
		t.Fatalf("write slide file: %v", err)
	}
	return path
}
