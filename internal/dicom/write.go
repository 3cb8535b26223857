package dicom

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/suyashkumar/dicom"
)

// writeDatasetToFile writes a DICOM dataset to a file
func writeDatasetToFile(filename string, ds dicom.Dataset, opts ...dicom.WriteOption) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return dicom.Write(f, ds, opts...)
}

// WriteAnnotationObject encodes obj as explicit VR little endian into path,
// creating the parent directory.
func WriteAnnotationObject(path string, obj *AnnotationObject) error {
	ds, err := obj.Dataset()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	// Annotation attributes carry explicit VRs the dictionary may not know.
	var buf bytes.Buffer
	if err := dicom.Write(&buf, ds, dicom.SkipVRVerification(), dicom.SkipValueTypeVerification()); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	data := buf.Bytes()
	swapVR(data, otherFloatTags, vrOtherByte, vrOtherFloat)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
