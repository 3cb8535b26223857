package dicom

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/annforge/internal/geometry"
)

// SourceImage is the base level of the re-encoded whole slide image the
// annotations are attached to.
type SourceImage struct {
	Path string

	StudyInstanceUID    string
	SeriesInstanceUID   string
	SOPClassUID         string
	SOPInstanceUID      string
	FrameOfReferenceUID string
	ContainerIdentifier string

	// Columns and Rows of the total pixel matrix.
	Columns, Rows int
	// Frame is nil when the image carries no spatial reference.
	Frame *geometry.Frame

	// inherited holds patient, study and specimen attributes copied verbatim
	// into every annotation object.
	inherited []*dicom.Element
}

// Destination returns the geometry the annotations are projected onto.
func (s *SourceImage) Destination() geometry.DestinationGeometry {
	return geometry.DestinationGeometry{Columns: s.Columns, Rows: s.Rows, Frame: s.Frame}
}

// inheritedTags are copied from the source image into annotation objects.
var inheritedTags = []tag.Tag{
	tag.PatientName,
	tag.PatientID,
	tag.PatientBirthDate,
	tag.PatientSex,
	tag.StudyInstanceUID,
	tag.StudyID,
	tag.StudyDate,
	tag.StudyTime,
	tag.AccessionNumber,
	tag.ReferringPhysicianName,
	tagClinicalTrialSiteID,
	tagClinicalTrialSiteName,
	tagContainerIdentifier,
	tagIssuerOfContainerIdentifierSeq,
	tagContainerTypeCodeSequence,
	tagSpecimenDescriptionSequence,
}

var skippedImageFlavors = map[string]bool{
	"THUMBNAIL": true,
	"LABEL":     true,
	"OVERVIEW":  true,
}

// LoadSourceImage scans dir for DICOM files and returns the largest whole
// slide image, skipping thumbnail, label and overview images. The base level
// is chosen from the total pixel matrix alone; a malformed spatial reference
// on it is an error, never a reason to fall back to a smaller level.
func LoadSourceImage(dir string) (*SourceImage, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.dcm"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no DICOM files in %s", dir)
	}

	var best *SourceImage
	var bestElements []*dicom.Element
	var bestPixels int64
	var firstErr error
	for _, path := range paths {
		img, elements, err := readSourceHeader(path)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if img == nil {
			continue
		}
		pixels := int64(img.Columns) * int64(img.Rows)
		if best == nil || pixels > bestPixels {
			best, bestElements, bestPixels = img, elements, pixels
		}
	}
	if best == nil {
		if firstErr != nil {
			return nil, fmt.Errorf("no usable whole slide image in %s: %w", dir, firstErr)
		}
		return nil, fmt.Errorf("no whole slide image volume in %s", dir)
	}
	if err := best.readDetails(bestElements); err != nil {
		return nil, err
	}
	return best, nil
}

// ReadSourceImage reads the metadata of one whole slide image instance. It
// returns nil without error for thumbnail, label and overview images.
func ReadSourceImage(path string) (*SourceImage, error) {
	img, elements, err := readSourceHeader(path)
	if err != nil || img == nil {
		return nil, err
	}
	if err := img.readDetails(elements); err != nil {
		return nil, err
	}
	return img, nil
}

// readSourceHeader reads identity and total pixel matrix of path. Skipped
// image flavors yield a nil image.
func readSourceHeader(path string) (*SourceImage, []*dicom.Element, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	elements := ds.Elements

	imageType := stringValues(elements, tag.ImageType)
	if len(imageType) > 2 && skippedImageFlavors[strings.ToUpper(imageType[2])] {
		return nil, nil, nil
	}

	img := &SourceImage{
		Path:                path,
		StudyInstanceUID:    stringValue(elements, tag.StudyInstanceUID),
		SeriesInstanceUID:   stringValue(elements, tag.SeriesInstanceUID),
		SOPClassUID:         stringValue(elements, tag.SOPClassUID),
		SOPInstanceUID:      stringValue(elements, tag.SOPInstanceUID),
		FrameOfReferenceUID: stringValue(elements, tag.FrameOfReferenceUID),
		ContainerIdentifier: stringValue(elements, tagContainerIdentifier),
	}
	if img.SOPInstanceUID == "" || img.StudyInstanceUID == "" {
		return nil, nil, fmt.Errorf("%s: missing SOP or study instance UID", path)
	}
	if img.SOPClassUID == "" {
		img.SOPClassUID = vlWholeSlideMicroscopyImageStorage
	}

	if img.Columns, err = intValue(elements, tagTotalPixelMatrixColumns); err != nil {
		return nil, nil, fmt.Errorf("%s: total pixel matrix: %w", path, err)
	}
	if img.Rows, err = intValue(elements, tagTotalPixelMatrixRows); err != nil {
		return nil, nil, fmt.Errorf("%s: total pixel matrix: %w", path, err)
	}
	return img, elements, nil
}

// readDetails fills the spatial reference and the inherited attributes.
func (s *SourceImage) readDetails(elements []*dicom.Element) error {
	frame, err := readFrame(elements)
	if err != nil {
		return fmt.Errorf("%s: spatial reference: %w", s.Path, err)
	}
	s.Frame = frame

	for _, t := range inheritedTags {
		if elem := findElement(elements, t); elem != nil {
			s.inherited = append(s.inherited, elem)
		}
	}
	return nil
}

// readFrame assembles the spatial reference from the total pixel matrix
// origin, ImageOrientationSlide and the shared pixel measures. It returns nil
// when none of them is present and an error when only some are or when they
// are malformed.
func readFrame(elements []*dicom.Element) (*geometry.Frame, error) {
	originItems := items(elements, tagTotalPixelMatrixOriginSequence)
	orientElem := findElement(elements, tagImageOrientationSlide)
	var spacingItem []*dicom.Element
	for _, shared := range items(elements, tagSharedFunctionalGroupsSequence) {
		for _, measures := range items(shared, tagPixelMeasuresSequence) {
			spacingItem = measures
		}
	}

	present := 0
	for _, ok := range []bool{len(originItems) > 0, orientElem != nil, spacingItem != nil} {
		if ok {
			present++
		}
	}
	switch present {
	case 0:
		return nil, nil
	case 3:
	default:
		return nil, fmt.Errorf("incomplete: origin, orientation and pixel spacing must all be present")
	}

	origin := geometry.Point3{}
	var err error
	if origin.X, err = singleFloat(originItems[0], tagXOffsetInSlideCoordinateSystem); err != nil {
		return nil, err
	}
	if origin.Y, err = singleFloat(originItems[0], tagYOffsetInSlideCoordinateSystem); err != nil {
		return nil, err
	}
	if findElement(originItems[0], tagZOffsetInSlideCoordinateSystem) != nil {
		if origin.Z, err = singleFloat(originItems[0], tagZOffsetInSlideCoordinateSystem); err != nil {
			return nil, err
		}
	}

	orientation, err := floatValues(elements, tagImageOrientationSlide)
	if err != nil {
		return nil, err
	}
	spacing, err := floatValues(spacingItem, tag.PixelSpacing)
	if err != nil {
		return nil, err
	}
	return geometry.NewFrame(origin, orientation, spacing)
}

func singleFloat(elements []*dicom.Element, t tag.Tag) (float64, error) {
	values, err := floatValues(elements, t)
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("%v: want 1 value, got %d", t, len(values))
	}
	return values[0], nil
}
