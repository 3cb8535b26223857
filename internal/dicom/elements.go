package dicom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/annforge/internal/ontology"
)

const (
	explicitVRLittleEndian = "1.2.840.10008.1.2.1"

	// MicroscopyBulkSimpleAnnotationsStorage is the SOP class of every object we write.
	MicroscopyBulkSimpleAnnotationsStorage = "1.2.840.10008.5.1.4.1.1.91.1"
	vlWholeSlideMicroscopyImageStorage     = "1.2.840.10008.5.1.4.1.1.77.1.6"

	implementationClassUID = "1.2.826.0.1.3680043.8.498.2"
)

// Attributes of the Microscopy Bulk Simple Annotations and whole slide
// microscopy modules. They are written with an explicit VR because not every
// dictionary release knows them.
var (
	tagAnnotationCoordinateType            = tag.Tag{Group: 0x006A, Element: 0x0001}
	tagAnnotationGroupSequence             = tag.Tag{Group: 0x006A, Element: 0x0002}
	tagAnnotationGroupUID                  = tag.Tag{Group: 0x006A, Element: 0x0003}
	tagAnnotationGroupNumber               = tag.Tag{Group: 0x006A, Element: 0x0004}
	tagAnnotationGroupLabel                = tag.Tag{Group: 0x006A, Element: 0x0005}
	tagAnnotationGroupDescription          = tag.Tag{Group: 0x006A, Element: 0x0006}
	tagAnnotationGroupGenerationType       = tag.Tag{Group: 0x006A, Element: 0x0007}
	tagAnnotationPropertyCategoryCodeSeq   = tag.Tag{Group: 0x006A, Element: 0x0009}
	tagAnnotationPropertyTypeCodeSeq       = tag.Tag{Group: 0x006A, Element: 0x000A}
	tagNumberOfAnnotations                 = tag.Tag{Group: 0x006A, Element: 0x000C}
	tagAnnotationAppliesToAllOpticalPaths  = tag.Tag{Group: 0x006A, Element: 0x000D}
	tagGraphicType                         = tag.Tag{Group: 0x0070, Element: 0x0023}
	tagPointCoordinatesData                = tag.Tag{Group: 0x0066, Element: 0x0016}
	tagMeasurementsSequence                = tag.Tag{Group: 0x0066, Element: 0x0121}
	tagFloatingPointValues                 = tag.Tag{Group: 0x0066, Element: 0x0125}
	tagMeasurementValuesSequence           = tag.Tag{Group: 0x0066, Element: 0x0132}
	tagConceptNameCodeSequence             = tag.Tag{Group: 0x0040, Element: 0xA043}
	tagMeasurementUnitsCodeSequence        = tag.Tag{Group: 0x0040, Element: 0x08EA}
	tagPixelOriginInterpretation           = tag.Tag{Group: 0x0048, Element: 0x0301}
	tagRecommendedDisplayCIELabValue       = tag.Tag{Group: 0x0062, Element: 0x000D}
	tagContentLabel                        = tag.Tag{Group: 0x0070, Element: 0x0080}
	tagContentDescription                  = tag.Tag{Group: 0x0070, Element: 0x0081}
	tagContentCreatorName                  = tag.Tag{Group: 0x0070, Element: 0x0084}
	tagContainerIdentifier                 = tag.Tag{Group: 0x0040, Element: 0x0512}
	tagIssuerOfContainerIdentifierSeq      = tag.Tag{Group: 0x0040, Element: 0x0513}
	tagContainerTypeCodeSequence           = tag.Tag{Group: 0x0040, Element: 0x0518}
	tagSpecimenDescriptionSequence         = tag.Tag{Group: 0x0040, Element: 0x0560}
	tagTotalPixelMatrixColumns             = tag.Tag{Group: 0x0048, Element: 0x0006}
	tagTotalPixelMatrixRows                = tag.Tag{Group: 0x0048, Element: 0x0007}
	tagTotalPixelMatrixOriginSequence      = tag.Tag{Group: 0x0048, Element: 0x0008}
	tagXOffsetInSlideCoordinateSystem      = tag.Tag{Group: 0x0040, Element: 0x072A}
	tagYOffsetInSlideCoordinateSystem      = tag.Tag{Group: 0x0040, Element: 0x073A}
	tagZOffsetInSlideCoordinateSystem      = tag.Tag{Group: 0x0040, Element: 0x074A}
	tagImageOrientationSlide               = tag.Tag{Group: 0x0048, Element: 0x0102}
	tagSharedFunctionalGroupsSequence      = tag.Tag{Group: 0x5200, Element: 0x9229}
	tagPixelMeasuresSequence               = tag.Tag{Group: 0x0028, Element: 0x9110}
	tagClinicalTrialSponsorName            = tag.Tag{Group: 0x0012, Element: 0x0010}
	tagClinicalTrialProtocolID             = tag.Tag{Group: 0x0012, Element: 0x0020}
	tagClinicalTrialProtocolName           = tag.Tag{Group: 0x0012, Element: 0x0021}
	tagIssuerOfClinicalTrialProtocolID     = tag.Tag{Group: 0x0012, Element: 0x0022}
	tagOtherClinicalTrialProtocolIDsSeq    = tag.Tag{Group: 0x0012, Element: 0x0023}
	tagClinicalTrialSiteID                 = tag.Tag{Group: 0x0012, Element: 0x0030}
	tagClinicalTrialSiteName               = tag.Tag{Group: 0x0012, Element: 0x0031}
	tagClinicalTrialCoordinatingCenterName = tag.Tag{Group: 0x0012, Element: 0x0060}
	tagClinicalTrialSeriesID               = tag.Tag{Group: 0x0012, Element: 0x0071}

	// Private block recording the annotation session an object represents.
	tagPrivateCreator  = tag.Tag{Group: 0x0009, Element: 0x0010}
	tagPrivateSession  = tag.Tag{Group: 0x0009, Element: 0x1001}
	privateCreatorName = "ANNFORGE"
)

// mustNewElement creates a new DICOM element, panicking on error.
func mustNewElement(t tag.Tag, value any) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

// mustNewTypedElement creates an element with an explicit VR. dicom.NewElement
// fails on tags missing from the library's dictionary, including private ones.
func mustNewTypedElement(t tag.Tag, rawVR string, data any) *dicom.Element {
	value, err := dicom.NewValue(data)
	if err != nil {
		panic(fmt.Sprintf("failed to create value for element %v: %v", t, err))
	}
	return &dicom.Element{
		Tag:                    t,
		ValueRepresentation:    tag.GetVRKind(t, rawVR),
		RawValueRepresentation: rawVR,
		Value:                  value,
	}
}

// sequence builds an SQ element from its items.
func sequence(t tag.Tag, items ...[]*dicom.Element) *dicom.Element {
	return mustNewTypedElement(t, "SQ", items)
}

// codeItem returns the basic coded entry attributes of c.
func codeItem(c ontology.Code) []*dicom.Element {
	return []*dicom.Element{
		mustNewElement(tag.CodeValue, []string{c.Value}),
		mustNewElement(tag.CodingSchemeDesignator, []string{c.Scheme}),
		mustNewElement(tag.CodeMeaning, []string{c.Meaning}),
	}
}

// codeSequence builds a single-item code sequence.
func codeSequence(t tag.Tag, c ontology.Code) *dicom.Element {
	return sequence(t, codeItem(c))
}

// sortElements orders elements by (Group, Element) as the encoding requires.
func sortElements(elements []*dicom.Element) {
	sort.SliceStable(elements, func(i, j int) bool {
		if elements[i].Tag.Group != elements[j].Tag.Group {
			return elements[i].Tag.Group < elements[j].Tag.Group
		}
		return elements[i].Tag.Element < elements[j].Tag.Element
	})
}

// floatToDS converts a float64 to a DICOM Decimal String.
func floatToDS(f float64) string {
	return strconv.FormatFloat(f, 'g', 10, 64)
}

// intToIS converts an int to a DICOM Integer String.
func intToIS(i int) string {
	return strconv.Itoa(i)
}

// otherFloatTags are the OF attributes we write. The library only encodes
// byte values as OB, OW or UN, so they go through the writer as OB and
// swapVR restores OF in the encoded stream.
var otherFloatTags = []tag.Tag{tagPointCoordinatesData, tagFloatingPointValues}

// float32Element encodes values as little endian float32 bytes under OB.
func float32Element(t tag.Tag, values []float32) *dicom.Element {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	value, err := dicom.NewValue(data)
	if err != nil {
		panic(fmt.Sprintf("failed to create value for element %v: %v", t, err))
	}
	return &dicom.Element{
		Tag:                    t,
		ValueRepresentation:    tag.VRBytes,
		RawValueRepresentation: vrOtherByte,
		Value:                  value,
	}
}

const (
	vrOtherByte  = "OB"
	vrOtherFloat = "OF"
)

// swapVR rewrites the VR of every explicit VR little endian element of tags
// from one long-form VR to another and returns the number of elements
// changed. OB, OW, OF and UN share the header layout (tag, VR, two reserved
// bytes, 32-bit length), so only the two VR bytes change. The value of a
// swapped element is skipped so its payload is never matched.
func swapVR(data []byte, tags []tag.Tag, from, to string) int {
	n := 0
	for _, t := range tags {
		var header [8]byte
		binary.LittleEndian.PutUint16(header[0:], t.Group)
		binary.LittleEndian.PutUint16(header[2:], t.Element)
		copy(header[4:], from)
		for pos := 0; pos+12 <= len(data); {
			i := bytes.Index(data[pos:], header[:])
			if i < 0 {
				break
			}
			i += pos
			if i+12 > len(data) {
				break
			}
			copy(data[i+4:], to)
			n++
			length := int(binary.LittleEndian.Uint32(data[i+8:]))
			pos = i + 12 + length
		}
	}
	return n
}
