package dicom

import (
	"fmt"
	"strings"
	"time"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/annforge/internal/annotation"
	"github.com/mrsinham/annforge/internal/projection"
)

// EncodingError reports an annotation object that cannot be assembled.
type EncodingError struct {
	Group int // 0 when the error is not specific to one group
	Err   error
}

func (e *EncodingError) Error() string {
	if e.Group > 0 {
		return fmt.Sprintf("encoding: group %d: %v", e.Group, e.Err)
	}
	return fmt.Sprintf("encoding: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// DeviceInfo identifies the equipment that produced the annotations. The
// values are reported as configured.
type DeviceInfo struct {
	Manufacturer     string `yaml:"manufacturer"`
	ModelName        string `yaml:"model"`
	SoftwareVersions string `yaml:"software_versions"`
	SerialNumber     string `yaml:"serial"`
}

// DefaultDevice returns the device identification of the BMDeep conversion.
func DefaultDevice() DeviceInfo {
	return DeviceInfo{
		Manufacturer:     "University Hospital Erlangen and Fraunhofer MEVIS",
		ModelName:        "BMDeep data conversion",
		SoftwareVersions: "tbd",
		SerialNumber:     "tbd",
	}
}

// ClinicalTrial is the provenance written into the clinical trial modules.
type ClinicalTrial struct {
	SponsorName         string `yaml:"sponsor"`
	ProtocolID          string `yaml:"protocol_id"`
	ProtocolName        string `yaml:"protocol_name"`
	CoordinatingCenter  string `yaml:"coordinating_center"`
	OtherProtocolID     string `yaml:"other_protocol_id"`
	OtherProtocolIssuer string `yaml:"other_protocol_issuer"`
}

// AnnotationObject is one Microscopy Bulk Simple Annotations instance.
type AnnotationObject struct {
	Source *SourceImage

	SeriesUID         string
	SOPInstanceUID    string
	SeriesNumber      int
	InstanceNumber    int
	SeriesDescription string

	// ROI marks a region of interest object; otherwise Session tells which
	// annotation session the cells come from.
	ROI     bool
	Session annotation.Session

	Coordinates projection.CoordinateType
	Groups      []AnnotationGroup
	Device      DeviceInfo
	Trial       *ClinicalTrial
	ContentDate time.Time
}

// SessionTag returns the value of the private session attribute: "rois",
// "consensus" or the session number.
func (o *AnnotationObject) SessionTag() string {
	if o.ROI {
		return "rois"
	}
	return o.Session.String()
}

// ContentLabel returns the CS content label of the object.
func (o *AnnotationObject) ContentLabel() string {
	if o.ROI {
		return "ROIS"
	}
	return strings.ToUpper("CELLS_" + o.Session.String())
}

// Validate checks object identity and every group. Group numbers must be
// contiguous from 1 and group UIDs unique.
func (o *AnnotationObject) Validate() error {
	if o.Source == nil {
		return &EncodingError{Err: fmt.Errorf("no source image")}
	}
	if o.SeriesUID == "" || o.SOPInstanceUID == "" {
		return &EncodingError{Err: fmt.Errorf("series and SOP instance UIDs are required")}
	}
	if o.InstanceNumber < 1 {
		return &EncodingError{Err: fmt.Errorf("instance number must be >= 1, got %d", o.InstanceNumber)}
	}
	if o.Coordinates == projection.Scoord3D && o.Source.FrameOfReferenceUID == "" {
		return &EncodingError{Err: fmt.Errorf("3D coordinates need the frame of reference of the source image")}
	}
	if len(o.Groups) == 0 {
		return &EncodingError{Err: fmt.Errorf("object has no annotation groups")}
	}
	seen := make(map[string]bool, len(o.Groups))
	for i := range o.Groups {
		g := &o.Groups[i]
		if g.Number != i+1 {
			return &EncodingError{Group: g.Number, Err: fmt.Errorf("group numbers must be contiguous, expected %d", i+1)}
		}
		if seen[g.UID] {
			return &EncodingError{Group: g.Number, Err: fmt.Errorf("duplicate group UID %s", g.UID)}
		}
		seen[g.UID] = true
		if err := g.Validate(o.Coordinates); err != nil {
			return err
		}
	}
	return nil
}

// Dataset assembles the DICOM dataset of the object.
func (o *AnnotationObject) Dataset() (dicom.Dataset, error) {
	if err := o.Validate(); err != nil {
		return dicom.Dataset{}, err
	}

	content := o.ContentDate
	if content.IsZero() {
		content = time.Now()
	}
	src := o.Source

	elements := []*dicom.Element{
		mustNewElement(tag.TransferSyntaxUID, []string{explicitVRLittleEndian}),
		mustNewElement(tag.MediaStorageSOPClassUID, []string{MicroscopyBulkSimpleAnnotationsStorage}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{o.SOPInstanceUID}),
		mustNewElement(tag.ImplementationClassUID, []string{implementationClassUID}),

		mustNewElement(tag.SOPClassUID, []string{MicroscopyBulkSimpleAnnotationsStorage}),
		mustNewElement(tag.SOPInstanceUID, []string{o.SOPInstanceUID}),
		mustNewElement(tag.Modality, []string{"ANN"}),
		mustNewElement(tag.SeriesInstanceUID, []string{o.SeriesUID}),
		mustNewElement(tag.SeriesNumber, []string{intToIS(o.SeriesNumber)}),
		mustNewElement(tag.SeriesDescription, []string{o.SeriesDescription}),
		mustNewElement(tag.InstanceNumber, []string{intToIS(o.InstanceNumber)}),
		mustNewElement(tag.Manufacturer, []string{o.Device.Manufacturer}),
		mustNewElement(tag.ManufacturerModelName, []string{o.Device.ModelName}),
		mustNewElement(tag.SoftwareVersions, []string{o.Device.SoftwareVersions}),
		mustNewElement(tag.DeviceSerialNumber, []string{o.Device.SerialNumber}),
		mustNewElement(tag.ContentDate, []string{content.Format("20060102")}),
		mustNewElement(tag.ContentTime, []string{content.Format("150405")}),
		mustNewTypedElement(tagContentLabel, "CS", []string{o.ContentLabel()}),
		mustNewTypedElement(tagContentDescription, "LO", []string{o.SeriesDescription}),
		mustNewTypedElement(tagAnnotationCoordinateType, "CS", []string{o.Coordinates.DICOMValue()}),
		mustNewTypedElement(tagPrivateCreator, "LO", []string{privateCreatorName}),
		mustNewTypedElement(tagPrivateSession, "LO", []string{o.SessionTag()}),
		mustNewElement(tag.ReferencedSeriesSequence, [][]*dicom.Element{{
			mustNewElement(tag.SeriesInstanceUID, []string{src.SeriesInstanceUID}),
			mustNewElement(tag.ReferencedInstanceSequence, [][]*dicom.Element{referencedImage(src)}),
		}}),
	}
	if src.FrameOfReferenceUID != "" {
		elements = append(elements, mustNewElement(tag.FrameOfReferenceUID, []string{src.FrameOfReferenceUID}))
	}
	if o.Coordinates == projection.Scoord {
		elements = append(elements,
			mustNewTypedElement(tagPixelOriginInterpretation, "CS", []string{"VOLUME"}),
			mustNewElement(tag.ReferencedImageSequence, [][]*dicom.Element{referencedImage(src)}),
		)
	}
	elements = append(elements, src.inherited...)
	elements = append(elements, o.trialElements()...)

	groupItems := make([][]*dicom.Element, 0, len(o.Groups))
	for i := range o.Groups {
		groupItems = append(groupItems, groupItem(&o.Groups[i]))
	}
	elements = append(elements, sequence(tagAnnotationGroupSequence, groupItems...))

	sortElements(elements)
	return dicom.Dataset{Elements: elements}, nil
}

func referencedImage(src *SourceImage) []*dicom.Element {
	return []*dicom.Element{
		mustNewElement(tag.ReferencedSOPClassUID, []string{src.SOPClassUID}),
		mustNewElement(tag.ReferencedSOPInstanceUID, []string{src.SOPInstanceUID}),
	}
}

func (o *AnnotationObject) trialElements() []*dicom.Element {
	if o.Trial == nil {
		return nil
	}
	t := o.Trial
	elements := []*dicom.Element{
		mustNewTypedElement(tagClinicalTrialSponsorName, "LO", []string{t.SponsorName}),
		mustNewTypedElement(tagClinicalTrialProtocolID, "LO", []string{t.ProtocolID}),
		mustNewTypedElement(tagClinicalTrialProtocolName, "LO", []string{t.ProtocolName}),
		mustNewTypedElement(tagClinicalTrialCoordinatingCenterName, "LO", []string{t.CoordinatingCenter}),
		mustNewTypedElement(tagClinicalTrialSeriesID, "LO", []string{o.SessionTag()}),
	}
	if t.OtherProtocolID != "" {
		elements = append(elements, sequence(tagOtherClinicalTrialProtocolIDsSeq, []*dicom.Element{
			mustNewTypedElement(tagClinicalTrialProtocolID, "LO", []string{t.OtherProtocolID}),
			mustNewTypedElement(tagIssuerOfClinicalTrialProtocolID, "LO", []string{t.OtherProtocolIssuer}),
		}))
	}
	return elements
}

func groupItem(g *AnnotationGroup) []*dicom.Element {
	coords := make([]float32, 0, len(g.GraphicData)*len(g.GraphicData[0]))
	for _, data := range g.GraphicData {
		coords = append(coords, data...)
	}

	item := []*dicom.Element{
		mustNewTypedElement(tagAnnotationGroupNumber, "US", []int{g.Number}),
		mustNewTypedElement(tagAnnotationGroupUID, "UI", []string{g.UID}),
		mustNewTypedElement(tagAnnotationGroupLabel, "LO", []string{g.Label}),
		mustNewTypedElement(tagAnnotationGroupGenerationType, "CS", []string{"MANUAL"}),
		codeSequence(tagAnnotationPropertyCategoryCodeSeq, g.Category),
		codeSequence(tagAnnotationPropertyTypeCodeSeq, g.Type),
		mustNewTypedElement(tagNumberOfAnnotations, "UL", []int{len(g.GraphicData)}),
		mustNewTypedElement(tagAnnotationAppliesToAllOpticalPaths, "CS", []string{"YES"}),
		mustNewTypedElement(tagGraphicType, "CS", []string{g.Graphic.String()}),
		float32Element(tagPointCoordinatesData, coords),
		mustNewTypedElement(tagRecommendedDisplayCIELabValue, "US", rgbToDICOMLab(g.Color)),
	}
	if g.Description != "" {
		item = append(item, mustNewTypedElement(tagAnnotationGroupDescription, "LO", []string{g.Description}))
	}
	if len(g.Measurements) > 0 {
		measurements := make([][]*dicom.Element, 0, len(g.Measurements))
		for _, m := range g.Measurements {
			values := make([]float32, len(m.Values))
			for i, v := range m.Values {
				values[i] = float32(v)
			}
			measurements = append(measurements, []*dicom.Element{
				codeSequence(tagConceptNameCodeSequence, m.Name),
				codeSequence(tagMeasurementUnitsCodeSequence, m.Unit),
				sequence(tagMeasurementValuesSequence, []*dicom.Element{
					float32Element(tagFloatingPointValues, values),
				}),
			})
		}
		item = append(item, sequence(tagMeasurementsSequence, measurements...))
	}
	sortElements(item)
	return item
}
