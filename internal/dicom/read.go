package dicom

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/annforge/internal/ontology"
	"github.com/mrsinham/annforge/internal/projection"
)

// DecodedObject is an annotation object read back from disk.
type DecodedObject struct {
	Path string

	StudyInstanceUID    string
	SeriesInstanceUID   string
	SOPInstanceUID      string
	FrameOfReferenceUID string
	PatientID           string
	PatientName         string
	StudyID             string
	StudyDate           string
	StudyTime           string
	SeriesNumber        int
	InstanceNumber      int
	SeriesDescription   string
	ContentLabel        string
	// Session is the private session attribute ("rois", "consensus" or a
	// number), empty when absent.
	Session string

	ReferencedSOPInstanceUID string
	Coordinates              projection.CoordinateType
	Groups                   []AnnotationGroup
}

// Annotations returns the total number of annotations over all groups.
func (d *DecodedObject) Annotations() int {
	n := 0
	for i := range d.Groups {
		n += d.Groups[i].Len()
	}
	return n
}

// ReadAnnotationObject decodes the groups, graphic data and measurements of a
// Microscopy Bulk Simple Annotations file.
func ReadAnnotationObject(path string) (*DecodedObject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// The parser reads OF as text; hand the float payloads over as bytes.
	swapVR(data, otherFloatTags, vrOtherFloat, vrOtherByte)
	ds, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	elements := ds.Elements

	if sopClass := stringValue(elements, tag.SOPClassUID); sopClass != MicroscopyBulkSimpleAnnotationsStorage {
		return nil, fmt.Errorf("%s: SOP class %q is not Microscopy Bulk Simple Annotations", path, sopClass)
	}

	obj := &DecodedObject{
		Path:                path,
		StudyInstanceUID:    stringValue(elements, tag.StudyInstanceUID),
		SeriesInstanceUID:   stringValue(elements, tag.SeriesInstanceUID),
		SOPInstanceUID:      stringValue(elements, tag.SOPInstanceUID),
		FrameOfReferenceUID: stringValue(elements, tag.FrameOfReferenceUID),
		PatientID:           stringValue(elements, tag.PatientID),
		PatientName:         stringValue(elements, tag.PatientName),
		StudyID:             stringValue(elements, tag.StudyID),
		StudyDate:           stringValue(elements, tag.StudyDate),
		StudyTime:           stringValue(elements, tag.StudyTime),
		SeriesDescription:   stringValue(elements, tag.SeriesDescription),
		ContentLabel:        stringValue(elements, tagContentLabel),
	}
	if stringValue(elements, tagPrivateCreator) == privateCreatorName {
		obj.Session = stringValue(elements, tagPrivateSession)
	}
	if n, err := intValue(elements, tag.SeriesNumber); err == nil {
		obj.SeriesNumber = n
	}
	if n, err := intValue(elements, tag.InstanceNumber); err == nil {
		obj.InstanceNumber = n
	}
	for _, series := range items(elements, tag.ReferencedSeriesSequence) {
		for _, inst := range items(series, tag.ReferencedInstanceSequence) {
			obj.ReferencedSOPInstanceUID = stringValue(inst, tag.ReferencedSOPInstanceUID)
		}
	}

	obj.Coordinates, err = projection.ParseCoordinateType(stringValue(elements, tagAnnotationCoordinateType))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	for i, item := range items(elements, tagAnnotationGroupSequence) {
		g, err := decodeGroup(item, obj.Coordinates)
		if err != nil {
			return nil, fmt.Errorf("%s: annotation group %d: %w", path, i+1, err)
		}
		obj.Groups = append(obj.Groups, g)
	}
	return obj, nil
}

func decodeGroup(item []*dicom.Element, coords projection.CoordinateType) (AnnotationGroup, error) {
	g := AnnotationGroup{
		UID:         stringValue(item, tagAnnotationGroupUID),
		Label:       stringValue(item, tagAnnotationGroupLabel),
		Description: stringValue(item, tagAnnotationGroupDescription),
		Category:    decodeCode(item, tagAnnotationPropertyCategoryCodeSeq),
		Type:        decodeCode(item, tagAnnotationPropertyTypeCodeSeq),
	}
	var err error
	if g.Number, err = intValue(item, tagAnnotationGroupNumber); err != nil {
		return g, err
	}
	if g.Graphic, err = projection.ParseGraphicType(stringValue(item, tagGraphicType)); err != nil {
		return g, err
	}
	count, err := intValue(item, tagNumberOfAnnotations)
	if err != nil {
		return g, err
	}
	if lab, err := intValues(item, tagRecommendedDisplayCIELabValue); err == nil {
		g.Color, _ = dicomLabToRGB(lab)
	}

	stride := g.Graphic.PointsPerAnnotation() * coords.Dimensions()
	coordinates, err := float32Values(item, tagPointCoordinatesData, count*stride)
	if err != nil {
		return g, err
	}
	g.GraphicData = make([][]float32, count)
	for i := range g.GraphicData {
		g.GraphicData[i] = coordinates[i*stride : (i+1)*stride : (i+1)*stride]
	}

	for _, m := range items(item, tagMeasurementsSequence) {
		measurement := Measurement{
			Name: decodeCode(m, tagConceptNameCodeSequence),
			Unit: decodeCode(m, tagMeasurementUnitsCodeSequence),
		}
		for _, values := range items(m, tagMeasurementValuesSequence) {
			floats, err := float32Values(values, tagFloatingPointValues, count)
			if err != nil {
				return g, fmt.Errorf("measurement %s: %w", measurement.Name.Value, err)
			}
			measurement.Values = make([]float64, count)
			for i, v := range floats {
				measurement.Values[i] = float64(v)
			}
		}
		g.Measurements = append(g.Measurements, measurement)
	}
	return g, nil
}

func decodeCode(elements []*dicom.Element, t tag.Tag) ontology.Code {
	for _, item := range items(elements, t) {
		return ontology.Code{
			Value:   stringValue(item, tag.CodeValue),
			Scheme:  stringValue(item, tag.CodingSchemeDesignator),
			Meaning: strings.TrimSpace(stringValue(item, tag.CodeMeaning)),
		}
	}
	return ontology.Code{}
}
