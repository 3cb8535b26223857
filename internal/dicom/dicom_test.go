package dicom

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/mrsinham/annforge/internal/annotation"
	"github.com/mrsinham/annforge/internal/dicom/dicomtest"
	"github.com/mrsinham/annforge/internal/geometry"
	"github.com/mrsinham/annforge/internal/ontology"
	"github.com/mrsinham/annforge/internal/projection"
)

func loadTestSource(t *testing.T, withFrame bool) *SourceImage {
	t.Helper()
	dir := t.TempDir()
	dicomtest.WriteSlide(t, dir, dicomtest.Slide{Columns: 5000, Rows: 4000, WithFrame: withFrame, OriginX: 25, OriginY: 50})
	src, err := LoadSourceImage(dir)
	if err != nil {
		t.Fatalf("LoadSourceImage failed: %v", err)
	}
	return src
}

func TestLoadSourceImage_SelectsBaseLevel(t *testing.T) {
	dir := t.TempDir()
	dicomtest.WriteSlide(t, dir, dicomtest.Slide{FileName: "a_level1.dcm", Columns: 2500, Rows: 2000})
	base := dicomtest.WriteSlide(t, dir, dicomtest.Slide{FileName: "b_level0.dcm", Columns: 5000, Rows: 4000, WithFrame: true, OriginX: 25, OriginY: 50})
	dicomtest.WriteSlide(t, dir, dicomtest.Slide{FileName: "c_thumb.dcm", Flavor: "THUMBNAIL", Columns: 9000, Rows: 9000})
	dicomtest.WriteSlide(t, dir, dicomtest.Slide{FileName: "d_label.dcm", Flavor: "LABEL", Columns: 8000, Rows: 8000})

	src, err := LoadSourceImage(dir)
	if err != nil {
		t.Fatalf("LoadSourceImage failed: %v", err)
	}
	if src.Path != base {
		t.Errorf("selected %s, want %s", src.Path, base)
	}
	if src.Columns != 5000 || src.Rows != 4000 {
		t.Errorf("total pixel matrix = %dx%d, want 5000x4000", src.Columns, src.Rows)
	}
	if src.StudyInstanceUID != dicomtest.StudyInstanceUID || src.FrameOfReferenceUID != dicomtest.FrameOfReferenceUID {
		t.Errorf("unexpected identity %+v", src)
	}
	if src.ContainerIdentifier != "SLIDE-1" {
		t.Errorf("ContainerIdentifier = %q", src.ContainerIdentifier)
	}
	if src.Frame == nil {
		t.Fatal("expected a spatial reference")
	}
	if src.Frame.Origin.X != 25 || src.Frame.Origin.Y != 50 || src.Frame.RowSpacing != 0.00025 {
		t.Errorf("unexpected frame %+v", src.Frame)
	}
}

func TestLoadSourceImage_NoVolume(t *testing.T) {
	dir := t.TempDir()
	dicomtest.WriteSlide(t, dir, dicomtest.Slide{Flavor: "OVERVIEW", Columns: 100, Rows: 100})
	if _, err := LoadSourceImage(dir); err == nil {
		t.Error("expected an error when only an overview image exists")
	}
	if _, err := LoadSourceImage(t.TempDir()); err == nil {
		t.Error("expected an error for an empty directory")
	}
}

func TestLoadSourceImage_MalformedBaseLevel(t *testing.T) {
	dir := t.TempDir()
	dicomtest.WriteSlide(t, dir, dicomtest.Slide{FileName: "level0.dcm", Columns: 1000, Rows: 800, WithFrame: true, NoOrientation: true})
	dicomtest.WriteSlide(t, dir, dicomtest.Slide{FileName: "level1.dcm", Columns: 500, Rows: 400, WithFrame: true})

	src, err := LoadSourceImage(dir)
	if err == nil {
		t.Fatalf("LoadSourceImage selected %s, want a spatial reference error", src.Path)
	}
	if !strings.Contains(err.Error(), "level0.dcm") {
		t.Errorf("error %q does not name the base level", err)
	}
}

func TestLoadSourceImage_SkipsUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	base := dicomtest.WriteSlide(t, dir, dicomtest.Slide{Columns: 1000, Rows: 800, WithFrame: true})
	if err := os.WriteFile(filepath.Join(dir, "broken.dcm"), []byte("not a dicom file"), 0644); err != nil {
		t.Fatal(err)
	}

	src, err := LoadSourceImage(dir)
	if err != nil {
		t.Fatalf("LoadSourceImage failed: %v", err)
	}
	if src.Path != base || src.Frame == nil {
		t.Errorf("selected %s (frame %v), want %s", src.Path, src.Frame, base)
	}
}

func TestReadSourceImage_WithoutFrame(t *testing.T) {
	src := loadTestSource(t, false)
	if src.Frame != nil {
		t.Errorf("Frame = %+v, want nil", src.Frame)
	}
	dst := src.Destination()
	if dst.Columns != 5000 || dst.Rows != 4000 {
		t.Errorf("Destination() = %+v", dst)
	}
}

func cell(id int64, roi annotation.ROIID, label string) annotation.CellAnnotation {
	return annotation.CellAnnotation{
		ID:    id,
		ROI:   roi,
		Box:   annotation.BoxFromOrigin(float64(id)*10, float64(id)*20, 40, 40),
		Label: label,
	}
}

func projectCells(t *testing.T, p *projection.Projector, cells []annotation.CellAnnotation) [][]float32 {
	t.Helper()
	boxes := make([]annotation.BoundingBox, len(cells))
	for i, c := range cells {
		boxes[i] = c.Box
	}
	data, err := p.ProjectAll(boxes)
	if err != nil {
		t.Fatalf("ProjectAll failed: %v", err)
	}
	return data
}

func newProjector(t *testing.T, graphic projection.GraphicType) *projection.Projector {
	t.Helper()
	p, err := projection.NewProjector(geometry.Translation{DX: 100, DY: 200}, graphic, projection.Scoord, nil)
	if err != nil {
		t.Fatalf("NewProjector failed: %v", err)
	}
	return p
}

func TestBuildCellGroups_TechnicallyUnfit(t *testing.T) {
	cells := []annotation.CellAnnotation{
		cell(1, 7, "technically_unfit"),
		cell(2, annotation.NoROI, "technically_unfit"),
		cell(3, 7, "technically_unfit"),
	}
	groups, err := BuildCellGroups(cells, projectCells(t, newProjector(t, projection.Rectangle), cells), ontology.Default(), projection.Rectangle)
	if err != nil {
		t.Fatalf("BuildCellGroups failed: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}

	in, out := groups[0], groups[1]
	if in.Number != 1 || out.Number != 2 {
		t.Errorf("numbers = %d, %d", in.Number, out.Number)
	}
	if in.Len() != 2 || out.Len() != 1 {
		t.Errorf("sizes = %d, %d, want 2, 1", in.Len(), out.Len())
	}
	if refs := in.Measurement(ontology.ROIReference); len(refs) != 2 || refs[0] != 7 || refs[1] != 7 {
		t.Errorf("in-ROI references = %v, want [7 7]", refs)
	}
	if ids := in.Measurement(ontology.CellIdentifier); len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("in-ROI cell ids = %v, want [1 3]", ids)
	}
	if out.Measurement(ontology.ROIReference) != nil {
		t.Error("out-of-ROI group must not carry ROI references")
	}
	if ids := out.Measurement(ontology.CellIdentifier); len(ids) != 1 || ids[0] != 2 {
		t.Errorf("out-of-ROI cell ids = %v, want [2]", ids)
	}
	if in.UID == out.UID || in.UID == "" {
		t.Errorf("group UIDs must be fresh and distinct: %q %q", in.UID, out.UID)
	}
	if in.Type.Value != "BMD026" {
		t.Errorf("type code = %v", in.Type)
	}
}

func TestBuildCellGroups_Properties(t *testing.T) {
	labels := []string{"lymphocyte", "eosinophil", "plasma_cell", "basophil"}
	var cells []annotation.CellAnnotation
	for i := 0; i < 57; i++ {
		roi := annotation.NoROI
		if i%3 != 0 {
			roi = annotation.ROIID(i % 5)
		}
		// basophil cells are all inside a region of interest
		label := labels[i%len(labels)]
		if label == "basophil" && roi == annotation.NoROI {
			roi = 1
		}
		cells = append(cells, cell(int64(i+1), roi, label))
	}
	data := projectCells(t, newProjector(t, projection.Point), cells)

	groups, err := BuildCellGroups(cells, data, ontology.Default(), projection.Point)
	if err != nil {
		t.Fatalf("BuildCellGroups failed: %v", err)
	}
	if len(groups) > 2*len(labels) {
		t.Errorf("got %d groups for %d labels", len(groups), len(labels))
	}
	if len(groups) != 2*len(labels)-1 {
		t.Errorf("got %d groups, want %d", len(groups), 2*len(labels)-1)
	}

	total := 0
	prevLabel := ""
	for i, g := range groups {
		if g.Number != i+1 {
			t.Errorf("group %d has number %d", i, g.Number)
		}
		if g.Len() == 0 {
			t.Errorf("group %d is empty", g.Number)
		}
		if g.Label < prevLabel {
			t.Errorf("group %d label %q out of order", g.Number, g.Label)
		}
		prevLabel = g.Label
		if err := g.Validate(projection.Scoord); err != nil {
			t.Errorf("group %d invalid: %v", g.Number, err)
		}
		total += g.Len()
	}
	if total != len(cells) {
		t.Errorf("groups hold %d annotations, want %d", total, len(cells))
	}

	again, err := BuildCellGroups(cells, data, ontology.Default(), projection.Point)
	if err != nil {
		t.Fatalf("BuildCellGroups failed: %v", err)
	}
	for i := range groups {
		a, b := groups[i], again[i]
		if a.Number != b.Number || a.Label != b.Label || a.Len() != b.Len() {
			t.Fatalf("run 2 group %d = (%d %s %d), want (%d %s %d)", i, b.Number, b.Label, b.Len(), a.Number, a.Label, a.Len())
		}
		ids := a.Measurement(ontology.CellIdentifier)
		for j, id := range b.Measurement(ontology.CellIdentifier) {
			if ids[j] != id {
				t.Fatalf("run 2 group %d member %d = %v, want %v", i, j, id, ids[j])
			}
		}
	}
}

func TestBuildCellGroups_Errors(t *testing.T) {
	cells := []annotation.CellAnnotation{cell(1, 1, "lymphocite")}
	data := projectCells(t, newProjector(t, projection.Rectangle), cells)

	_, err := BuildCellGroups(cells, data, ontology.Default(), projection.Rectangle)
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("unknown label: got %v, want *EncodingError", err)
	}

	_, err = BuildCellGroups(cells, nil, ontology.Default(), projection.Rectangle)
	if !errors.As(err, &encErr) {
		t.Errorf("misaligned input: got %v, want *EncodingError", err)
	}
}

func TestAnnotationObject_Validate(t *testing.T) {
	src := loadTestSource(t, false)
	cells := []annotation.CellAnnotation{cell(1, 1, "lymphocyte"), cell(2, annotation.NoROI, "monocyte")}
	groups, err := BuildCellGroups(cells, projectCells(t, newProjector(t, projection.Rectangle), cells), ontology.Default(), projection.Rectangle)
	if err != nil {
		t.Fatalf("BuildCellGroups failed: %v", err)
	}

	base := func() *AnnotationObject {
		gs := make([]AnnotationGroup, len(groups))
		copy(gs, groups)
		return &AnnotationObject{
			Source: src, SeriesUID: "2.25.1", SOPInstanceUID: "2.25.2", InstanceNumber: 1,
			Session: annotation.SessionNumber(1), Coordinates: projection.Scoord, Groups: gs,
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("valid object rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(o *AnnotationObject)
	}{
		{"no groups", func(o *AnnotationObject) { o.Groups = nil }},
		{"gap in numbering", func(o *AnnotationObject) { o.Groups[1].Number = 3 }},
		{"misaligned measurement", func(o *AnnotationObject) {
			o.Groups[0].Measurements = []Measurement{{Name: ontology.CellIdentifier, Unit: ontology.NoUnits, Values: []float64{1, 2}}}
		}},
		{"wrong point count", func(o *AnnotationObject) { o.Groups[0].GraphicData = [][]float32{{1, 2}} }},
		{"empty group", func(o *AnnotationObject) {
			o.Groups[0].GraphicData = nil
			o.Groups[0].Measurements = nil
		}},
		{"duplicate uid", func(o *AnnotationObject) { o.Groups[1].UID = o.Groups[0].UID }},
		{"instance number", func(o *AnnotationObject) { o.InstanceNumber = 0 }},
		{"unrepresentable id", func(o *AnnotationObject) {
			o.Groups[0].Measurements = []Measurement{{Name: ontology.CellIdentifier, Unit: ontology.NoUnits, Values: []float64{1<<25 + 1}}}
		}},
		{"3D without frame of reference", func(o *AnnotationObject) {
			s := *o.Source
			s.FrameOfReferenceUID = ""
			o.Source = &s
			o.Coordinates = projection.Scoord3D
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := base()
			tc.mutate(o)
			err := o.Validate()
			var encErr *EncodingError
			if !errors.As(err, &encErr) {
				t.Errorf("got %v, want *EncodingError", err)
			}
		})
	}
}

func TestWriteReadAnnotationObject_RoundTrip(t *testing.T) {
	src := loadTestSource(t, true)
	p := newProjector(t, projection.Rectangle)
	cells := []annotation.CellAnnotation{
		cell(11, 7, "technically_unfit"),
		cell(12, annotation.NoROI, "technically_unfit"),
		cell(13, 7, "lymphocyte"),
		cell(14, 3, "technically_unfit"),
	}
	groups, err := BuildCellGroups(cells, projectCells(t, p, cells), ontology.Default(), projection.Rectangle)
	if err != nil {
		t.Fatalf("BuildCellGroups failed: %v", err)
	}
	obj := &AnnotationObject{
		Source:            src,
		SeriesUID:         "2.25.100",
		SOPInstanceUID:    "2.25.101",
		SeriesNumber:      33,
		InstanceNumber:    2,
		SeriesDescription: "cell annotations, session 1",
		Session:           annotation.SessionNumber(1),
		Coordinates:       projection.Scoord,
		Groups:            groups,
		Device:            DefaultDevice(),
		Trial:             &ClinicalTrial{SponsorName: "BMDeep", ProtocolID: "BMD", OtherProtocolID: "10.1000/xyz", OtherProtocolIssuer: "DOI"},
		ContentDate:       time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
	}

	path := filepath.Join(t.TempDir(), "slide", "slide_cells_ann_step_1.dcm")
	if err := WriteAnnotationObject(path, obj); err != nil {
		t.Fatalf("WriteAnnotationObject failed: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(raw, []byte{0x66, 0x00, 0x16, 0x00, 'O', 'F', 0, 0}) {
		t.Error("PointCoordinatesData is not encoded as OF")
	}
	if !bytes.Contains(raw, []byte{0x66, 0x00, 0x25, 0x01, 'O', 'F', 0, 0}) {
		t.Error("FloatingPointValues is not encoded as OF")
	}
	decoded, err := ReadAnnotationObject(path)
	if err != nil {
		t.Fatalf("ReadAnnotationObject failed: %v", err)
	}

	if decoded.SOPInstanceUID != obj.SOPInstanceUID || decoded.SeriesInstanceUID != obj.SeriesUID {
		t.Errorf("identity = %s / %s", decoded.SOPInstanceUID, decoded.SeriesInstanceUID)
	}
	if decoded.SeriesNumber != 33 || decoded.InstanceNumber != 2 {
		t.Errorf("numbers = %d / %d", decoded.SeriesNumber, decoded.InstanceNumber)
	}
	if decoded.Session != "1" {
		t.Errorf("Session = %q, want 1", decoded.Session)
	}
	if decoded.ReferencedSOPInstanceUID != src.SOPInstanceUID {
		t.Errorf("ReferencedSOPInstanceUID = %q, want %q", decoded.ReferencedSOPInstanceUID, src.SOPInstanceUID)
	}
	if decoded.PatientID != dicomtest.PatientID || decoded.StudyInstanceUID != dicomtest.StudyInstanceUID {
		t.Errorf("inherited attributes missing: %+v", decoded)
	}
	if decoded.Coordinates != projection.Scoord {
		t.Errorf("Coordinates = %v", decoded.Coordinates)
	}
	if len(decoded.Groups) != len(groups) {
		t.Fatalf("decoded %d groups, want %d", len(decoded.Groups), len(groups))
	}
	if decoded.Annotations() != len(cells) {
		t.Errorf("decoded %d annotations, want %d", decoded.Annotations(), len(cells))
	}

	boxes := make(map[int64]annotation.BoundingBox)
	for _, c := range cells {
		boxes[c.ID] = c.Box
	}
	for i, g := range decoded.Groups {
		want := groups[i]
		if g.Number != want.Number || g.UID != want.UID || g.Label != want.Label || g.Type != want.Type || g.Category != want.Category {
			t.Errorf("group %d = %+v, want %+v", i, g, want)
		}
		if g.Graphic != projection.Rectangle {
			t.Errorf("group %d graphic = %v", i, g.Graphic)
		}
		ids := g.Measurement(ontology.CellIdentifier)
		if len(ids) != g.Len() {
			t.Fatalf("group %d has %d ids for %d annotations", i, len(ids), g.Len())
		}
		for j, data := range g.GraphicData {
			box, err := p.Unproject(data)
			if err != nil {
				t.Fatalf("Unproject failed: %v", err)
			}
			if box != boxes[int64(ids[j])] {
				t.Errorf("cell %v box = %+v, want %+v", ids[j], box, boxes[int64(ids[j])])
			}
		}
		wantRefs := want.Measurement(ontology.ROIReference)
		gotRefs := g.Measurement(ontology.ROIReference)
		if len(wantRefs) != len(gotRefs) {
			t.Errorf("group %d ROI references = %v, want %v", i, gotRefs, wantRefs)
		}
		for j := range wantRefs {
			if gotRefs[j] != wantRefs[j] {
				t.Errorf("group %d ROI references = %v, want %v", i, gotRefs, wantRefs)
			}
		}
	}
}

func TestWriteReadAnnotationObject_ROIs3D(t *testing.T) {
	src := loadTestSource(t, true)
	p, err := projection.NewProjector(geometry.Translation{}, projection.Rectangle, projection.Scoord3D, src.Frame)
	if err != nil {
		t.Fatalf("NewProjector failed: %v", err)
	}
	rois := []annotation.ROIAnnotation{
		{ID: 7, Box: annotation.BoxFromOrigin(1000, 1000, 500, 500)},
		{ID: 8, Box: annotation.BoxFromOrigin(2000, 1500, 500, 500)},
	}
	data, err := p.ProjectAll([]annotation.BoundingBox{rois[0].Box, rois[1].Box})
	if err != nil {
		t.Fatalf("ProjectAll failed: %v", err)
	}
	group, err := BuildROIGroup(rois, data, ontology.Default(), projection.Rectangle)
	if err != nil {
		t.Fatalf("BuildROIGroup failed: %v", err)
	}
	obj := &AnnotationObject{
		Source: src, SeriesUID: "2.25.200", SOPInstanceUID: "2.25.201", SeriesNumber: 33, InstanceNumber: 1,
		SeriesDescription: "regions of interest", ROI: true, Coordinates: projection.Scoord3D,
		Groups: []AnnotationGroup{group}, Device: DefaultDevice(),
	}
	path := filepath.Join(t.TempDir(), "slide_rois.dcm")
	if err := WriteAnnotationObject(path, obj); err != nil {
		t.Fatalf("WriteAnnotationObject failed: %v", err)
	}
	decoded, err := ReadAnnotationObject(path)
	if err != nil {
		t.Fatalf("ReadAnnotationObject failed: %v", err)
	}
	if decoded.Session != "rois" || decoded.ContentLabel != "ROIS" {
		t.Errorf("Session = %q, ContentLabel = %q", decoded.Session, decoded.ContentLabel)
	}
	if decoded.Coordinates != projection.Scoord3D || decoded.FrameOfReferenceUID != dicomtest.FrameOfReferenceUID {
		t.Errorf("Coordinates = %v, frame of reference = %q", decoded.Coordinates, decoded.FrameOfReferenceUID)
	}
	if len(decoded.Groups) != 1 || decoded.Groups[0].Label != ontology.ROILabel {
		t.Fatalf("unexpected groups %+v", decoded.Groups)
	}
	ids := decoded.Groups[0].Measurement(ontology.ROIIdentifier)
	if len(ids) != 2 || ids[0] != 7 || ids[1] != 8 {
		t.Errorf("ROI ids = %v, want [7 8]", ids)
	}
	for i, d := range decoded.Groups[0].GraphicData {
		if len(d) != 12 {
			t.Fatalf("roi %d has %d coordinates, want 12", i, len(d))
		}
		for j := range d {
			if d[j] != data[i][j] {
				t.Errorf("roi %d coordinate %d = %v, want %v", i, j, d[j], data[i][j])
			}
		}
	}
}

func TestFloat32Element_EncodedAsOF(t *testing.T) {
	values := []float32{0, 60, -1.5, 16777216}
	ds := dicom.Dataset{Elements: []*dicom.Element{
		mustNewElement(tag.TransferSyntaxUID, []string{explicitVRLittleEndian}),
		mustNewElement(tag.MediaStorageSOPClassUID, []string{MicroscopyBulkSimpleAnnotationsStorage}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{"1.2.3"}),
		sequence(tagAnnotationGroupSequence, []*dicom.Element{
			float32Element(tagPointCoordinatesData, values),
		}),
	}}
	var buf bytes.Buffer
	if err := dicom.Write(&buf, ds, dicom.SkipVRVerification(), dicom.SkipValueTypeVerification()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data := buf.Bytes()

	if n := swapVR(data, otherFloatTags, vrOtherByte, vrOtherFloat); n != 1 {
		t.Fatalf("swapVR changed %d elements, want 1", n)
	}
	header := []byte{0x66, 0x00, 0x16, 0x00, 'O', 'F', 0, 0, 16, 0, 0, 0}
	if !bytes.Contains(data, header) {
		t.Fatal("encoded stream has no OF header for PointCoordinatesData")
	}

	if n := swapVR(data, otherFloatTags, vrOtherFloat, vrOtherByte); n != 1 {
		t.Fatalf("swapVR back changed %d elements, want 1", n)
	}
	parsed, err := dicom.Parse(bytes.NewReader(data), int64(len(data)), nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	groups := items(parsed.Elements, tagAnnotationGroupSequence)
	if len(groups) != 1 {
		t.Fatalf("got %d group items, want 1", len(groups))
	}
	got, err := float32Values(groups[0], tagPointCoordinatesData, len(values))
	if err != nil {
		t.Fatalf("float32Values failed: %v", err)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], values[i])
		}
	}
}

func TestBuildROIGroup_Empty(t *testing.T) {
	_, err := BuildROIGroup(nil, nil, ontology.Default(), projection.Rectangle)
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Errorf("got %v, want *EncodingError", err)
	}
}

func TestExportFileSet(t *testing.T) {
	src := loadTestSource(t, false)
	p := newProjector(t, projection.Point)
	workDir := t.TempDir()

	var files []string
	for i, session := range []annotation.Session{annotation.SessionNumber(1), annotation.Consensus} {
		cells := []annotation.CellAnnotation{cell(1, 1, "lymphocyte"), cell(2, annotation.NoROI, "lymphocyte")}
		groups, err := BuildCellGroups(cells, projectCells(t, p, cells), ontology.Default(), projection.Point)
		if err != nil {
			t.Fatalf("BuildCellGroups failed: %v", err)
		}
		obj := &AnnotationObject{
			Source: src, SeriesUID: "2.25.300", SOPInstanceUID: fmt.Sprintf("2.25.30%d", i+1), SeriesNumber: 33,
			InstanceNumber: 2 - i, Session: session, Coordinates: projection.Scoord, Groups: groups, Device: DefaultDevice(),
		}
		path := filepath.Join(workDir, "obj"+session.String()+".dcm")
		if err := WriteAnnotationObject(path, obj); err != nil {
			t.Fatalf("WriteAnnotationObject failed: %v", err)
		}
		files = append(files, path)
	}

	outDir := filepath.Join(t.TempDir(), "fileset")
	copied, err := ExportFileSet(outDir, files)
	if err != nil {
		t.Fatalf("ExportFileSet failed: %v", err)
	}
	if len(copied) != 2 {
		t.Fatalf("copied %d files, want 2", len(copied))
	}
	if _, err := os.Stat(filepath.Join(outDir, "PT000000", "ST000000", "SE000000", "IM000001")); err != nil {
		t.Errorf("expected first instance in hierarchy: %v", err)
	}
	// Instance 1 (consensus) sorts first.
	first, err := ReadAnnotationObject(copied[0])
	if err != nil {
		t.Fatalf("ReadAnnotationObject failed: %v", err)
	}
	if first.InstanceNumber != 1 {
		t.Errorf("first exported instance number = %d, want 1", first.InstanceNumber)
	}

	ds, err := dicom.ParseFile(filepath.Join(outDir, "DICOMDIR"), nil)
	if err != nil {
		t.Fatalf("parse DICOMDIR: %v", err)
	}
	var types []string
	for _, item := range items(ds.Elements, tag.DirectoryRecordSequence) {
		types = append(types, stringValue(item, tag.DirectoryRecordType))
	}
	want := []string{"PATIENT", "STUDY", "SERIES", "ANNOTATION", "ANNOTATION"}
	if len(types) != len(want) {
		t.Fatalf("record types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("record types = %v, want %v", types, want)
			break
		}
	}
	first32, err := intValue(ds.Elements, tag.OffsetOfTheFirstDirectoryRecordOfTheRootDirectoryEntity)
	if err != nil || first32 == 0 {
		t.Errorf("root offset = %d, %v; want non-zero", first32, err)
	}
}

func TestLinkRecords(t *testing.T) {
	levels := []int{levelPatient, levelStudy, levelSeries, levelInstance, levelInstance, levelSeries, levelInstance, levelPatient}
	starts := []uint32{100, 200, 300, 400, 500, 600, 700, 800}
	next, lower := linkRecords(levels, starts)

	wantNext := []uint32{800, 0, 600, 500, 0, 0, 0, 0}
	wantLower := []uint32{200, 300, 400, 0, 0, 700, 0, 0}
	for i := range levels {
		if next[i] != wantNext[i] || lower[i] != wantLower[i] {
			t.Errorf("record %d: next=%d lower=%d, want next=%d lower=%d", i, next[i], lower[i], wantNext[i], wantLower[i])
		}
	}
}

func TestCIELabRoundTrip(t *testing.T) {
	for _, c := range []color.RGBA{
		{R: 255, G: 215, A: 255},
		{R: 31, G: 119, B: 180, A: 255},
		{R: 64, G: 64, B: 64, A: 255},
		{R: 255, G: 255, B: 255, A: 255},
	} {
		got, ok := dicomLabToRGB(rgbToDICOMLab(c))
		if !ok {
			t.Fatal("dicomLabToRGB rejected a triplet")
		}
		if diff(got.R, c.R) > 1 || diff(got.G, c.G) > 1 || diff(got.B, c.B) > 1 {
			t.Errorf("round trip of %v = %v", c, got)
		}
	}
	white := rgbToDICOMLab(color.RGBA{R: 255, G: 255, B: 255, A: 255})
	if white[0] != 65535 {
		t.Errorf("white L* = %d, want 65535", white[0])
	}
}

func diff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
