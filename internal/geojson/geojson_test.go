package geojson

import (
	"bytes"
	"encoding/json"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mrsinham/annforge/internal/dicom"
	"github.com/mrsinham/annforge/internal/geometry"
	"github.com/mrsinham/annforge/internal/ontology"
	"github.com/mrsinham/annforge/internal/projection"
)

func rectangleObject() *dicom.DecodedObject {
	return &dicom.DecodedObject{
		Path:        "slide_cells_ann_step_1.dcm",
		Coordinates: projection.Scoord,
		Groups: []dicom.AnnotationGroup{{
			Number:      1,
			UID:         "2.25.7",
			Label:       "lymphocyte",
			Color:       color.RGBA{R: 255, G: 0, B: 16, A: 255},
			Graphic:     projection.Rectangle,
			GraphicData: [][]float32{{50, 60, 90, 60, 90, 100, 50, 100}},
			Measurements: []dicom.Measurement{
				{Name: ontology.CellIdentifier, Unit: ontology.NoUnits, Values: []float64{42}},
			},
		}},
	}
}

func TestFromObject_Rectangles(t *testing.T) {
	fc, err := FromObject(rectangleObject(), nil)
	if err != nil {
		t.Fatalf("FromObject() error = %v", err)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("got %d features, want 1", len(fc.Features))
	}
	f := fc.Features[0]
	if f.Geometry.Type != "MultiPolygon" {
		t.Fatalf("geometry type = %s", f.Geometry.Type)
	}
	polygons := f.Geometry.Coordinates.([][][][2]float64)
	ring := polygons[0][0]
	if len(ring) != 5 {
		t.Fatalf("ring has %d vertices, want 5 (closed)", len(ring))
	}
	if ring[0] != ring[4] || ring[0] != [2]float64{50, 60} || ring[2] != [2]float64{90, 100} {
		t.Errorf("ring = %v", ring)
	}
	if f.Properties["name"] != "lymphocyte" || f.Properties["color"] != "#ff0010" {
		t.Errorf("properties = %v", f.Properties)
	}
	if ids, ok := f.Properties["cell_ids"].([]float64); !ok || ids[0] != 42 {
		t.Errorf("cell_ids = %v", f.Properties["cell_ids"])
	}
}

func TestFromObject_Points3D(t *testing.T) {
	frame, err := geometry.NewFrame(geometry.Point3{X: 25, Y: 50}, []float64{0, -1, 0, -1, 0, 0}, []float64{0.0005, 0.0005})
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	want := geometry.Point{X: 120, Y: 40}
	ref := frame.ImageToReference(want)

	obj := &dicom.DecodedObject{
		Coordinates: projection.Scoord3D,
		Groups: []dicom.AnnotationGroup{{
			Number:      1,
			UID:         "2.25.8",
			Label:       "erythroblast",
			Graphic:     projection.Point,
			GraphicData: [][]float32{{float32(ref.X), float32(ref.Y), float32(ref.Z)}},
		}},
	}
	if _, err := FromObject(obj, nil); err == nil {
		t.Fatal("expected error without a frame")
	}
	fc, err := FromObject(obj, frame)
	if err != nil {
		t.Fatalf("FromObject() error = %v", err)
	}
	pts := fc.Features[0].Geometry.Coordinates.([][2]float64)
	if len(pts) != 1 {
		t.Fatalf("got %d points", len(pts))
	}
	// float32 storage of millimetre coordinates loses sub-pixel precision
	if dx, dy := pts[0][0]-want.X, pts[0][1]-want.Y; dx*dx+dy*dy > 0.25 {
		t.Errorf("point = %v, want %v", pts[0], want)
	}
}

func TestFromObject_BadGraphicData(t *testing.T) {
	obj := rectangleObject()
	obj.Groups[0].GraphicData = [][]float32{{1, 2, 3}}
	if _, err := FromObject(obj, nil); err == nil || !strings.Contains(err.Error(), "group 1") {
		t.Fatalf("expected group error, got %v", err)
	}
}

func TestWrite(t *testing.T) {
	fc, err := FromObject(rectangleObject(), nil)
	if err != nil {
		t.Fatalf("FromObject() error = %v", err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, fc); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	var decoded struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string          `json:"type"`
				Coordinates [][][][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "FeatureCollection" || len(decoded.Features[0].Geometry.Coordinates[0][0]) != 5 {
		t.Errorf("decoded = %+v", decoded)
	}

	path := filepath.Join(t.TempDir(), "out.geojson")
	if err := WriteFile(path, fc); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}
