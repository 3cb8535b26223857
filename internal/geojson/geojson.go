// Package geojson exports annotation objects as GeoJSON feature collections
// in total pixel matrix coordinates, one feature per annotation group.
package geojson

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mrsinham/annforge/internal/dicom"
	"github.com/mrsinham/annforge/internal/geometry"
	"github.com/mrsinham/annforge/internal/ontology"
	"github.com/mrsinham/annforge/internal/projection"
)

// FeatureCollection is a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON Feature.
type Feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   Geometry       `json:"geometry"`
}

// Geometry is a MultiPolygon (rectangles) or MultiPoint (points).
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// FromObject converts every group of obj. Objects with 3D coordinates need
// the frame of the referenced image to map points back to pixels.
func FromObject(obj *dicom.DecodedObject, frame *geometry.Frame) (*FeatureCollection, error) {
	if obj.Coordinates == projection.Scoord3D && frame == nil {
		return nil, fmt.Errorf("%s: 3D coordinates need the frame of the referenced image", obj.Path)
	}

	fc := &FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(obj.Groups))}
	for i := range obj.Groups {
		g := &obj.Groups[i]
		geom, err := groupGeometry(g, obj.Coordinates, frame)
		if err != nil {
			return nil, err
		}
		props := map[string]any{
			"name":         g.Label,
			"group_number": g.Number,
			"group_uid":    g.UID,
			"category":     g.Category.Meaning,
			"type":         g.Type.Meaning,
			"color":        fmt.Sprintf("#%02x%02x%02x", g.Color.R, g.Color.G, g.Color.B),
			"count":        g.Len(),
		}
		for _, m := range []struct {
			key  string
			code ontology.Code
		}{
			{"cell_ids", ontology.CellIdentifier},
			{"roi_ids", ontology.ROIIdentifier},
			{"roi_refs", ontology.ROIReference},
		} {
			if values := g.Measurement(m.code); values != nil {
				props[m.key] = values
			}
		}
		fc.Features = append(fc.Features, Feature{Type: "Feature", Properties: props, Geometry: geom})
	}
	return fc, nil
}

func groupGeometry(g *dicom.AnnotationGroup, coords projection.CoordinateType, frame *geometry.Frame) (Geometry, error) {
	annotations, err := g.Points(coords, frame)
	if err != nil {
		return Geometry{}, err
	}
	switch g.Graphic {
	case projection.Rectangle:
		polygons := make([][][][2]float64, 0, len(annotations))
		for _, pts := range annotations {
			// rings are closed by repeating the first vertex
			ring := make([][2]float64, 0, len(pts)+1)
			for _, p := range pts {
				ring = append(ring, [2]float64{p.X, p.Y})
			}
			ring = append(ring, ring[0])
			polygons = append(polygons, [][][2]float64{ring})
		}
		return Geometry{Type: "MultiPolygon", Coordinates: polygons}, nil
	case projection.Point:
		pts := make([][2]float64, 0, len(annotations))
		for _, ann := range annotations {
			for _, p := range ann {
				pts = append(pts, [2]float64{p.X, p.Y})
			}
		}
		return Geometry{Type: "MultiPoint", Coordinates: pts}, nil
	default:
		return Geometry{}, fmt.Errorf("graphic type %s not supported", g.Graphic)
	}
}

// Write encodes fc to w.
func Write(w io.Writer, fc *FeatureCollection) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(fc); err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	return nil
}

// WriteFile encodes fc to path.
func WriteFile(path string, fc *FeatureCollection) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Write(f, fc); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
