package projection

import (
	"fmt"
	"math"

	"github.com/mrsinham/annforge/internal/annotation"
	"github.com/mrsinham/annforge/internal/geometry"
)

// Projector converts bounding boxes into graphic data for one slide.
type Projector struct {
	transform geometry.Transform
	graphic   GraphicType
	coords    CoordinateType
	frame     *geometry.Frame
}

// NewProjector validates the combination of transform, primitive and
// coordinate type. SCOORD3D needs the destination frame.
func NewProjector(transform geometry.Transform, graphic GraphicType, coords CoordinateType, frame *geometry.Frame) (*Projector, error) {
	if transform == nil {
		return nil, &Error{Op: "new projector", Err: fmt.Errorf("no geometry transform")}
	}
	if graphic.PointsPerAnnotation() == 0 {
		return nil, &Error{Op: "new projector", Err: fmt.Errorf("graphic type %s not supported", graphic)}
	}
	switch coords {
	case Scoord:
	case Scoord3D:
		if frame == nil {
			return nil, &Error{Op: "new projector", Err: fmt.Errorf("SCOORD3D requires the image's spatial reference")}
		}
	default:
		return nil, &Error{Op: "new projector", Err: fmt.Errorf("coordinate type %s not supported", coords)}
	}
	return &Projector{transform: transform, graphic: graphic, coords: coords, frame: frame}, nil
}

// Graphic returns the primitive in force.
func (p *Projector) Graphic() GraphicType { return p.graphic }

// Coordinates returns the coordinate type in force.
func (p *Projector) Coordinates() CoordinateType { return p.coords }

// Project returns the flat graphic data of one box: RECTANGLE gives the
// top-left, top-right, bottom-right and bottom-left corners, POINT gives the
// truncated center.
func (p *Projector) Project(box annotation.BoundingBox) ([]float32, error) {
	var points []geometry.Point
	switch p.graphic {
	case Rectangle:
		points = []geometry.Point{
			{X: box.XMin, Y: box.YMin},
			{X: box.XMax, Y: box.YMin},
			{X: box.XMax, Y: box.YMax},
			{X: box.XMin, Y: box.YMax},
		}
	case Point:
		points = []geometry.Point{{
			X: box.XMin + math.Floor((box.XMax-box.XMin)/2),
			Y: box.YMin + math.Floor((box.YMax-box.YMin)/2),
		}}
	default:
		return nil, &Error{Op: "project", Err: fmt.Errorf("graphic type %s not supported", p.graphic)}
	}

	data := make([]float32, 0, len(points)*p.coords.Dimensions())
	for _, pt := range points {
		q := p.transform.Apply(pt)
		if p.coords == Scoord3D {
			r := p.frame.ImageToReference(q)
			data = append(data, float32(r.X), float32(r.Y), float32(r.Z))
			continue
		}
		data = append(data, float32(q.X), float32(q.Y))
	}
	return data, nil
}

// ProjectAll projects every box, in order.
func (p *Projector) ProjectAll(boxes []annotation.BoundingBox) ([][]float32, error) {
	result := make([][]float32, len(boxes))
	for i, box := range boxes {
		data, err := p.Project(box)
		if err != nil {
			return nil, err
		}
		result[i] = data
	}
	return result, nil
}

// UnprojectPoints maps graphic data back into source-slide pixel coordinates.
func (p *Projector) UnprojectPoints(data []float32) ([]geometry.Point, error) {
	dims := p.coords.Dimensions()
	if len(data) == 0 || len(data)%dims != 0 {
		return nil, &Error{Op: "unproject", Err: fmt.Errorf("graphic data length %d is not a multiple of %d", len(data), dims)}
	}
	points := make([]geometry.Point, 0, len(data)/dims)
	for i := 0; i < len(data); i += dims {
		q := geometry.Point{X: float64(data[i]), Y: float64(data[i+1])}
		if p.coords == Scoord3D {
			q = p.frame.ReferenceToImage(geometry.Point3{X: float64(data[i]), Y: float64(data[i+1]), Z: float64(data[i+2])})
		}
		points = append(points, p.transform.Inverse(q))
	}
	return points, nil
}

// Unproject recovers the source bounding box of RECTANGLE graphic data.
func (p *Projector) Unproject(data []float32) (annotation.BoundingBox, error) {
	if p.graphic != Rectangle {
		return annotation.BoundingBox{}, &Error{Op: "unproject", Err: fmt.Errorf("bounding boxes can only be recovered from RECTANGLE data")}
	}
	points, err := p.UnprojectPoints(data)
	if err != nil {
		return annotation.BoundingBox{}, err
	}
	if len(points) != 4 {
		return annotation.BoundingBox{}, &Error{Op: "unproject", Err: fmt.Errorf("rectangle has %d points, want 4", len(points))}
	}
	return BoundsOf(points), nil
}

// BoundsOf returns the axis-aligned bounds of points.
func BoundsOf(points []geometry.Point) annotation.BoundingBox {
	box := annotation.BoundingBox{
		XMin: math.Inf(1), YMin: math.Inf(1),
		XMax: math.Inf(-1), YMax: math.Inf(-1),
	}
	for _, pt := range points {
		box.XMin = math.Min(box.XMin, pt.X)
		box.YMin = math.Min(box.YMin, pt.Y)
		box.XMax = math.Max(box.XMax, pt.X)
		box.YMax = math.Max(box.YMax, pt.Y)
	}
	return box
}
