package geometry

// Transform maps source-slide pixel coordinates onto the destination total
// pixel matrix. The only implementations are Translation and Affine.
type Transform interface {
	Apply(p Point) Point
	Inverse(p Point) Point
	Kind() string
	isTransform()
}

// Translation subtracts the crop origin applied during re-encoding.
type Translation struct {
	DX, DY float64
}

// Apply shifts p by the crop origin.
func (t Translation) Apply(p Point) Point {
	return Point{X: p.X - t.DX, Y: p.Y - t.DY}
}

// Inverse undoes Apply.
func (t Translation) Inverse(p Point) Point {
	return Point{X: p.X + t.DX, Y: p.Y + t.DY}
}

// Kind returns "translation".
func (t Translation) Kind() string { return "translation" }

func (Translation) isTransform() {}

// Affine removes the crop origin, then maps source pixels to the slide
// coordinate system and back into the destination pixel matrix.
type Affine struct {
	Crop   Point
	Source Frame
	Dest   Frame
}

// Apply maps a source pixel position to the destination pixel matrix.
func (a Affine) Apply(p Point) Point {
	cropped := Point{X: p.X - a.Crop.X, Y: p.Y - a.Crop.Y}
	return a.Dest.ReferenceToImage(a.Source.ImageToReference(cropped))
}

// Inverse maps a destination pixel position back to source-slide pixels.
func (a Affine) Inverse(p Point) Point {
	q := a.Source.ReferenceToImage(a.Dest.ImageToReference(p))
	return Point{X: q.X + a.Crop.X, Y: q.Y + a.Crop.Y}
}

// Kind returns "affine".
func (a Affine) Kind() string { return "affine" }

func (Affine) isTransform() {}
