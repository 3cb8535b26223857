// Package preview renders a quick-look PNG of an annotation object: every
// annotation drawn in its group color on a white canvas, with a legend.
package preview

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mrsinham/annforge/internal/dicom"
	"github.com/mrsinham/annforge/internal/geometry"
)

// Options control the rendering.
type Options struct {
	// MaxSize bounds the longer side of the image in pixels. Defaults to 1024.
	MaxSize int
	// Frame maps 3D graphic data back to pixels.
	Frame *geometry.Frame
	// Title is drawn enlarged above the legend when set.
	Title string
}

const (
	margin     = 16
	lineHeight = 15
	pointSize  = 3
)

var (
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
)

// Render draws obj. The annotation bounding box is scaled to fit
// opts.MaxSize.
func Render(obj *dicom.DecodedObject, opts Options) (*image.RGBA, error) {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 1024
	}
	if len(obj.Groups) == 0 {
		return nil, fmt.Errorf("%s: no annotation groups to render", obj.Path)
	}

	groups := make([][][]geometry.Point, len(obj.Groups))
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := range obj.Groups {
		pts, err := obj.Groups[i].Points(obj.Coordinates, opts.Frame)
		if err != nil {
			return nil, err
		}
		groups[i] = pts
		for _, ann := range pts {
			for _, p := range ann {
				minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
				minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
			}
		}
	}

	spanX, spanY := math.Max(maxX-minX, 1), math.Max(maxY-minY, 1)
	scale := float64(opts.MaxSize-2*margin) / math.Max(spanX, spanY)
	width := int(math.Ceil(spanX*scale)) + 2*margin
	height := int(math.Ceil(spanY*scale)) + 2*margin

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)

	toPixel := func(p geometry.Point) image.Point {
		return image.Point{
			X: margin + int(math.Round((p.X-minX)*scale)),
			Y: margin + int(math.Round((p.Y-minY)*scale)),
		}
	}
	for i := range obj.Groups {
		c := obj.Groups[i].Color
		c.A = 255
		for _, ann := range groups[i] {
			if len(ann) == 1 {
				fillSquare(img, toPixel(ann[0]), pointSize, c)
				continue
			}
			for j := range ann {
				drawLine(img, toPixel(ann[j]), toPixel(ann[(j+1)%len(ann)]), c)
			}
		}
	}

	y := margin
	if opts.Title != "" {
		y += drawScaledText(img, opts.Title, margin, y, 2)
	}
	for i := range obj.Groups {
		g := &obj.Groups[i]
		c := g.Color
		c.A = 255
		drawOutlinedText(img, fmt.Sprintf("%d %s (%d)", g.Number, g.Label, g.Len()), margin, y+lineHeight-2, c)
		y += lineHeight
	}
	return img, nil
}

// WritePNG encodes img to path, creating the parent directory.
func WritePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode png: %w", err)
	}
	return f.Close()
}

func fillSquare(img *image.RGBA, center image.Point, half int, c color.RGBA) {
	r := image.Rect(center.X-half, center.Y-half, center.X+half+1, center.Y+half+1)
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

// drawLine plots a one pixel line with Bresenham's algorithm.
func drawLine(img *image.RGBA, a, b image.Point, c color.RGBA) {
	dx, dy := abs(b.X-a.X), -abs(b.Y-a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	for {
		if (image.Point{X: a.X, Y: a.Y}).In(img.Bounds()) {
			img.SetRGBA(a.X, a.Y, c)
		}
		if a == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			a.X += sx
		}
		if e2 <= dx {
			e += dx
			a.Y += sy
		}
	}
}

// drawOutlinedText draws text with its baseline at y and a one pixel black
// outline.
func drawOutlinedText(img *image.RGBA, text string, x, y int, c color.RGBA) {
	for _, off := range []image.Point{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
		drawText(img, text, x+off.X, y+off.Y, black)
	}
	drawText(img, text, x, y, c)
}

func drawText(dst draw.Image, text string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

// drawScaledText renders text at base size, scales it by factor and draws it
// with its top-left corner at (x, y). It returns the height used.
func drawScaledText(img *image.RGBA, text string, x, y, factor int) int {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	h := face.Metrics().Height.Ceil()
	base := image.NewRGBA(image.Rect(0, 0, w, h))
	drawText(base, text, 0, face.Metrics().Ascent.Ceil(), black)

	dst := image.Rect(x, y, x+w*factor, y+h*factor)
	draw.NearestNeighbor.Scale(img, dst, base, base.Bounds(), draw.Over, nil)
	return h*factor + 4
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
