package dicom

import (
	"image/color"
	"math"
)

// D65 reference white.
const (
	whiteX = 0.95047
	whiteY = 1.0
	whiteZ = 1.08883
)

// rgbToDICOMLab converts an sRGB color to the scaled CIELab triplet of
// RecommendedDisplayCIELabValue: L* in [0,100] and a*, b* in [-128,127]
// mapped onto 0..65535.
func rgbToDICOMLab(c color.RGBA) []int {
	r, g, b := linearize(c.R), linearize(c.G), linearize(c.B)
	x := (0.4124564*r + 0.3575761*g + 0.1804375*b) / whiteX
	y := (0.2126729*r + 0.7151522*g + 0.0721750*b) / whiteY
	z := (0.0193339*r + 0.1191920*g + 0.9503041*b) / whiteZ

	fx, fy, fz := labF(x), labF(y), labF(z)
	l := 116*fy - 16
	a := 500 * (fx - fy)
	bb := 200 * (fy - fz)

	return []int{
		scaleLab(l, 0, 100),
		scaleLab(a, -128, 127),
		scaleLab(bb, -128, 127),
	}
}

// dicomLabToRGB is the inverse of rgbToDICOMLab.
func dicomLabToRGB(lab []int) (color.RGBA, bool) {
	if len(lab) != 3 {
		return color.RGBA{}, false
	}
	l := unscaleLab(lab[0], 0, 100)
	a := unscaleLab(lab[1], -128, 127)
	bb := unscaleLab(lab[2], -128, 127)

	fy := (l + 16) / 116
	fx := fy + a/500
	fz := fy - bb/200
	x, y, z := labFInv(fx)*whiteX, labFInv(fy)*whiteY, labFInv(fz)*whiteZ

	r := 3.2404542*x - 1.5371385*y - 0.4985314*z
	g := -0.9692660*x + 1.8760108*y + 0.0415560*z
	b := 0.0556434*x - 0.2040259*y + 1.0572252*z
	return color.RGBA{R: delinearize(r), G: delinearize(g), B: delinearize(b), A: 255}, true
}

func linearize(v uint8) float64 {
	c := float64(v) / 255
	if c <= 0.04045 {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

func delinearize(c float64) uint8 {
	if c <= 0.0031308 {
		c *= 12.92
	} else {
		c = 1.055*math.Pow(c, 1/2.4) - 0.055
	}
	return uint8(math.Round(math.Max(0, math.Min(1, c)) * 255))
}

func labF(t float64) float64 {
	if t > 216.0/24389.0 {
		return math.Cbrt(t)
	}
	return (24389.0/27.0*t + 16) / 116
}

func labFInv(t float64) float64 {
	if t3 := t * t * t; t3 > 216.0/24389.0 {
		return t3
	}
	return (116*t - 16) * 27.0 / 24389.0
}

func scaleLab(v, lo, hi float64) int {
	v = math.Max(lo, math.Min(hi, v))
	return int(math.Round((v - lo) / (hi - lo) * 65535))
}

func unscaleLab(v int, lo, hi float64) float64 {
	return lo + float64(v)/65535*(hi-lo)
}
