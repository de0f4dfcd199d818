// Package colorx provides pure color and unit conversions used by the sync core.
package colorx

import "math"

// Clamp restricts v to the [min, max] range.
func Clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ClampF restricts v to the [min, max] range.
func ClampF(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// NormalizeHue maps an angle in degrees to [0, 360).
func NormalizeHue(h float64) float64 {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// KelvinToMired converts a color temperature in Kelvin to mired.
func KelvinToMired(kelvin float64) float64 {
	return 1e6 / kelvin
}

// MiredToKelvin converts a color temperature in mired to Kelvin.
func MiredToKelvin(mired float64) float64 {
	return 1e6 / mired
}

// RGBToHSB converts 8-bit RGB to hue [0,360), saturation [0,100] and
// brightness [0,100].
func RGBToHSB(r, g, b uint8) (h, s, v float64) {
	rf := float64(r) / 255
	gf := float64(g) / 255
	bf := float64(b) / 255

	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min

	v = max * 100

	if max == 0 {
		return 0, 0, 0
	}
	s = delta / max * 100

	if delta == 0 {
		return 0, s, v
	}

	switch max {
	case rf:
		h = math.Mod((gf-bf)/delta, 6)
	case gf:
		h = (bf-rf)/delta + 2
	default:
		h = (rf-gf)/delta + 4
	}
	h = NormalizeHue(h * 60)

	return h, s, v
}

// HSBToRGB converts hue [0,360), saturation [0,100] and brightness [0,100]
// to 8-bit RGB.
func HSBToRGB(h, s, v float64) (r, g, b uint8) {
	h = NormalizeHue(h)
	s = ClampF(s, 0, 100) / 100
	v = ClampF(v, 0, 100) / 100

	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c

	var rf, gf, bf float64
	switch {
	case h < 60:
		rf, gf, bf = c, x, 0
	case h < 120:
		rf, gf, bf = x, c, 0
	case h < 180:
		rf, gf, bf = 0, c, x
	case h < 240:
		rf, gf, bf = 0, x, c
	case h < 300:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}

	r = uint8(math.Round((rf + m) * 255))
	g = uint8(math.Round((gf + m) * 255))
	b = uint8(math.Round((bf + m) * 255))
	return r, g, b
}

// XYToRGB converts CIE xy chromaticity plus brightness [0,1] to 8-bit sRGB.
// Out-of-gamut components are scaled back into range rather than truncated.
func XYToRGB(x, y, bri float64) (r, g, b uint8) {
	if y == 0 {
		return 0, 0, 0
	}

	// xyY -> XYZ
	yy := bri
	xx := (yy / y) * x
	zz := (yy / y) * (1 - x - y)

	// XYZ -> linear sRGB (D65)
	rf := xx*3.2406 + yy*-1.5372 + zz*-0.4986
	gf := xx*-0.9689 + yy*1.8758 + zz*0.0415
	bf := xx*0.0557 + yy*-0.2040 + zz*1.0570

	// Scale down if any component exceeds the gamut
	max := math.Max(rf, math.Max(gf, bf))
	if max > 1 {
		rf /= max
		gf /= max
		bf /= max
	}

	rf = gammaCorrect(math.Max(rf, 0))
	gf = gammaCorrect(math.Max(gf, 0))
	bf = gammaCorrect(math.Max(bf, 0))

	r = uint8(math.Round(ClampF(rf, 0, 1) * 255))
	g = uint8(math.Round(ClampF(gf, 0, 1) * 255))
	b = uint8(math.Round(ClampF(bf, 0, 1) * 255))
	return r, g, b
}

func gammaCorrect(c float64) float64 {
	if c <= 0.0031308 {
		return 12.92 * c
	}
	return 1.055*math.Pow(c, 1/2.4) - 0.055
}
