package imaging

import "math"

// 8-bit CIE L*a*b* with a D65 white point and sRGB gamma. L is scaled to
// 0..255 and a, b are offset by 128.

const (
	whiteX = 0.950456
	whiteZ = 1.088754

	labEpsilon = 0.008856
	labKappa   = 903.3
)

var srgbToLinear = func() [256]float64 {
	var table [256]float64
	for i := range table {
		c := float64(i) / 255
		if c <= 0.04045 {
			table[i] = c / 12.92
		} else {
			table[i] = math.Pow((c+0.055)/1.055, 2.4)
		}
	}
	return table
}()

func labF(t float64) float64 {
	if t > labEpsilon {
		return math.Cbrt(t)
	}
	return 7.787*t + 16.0/116.0
}

func rgbToLab(r, g, b uint8) (uint8, uint8, uint8) {
	lr, lg, lb := srgbToLinear[r], srgbToLinear[g], srgbToLinear[b]

	x := (0.412453*lr + 0.357580*lg + 0.180423*lb) / whiteX
	y := 0.212671*lr + 0.715160*lg + 0.072169*lb
	z := (0.019334*lr + 0.119193*lg + 0.950227*lb) / whiteZ

	fx, fy, fz := labF(x), labF(y), labF(z)

	var l float64
	if y > labEpsilon {
		l = 116*fy - 16
	} else {
		l = labKappa * y
	}

	return clampByte(l * 255 / 100), clampByte(500*(fx-fy) + 128), clampByte(200*(fy-fz) + 128)
}

func labToRGB(l8, a8, b8 uint8) (uint8, uint8, uint8) {
	l := float64(l8) * 100 / 255
	a := float64(a8) - 128
	bb := float64(b8) - 128

	var y, fy float64
	if l <= labKappa*labEpsilon {
		y = l / labKappa
		fy = 7.787*y + 16.0/116.0
	} else {
		fy = (l + 16) / 116
		y = fy * fy * fy
	}
	fx := fy + a/500
	fz := fy - bb/200

	x := whiteX * labFInv(fx)
	z := whiteZ * labFInv(fz)

	lr := 3.240479*x - 1.53715*y - 0.498535*z
	lg := -0.969256*x + 1.875991*y + 0.041556*z
	lb := 0.055648*x - 0.204043*y + 1.057311*z

	return linearToSRGB(lr), linearToSRGB(lg), linearToSRGB(lb)
}

func labFInv(f float64) float64 {
	if cube := f * f * f; cube > labEpsilon {
		return cube
	}
	return (f - 16.0/116.0) / 7.787
}

func linearToSRGB(c float64) uint8 {
	c = math.Max(0, math.Min(1, c))
	if c <= 0.0031308 {
		c *= 12.92
	} else {
		c = 1.055*math.Pow(c, 1/2.4) - 0.055
	}
	return clampByte(c * 255)
}

func clampByte(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
