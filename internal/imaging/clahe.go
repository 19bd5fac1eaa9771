package imaging

import (
	"math"

	"github.com/pkg/errors"
)

const histSize = 256

// CLAHE is contrast limited adaptive histogram equalization over a grid of
// tiles. Each tile gets a clipped equalization LUT and pixels blend the four
// nearest tile LUTs bilinearly.
type CLAHE struct {
	ClipLimit float64
	TilesX    int
	TilesY    int
}

func NewCLAHE(clipLimit float64, grid int) (CLAHE, error) {
	if grid <= 0 {
		return CLAHE{}, errors.Errorf("clahe: tile grid must be positive, got %d", grid)
	}
	if clipLimit < 0 {
		return CLAHE{}, errors.Errorf("clahe: clip limit must not be negative, got %v", clipLimit)
	}
	return CLAHE{ClipLimit: clipLimit, TilesX: grid, TilesY: grid}, nil
}

// Apply equalizes a single 8-bit plane of width×height and returns a new plane.
func (c CLAHE) Apply(src []uint8, width, height int) []uint8 {
	// Extend to a whole number of tiles by reflecting the last rows and columns.
	extW, extH := width, height
	if r := width % c.TilesX; r != 0 {
		extW += c.TilesX - r
	}
	if r := height % c.TilesY; r != 0 {
		extH += c.TilesY - r
	}
	tileW, tileH := extW/c.TilesX, extH/c.TilesY
	tileArea := tileW * tileH

	clipLimit := 0
	if c.ClipLimit > 0 {
		clipLimit = int(c.ClipLimit * float64(tileArea) / histSize)
		if clipLimit < 1 {
			clipLimit = 1
		}
	}
	lutScale := float64(histSize-1) / float64(tileArea)

	luts := make([][histSize]uint8, c.TilesX*c.TilesY)
	for ty := 0; ty < c.TilesY; ty++ {
		for tx := 0; tx < c.TilesX; tx++ {
			var hist [histSize]int
			for y := ty * tileH; y < (ty+1)*tileH; y++ {
				sy := reflect101(y, height)
				for x := tx * tileW; x < (tx+1)*tileW; x++ {
					hist[src[sy*width+reflect101(x, width)]]++
				}
			}
			if clipLimit > 0 {
				clipHistogram(&hist, clipLimit)
			}

			lut := &luts[ty*c.TilesX+tx]
			sum := 0
			for i := range hist {
				sum += hist[i]
				lut[i] = clampByte(float64(sum) * lutScale)
			}
		}
	}

	dst := make([]uint8, len(src))
	invTW, invTH := 1/float64(tileW), 1/float64(tileH)
	for y := 0; y < height; y++ {
		tyf := float64(y)*invTH - 0.5
		ty1 := int(math.Floor(tyf))
		ty2 := ty1 + 1
		ya := tyf - float64(ty1)
		ty1 = max(ty1, 0)
		ty2 = min(ty2, c.TilesY-1)

		for x := 0; x < width; x++ {
			txf := float64(x)*invTW - 0.5
			tx1 := int(math.Floor(txf))
			tx2 := tx1 + 1
			xa := txf - float64(tx1)
			tx1 = max(tx1, 0)
			tx2 = min(tx2, c.TilesX-1)

			v := src[y*width+x]
			top := float64(luts[ty1*c.TilesX+tx1][v])*(1-xa) + float64(luts[ty1*c.TilesX+tx2][v])*xa
			bottom := float64(luts[ty2*c.TilesX+tx1][v])*(1-xa) + float64(luts[ty2*c.TilesX+tx2][v])*xa
			dst[y*width+x] = clampByte(top*(1-ya) + bottom*ya)
		}
	}
	return dst
}

// clipHistogram caps every bin at limit and spreads the excess evenly, with
// the remainder handed out one count at a time across the range.
func clipHistogram(hist *[histSize]int, limit int) {
	clipped := 0
	for i := range hist {
		if hist[i] > limit {
			clipped += hist[i] - limit
			hist[i] = limit
		}
	}

	batch := clipped / histSize
	residual := clipped - batch*histSize
	for i := range hist {
		hist[i] += batch
	}
	if residual != 0 {
		step := max(histSize/residual, 1)
		for i := 0; i < histSize && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}
}

// reflect101 mirrors an out-of-range index without repeating the edge pixel.
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*(n-1) - i
		}
	}
	return i
}
