// Package imaging converts uploaded photographs into model input tensors.
package imaging

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/fusion-api/internal/model"
)

// DefaultSize is the square edge both image models were trained on.
const DefaultSize = 224

// decodeRGB decodes raw bytes into an opaque 8-bit image. Alpha is
// discarded rather than composited, matching a plain colour read.
func decodeRGB(source string, raw []byte) (*image.NRGBA, error) {
	if len(raw) == 0 {
		return nil, model.DecodeError(source, nil)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, model.DecodeError(source, err)
	}
	if img.Bounds().Empty() {
		return nil, model.DecodeError(source, nil)
	}

	dst := toNRGBA(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst, nil
}

func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		// Straight copy keeps colour under transparent pixels.
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:(y+1)*dst.Stride], src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return dst
	}
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// resizeRGB scales to size×size with bilinear interpolation and returns the
// packed RGB bytes, row major.
func resizeRGB(img *image.NRGBA, size int) []uint8 {
	resized := toNRGBA(resize.Resize(uint(size), uint(size), img, resize.Bilinear))

	rgb := make([]uint8, size*size*3)
	for y := 0; y < size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < size; x++ {
			copy(rgb[(y*size+x)*3:], row[x*4:x*4+3])
		}
	}
	return rgb
}
