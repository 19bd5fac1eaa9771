package imaging

import (
	"strings"

	"github.com/pkg/errors"
)

// Normalization is the pixel scaling a backbone family was trained with.
type Normalization string

const (
	// NormalizeEfficientNet feeds raw 0..255 values; EfficientNet graphs
	// rescale and normalize internally.
	NormalizeEfficientNet Normalization = "efficientnet"
	// NormalizeTF scales to [-1, 1].
	NormalizeTF Normalization = "tf"
	// NormalizeTorch scales to [0, 1] then standardizes with ImageNet statistics.
	NormalizeTorch Normalization = "torch"
	// NormalizeCaffe swaps to BGR and subtracts the ImageNet BGR mean.
	NormalizeCaffe Normalization = "caffe"
)

var (
	imagenetMean    = [3]float32{0.485, 0.456, 0.406}
	imagenetStd     = [3]float32{0.229, 0.224, 0.225}
	imagenetBGRMean = [3]float32{103.939, 116.779, 123.68}
)

func ParseNormalization(s string) (Normalization, error) {
	switch n := Normalization(strings.ToLower(strings.TrimSpace(s))); n {
	case "":
		return NormalizeEfficientNet, nil
	case NormalizeEfficientNet, NormalizeTF, NormalizeTorch, NormalizeCaffe:
		return n, nil
	}
	return "", errors.Errorf("unknown normalization %q", s)
}

// apply normalizes one RGB pixel given as 0..255 values.
func (n Normalization) apply(px [3]float32) [3]float32 {
	switch n {
	case NormalizeTF:
		for c := range px {
			px[c] = px[c]/127.5 - 1
		}
	case NormalizeTorch:
		for c := range px {
			px[c] = (px[c]/255 - imagenetMean[c]) / imagenetStd[c]
		}
	case NormalizeCaffe:
		px = [3]float32{px[2] - imagenetBGRMean[0], px[1] - imagenetBGRMean[1], px[0] - imagenetBGRMean[2]}
	}
	return px
}

// Nail prepares nail photographs for the nail classifier's backbone.
type Nail struct {
	Size          int
	Normalization Normalization
}

func NewNail(size int, normalization Normalization) *Nail {
	if size <= 0 {
		size = DefaultSize
	}
	if normalization == "" {
		normalization = NormalizeEfficientNet
	}
	return &Nail{Size: size, Normalization: normalization}
}

func (p *Nail) Preprocess(raw []byte) (Tensor, error) {
	img, err := decodeRGB("nail_image", raw)
	if err != nil {
		return Tensor{}, err
	}
	rgb := resizeRGB(img, p.Size)

	t := newTensor(p.Size, p.Size)
	for i := 0; i < p.Size*p.Size; i++ {
		px := p.Normalization.apply([3]float32{float32(rgb[i*3]), float32(rgb[i*3+1]), float32(rgb[i*3+2])})
		copy(t.Data[i*3:i*3+3], px[:])
	}
	return t, nil
}
