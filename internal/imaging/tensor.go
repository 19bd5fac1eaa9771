package imaging

import (
	"strings"

	"github.com/pkg/errors"
)

// Layout is the memory order a model expects its image batch in.
type Layout string

const (
	LayoutNHWC Layout = "NHWC"
	LayoutNCHW Layout = "NCHW"
)

func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToUpper(strings.TrimSpace(s))) {
	case "", LayoutNHWC:
		return LayoutNHWC, nil
	case LayoutNCHW:
		return LayoutNCHW, nil
	}
	return "", errors.Errorf("unknown tensor layout %q", s)
}

// Tensor is a single-image batch stored as [1, H, W, 3].
type Tensor struct {
	Height int
	Width  int
	Data   []float32
}

func newTensor(height, width int) Tensor {
	return Tensor{Height: height, Width: width, Data: make([]float32, height*width*3)}
}

func (t Tensor) Shape() []int64 {
	return []int64{1, int64(t.Height), int64(t.Width), 3}
}

// Flatten returns the values in the requested layout. NHWC shares the
// backing array.
func (t Tensor) Flatten(layout Layout) []float32 {
	if layout != LayoutNCHW {
		return t.Data
	}
	plane := t.Height * t.Width
	out := make([]float32, len(t.Data))
	for i := 0; i < plane; i++ {
		out[i] = t.Data[i*3]
		out[plane+i] = t.Data[i*3+1]
		out[2*plane+i] = t.Data[i*3+2]
	}
	return out
}
