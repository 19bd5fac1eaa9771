package imaging

// Retina prepares fundus photographs: CLAHE on the Lab lightness channel,
// then RGB scaled to [0, 1].
type Retina struct {
	Size  int
	CLAHE CLAHE
}

func NewRetina(size int, clahe CLAHE) *Retina {
	if size <= 0 {
		size = DefaultSize
	}
	return &Retina{Size: size, CLAHE: clahe}
}

func (p *Retina) Preprocess(raw []byte) (Tensor, error) {
	img, err := decodeRGB("dr_image", raw)
	if err != nil {
		return Tensor{}, err
	}
	rgb := resizeRGB(img, p.Size)

	pixels := p.Size * p.Size
	lightness := make([]uint8, pixels)
	chromaA := make([]uint8, pixels)
	chromaB := make([]uint8, pixels)
	for i := 0; i < pixels; i++ {
		lightness[i], chromaA[i], chromaB[i] = rgbToLab(rgb[i*3], rgb[i*3+1], rgb[i*3+2])
	}

	lightness = p.CLAHE.Apply(lightness, p.Size, p.Size)

	t := newTensor(p.Size, p.Size)
	for i := 0; i < pixels; i++ {
		r, g, b := labToRGB(lightness[i], chromaA[i], chromaB[i])
		t.Data[i*3] = float32(r) / 255
		t.Data[i*3+1] = float32(g) / 255
		t.Data[i*3+2] = float32(b) / 255
	}
	return t, nil
}
