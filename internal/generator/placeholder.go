package generator

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"

	"montage/internal/services"
)

// Placeholder renders a vertical gradient whose colours derive from the
// prompt, so the same prompt always yields the same image.
type Placeholder struct {
	width  int
	height int
}

var _ Generator = (*Placeholder)(nil)

// NewPlaceholder creates a placeholder generator with the default size.
func NewPlaceholder(width, height int) *Placeholder {
	if width <= 0 {
		width = 512
	}
	if height <= 0 {
		height = 512
	}
	return &Placeholder{width: width, height: height}
}

func (p *Placeholder) Generate(ctx context.Context, req Request) (*Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	width, err := intParam(req.Params, "width", p.width, 16, 4096)
	if err != nil {
		return nil, err
	}
	height, err := intParam(req.Params, "height", p.height, 16, 4096)
	if err != nil {
		return nil, err
	}

	top, bottom := promptColors(req.Service + "\x00" + req.Prompt)
	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		c := blend(top, bottom, float64(y)/float64(max(height-1, 1)))
		for x := range width {
			canvas.SetNRGBA(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "generator", "placeholder", fmt.Sprintf("encode %dx%d png", width, height), err)
	}
	return &Image{Data: buf.Bytes(), ContentType: "image/png", Service: req.Service}, nil
}

func promptColors(seed string) (color.NRGBA, color.NRGBA) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum64()
	top := color.NRGBA{R: uint8(sum), G: uint8(sum >> 8), B: uint8(sum >> 16), A: 0xff}
	bottom := color.NRGBA{R: uint8(sum >> 24), G: uint8(sum >> 32), B: uint8(sum >> 40), A: 0xff}
	return top, bottom
}

func blend(a, b color.NRGBA, t float64) color.NRGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(float64(x) + (float64(y)-float64(x))*t)
	}
	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff}
}
