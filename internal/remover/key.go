package remover

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
)

// KeyRemover is an offline fallback that needs no model: it flood-fills from the
// image border and clears every connected pixel whose colour is within Tolerance
// (euclidean RGB distance) of the mean border colour.
type KeyRemover struct {
	Tolerance float64
}

func NewKeyRemover(tolerance float64) *KeyRemover {
	return &KeyRemover{Tolerance: tolerance}
}

func (k *KeyRemover) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	dst := imaging.Clone(img)
	w, h := dst.Bounds().Dx(), dst.Bounds().Dy()
	if w == 0 || h == 0 {
		return dst, nil
	}

	kr, kg, kb := borderMean(dst)
	limit := k.Tolerance * k.Tolerance

	near := func(i int) bool {
		off := i * 4
		dr := float64(dst.Pix[off]) - kr
		dg := float64(dst.Pix[off+1]) - kg
		db := float64(dst.Pix[off+2]) - kb
		return dr*dr+dg*dg+db*db <= limit
	}

	visited := make([]bool, w*h)
	queue := make([]int, 0, 2*(w+h))
	push := func(x, y int) {
		i := y*w + x
		if visited[i] {
			return
		}
		visited[i] = true
		if near(i) {
			queue = append(queue, i)
		}
	}

	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for n := 0; len(queue) > 0; n++ {
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		dst.Pix[i*4+3] = 0

		x, y := i%w, i/w
		if x > 0 {
			push(x-1, y)
		}
		if x < w-1 {
			push(x+1, y)
		}
		if y > 0 {
			push(x, y-1)
		}
		if y < h-1 {
			push(x, y+1)
		}
	}

	return dst, nil
}

// borderMean averages the RGB values of the outermost pixel ring.
func borderMean(img *image.NRGBA) (float64, float64, float64) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	var r, g, b, n float64
	add := func(x, y int) {
		off := y*img.Stride + x*4
		r += float64(img.Pix[off])
		g += float64(img.Pix[off+1])
		b += float64(img.Pix[off+2])
		n++
	}
	for x := 0; x < w; x++ {
		add(x, 0)
		if h > 1 {
			add(x, h-1)
		}
	}
	for y := 1; y < h-1; y++ {
		add(0, y)
		if w > 1 {
			add(w-1, y)
		}
	}
	return r / n, g / n, b / n
}
