package source

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/a3tai/formcheck/internal/raster"
)

// decodeImage decodes any registered raster format into grayscale.
func decodeImage(data []byte) (*image.Gray, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot decode image: %w", err)
	}
	return raster.ToGray(img), nil
}

// fit scales img down so that its longer side is at most limit pixels.
func fit(img *image.Gray, limit int) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if limit <= 0 || (w <= limit && h <= limit) {
		return img
	}

	scale := float64(limit) / float64(max(w, h))
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))

	dst := image.NewGray(image.Rect(0, 0, nw, nh))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// blank returns a white page of w x h pixels.
func blank(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, max(1, w), max(1, h)))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img
}
