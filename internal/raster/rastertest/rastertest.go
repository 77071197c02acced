// Package rastertest draws synthetic form pages for tests.
package rastertest

import (
	"image"
	"image/color"

	"github.com/a3tai/formcheck/internal/raster"
)

// Canvas is a white grayscale page that shapes can be drawn onto.
type Canvas struct {
	img *image.Gray
}

// NewCanvas returns a white w x h canvas.
func NewCanvas(w, h int) *Canvas {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	return &Canvas{img: img}
}

// Image returns the underlying raster.
func (c *Canvas) Image() *image.Gray { return c.img }

// Page wraps the canvas as a page at index.
func (c *Canvas) Page(index int, words ...raster.Word) *raster.Page {
	return raster.NewPage(index, c.img, words...)
}

// Fill paints the rectangle [x0,x1) x [y0,y1) with value v.
func (c *Canvas) Fill(x0, y0, x1, y1 int, v uint8) *Canvas {
	r := image.Rect(x0, y0, x1, y1).Intersect(c.img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c.img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return c
}

// HLine draws a one pixel black horizontal line.
func (c *Canvas) HLine(x0, x1, y int) *Canvas {
	return c.Fill(x0, y, x1, y+1, 0)
}

// VLine draws a one pixel black vertical line.
func (c *Canvas) VLine(x, y0, y1 int) *Canvas {
	return c.Fill(x, y0, x+1, y1, 0)
}

// Blobs draws a grid of size x size black squares inside the rectangle,
// spaced by gap pixels, imitating printed glyphs.
func (c *Canvas) Blobs(x0, y0, x1, y1, size, gap int) *Canvas {
	for y := y0; y+size <= y1; y += size + gap {
		for x := x0; x+size <= x1; x += size + gap {
			c.Fill(x, y, x+size, y+size, 0)
		}
	}
	return c
}

// Scribble draws a thick zig-zag stroke across the rectangle, imitating a signature.
func (c *Canvas) Scribble(x0, y0, x1, y1 int) *Canvas {
	h := y1 - y0
	if h < 4 {
		return c
	}
	for x := x0; x < x1; x++ {
		phase := (x - x0) % (2 * h)
		y := y0 + phase
		if phase >= h {
			y = y0 + 2*h - phase - 1
		}
		c.Fill(x, y, x+2, y+2, 0)
	}
	return c
}
