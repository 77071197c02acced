// Package raster holds page images and the sub-region crops the engine reads.
package raster

import (
	"errors"
	"image"
	"image/draw"
	"math"
)

// ErrEmptyRegion is returned when a bounding box collapses to zero area on a page.
var ErrEmptyRegion = errors.New("empty region")

// Box is a rectangle in fractional page coordinates, origin top-left.
type Box struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Contains reports whether the fractional point lies inside the box.
func (b Box) Contains(x, y float64) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}

// Word is a piece of text-layer content positioned in fractional page coordinates.
type Word struct {
	Text string  `json:"text"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
}

func (w Word) center() (float64, float64) {
	return w.X + w.W/2, w.Y + w.H/2
}

// Page is one immutable grayscale page of a document.
type Page struct {
	Index int
	Image *image.Gray
	Words []Word
}

// NewPage converts img to grayscale and wraps it as the page at index.
func NewPage(index int, img image.Image, words ...Word) *Page {
	return &Page{
		Index: index,
		Image: ToGray(img),
		Words: words,
	}
}

// Width returns the page width in pixels.
func (p *Page) Width() int {
	if p == nil || p.Image == nil {
		return 0
	}
	return p.Image.Bounds().Dx()
}

// Height returns the page height in pixels.
func (p *Page) Height() int {
	if p == nil || p.Image == nil {
		return 0
	}
	return p.Image.Bounds().Dy()
}

// Region is a read-only view of part of a page.
type Region struct {
	Page       int
	Rect       image.Rectangle
	Image      *image.Gray
	Words      []Word
	PageHeight int
}

// Width returns the region width in pixels.
func (r *Region) Width() int { return r.Rect.Dx() }

// Height returns the region height in pixels.
func (r *Region) Height() int { return r.Rect.Dy() }

// Band returns the horizontal slice of the region between the fractional
// heights top and bottom. Text-layer words are filtered to the slice.
func (r *Region) Band(top, bottom float64) (*Region, error) {
	h := r.Height()
	y1 := r.Rect.Min.Y + scale(top, h)
	y2 := r.Rect.Min.Y + scale(bottom, h)
	if y2 <= y1 {
		return nil, ErrEmptyRegion
	}

	rect := image.Rect(r.Rect.Min.X, y1, r.Rect.Max.X, y2)
	band := &Region{
		Page:       r.Page,
		Rect:       rect,
		Image:      r.Image.SubImage(rect).(*image.Gray),
		PageHeight: r.PageHeight,
	}

	for _, w := range r.Words {
		_, cy := w.center()
		py := int(cy * float64(r.PageHeight))
		if py >= y1 && py < y2 {
			band.Words = append(band.Words, w)
		}
	}

	return band, nil
}

// Extract crops box out of page. Coordinates are converted with truncation and
// clamped to the page; a box that collapses yields ErrEmptyRegion.
func Extract(page *Page, box Box) (*Region, error) {
	if page == nil || page.Image == nil {
		return nil, ErrEmptyRegion
	}

	w, h := page.Width(), page.Height()
	x1 := scale(box.X, w)
	y1 := scale(box.Y, h)
	x2 := scale(box.X+box.Width, w)
	y2 := scale(box.Y+box.Height, h)

	if x2 <= x1 || y2 <= y1 {
		return nil, ErrEmptyRegion
	}

	origin := page.Image.Bounds().Min
	rect := image.Rect(x1, y1, x2, y2).Add(origin)

	region := &Region{
		Page:       page.Index,
		Rect:       rect,
		Image:      page.Image.SubImage(rect).(*image.Gray),
		PageHeight: h,
	}

	clamped := Box{
		X:      float64(x1) / float64(w),
		Y:      float64(y1) / float64(h),
		Width:  float64(x2-x1) / float64(w),
		Height: float64(y2-y1) / float64(h),
	}
	for _, word := range page.Words {
		if clamped.Contains(word.center()) {
			region.Words = append(region.Words, word)
		}
	}

	return region, nil
}

// ToGray returns img as a zero-origin *image.Gray, copying when needed.
func ToGray(img image.Image) *image.Gray {
	if img == nil {
		return nil
	}
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// scale converts the fraction f of n pixels to a truncated pixel offset in
// [0, n]. The product is clamped before conversion so huge or NaN fractions
// cannot overflow.
func scale(f float64, n int) int {
	v := f * float64(n)
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= float64(n):
		return n
	}
	return int(v)
}
