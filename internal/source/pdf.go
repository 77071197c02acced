package source

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/a3tai/formcheck/internal/raster"
)

// letter is the page size assumed when a page declares no usable MediaBox.
var letter = mediaBox{x1: 612, y1: 792}

type mediaBox struct {
	x0, y0, x1, y1 float64
}

func (b mediaBox) width() float64  { return b.x1 - b.x0 }
func (b mediaBox) height() float64 { return b.y1 - b.y0 }

// textPage is the text layer of one PDF page.
type textPage struct {
	box   mediaBox
	words []raster.Word
}

// scans returns the largest embedded image of every page, keyed by
// zero-based page number. Scanned forms carry one full-page image per page.
func (l *Loader) scans(data []byte) (map[int]*image.Gray, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pages, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, conf)
	if err != nil {
		return nil, fmt.Errorf("cannot extract page images: %w", err)
	}

	out := make(map[int]*image.Gray)
	area := make(map[int]int)
	for _, images := range pages {
		for _, img := range images {
			page := img.PageNr - 1
			if img.Reader == nil || page < 0 {
				continue
			}
			if _, seen := out[page]; seen && img.Width*img.Height <= area[page] {
				continue
			}

			raw, err := io.ReadAll(img)
			if err != nil {
				l.logger.Debug("page image unreadable", "page", page, "error", err)
				continue
			}
			gray, err := decodeImage(raw)
			if err != nil {
				l.logger.Debug("page image skipped", "page", page, "type", img.FileType, "error", err)
				continue
			}
			out[page] = gray
			area[page] = img.Width * img.Height
		}
	}
	return out, nil
}

// textLayer reads positioned words from every page.
func (l *Loader) textLayer(data []byte) (pages []textPage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("text layer unreadable: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid PDF file: %w", err)
	}

	n := r.NumPage()
	pages = make([]textPage, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, textPage{box: letter})
			continue
		}
		box := pageBox(p)
		pages = append(pages, textPage{box: box, words: words(l.content(p, i), box)})
	}
	return pages, nil
}

func (l *Loader) content(p pdf.Page, number int) (texts []pdf.Text) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Debug("page content unreadable", "page", number-1, "panic", r)
			texts = nil
		}
	}()
	return p.Content().Text
}

// pageBox returns the page MediaBox, inherited through Parent when absent.
func pageBox(p pdf.Page) mediaBox {
	v := p.V
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		if box, ok := parseBox(v.Key("MediaBox")); ok {
			return box
		}
		v = v.Key("Parent")
	}
	return letter
}

func parseBox(v pdf.Value) (mediaBox, bool) {
	if v.Kind() != pdf.Array || v.Len() != 4 {
		return mediaBox{}, false
	}

	var c [4]float64
	for i := range c {
		item := v.Index(i)
		switch item.Kind() {
		case pdf.Integer:
			c[i] = float64(item.Int64())
		case pdf.Real:
			c[i] = item.Float64()
		default:
			return mediaBox{}, false
		}
	}

	box := mediaBox{
		x0: math.Min(c[0], c[2]), y0: math.Min(c[1], c[3]),
		x1: math.Max(c[0], c[2]), y1: math.Max(c[1], c[3]),
	}
	if box.width() <= 0 || box.height() <= 0 {
		return mediaBox{}, false
	}
	return box, true
}

// words joins glyph runs into words and converts them to fractional,
// top-left page coordinates. Whitespace, a baseline change or a horizontal
// gap ends a word.
func words(texts []pdf.Text, box mediaBox) []raster.Word {
	var (
		out          []raster.Word
		cur          strings.Builder
		x0, x1, base float64
		size         float64
	)

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		out = append(out, raster.Word{
			Text: cur.String(),
			X:    (x0 - box.x0) / box.width(),
			Y:    (box.y1 - (base + size)) / box.height(),
			W:    (x1 - x0) / box.width(),
			H:    size / box.height(),
		})
		cur.Reset()
	}

	for _, t := range texts {
		if strings.TrimSpace(t.S) == "" {
			flush()
			continue
		}

		fs := t.FontSize
		if fs <= 0 {
			fs = 10
		}
		w := t.W
		if w <= 0 {
			w = fs * 0.5 * float64(len([]rune(t.S)))
		}

		if cur.Len() > 0 && (math.Abs(t.Y-base) > fs/2 || t.X < x0 || t.X-x1 > fs*0.3) {
			flush()
		}
		if cur.Len() == 0 {
			x0, x1, base, size = t.X, t.X, t.Y, fs
		}
		cur.WriteString(t.S)
		x1 = math.Max(x1, t.X+w)
		size = math.Max(size, fs)
	}
	flush()

	return out
}
