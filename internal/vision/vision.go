// Package vision implements the pixel-level signals used to classify and
// validate form regions: binarisation, edge density, ruled lines and
// glyph-sized connected components.
package vision

import (
	"image"
)

// Params tunes the structural detectors. Sizes are in pixels.
type Params struct {
	// EdgeThreshold is the minimum L1 Sobel magnitude counted as an edge.
	EdgeThreshold int `json:"edge_threshold"`
	// AdaptiveBlock and AdaptiveC configure the local-mean binarisation.
	AdaptiveBlock int `json:"adaptive_block"`
	AdaptiveC     int `json:"adaptive_c"`
	// MinLineLength and MaxLineGap configure ruled-line detection.
	MinLineLength int `json:"min_line_length"`
	MaxLineGap    int `json:"max_line_gap"`
	// Glyph-sized components have an area strictly between these bounds.
	MinComponentArea int `json:"min_component_area"`
	MaxComponentArea int `json:"max_component_area"`
	// SaturationCount is the number of lines plus components that maps to a score of 1.
	SaturationCount int `json:"saturation_count"`
}

// DefaultParams returns the detector settings used for scanned forms.
func DefaultParams() Params {
	return Params{
		EdgeThreshold:    150,
		AdaptiveBlock:    11,
		AdaptiveC:        2,
		MinLineLength:    50,
		MaxLineGap:       10,
		MinComponentArea: 10,
		MaxComponentArea: 1000,
		SaturationCount:  20,
	}
}

// Otsu returns the threshold that maximises between-class variance of img.
// ok is false for images without contrast.
func Otsu(img *image.Gray) (threshold uint8, ok bool) {
	var hist [256]int
	total := 0
	forEach(img, func(_, _ int, v uint8) {
		hist[v]++
		total++
	})
	if total == 0 {
		return 0, false
	}

	levels := 0
	var sum float64
	for i, n := range hist {
		if n > 0 {
			levels++
		}
		sum += float64(i * n)
	}
	if levels < 2 {
		return 0, false
	}

	var sumB, best float64
	wB := 0
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = uint8(t)
		}
	}
	return threshold, true
}

// DarkRatio returns the fraction of pixels at or below the Otsu threshold.
// A region without contrast is either all ink (1) or all paper (0),
// decided by its mean intensity.
func DarkRatio(img *image.Gray) float64 {
	t, ok := Otsu(img)
	if !ok {
		sum, total := 0, 0
		forEach(img, func(_, _ int, v uint8) {
			sum += int(v)
			total++
		})
		if total > 0 && sum/total < 128 {
			return 1
		}
		return 0
	}
	dark, total := 0, 0
	forEach(img, func(_, _ int, v uint8) {
		total++
		if v <= t {
			dark++
		}
	})
	return float64(dark) / float64(total)
}

// EdgeRatio returns the fraction of pixels whose Sobel magnitude reaches threshold.
func EdgeRatio(img *image.Gray, threshold int) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	at := func(x, y int) int {
		return int(img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)])
	}

	edges := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1)
			gy := at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1) -
				at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1)
			if abs(gx)+abs(gy) >= threshold {
				edges++
			}
		}
	}
	return float64(edges) / float64(w*h)
}

// Binary is a thresholded image; true marks ink.
type Binary struct {
	W, H int
	Ink  []bool
}

func (b *Binary) at(x, y int) bool { return b.Ink[y*b.W+x] }

// Adaptive binarises img against the mean of a block x block neighbourhood
// minus c. Pixels darker than the local mean become ink.
func Adaptive(img *image.Gray, block, c int) *Binary {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := &Binary{W: w, H: h, Ink: make([]bool, w*h)}
	if w == 0 || h == 0 {
		return out
	}

	// summed-area table with a zero border row and column
	sat := make([]int, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		row := 0
		for x := 0; x < w; x++ {
			row += int(img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)])
			sat[(y+1)*(w+1)+x+1] = sat[y*(w+1)+x+1] + row
		}
	}

	r := block / 2
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-r), min(h, y+r+1)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-r), min(w, x+r+1)
			area := (x1 - x0) * (y1 - y0)
			sum := sat[y1*(w+1)+x1] - sat[y0*(w+1)+x1] - sat[y1*(w+1)+x0] + sat[y0*(w+1)+x0]
			v := int(img.Pix[img.PixOffset(b.Min.X+x, b.Min.Y+y)])
			out.Ink[y*w+x] = v*area < sum-c*area
		}
	}
	return out
}

// Lines counts horizontal and vertical ruled lines in bin. A line is a run of
// ink at least minLength long that tolerates gaps up to maxGap; runs on
// adjacent rows (or columns) belong to the same line.
func Lines(bin *Binary, minLength, maxGap int) int {
	horizontal := countLines(bin.H, bin.W, minLength, maxGap, func(major, minor int) bool {
		return bin.at(minor, major)
	})
	vertical := countLines(bin.W, bin.H, minLength, maxGap, func(major, minor int) bool {
		return bin.at(major, minor)
	})
	return horizontal + vertical
}

func countLines(majors, minors, minLength, maxGap int, ink func(major, minor int) bool) int {
	count := 0
	previous := false
	for m := 0; m < majors; m++ {
		current := hasRun(minors, minLength, maxGap, func(i int) bool { return ink(m, i) })
		if current && !previous {
			count++
		}
		previous = current
	}
	return count
}

func hasRun(n, minLength, maxGap int, ink func(int) bool) bool {
	start, last := -1, -1
	for i := 0; i < n; i++ {
		if !ink(i) {
			continue
		}
		if start < 0 || i-last-1 > maxGap {
			start = i
		}
		last = i
		if last-start+1 >= minLength {
			return true
		}
	}
	return false
}

// Components counts 8-connected ink components whose area lies strictly
// between minArea and maxArea.
func Components(bin *Binary, minArea, maxArea int) int {
	seen := make([]bool, len(bin.Ink))
	stack := make([]int, 0, 64)
	count := 0

	for start, ink := range bin.Ink {
		if !ink || seen[start] {
			continue
		}
		seen[start] = true
		stack = append(stack[:0], start)
		area := 0
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			area++
			px, py := p%bin.W, p/bin.W
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := px+dx, py+dy
					if nx < 0 || ny < 0 || nx >= bin.W || ny >= bin.H {
						continue
					}
					q := ny*bin.W + nx
					if bin.Ink[q] && !seen[q] {
						seen[q] = true
						stack = append(stack, q)
					}
				}
			}
		}
		if area > minArea && area < maxArea {
			count++
		}
	}
	return count
}

func forEach(img *image.Gray, fn func(x, y int, v uint8)) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			fn(x, y-b.Min.Y, img.Pix[off+x])
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
