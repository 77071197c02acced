package extractor

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/a3tai/formcheck/internal/raster"
)

var _ TextProvider = &Layer{}

// Layer reads the text layer carried by digitally produced pages. Words are
// grouped into lines top to bottom, then ordered left to right.
type Layer struct{}

// NewLayer returns a text-layer provider.
func NewLayer() *Layer {
	return &Layer{}
}

func (l *Layer) Text(ctx context.Context, region *raster.Region) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(region.Words) == 0 {
		return "", ErrNoText
	}

	words := make([]raster.Word, len(region.Words))
	copy(words, region.Words)
	sort.SliceStable(words, func(i, j int) bool { return words[i].Y < words[j].Y })

	var lines [][]raster.Word
	for _, w := range words {
		if n := len(lines); n > 0 && sameLine(lines[n-1][0], w) {
			lines[n-1] = append(lines[n-1], w)
			continue
		}
		lines = append(lines, []raster.Word{w})
	}

	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sort.SliceStable(line, func(a, b int) bool { return line[a].X < line[b].X })
		for j, w := range line {
			if j > 0 {
				prev := line[j-1]
				if w.X-(prev.X+prev.W) > prev.H*0.25 {
					sb.WriteByte(' ')
				}
			}
			sb.WriteString(w.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func sameLine(a, b raster.Word) bool {
	h := math.Max(a.H, b.H)
	return math.Abs(a.Y-b.Y) < h/2
}
