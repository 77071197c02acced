// Package validator decides whether a form section was filled in. Each
// section type has one strategy; strategies share the Kit primitives.
package validator

import (
	"context"
	"regexp"
	"strings"

	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/report"
	"github.com/a3tai/formcheck/internal/vision"
)

// Thresholds tunes the mark, checkbox, signature and table detectors.
type Thresholds struct {
	// MarkRatio is the dark-pixel fraction above which a transaction area is marked.
	MarkRatio float64 `json:"mark_ratio"`
	// CheckboxRatio is the dark-pixel fraction above which a checkbox strip is ticked.
	CheckboxRatio float64 `json:"checkbox_ratio"`
	// CheckboxStrip is the fraction of a Section 8 region, from the top, holding its checkbox.
	CheckboxStrip float64 `json:"checkbox_strip"`
	// SignatureEdgeRatio is the edge-pixel fraction above which a region is signed.
	SignatureEdgeRatio float64 `json:"signature_edge_ratio"`
	// EdgeThreshold is the Sobel magnitude counted as an edge.
	EdgeThreshold int `json:"edge_threshold"`
	// A table has content with at least MinNumericTokens numbers or MinCurrencyTokens amounts.
	MinNumericTokens  int `json:"min_numeric_tokens"`
	MinCurrencyTokens int `json:"min_currency_tokens"`
}

// DefaultThresholds returns the tuned defaults for scanned forms.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MarkRatio:          0.05,
		CheckboxRatio:      0.10,
		CheckboxStrip:      0.20,
		SignatureEdgeRatio: 0.01,
		EdgeThreshold:      vision.DefaultParams().EdgeThreshold,
		MinNumericTokens:   3,
		MinCurrencyTokens:  1,
	}
}

// TextReader returns normalised region text, "" when nothing could be read.
// extractor.Guard satisfies it.
type TextReader interface {
	Text(ctx context.Context, region *raster.Region) string
}

// Kit bundles the shared detection primitives.
type Kit struct {
	reader     TextReader
	thresholds Thresholds
}

// NewKit returns a kit reading text through reader.
func NewKit(reader TextReader, thresholds Thresholds) *Kit {
	return &Kit{reader: reader, thresholds: thresholds}
}

// Thresholds returns the kit's tuning.
func (k *Kit) Thresholds() Thresholds { return k.thresholds }

// Text returns the lower-cased text of region.
func (k *Kit) Text(ctx context.Context, region *raster.Region) string {
	if k.reader == nil {
		return ""
	}
	return k.reader.Text(ctx, region)
}

// Marked reports whether the dark fraction of region exceeds ratio.
func (k *Kit) Marked(region *raster.Region, ratio float64) bool {
	return vision.DarkRatio(region.Image) > ratio
}

// Signed reports whether region carries enough stroke edges to be a signature.
func (k *Kit) Signed(region *raster.Region) bool {
	return vision.EdgeRatio(region.Image, k.thresholds.EdgeThreshold) > k.thresholds.SignatureEdgeRatio
}

// Table counts numeric and currency tokens in text and records them in details.
func (k *Kit) Table(text string, details report.Details) bool {
	numbers := len(numberPattern.FindAllString(text, -1))
	amounts := len(currencyPattern.FindAllString(text, -1))
	filled := numbers >= k.thresholds.MinNumericTokens || amounts >= k.thresholds.MinCurrencyTokens

	details["numbers_found"] = numbers
	details["amounts_found"] = amounts
	details["has_content"] = filled
	return filled
}

var (
	amountPattern   = regexp.MustCompile(`(?:rs|inr|₹)?\s*\d+(?:,\d+)*(?:\.\d{2})?`)
	currencyPattern = regexp.MustCompile(`(?:rs\.?|inr|₹)\s*\d+(?:,\d+)*(?:\.\d{2})?`)
	numberPattern   = regexp.MustCompile(`\d+(?:\.\d+)?`)
	periodPattern   = regexp.MustCompile(`(?i)\d+\s*(?:month|year|yr)`)
	datePattern     = regexp.MustCompile(`\d{2}[-/]\d{2}[-/]\d{2,4}`)
	accountPattern  = regexp.MustCompile(`\d{9,18}`)
	ifscPattern     = regexp.MustCompile(`[A-Z]{4}0[A-Z0-9]{6}`)
	panPattern      = regexp.MustCompile(`[A-Z]{5}[0-9]{4}[A-Z]`)
	contactPattern  = regexp.MustCompile(`\d{10}|\d{3}[-\s]\d{8}`)
	folioPattern    = regexp.MustCompile(`folio\D{0,12}\d+`)
	schemeName      = regexp.MustCompile(`scheme\s*(?:name|\d+)`)
)

// keywords matches any of a list of phrases. Phrases of three letters or
// fewer must stand alone as words.
type keywords []string

func (kw keywords) in(text string) bool {
	return kw.first(text) != ""
}

func (kw keywords) first(text string) string {
	for _, k := range kw {
		if len(k) <= 3 {
			if containsWord(text, k) {
				return k
			}
			continue
		}
		if strings.Contains(text, k) {
			return k
		}
	}
	return ""
}

func containsWord(text, word string) bool {
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], word)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(word)
		if (start == 0 || !isWordByte(text[start-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		from = start + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

func findAll(re *regexp.Regexp, text string) []string {
	found := re.FindAllString(text, -1)
	if found == nil {
		return []string{}
	}
	return found
}
