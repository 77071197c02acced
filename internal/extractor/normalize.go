package extractor

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize folds OCR output into the form the validators match against:
// NFKC compatibility forms, lower case, single spaces within a line and
// single newlines between lines.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}

	return strings.ToLower(strings.Join(out, "\n"))
}
