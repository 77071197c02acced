package validator

import (
	"context"
	"strings"

	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/report"
)

var (
	declarationTerms = keywords{"declare", "confirm", "agree", "undertake"}
	nomineeTerms     = keywords{"nominee", "guardian", "relation"}
	contactTerms     = keywords{"name", "address", "email"}
)

type general struct {
	kit *Kit
}

func newGeneral(kit *Kit, _ Policy) Validator {
	return &general{kit: kit}
}

// Validate covers sections without a dedicated strategy: applicant and
// nominee details, declarations and free-form blocks. A section is filled
// with a PAN, with numbers alongside more than five words, or with a signed
// declaration.
func (v *general) Validate(ctx context.Context, region *raster.Region) Outcome {
	text := v.kit.Text(ctx, region)
	words := len(strings.Fields(text))
	numbers := numberPattern.MatchString(text)
	pan := panPattern.MatchString(strings.ToUpper(text))
	declaration := declarationTerms.in(text)
	signed := v.kit.Signed(region)

	details := report.Details{
		"word_count":        words,
		"has_numbers":       numbers,
		"pan_found":         pan,
		"has_contact":       contactPattern.MatchString(text),
		"has_personal_info": contactTerms.in(text),
		"nominee_found":     nomineeTerms.in(text),
		"declaration_found": declaration,
		"has_date":          datePattern.MatchString(text),
		"has_signature":     signed,
	}

	filled := (numbers && words > 5) || pan || (declaration && signed)
	return Outcome{Filled: filled, Details: details}
}
