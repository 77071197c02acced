package validator

import (
	"context"
	"strings"

	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/report"
)

// transaction kinds in detection order
var transactionKinds = []struct {
	name     string
	keywords keywords
}{
	{"registration", keywords{"registration", "new sip"}},
	{"renewal", keywords{"renewal", "renew"}},
	{"topup", keywords{"top-up", "topup", "step-up"}},
	{"change", keywords{"change", "modify", "bank change"}},
}

// ctf transaction bands, as fractions of the section height
var transactionBands = []struct {
	name        string
	top, bottom float64
	keywords    keywords
}{
	{"AP", 0.25, 0.32, keywords{"additional purchase", "purchase", "ap"}},
	{"Switch", 0.58, 0.75, keywords{"switch", "switching", "transfer"}},
	{"Redemption", 0.75, 0.92, keywords{"redemption", "redeem", "withdraw"}},
}

type transaction struct {
	kit    *Kit
	policy Policy
}

func newTransaction(kit *Kit, policy Policy) Validator {
	return &transaction{kit: kit, policy: policy}
}

// Validate requires a recognised transaction kind and a visible mark.
func (v *transaction) Validate(ctx context.Context, region *raster.Region) Outcome {
	if v.policy.Bands {
		return v.bands(ctx, region)
	}

	text := v.kit.Text(ctx, region)
	kind := ""
	for _, k := range transactionKinds {
		if k.keywords.in(text) {
			kind = k.name
			break
		}
	}
	marked := v.kit.Marked(region, v.kit.thresholds.MarkRatio)

	details := report.Details{
		"type_detected":    kind,
		"checkbox_checked": marked,
		"details_filled":   amountPattern.MatchString(text),
	}
	return Outcome{Filled: kind != "" && marked, Details: details}
}

// bands checks the additional purchase, switch and redemption rows separately;
// a row counts when its checkbox is ticked and its label is legible.
func (v *transaction) bands(ctx context.Context, region *raster.Region) Outcome {
	found := []string{}
	details := report.Details{}

	for _, band := range transactionBands {
		key := "has_" + strings.ToLower(band.name)
		details[key] = false

		sub, err := region.Band(band.top, band.bottom)
		if err != nil {
			continue
		}
		if !v.kit.Marked(sub, v.kit.thresholds.CheckboxRatio) {
			continue
		}
		text := v.kit.Text(ctx, sub)
		if !band.keywords.in(text) {
			continue
		}

		details[key] = true
		details[strings.ToLower(band.name)+"_has_amount"] = amountPattern.MatchString(text)
		found = append(found, band.name)
	}

	details["transactions_found"] = found
	return Outcome{Filled: len(found) > 0, Details: details}
}
