package validator

import (
	"context"

	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/report"
)

var (
	frequencyTerms = keywords{"monthly", "quarterly", "yearly", "weekly"}
	schemeTerms    = keywords{"scheme", "folio", "plan"}
	sipHeadings    = keywords{"sip registration", "sip with top-up", "systematic investment plan"}
)

type sipDetails struct {
	kit *Kit
}

func newSIPDetails(kit *Kit, _ Policy) Validator {
	return &sipDetails{kit: kit}
}

// Validate requires a frequency, an amount and either a period or a filled table.
func (v *sipDetails) Validate(ctx context.Context, region *raster.Region) Outcome {
	text := v.kit.Text(ctx, region)
	details := report.Details{}
	return Outcome{Filled: v.kit.sipRule(text, details), Details: details}
}

func (k *Kit) sipRule(text string, details report.Details) bool {
	frequency := frequencyTerms.in(text)
	amount := amountPattern.MatchString(text)
	period := periodPattern.MatchString(text)
	table := k.Table(text, details)

	details["frequency_found"] = frequency
	details["amount_found"] = amount
	details["period_found"] = period
	details["details_filled"] = table

	return frequency && amount && (period || table)
}

type section8 struct {
	kit *Kit
}

func newSection8(kit *Kit, _ Policy) Validator {
	return &section8{kit: kit}
}

// Validate requires the checkbox in the top strip to be ticked and any of
// frequency, amount or table content below it.
func (v *section8) Validate(ctx context.Context, region *raster.Region) Outcome {
	t := v.kit.thresholds
	checked := false
	if strip, err := region.Band(0, t.CheckboxStrip); err == nil {
		checked = v.kit.Marked(strip, t.CheckboxRatio)
	}

	text := v.kit.Text(ctx, region)
	details := report.Details{}
	frequency := frequencyTerms.in(text)
	amount := amountPattern.MatchString(text)
	table := v.kit.Table(text, details)

	details["checkbox_checked"] = checked
	details["frequency_found"] = frequency
	details["amount_found"] = amount
	details["has_scheme"] = schemeTerms.in(text)
	details["details_filled"] = table

	return Outcome{Filled: checked && (frequency || amount || table), Details: details}
}

type scheme struct {
	kit *Kit
}

func newScheme(kit *Kit, _ Policy) Validator {
	return &scheme{kit: kit}
}

// Validate applies the SIP details rule to a scheme block and records the
// scheme name and folio evidence.
func (v *scheme) Validate(ctx context.Context, region *raster.Region) Outcome {
	text := v.kit.Text(ctx, region)
	details := report.Details{
		"scheme_name_found": schemeName.MatchString(text),
		"has_folio":         folioPattern.MatchString(text),
	}
	return Outcome{Filled: v.kit.sipRule(text, details), Details: details}
}

// AttachedSIP reports whether page, a whole-page region, is a SIP form that
// passes the SIP details rule. Pages without a SIP heading are not checked.
func (r *Registry) AttachedSIP(ctx context.Context, page *raster.Region) (bool, report.Details) {
	text := r.kit.Text(ctx, page)
	if !sipHeadings.in(text) {
		return false, nil
	}
	details := report.Details{}
	return r.kit.sipRule(text, details), details
}
