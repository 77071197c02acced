package validator

import (
	"context"
	"strings"

	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/report"
)

var (
	authorizationTerms = keywords{"authorize", "authorise", "mandate"}
	bankNameTerms      = keywords{"bank", "branch", "banker"}
	accountTypeTerms   = keywords{"savings", "current", "nre", "nro"}
)

type bank struct {
	kit  *Kit
	rule BankRule
}

func newBank(kit *Kit, policy Policy) Validator {
	return &bank{kit: kit, rule: policy.BankRule}
}

// Validate requires an account number, an IFSC code and authorisation
// evidence as defined by the form type's bank rule.
func (v *bank) Validate(ctx context.Context, region *raster.Region) Outcome {
	text := v.kit.Text(ctx, region)

	accounts := findAll(accountPattern, text)
	ifsc := findAll(ifscPattern, strings.ToUpper(text))
	authorization := authorizationTerms.in(text)
	bankName := bankNameTerms.in(text)
	signed := v.kit.Signed(region)

	details := report.Details{
		"account_number_found": len(accounts) > 0,
		"ifsc_found":           len(ifsc) > 0,
		"account_numbers":      accounts,
		"ifsc_codes":           ifsc,
		"total_accounts":       len(accounts),
		"has_authorization":    authorization,
		"has_bank_name":        bankName,
		"has_account_type":     accountTypeTerms.in(text),
		"has_dates":            datePattern.MatchString(text),
		"has_signature":        signed,
		"bank_rule":            v.rule.String(),
	}

	evidence := authorization || signed
	if v.rule == BankRuleTolerant {
		evidence = evidence || bankName
	}

	return Outcome{Filled: len(accounts) > 0 && len(ifsc) > 0 && evidence, Details: details}
}
