package validator

import (
	"context"

	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/report"
	"github.com/a3tai/formcheck/internal/template"
)

// Outcome is a strategy's verdict for one region.
type Outcome struct {
	Filled  bool
	Details report.Details
}

// Validator judges one extracted section region.
type Validator interface {
	Validate(ctx context.Context, region *raster.Region) Outcome
}

// Func adapts a function to Validator.
type Func func(ctx context.Context, region *raster.Region) Outcome

func (f Func) Validate(ctx context.Context, region *raster.Region) Outcome {
	return f(ctx, region)
}

// BankRule selects what authorisation evidence a bank section needs beyond
// an account number and an IFSC code.
type BankRule int

const (
	// BankRuleStrict requires an authorisation phrase or a signature.
	BankRuleStrict BankRule = iota
	// BankRuleTolerant also accepts a bank name as evidence.
	BankRuleTolerant
)

func (r BankRule) String() string {
	if r == BankRuleTolerant {
		return "tolerant"
	}
	return "strict"
}

// Policy holds the per form type choices strategies consult.
type Policy struct {
	BankRule BankRule
	// Bands checks the transaction section band by band (CTF layout).
	Bands bool
	// AttachedSIP searches the pages after the first for a filled SIP form.
	AttachedSIP bool
	// SchemeTally counts total and filled scheme blocks.
	SchemeTally bool
}

// DefaultPolicies returns the policy table for the known form types.
// Form types not listed use the zero Policy.
func DefaultPolicies() map[template.FormType]Policy {
	return map[template.FormType]Policy{
		template.FormCA:          {BankRule: BankRuleTolerant},
		template.FormSIP:         {BankRule: BankRuleStrict},
		template.FormMultipleSIP: {BankRule: BankRuleStrict, SchemeTally: true},
		template.FormCTF:         {BankRule: BankRuleStrict, Bands: true, AttachedSIP: true},
		template.FormOther:       {BankRule: BankRuleStrict},
	}
}

// Registry maps every section type to its strategy.
type Registry struct {
	kit      *Kit
	policies map[template.FormType]Policy
	build    map[template.SectionType]func(*Kit, Policy) Validator
}

// NewRegistry returns a registry with the default policy table.
func NewRegistry(kit *Kit) *Registry {
	return NewRegistryWithPolicies(kit, DefaultPolicies())
}

// NewRegistryWithPolicies returns a registry with a custom policy table.
func NewRegistryWithPolicies(kit *Kit, policies map[template.FormType]Policy) *Registry {
	return &Registry{
		kit:      kit,
		policies: policies,
		build: map[template.SectionType]func(*Kit, Policy) Validator{
			template.SectionTransactionType: newTransaction,
			template.SectionSIPDetails:      newSIPDetails,
			template.SectionSection8:        newSection8,
			template.SectionScheme:          newScheme,
			template.SectionOTM:             newBank,
			template.SectionBankDetails:     newBank,
			template.SectionOther:           newGeneral,
		},
	}
}

// Policy returns the policy applied to formType.
func (r *Registry) Policy(formType template.FormType) Policy {
	return r.policies[formType]
}

// For returns the strategy for a section of sectionType on a form of formType.
func (r *Registry) For(sectionType template.SectionType, formType template.FormType) Validator {
	build, ok := r.build[sectionType]
	if !ok {
		build = newGeneral
	}
	return build(r.kit, r.Policy(formType))
}

// Covers reports whether sectionType has a dedicated strategy.
func (r *Registry) Covers(sectionType template.SectionType) bool {
	_, ok := r.build[sectionType]
	return ok
}
