// Package template defines taught form layouts and the read-only store that serves them.
package template

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/a3tai/formcheck/internal/raster"
)

// FormType is the label of a family of forms.
type FormType string

const (
	FormCA          FormType = "CA Form"
	FormSIP         FormType = "SIP Form"
	FormMultipleSIP FormType = "Multiple SIP Form"
	FormCTF         FormType = "CTF Form"
	FormOther       FormType = "Other"
	FormUnknown     FormType = "Unknown"
)

// SectionType selects the validation strategy for a section.
type SectionType int

const (
	SectionOther SectionType = iota
	SectionSIPDetails
	SectionOTM
	SectionTransactionType
	SectionSection8
	SectionScheme
	SectionBankDetails
)

// SectionTypes lists every section type.
var SectionTypes = []SectionType{
	SectionSIPDetails,
	SectionOTM,
	SectionTransactionType,
	SectionSection8,
	SectionScheme,
	SectionBankDetails,
	SectionOther,
}

var sectionTypeNames = map[SectionType]string{
	SectionOther:           "OTHER",
	SectionSIPDetails:      "SIP_DETAILS",
	SectionOTM:             "OTM_SECTION",
	SectionTransactionType: "TRANSACTION_TYPE",
	SectionSection8:        "SECTION_8",
	SectionScheme:          "SCHEME",
	SectionBankDetails:     "BANK_DETAILS",
}

// display spellings written by the template authoring tool
var sectionTypeAliases = map[string]SectionType{
	"sip details":      SectionSIPDetails,
	"otm section":      SectionOTM,
	"transaction type": SectionTransactionType,
	"section 8":        SectionSection8,
	"scheme details":   SectionScheme,
	"scheme":           SectionScheme,
	"bank details":     SectionBankDetails,
	"other":            SectionOther,
}

func (t SectionType) String() string {
	if name, ok := sectionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SectionType(%d)", int(t))
}

// ParseSectionType accepts canonical names (SIP_DETAILS) and display names
// (SIP Details). An empty string means OTHER.
func ParseSectionType(s string) (SectionType, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return SectionOther, nil
	}
	for t, name := range sectionTypeNames {
		if strings.EqualFold(s, name) {
			return t, nil
		}
	}
	if t, ok := sectionTypeAliases[strings.ToLower(s)]; ok {
		return t, nil
	}
	return SectionOther, fmt.Errorf("unknown section type %q", s)
}

func (t SectionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *SectionType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseSectionType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Section is a named region of a template checked by one strategy.
type Section struct {
	Name        string      `json:"name"`
	Type        SectionType `json:"section_type"`
	Page        int         `json:"page"`
	BoundingBox raster.Box  `json:"bounding_box"`
}

// Template is a taught layout. Templates are immutable once loaded.
type Template struct {
	Name      string    `json:"name"`
	FormType  FormType  `json:"form_type"`
	Sections  []Section `json:"sections"`
	CreatedAt time.Time `json:"created_at"`

	byPage map[int][]Section
	pages  []int
}

// New builds a template and precomputes its page index. Section order is kept.
func New(name string, formType FormType, createdAt time.Time, sections ...Section) (*Template, error) {
	t := &Template{
		Name:      name,
		FormType:  formType,
		Sections:  slices.Clone(sections),
		CreatedAt: createdAt,
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	t.index()
	return t, nil
}

// Pages returns the page numbers that carry sections, ascending.
func (t *Template) Pages() []int {
	return t.pages
}

// SectionsOnPage returns the sections declared on page, in template order.
func (t *Template) SectionsOnPage(page int) []Section {
	return t.byPage[page]
}

func (t *Template) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrTemplateInvalid)
	}
	if strings.TrimSpace(string(t.FormType)) == "" {
		return fmt.Errorf("%w: template %q has no form type", ErrTemplateInvalid, t.Name)
	}
	seen := make(map[string]bool, len(t.Sections))
	for _, s := range t.Sections {
		if s.Name == "" {
			return fmt.Errorf("%w: template %q has an unnamed section", ErrTemplateInvalid, t.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: template %q repeats section %q", ErrTemplateInvalid, t.Name, s.Name)
		}
		if s.Page < 0 {
			return fmt.Errorf("%w: section %q has negative page %d", ErrTemplateInvalid, s.Name, s.Page)
		}
		seen[s.Name] = true
	}
	return nil
}

func (t *Template) index() {
	t.byPage = make(map[int][]Section)
	t.pages = t.pages[:0]
	for _, s := range t.Sections {
		if _, ok := t.byPage[s.Page]; !ok {
			t.pages = append(t.pages, s.Page)
		}
		t.byPage[s.Page] = append(t.byPage[s.Page], s)
	}
	slices.Sort(t.pages)
}
