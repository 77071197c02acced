// Package report defines the serializable results produced for one document.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/a3tai/formcheck/internal/template"
)

// Status is the outcome of a document run.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

// Message texts for failures recorded in reports.
const (
	MessageNoPages         = "no pages"
	MessageNoTemplate      = "no matching template"
	MessageUnknownFormType = "unknown form type"
	ErrInvalidCoordinates  = "invalid coordinates"
)

// Details holds per-section evidence. Values are restricted to bool, int,
// string and []string so that reports survive a JSON round trip unchanged.
type Details map[string]any

// UnmarshalJSON restores ints and string lists instead of float64 and []any.
func (d *Details) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		*d = nil
		return nil
	}

	out := make(Details, len(raw))
	for k, v := range raw {
		nv, err := normalize(v)
		if err != nil {
			return fmt.Errorf("detail %q: %w", k, err)
		}
		out[k] = nv
	}
	*d = out
	return nil
}

func normalize(v any) (any, error) {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i), nil
		}
		return x.Float64()
	case []any:
		list := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("unsupported list element %T", item)
			}
			list = append(list, s)
		}
		return list, nil
	default:
		return v, nil
	}
}

// Keys returns the detail keys in sorted order.
func (d Details) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Bool returns the boolean stored under key, false when absent.
func (d Details) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

// SectionResult is the verdict for one template section.
type SectionResult struct {
	SectionName string               `json:"section_name"`
	SectionType template.SectionType `json:"section_type"`
	Page        int                  `json:"page"`
	Filled      bool                 `json:"filled"`
	Details     Details              `json:"details"`
	Error       string               `json:"error,omitempty"`
}

// Alternative is a runner-up template considered during classification.
type Alternative struct {
	Template   string            `json:"template"`
	FormType   template.FormType `json:"form_type"`
	Confidence float64           `json:"confidence"`
}

// SchemeTally counts the scheme blocks of a Multiple SIP form.
type SchemeTally struct {
	Total  int `json:"total_schemes"`
	Filled int `json:"filled_schemes"`
}

// AttachedSIP is the outcome of searching the pages after the first of a
// CTF document for a filled SIP form.
type AttachedSIP struct {
	Found   bool    `json:"has_sip_form"`
	Page    int     `json:"sip_form_page,omitempty"`
	Details Details `json:"sip_form_details,omitempty"`
}

// FormReport is the aggregated outcome for one document.
type FormReport struct {
	Status           Status                   `json:"status"`
	DocumentID       string                   `json:"document_id,omitempty"`
	FormType         template.FormType        `json:"form_type"`
	Template         string                   `json:"template,omitempty"`
	Confidence       float64                  `json:"confidence"`
	TotalPages       int                      `json:"total_pages"`
	Sections         map[string]SectionResult `json:"sections"`
	SIPDetailsFilled bool                     `json:"sip_details_filled"`
	OTMDetailsFilled bool                     `json:"otm_details_filled"`
	FormTypes        []template.FormType      `json:"form_types,omitempty"`
	Schemes          *SchemeTally             `json:"schemes,omitempty"`
	AttachedSIP      *AttachedSIP             `json:"attached_sip,omitempty"`
	Alternatives     []Alternative            `json:"alternatives,omitempty"`
	Message          string                   `json:"message,omitempty"`
	ProcessedAt      *time.Time               `json:"processed_at,omitempty"`
}

// New returns an empty report for a document of totalPages pages.
func New(formType template.FormType, confidence float64, totalPages int) *FormReport {
	return &FormReport{
		Status:     StatusSuccess,
		FormType:   formType,
		Confidence: confidence,
		TotalPages: totalPages,
		Sections:   make(map[string]SectionResult),
	}
}

// Fail marks the report as failed with message.
func (r *FormReport) Fail(message string) *FormReport {
	r.Status = StatusError
	r.Message = message
	return r
}

// SectionNames returns section names sorted, for stable rendering.
func (r *FormReport) SectionNames() []string {
	names := make([]string, 0, len(r.Sections))
	for name := range r.Sections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FilledCount returns how many sections were judged filled.
func (r *FormReport) FilledCount() int {
	n := 0
	for _, s := range r.Sections {
		if s.Filled {
			n++
		}
	}
	return n
}

// Decode parses a report produced by json.Marshal.
func Decode(data []byte) (*FormReport, error) {
	var r FormReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if r.Sections == nil {
		r.Sections = make(map[string]SectionResult)
	}
	return &r, nil
}
