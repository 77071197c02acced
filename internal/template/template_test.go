package template

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/formcheck/internal/raster"
)

const sipTemplateJSON = `{
  "name": "sip_registration_v2",
  "form_type": "SIP Form",
  "created_at": "2024-03-01T10:15:00.123456",
  "sections": [
    {"name": "sip", "type": "SIP Details", "page": 0,
     "coordinates": {"x": 0.05, "y": 0.30, "width": 0.9, "height": 0.2}},
    {"name": "otm", "type": "OTM Section", "page": 1,
     "coordinates": {"x": 0.05, "y": 0.10, "width": 0.9, "height": 0.3}},
    {"name": "txn", "section_type": "TRANSACTION_TYPE", "page": 0,
     "bounding_box": {"x": 0.05, "y": 0.05, "width": 0.9, "height": 0.1}}
  ]
}`

const ctfTemplateYAML = `
name: ctf_basic
form_type: CTF Form
created_at: 2024-05-02T08:00:00Z
sections:
  - name: transactions
    type: Transaction Type
    page: 0
    coordinates: {x: 0, y: 0, width: 1, height: 1}
  - name: remarks
    page: 0
    coordinates: {x: 0, y: 0.9, width: 1, height: 0.1}
`

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestParseSectionType(t *testing.T) {
	tests := []struct {
		in      string
		want    SectionType
		wantErr bool
	}{
		{"SIP_DETAILS", SectionSIPDetails, false},
		{"SIP Details", SectionSIPDetails, false},
		{"otm section", SectionOTM, false},
		{"OTM_SECTION", SectionOTM, false},
		{"Transaction Type", SectionTransactionType, false},
		{"Section 8", SectionSection8, false},
		{"SECTION_8", SectionSection8, false},
		{"Scheme Details", SectionScheme, false},
		{"BANK_DETAILS", SectionBankDetails, false},
		{"Bank Details", SectionBankDetails, false},
		{"Other", SectionOther, false},
		{"", SectionOther, false},
		{"Signature Box", SectionOther, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSectionType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSectionTypeNamesAreComplete(t *testing.T) {
	for _, st := range SectionTypes {
		parsed, err := ParseSectionType(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}
	assert.Len(t, sectionTypeNames, len(SectionTypes))
}

func TestParseJSON(t *testing.T) {
	tpl, err := Parse([]byte(sipTemplateJSON), ".json")
	require.NoError(t, err)

	assert.Equal(t, "sip_registration_v2", tpl.Name)
	assert.Equal(t, FormSIP, tpl.FormType)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 15, 0, 123456000, time.UTC), tpl.CreatedAt)
	require.Len(t, tpl.Sections, 3)
	assert.Equal(t, raster.Box{X: 0.05, Y: 0.30, Width: 0.9, Height: 0.2}, tpl.Sections[0].BoundingBox)

	assert.Equal(t, []int{0, 1}, tpl.Pages())
	page0 := tpl.SectionsOnPage(0)
	require.Len(t, page0, 2)
	assert.Equal(t, "sip", page0[0].Name)
	assert.Equal(t, "txn", page0[1].Name)
	assert.Empty(t, tpl.SectionsOnPage(5))
}

func TestParseYAML(t *testing.T) {
	tpl, err := Parse([]byte(ctfTemplateYAML), ".yaml")
	require.NoError(t, err)

	assert.Equal(t, FormCTF, tpl.FormType)
	require.Len(t, tpl.Sections, 2)
	assert.Equal(t, SectionTransactionType, tpl.Sections[0].Type)
	assert.Equal(t, SectionOther, tpl.Sections[1].Type)
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"name": `},
		{"missing name", `{"form_type": "SIP Form", "sections": []}`},
		{"missing form type", `{"name": "a", "sections": []}`},
		{"unknown section type", `{"name": "a", "form_type": "SIP Form", "sections": [
			{"name": "s", "type": "Hologram", "page": 0, "coordinates": {"x":0,"y":0,"width":1,"height":1}}]}`},
		{"duplicate section", `{"name": "a", "form_type": "SIP Form", "sections": [
			{"name": "s", "page": 0, "coordinates": {"x":0,"y":0,"width":1,"height":1}},
			{"name": "s", "page": 1, "coordinates": {"x":0,"y":0,"width":1,"height":1}}]}`},
		{"negative page", `{"name": "a", "form_type": "SIP Form", "sections": [
			{"name": "s", "page": -1, "coordinates": {"x":0,"y":0,"width":1,"height":1}}]}`},
		{"no coordinates", `{"name": "a", "form_type": "SIP Form", "sections": [{"name": "s", "page": 0}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), ".json")
			assert.ErrorIs(t, err, ErrTemplateInvalid)
		})
	}

	_, err := Parse([]byte(sipTemplateJSON), ".xml")
	assert.ErrorIs(t, err, ErrTemplateInvalid)
}

func TestTemplateJSONRoundTrip(t *testing.T) {
	tpl, err := Parse([]byte(sipTemplateJSON), ".json")
	require.NoError(t, err)

	data, err := json.Marshal(tpl)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"section_type":"SIP_DETAILS"`)

	var back Template
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, tpl.Sections, back.Sections)
}

func TestLoadDirSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	write("a_sip.json", sipTemplateJSON)
	write("b_ctf.yaml", ctfTemplateYAML)
	write("c_broken.json", `{"name": "broken"`)
	write("d_duplicate.json", sipTemplateJSON)
	write("notes.txt", "not a template")

	var logs bytes.Buffer
	store, err := LoadDir(dir, testLogger(&logs))
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())
	names := []string{}
	for _, tpl := range store.All() {
		names = append(names, tpl.Name)
	}
	assert.Equal(t, []string{"ctf_basic", "sip_registration_v2"}, names)
	assert.Contains(t, logs.String(), "template skipped")
	assert.Contains(t, logs.String(), "duplicate template name skipped")
}

func TestLoadDirMissing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"), nil)
	assert.Error(t, err)
}

func TestStoreFor(t *testing.T) {
	mk := func(name string, ft FormType) *Template {
		tpl, err := New(name, ft, time.Time{})
		require.NoError(t, err)
		return tpl
	}
	store := NewStore(nil, mk("sip_b", FormSIP), mk("sip_a", FormSIP), mk("ca", FormCA))

	tpl, ok := store.For(FormSIP)
	require.True(t, ok)
	assert.Equal(t, "sip_a", tpl.Name)

	tpl, ok = store.For("ca form")
	require.True(t, ok)
	assert.Equal(t, "ca", tpl.Name)

	_, ok = store.For(FormUnknown)
	assert.False(t, ok)
	_, ok = store.For(FormCTF)
	assert.False(t, ok)

	_, ok = store.Get("sip_b")
	assert.True(t, ok)
	assert.Equal(t, []FormType{FormCA, FormSIP}, store.FormTypes())
}

func TestBundledTemplates(t *testing.T) {
	store, err := LoadDir(filepath.Join("..", "..", "templates"), slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil)))
	require.NoError(t, err)
	require.Equal(t, 4, store.Len())

	assert.ElementsMatch(t, []FormType{FormCA, FormSIP, FormMultipleSIP, FormCTF}, store.FormTypes())

	multi, ok := store.For(FormMultipleSIP)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1}, multi.Pages())
	assert.Len(t, multi.SectionsOnPage(0), 3)

	ca, ok := store.For(FormCA)
	require.True(t, ok)
	assert.Equal(t, SectionSection8, ca.Sections[0].Type)
	assert.Equal(t, SectionOTM, ca.Sections[1].Type)
}
