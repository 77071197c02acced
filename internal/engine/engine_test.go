package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/formcheck/internal/extractor"
	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/raster/rastertest"
	"github.com/a3tai/formcheck/internal/report"
	"github.com/a3tai/formcheck/internal/template"
	"github.com/a3tai/formcheck/internal/validator"
)

var (
	transactionBox = raster.Box{X: 0.1, Y: 0.1, Width: 0.8, Height: 0.2}
	lowerHalf      = raster.Box{X: 0, Y: 0.5, Width: 1, Height: 0.5}
	upperHalf      = raster.Box{X: 0, Y: 0, Width: 1, Height: 0.5}
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTemplate(t *testing.T, name string, formType template.FormType, sections ...template.Section) *template.Template {
	t.Helper()
	tpl, err := template.New(name, formType, time.Time{}, sections...)
	require.NoError(t, err)
	return tpl
}

func section(name string, st template.SectionType, page int, box raster.Box) template.Section {
	return template.Section{Name: name, Type: st, Page: page, BoundingBox: box}
}

// newEngine reads text from the page text layer and measures features locally.
func newEngine(templates ...*template.Template) *Engine {
	return New(template.NewStore(quiet(), templates...), extractor.NewLayer(), nil, WithLogger(quiet()))
}

func word(text string, x, y float64) raster.Word {
	return raster.Word{Text: text, X: x, Y: y, W: 0.1, H: 0.02}
}

// ruledPage draws a transaction table with a tick and a registration label.
func ruledPage() *raster.Page {
	canvas := rastertest.NewCanvas(400, 400).
		HLine(50, 350, 50).
		HLine(50, 350, 80).
		HLine(50, 350, 110).
		Blobs(60, 56, 340, 76, 4, 6).
		Blobs(60, 86, 340, 106, 4, 6)
	return canvas.Page(0,
		word("New", 0.2, 0.2),
		word("SIP", 0.32, 0.2),
		word("Registration", 0.44, 0.2))
}

func sipTemplate(t *testing.T) *template.Template {
	return newTemplate(t, "SIP", template.FormSIP,
		section("transaction", template.SectionTransactionType, 0, transactionBox))
}

func TestProcessRuledForm(t *testing.T) {
	e := newEngine(sipTemplate(t))

	rep := e.Process(context.Background(), []*raster.Page{ruledPage()})

	assert.Equal(t, report.StatusSuccess, rep.Status)
	assert.Equal(t, template.FormSIP, rep.FormType)
	assert.Equal(t, "SIP", rep.Template)
	assert.Greater(t, rep.Confidence, 0.5)
	assert.Equal(t, 1, rep.TotalPages)
	assert.NotEmpty(t, rep.DocumentID)

	require.Contains(t, rep.Sections, "transaction")
	tx := rep.Sections["transaction"]
	assert.True(t, tx.Filled)
	assert.Equal(t, "registration", tx.Details["type_detected"])
}

func TestValidateMandate(t *testing.T) {
	page := rastertest.NewCanvas(400, 400).
		Scribble(40, 300, 360, 380).
		Page(0,
			word("HDFC0001234", 0.1, 0.6),
			word("400012345678", 0.4, 0.6))

	e := newEngine(newTemplate(t, "SIP", template.FormSIP,
		section("otm", template.SectionOTM, 0, lowerHalf)))

	rep := e.Validate(context.Background(), template.FormSIP, []*raster.Page{page})

	require.Equal(t, report.StatusSuccess, rep.Status)
	otm := rep.Sections["otm"]
	assert.True(t, otm.Filled)
	assert.Equal(t, true, otm.Details["account_number_found"])
	assert.Equal(t, true, otm.Details["ifsc_found"])
	assert.True(t, rep.OTMDetailsFilled)
	assert.False(t, rep.SIPDetailsFilled)
	assert.Zero(t, rep.Confidence)
}

func TestValidateEmptyRegionIsLocal(t *testing.T) {
	e := newEngine(newTemplate(t, "CA", template.FormCA,
		section("beyond edge", template.SectionOther, 0, raster.Box{X: 1.0, Y: 0.9, Width: 0.5, Height: 0.5}),
		section("corner", template.SectionOther, 0, raster.Box{X: 0.9, Y: 0.9, Width: 0.5, Height: 0.5}),
	))

	rep := e.Validate(context.Background(), template.FormCA, []*raster.Page{rastertest.NewCanvas(200, 200).Page(0)})

	assert.Equal(t, report.StatusSuccess, rep.Status)
	empty := rep.Sections["beyond edge"]
	assert.False(t, empty.Filled)
	assert.Equal(t, report.ErrInvalidCoordinates, empty.Error)
	assert.NotNil(t, empty.Details)

	// clamped to the bottom-right strip, still a valid region
	corner := rep.Sections["corner"]
	assert.Empty(t, corner.Error)
	assert.False(t, corner.Filled)
}

func TestUnknownFormType(t *testing.T) {
	e := newEngine(sipTemplate(t))
	pages := []*raster.Page{rastertest.NewCanvas(400, 400).Page(0)}

	rep := e.Validate(context.Background(), template.FormUnknown, pages)
	assert.Equal(t, report.StatusError, rep.Status)
	assert.Equal(t, report.MessageNoTemplate, rep.Message)

	rep = e.Process(context.Background(), pages)
	assert.Equal(t, report.StatusWarning, rep.Status)
	assert.Equal(t, report.MessageUnknownFormType, rep.Message)
	assert.Equal(t, template.FormUnknown, rep.FormType)
	assert.LessOrEqual(t, rep.Confidence, 0.5)
	assert.Empty(t, rep.Sections)
}

func TestSIPFamilyAggregation(t *testing.T) {
	page := rastertest.NewCanvas(400, 400).Page(0,
		word("Monthly", 0.1, 0.2),
		word("Rs", 0.22, 0.2),
		word("1,000", 0.34, 0.2),
		word("for", 0.46, 0.2),
		word("3", 0.58, 0.2),
		word("years", 0.7, 0.2))

	e := newEngine(newTemplate(t, "Multi", template.FormMultipleSIP,
		section("scheme 1", template.SectionScheme, 0, upperHalf),
		section("scheme 2", template.SectionScheme, 0, lowerHalf)))

	rep := e.Validate(context.Background(), template.FormMultipleSIP, []*raster.Page{page})

	require.Equal(t, report.StatusSuccess, rep.Status)
	assert.True(t, rep.Sections["scheme 1"].Filled)
	assert.False(t, rep.Sections["scheme 2"].Filled)
	assert.True(t, rep.SIPDetailsFilled)
	assert.False(t, rep.OTMDetailsFilled)
	assert.Equal(t, &report.SchemeTally{Total: 2, Filled: 1}, rep.Schemes)
	assert.Nil(t, rep.AttachedSIP)
}

func TestCTFAttachedSIP(t *testing.T) {
	ctf := newTemplate(t, "CTF", template.FormCTF,
		section("transactions", template.SectionTransactionType, 0, transactionBox))
	e := newEngine(ctf)

	front := rastertest.NewCanvas(400, 400).Page(0)
	headingOnly := rastertest.NewCanvas(400, 400).Page(1,
		word("Systematic", 0.1, 0.1),
		word("Investment", 0.22, 0.1),
		word("Plan", 0.34, 0.1))
	sipForm := rastertest.NewCanvas(400, 400).Page(2,
		word("SIP", 0.1, 0.1),
		word("Registration", 0.22, 0.1),
		word("Monthly", 0.1, 0.3),
		word("Rs", 0.22, 0.3),
		word("5,000", 0.34, 0.3),
		word("for", 0.46, 0.3),
		word("12", 0.58, 0.3),
		word("months", 0.7, 0.3))

	t.Run("found on a later page", func(t *testing.T) {
		rep := e.Validate(context.Background(), template.FormCTF, []*raster.Page{front, headingOnly, sipForm})

		require.Equal(t, report.StatusSuccess, rep.Status)
		require.NotNil(t, rep.AttachedSIP)
		assert.True(t, rep.AttachedSIP.Found)
		assert.Equal(t, 2, rep.AttachedSIP.Page)
		assert.True(t, rep.AttachedSIP.Details.Bool("frequency_found"))
		assert.Equal(t, []template.FormType{template.FormCTF, template.FormSIP}, rep.FormTypes)
		assert.Nil(t, rep.Schemes)
	})

	t.Run("single page", func(t *testing.T) {
		rep := e.Validate(context.Background(), template.FormCTF, []*raster.Page{front})

		require.NotNil(t, rep.AttachedSIP)
		assert.False(t, rep.AttachedSIP.Found)
		assert.Equal(t, []template.FormType{template.FormCTF}, rep.FormTypes)
	})

	t.Run("other form types are not searched", func(t *testing.T) {
		sip := newEngine(sipTemplate(t))
		rep := sip.Validate(context.Background(), template.FormSIP, []*raster.Page{ruledPage(), sipForm})

		assert.Nil(t, rep.AttachedSIP)
		assert.Empty(t, rep.FormTypes)
	})
}

func TestNoPages(t *testing.T) {
	e := newEngine(sipTemplate(t))

	for name, rep := range map[string]*report.FormReport{
		"validate": e.Validate(context.Background(), template.FormSIP, nil),
		"process":  e.Process(context.Background(), nil),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, report.StatusError, rep.Status)
			assert.Equal(t, report.MessageNoPages, rep.Message)
			assert.Zero(t, rep.TotalPages)
			assert.Empty(t, rep.DocumentID)
		})
	}
}

func TestSectionsOnAbsentPagesAreSkipped(t *testing.T) {
	e := newEngine(newTemplate(t, "CTF", template.FormCTF,
		section("front", template.SectionOther, 0, upperHalf),
		section("back", template.SectionOther, 2, upperHalf)))

	rep := e.Validate(context.Background(), template.FormCTF, []*raster.Page{rastertest.NewCanvas(100, 100).Page(0)})

	assert.Equal(t, report.StatusSuccess, rep.Status)
	assert.Contains(t, rep.Sections, "front")
	assert.NotContains(t, rep.Sections, "back")
}

func TestTinyPage(t *testing.T) {
	e := newEngine(sipTemplate(t))

	rep := e.Validate(context.Background(), template.FormSIP, []*raster.Page{rastertest.NewCanvas(1, 1).Page(0)})

	assert.Equal(t, report.StatusSuccess, rep.Status)
	assert.Equal(t, report.ErrInvalidCoordinates, rep.Sections["transaction"].Error)
}

func TestProcessIsIdempotentAndRoundTrips(t *testing.T) {
	e := newEngine(sipTemplate(t))
	pages := []*raster.Page{ruledPage()}

	first := e.Process(context.Background(), pages)
	second := e.Process(context.Background(), pages)
	assert.Equal(t, first, second)

	data, err := json.Marshal(first)
	require.NoError(t, err)
	decoded, err := report.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, first, decoded)
}

func TestDocumentID(t *testing.T) {
	a := []*raster.Page{ruledPage()}
	b := []*raster.Page{rastertest.NewCanvas(400, 400).Page(0)}

	assert.Equal(t, DocumentID(a), DocumentID([]*raster.Page{ruledPage()}))
	assert.NotEqual(t, DocumentID(a), DocumentID(b))
	assert.NotEqual(t, DocumentID(b), DocumentID([]*raster.Page{rastertest.NewCanvas(400, 401).Page(0)}))
}

func TestCancelledContextYieldsError(t *testing.T) {
	e := newEngine(sipTemplate(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := e.Validate(ctx, template.FormSIP, []*raster.Page{ruledPage()})
	assert.Equal(t, report.StatusError, rep.Status)
	assert.Contains(t, rep.Message, context.Canceled.Error())
	assert.Empty(t, rep.Sections)

	rep = e.Process(ctx, []*raster.Page{ruledPage()})
	assert.Equal(t, report.StatusError, rep.Status)
}

func TestPanickingProviderDoesNotFailDocument(t *testing.T) {
	boom := extractor.TextFunc(func(context.Context, *raster.Region) (string, error) {
		panic("ocr crashed")
	})
	e := New(template.NewStore(quiet(), sipTemplate(t)), boom, nil, WithLogger(quiet()))

	rep := e.Validate(context.Background(), template.FormSIP, []*raster.Page{ruledPage()})

	assert.Equal(t, report.StatusSuccess, rep.Status)
	assert.False(t, rep.Sections["transaction"].Filled)
}

type crashingReader struct{}

func (crashingReader) Text(context.Context, *raster.Region) string { panic("strategy crashed") }

func TestPanickingValidatorIsLocal(t *testing.T) {
	e := newEngine(newTemplate(t, "CA", template.FormCA,
		section("bank", template.SectionBankDetails, 0, upperHalf),
		section("beyond edge", template.SectionOther, 0, raster.Box{X: 1.0, Y: 0.9, Width: 0.5, Height: 0.5})))
	e.registry = validator.NewRegistryWithPolicies(
		validator.NewKit(crashingReader{}, validator.DefaultThresholds()), validator.DefaultPolicies())

	rep := e.Validate(context.Background(), template.FormCA, []*raster.Page{rastertest.NewCanvas(200, 200).Page(0)})

	assert.Equal(t, report.StatusSuccess, rep.Status)
	assert.Empty(t, rep.Message)

	bank := rep.Sections["bank"]
	assert.False(t, bank.Filled)
	assert.Equal(t, template.SectionBankDetails, bank.SectionType)
	assert.Contains(t, bank.Error, "strategy crashed")
	assert.NotNil(t, bank.Details)

	assert.Equal(t, report.ErrInvalidCoordinates, rep.Sections["beyond edge"].Error)
	assert.Equal(t, 1, e.Stability().PanicCount())
}

func TestClockStampsReports(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	e := New(template.NewStore(quiet(), sipTemplate(t)), extractor.NewLayer(), nil,
		WithLogger(quiet()),
		WithClock(func() time.Time { return at }))

	rep := e.Process(context.Background(), []*raster.Page{ruledPage()})
	require.NotNil(t, rep.ProcessedAt)
	assert.Equal(t, at, *rep.ProcessedAt)
}
