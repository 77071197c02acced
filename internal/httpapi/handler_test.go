package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/formcheck/internal/classifier"
	"github.com/a3tai/formcheck/internal/engine"
	"github.com/a3tai/formcheck/internal/extractor"
	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/raster/rastertest"
	"github.com/a3tai/formcheck/internal/report"
	"github.com/a3tai/formcheck/internal/source"
	"github.com/a3tai/formcheck/internal/template"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func ruledPNG(t *testing.T) []byte {
	t.Helper()
	img := rastertest.NewCanvas(400, 400).
		HLine(50, 350, 50).
		HLine(50, 350, 80).
		HLine(50, 350, 110).
		Blobs(60, 56, 340, 76, 4, 6).
		Blobs(60, 86, 340, 106, 4, 6).
		Image()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestHandler(t *testing.T, maxFileSize int64) http.Handler {
	t.Helper()
	tpl, err := template.New("SIP", template.FormSIP, time.Time{}, template.Section{
		Name:        "transaction",
		Type:        template.SectionTransactionType,
		BoundingBox: raster.Box{X: 0.1, Y: 0.1, Width: 0.8, Height: 0.2},
	})
	require.NoError(t, err)

	eng := engine.New(template.NewStore(quiet(), tpl), extractor.NewLayer(), nil, engine.WithLogger(quiet()))
	loader := source.NewLoaderWithConfig(source.Config{MaxFileSize: maxFileSize}, quiet())

	h, err := New(eng, loader, quiet())
	require.NoError(t, err)
	return h.Routes()
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew(t *testing.T) {
	eng := engine.New(nil, nil, nil, engine.WithLogger(quiet()))

	_, err := New(nil, source.NewLoader(quiet()), nil)
	assert.ErrorContains(t, err, "engine")

	_, err = New(eng, nil, nil)
	assert.ErrorContains(t, err, "loader")

	h, err := New(eng, source.NewLoader(quiet()), nil)
	require.NoError(t, err)
	assert.NotNil(t, h.Routes())
}

func TestProcessUpload(t *testing.T) {
	h := newTestHandler(t, 10<<20)

	body, contentType := multipartBody(t, "ruled.png", ruledPNG(t), nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/documents/process", body)
	req.Header.Set("Content-Type", contentType)

	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rep, err := report.Decode(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, report.StatusSuccess, rep.Status)
	assert.Equal(t, template.FormSIP, rep.FormType)
	assert.Contains(t, rep.Sections, "transaction")
	assert.NotEmpty(t, rep.DocumentID)
}

func TestClassifyRawBody(t *testing.T) {
	h := newTestHandler(t, 10<<20)

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/classify", bytes.NewReader(ruledPNG(t)))
	req.Header.Set("Content-Type", "image/png")

	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result classifier.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, template.FormSIP, result.FormType)
	assert.Equal(t, "SIP", result.Template)
	assert.Greater(t, result.Confidence, 0.5)
}

func TestValidateUpload(t *testing.T) {
	h := newTestHandler(t, 10<<20)

	tests := []struct {
		name       string
		fields     map[string]string
		wantCode   int
		wantStatus report.Status
	}{
		{"taught form type", map[string]string{"form_type": "SIP Form"}, http.StatusOK, report.StatusSuccess},
		{"untaught form type", map[string]string{"form_type": "CA Form"}, http.StatusOK, report.StatusError},
		{"missing form type", nil, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, "ruled.png", ruledPNG(t), tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/v1/documents/validate", body)
			req.Header.Set("Content-Type", contentType)

			rec := serve(h, req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantStatus == "" {
				return
			}

			rep, err := report.Decode(rec.Body.Bytes())
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, rep.Status)
		})
	}
}

func TestUploadRejects(t *testing.T) {
	h := newTestHandler(t, 1024)

	raw := func(contentType string, data []byte) func(t *testing.T) (io.Reader, string) {
		return func(*testing.T) (io.Reader, string) { return bytes.NewReader(data), contentType }
	}
	form := func(filename string, data []byte) func(t *testing.T) (io.Reader, string) {
		return func(t *testing.T) (io.Reader, string) {
			return multipartBody(t, filename, data, map[string]string{"form_type": "SIP Form"})
		}
	}

	tests := []struct {
		name string
		body func(t *testing.T) (io.Reader, string)
		want int
	}{
		{"no file field", form("", nil), http.StatusBadRequest},
		{"unsupported upload", form("notes.txt", []byte("hello")), http.StatusUnsupportedMediaType},
		{"unknown raw type", raw("text/plain", []byte("hello")), http.StatusBadRequest},
		{"empty raw body", raw("image/png", nil), http.StatusBadRequest},
		{"corrupt image", raw("image/png", []byte("not a png")), http.StatusBadRequest},
		{"too large", raw("image/png", bytes.Repeat([]byte{1}, 4<<20)), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := tt.body(t)
			req := httptest.NewRequest(http.MethodPost, "/v1/documents/process", body)
			req.Header.Set("Content-Type", contentType)

			rec := serve(h, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestTemplates(t *testing.T) {
	h := newTestHandler(t, 10<<20)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/templates", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list struct {
		Count     int      `json:"count"`
		FormTypes []string `json:"form_types"`
		Templates []struct {
			Name     string `json:"name"`
			FormType string `json:"form_type"`
		} `json:"templates"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, []string{"SIP Form"}, list.FormTypes)
	require.Len(t, list.Templates, 1)
	assert.Equal(t, "SIP", list.Templates[0].Name)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/templates/SIP", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"section_type":"TRANSACTION_TYPE"`)

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/templates/CTF", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, 10<<20)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Status    string `json:"status"`
		Templates int    `json:"templates"`
		Health    struct {
			Healthy    bool `json:"healthy"`
			PanicCount int  `json:"panic_count"`
		} `json:"health"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, 1, status.Templates)
	assert.True(t, status.Health.Healthy)
	assert.Zero(t, status.Health.PanicCount)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, 10<<20)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/documents/process", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServerServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(ln.Addr().String(), newTestHandler(t, 10<<20), quiet())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
