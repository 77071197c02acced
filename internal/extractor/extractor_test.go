package extractor

import (
	"context"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/a3tai/formcheck/internal/raster"
	"github.com/a3tai/formcheck/internal/raster/rastertest"
	"github.com/a3tai/formcheck/internal/vision"
)

func region(t *testing.T, words ...raster.Word) *raster.Region {
	t.Helper()
	page := rastertest.NewCanvas(100, 100).Page(0, words...)
	r, err := raster.Extract(page, raster.Box{Width: 1, Height: 1})
	require.NoError(t, err)
	return r
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Monthly   SIP \r\n\r\n  Rs 5,000 ", "monthly sip\nrs 5,000"},
		{"ＨＤＦＣ０００１２３４", "hdfc0001234"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in))
	}
}

func TestLayerText(t *testing.T) {
	r := region(t,
		raster.Word{Text: "5,000", X: 0.40, Y: 0.50, W: 0.10, H: 0.04},
		raster.Word{Text: "Monthly", X: 0.10, Y: 0.20, W: 0.15, H: 0.04},
		raster.Word{Text: "Amount", X: 0.10, Y: 0.51, W: 0.15, H: 0.04},
		raster.Word{Text: "SIP", X: 0.30, Y: 0.205, W: 0.05, H: 0.04},
	)

	text, err := NewLayer().Text(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "Monthly SIP\nAmount 5,000", text)

	_, err = NewLayer().Text(context.Background(), region(t))
	assert.ErrorIs(t, err, ErrNoText)
}

func TestTikaText(t *testing.T) {
	var gotLanguage, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tika", r.URL.Path)
		gotLanguage = r.Header.Get("X-Tika-OCRLanguage")
		gotType = r.Header.Get("Content-Type")

		_, err := png.Decode(r.Body)
		assert.NoError(t, err)
		_, _ = io.WriteString(w, "  HDFC0001234 \n")
	}))
	defer srv.Close()

	client, err := NewTika(srv.URL, WithLanguage("eng+hin"), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	text, err := client.Text(context.Background(), region(t))
	require.NoError(t, err)
	assert.Equal(t, "HDFC0001234", text)
	assert.Equal(t, "eng+hin", gotLanguage)
	assert.Equal(t, "image/png", gotType)
}

func TestTikaErrors(t *testing.T) {
	_, err := NewTika("")
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ocr unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := NewTika(srv.URL)
	require.NoError(t, err)
	_, err = client.Text(context.Background(), region(t))
	assert.ErrorContains(t, err, "ocr unavailable")

	_, err = client.Text(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestMultiFallsThrough(t *testing.T) {
	failing := TextFunc(func(context.Context, *raster.Region) (string, error) {
		return "", errors.New("boom")
	})
	empty := TextFunc(func(context.Context, *raster.Region) (string, error) {
		return "", nil
	})
	good := TextFunc(func(context.Context, *raster.Region) (string, error) {
		return "found", nil
	})

	text, err := NewMulti(failing, empty, good).Text(context.Background(), region(t))
	require.NoError(t, err)
	assert.Equal(t, "found", text)

	_, err = NewMulti(failing).Text(context.Background(), region(t))
	assert.ErrorContains(t, err, "boom")

	_, err = NewMulti().Text(context.Background(), region(t))
	assert.ErrorIs(t, err, ErrNoText)
}

func TestLimitedText(t *testing.T) {
	calls := 0
	p := TextFunc(func(context.Context, *raster.Region) (string, error) {
		calls++
		return "ok", nil
	})

	limited := NewLimitedText(rate.NewLimiter(rate.Every(time.Hour), 1), p)
	_, err := limited.Text(context.Background(), region(t))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = limited.Text(ctx, region(t))
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	unlimited := NewLimitedText(nil, p)
	_, err = unlimited.Text(context.Background(), region(t))
	assert.NoError(t, err)
}

func TestTracedProvidersPassThrough(t *testing.T) {
	text, err := NewTracedText("layer", NewLayer()).Text(context.Background(),
		region(t, raster.Word{Text: "Nominee", X: 0.1, Y: 0.1, W: 0.2, H: 0.05}))
	require.NoError(t, err)
	assert.Equal(t, "Nominee", text)

	f, err := NewTracedFeatures("vision", vision.NewAnalyzer()).Features(context.Background(), region(t))
	require.NoError(t, err)
	assert.Zero(t, f.Lines)
}

func TestGuard(t *testing.T) {
	slow := TextFunc(func(ctx context.Context, _ *raster.Region) (string, error) {
		time.Sleep(time.Second)
		return "too late", nil
	})
	panicking := TextFunc(func(context.Context, *raster.Region) (string, error) {
		panic("ocr crashed")
	})
	failing := FeatureFunc(func(context.Context, *raster.Region) (vision.Features, error) {
		return vision.Features{Lines: 9}, errors.New("boom")
	})
	upper := TextFunc(func(context.Context, *raster.Region) (string, error) {
		return "  Monthly  SIP ", nil
	})

	tests := []struct {
		name  string
		guard *Guard
		want  string
	}{
		{"timeout is no text", NewGuard(slow, nil, 20*time.Millisecond, nil), ""},
		{"panic is no text", NewGuard(panicking, nil, time.Second, nil), ""},
		{"nil provider is no text", NewGuard(nil, nil, time.Second, nil), ""},
		{"text is normalised", NewGuard(upper, nil, 0, nil), "monthly sip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.guard.Text(context.Background(), region(t)))
		})
	}

	g := NewGuard(nil, failing, time.Second, nil)
	assert.Equal(t, vision.Features{}, g.Features(context.Background(), region(t)))
	assert.Equal(t, vision.Features{}, NewGuard(nil, nil, 0, nil).Features(context.Background(), region(t)))
}
