package extractor

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/a3tai/formcheck/internal/raster"
)

var _ TextProvider = &Tika{}

// Tika sends region crops to an Apache Tika server and returns the OCR text.
type Tika struct {
	client *http.Client

	url      string
	language string
}

// TikaOption configures a Tika client.
type TikaOption func(*Tika)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) TikaOption {
	return func(t *Tika) {
		t.client = client
	}
}

// WithLanguage sets the Tesseract language passed to Tika, e.g. "eng+hin".
func WithLanguage(language string) TikaOption {
	return func(t *Tika) {
		t.language = language
	}
}

// NewTika returns a client for the Tika server at url.
func NewTika(url string, options ...TikaOption) (*Tika, error) {
	if url == "" {
		return nil, errors.New("invalid url")
	}

	t := &Tika{
		client: http.DefaultClient,

		url:      url,
		language: "eng",
	}

	for _, option := range options {
		option(t)
	}

	return t, nil
}

func (t *Tika) Text(ctx context.Context, region *raster.Region) (string, error) {
	if region == nil || region.Image == nil {
		return "", ErrUnsupported
	}

	var body bytes.Buffer
	if err := png.Encode(&body, region.Image); err != nil {
		return "", err
	}

	u, _ := url.JoinPath(t.url, "/tika")
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, &body)
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Accept", "text/plain")
	req.Header.Set("X-Tika-OCRLanguage", t.language)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", convertError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

func convertError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)

	if len(data) == 0 {
		return errors.New(http.StatusText(resp.StatusCode))
	}

	return errors.New(string(data))
}
