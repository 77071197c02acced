package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

var errNoDocument = errors.New("no document uploaded")

// extensions names raw uploads that carry no filename.
var extensions = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/tiff":      ".tiff",
	"image/bmp":       ".bmp",
	"image/webp":      ".webp",
}

type upload struct {
	Name    string
	Content []byte
}

func valueFormType(r *http.Request) string {
	if val := r.FormValue("form_type"); val != "" {
		return strings.TrimSpace(val)
	}

	return ""
}

// readFile takes the document from the "file" multipart field, or else
// from the raw request body.
func (h *Handler) readFile(w http.ResponseWriter, r *http.Request) (*upload, error) {
	if max := h.loader.Config().MaxFileSize; max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, max+uploadOverhead)
	}

	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()

		data, err := io.ReadAll(file)

		if err != nil {
			return nil, err
		}

		return &upload{
			Name:    filepath.Base(header.Filename),
			Content: data,
		}, nil
	}

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if strings.HasPrefix(contentType, "multipart/") {
		return nil, errNoDocument
	}

	_, params, _ := mime.ParseMediaType(r.Header.Get("Content-Disposition"))

	filename := params["filename*"]
	filename = strings.TrimPrefix(filename, "UTF-8''")
	filename = strings.TrimPrefix(filename, "utf-8''")

	if filename == "" {
		filename = params["filename"]
	}

	if filename == "" {
		ext, ok := extensions[contentType]

		if !ok {
			return nil, fmt.Errorf("cannot tell document type from content type %q", contentType)
		}

		filename = "document" + ext
	}

	data, err := io.ReadAll(r.Body)

	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, errNoDocument
	}

	return &upload{
		Name:    filepath.Base(filename),
		Content: data,
	}, nil
}
