package engine

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/a3tai/formcheck/internal/raster"
)

var documentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/a3tai/formcheck/document"))

// DocumentID derives a stable identifier from page dimensions and pixels, so
// the same scan always maps to the same id.
func DocumentID(pages []*raster.Page) string {
	h := sha256.New()
	var dims [8]byte
	for _, p := range pages {
		if p == nil || p.Image == nil {
			h.Write([]byte{0})
			continue
		}
		binary.BigEndian.PutUint32(dims[0:4], uint32(p.Width()))
		binary.BigEndian.PutUint32(dims[4:8], uint32(p.Height()))
		h.Write(dims[:])

		b := p.Image.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			start := p.Image.PixOffset(b.Min.X, y)
			h.Write(p.Image.Pix[start : start+b.Dx()])
		}
	}
	return uuid.NewSHA1(documentNamespace, h.Sum(nil)).String()
}
