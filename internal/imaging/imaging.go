// Package imaging handles the generated question illustrations: data URLs and
// the small bordered thumbnails embedded in document exports.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultMIMEType is assumed when the model returns image bytes without a type.
const DefaultMIMEType = "image/png"

// ExportWidth is the width of images embedded in document exports.
const ExportWidth = 180

// BorderColor matches the thin grey frame around exported images.
const BorderColor = "#cccccc"

// ErrNotDataURL is returned for strings that are not base64 data URLs.
var ErrNotDataURL = errors.New("not a base64 data URL")

// DataURL encodes raw image bytes as a data URL.
func DataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL splits a base64 data URL into its MIME type and decoded bytes.
func ParseDataURL(s string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	return mimeType, data, nil
}

// Extension returns the file extension for an image MIME type.
func Extension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// Thumbnail scales an encoded image to the given width, keeping its aspect
// ratio, frames it with a 1px border and returns it as PNG.
func Thumbnail(data []byte, width int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode image: empty bounds")
	}
	height := max(1, b.Dy()*width/b.Dx())

	scaled := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, draw.Over, nil)

	dc := gg.NewContextForRGBA(scaled)
	dc.SetHexColor(BorderColor)
	dc.SetLineWidth(1)
	dc.DrawRectangle(0.5, 0.5, float64(width)-1, float64(height)-1)
	dc.Stroke()

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// ThumbnailDataURL is Thumbnail for data URLs. Images that cannot be decoded are
// returned unchanged so an export never loses an illustration.
func ThumbnailDataURL(dataURL string, width int) string {
	_, data, err := ParseDataURL(dataURL)
	if err != nil {
		return dataURL
	}
	thumb, err := Thumbnail(data, width)
	if err != nil {
		return dataURL
	}
	return DataURL("image/png", thumb)
}
