// Package imaging reads and writes image files and renders detection overlays.
package imaging

import (
	"errors"
	"image"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when a file extension maps to no encoder.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Codec persists images in the container format implied by the file extension.
type Codec interface {
	Read(path string) (image.Image, error)
	Write(path string, img image.Image) error
}

// Format is a normalized container name.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatWEBP Format = "webp"
)

// FormatFromPath maps a path's extension to a Format.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".jpe":
		return FormatJPEG, nil
	case ".png":
		return FormatPNG, nil
	case ".gif":
		return FormatGIF, nil
	case ".bmp":
		return FormatBMP, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".webp":
		return FormatWEBP, nil
	default:
		return "", ErrUnsupportedFormat
	}
}
