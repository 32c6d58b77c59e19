//go:build !gocv

package imaging

import (
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/chai2010/webp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

const jpegQuality = 95

type stdCodec struct{}

// NewCodec returns the pure-Go codec. Build with -tags gocv for the OpenCV one.
func NewCodec() Codec {
	return stdCodec{}
}

func (stdCodec) Read(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (stdCodec) Write(path string, img image.Image) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return fmt.Errorf("%w: %q", err, path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	switch format {
	case FormatJPEG:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: jpegQuality})
	case FormatPNG:
		err = png.Encode(f, img)
	case FormatGIF:
		err = gif.Encode(f, img, nil)
	case FormatBMP:
		err = bmp.Encode(f, img)
	case FormatTIFF:
		err = tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatWEBP:
		// lossless, as OpenCV writes webp without a quality parameter
		err = webp.Encode(f, img, &webp.Options{Lossless: true})
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}
