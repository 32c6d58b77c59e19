//go:build gocv

package imaging

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

type gocvCodec struct{}

// NewCodec returns the OpenCV-backed codec.
func NewCodec() Codec {
	return gocvCodec{}
}

func (gocvCodec) Read(path string) (image.Image, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	defer mat.Close()

	if mat.Empty() {
		return nil, errors.New("failed to decode image")
	}
	return mat.ToImage()
}

func (gocvCodec) Write(path string, img image.Image) error {
	if _, err := FormatFromPath(path); err != nil {
		return fmt.Errorf("%w: %q", err, path)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	if !gocv.IMWrite(path, mat) {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}
