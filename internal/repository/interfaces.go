package repository

import (
	"io"

	"github.com/anime-shed/defect-inspector-go/pkg/models"
)

// ImageRepository defines the interface for upload and annotated image storage
type ImageRepository interface {
	// SaveUpload stores the client's bytes under a fresh random name keeping the
	// original file's extension.
	SaveUpload(originalFilename string, data io.Reader) (*models.Upload, error)

	// NewAnnotatedImage reserves a fresh name for an annotated image. Nothing is written.
	NewAnnotatedImage(ext string) *models.AnnotatedImage

	// AnnotatedPath resolves a retrievable annotated image by filename.
	AnnotatedPath(filename string) (string, error)
}
