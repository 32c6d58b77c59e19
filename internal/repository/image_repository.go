package repository

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/anime-shed/defect-inspector-go/internal/storage"
	"github.com/anime-shed/defect-inspector-go/pkg/models"
)

// InspectedURLPrefix is the public route annotated images are served from.
const InspectedURLPrefix = "/inspected/"

// FileImageRepository implements ImageRepository over two flat directory stores
type FileImageRepository struct {
	uploads   storage.FileStore
	inspected storage.FileStore
}

// NewFileImageRepository creates a repository writing uploads and annotated images to separate stores
func NewFileImageRepository(uploads, inspected storage.FileStore) ImageRepository {
	return &FileImageRepository{
		uploads:   uploads,
		inspected: inspected,
	}
}

func (r *FileImageRepository) SaveUpload(originalFilename string, data io.Reader) (*models.Upload, error) {
	id := newID()
	ext := filepath.Ext(originalFilename)

	path, err := r.uploads.Save(id+ext, data)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	return &models.Upload{
		OriginalFilename: originalFilename,
		Ext:              ext,
		ID:               id,
		Path:             path,
	}, nil
}

func (r *FileImageRepository) NewAnnotatedImage(ext string) *models.AnnotatedImage {
	filename := newID() + "_annotated" + ext
	return &models.AnnotatedImage{
		Filename: filename,
		Path:     r.inspected.Path(filename),
		URL:      InspectedURLPrefix + filename,
	}
}

func (r *FileImageRepository) AnnotatedPath(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.Contains(filename, "..") {
		return "", ErrInvalidFilename
	}
	if !r.inspected.Exists(filename) {
		return "", ErrImageNotFound
	}
	return r.inspected.Path(filename), nil
}

// newID is a random 128-bit identifier as 32 lowercase hex characters.
func newID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:])
}
