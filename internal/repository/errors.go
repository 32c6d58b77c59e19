package repository

import "errors"

var (
	// ErrImageNotFound indicates the requested image is not in the store
	ErrImageNotFound = errors.New("image not found")

	// ErrInvalidFilename indicates a name that cannot address a stored file
	ErrInvalidFilename = errors.New("invalid filename")
)
