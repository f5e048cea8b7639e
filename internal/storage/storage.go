package storage

import (
	"errors"
	"io"
)

var (
	ErrInvalidName = errors.New("invalid image name")
	ErrNotCached   = errors.New("image not cached")
)

// ImageStore keeps copies of the backend's captured images.
type ImageStore interface {
	Save(name string, r io.Reader) error
	Open(name string) (io.ReadSeekCloser, error)
	Delete(name string) error
}
