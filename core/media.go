package core

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// ErrUnsupportedMediaType is returned by MediaService.Upload for files that are not images.
var ErrUnsupportedMediaType = errors.New("unsupported image type")

// MediaService stores uploaded files and returns their public URL.
type MediaService interface {
	Upload(ctx context.Context, r io.Reader, filename string) (url string, err error)
}
