// Package mediasvc stores the uploaded assignment images on cloudinary, or on the local disk
// during development.
package mediasvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/stenolearn/backend/core"
)

var (
	imageExts  = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}
	unsafeChar = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

// publicID returns a unique, URL-safe name for filename, without its extension.
func publicID(filename string) (id, ext string, err error) {
	base := filepath.Base(filename)
	ext = strings.ToLower(filepath.Ext(base))
	if !imageExts[ext] {
		return "", "", errors.Wrap(core.ErrUnsupportedMediaType, ext)
	}
	name := strings.Trim(unsafeChar.ReplaceAllString(strings.TrimSuffix(base, filepath.Ext(base)), "-"), "-")
	if len(name) > 64 {
		name = name[:64]
	}
	id = uuid.NewString()
	if name != "" {
		id += "-" + name
	}
	return id, ext, nil
}

// New returns the cloudinary service when a cloudinary URL is configured, the local one otherwise.
func New(conf *core.Config) (core.MediaService, error) {
	if conf.Media.CloudinaryURL != "" {
		return NewCloudinaryService(conf)
	}
	return NewLocalService(conf.Media.LocalDir, conf.Media.LocalBaseURL)
}

type localService struct {
	dir     string
	baseURL string
}

var _ core.MediaService = (*localService)(nil)

// NewLocalService writes the files under dir; they are expected to be served under baseURL.
func NewLocalService(dir, baseURL string) (core.MediaService, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating media dir")
	}
	return &localService{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (svc *localService) Upload(ctx context.Context, r io.Reader, filename string) (string, error) {
	id, ext, err := publicID(filename)
	if err != nil {
		return "", err
	}
	if err = ctx.Err(); err != nil {
		return "", err
	}

	name := id + ext
	f, err := os.Create(filepath.Join(svc.dir, name))
	if err != nil {
		return "", errors.Wrap(err, "creating media file")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", errors.Wrap(err, "writing media file")
	}
	if err = f.Close(); err != nil {
		return "", errors.Wrap(err, "closing media file")
	}
	return svc.baseURL + "/" + name, nil
}
