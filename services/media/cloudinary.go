package mediasvc

import (
	"context"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/pkg/errors"

	"github.com/stenolearn/backend/core"
)

type cloudinaryService struct {
	cld    *cloudinary.Cloudinary
	folder string
}

var _ core.MediaService = (*cloudinaryService)(nil)

func NewCloudinaryService(conf *core.Config) (core.MediaService, error) {
	cld, err := cloudinary.NewFromURL(conf.Media.CloudinaryURL)
	if err != nil {
		return nil, errors.Wrap(err, "configuring cloudinary")
	}
	return &cloudinaryService{cld: cld, folder: conf.Media.Folder}, nil
}

func (svc *cloudinaryService) Upload(ctx context.Context, r io.Reader, filename string) (string, error) {
	id, _, err := publicID(filename)
	if err != nil {
		return "", err
	}
	res, err := svc.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		PublicID: id,
		Folder:   svc.folder,
	})
	if err != nil {
		return "", errors.Wrap(err, "uploading to cloudinary")
	}
	if res.Error.Message != "" {
		return "", errors.Errorf("uploading to cloudinary: %s", res.Error.Message)
	}
	return res.SecureURL, nil
}
