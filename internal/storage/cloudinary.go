// Package storage uploads binary assets such as resumes and returns a
// durable URL for them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/iliyamo/campus-placement/internal/config"
)

// uploadAPI is the subset of the Cloudinary upload API used here.
type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// Cloudinary stores files in a Cloudinary folder.
type Cloudinary struct {
	api    uploadAPI
	folder string
}

// NewCloudinary builds an uploader from cfg.  Callers should check
// cfg.Enabled first.
func NewCloudinary(cfg config.UploadConfig) (*Cloudinary, error) {
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &Cloudinary{api: &cld.Upload, folder: cfg.Folder}, nil
}

// Upload sends r to Cloudinary and returns the https URL of the stored asset.
// Images are stored as image resources, everything else (PDF, DOCX) as raw.
func (c *Cloudinary) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	res, err := c.api.Upload(ctx, r, uploader.UploadParams{
		Folder:       c.folder,
		ResourceType: resourceType(filename),
	})
	if err != nil {
		return "", fmt.Errorf("cloudinary upload: %w", err)
	}
	if res == nil {
		return "", errors.New("cloudinary upload: empty response")
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	if res.SecureURL == "" {
		return "", errors.New("cloudinary upload: no url returned")
	}
	return res.SecureURL, nil
}

func resourceType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return "image"
	}
	return "raw"
}
