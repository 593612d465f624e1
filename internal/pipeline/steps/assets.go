package steps

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/uploads"
)

// uploadAssets pushes the brand images through the staged upload
// protocol: logo, favicon, hero banners, and one image per collection.
// Every asset is optional and every asset is attempted; a timeout on one
// never blocks the rest, since the remote keeps processing on its own
// and the URL can be filled in by hand later.
type uploadAssets struct {
	cfg Config
}

func (s *uploadAssets) ID() int         { return 5 }
func (s *uploadAssets) Name() string    { return "upload-assets" }
func (s *uploadAssets) Label() string   { return "Upload brand assets" }
func (s *uploadAssets) Streaming() bool { return false }

func (s *uploadAssets) Reads() []pipeline.Field { return nil }
func (s *uploadAssets) Writes() []pipeline.Field {
	return []pipeline.Field{
		pipeline.FieldLogoURL,
		pipeline.FieldFaviconURL,
		pipeline.FieldBannerURLs,
		pipeline.FieldCollectionImageURLs,
	}
}

func (s *uploadAssets) Run(ctx context.Context, _ *pipeline.State, form *pipeline.Form) (pipeline.Result, error) {
	delta := &pipeline.Delta{}
	var (
		itemErrs []pipeline.ItemError
		uploaded int
		hardFail bool
	)

	upload := func(key, path string, dest *string) {
		if path == "" {
			return
		}
		url, err := s.uploadOne(ctx, path)
		if err != nil {
			var pt *uploads.ProcessingTimeout
			if !errors.As(err, &pt) {
				hardFail = true
			}
			itemErrs = append(itemErrs, pipeline.ItemError{Key: key, Reason: err.Error()})
			s.cfg.logger().Warn("asset upload failed", "asset", key, "error", err)
			return
		}
		*dest = url
		uploaded++
	}

	var logo, favicon, bannerDesktop, bannerMobile string
	upload("logo", form.LogoPath, &logo)
	upload("favicon", form.FaviconPath, &favicon)
	upload("banner-desktop", form.BannerDesktopPath, &bannerDesktop)
	upload("banner-mobile", form.BannerMobilePath, &bannerMobile)

	if logo != "" {
		delta.LogoURL = pipeline.StrPtr(logo)
	}
	if favicon != "" {
		delta.FaviconURL = pipeline.StrPtr(favicon)
	}
	if bannerDesktop != "" {
		delta.BannerDesktopURL = pipeline.StrPtr(bannerDesktop)
	}
	if bannerMobile != "" {
		delta.BannerMobileURL = pipeline.StrPtr(bannerMobile)
	}

	if len(form.CollectionImagePaths) > 0 {
		handles := make([]string, 0, len(form.CollectionImagePaths))
		for handle := range form.CollectionImagePaths {
			handles = append(handles, handle)
		}
		sort.Strings(handles)

		urls := make(map[string]string)
		for _, handle := range handles {
			var url string
			upload("collection-image:"+handle, form.CollectionImagePaths[handle], &url)
			if url != "" {
				urls[handle] = url
			}
		}
		if len(urls) > 0 {
			delta.CollectionImageURLs = urls
		}
	}

	msg := fmt.Sprintf("uploaded %d assets", uploaded)
	if len(itemErrs) > 0 {
		msg = fmt.Sprintf("%s (%d failed)", msg, len(itemErrs))
	}

	return pipeline.Result{
		Success: !hardFail,
		Message: msg,
		Errors:  itemErrs,
		Delta:   delta,
	}, nil
}

func (s *uploadAssets) uploadOne(ctx context.Context, path string) (string, error) {
	ref, err := s.cfg.Uploads.UploadImage(ctx, uploads.File{
		Path:        path,
		Name:        filepath.Base(path),
		ContentType: contentTypeFor(path),
		Resource:    "IMAGE",
	})
	if err != nil {
		return "", err
	}
	return ref.URL, nil
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".webp":
		return "image/webp"
	case ".ico":
		return "image/x-icon"
	default:
		return "application/octet-stream"
	}
}
