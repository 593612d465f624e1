package endpoints

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Yslas262/shopify-setup/internal/api"
	"github.com/Yslas262/shopify-setup/internal/catalog"
	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/svcctx"
)

// UploadSetupEndpoint handles POST /api/setup/run/upload with a
// multipart form. Scalar fields mirror the JSON form; file parts carry
// the catalog, theme archive, and brand assets. Uploaded files are
// saved to a scratch directory under the home uploads dir and their
// paths threaded into the run form.
type UploadSetupEndpoint struct{}

var _ api.Endpoint = (*UploadSetupEndpoint)(nil)

func (e *UploadSetupEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/setup/run/upload", e.handler
}

func (e *UploadSetupEndpoint) RequiresInit() bool { return true }

func (e *UploadSetupEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	// Parse multipart form with 100MB max memory
	const maxMemory = 100 << 20 // 100MB
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := pipeline.Form{
		StoreName:               r.FormValue("store_name"),
		PrimaryColor:            r.FormValue("primary_color"),
		SecondaryColor:          r.FormValue("secondary_color"),
		HeadingFont:             r.FormValue("heading_font"),
		BodyFont:                r.FormValue("body_font"),
		FeaturedCollectionTitle: r.FormValue("featured_collection_title"),
		ThemeName:               r.FormValue("theme_name"),
	}
	if raw := r.FormValue("policies"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &form.Policies); err != nil {
			writeError(w, http.StatusBadRequest, "policies must be a JSON object of type to text")
			return
		}
	}
	if err := validateForm(&form); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	homeDir := svcctx.HomeFrom(r.Context())
	if homeDir == nil {
		writeError(w, http.StatusServiceUnavailable, "home directory not initialized")
		return
	}
	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not initialized")
		return
	}

	scratch, err := homeDir.ScratchDir("setup-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to create scratch dir: %v", err))
		return
	}
	defer os.RemoveAll(scratch)

	// The catalog part is read into memory rather than saved: the form
	// carries CSV text, and the run state snapshots it for resume.
	if fhs := r.MultipartForm.File["catalog"]; len(fhs) > 0 {
		text, err := readPart(fhs[0])
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read catalog: %v", err))
			return
		}
		form.CatalogCSV = text
	}

	single := map[string]*string{
		"theme":          &form.ThemeZipPath,
		"logo":           &form.LogoPath,
		"favicon":        &form.FaviconPath,
		"banner_desktop": &form.BannerDesktopPath,
		"banner_mobile":  &form.BannerMobilePath,
	}
	for field, dest := range single {
		fhs := r.MultipartForm.File[field]
		if len(fhs) == 0 {
			continue
		}
		path, err := savePart(scratch, fhs[0])
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save %s: %v", field, err))
			return
		}
		*dest = path
	}

	// Collection images key on the collection handle, derived from the
	// filename the same way product types become handles.
	for _, fh := range r.MultipartForm.File["collection_images"] {
		path, err := savePart(scratch, fh)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to save collection image: %v", err))
			return
		}
		base := strings.TrimSuffix(fh.Filename, filepath.Ext(fh.Filename))
		handle := catalog.Slugify(base)
		if form.CollectionImagePaths == nil {
			form.CollectionImagePaths = make(map[string]string)
		}
		form.CollectionImagePaths[handle] = path
	}

	report := orch.Run(r.Context(), &form)
	persistReport(r.Context(), report)

	status := http.StatusOK
	if !report.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

func (e *UploadSetupEndpoint) Command(_ func() string) *cobra.Command {
	// No CLI command for multipart upload - the run command sends host
	// paths instead.
	return nil
}

// readPart returns a multipart file's contents as a string.
func readPart(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// savePart copies a multipart file into dir and returns its path.
func savePart(dir string, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	destPath := filepath.Join(dir, filepath.Base(fh.Filename))
	dst, err := os.Create(destPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return destPath, nil
}
