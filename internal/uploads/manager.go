// Package uploads implements the staged upload protocol: obtain a
// write-once target from the admin API, transfer bytes directly to it,
// then register the blob as a first-class resource and poll until remote
// processing settles.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tidwall/gjson"

	"github.com/Yslas262/shopify-setup/internal/shopify"
)

// Polling budget for asynchronous remote processing. Roughly two minutes
// end to end.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxPolls     = 60
)

const stagedUploadsCreateMutation = `
mutation stagedUploadsCreate($input: [StagedUploadInput!]!) {
  stagedUploadsCreate(input: $input) {
    stagedTargets {
      url
      resourceUrl
      parameters { name value }
    }
    userErrors { field message }
  }
}`

const fileCreateMutation = `
mutation fileCreate($files: [FileCreateInput!]!) {
  fileCreate(files: $files) {
    files { id fileStatus }
    userErrors { field message }
  }
}`

const fileStatusQuery = `
query fileStatus($id: ID!) {
  node(id: $id) {
    ... on MediaImage {
      id
      fileStatus
      image { url }
    }
    ... on GenericFile {
      id
      fileStatus
      url
    }
  }
}`

const fileDeleteMutation = `
mutation fileDelete($ids: [ID!]!) {
  fileDelete(fileIds: $ids) {
    deletedFileIds
    userErrors { field message }
  }
}`

// File describes a local asset to upload.
type File struct {
	// Path is the local file location.
	Path string
	// Name is the remote filename; defaults to the path's base name.
	Name string
	// ContentType is the MIME type sent with the staged upload request.
	ContentType string
	// Resource is the staged upload resource kind (IMAGE, FILE, THEME).
	Resource string
	// RemoveOnExit deletes the local file once the upload finishes,
	// successfully or not. Used for scratch files ferried from request
	// uploads.
	RemoveOnExit bool
}

// Target is a remote-issued, single-use upload credential bundle. It is
// consumed immediately and never persisted.
type Target struct {
	URL         string
	ResourceURL string
	Parameters  []Parameter
}

// Parameter is one form field the storage endpoint requires, in order.
type Parameter struct {
	Name  string
	Value string
}

// Reference resolves an uploaded, processed asset.
type Reference struct {
	ID  string
	URL string
}

// Manager drives staged uploads through the admin client.
type Manager struct {
	client       *shopify.Client
	httpClient   *http.Client
	logger       *slog.Logger
	pollInterval time.Duration
	maxPolls     int
}

// Config holds manager construction parameters.
type Config struct {
	Client *shopify.Client
	Logger *slog.Logger
	// HTTPClient performs the direct storage submissions (not admin API
	// calls). Defaults to a 5-minute-timeout client.
	HTTPClient *http.Client
	// PollInterval and MaxPolls override the processing poll budget.
	PollInterval time.Duration
	MaxPolls     int
}

// NewManager creates an upload manager.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = DefaultMaxPolls
	}
	return &Manager{
		client:       cfg.Client,
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger,
		pollInterval: cfg.PollInterval,
		maxPolls:     cfg.MaxPolls,
	}
}

// Stage asks the admin API for an upload target sized to the file.
func (m *Manager) Stage(ctx context.Context, f File, size int64) (Target, error) {
	resp, err := m.client.ExecuteWithRetry(ctx, stagedUploadsCreateMutation, map[string]any{
		"input": []map[string]any{{
			"filename":   f.remoteName(),
			"mimeType":   f.ContentType,
			"resource":   f.Resource,
			"fileSize":   fmt.Sprintf("%d", size),
			"httpMethod": "POST",
		}},
	})
	if err != nil {
		return Target{}, fmt.Errorf("staged upload request failed: %w", err)
	}
	if ues := resp.UserErrors("stagedUploadsCreate"); len(ues) > 0 {
		return Target{}, &StagingError{Message: ues[0].Message}
	}

	node := resp.Get("stagedUploadsCreate.stagedTargets.0")
	if !node.Exists() || node.Get("url").String() == "" {
		return Target{}, &StagingError{Message: "no staged target issued"}
	}

	target := Target{
		URL:         node.Get("url").String(),
		ResourceURL: node.Get("resourceUrl").String(),
	}
	node.Get("parameters").ForEach(func(_, p gjson.Result) bool {
		target.Parameters = append(target.Parameters, Parameter{
			Name:  p.Get("name").String(),
			Value: p.Get("value").String(),
		})
		return true
	})
	return target, nil
}

// Transfer submits the file to the target's storage endpoint as a
// multipart form: all issued parameters first, in order, then the file
// payload. 200 and 201 are success.
func (m *Manager) Transfer(ctx context.Context, target Target, f File) error {
	src, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Path, err)
	}
	defer src.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, p := range target.Parameters {
		if err := w.WriteField(p.Name, p.Value); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", p.Name, err)
		}
	}
	part, err := w.CreateFormFile("file", f.remoteName())
	if err != nil {
		return fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("failed to buffer file payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, &body)
	if err != nil {
		return fmt.Errorf("failed to create transfer request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransferError{Status: resp.StatusCode, Body: string(diag)}
	}
	return nil
}

// UploadStaged stages and transfers the file, returning the staged
// resource URL for callers that commit the blob themselves (theme
// install). The local scratch file is removed on every exit path when
// the file asks for it.
func (m *Manager) UploadStaged(ctx context.Context, f File) (string, error) {
	if f.RemoveOnExit {
		defer m.removeLocal(f.Path)
	}

	info, err := os.Stat(f.Path)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", f.Path, err)
	}

	target, err := m.Stage(ctx, f, info.Size())
	if err != nil {
		return "", err
	}
	if err := m.Transfer(ctx, target, f); err != nil {
		return "", err
	}

	m.logger.Debug("staged upload transferred", "file", f.remoteName(), "resource_url", target.ResourceURL)
	return target.ResourceURL, nil
}

// UploadImage runs the full three-phase protocol for an image asset:
// stage, transfer, commit as a MediaImage file, then poll until remote
// processing settles. On FAILED the orphaned file record is deleted; on
// an exhausted poll budget a ProcessingTimeout is returned and the
// remote file is left to finish on its own.
func (m *Manager) UploadImage(ctx context.Context, f File) (Reference, error) {
	if f.Resource == "" {
		f.Resource = "IMAGE"
	}
	if f.RemoveOnExit {
		defer m.removeLocal(f.Path)
	}
	// The deferred removal above covers all paths; disable it for the
	// nested call.
	staged := f
	staged.RemoveOnExit = false

	resourceURL, err := m.UploadStaged(ctx, staged)
	if err != nil {
		return Reference{}, err
	}

	resp, err := m.client.ExecuteWithRetry(ctx, fileCreateMutation, map[string]any{
		"files": []map[string]any{{
			"originalSource": resourceURL,
			"contentType":    "IMAGE",
			"filename":       f.remoteName(),
		}},
	})
	if err != nil {
		return Reference{}, fmt.Errorf("file commit failed: %w", err)
	}
	if ues := resp.UserErrors("fileCreate"); len(ues) > 0 {
		return Reference{}, &StagingError{Message: ues[0].Message}
	}

	id := resp.Get("fileCreate.files.0.id").String()
	if id == "" {
		return Reference{}, &StagingError{Message: "file commit returned no id"}
	}

	ref, err := m.pollFileReady(ctx, id)
	if err != nil {
		var pe *ProcessingError
		if errors.As(err, &pe) {
			m.deleteRemote(ctx, id)
		}
		return Reference{}, err
	}
	return ref, nil
}

// errStillProcessing marks a poll attempt that found the asset not yet
// terminal.
var errStillProcessing = errors.New("still processing")

// pollFileReady polls the committed file at a fixed interval until READY,
// FAILED, or the attempt budget runs out.
func (m *Manager) pollFileReady(ctx context.Context, id string) (Reference, error) {
	var ref Reference

	err := retry.Do(
		func() error {
			resp, err := m.client.ExecuteWithRetry(ctx, fileStatusQuery, map[string]any{"id": id})
			if err != nil {
				return retry.Unrecoverable(err)
			}
			node := resp.Get("node")
			status := node.Get("fileStatus").String()
			switch status {
			case "READY":
				ref.ID = id
				ref.URL = node.Get("image.url").String()
				if ref.URL == "" {
					ref.URL = node.Get("url").String()
				}
				return nil
			case "FAILED":
				return retry.Unrecoverable(&ProcessingError{ID: id, Status: status})
			default:
				return errStillProcessing
			}
		},
		retry.Context(ctx),
		retry.Attempts(uint(m.maxPolls)),
		retry.Delay(m.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)

	if errors.Is(err, errStillProcessing) {
		m.logger.Warn("asset still processing after poll budget", "id", id, "polls", m.maxPolls)
		return Reference{}, &ProcessingTimeout{ID: id, Attempts: m.maxPolls}
	}
	if err != nil {
		return Reference{}, err
	}
	return ref, nil
}

// deleteRemote removes an orphaned file record; failures are logged only,
// since the record is already useless.
func (m *Manager) deleteRemote(ctx context.Context, id string) {
	if _, err := m.client.Execute(ctx, fileDeleteMutation, map[string]any{"ids": []string{id}}); err != nil {
		m.logger.Warn("failed to delete orphaned file", "id", id, "error", err)
	}
}

// removeLocal deletes a scratch file, logging on failure.
func (m *Manager) removeLocal(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("failed to remove scratch file", "path", path, "error", err)
	}
}

func (f File) remoteName() string {
	if f.Name != "" {
		return f.Name
	}
	return filepath.Base(f.Path)
}
