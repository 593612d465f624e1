package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Yslas262/shopify-setup/internal/shopify"
)

// fakeAdmin scripts the admin API side of the staged upload protocol.
type fakeAdmin struct {
	storageURL string

	// statuses returned by successive fileStatus polls.
	statuses []string
	polls    atomic.Int64
	deletes  atomic.Int64
}

func (f *fakeAdmin) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	query := string(body)

	switch {
	case strings.Contains(query, "stagedUploadsCreate"):
		fmt.Fprintf(w, `{"data":{"stagedUploadsCreate":{"stagedTargets":[{"url":%q,"resourceUrl":"https://cdn.example.com/tmp/asset.png","parameters":[{"name":"key","value":"tmp/asset.png"},{"name":"policy","value":"signed"}]}],"userErrors":[]}}}`, f.storageURL)
	case strings.Contains(query, "fileCreate"):
		fmt.Fprint(w, `{"data":{"fileCreate":{"files":[{"id":"gid://shopify/MediaImage/1","fileStatus":"UPLOADED"}],"userErrors":[]}}}`)
	case strings.Contains(query, "fileStatus"):
		i := f.polls.Add(1) - 1
		status := f.statuses[len(f.statuses)-1]
		if int(i) < len(f.statuses) {
			status = f.statuses[i]
		}
		if status == "READY" {
			fmt.Fprint(w, `{"data":{"node":{"id":"gid://shopify/MediaImage/1","fileStatus":"READY","image":{"url":"https://cdn.example.com/final/asset.png"}}}}`)
			return
		}
		fmt.Fprintf(w, `{"data":{"node":{"id":"gid://shopify/MediaImage/1","fileStatus":%q}}}`, status)
	case strings.Contains(query, "fileDelete"):
		f.deletes.Add(1)
		fmt.Fprint(w, `{"data":{"fileDelete":{"deletedFileIds":["gid://shopify/MediaImage/1"],"userErrors":[]}}}`)
	default:
		fmt.Fprint(w, `{"data":{}}`)
	}
}

// storageRecord captures the direct multipart submission.
type storageRecord struct {
	status     int
	fieldOrder []string
	gotFile    bool
}

func newStorage(t *testing.T, rec *storageRecord) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reader, err := r.MultipartReader()
		if err != nil {
			t.Errorf("expected multipart submission: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for {
			part, err := reader.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("part read failed: %v", err)
				break
			}
			if part.FormName() == "file" {
				rec.gotFile = true
			} else {
				rec.fieldOrder = append(rec.fieldOrder, part.FormName())
			}
		}
		if rec.status == 0 {
			rec.status = http.StatusCreated
		}
		w.WriteHeader(rec.status)
		if rec.status >= 400 {
			fmt.Fprint(w, "access denied by storage policy")
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newManager(t *testing.T, admin *fakeAdmin) *Manager {
	t.Helper()
	adminSrv := httptest.NewServer(http.HandlerFunc(admin.handler))
	t.Cleanup(adminSrv.Close)

	client := shopify.New(shopify.Config{
		Shop:     "test-shop.myshopify.com",
		Token:    "test-token",
		Endpoint: adminSrv.URL,
	})
	return NewManager(Config{
		Client:       client,
		Logger:       slog.New(slog.DiscardHandler),
		PollInterval: time.Millisecond,
		MaxPolls:     5,
	})
}

func scratchFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asset.png")
	if err := os.WriteFile(path, []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestUploadImage_HappyPath(t *testing.T) {
	rec := &storageRecord{}
	storage := newStorage(t, rec)
	admin := &fakeAdmin{storageURL: storage.URL, statuses: []string{"PROCESSING", "READY"}}
	m := newManager(t, admin)

	path := scratchFile(t)
	ref, err := m.UploadImage(context.Background(), File{Path: path, ContentType: "image/png", RemoveOnExit: true})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if ref.URL != "https://cdn.example.com/final/asset.png" {
		t.Errorf("unexpected resolved url: %q", ref.URL)
	}
	if !rec.gotFile {
		t.Error("storage endpoint never received the file part")
	}
	// Issued parameters must precede the file, in order.
	if len(rec.fieldOrder) != 2 || rec.fieldOrder[0] != "key" || rec.fieldOrder[1] != "policy" {
		t.Errorf("unexpected parameter order: %v", rec.fieldOrder)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("scratch file must be removed after upload")
	}
}

func TestUploadImage_ProcessingTimeout(t *testing.T) {
	rec := &storageRecord{}
	storage := newStorage(t, rec)
	admin := &fakeAdmin{storageURL: storage.URL, statuses: []string{"PROCESSING"}}
	m := newManager(t, admin)

	path := scratchFile(t)
	_, err := m.UploadImage(context.Background(), File{Path: path, ContentType: "image/png", RemoveOnExit: true})

	var timeout *ProcessingTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("expected ProcessingTimeout, got %T: %v", err, err)
	}
	if timeout.Attempts != 5 {
		t.Errorf("expected 5 polls in budget, got %d", timeout.Attempts)
	}
	// Timeout is not failure: the remote file must not be deleted, but
	// the local scratch file must be gone.
	if admin.deletes.Load() != 0 {
		t.Error("remote file must be left to finish on timeout")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("scratch file must be removed on timeout")
	}
}

func TestUploadImage_ProcessingFailedDeletesOrphan(t *testing.T) {
	rec := &storageRecord{}
	storage := newStorage(t, rec)
	admin := &fakeAdmin{storageURL: storage.URL, statuses: []string{"FAILED"}}
	m := newManager(t, admin)

	path := scratchFile(t)
	_, err := m.UploadImage(context.Background(), File{Path: path, ContentType: "image/png", RemoveOnExit: true})

	var pe *ProcessingError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProcessingError, got %T: %v", err, err)
	}
	if admin.deletes.Load() != 1 {
		t.Error("orphaned remote file must be deleted on FAILED")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("scratch file must be removed on failure")
	}
}

func TestTransfer_RejectionIsTransferError(t *testing.T) {
	rec := &storageRecord{status: http.StatusForbidden}
	storage := newStorage(t, rec)
	admin := &fakeAdmin{storageURL: storage.URL, statuses: []string{"READY"}}
	m := newManager(t, admin)

	path := scratchFile(t)
	_, err := m.UploadStaged(context.Background(), File{Path: path, ContentType: "image/png", Resource: "IMAGE", RemoveOnExit: true})

	var te *TransferError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransferError, got %T: %v", err, err)
	}
	if te.Status != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", te.Status)
	}
	if !strings.Contains(te.Body, "access denied") {
		t.Errorf("expected diagnostic body, got %q", te.Body)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("scratch file must be removed on transfer failure")
	}
}

func TestStage_UserErrorIsStagingError(t *testing.T) {
	adminSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"stagedUploadsCreate":{"stagedTargets":[],"userErrors":[{"field":["input"],"message":"file size too large"}]}}}`)
	}))
	defer adminSrv.Close()

	client := shopify.New(shopify.Config{Shop: "s", Token: "t", Endpoint: adminSrv.URL})
	m := NewManager(Config{Client: client, Logger: slog.New(slog.DiscardHandler)})

	_, err := m.Stage(context.Background(), File{Path: "x.png", ContentType: "image/png", Resource: "IMAGE"}, 10)
	var se *StagingError
	if !errors.As(err, &se) {
		t.Fatalf("expected StagingError, got %T: %v", err, err)
	}
	if se.Message != "file size too large" {
		t.Errorf("unexpected message: %q", se.Message)
	}
}

func TestStage_TargetShape(t *testing.T) {
	var gotVars map[string]any
	adminSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		gotVars = req.Variables
		fmt.Fprint(w, `{"data":{"stagedUploadsCreate":{"stagedTargets":[{"url":"https://bucket.example.com","resourceUrl":"https://cdn.example.com/x","parameters":[{"name":"key","value":"x"}]}],"userErrors":[]}}}`)
	}))
	defer adminSrv.Close()

	client := shopify.New(shopify.Config{Shop: "s", Token: "t", Endpoint: adminSrv.URL})
	m := NewManager(Config{Client: client, Logger: slog.New(slog.DiscardHandler)})

	target, err := m.Stage(context.Background(), File{Path: "theme.zip", ContentType: "application/zip", Resource: "THEME"}, 2048)
	if err != nil {
		t.Fatalf("stage failed: %v", err)
	}
	if target.URL == "" || target.ResourceURL == "" || len(target.Parameters) != 1 {
		t.Errorf("unexpected target: %+v", target)
	}

	input := gotVars["input"].([]any)[0].(map[string]any)
	if input["fileSize"] != "2048" {
		t.Errorf("fileSize must be sent as a string, got %v", input["fileSize"])
	}
	if input["resource"] != "THEME" {
		t.Errorf("unexpected resource kind: %v", input["resource"])
	}
}
