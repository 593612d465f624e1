package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Yslas262/shopify-setup/internal/reconcile"
	"github.com/Yslas262/shopify-setup/internal/shopify"
	"github.com/Yslas262/shopify-setup/internal/uploads"
)

// fakeShop scripts the admin API and the direct storage endpoint for
// step tests. Stubs match on a query substring in registration order;
// unmatched queries get an empty data object.
type fakeShop struct {
	t *testing.T

	mu    sync.Mutex
	stubs []stub
	calls map[string]int
	vars  map[string][]map[string]any

	adminURL   string
	storageURL string
}

type stub struct {
	match   string
	respond func(vars map[string]any) string
}

func newFakeShop(t *testing.T) *fakeShop {
	t.Helper()
	f := &fakeShop{
		t:     t,
		calls: make(map[string]int),
		vars:  make(map[string][]map[string]any),
	}
	srv := httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(srv.Close)
	f.adminURL = srv.URL
	f.storageURL = srv.URL + "/storage"
	return f
}

// stub registers a response for queries containing match.
func (f *fakeShop) stub(match string, respond func(vars map[string]any) string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stubs = append(f.stubs, stub{match: match, respond: respond})
}

// stubStatic registers a fixed response body.
func (f *fakeShop) stubStatic(match, body string) {
	f.stub(match, func(map[string]any) string { return body })
}

func (f *fakeShop) callCount(match string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[match]
}

// lastVars returns the variables of the most recent call matching match.
func (f *fakeShop) lastVars(match string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.vars[match]
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func (f *fakeShop) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/storage" {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusCreated)
		return
	}

	body, _ := io.ReadAll(r.Body)
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	json.Unmarshal(body, &req)

	f.mu.Lock()
	var matched *stub
	for i := range f.stubs {
		if strings.Contains(req.Query, f.stubs[i].match) {
			matched = &f.stubs[i]
			f.calls[matched.match]++
			f.vars[matched.match] = append(f.vars[matched.match], req.Variables)
			break
		}
	}
	f.mu.Unlock()

	if matched == nil {
		fmt.Fprint(w, `{"data":{}}`)
		return
	}
	fmt.Fprint(w, matched.respond(req.Variables))
}

// stubStagedUpload wires the standard staged upload happy path against
// the fake storage endpoint.
func (f *fakeShop) stubStagedUpload() {
	f.stubStatic("stagedUploadsCreate", fmt.Sprintf(
		`{"data":{"stagedUploadsCreate":{"stagedTargets":[{"url":%q,"resourceUrl":"https://cdn.example.com/tmp/upload","parameters":[{"name":"key","value":"tmp/upload"}]}],"userErrors":[]}}}`,
		f.storageURL))
}

func (f *fakeShop) config(t *testing.T) Config {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	client := shopify.New(shopify.Config{
		Shop:     "test-shop",
		Token:    "token",
		Endpoint: f.adminURL,
		Logger:   logger,
	})
	return Config{
		Client: client,
		Uploads: uploads.NewManager(uploads.Config{
			Client:       client,
			Logger:       logger,
			PollInterval: time.Millisecond,
			MaxPolls:     3,
		}),
		Reconciler:         reconcile.New(client, logger),
		Logger:             logger,
		ThemePollInterval:  time.Millisecond,
		ThemeMaxPolls:      5,
		SettingsRetryDelay: time.Millisecond,
	}
}

// writeTempFile creates a scratch file that outlives the test body.
func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

// recordingSink captures bulk events in emission order.
type recordingSink struct {
	mu     sync.Mutex
	events []any
}

func (s *recordingSink) Emit(_ context.Context, event any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) all() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.events...)
}
