package endpoints

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Yslas262/shopify-setup/internal/config"
	"github.com/Yslas262/shopify-setup/internal/home"
	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/pipeline/steps"
	"github.com/Yslas262/shopify-setup/internal/reconcile"
	"github.com/Yslas262/shopify-setup/internal/shopify"
	"github.com/Yslas262/shopify-setup/internal/svcctx"
	"github.com/Yslas262/shopify-setup/internal/uploads"
)

// fakeAdmin scripts GraphQL responses by query substring, in
// registration order. Unmatched queries get an empty data object.
type fakeAdmin struct {
	srv   *httptest.Server
	stubs []adminStub
}

type adminStub struct {
	match string
	body  string
}

func newFakeAdmin(t *testing.T) *fakeAdmin {
	t.Helper()
	f := &fakeAdmin{}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAdmin) stub(match, body string) {
	f.stubs = append(f.stubs, adminStub{match: match, body: body})
}

func (f *fakeAdmin) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	for _, s := range f.stubs {
		if strings.Contains(req.Query, s.match) {
			w.Write([]byte(s.body))
			return
		}
	}
	w.Write([]byte(`{"data":{}}`))
}

// newTestContext builds a request context carrying a live service graph
// pointed at the fake admin server.
func newTestContext(t *testing.T, admin *fakeAdmin) context.Context {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	client := shopify.New(shopify.Config{
		Endpoint: admin.srv.URL,
		Logger:   logger,
	})
	uploadMgr := uploads.NewManager(uploads.Config{
		Client:       client,
		Logger:       logger,
		PollInterval: time.Millisecond,
		MaxPolls:     3,
	})

	reconciler := reconcile.New(client, logger)

	registry, err := steps.NewRegistry(steps.Config{
		Client:             client,
		Uploads:            uploadMgr,
		Reconciler:         reconciler,
		Logger:             logger,
		ThemePollInterval:  time.Millisecond,
		ThemeMaxPolls:      3,
		SettingsRetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	orch, err := pipeline.NewOrchestrator(registry, logger)
	if err != nil {
		t.Fatalf("failed to build orchestrator: %v", err)
	}

	homeDir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create home: %v", err)
	}
	if err := homeDir.EnsureExists(); err != nil {
		t.Fatalf("failed to ensure home: %v", err)
	}

	cm, err := config.NewManager("")
	if err != nil {
		t.Fatalf("failed to create config manager: %v", err)
	}

	return svcctx.WithServices(context.Background(), &svcctx.Services{
		Shopify:      client,
		Orchestrator: orch,
		ConfigMgr:    cm,
		Logger:       logger,
		Home:         homeDir,
	})
}

// decodeJSON unmarshals a recorder body, failing the test on error.
func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}
