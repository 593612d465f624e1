package endpoints

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/svcctx"
)

func TestRunSetupEndpoint_RequiresStoreName(t *testing.T) {
	admin := newFakeAdmin(t)
	ctx := newTestContext(t, admin)

	ep := &RunSetupEndpoint{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/setup/run",
		strings.NewReader(`{"primary_color":"#1a1a2e"}`)).WithContext(ctx)

	_, _, handler := ep.Route()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRunSetupEndpoint_RejectsInvalidColor(t *testing.T) {
	admin := newFakeAdmin(t)
	ctx := newTestContext(t, admin)

	ep := &RunSetupEndpoint{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/setup/run",
		strings.NewReader(`{"store_name":"Acme","primary_color":"bright red"}`)).WithContext(ctx)

	_, _, handler := ep.Route()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if !strings.Contains(resp.Error, "primary_color") {
		t.Errorf("error should name the offending field, got %q", resp.Error)
	}
}

func TestRunSetupEndpoint_RejectsBadJSON(t *testing.T) {
	admin := newFakeAdmin(t)
	ctx := newTestContext(t, admin)

	ep := &RunSetupEndpoint{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/setup/run",
		strings.NewReader(`not json`)).WithContext(ctx)

	_, _, handler := ep.Route()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestResumeSetupEndpoint_Validation(t *testing.T) {
	admin := newFakeAdmin(t)
	ctx := newTestContext(t, admin)
	ep := &ResumeSetupEndpoint{}
	_, _, handler := ep.Route()

	t.Run("missing state and run id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/setup/resume",
			strings.NewReader(`{"form":{"store_name":"Acme"}}`)).WithContext(ctx)
		handler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("unknown run id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/setup/resume",
			strings.NewReader(`{"run_id":"no-such-run"}`)).WithContext(ctx)
		handler(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
		}
	})
}

func TestPersistReport_RoundTrip(t *testing.T) {
	admin := newFakeAdmin(t)
	ctx := newTestContext(t, admin)

	report := &pipeline.Report{
		Success:      false,
		FailedStepID: 4,
		State:        &pipeline.State{RunID: "run-42", PublicationID: "gid://shopify/Publication/2"},
	}
	persistReport(ctx, report)

	homeDir := svcctx.HomeFrom(ctx)
	if _, err := os.Stat(homeDir.RunStatePath("run-42")); err != nil {
		t.Fatalf("expected persisted run state: %v", err)
	}

	loaded, err := loadReport(ctx, "run-42")
	if err != nil {
		t.Fatalf("loadReport failed: %v", err)
	}
	if loaded.FailedStepID != 4 {
		t.Errorf("FailedStepID = %d, want 4", loaded.FailedStepID)
	}
	if loaded.State.PublicationID != report.State.PublicationID {
		t.Errorf("PublicationID = %q, want %q", loaded.State.PublicationID, report.State.PublicationID)
	}
}

func TestResumeSetupEndpoint_FromPersistedRun(t *testing.T) {
	admin := newFakeAdmin(t)
	// Resume from step 8: publish the already-installed theme.
	admin.stub("themePublish",
		`{"data":{"themePublish":{"theme":{"id":"gid://shopify/OnlineStoreTheme/7","role":"MAIN"},"userErrors":[]}}}`)
	ctx := newTestContext(t, admin)

	persistReport(ctx, &pipeline.Report{
		Success:      false,
		FailedStepID: 8,
		State:        &pipeline.State{RunID: "run-7", ThemeID: "gid://shopify/OnlineStoreTheme/7"},
	})

	body, _ := json.Marshal(ResumeRequest{
		RunID: "run-7",
		Form:  pipeline.Form{StoreName: "Acme"},
	})

	ep := &ResumeSetupEndpoint{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/setup/resume", bytes.NewReader(body)).WithContext(ctx)

	_, _, handler := ep.Route()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var report pipeline.Report
	decodeJSON(t, rec, &report)
	if !report.Success {
		t.Fatalf("expected a successful resume, got %+v", report)
	}
	if len(report.Outcomes) != 8 {
		t.Fatalf("expected 8 outcomes, got %d", len(report.Outcomes))
	}
	for _, o := range report.Outcomes[:7] {
		if !o.Reused {
			t.Errorf("step %d not marked reused", o.StepID)
		}
	}
	if report.Outcomes[7].Reused {
		t.Error("step 8 should have been re-executed, not reused")
	}
}

func TestUploadSetupEndpoint(t *testing.T) {
	admin := newFakeAdmin(t)
	ctx := newTestContext(t, admin)
	ep := &UploadSetupEndpoint{}
	_, _, handler := ep.Route()

	t.Run("missing store name", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("primary_color", "#1a1a2e")
		mw.Close()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/setup/run/upload", &buf).WithContext(ctx)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		handler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("invalid color", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("store_name", "Acme")
		mw.WriteField("secondary_color", "#12")
		mw.Close()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/setup/run/upload", &buf).WithContext(ctx)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		handler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("malformed policies", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("store_name", "Acme")
		mw.WriteField("policies", "not json")
		mw.Close()

		rec := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/setup/run/upload", &buf).WithContext(ctx)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		handler(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})
}
