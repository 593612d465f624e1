package steps

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Yslas262/shopify-setup/internal/pipeline"
)

func TestUploadTheme(t *testing.T) {
	shop := newFakeShop(t)
	shop.stubStagedUpload()
	shop.stubStatic("themeCreate",
		`{"data":{"themeCreate":{"theme":{"id":"gid://shopify/OnlineStoreTheme/1","name":"Acme theme","processing":true},"userErrors":[]}}}`)

	var polls atomic.Int64
	shop.stub("themeStatus", func(map[string]any) string {
		if polls.Add(1) < 3 {
			return `{"data":{"theme":{"id":"gid://shopify/OnlineStoreTheme/1","processing":true}}}`
		}
		return `{"data":{"theme":{"id":"gid://shopify/OnlineStoreTheme/1","processing":false}}}`
	})

	step := &uploadTheme{cfg: shop.config(t)}
	form := &pipeline.Form{
		StoreName:    "Acme",
		ThemeZipPath: writeTempFile(t, "theme.zip", "zip-bytes"),
	}

	res, err := step.Run(context.Background(), &pipeline.State{}, form)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Message)
	}
	if got := *res.Delta.ThemeID; got != "gid://shopify/OnlineStoreTheme/1" {
		t.Errorf("unexpected theme id %q", got)
	}
	if polls.Load() != 3 {
		t.Errorf("expected polling until processing settles, got %d polls", polls.Load())
	}

	createVars := shop.lastVars("themeCreate")
	if createVars["name"] != "Acme theme" {
		t.Errorf("expected derived theme name, got %v", createVars["name"])
	}
	if createVars["source"] != "https://cdn.example.com/tmp/upload" {
		t.Errorf("theme source should be the staged resource url, got %v", createVars["source"])
	}
}

func TestUploadTheme_NoArchive(t *testing.T) {
	shop := newFakeShop(t)
	step := &uploadTheme{cfg: shop.config(t)}

	res, err := step.Run(context.Background(), &pipeline.State{}, &pipeline.Form{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Success {
		t.Error("expected failure without a theme archive")
	}
}

func TestUploadTheme_ProcessingNeverSettles(t *testing.T) {
	shop := newFakeShop(t)
	shop.stubStagedUpload()
	shop.stubStatic("themeCreate",
		`{"data":{"themeCreate":{"theme":{"id":"gid://shopify/OnlineStoreTheme/1","name":"t","processing":true},"userErrors":[]}}}`)
	shop.stubStatic("themeStatus",
		`{"data":{"theme":{"id":"gid://shopify/OnlineStoreTheme/1","processing":true}}}`)

	step := &uploadTheme{cfg: shop.config(t)}
	form := &pipeline.Form{ThemeZipPath: writeTempFile(t, "theme.zip", "zip-bytes")}

	res, err := step.Run(context.Background(), &pipeline.State{}, form)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("exhausting the poll budget must not fail the step, got %q", res.Message)
	}
	if res.Delta == nil || res.Delta.ThemeID == nil || *res.Delta.ThemeID != "gid://shopify/OnlineStoreTheme/1" {
		t.Error("theme id must be written even when processing never settles")
	}
	if len(res.Errors) != 1 {
		t.Fatalf("expected one warning, got %v", res.Errors)
	}
	if res.Errors[0].Key != "theme" {
		t.Errorf("unexpected warning key %q", res.Errors[0].Key)
	}
	if shop.callCount("themeStatus") != 5 {
		t.Errorf("expected poll budget exhausted at 5, got %d", shop.callCount("themeStatus"))
	}
}

func TestUploadTheme_ReusesExistingTheme(t *testing.T) {
	shop := newFakeShop(t)
	shop.stubStatic("themesByName",
		`{"data":{"themes":{"edges":[{"node":{"id":"gid://shopify/OnlineStoreTheme/41","name":"Acme theme"}}]}}}`)
	shop.stubStagedUpload()
	shop.stubStatic("themeCreate",
		`{"data":{"themeCreate":{"theme":{"id":"gid://shopify/OnlineStoreTheme/99","name":"Acme theme","processing":false},"userErrors":[]}}}`)

	step := &uploadTheme{cfg: shop.config(t)}
	form := &pipeline.Form{
		StoreName:    "Acme",
		ThemeZipPath: writeTempFile(t, "theme.zip", "zip-bytes"),
	}

	res, err := step.Run(context.Background(), &pipeline.State{}, form)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %q", res.Message)
	}
	if got := *res.Delta.ThemeID; got != "gid://shopify/OnlineStoreTheme/41" {
		t.Errorf("expected the existing theme id, got %q", got)
	}
	if shop.callCount("themeCreate") != 0 {
		t.Error("re-running the step must not install a second theme")
	}
	if shop.callCount("stagedUploadsCreate") != 0 {
		t.Error("re-running the step must not stage the archive again")
	}

	lookupVars := shop.lastVars("themesByName")
	if names, ok := lookupVars["names"].([]any); !ok || len(names) != 1 || names[0] != "Acme theme" {
		t.Errorf("expected lookup by derived theme name, got %v", lookupVars["names"])
	}
}

func TestPublishTheme(t *testing.T) {
	shop := newFakeShop(t)
	shop.stubStatic("themePublish",
		`{"data":{"themePublish":{"theme":{"id":"gid://shopify/OnlineStoreTheme/1","role":"MAIN"},"userErrors":[]}}}`)

	step := &publishTheme{cfg: shop.config(t)}
	st := &pipeline.State{ThemeID: "gid://shopify/OnlineStoreTheme/1"}

	res, err := step.Run(context.Background(), st, &pipeline.Form{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !res.Success {
		t.Errorf("expected success, got %q", res.Message)
	}
}

func TestPublishTheme_Rejected(t *testing.T) {
	shop := newFakeShop(t)
	shop.stubStatic("themePublish",
		`{"data":{"themePublish":{"theme":null,"userErrors":[{"field":["id"],"message":"Theme is still processing"}]}}}`)

	step := &publishTheme{cfg: shop.config(t)}
	st := &pipeline.State{ThemeID: "gid://shopify/OnlineStoreTheme/1"}

	res, err := step.Run(context.Background(), st, &pipeline.Form{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Success {
		t.Error("expected rejection to fail the step")
	}
	if res.Message == "" {
		t.Error("rejection should carry the remote message")
	}
}

func TestPublishTheme_WrongRole(t *testing.T) {
	shop := newFakeShop(t)
	shop.stubStatic("themePublish",
		`{"data":{"themePublish":{"theme":{"id":"gid://shopify/OnlineStoreTheme/1","role":"UNPUBLISHED"},"userErrors":[]}}}`)

	step := &publishTheme{cfg: shop.config(t)}
	st := &pipeline.State{ThemeID: "gid://shopify/OnlineStoreTheme/1"}

	res, err := step.Run(context.Background(), st, &pipeline.Form{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Success {
		t.Error("publish must fail when the theme did not become the main theme")
	}
	if !strings.Contains(res.Message, "UNPUBLISHED") {
		t.Errorf("failure should name the observed role, got %q", res.Message)
	}
}

func TestPublishTheme_NoTheme(t *testing.T) {
	shop := newFakeShop(t)
	step := &publishTheme{cfg: shop.config(t)}

	res, err := step.Run(context.Background(), &pipeline.State{}, &pipeline.Form{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Success {
		t.Error("expected failure without an installed theme")
	}
}
