package staticdata

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPolicies(t *testing.T) {
	policies, err := Policies("Acme Supply", nil)
	if err != nil {
		t.Fatalf("failed to load policies: %v", err)
	}
	if len(policies) != 4 {
		t.Fatalf("expected 4 policies, got %d", len(policies))
	}

	seen := make(map[string]bool)
	for _, p := range policies {
		seen[p.Type] = true
		if p.Body == "" {
			t.Errorf("policy %s has empty body", p.Type)
		}
		if strings.Contains(p.Body, "{{store}}") {
			t.Errorf("policy %s still contains placeholder", p.Type)
		}
	}
	for _, typ := range []string{"REFUND_POLICY", "PRIVACY_POLICY", "TERMS_OF_SERVICE", "SHIPPING_POLICY"} {
		if !seen[typ] {
			t.Errorf("missing policy type %s", typ)
		}
	}

	if !strings.Contains(policies[0].Body, "Acme Supply") {
		t.Error("store name not substituted into refund policy")
	}
}

func TestPoliciesOverride(t *testing.T) {
	policies, err := Policies("Acme Supply", map[string]string{
		"REFUND_POLICY": "All sales final.",
	})
	if err != nil {
		t.Fatalf("failed to load policies: %v", err)
	}
	if policies[0].Body != "All sales final." {
		t.Errorf("override not applied: %q", policies[0].Body)
	}
	if !strings.Contains(policies[1].Body, "Acme Supply") {
		t.Error("non-overridden policy should still use embedded default")
	}
}

func TestThemeSettingsIsValidJSON(t *testing.T) {
	settings, err := ThemeSettings()
	if err != nil {
		t.Fatalf("failed to load settings: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(settings), &doc); err != nil {
		t.Fatalf("settings skeleton is not valid JSON: %v", err)
	}
	if _, ok := doc["current"]; !ok {
		t.Error("settings skeleton missing top-level current object")
	}

	schema, err := SettingsSchema()
	if err != nil {
		t.Fatalf("failed to load schema: %v", err)
	}
	if err := json.Unmarshal([]byte(schema), &doc); err != nil {
		t.Fatalf("settings schema is not valid JSON: %v", err)
	}
}

func TestFormSchemaIsValidJSON(t *testing.T) {
	schema, err := FormSchema()
	if err != nil {
		t.Fatalf("failed to load form schema: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(schema), &doc); err != nil {
		t.Fatalf("form schema is not valid JSON: %v", err)
	}
	required, ok := doc["required"].([]any)
	if !ok || len(required) != 1 || required[0] != "store_name" {
		t.Errorf("form schema should require exactly store_name, got %v", doc["required"])
	}
}
