// Package staticdata embeds the default content a fresh storefront needs:
// legal policy texts and the theme settings skeleton. Everything here is
// an opaque payload to the pipeline; callers may substitute their own.
package staticdata

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed policies/*.md theme/*.json form/*.json
var contentFS embed.FS

// Policy is one shop policy with its remote type identifier.
type Policy struct {
	Type string // admin API policy type, e.g. "REFUND_POLICY"
	Name string // human label
	Body string // markdown body
}

// registry maps policy types to their embedded files.
var registry = []Policy{
	{Type: "REFUND_POLICY", Name: "Refund policy"},
	{Type: "PRIVACY_POLICY", Name: "Privacy policy"},
	{Type: "TERMS_OF_SERVICE", Name: "Terms of service"},
	{Type: "SHIPPING_POLICY", Name: "Shipping policy"},
}

// Policies returns the default policies with the store name substituted
// into each body. Overrides replace the embedded body for matching types.
func Policies(storeName string, overrides map[string]string) ([]Policy, error) {
	policies := make([]Policy, len(registry))
	copy(policies, registry)

	for i := range policies {
		if body, ok := overrides[policies[i].Type]; ok {
			policies[i].Body = body
			continue
		}
		filename := fmt.Sprintf("policies/%s.md", strings.ToLower(policies[i].Type))
		content, err := contentFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy %s: %w", policies[i].Type, err)
		}
		policies[i].Body = strings.ReplaceAll(string(content), "{{store}}", storeName)
	}

	return policies, nil
}

// ThemeSettings returns the settings_data.json skeleton that theme
// configuration patches before writing it back to the theme.
func ThemeSettings() (string, error) {
	content, err := contentFS.ReadFile("theme/settings_data.json")
	if err != nil {
		return "", fmt.Errorf("failed to read theme settings skeleton: %w", err)
	}
	return string(content), nil
}

// SettingsSchema returns the JSON schema that patched theme settings are
// validated against before upload.
func SettingsSchema() (string, error) {
	content, err := contentFS.ReadFile("theme/settings_schema.json")
	if err != nil {
		return "", fmt.Errorf("failed to read theme settings schema: %w", err)
	}
	return string(content), nil
}

// FormSchema returns the JSON schema that incoming setup forms are
// validated against before a run starts.
func FormSchema() (string, error) {
	content, err := contentFS.ReadFile("form/setup_form_schema.json")
	if err != nil {
		return "", fmt.Errorf("failed to read setup form schema: %w", err)
	}
	return string(content), nil
}
