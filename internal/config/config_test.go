package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Shopify.Token != "${SHOPIFY_ADMIN_TOKEN}" {
		t.Error("expected admin token placeholder")
	}
	if cfg.Shopify.RequestsPerMinute != 120 {
		t.Errorf("expected default rate budget of 120, got %d", cfg.Shopify.RequestsPerMinute)
	}
	if cfg.Server.Port == 0 {
		t.Error("expected default server port")
	}
	if cfg.Uploads.MaxPolls == 0 || cfg.Theme.MaxPolls == 0 {
		t.Error("expected default poll budgets")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("TEST_ADMIN_TOKEN", "shpat_secret123")
		defer os.Unsetenv("TEST_ADMIN_TOKEN")

		result := ResolveEnvVars("${TEST_ADMIN_TOKEN}")
		if result != "shpat_secret123" {
			t.Errorf("expected shpat_secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_ResolvedToken(t *testing.T) {
	os.Setenv("TEST_SHOP_TOKEN", "shpat_abc")
	defer os.Unsetenv("TEST_SHOP_TOKEN")

	cfg := &Config{Shopify: ShopifyConfig{Token: "${TEST_SHOP_TOKEN}"}}
	if got := cfg.ResolvedToken(); got != "shpat_abc" {
		t.Errorf("expected shpat_abc, got %s", got)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		configContent := `
shopify:
  shop: "acme-supply.myshopify.com"
  requests_per_minute: 40
`
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Shopify.Shop != "acme-supply.myshopify.com" {
			t.Errorf("expected shop from file, got %s", cfg.Shopify.Shop)
		}
		if cfg.Shopify.RequestsPerMinute != 40 {
			t.Errorf("expected rate budget from file, got %d", cfg.Shopify.RequestsPerMinute)
		}
		// Unset values fall back to defaults.
		if cfg.Shopify.APIVersion != "2024-10" {
			t.Errorf("expected default api version, got %s", cfg.Shopify.APIVersion)
		}
	})
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("write default failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# shopsetup configuration") {
		t.Error("expected explanatory header")
	}
	if !strings.Contains(content, "${SHOPIFY_ADMIN_TOKEN}") {
		t.Error("expected token placeholder in written config")
	}

	// The written file must round-trip through the manager.
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("written config failed to load: %v", err)
	}
	if mgr.Get().Shopify.APIVersion != "2024-10" {
		t.Error("round-tripped config lost defaults")
	}
}
