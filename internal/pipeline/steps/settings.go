package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/sjson"

	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/staticdata"
)

const settingsFilename = "config/settings_data.json"

const themeFilesUpsertMutation = `
mutation themeFilesUpsert($themeId: ID!, $files: [OnlineStoreThemeFilesUpsertFileInput!]!) {
  themeFilesUpsert(themeId: $themeId, files: $files) {
    upsertedThemeFiles { filename }
    userErrors { field message }
  }
}`

// configureTheme patches the settings skeleton with the brand form and
// the asset URLs earlier steps produced, validates the result against
// the embedded settings schema, and writes it into the installed theme.
//
// The write itself retries a few times with linear backoff on top of the
// client's throttle handling: settings upserts can fail transiently for
// non-throttle reasons right after theme install.
type configureTheme struct {
	cfg Config
}

func (s *configureTheme) ID() int         { return 6 }
func (s *configureTheme) Name() string    { return "configure-theme" }
func (s *configureTheme) Label() string   { return "Configure theme" }
func (s *configureTheme) Streaming() bool { return false }

func (s *configureTheme) Reads() []pipeline.Field {
	return []pipeline.Field{
		pipeline.FieldThemeID,
		pipeline.FieldFeaturedCollectionID,
		pipeline.FieldLogoURL,
		pipeline.FieldFaviconURL,
		pipeline.FieldBannerURLs,
	}
}

func (s *configureTheme) Writes() []pipeline.Field { return nil }

func (s *configureTheme) Run(ctx context.Context, st *pipeline.State, form *pipeline.Form) (pipeline.Result, error) {
	if st.ThemeID == "" {
		return failure("no theme installed"), nil
	}

	settings, err := s.buildSettings(st, form)
	if err != nil {
		return pipeline.Result{}, err
	}

	if err := validateSettings(settings); err != nil {
		return failure(fmt.Sprintf("theme settings invalid: %v", err)), nil
	}

	if err := s.writeSettings(ctx, st.ThemeID, settings); err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to write theme settings: %w", err)
	}

	s.cfg.logger().Info("theme configured", "theme_id", st.ThemeID)

	return pipeline.Result{
		Success: true,
		Message: "theme settings written",
	}, nil
}

// buildSettings patches the embedded skeleton field by field, skipping
// anything the form or earlier steps did not provide so the skeleton's
// defaults survive.
func (s *configureTheme) buildSettings(st *pipeline.State, form *pipeline.Form) (string, error) {
	settings, err := staticdata.ThemeSettings()
	if err != nil {
		return "", err
	}

	patches := map[string]string{
		"current.colors.primary":                          form.PrimaryColor,
		"current.colors.secondary":                        form.SecondaryColor,
		"current.typography.heading_font":                 form.HeadingFont,
		"current.typography.body_font":                    form.BodyFont,
		"current.branding.logo_url":                       st.LogoURL,
		"current.branding.favicon_url":                    st.FaviconURL,
		"current.sections.hero.banner_desktop_url":        st.BannerDesktopURL,
		"current.sections.hero.banner_mobile_url":         st.BannerMobileURL,
		"current.sections.hero.heading":                   form.StoreName,
		"current.sections.featured_collection.collection_id": st.FeaturedCollectionID,
	}

	for path, value := range patches {
		if value == "" {
			continue
		}
		settings, err = sjson.Set(settings, path, value)
		if err != nil {
			return "", fmt.Errorf("failed to patch %s: %w", path, err)
		}
	}
	return settings, nil
}

func validateSettings(settings string) error {
	schemaText, err := staticdata.SettingsSchema()
	if err != nil {
		return err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("settings_schema.json", strings.NewReader(schemaText)); err != nil {
		return fmt.Errorf("failed to load settings schema: %w", err)
	}
	schema, err := compiler.Compile("settings_schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile settings schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal([]byte(settings), &doc); err != nil {
		return fmt.Errorf("patched settings are not valid JSON: %w", err)
	}
	return schema.Validate(doc)
}

func (s *configureTheme) writeSettings(ctx context.Context, themeID, settings string) error {
	baseDelay := s.cfg.SettingsRetryDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	return retry.Do(
		func() error {
			resp, err := s.cfg.Client.ExecuteWithRetry(ctx, themeFilesUpsertMutation, map[string]any{
				"themeId": themeID,
				"files": []map[string]any{{
					"filename": settingsFilename,
					"body":     map[string]any{"type": "TEXT", "value": settings},
				}},
			})
			if err != nil {
				return err
			}
			if ues := resp.UserErrors("themeFilesUpsert"); len(ues) > 0 {
				return errors.New(ues[0].Message)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n+1) * baseDelay
		}),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.cfg.logger().Warn("settings write retry", "attempt", n+1, "error", err)
		}),
	)
}
