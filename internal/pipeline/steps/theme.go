package steps

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/reconcile"
	"github.com/Yslas262/shopify-setup/internal/uploads"
)

const (
	defaultThemePollInterval = 2 * time.Second
	defaultThemeMaxPolls     = 60
)

const themeCreateMutation = `
mutation themeCreate($source: URL!, $name: String!) {
  themeCreate(source: $source, name: $name) {
    theme { id name processing }
    userErrors { field message }
  }
}`

const themesByNameQuery = `
query themesByName($names: [String!]) {
  themes(first: 1, names: $names) {
    edges { node { id name } }
  }
}`

const themeStatusQuery = `
query themeStatus($id: ID!) {
  theme(id: $id) {
    id
    processing
  }
}`

const themePublishMutation = `
mutation themePublish($id: ID!) {
  themePublish(id: $id) {
    theme { id role }
    userErrors { field message }
  }
}`

// uploadTheme stages the theme zip, installs it unpublished, and waits
// for remote processing to settle before later steps patch its files.
type uploadTheme struct {
	cfg Config
}

func (s *uploadTheme) ID() int         { return 4 }
func (s *uploadTheme) Name() string    { return "upload-theme" }
func (s *uploadTheme) Label() string   { return "Upload theme" }
func (s *uploadTheme) Streaming() bool { return false }

func (s *uploadTheme) Reads() []pipeline.Field { return nil }
func (s *uploadTheme) Writes() []pipeline.Field {
	return []pipeline.Field{pipeline.FieldThemeID}
}

func (s *uploadTheme) Run(ctx context.Context, _ *pipeline.State, form *pipeline.Form) (pipeline.Result, error) {
	if form.ThemeZipPath == "" {
		return failure("no theme archive provided"), nil
	}

	name := form.ThemeName
	if name == "" {
		name = form.StoreName + " theme"
	}

	existing, err := s.cfg.Reconciler.Find(ctx, reconcile.Request{
		Kind:        reconcile.KindTheme,
		NaturalKey:  name,
		LookupQuery: themesByNameQuery,
		LookupVars:  map[string]any{"names": []string{name}},
		LookupPath:  "themes.edges.0.node",
	})
	if err != nil {
		return pipeline.Result{}, err
	}
	if existing.ID != "" {
		s.cfg.logger().Info("theme already installed, reusing", "theme_id", existing.ID, "name", name)
		return pipeline.Result{
			Success: true,
			Message: fmt.Sprintf("reusing theme %q", name),
			Delta:   &pipeline.Delta{ThemeID: pipeline.StrPtr(existing.ID)},
		}, nil
	}

	resourceURL, err := s.cfg.Uploads.UploadStaged(ctx, uploads.File{
		Path:        form.ThemeZipPath,
		Name:        filepath.Base(form.ThemeZipPath),
		ContentType: "application/zip",
		Resource:    "THEME",
	})
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("theme upload failed: %w", err)
	}

	resp, err := s.cfg.Client.ExecuteWithRetry(ctx, themeCreateMutation, map[string]any{
		"source": resourceURL,
		"name":   name,
	})
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("theme install failed: %w", err)
	}
	if ues := resp.UserErrors("themeCreate"); len(ues) > 0 {
		return failure(fmt.Sprintf("theme install rejected: %s", ues[0].Message)), nil
	}

	themeID := resp.Get("themeCreate.theme.id").String()
	if themeID == "" {
		return pipeline.Result{}, errors.New("theme install returned no id")
	}

	var warnings []pipeline.ItemError
	if resp.Get("themeCreate.theme.processing").Bool() {
		warn, err := s.waitProcessed(ctx, themeID)
		if err != nil {
			return pipeline.Result{}, err
		}
		if warn != nil {
			warnings = append(warnings, *warn)
		}
	}

	s.cfg.logger().Info("theme installed", "theme_id", themeID, "name", name)

	return pipeline.Result{
		Success: true,
		Message: fmt.Sprintf("installed theme %q", name),
		Errors:  warnings,
		Delta:   &pipeline.Delta{ThemeID: pipeline.StrPtr(themeID)},
	}, nil
}

var errThemeProcessing = errors.New("theme still processing")

// waitProcessed polls the installed theme at a fixed interval until the
// remote finishes unpacking it. Exhausting the poll budget is not a
// failure: the remote may still finish the install on its own, so the
// step carries a warning and moves on with the theme id it has.
func (s *uploadTheme) waitProcessed(ctx context.Context, themeID string) (*pipeline.ItemError, error) {
	interval := s.cfg.ThemePollInterval
	if interval <= 0 {
		interval = defaultThemePollInterval
	}
	maxPolls := s.cfg.ThemeMaxPolls
	if maxPolls <= 0 {
		maxPolls = defaultThemeMaxPolls
	}

	err := retry.Do(
		func() error {
			resp, err := s.cfg.Client.ExecuteWithRetry(ctx, themeStatusQuery, map[string]any{"id": themeID})
			if err != nil {
				return retry.Unrecoverable(err)
			}
			if resp.Get("theme.processing").Bool() {
				return errThemeProcessing
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxPolls)),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)

	if errors.Is(err, errThemeProcessing) {
		s.cfg.logger().Warn("theme still processing after poll budget, continuing",
			"theme_id", themeID, "polls", maxPolls)
		return &pipeline.ItemError{
			Key:    "theme",
			Reason: fmt.Sprintf("still processing after %d polls", maxPolls),
		}, nil
	}
	return nil, err
}

// publishTheme flips the installed theme to the live role. It runs last
// so shoppers never see a half-configured storefront.
type publishTheme struct {
	cfg Config
}

func (s *publishTheme) ID() int         { return 8 }
func (s *publishTheme) Name() string    { return "publish-theme" }
func (s *publishTheme) Label() string   { return "Publish theme" }
func (s *publishTheme) Streaming() bool { return false }

func (s *publishTheme) Reads() []pipeline.Field {
	return []pipeline.Field{pipeline.FieldThemeID}
}
func (s *publishTheme) Writes() []pipeline.Field { return nil }

func (s *publishTheme) Run(ctx context.Context, st *pipeline.State, _ *pipeline.Form) (pipeline.Result, error) {
	if st.ThemeID == "" {
		return failure("no theme installed"), nil
	}

	resp, err := s.cfg.Client.ExecuteWithRetry(ctx, themePublishMutation, map[string]any{"id": st.ThemeID})
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("theme publish failed: %w", err)
	}
	if ues := resp.UserErrors("themePublish"); len(ues) > 0 {
		return failure(fmt.Sprintf("theme publish rejected: %s", ues[0].Message)), nil
	}
	if role := resp.Get("themePublish.theme.role").String(); role != "MAIN" {
		return failure(fmt.Sprintf("theme publish did not take: role is %q, want MAIN", role)), nil
	}

	s.cfg.logger().Info("theme published", "theme_id", st.ThemeID)

	return pipeline.Result{
		Success: true,
		Message: "theme published to storefront",
	}, nil
}
