package endpoints

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/Yslas262/shopify-setup/internal/api"
	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/svcctx"
)

// RunSetupEndpoint handles POST /api/setup/run with a JSON form body.
// The response is the full run report, including the accumulated state
// needed to resume a failed run.
type RunSetupEndpoint struct{}

var _ api.Endpoint = (*RunSetupEndpoint)(nil)

func (e *RunSetupEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/setup/run", e.handler
}

func (e *RunSetupEndpoint) RequiresInit() bool { return true }

func (e *RunSetupEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var form pipeline.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateForm(&form); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not initialized")
		return
	}

	report := orch.Run(r.Context(), &form)
	persistReport(r.Context(), report)

	status := http.StatusOK
	if !report.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

func (e *RunSetupEndpoint) Command(getServerURL func() string) *cobra.Command {
	var form pipeline.Form
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full store setup",
		Long: `Run all setup steps against the configured shop.

The run halts at the first failed step. The report it prints carries a
run id; pass that to 'shopsetup api resume' to retry from the failure
without repeating the steps that already succeeded.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadCatalog(&form, catalogPath); err != nil {
				return err
			}

			client := api.NewClient(getServerURL())
			var report pipeline.Report
			if err := client.Post(cmd.Context(), "/api/setup/run", form, &report); err != nil {
				return err
			}
			return api.Output(report)
		},
	}
	formFlags(cmd, &form, &catalogPath)
	return cmd
}

// formFlags registers the setup form flags shared by the run, resume,
// and step commands.
func formFlags(cmd *cobra.Command, form *pipeline.Form, catalogPath *string) {
	cmd.Flags().StringVar(&form.StoreName, "store-name", "", "Store display name")
	cmd.Flags().StringVar(&form.PrimaryColor, "primary-color", "", "Primary brand color, e.g. #1a1a2e")
	cmd.Flags().StringVar(&form.SecondaryColor, "secondary-color", "", "Secondary brand color")
	cmd.Flags().StringVar(&form.HeadingFont, "heading-font", "", "Heading font family")
	cmd.Flags().StringVar(&form.BodyFont, "body-font", "", "Body font family")
	cmd.Flags().StringVar(&form.FeaturedCollectionTitle, "featured-title", "", "Featured collection title")
	cmd.Flags().StringVar(&form.ThemeName, "theme-name", "", "Installed theme name")
	cmd.Flags().StringVar(catalogPath, "catalog", "", "Path to the product catalog CSV")
	cmd.Flags().StringVar(&form.ThemeZipPath, "theme-zip", "", "Path to the theme archive on the server host")
	cmd.Flags().StringVar(&form.LogoPath, "logo", "", "Path to the logo image on the server host")
	cmd.Flags().StringVar(&form.FaviconPath, "favicon", "", "Path to the favicon image on the server host")
}

// loadCatalog reads the catalog CSV into the form when a path was given.
func loadCatalog(form *pipeline.Form, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	form.CatalogCSV = string(data)
	return nil
}

// persistReport snapshots a run report under the home runs directory so
// a later resume can pick up where the run stopped. Best effort: a
// persistence failure never fails the request that produced the report.
func persistReport(ctx context.Context, report *pipeline.Report) {
	if report == nil || report.State == nil || report.State.RunID == "" {
		return
	}
	homeDir := svcctx.HomeFrom(ctx)
	if homeDir == nil {
		return
	}
	logger := svcctx.LoggerFrom(ctx)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		if logger != nil {
			logger.Error("failed to marshal run report", "run_id", report.State.RunID, "error", err)
		}
		return
	}
	if err := os.WriteFile(homeDir.RunStatePath(report.State.RunID), data, 0o644); err != nil {
		if logger != nil {
			logger.Error("failed to persist run report", "run_id", report.State.RunID, "error", err)
		}
		return
	}
	if logger != nil {
		logger.Info("run report persisted", "run_id", report.State.RunID)
	}
}

// loadReport reads a persisted run report by run id.
func loadReport(ctx context.Context, runID string) (*pipeline.Report, error) {
	homeDir := svcctx.HomeFrom(ctx)
	if homeDir == nil {
		return nil, fmt.Errorf("home directory not initialized")
	}
	data, err := os.ReadFile(homeDir.RunStatePath(runID))
	if err != nil {
		return nil, fmt.Errorf("no saved run %q: %w", runID, err)
	}
	var report pipeline.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("saved run %q is corrupt: %w", runID, err)
	}
	return &report, nil
}
