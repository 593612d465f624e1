package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Yslas262/shopify-setup/internal/api"
	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/svcctx"
)

// ListStepsEndpoint handles GET /api/setup/steps. It returns the step
// catalog in execution order: ids, names, and the state fields each
// step reads and writes.
type ListStepsEndpoint struct{}

var _ api.Endpoint = (*ListStepsEndpoint)(nil)

func (e *ListStepsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/setup/steps", e.handler
}

func (e *ListStepsEndpoint) RequiresInit() bool { return false }

func (e *ListStepsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not initialized")
		return
	}
	writeJSON(w, http.StatusOK, orch.Steps().Infos())
}

func (e *ListStepsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "steps",
		Short: "List the setup steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var infos []pipeline.Info
			if err := client.Get(cmd.Context(), "/api/setup/steps", &infos); err != nil {
				return err
			}
			return api.Output(infos)
		},
	}
}
