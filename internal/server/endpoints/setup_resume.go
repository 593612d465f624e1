package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Yslas262/shopify-setup/internal/api"
	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/svcctx"
)

// ResumeRequest is the request body for resuming a failed run. Either
// the caller supplies the state and failed step ids from a previous
// report, or just the run id of a persisted run.
type ResumeRequest struct {
	RunID         string          `json:"run_id,omitempty"`
	Form          pipeline.Form   `json:"form"`
	State         *pipeline.State `json:"state,omitempty"`
	FailedStepIDs []int           `json:"failed_step_ids,omitempty"`
}

// ResumeSetupEndpoint handles POST /api/setup/resume.
type ResumeSetupEndpoint struct{}

var _ api.Endpoint = (*ResumeSetupEndpoint)(nil)

func (e *ResumeSetupEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/setup/resume", e.handler
}

func (e *ResumeSetupEndpoint) RequiresInit() bool { return true }

func (e *ResumeSetupEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.State == nil && req.RunID != "" {
		saved, err := loadReport(r.Context(), req.RunID)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		req.State = saved.State
		if len(req.FailedStepIDs) == 0 && saved.FailedStepID != 0 {
			req.FailedStepIDs = []int{saved.FailedStepID}
		}
	}
	if req.State == nil {
		writeError(w, http.StatusBadRequest, "state or run_id is required")
		return
	}
	if len(req.FailedStepIDs) == 0 {
		writeError(w, http.StatusBadRequest, "failed_step_ids is required")
		return
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not initialized")
		return
	}

	report, err := orch.Resume(r.Context(), &req.Form, req.State, req.FailedStepIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	persistReport(r.Context(), report)

	status := http.StatusOK
	if !report.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

func (e *ResumeSetupEndpoint) Command(getServerURL func() string) *cobra.Command {
	var form pipeline.Form
	var catalogPath string
	var failed []int
	cmd := &cobra.Command{
		Use:   "resume <run_id>",
		Short: "Resume a failed setup run",
		Long: `Resume a persisted run from its earliest failed step.

Steps that already succeeded are not re-executed; their output is
reused from the saved run state. Re-supply any form fields the failed
steps need, such as the store name or asset paths.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadCatalog(&form, catalogPath); err != nil {
				return err
			}

			client := api.NewClient(getServerURL())
			var report pipeline.Report
			err := client.Post(cmd.Context(), "/api/setup/resume", ResumeRequest{
				RunID:         args[0],
				Form:          form,
				FailedStepIDs: failed,
			}, &report)
			if err != nil {
				return err
			}
			return api.Output(report)
		},
	}
	formFlags(cmd, &form, &catalogPath)
	cmd.Flags().IntSliceVar(&failed, "failed", nil, "Failed step ids (default: from the saved run)")
	return cmd
}
