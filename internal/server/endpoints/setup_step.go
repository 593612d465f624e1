package endpoints

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Yslas262/shopify-setup/internal/api"
	"github.com/Yslas262/shopify-setup/internal/bulk"
	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/svcctx"
)

// StepRequest is the request body for running a single step. The state
// must hold whatever fields the step reads; the report from a previous
// run or step invocation supplies it.
type StepRequest struct {
	Form  pipeline.Form   `json:"form"`
	State *pipeline.State `json:"state,omitempty"`
}

// StepResponse is the response for a non-streaming step invocation.
type StepResponse struct {
	Result pipeline.Result `json:"result"`
	State  *pipeline.State `json:"state"`
}

// RunStepEndpoint handles POST /api/setup/steps/{id}.
//
// Streaming steps answer with application/x-ndjson: one progress event
// per processed item, closed by a single terminal complete event. All
// other steps answer with a single JSON StepResponse.
type RunStepEndpoint struct{}

var _ api.Endpoint = (*RunStepEndpoint)(nil)

func (e *RunStepEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/setup/steps/{id}", e.handler
}

func (e *RunStepEndpoint) RequiresInit() bool { return true }

func (e *RunStepEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "step id must be an integer")
		return
	}

	var req StepRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not initialized")
		return
	}

	step, ok := orch.Steps().Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no step with id %d", id))
		return
	}

	if step.Streaming() {
		e.handleStreaming(w, r, orch, id, &req)
		return
	}

	res, st, err := orch.RunStep(r.Context(), id, req.State, &req.Form)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, StepResponse{Result: res, State: st})
}

// handleStreaming runs the step with the response wired up as the event
// sink. Once the header is written the protocol owns the connection, so
// later failures surface as a terminal event rather than an HTTP error.
func (e *RunStepEndpoint) handleStreaming(w http.ResponseWriter, r *http.Request, orch *pipeline.Orchestrator, id int, req *StepRequest) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	sink := &trackingSink{inner: bulk.NewWriterSink(w)}
	ctx := bulk.WithSink(r.Context(), sink)

	res, _, err := orch.RunStep(ctx, id, req.State, &req.Form)
	if err != nil {
		res = pipeline.Result{Message: err.Error()}
	}

	// A run that never reached the item loop has not emitted a terminal
	// event yet. Synthesize one so consumers never see a bare EOF.
	if !sink.sawComplete {
		_ = sink.Emit(ctx, bulk.CompleteEvent{
			Type:       bulk.TypeComplete,
			Success:    res.Success,
			Message:    res.Message,
			ItemErrors: res.Errors,
		})
	}
}

// trackingSink records whether a terminal event has passed through.
type trackingSink struct {
	inner       bulk.Sink
	sawComplete bool
}

func (s *trackingSink) Emit(ctx context.Context, event any) error {
	if _, ok := event.(bulk.CompleteEvent); ok {
		s.sawComplete = true
	}
	return s.inner.Emit(ctx, event)
}

func (e *RunStepEndpoint) Command(getServerURL func() string) *cobra.Command {
	var form pipeline.Form
	var catalogPath string
	var statePath string
	cmd := &cobra.Command{
		Use:   "step <id>",
		Short: "Run a single setup step",
		Long: `Run one setup step by id.

Steps that read fields produced by earlier steps need a state snapshot;
pass one with --state. Streaming steps print a progress line per item.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("step id must be an integer: %q", args[0])
			}
			if err := loadCatalog(&form, catalogPath); err != nil {
				return err
			}

			req := StepRequest{Form: form}
			if statePath != "" {
				st, err := loadStateFile(statePath)
				if err != nil {
					return err
				}
				req.State = st
			}

			client := api.NewClient(getServerURL())
			path := "/api/setup/steps/" + strconv.Itoa(id)

			streaming, err := stepIsStreaming(cmd.Context(), client, id)
			if err != nil {
				return err
			}
			if !streaming {
				var resp StepResponse
				if err := client.Post(cmd.Context(), path, req, &resp); err != nil {
					return err
				}
				return api.Output(resp)
			}

			body, err := client.PostStream(cmd.Context(), path, req)
			if err != nil {
				return err
			}
			defer body.Close()

			complete, err := bulk.Decode(body, func(ev bulk.ProgressEvent) {
				fmt.Printf("processed %d/%d\n", ev.Processed, ev.Total)
			})
			if err != nil {
				return err
			}
			return api.Output(complete)
		},
	}
	formFlags(cmd, &form, &catalogPath)
	cmd.Flags().StringVar(&statePath, "state", "", "Path to a state snapshot JSON file")
	return cmd
}

// stepIsStreaming asks the server's step catalog whether a step streams.
func stepIsStreaming(ctx context.Context, client *api.Client, id int) (bool, error) {
	var infos []pipeline.Info
	if err := client.Get(ctx, "/api/setup/steps", &infos); err != nil {
		return false, err
	}
	for _, info := range infos {
		if info.ID == id {
			return info.Streaming, nil
		}
	}
	return false, fmt.Errorf("no step with id %d", id)
}

// loadStateFile reads a state snapshot from disk. Both a bare state and
// a full run report are accepted.
func loadStateFile(path string) (*pipeline.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var report pipeline.Report
	if err := json.Unmarshal(data, &report); err == nil && report.State != nil && report.State.RunID != "" {
		return report.State, nil
	}

	var st pipeline.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("state file is not valid JSON: %w", err)
	}
	return &st, nil
}
