package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Orchestrator executes the registered steps over one State per run.
// It is the only component that mutates State; steps see clones and
// hand back deltas.
type Orchestrator struct {
	registry *Registry
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator after validating the step
// topology.
func NewOrchestrator(registry *Registry, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid step topology: %w", err)
	}
	return &Orchestrator{registry: registry, logger: logger}, nil
}

// Outcome records one step's result for the caller. The caller may
// persist these keyed by step id to support resuming across sessions.
type Outcome struct {
	StepID  int         `json:"step_id"`
	Name    string      `json:"name"`
	Success bool        `json:"success"`
	Reused  bool        `json:"reused,omitempty"`
	Message string      `json:"message,omitempty"`
	Errors  []ItemError `json:"errors,omitempty"`
}

// Report is the aggregate result of a full or resumed run.
type Report struct {
	Success      bool      `json:"success"`
	FailedStepID int       `json:"failed_step_id,omitempty"`
	Outcomes     []Outcome `json:"outcomes"`
	State        *State    `json:"state"`
}

// Run executes all steps in order against a fresh state, halting at the
// first failure. Later steps are left unexecuted.
func (o *Orchestrator) Run(ctx context.Context, form *Form) *Report {
	st := &State{RunID: uuid.NewString()}
	return o.runFrom(ctx, st, form, 1, nil)
}

// Resume re-executes from the earliest failed step forward, reusing the
// state accumulated by previously successful steps. Steps before that
// point are never re-executed.
func (o *Orchestrator) Resume(ctx context.Context, form *Form, st *State, failed []int) (*Report, error) {
	if st == nil {
		return nil, fmt.Errorf("resume requires the previous run's state")
	}
	if len(failed) == 0 {
		return nil, fmt.Errorf("resume requires at least one failed step id")
	}

	from := failed[0]
	for _, id := range failed[1:] {
		if id < from {
			from = id
		}
	}
	if _, ok := o.registry.Get(from); !ok {
		return nil, fmt.Errorf("%w: id %d", ErrStepNotFound, from)
	}

	var reused []Outcome
	for _, s := range o.registry.List() {
		if s.ID() >= from {
			break
		}
		reused = append(reused, Outcome{
			StepID:  s.ID(),
			Name:    s.Name(),
			Success: true,
			Reused:  true,
		})
	}

	return o.runFrom(ctx, st.Clone(), form, from, reused), nil
}

// RunStep executes a single step ad hoc against the supplied state. The
// caller is responsible for supplying a state that holds the fields the
// step reads. It returns the result and the state with the step's delta
// merged.
func (o *Orchestrator) RunStep(ctx context.Context, id int, st *State, form *Form) (Result, *State, error) {
	step, ok := o.registry.Get(id)
	if !ok {
		return Result{}, nil, fmt.Errorf("%w: id %d", ErrStepNotFound, id)
	}
	if st == nil {
		st = &State{RunID: uuid.NewString()}
	} else {
		st = st.Clone()
	}

	res, err := o.execute(ctx, step, st, form)
	if err != nil {
		return Result{}, st, err
	}
	res.Delta.apply(st)
	return res, st, nil
}

// runFrom drives steps from id `from` to the end, halting at the first
// failure.
func (o *Orchestrator) runFrom(ctx context.Context, st *State, form *Form, from int, outcomes []Outcome) *Report {
	report := &Report{Outcomes: outcomes, State: st}

	for _, step := range o.registry.List() {
		if step.ID() < from {
			continue
		}

		res, err := o.execute(ctx, step, st, form)
		if err != nil {
			res = Result{Success: false, Message: err.Error()}
		}
		res.Delta.apply(st)

		report.Outcomes = append(report.Outcomes, Outcome{
			StepID:  step.ID(),
			Name:    step.Name(),
			Success: res.Success,
			Message: res.Message,
			Errors:  res.Errors,
		})

		if !res.Success {
			report.FailedStepID = step.ID()
			o.logger.Error("setup step failed, halting run",
				"step", step.Name(), "step_id", step.ID(), "message", res.Message)
			return report
		}
		o.logger.Info("setup step completed", "step", step.Name(), "step_id", step.ID())
	}

	report.Success = true
	return report
}

// execute runs one step against a clone of the state.
func (o *Orchestrator) execute(ctx context.Context, step Step, st *State, form *Form) (Result, error) {
	if form == nil {
		form = &Form{}
	}
	o.logger.Info("running setup step", "step", step.Name(), "step_id", step.ID())
	return step.Run(ctx, st.Clone(), form)
}

// Steps returns the underlying registry.
func (o *Orchestrator) Steps() *Registry {
	return o.registry
}
