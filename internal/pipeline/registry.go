package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Sentinel errors for the pipeline package.
var (
	// ErrStepAlreadyRegistered is returned when registering a duplicate id.
	ErrStepAlreadyRegistered = errors.New("step already registered")

	// ErrStepNotFound is returned when no step has the requested id.
	ErrStepNotFound = errors.New("step not found")

	// ErrFieldNotWritten is returned when a step reads a field no earlier
	// step writes.
	ErrFieldNotWritten = errors.New("step reads field no earlier step writes")

	// ErrDuplicateWriter is returned when two steps write the same field.
	ErrDuplicateWriter = errors.New("field written by more than one step")

	// ErrStepGap is returned when step ids are not contiguous from 1.
	ErrStepGap = errors.New("step ids must be contiguous from 1")

	// ErrStreamingStep is returned when a step other than the bulk import
	// declares itself streaming.
	ErrStreamingStep = errors.New("only the bulk import step may stream")
)

// BulkImportStepID is the only step permitted to stream per-item
// progress. Every other step responds atomically.
const BulkImportStepID = 2

// Registry holds the fixed step topology for a run. Register everything,
// then call Validate once at startup; after that the registry is
// read-only and safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	steps map[int]Step
}

// NewRegistry creates an empty step registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[int]Step)}
}

// Register adds a step. Duplicate ids are rejected.
func (r *Registry) Register(s Step) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[s.ID()]; exists {
		return fmt.Errorf("%w: id %d (%s)", ErrStepAlreadyRegistered, s.ID(), s.Name())
	}
	r.steps[s.ID()] = s
	return nil
}

// Get returns a step by id.
func (r *Registry) Get(id int) (Step, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.steps[id]
	return s, ok
}

// List returns all steps in id order.
func (r *Registry) List() []Step {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int, 0, len(r.steps))
	for id := range r.steps {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	steps := make([]Step, 0, len(ids))
	for _, id := range ids {
		steps = append(steps, r.steps[id])
	}
	return steps
}

// Infos returns the serializable step catalog in id order.
func (r *Registry) Infos() []Info {
	steps := r.List()
	infos := make([]Info, 0, len(steps))
	for _, s := range steps {
		infos = append(infos, InfoOf(s))
	}
	return infos
}

// Len returns the number of registered steps.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}

// Validate checks the static step topology: ids contiguous from 1, every
// read covered by a lower-numbered write, no field with two writers, and
// streaming confined to the bulk import step.
// It must pass before a run starts; a topology error here is a
// programming bug, not a runtime condition.
func (r *Registry) Validate() error {
	steps := r.List()

	for i, s := range steps {
		if s.ID() != i+1 {
			return fmt.Errorf("%w: missing id %d", ErrStepGap, i+1)
		}
	}

	writers := make(map[Field]Step)
	for _, s := range steps {
		if s.Streaming() && s.ID() != BulkImportStepID {
			return fmt.Errorf("%w: step %d (%s)", ErrStreamingStep, s.ID(), s.Name())
		}
		for _, f := range s.Reads() {
			w, ok := writers[f]
			if !ok {
				return fmt.Errorf("%w: step %d (%s) reads %q", ErrFieldNotWritten, s.ID(), s.Name(), f)
			}
			if w.ID() >= s.ID() {
				return fmt.Errorf("%w: step %d (%s) reads %q written by step %d", ErrFieldNotWritten, s.ID(), s.Name(), f, w.ID())
			}
		}
		for _, f := range s.Writes() {
			if w, ok := writers[f]; ok {
				return fmt.Errorf("%w: %q written by steps %d and %d", ErrDuplicateWriter, f, w.ID(), s.ID())
			}
			writers[f] = s
		}
	}

	return nil
}
