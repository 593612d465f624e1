package pipeline

import "context"

// Step is the interface all setup steps implement. Steps declare the
// state fields they read and write; the registry validates the declared
// ordering before any run starts.
type Step interface {
	// Identity. IDs are 1..N and order-significant.
	ID() int
	Name() string
	Label() string

	// Streaming reports whether the step emits incremental progress
	// events over an NDJSON stream instead of a single result body.
	Streaming() bool

	// Reads and Writes declare the state fields this step consumes and
	// produces. A step may only read fields written by earlier steps.
	Reads() []Field
	Writes() []Field

	// Run executes the step against a read view of the state plus the
	// user-supplied form. It returns a result whose delta the
	// orchestrator merges; it must not mutate st.
	//
	// Run must be idempotent: a step may be re-executed after a partial
	// failure elsewhere in the run, and must not duplicate the remote
	// entities it creates.
	Run(ctx context.Context, st *State, form *Form) (Result, error)
}

// Info is the serializable description of a step, exposed so callers can
// persist per-step completion keyed by id.
type Info struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	Streaming bool     `json:"streaming"`
	Reads     []string `json:"reads,omitempty"`
	Writes    []string `json:"writes,omitempty"`
}

// InfoOf builds the serializable description of a step.
func InfoOf(s Step) Info {
	info := Info{
		ID:        s.ID(),
		Name:      s.Name(),
		Label:     s.Label(),
		Streaming: s.Streaming(),
	}
	for _, f := range s.Reads() {
		info.Reads = append(info.Reads, string(f))
	}
	for _, f := range s.Writes() {
		info.Writes = append(info.Writes, string(f))
	}
	return info
}
