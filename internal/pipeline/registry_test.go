package pipeline

import (
	"context"
	"errors"
	"testing"
)

// mockStep implements Step for testing.
type mockStep struct {
	id        int
	name      string
	streaming bool
	reads     []Field
	writes    []Field
	run       func(ctx context.Context, st *State, form *Form) (Result, error)
}

func (m *mockStep) ID() int         { return m.id }
func (m *mockStep) Name() string    { return m.name }
func (m *mockStep) Label() string   { return "Mock: " + m.name }
func (m *mockStep) Streaming() bool { return m.streaming }
func (m *mockStep) Reads() []Field  { return m.reads }
func (m *mockStep) Writes() []Field { return m.writes }

func (m *mockStep) Run(ctx context.Context, st *State, form *Form) (Result, error) {
	if m.run != nil {
		return m.run(ctx, st, form)
	}
	return Result{Success: true}, nil
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&mockStep{id: 1, name: "a"}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	err := r.Register(&mockStep{id: 1, name: "b"})
	if !errors.Is(err, ErrStepAlreadyRegistered) {
		t.Errorf("expected ErrStepAlreadyRegistered, got %v", err)
	}
}

func TestRegistry_ValidateOrdering(t *testing.T) {
	t.Run("valid topology", func(t *testing.T) {
		r := NewRegistry()
		r.Register(&mockStep{id: 1, name: "a", writes: []Field{FieldLocationID}})
		r.Register(&mockStep{id: 2, name: "b", reads: []Field{FieldLocationID}, writes: []Field{FieldProductIDs}})
		r.Register(&mockStep{id: 3, name: "c", reads: []Field{FieldProductIDs}})
		if err := r.Validate(); err != nil {
			t.Errorf("expected valid topology, got %v", err)
		}
	})

	t.Run("read before write", func(t *testing.T) {
		r := NewRegistry()
		r.Register(&mockStep{id: 1, name: "a", reads: []Field{FieldThemeID}})
		r.Register(&mockStep{id: 2, name: "b", writes: []Field{FieldThemeID}})
		if err := r.Validate(); !errors.Is(err, ErrFieldNotWritten) {
			t.Errorf("expected ErrFieldNotWritten, got %v", err)
		}
	})

	t.Run("unwritten read", func(t *testing.T) {
		r := NewRegistry()
		r.Register(&mockStep{id: 1, name: "a", reads: []Field{FieldThemeID}})
		if err := r.Validate(); !errors.Is(err, ErrFieldNotWritten) {
			t.Errorf("expected ErrFieldNotWritten, got %v", err)
		}
	})

	t.Run("duplicate writer", func(t *testing.T) {
		r := NewRegistry()
		r.Register(&mockStep{id: 1, name: "a", writes: []Field{FieldThemeID}})
		r.Register(&mockStep{id: 2, name: "b", writes: []Field{FieldThemeID}})
		if err := r.Validate(); !errors.Is(err, ErrDuplicateWriter) {
			t.Errorf("expected ErrDuplicateWriter, got %v", err)
		}
	})

	t.Run("id gap", func(t *testing.T) {
		r := NewRegistry()
		r.Register(&mockStep{id: 1, name: "a"})
		r.Register(&mockStep{id: 3, name: "c"})
		if err := r.Validate(); !errors.Is(err, ErrStepGap) {
			t.Errorf("expected ErrStepGap, got %v", err)
		}
	})

	t.Run("streaming on bulk import step", func(t *testing.T) {
		r := NewRegistry()
		r.Register(&mockStep{id: 1, name: "a"})
		r.Register(&mockStep{id: 2, name: "b", streaming: true})
		if err := r.Validate(); err != nil {
			t.Errorf("expected valid topology, got %v", err)
		}
	})

	t.Run("streaming elsewhere", func(t *testing.T) {
		r := NewRegistry()
		r.Register(&mockStep{id: 1, name: "a"})
		r.Register(&mockStep{id: 2, name: "b"})
		r.Register(&mockStep{id: 3, name: "c", streaming: true})
		if err := r.Validate(); !errors.Is(err, ErrStreamingStep) {
			t.Errorf("expected ErrStreamingStep, got %v", err)
		}
	})
}

func TestRegistry_ListOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockStep{id: 3, name: "c"})
	r.Register(&mockStep{id: 1, name: "a"})
	r.Register(&mockStep{id: 2, name: "b"})

	var names []string
	for _, s := range r.List() {
		names = append(names, s.Name())
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, names)
		}
	}
}

func TestRegistry_Infos(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockStep{id: 1, name: "prepare", writes: []Field{FieldLocationID}})
	r.Register(&mockStep{id: 2, name: "import", streaming: true, reads: []Field{FieldLocationID}})

	infos := r.Infos()
	if len(infos) != 2 {
		t.Fatalf("expected 2 infos, got %d", len(infos))
	}
	if !infos[1].Streaming {
		t.Error("expected streaming flag on second step")
	}
	if len(infos[0].Writes) != 1 || infos[0].Writes[0] != string(FieldLocationID) {
		t.Errorf("unexpected writes: %v", infos[0].Writes)
	}
}
