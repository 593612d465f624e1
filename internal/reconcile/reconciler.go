// Package reconcile emulates idempotent create-or-fetch for named remote
// entities. The admin API has no native idempotent create, so a re-run
// step would otherwise mint duplicate collections, themes, and menus.
package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"context"

	"github.com/tidwall/gjson"

	"github.com/Yslas262/shopify-setup/internal/shopify"
)

// Kind labels the entity family being reconciled.
type Kind string

const (
	KindCollection Kind = "collection"
	KindTheme      Kind = "theme"
	KindMenu       Kind = "menu"
)

// Entity is the resolved remote entity.
type Entity struct {
	ID     string `json:"id"`
	Handle string `json:"handle,omitempty"`
	Title  string `json:"title,omitempty"`
}

// Request describes one find-or-create operation declaratively: the
// create mutation, the lookup fallback, and the gjson paths to the
// entity node in each response.
type Request struct {
	Kind       Kind
	NaturalKey string

	CreateQuery string
	CreateVars  map[string]any
	// CreateRoot is the mutation root holding userErrors, e.g.
	// "collectionCreate".
	CreateRoot string
	// NodePath is the entity node under CreateRoot, e.g. "collection".
	NodePath string

	LookupQuery string
	LookupVars  map[string]any
	// LookupPath is the entity node in the lookup response, e.g.
	// "collections.edges.0.node".
	LookupPath string
}

// Reconciler performs optimistic-create-then-lookup against the admin
// API.
type Reconciler struct {
	client *shopify.Client
	logger *slog.Logger
}

// New creates a reconciler.
func New(client *shopify.Client, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{client: client, logger: logger}
}

// FindOrCreate attempts creation first; on a uniqueness conflict it falls
// back to lookup by natural key. Called twice with the same natural key
// it never produces two distinct entities.
func (r *Reconciler) FindOrCreate(ctx context.Context, req Request) (Entity, error) {
	resp, err := r.client.ExecuteWithRetry(ctx, req.CreateQuery, req.CreateVars)
	if err != nil {
		var be *shopify.BusinessError
		if errors.As(err, &be) && isConflict(be.Message) {
			return r.lookup(ctx, req, err)
		}
		return Entity{}, fmt.Errorf("failed to create %s %q: %w", req.Kind, req.NaturalKey, err)
	}

	if ues := resp.UserErrors(req.CreateRoot); len(ues) > 0 {
		if hasConflict(ues) {
			r.logger.Debug("create conflict, falling back to lookup",
				"kind", req.Kind, "key", req.NaturalKey)
			return r.lookup(ctx, req, &shopify.BusinessError{Message: ues[0].Message})
		}
		return Entity{}, fmt.Errorf("failed to create %s %q: %w",
			req.Kind, req.NaturalKey, &shopify.BusinessError{Message: ues[0].Message})
	}

	entity := entityFrom(resp.Get(req.CreateRoot + "." + req.NodePath))
	if entity.ID == "" {
		return Entity{}, fmt.Errorf("create of %s %q returned no id", req.Kind, req.NaturalKey)
	}
	return entity, nil
}

// Find resolves an entity by natural key without creating it. A zero
// Entity with a nil error means no entity matched.
func (r *Reconciler) Find(ctx context.Context, req Request) (Entity, error) {
	resp, err := r.client.ExecuteWithRetry(ctx, req.LookupQuery, req.LookupVars)
	if err != nil {
		return Entity{}, fmt.Errorf("lookup of %s %q failed: %w", req.Kind, req.NaturalKey, err)
	}
	return entityFrom(resp.Get(req.LookupPath)), nil
}

// lookup resolves the entity by natural key after a conflicting create.
// If it is still not found, the original create failure is surfaced.
func (r *Reconciler) lookup(ctx context.Context, req Request, createErr error) (Entity, error) {
	resp, err := r.client.ExecuteWithRetry(ctx, req.LookupQuery, req.LookupVars)
	if err != nil {
		return Entity{}, fmt.Errorf("lookup of %s %q after create conflict failed: %w", req.Kind, req.NaturalKey, err)
	}

	entity := entityFrom(resp.Get(req.LookupPath))
	if entity.ID == "" {
		return Entity{}, fmt.Errorf("%s %q conflicted on create but was not found by lookup: %w",
			req.Kind, req.NaturalKey, createErr)
	}
	return entity, nil
}

// Conflict detection is textual: the remote API exposes no
// machine-readable conflict code, only messages like "has already been
// taken" or "already exists".
func isConflict(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "already exists") || strings.Contains(lower, "taken")
}

func hasConflict(ues []shopify.UserError) bool {
	for _, ue := range ues {
		if isConflict(ue.Message) {
			return true
		}
	}
	return false
}

func entityFrom(node gjson.Result) Entity {
	return Entity{
		ID:     node.Get("id").String(),
		Handle: node.Get("handle").String(),
		Title:  node.Get("title").String(),
	}
}
