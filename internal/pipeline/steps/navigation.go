package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/reconcile"
	"github.com/Yslas262/shopify-setup/internal/staticdata"
)

const menuCreateMutation = `
mutation menuCreate($title: String!, $handle: String!, $items: [MenuItemCreateInput!]!) {
  menuCreate(title: $title, handle: $handle, items: $items) {
    menu { id handle title }
    userErrors { field message }
  }
}`

const menuByHandleQuery = `
query menuByHandle($query: String!) {
  menus(first: 1, query: $query) {
    edges { node { id handle title } }
  }
}`

const shopPolicyUpdateMutation = `
mutation shopPolicyUpdate($shopPolicy: ShopPolicyInput!) {
  shopPolicyUpdate(shopPolicy: $shopPolicy) {
    shopPolicy { id type }
    userErrors { field message }
  }
}`

// setupNavigation creates the storefront menus and writes the shop
// policies. The main menu links the created collections; the footer
// links the policy pages. Menus go through the reconciler so re-runs
// land on the menus a previous run already made. A failed policy write
// is reported but never halts the step: the storefront works without
// it and the text can be pasted in by hand.
type setupNavigation struct {
	cfg Config
}

func (s *setupNavigation) ID() int         { return 7 }
func (s *setupNavigation) Name() string    { return "setup-navigation" }
func (s *setupNavigation) Label() string   { return "Set up navigation and policies" }
func (s *setupNavigation) Streaming() bool { return false }

func (s *setupNavigation) Reads() []pipeline.Field {
	return []pipeline.Field{pipeline.FieldCollections}
}
func (s *setupNavigation) Writes() []pipeline.Field { return nil }

func (s *setupNavigation) Run(ctx context.Context, st *pipeline.State, form *pipeline.Form) (pipeline.Result, error) {
	var itemErrs []pipeline.ItemError

	mainItems := []map[string]any{
		{"title": "Home", "type": "FRONTPAGE"},
	}
	for _, c := range st.Collections {
		mainItems = append(mainItems, map[string]any{
			"title":      c.Title,
			"type":       "COLLECTION",
			"resourceId": c.ID,
		})
	}

	if _, err := s.cfg.Reconciler.FindOrCreate(ctx, menuRequest("Main menu", "main-menu", mainItems)); err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to create main menu: %w", err)
	}

	footerItems := []map[string]any{
		{"title": "Refund policy", "type": "SHOP_POLICY", "url": "/policies/refund-policy"},
		{"title": "Privacy policy", "type": "SHOP_POLICY", "url": "/policies/privacy-policy"},
		{"title": "Terms of service", "type": "SHOP_POLICY", "url": "/policies/terms-of-service"},
		{"title": "Shipping policy", "type": "SHOP_POLICY", "url": "/policies/shipping-policy"},
	}
	if _, err := s.cfg.Reconciler.FindOrCreate(ctx, menuRequest("Footer menu", "footer", footerItems)); err != nil {
		itemErrs = append(itemErrs, pipeline.ItemError{Key: "footer", Reason: err.Error()})
	}

	policies, err := staticdata.Policies(form.StoreName, form.Policies)
	if err != nil {
		return pipeline.Result{}, err
	}

	written := 0
	for _, p := range policies {
		if err := s.writePolicy(ctx, p); err != nil {
			s.cfg.logger().Warn("policy write failed", "type", p.Type, "error", err)
			itemErrs = append(itemErrs, pipeline.ItemError{Key: p.Type, Reason: err.Error()})
			continue
		}
		written++
	}

	return pipeline.Result{
		Success: true,
		Message: fmt.Sprintf("menus created, %d of %d policies written", written, len(policies)),
		Errors:  itemErrs,
	}, nil
}

func (s *setupNavigation) writePolicy(ctx context.Context, p staticdata.Policy) error {
	resp, err := s.cfg.Client.ExecuteWithRetry(ctx, shopPolicyUpdateMutation, map[string]any{
		"shopPolicy": map[string]any{"type": p.Type, "body": p.Body},
	})
	if err != nil {
		return err
	}
	if ues := resp.UserErrors("shopPolicyUpdate"); len(ues) > 0 {
		return errors.New(ues[0].Message)
	}
	return nil
}

func menuRequest(title, handle string, items []map[string]any) reconcile.Request {
	return reconcile.Request{
		Kind:        reconcile.KindMenu,
		NaturalKey:  handle,
		CreateQuery: menuCreateMutation,
		CreateVars: map[string]any{
			"title":  title,
			"handle": handle,
			"items":  items,
		},
		CreateRoot:  "menuCreate",
		NodePath:    "menu",
		LookupQuery: menuByHandleQuery,
		LookupVars:  map[string]any{"query": fmt.Sprintf("handle:%q", handle)},
		LookupPath:  "menus.edges.0.node",
	}
}
