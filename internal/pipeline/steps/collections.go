package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/Yslas262/shopify-setup/internal/catalog"
	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/reconcile"
)

const collectionCreateMutation = `
mutation collectionCreate($input: CollectionInput!) {
  collectionCreate(input: $input) {
    collection { id handle title }
    userErrors { field message }
  }
}`

const collectionByHandleQuery = `
query collectionByHandle($query: String!) {
  collections(first: 1, query: $query) {
    edges { node { id handle title } }
  }
}`

const collectionAddProductsMutation = `
mutation collectionAddProducts($id: ID!, $productIds: [ID!]!) {
  collectionAddProducts(id: $id, productIds: $productIds) {
    collection { id }
    userErrors { field message }
  }
}`

// createCollections builds one collection per catalog product type plus
// the featured aggregate collection. Type collections are rule-based so
// membership tracks the imported products; the featured collection is
// manual and gets the imported product ids added explicitly. Creation
// goes through the reconciler, so re-runs resolve to the collections a
// previous run already made.
type createCollections struct {
	cfg Config
}

func (s *createCollections) ID() int         { return 3 }
func (s *createCollections) Name() string    { return "create-collections" }
func (s *createCollections) Label() string   { return "Create collections" }
func (s *createCollections) Streaming() bool { return false }

func (s *createCollections) Reads() []pipeline.Field {
	return []pipeline.Field{
		pipeline.FieldCatalogCSV,
		pipeline.FieldProductIDs,
		pipeline.FieldPublicationID,
	}
}

func (s *createCollections) Writes() []pipeline.Field {
	return []pipeline.Field{
		pipeline.FieldCollections,
		pipeline.FieldFeaturedCollectionID,
	}
}

func (s *createCollections) Run(ctx context.Context, st *pipeline.State, form *pipeline.Form) (pipeline.Result, error) {
	var types []string
	if st.CatalogCSV != "" {
		cat, err := catalog.Parse(st.CatalogCSV)
		if err != nil {
			return pipeline.Result{}, fmt.Errorf("failed to parse catalog: %w", err)
		}
		types = cat.ProductTypes()
	}

	var (
		records   []pipeline.CollectionRecord
		itemErrs  []pipeline.ItemError
		createdOK int
	)

	for _, typ := range types {
		entity, err := s.cfg.Reconciler.FindOrCreate(ctx, typeCollectionRequest(typ))
		if err != nil {
			itemErrs = append(itemErrs, pipeline.ItemError{
				Key:    catalog.Slugify(typ),
				Reason: err.Error(),
			})
			continue
		}
		createdOK++
		records = append(records, pipeline.CollectionRecord{
			ID: entity.ID, Handle: entity.Handle, Title: entity.Title,
		})
		s.publishCollection(ctx, entity, st.PublicationID)
	}

	featured, err := s.cfg.Reconciler.FindOrCreate(ctx, featuredCollectionRequest(form.FeaturedTitle()))
	if err != nil {
		itemErrs = append(itemErrs, pipeline.ItemError{
			Key:    catalog.Slugify(form.FeaturedTitle()),
			Reason: err.Error(),
		})
		return failure(fmt.Sprintf("created %d of %d collections, featured collection failed", createdOK, len(types)), itemErrs...), nil
	}
	records = append(records, pipeline.CollectionRecord{
		ID: featured.ID, Handle: featured.Handle, Title: featured.Title,
	})

	if len(st.ProductIDs) > 0 {
		if err := s.addProducts(ctx, featured.ID, st.ProductIDs); err != nil {
			itemErrs = append(itemErrs, pipeline.ItemError{
				Key:    featured.Handle,
				Reason: fmt.Sprintf("products not added: %v", err),
			})
		}
	}
	s.publishCollection(ctx, featured, st.PublicationID)

	return pipeline.Result{
		Success: true,
		Message: fmt.Sprintf("created %d collections", len(records)),
		Errors:  itemErrs,
		Delta: &pipeline.Delta{
			Collections:          records,
			FeaturedCollectionID: pipeline.StrPtr(featured.ID),
		},
	}, nil
}

// publishCollection makes the collection visible on the storefront
// channel. Failures are logged and swallowed: an unpublished collection
// is recoverable by hand, a halted run is worse.
func (s *createCollections) publishCollection(ctx context.Context, entity reconcile.Entity, publicationID string) {
	if publicationID == "" {
		return
	}
	resp, err := s.cfg.Client.ExecuteWithRetry(ctx, publishablePublishMutation, map[string]any{
		"id":    entity.ID,
		"input": []map[string]any{{"publicationId": publicationID}},
	})
	if err == nil {
		if ues := resp.UserErrors("publishablePublish"); len(ues) > 0 {
			err = errors.New(ues[0].Message)
		}
	}
	if err != nil {
		s.cfg.logger().Warn("collection publish failed",
			"handle", entity.Handle, "error", err)
	}
}

func (s *createCollections) addProducts(ctx context.Context, collectionID string, productIDs []string) error {
	resp, err := s.cfg.Client.ExecuteWithRetry(ctx, collectionAddProductsMutation, map[string]any{
		"id":         collectionID,
		"productIds": productIDs,
	})
	if err != nil {
		return err
	}
	if ues := resp.UserErrors("collectionAddProducts"); len(ues) > 0 {
		return errors.New(ues[0].Message)
	}
	return nil
}

func typeCollectionRequest(productType string) reconcile.Request {
	handle := catalog.Slugify(productType)
	return reconcile.Request{
		Kind:        reconcile.KindCollection,
		NaturalKey:  handle,
		CreateQuery: collectionCreateMutation,
		CreateVars: map[string]any{
			"input": map[string]any{
				"title":  productType,
				"handle": handle,
				"ruleSet": map[string]any{
					"appliedDisjunctively": false,
					"rules": []map[string]any{
						{"column": "TYPE", "relation": "EQUALS", "condition": productType},
					},
				},
			},
		},
		CreateRoot:  "collectionCreate",
		NodePath:    "collection",
		LookupQuery: collectionByHandleQuery,
		LookupVars:  map[string]any{"query": fmt.Sprintf("handle:%q", handle)},
		LookupPath:  "collections.edges.0.node",
	}
}

func featuredCollectionRequest(title string) reconcile.Request {
	handle := catalog.Slugify(title)
	return reconcile.Request{
		Kind:        reconcile.KindCollection,
		NaturalKey:  handle,
		CreateQuery: collectionCreateMutation,
		CreateVars: map[string]any{
			"input": map[string]any{"title": title, "handle": handle},
		},
		CreateRoot:  "collectionCreate",
		NodePath:    "collection",
		LookupQuery: collectionByHandleQuery,
		LookupVars:  map[string]any{"query": fmt.Sprintf("handle:%q", handle)},
		LookupPath:  "collections.edges.0.node",
	}
}
