package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Yslas262/shopify-setup/internal/bulk"
	"github.com/Yslas262/shopify-setup/internal/catalog"
	"github.com/Yslas262/shopify-setup/internal/pipeline"
	"github.com/Yslas262/shopify-setup/internal/shopify"
)

const productCreateMutation = `
mutation productCreate($input: ProductInput!) {
  productCreate(input: $input) {
    product { id handle }
    userErrors { field message }
  }
}`

const variantsBulkCreateMutation = `
mutation productVariantsBulkCreate($productId: ID!, $variants: [ProductVariantsBulkInput!]!) {
  productVariantsBulkCreate(productId: $productId, variants: $variants) {
    productVariants { id }
    userErrors { field message }
  }
}`

const publishablePublishMutation = `
mutation publishablePublish($id: ID!, $input: [PublicationInput!]!) {
  publishablePublish(id: $id, input: $input) {
    userErrors { field message }
  }
}`

// importProducts streams the catalog into the shop one product at a
// time: productCreate for the parent, then productVariantsBulkCreate for
// its variants once the parent exists. Rows that failed catalog
// validation are carried through as failing items so the stream's totals
// account for every row.
type importProducts struct {
	cfg Config
}

func (s *importProducts) ID() int         { return 2 }
func (s *importProducts) Name() string    { return "import-products" }
func (s *importProducts) Label() string   { return "Import products" }
func (s *importProducts) Streaming() bool { return true }

func (s *importProducts) Reads() []pipeline.Field {
	return []pipeline.Field{pipeline.FieldPublicationID, pipeline.FieldLocationID}
}

func (s *importProducts) Writes() []pipeline.Field {
	return []pipeline.Field{
		pipeline.FieldCatalogCSV,
		pipeline.FieldProductIDs,
		pipeline.FieldProductCounts,
	}
}

func (s *importProducts) Run(ctx context.Context, st *pipeline.State, form *pipeline.Form) (pipeline.Result, error) {
	text := form.CatalogCSV
	if text == "" {
		text = st.CatalogCSV
	}
	if text == "" {
		return failure("no catalog provided"), nil
	}

	cat, err := catalog.Parse(text)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to parse catalog: %w", err)
	}

	items := make([]bulk.Item, 0, cat.Total())
	for _, p := range cat.Products {
		items = append(items, &productItem{
			product:       p,
			client:        s.cfg.Client,
			publicationID: st.PublicationID,
			locationID:    st.LocationID,
			logger:        s.cfg.logger(),
		})
	}
	for _, inv := range cat.Invalid {
		items = append(items, invalidItem(inv))
	}

	streamer := bulk.NewStreamer(bulk.SinkFrom(ctx), s.cfg.logger())
	complete, err := streamer.Run(ctx, items)
	if err != nil {
		return pipeline.Result{}, err
	}

	return pipeline.Result{
		Success: complete.Success,
		Message: complete.Message,
		Errors:  complete.ItemErrors,
		Delta: &pipeline.Delta{
			CatalogCSV:        pipeline.StrPtr(text),
			ProductIDs:        complete.CreatedIDs,
			TotalProducts:     pipeline.IntPtr(complete.Total),
			ValidatedProducts: pipeline.IntPtr(len(cat.Products)),
		},
	}, nil
}

// productItem imports one catalog product.
type productItem struct {
	product       catalog.Product
	client        *shopify.Client
	publicationID string
	locationID    string
	logger        *slog.Logger
}

func (it *productItem) Key() string { return it.product.Handle }

func (it *productItem) Process(ctx context.Context) (bulk.Outcome, error) {
	p := it.product

	input := map[string]any{
		"title":  p.Title,
		"handle": p.Handle,
	}
	if p.Description != "" {
		input["descriptionHtml"] = p.Description
	}
	if p.ProductType != "" {
		input["productType"] = p.ProductType
	}
	if len(p.Tags) > 0 {
		input["tags"] = p.Tags
	}
	if len(p.Variants) > 1 {
		values := make([]map[string]any, 0, len(p.Variants))
		for _, v := range p.Variants {
			values = append(values, map[string]any{"name": v.Title})
		}
		input["productOptions"] = []map[string]any{
			{"name": "Title", "values": values},
		}
	}

	resp, err := it.client.ExecuteWithRetry(ctx, productCreateMutation, map[string]any{"input": input})
	if err != nil {
		return bulk.Outcome{}, fmt.Errorf("product create failed: %w", err)
	}
	if ues := resp.UserErrors("productCreate"); len(ues) > 0 {
		return bulk.Outcome{}, fmt.Errorf("product create rejected: %s", ues[0].Message)
	}

	productID := resp.Get("productCreate.product.id").String()
	if productID == "" {
		return bulk.Outcome{}, errors.New("product create returned no id")
	}

	outcome := bulk.Outcome{CreatedID: productID}

	// Variants only after the parent exists. A variant failure leaves
	// the product standing; partial success beats a rollback the remote
	// API cannot perform atomically.
	if err := it.createVariants(ctx, productID); err != nil {
		it.logger.Warn("variant create failed", "handle", p.Handle, "error", err)
		outcome.Warnings = append(outcome.Warnings, pipeline.ItemError{
			Key:    p.Handle,
			Reason: fmt.Sprintf("variants not created: %v", err),
		})
	}

	if it.publicationID != "" {
		if err := it.publish(ctx, productID); err != nil {
			it.logger.Warn("product publish failed", "handle", p.Handle, "error", err)
			outcome.Warnings = append(outcome.Warnings, pipeline.ItemError{
				Key:    p.Handle,
				Reason: fmt.Sprintf("not published: %v", err),
			})
		}
	}

	return outcome, nil
}

func (it *productItem) createVariants(ctx context.Context, productID string) error {
	variants := make([]map[string]any, 0, len(it.product.Variants))
	for _, v := range it.product.Variants {
		variant := map[string]any{"price": v.Price}
		if v.SKU != "" {
			variant["inventoryItem"] = map[string]any{"sku": v.SKU}
		}
		if v.Quantity != nil && it.locationID != "" {
			variant["inventoryQuantities"] = []map[string]any{{
				"locationId":        it.locationID,
				"availableQuantity": *v.Quantity,
			}}
		}
		if len(it.product.Variants) > 1 {
			variant["optionValues"] = []map[string]any{
				{"optionName": "Title", "name": v.Title},
			}
		}
		variants = append(variants, variant)
	}

	resp, err := it.client.ExecuteWithRetry(ctx, variantsBulkCreateMutation, map[string]any{
		"productId": productID,
		"variants":  variants,
	})
	if err != nil {
		return err
	}
	if ues := resp.UserErrors("productVariantsBulkCreate"); len(ues) > 0 {
		return errors.New(ues[0].Message)
	}
	return nil
}

func (it *productItem) publish(ctx context.Context, productID string) error {
	resp, err := it.client.ExecuteWithRetry(ctx, publishablePublishMutation, map[string]any{
		"id":    productID,
		"input": []map[string]any{{"publicationId": it.publicationID}},
	})
	if err != nil {
		return err
	}
	if ues := resp.UserErrors("publishablePublish"); len(ues) > 0 {
		return errors.New(ues[0].Message)
	}
	return nil
}

// invalidItem fails immediately so rows that never passed validation
// still show up in the stream totals and item errors.
type invalidItem catalog.InvalidRow

func (it invalidItem) Key() string { return it.Handle }

func (it invalidItem) Process(context.Context) (bulk.Outcome, error) {
	return bulk.Outcome{}, errors.New(it.Reason)
}
