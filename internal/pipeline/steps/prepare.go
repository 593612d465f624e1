package steps

import (
	"context"
	"fmt"

	"github.com/Yslas262/shopify-setup/internal/pipeline"
)

const publicationsQuery = `
query onlineStorePublication {
  publications(first: 10) {
    edges { node { id name } }
  }
}`

const locationsQuery = `
query primaryLocation {
  locations(first: 10) {
    edges { node { id name isActive fulfillsOnlineOrders } }
  }
}`

// prepareShop resolves the identifiers later steps publish against: the
// online store publication and the shop's primary fulfillment location.
// The location is found by explicit lookup rather than trusting whatever
// id a previous mutation happened to return.
type prepareShop struct {
	cfg Config
}

func (s *prepareShop) ID() int         { return 1 }
func (s *prepareShop) Name() string    { return "prepare-shop" }
func (s *prepareShop) Label() string   { return "Prepare shop" }
func (s *prepareShop) Streaming() bool { return false }

func (s *prepareShop) Reads() []pipeline.Field { return nil }
func (s *prepareShop) Writes() []pipeline.Field {
	return []pipeline.Field{pipeline.FieldPublicationID, pipeline.FieldLocationID}
}

func (s *prepareShop) Run(ctx context.Context, _ *pipeline.State, _ *pipeline.Form) (pipeline.Result, error) {
	resp, err := s.cfg.Client.ExecuteWithRetry(ctx, publicationsQuery, nil)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to list publications: %w", err)
	}

	var publicationID string
	edges := resp.Get("publications.edges").Array()
	for _, edge := range edges {
		node := edge.Get("node")
		if node.Get("name").String() == "Online Store" {
			publicationID = node.Get("id").String()
			break
		}
	}
	if publicationID == "" && len(edges) > 0 {
		// Shops without the standard channel name still have exactly one
		// storefront publication.
		publicationID = edges[0].Get("node.id").String()
	}
	if publicationID == "" {
		return failure("shop has no storefront publication"), nil
	}

	resp, err = s.cfg.Client.ExecuteWithRetry(ctx, locationsQuery, nil)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to list locations: %w", err)
	}

	var locationID string
	locEdges := resp.Get("locations.edges").Array()
	for _, edge := range locEdges {
		node := edge.Get("node")
		if node.Get("isActive").Bool() && node.Get("fulfillsOnlineOrders").Bool() {
			locationID = node.Get("id").String()
			break
		}
	}
	if locationID == "" && len(locEdges) > 0 {
		locationID = locEdges[0].Get("node.id").String()
	}
	if locationID == "" {
		return failure("shop has no fulfillment location"), nil
	}

	s.cfg.logger().Info("shop prepared",
		"publication_id", publicationID, "location_id", locationID)

	return pipeline.Result{
		Success: true,
		Message: "resolved storefront publication and fulfillment location",
		Delta: &pipeline.Delta{
			PublicationID: pipeline.StrPtr(publicationID),
			LocationID:    pipeline.StrPtr(locationID),
		},
	}, nil
}
