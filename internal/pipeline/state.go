// Package pipeline drives the storefront setup run: an ordered set of
// steps over a single accumulated state, with resume and single-step
// execution on top.
package pipeline

// Field names a PipelineState slot a step reads or writes. Declared
// dependencies are validated when the step registry is built.
type Field string

const (
	FieldCatalogCSV           Field = "catalog_csv"
	FieldProductIDs           Field = "product_ids"
	FieldProductCounts        Field = "product_counts"
	FieldCollections          Field = "collections"
	FieldFeaturedCollectionID Field = "featured_collection_id"
	FieldPublicationID        Field = "publication_id"
	FieldLocationID           Field = "location_id"
	FieldThemeID              Field = "theme_id"
	FieldLogoURL              Field = "logo_url"
	FieldFaviconURL           Field = "favicon_url"
	FieldBannerURLs           Field = "banner_urls"
	FieldCollectionImageURLs  Field = "collection_image_urls"
)

// CollectionRecord identifies a created collection.
type CollectionRecord struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Title  string `json:"title"`
}

// State is the accumulator threaded through a run. Every field is either
// zero (not yet produced) or holds the value produced by exactly one step.
// The orchestrator owns it; steps get a copy and return a Delta.
type State struct {
	RunID string `json:"run_id"`

	CatalogCSV        string `json:"catalog_csv,omitempty"`
	TotalProducts     int    `json:"total_products,omitempty"`
	ValidatedProducts int    `json:"validated_products,omitempty"`

	ProductIDs           []string           `json:"product_ids,omitempty"`
	Collections          []CollectionRecord `json:"collections,omitempty"`
	FeaturedCollectionID string             `json:"featured_collection_id,omitempty"`

	PublicationID string `json:"publication_id,omitempty"`
	LocationID    string `json:"location_id,omitempty"`
	ThemeID       string `json:"theme_id,omitempty"`

	LogoURL             string            `json:"logo_url,omitempty"`
	FaviconURL          string            `json:"favicon_url,omitempty"`
	BannerDesktopURL    string            `json:"banner_desktop_url,omitempty"`
	BannerMobileURL     string            `json:"banner_mobile_url,omitempty"`
	CollectionImageURLs map[string]string `json:"collection_image_urls,omitempty"`
}

// Clone returns a deep copy. Steps receive clones so they cannot mutate
// the orchestrator's state directly.
func (s *State) Clone() *State {
	out := *s
	if s.ProductIDs != nil {
		out.ProductIDs = append([]string(nil), s.ProductIDs...)
	}
	if s.Collections != nil {
		out.Collections = append([]CollectionRecord(nil), s.Collections...)
	}
	if s.CollectionImageURLs != nil {
		out.CollectionImageURLs = make(map[string]string, len(s.CollectionImageURLs))
		for k, v := range s.CollectionImageURLs {
			out.CollectionImageURLs[k] = v
		}
	}
	return &out
}
