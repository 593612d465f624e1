package pipeline

// ItemError is the canonical per-entity failure shape surfaced at the
// StepResult boundary. Every producer adapts to it; consumers never
// branch on error shape.
type ItemError struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// Delta is the set of state fields a step produced. Scalar fields use
// pointers so "not written" and "written empty" stay distinct.
type Delta struct {
	CatalogCSV        *string
	TotalProducts     *int
	ValidatedProducts *int

	ProductIDs           []string
	Collections          []CollectionRecord
	FeaturedCollectionID *string

	PublicationID *string
	LocationID    *string
	ThemeID       *string

	LogoURL             *string
	FaviconURL          *string
	BannerDesktopURL    *string
	BannerMobileURL     *string
	CollectionImageURLs map[string]string
}

// apply merges the delta into the state. Only the orchestrator calls this.
func (d *Delta) apply(s *State) {
	if d == nil {
		return
	}
	if d.CatalogCSV != nil {
		s.CatalogCSV = *d.CatalogCSV
	}
	if d.TotalProducts != nil {
		s.TotalProducts = *d.TotalProducts
	}
	if d.ValidatedProducts != nil {
		s.ValidatedProducts = *d.ValidatedProducts
	}
	if d.ProductIDs != nil {
		s.ProductIDs = d.ProductIDs
	}
	if d.Collections != nil {
		s.Collections = d.Collections
	}
	if d.FeaturedCollectionID != nil {
		s.FeaturedCollectionID = *d.FeaturedCollectionID
	}
	if d.PublicationID != nil {
		s.PublicationID = *d.PublicationID
	}
	if d.LocationID != nil {
		s.LocationID = *d.LocationID
	}
	if d.ThemeID != nil {
		s.ThemeID = *d.ThemeID
	}
	if d.LogoURL != nil {
		s.LogoURL = *d.LogoURL
	}
	if d.FaviconURL != nil {
		s.FaviconURL = *d.FaviconURL
	}
	if d.BannerDesktopURL != nil {
		s.BannerDesktopURL = *d.BannerDesktopURL
	}
	if d.BannerMobileURL != nil {
		s.BannerMobileURL = *d.BannerMobileURL
	}
	if d.CollectionImageURLs != nil {
		s.CollectionImageURLs = d.CollectionImageURLs
	}
}

// StrPtr is a small helper for building deltas.
func StrPtr(s string) *string { return &s }

// IntPtr is a small helper for building deltas.
func IntPtr(i int) *int { return &i }

// Result is what a step invocation produces. The orchestrator merges the
// delta into the state and records the rest for reporting.
type Result struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Errors  []ItemError `json:"errors,omitempty"`
	Delta   *Delta      `json:"-"`
}
