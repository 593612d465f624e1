package pipeline

// Form carries the user-supplied setup input. JSON fields arrive in the
// request body; path fields are filled in by the HTTP layer after saving
// uploaded files to a scratch directory.
type Form struct {
	StoreName      string `json:"store_name"`
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	HeadingFont    string `json:"heading_font"`
	BodyFont       string `json:"body_font"`

	CatalogCSV              string `json:"catalog_csv,omitempty"`
	FeaturedCollectionTitle string `json:"featured_collection_title,omitempty"`
	ThemeName               string `json:"theme_name,omitempty"`

	// Policies maps policy type (refund, privacy, terms, shipping) to
	// opaque document text. Missing entries fall back to the defaults.
	Policies map[string]string `json:"policies,omitempty"`

	// Local paths to uploaded files, populated by the caller.
	ThemeZipPath         string            `json:"-"`
	LogoPath             string            `json:"-"`
	FaviconPath          string            `json:"-"`
	BannerDesktopPath    string            `json:"-"`
	BannerMobilePath     string            `json:"-"`
	CollectionImagePaths map[string]string `json:"-"`
}

// FeaturedTitle returns the aggregate collection title, defaulted.
func (f *Form) FeaturedTitle() string {
	if f.FeaturedCollectionTitle != "" {
		return f.FeaturedCollectionTitle
	}
	return "Featured"
}
