// Package catalog parses a storefront product catalog from CSV text.
//
// Parsing stays intentionally shallow: rows are grouped into products by
// handle and a variant is kept only when it carries a price. Deeper schema
// validation belongs to whoever produced the CSV, not to the importer.
package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// Variant is a single sellable option of a product.
type Variant struct {
	Title string
	Price string
	SKU   string
	// Quantity is the initial stock level, nil when the catalog does
	// not track inventory.
	Quantity *int
}

// Product is one importable catalog entry with at least one variant.
type Product struct {
	Handle      string
	Title       string
	Description string
	ProductType string
	Tags        []string
	ImageURL    string
	Variants    []Variant
}

// Catalog is the parse result. Invalid rows are kept alongside valid
// products so the importer can report both without re-reading the CSV.
type Catalog struct {
	Products []Product
	Invalid  []InvalidRow
}

// InvalidRow records a row that could not become a variant, keyed the
// same way item-level errors are keyed downstream.
type InvalidRow struct {
	Handle string
	Reason string
}

// Total is the number of rows that were considered, valid or not.
func (c *Catalog) Total() int {
	return len(c.Products) + len(c.Invalid)
}

// ProductTypes returns the distinct non-empty product types in first-seen
// order, used to derive collections.
func (c *Catalog) ProductTypes() []string {
	seen := make(map[string]bool)
	var types []string
	for _, p := range c.Products {
		if p.ProductType == "" || seen[p.ProductType] {
			continue
		}
		seen[p.ProductType] = true
		types = append(types, p.ProductType)
	}
	return types
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases a title into a URL handle.
// e.g. "Best Sellers!" -> "best-sellers"
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlug.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Parse reads CSV text and groups rows into products by handle.
// Column matching is case-insensitive on the header row. Rows sharing a
// handle with an earlier row become additional variants of that product.
// A row without a price is recorded as invalid and never reaches the
// product list unless a sibling row already created the parent.
func Parse(text string) (*Catalog, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("catalog is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["title"]; !ok {
		return nil, fmt.Errorf("catalog has no title column")
	}

	field := func(row []string, names ...string) string {
		for _, name := range names {
			idx, ok := cols[name]
			if !ok || idx >= len(row) {
				continue
			}
			if v := strings.TrimSpace(row[idx]); v != "" {
				return v
			}
		}
		return ""
	}

	cat := &Catalog{}
	byHandle := make(map[string]int) // handle -> index into cat.Products

	line := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog row %d: %w", line, err)
		}

		title := field(row, "title", "name")
		handle := field(row, "handle")
		if handle == "" {
			handle = Slugify(title)
		}
		if handle == "" {
			cat.Invalid = append(cat.Invalid, InvalidRow{
				Handle: fmt.Sprintf("row-%d", line),
				Reason: "row has neither handle nor title",
			})
			continue
		}

		price := field(row, "price", "variant price")
		if price == "" {
			cat.Invalid = append(cat.Invalid, InvalidRow{
				Handle: handle,
				Reason: "row is missing a price",
			})
			continue
		}

		v := Variant{
			Title: field(row, "option value", "variant title"),
			Price: price,
			SKU:   field(row, "sku", "variant sku"),
		}
		if v.Title == "" {
			v.Title = "Default Title"
		}
		if q := field(row, "inventory", "quantity", "stock"); q != "" {
			if n, err := strconv.Atoi(q); err == nil {
				v.Quantity = &n
			}
		}

		if idx, ok := byHandle[handle]; ok {
			cat.Products[idx].Variants = append(cat.Products[idx].Variants, v)
			continue
		}

		p := Product{
			Handle:      handle,
			Title:       title,
			Description: field(row, "description", "body", "body (html)"),
			ProductType: field(row, "type", "product type", "category"),
			ImageURL:    field(row, "image", "image src", "image url"),
			Variants:    []Variant{v},
		}
		if tags := field(row, "tags"); tags != "" {
			for _, t := range strings.Split(tags, ",") {
				if t = strings.TrimSpace(t); t != "" {
					p.Tags = append(p.Tags, t)
				}
			}
		}
		byHandle[handle] = len(cat.Products)
		cat.Products = append(cat.Products, p)
	}

	if cat.Total() == 0 {
		return nil, fmt.Errorf("catalog has no data rows")
	}

	return cat, nil
}
