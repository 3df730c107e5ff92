package store

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"greenlabel.or.id/admin/internal/catalog"
)

const (
	DefaultPage  = 1
	DefaultLimit = 12

	// AllCategories disables the category filter.
	AllCategories = "All"
)

// Sort orders accepted by ProductQuery.
const (
	SortPopular = "popular"
	SortNewest  = "newest"
	SortName    = "name"
)

// ProductQuery filters the public product listing. Zero values select the
// defaults.
type ProductQuery struct {
	Page     int
	Limit    int
	Category string
	Search   string
	Sort     string
}

func (q ProductQuery) normalized() ProductQuery {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	q.Category = strings.TrimSpace(q.Category)
	if strings.EqualFold(q.Category, AllCategories) {
		q.Category = ""
	}
	q.Search = strings.ToLower(strings.TrimSpace(q.Search))
	q.Sort = strings.ToLower(strings.TrimSpace(q.Sort))
	return q
}

// ProductCard is a product joined with its display names.
type ProductCard struct {
	catalog.Product
	BrandName    string `json:"brandName"`
	CategoryName string `json:"categoryName"`
}

type ProductPage struct {
	Items []ProductCard `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func (p ProductPage) TotalPages() int { return TotalPages(p.Total, p.Limit) }

// TotalPages is ceil(total/limit), never below 1.
func TotalPages(total, limit int) int {
	limit = max(1, limit)
	return max(1, (total+limit-1)/limit)
}

type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Products serves the filtered product listing over the catalog store.
type Products struct {
	catalog *Certifications
}

func NewProducts(c *Certifications) *Products {
	return &Products{catalog: c}
}

// List loads the catalog if needed and returns one page of matches.
func (p *Products) List(ctx context.Context, q ProductQuery) (ProductPage, error) {
	if err := p.catalog.FetchAll(ctx, false); err != nil {
		return ProductPage{}, err
	}
	q = q.normalized()

	var matches []ProductCard
	for _, card := range p.cards() {
		if q.Category != "" && !strings.EqualFold(card.CategoryName, q.Category) {
			continue
		}
		if q.Search != "" && !card.matches(q.Search) {
			continue
		}
		matches = append(matches, card)
	}

	switch q.Sort {
	case SortPopular:
		slices.SortStableFunc(matches, func(a, b ProductCard) int { return cmp.Compare(b.Rating, a.Rating) })
	case SortNewest:
		slices.SortStableFunc(matches, func(a, b ProductCard) int { return cmp.Compare(b.CreatedAt, a.CreatedAt) })
	case SortName:
		slices.SortStableFunc(matches, func(a, b ProductCard) int {
			return cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
	}

	page := ProductPage{Total: len(matches), Page: q.Page, Limit: q.Limit}
	start := (q.Page - 1) * q.Limit
	if start < len(matches) {
		page.Items = matches[start:min(len(matches), start+q.Limit)]
	}
	return page, nil
}

// TotalPages counts pages of the unfiltered listing.
func (p *Products) TotalPages(limit int) int {
	return TotalPages(len(p.catalog.Products()), limit)
}

// CategoryCounts counts products per category name, sorted by name.
func (p *Products) CategoryCounts() []CategoryCount {
	counts := map[string]int{}
	for _, card := range p.cards() {
		if card.CategoryName != "" {
			counts[card.CategoryName]++
		}
	}
	out := make([]CategoryCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, CategoryCount{Name: name, Count: n})
	}
	slices.SortFunc(out, func(a, b CategoryCount) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

func (p *Products) cards() []ProductCard {
	brands := map[int64]catalog.Brand{}
	for _, b := range p.catalog.Brands() {
		brands[b.ID] = b
	}
	categories := map[int64]string{}
	for _, c := range p.catalog.Categories() {
		categories[c.ID] = c.Name
	}

	products := p.catalog.Products()
	out := make([]ProductCard, 0, len(products))
	for _, prod := range products {
		card := ProductCard{Product: prod}
		brand, ok := brands[prod.BrandID]
		if ok {
			card.BrandName = brand.Name
		}
		categoryID := prod.CategoryID
		if categoryID == 0 {
			categoryID = brand.CategoryID
		}
		card.CategoryName = categories[categoryID]
		if card.CategoryName == "" {
			card.CategoryName = brand.CategoryName
		}
		out = append(out, card)
	}
	return out
}

func (c ProductCard) matches(term string) bool {
	for _, field := range []string{c.Name, c.BrandName, c.CategoryName, c.Slug} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}
