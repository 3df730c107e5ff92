package catalog

import "strings"

// TypeLabel is the display name of a certification type.
func TypeLabel(certType string) string {
	normalized := strings.ToLower(certType)
	switch normalized {
	case "green-label", "gli":
		return "Green Label Indonesia"
	case "green toll road", "gtri":
		return "Green Toll Road Indonesia"
	}
	if label := titleWords(normalized); label != "" {
		return label
	}
	return "Unknown"
}

// FormatStatus renders a status such as "under_review" as "Under Review".
func FormatStatus(status string) string {
	if label := titleWords(status); label != "" {
		return label
	}
	return "Unknown"
}

func titleWords(value string) string {
	words := strings.FieldsFunc(value, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Enrich joins certifications with their product, brand and category. Lookups
// that miss fall back to display defaults.
func Enrich(certs []Certification, categories []BrandCategory, brands []Brand, products []Product) []EnrichedCertification {
	categoryByID := make(map[int64]BrandCategory, len(categories))
	for _, c := range categories {
		categoryByID[c.ID] = c
	}
	brandByID := make(map[int64]Brand, len(brands))
	for _, b := range brands {
		brandByID[b.ID] = b
	}
	productByID := make(map[int64]Product, len(products))
	for _, p := range products {
		productByID[p.ID] = p
	}

	out := make([]EnrichedCertification, 0, len(certs))
	for _, cert := range certs {
		e := EnrichedCertification{
			Certification: cert,
			ProductName:   "Unknown product",
			BrandName:     "Unknown brand",
			CategoryName:  "Uncategorized",
			TypeLabel:     TypeLabel(cert.Type),
			StatusLabel:   FormatStatus(cert.Status),
		}
		product, hasProduct := productByID[cert.ProductID]
		var brand Brand
		hasBrand := false
		if hasProduct {
			e.ProductName = product.Name
			e.BrandID = product.BrandID
			if product.BrandID != 0 {
				brand, hasBrand = brandByID[product.BrandID]
			}
		}
		if hasBrand {
			e.BrandID = brand.ID
			e.BrandName = brand.Name
		}

		var category BrandCategory
		hasCategory := false
		switch {
		case hasBrand && brand.CategoryID != 0:
			category, hasCategory = categoryByID[brand.CategoryID]
			e.CategoryID = brand.CategoryID
		case hasProduct && product.CategoryID != 0:
			category, hasCategory = categoryByID[product.CategoryID]
			e.CategoryID = product.CategoryID
		}
		if hasCategory {
			e.CategoryID = category.ID
			e.CategoryName = category.Name
		}
		out = append(out, e)
	}
	return out
}
