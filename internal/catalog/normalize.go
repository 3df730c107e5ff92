// Package catalog reconciles the loosely shaped brand, product and
// certification payloads of the GLI API into canonical entities.
package catalog

import (
	"fmt"
	"strings"
)

const (
	DefaultType   = "green-label"
	DefaultStatus = "active"
)

func NormalizeCategory(p APIBrandCategory) BrandCategory {
	return BrandCategory{
		ID:          p.ID.Value,
		Name:        p.Name,
		Slug:        first(string(p.Slug), Slugify(p.Name)),
		Description: string(p.Description),
	}
}

// NormalizeBrand prefers an explicit category_id over the nested category and
// takes the category name from the nested object before category_name.
func NormalizeBrand(p APIBrand) Brand {
	b := Brand{
		ID:           p.ID.Value,
		Name:         p.Name,
		Slug:         first(string(p.Slug), Slugify(p.Name)),
		CategoryID:   p.CategoryID.Value,
		CategoryName: string(p.CategoryName),
		Description:  string(p.Description),
	}
	if p.Category != nil {
		category := NormalizeCategory(*p.Category)
		if !p.CategoryID.Valid {
			b.CategoryID = category.ID
		}
		b.CategoryName = first(category.Name, b.CategoryName)
	}
	return b
}

// NormalizeProduct resolves brand and category ids with the same precedence:
// explicit id, then the nested brand.
func NormalizeProduct(p APIProduct) Product {
	out := Product{
		ID:         p.ID.Value,
		Name:       p.Name,
		Slug:       first(string(p.Slug), Slugify(p.Name)),
		BrandID:    p.BrandID.Value,
		CategoryID: p.CategoryID.Value,
		Type:       string(p.Type),
		Status:     string(p.Status),
		Rating:     p.Rating,
		CreatedAt:  string(p.CreatedAt),
		Image:      string(p.Image),
	}
	if p.Brand != nil {
		brand := NormalizeBrand(*p.Brand)
		if !p.BrandID.Valid {
			out.BrandID = brand.ID
		}
		if !p.CategoryID.Valid {
			out.CategoryID = brand.CategoryID
		}
	}
	return out
}

// NormalizeCertification maps one certification payload. fallbackProductID is
// used when the payload does not name its product.
func NormalizeCertification(p APICertification, fallbackProductID int64) Certification {
	return normalizeCertification(&p, fallbackProductID, &Synthesizer{})
}

func normalizeCertification(p *APICertification, fallbackProductID int64, syn *Synthesizer) Certification {
	productID := p.ProductID.Or(fallbackProductID)
	number := strings.TrimSpace(string(p.CertificateNumber))
	if number == "" {
		if productID != 0 {
			number = fmt.Sprintf("CERT-%d", productID)
		} else {
			number = "CERT-unknown"
		}
	}
	c := Certification{
		ProductID:         productID,
		CertificateNumber: number,
		Type:              strings.ToLower(first(string(p.Type), DefaultType)),
		Status:            strings.ToLower(first(string(p.Status), DefaultStatus)),
		IssuedAt:          p.issued(),
		ExpiresAt:         p.expires(),
		Notes:             p.notes(),
	}
	if p.ID.Valid {
		c.ID = ServerID(p.ID.Value)
	} else {
		c.ID = syn.ID(productID, number)
	}
	return c
}

// ToWire maps a certification back to the body accepted by the
// product-certifications endpoints.
func ToWire(c Certification) CertificationBody {
	return CertificationBody{
		ProductID:         c.ProductID,
		CertificateNumber: c.CertificateNumber,
		Status:            c.Status,
		Type:              c.Type,
		IssuedAt:          optional(c.IssuedAt),
		ExpiresAt:         optional(c.ExpiresAt),
		Notes:             optional(c.Notes),
	}
}

// FromWire rebuilds a certification from a body that was accepted by the
// server but not echoed back.
func FromWire(b CertificationBody, id CertificationID) Certification {
	return Certification{
		ID:                id,
		ProductID:         b.ProductID,
		CertificateNumber: b.CertificateNumber,
		Type:              b.Type,
		Status:            b.Status,
		IssuedAt:          deref(b.IssuedAt),
		ExpiresAt:         deref(b.ExpiresAt),
		Notes:             deref(b.Notes),
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
