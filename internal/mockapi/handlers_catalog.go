package mockapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"greenlabel.or.id/admin/internal/audit"
	"greenlabel.or.id/admin/internal/catalog"
)

type categoryView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
}

type brandView struct {
	ID         int64         `json:"id"`
	Name       string        `json:"name"`
	Slug       string        `json:"slug"`
	CategoryID int64         `json:"category_id"`
	Category   *categoryView `json:"category,omitempty"`
}

type certificationView struct {
	ID                int64   `json:"id"`
	ProductID         int64   `json:"product_id"`
	CertificateNumber string  `json:"certificate_number"`
	Type              string  `json:"type"`
	Status            string  `json:"status"`
	IssuedAt          *string `json:"issued_at"`
	ExpiresAt         *string `json:"expires_at"`
	Notes             *string `json:"notes"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

type productView struct {
	ID             int64               `json:"id"`
	Name           string              `json:"name"`
	Slug           string              `json:"slug"`
	BrandID        int64               `json:"brand_id"`
	Rating         float64             `json:"rating"`
	Image          string              `json:"image,omitempty"`
	CreatedAt      string              `json:"created_at"`
	Brand          *brandView          `json:"brand,omitempty"`
	Certifications []certificationView `json:"certifications"`
}

func categoryViewOf(c catalog.BrandCategory) categoryView {
	return categoryView{ID: c.ID, Name: c.Name, Slug: c.Slug, Description: c.Description}
}

func brandViewOf(b catalog.Brand) brandView {
	return brandView{ID: b.ID, Name: b.Name, Slug: b.Slug, CategoryID: b.CategoryID}
}

func certificationViewOf(c certification) certificationView {
	return certificationView{
		ID:                c.ID,
		ProductID:         c.ProductID,
		CertificateNumber: c.CertificateNumber,
		Type:              c.Type,
		Status:            c.Status,
		IssuedAt:          c.IssuedAt,
		ExpiresAt:         c.ExpiresAt,
		Notes:             c.Notes,
		CreatedAt:         c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:         c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories := s.state.listCategories()
	out := make([]categoryView, 0, len(categories))
	for _, c := range categories {
		out = append(out, categoryViewOf(c))
	}
	writeList(w, r, out)
}

func (s *Server) handleBrands(w http.ResponseWriter, r *http.Request) {
	brands := s.state.listBrands()
	out := make([]brandView, 0, len(brands))
	for _, b := range brands {
		out = append(out, brandViewOf(b))
	}
	writeList(w, r, out)
}

// handleProducts embeds the brand, its category and the certifications, the
// richest of the shapes the console accepts.
func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	products := s.state.listProducts()
	out := make([]productView, 0, len(products))
	for _, p := range products {
		v := productView{
			ID:             p.ID,
			Name:           p.Name,
			Slug:           p.Slug,
			BrandID:        p.BrandID,
			Rating:         p.Rating,
			Image:          p.Image,
			CreatedAt:      p.CreatedAt.UTC().Format(time.RFC3339),
			Certifications: make([]certificationView, 0, len(p.Certs)),
		}
		if p.Brand != nil {
			brand := brandViewOf(*p.Brand)
			if p.Category != nil {
				category := categoryViewOf(*p.Category)
				brand.Category = &category
			}
			v.Brand = &brand
		}
		for _, c := range p.Certs {
			v.Certifications = append(v.Certifications, certificationViewOf(c))
		}
		out = append(out, v)
	}
	writeList(w, r, out)
}

func (s *Server) handleCreateCertification(w http.ResponseWriter, r *http.Request) {
	var body catalog.CertificationBody
	if err := decodeJSON(w, r, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	c, err := s.state.saveCertification(0, body)
	if err != nil {
		writeStateError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "certification.created", map[string]any{"id": c.ID, "product_id": c.ProductID})
	writeData(w, r, http.StatusCreated, certificationViewOf(c))
}

func (s *Server) handleUpdateCertification(w http.ResponseWriter, r *http.Request) {
	id, ok := certificationID(w, r)
	if !ok {
		return
	}
	var body catalog.CertificationBody
	if err := decodeJSON(w, r, &body); err != nil {
		badRequest(w, r, err)
		return
	}
	c, err := s.state.saveCertification(id, body)
	if err != nil {
		writeStateError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "certification.updated", map[string]any{"id": c.ID})
	writeData(w, r, http.StatusOK, certificationViewOf(c))
}

func (s *Server) handleDeleteCertification(w http.ResponseWriter, r *http.Request) {
	id, ok := certificationID(w, r)
	if !ok {
		return
	}
	if err := s.state.deleteCertification(id); err != nil {
		writeStateError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "certification.deleted", map[string]any{"id": id})
	writeData(w, r, http.StatusOK, nil)
}

func certificationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusNotFound, "not_found", "certification not found")
		return 0, false
	}
	return id, true
}
