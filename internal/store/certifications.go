package store

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"greenlabel.or.id/admin/internal/apiclient"
	"greenlabel.or.id/admin/internal/audit"
	"greenlabel.or.id/admin/internal/catalog"
)

const (
	categoryEndpoint      = "brand-categories"
	brandEndpoint         = "brands"
	productEndpoint       = "products"
	certificationEndpoint = "product-certifications"

	msgMissingServerID = "Certification is missing a server identifier. Please reload data and try again."
)

// Certifications caches the GLI catalog: categories, brands, products and the
// certifications derived from product payloads.
type Certifications struct {
	client apiclient.Requester

	mu             sync.Mutex
	categories     []catalog.BrandCategory
	brands         []catalog.Brand
	products       []catalog.Product
	certifications []catalog.Certification
	loading        bool
	err            string
	loaded         bool
}

func NewCertifications(client apiclient.Requester) *Certifications {
	return &Certifications{client: client}
}

// FetchAll loads the three catalog collections concurrently. A previous
// successful load is reused unless force is set. Concurrent callers that both
// miss the cache both reach the API; the last one to finish wins.
func (s *Certifications) FetchAll(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.loaded && !force {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.err = ""
	s.mu.Unlock()

	var (
		rawCategories []catalog.APIBrandCategory
		rawBrands     []catalog.APIBrand
		rawProducts   []catalog.APIProduct
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rawCategories, err = fetchList[catalog.APIBrandCategory](gctx, s.client, categoryEndpoint)
		return err
	})
	g.Go(func() (err error) {
		rawBrands, err = fetchList[catalog.APIBrand](gctx, s.client, brandEndpoint)
		return err
	})
	g.Go(func() (err error) {
		rawProducts, err = fetchList[catalog.APIProduct](gctx, s.client, productEndpoint)
		return err
	})
	err := g.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.err = failure("certifications.fetch", err, "Failed to load GLI certificates.")
		return err
	}

	categories := make([]catalog.BrandCategory, 0, len(rawCategories))
	for _, c := range rawCategories {
		categories = append(categories, catalog.NormalizeCategory(c))
	}
	brands := make([]catalog.Brand, 0, len(rawBrands))
	for _, b := range rawBrands {
		brands = append(brands, catalog.NormalizeBrand(b))
	}

	syn := &catalog.Synthesizer{}
	products := make([]catalog.Product, 0, len(rawProducts))
	var certs []catalog.Certification
	for _, raw := range rawProducts {
		products = append(products, catalog.NormalizeProduct(raw))
		if raw.Brand != nil {
			brands = spliceByID(brands, catalog.NormalizeBrand(*raw.Brand), brandID)
			if raw.Brand.Category != nil {
				categories = spliceByID(categories, catalog.NormalizeCategory(*raw.Brand.Category), categoryID)
			}
		}
		certs = append(certs, catalog.CollectCertifications(raw, syn)...)
	}

	s.categories = categories
	s.brands = brands
	s.products = products
	s.certifications = certs
	s.loaded = true
	return nil
}

func brandID(b catalog.Brand) int64            { return b.ID }
func categoryID(c catalog.BrandCategory) int64 { return c.ID }

func certificationID(c catalog.Certification) catalog.CertificationID { return c.ID }

func (s *Certifications) Categories() []catalog.BrandCategory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.categories)
}

func (s *Certifications) Brands() []catalog.Brand {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.brands)
}

func (s *Certifications) Products() []catalog.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.products)
}

func (s *Certifications) Certifications() []catalog.Certification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.certifications)
}

func (s *Certifications) Category(id int64) (catalog.BrandCategory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.ID == id {
			return c, true
		}
	}
	return catalog.BrandCategory{}, false
}

func (s *Certifications) Brand(id int64) (catalog.Brand, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.brands {
		if b.ID == id {
			return b, true
		}
	}
	return catalog.Brand{}, false
}

func (s *Certifications) Product(id int64) (catalog.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.productLocked(id)
}

func (s *Certifications) productLocked(id int64) (catalog.Product, bool) {
	for _, p := range s.products {
		if p.ID == id {
			return p, true
		}
	}
	return catalog.Product{}, false
}

// Certification looks up one certification by id.
func (s *Certifications) Certification(id catalog.CertificationID) (catalog.Certification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.certifications {
		if c.ID == id {
			return c, true
		}
	}
	return catalog.Certification{}, false
}

// Enriched joins the current collections for display.
func (s *Certifications) Enriched() []catalog.EnrichedCertification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return catalog.Enrich(s.certifications, s.categories, s.brands, s.products)
}

// StatusOptions lists known statuses, sorted; "active" when there are none.
func (s *Certifications) StatusOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, c := range s.certifications {
		if c.Status != "" {
			seen[c.Status] = struct{}{}
		}
	}
	if len(seen) == 0 {
		seen[catalog.DefaultStatus] = struct{}{}
	}
	return sortedKeys(seen)
}

// TypeOptions lists known types, sorted, always including "green-label".
func (s *Certifications) TypeOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{catalog.DefaultType: {}}
	for _, c := range s.certifications {
		if c.Type != "" {
			seen[c.Type] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (s *Certifications) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err is the message of the last failed operation, or "".
func (s *Certifications) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Certifications) setErr(msg string) {
	s.mu.Lock()
	s.err = msg
	s.mu.Unlock()
}

// NewCertification is the input of Create. Empty Status and Type default to
// active and green-label.
type NewCertification struct {
	ProductID         int64
	CertificateNumber string
	Status            string
	Type              string
	IssuedAt          *string
	ExpiresAt         *string
	Notes             *string
}

// CertificationChanges is the input of Update. Nil pointers and empty strings
// keep the current value; a pointer to "" clears a date or the notes.
type CertificationChanges struct {
	ProductID         *int64
	CertificateNumber *string
	Status            string
	Type              string
	IssuedAt          *string
	ExpiresAt         *string
	Notes             *string
}

// Create posts a certification and splices the result into the cache. When the
// server acknowledges without echoing the record, the cached entry is built
// from the request body under a synthesized id until the next full load.
func (s *Certifications) Create(ctx context.Context, in NewCertification) (catalog.Certification, error) {
	s.mu.Lock()
	s.err = ""
	_, ok := s.productLocked(in.ProductID)
	s.mu.Unlock()
	if !ok {
		return catalog.Certification{}, notFoundError("product not found for certification")
	}
	number := strings.TrimSpace(in.CertificateNumber)
	if number == "" {
		return catalog.Certification{}, validationError("certificate number is required")
	}

	body := catalog.CertificationBody{
		ProductID:         in.ProductID,
		CertificateNumber: number,
		Status:            lowerOr(in.Status, catalog.DefaultStatus),
		Type:              lowerOr(in.Type, catalog.DefaultType),
		IssuedAt:          in.IssuedAt,
		ExpiresAt:         in.ExpiresAt,
		Notes:             trimmedNotes(in.Notes, nil),
	}
	var created catalog.APICertification
	if err := s.client.Fetch(ctx, certificationEndpoint, apiclient.RequestOptions{
		Method: http.MethodPost,
		Body:   body,
	}, &created); err != nil {
		s.setErr(failure("certifications.create", err, "Failed to create certification."))
		return catalog.Certification{}, err
	}

	cert := catalog.NormalizeCertification(created, in.ProductID)
	if !created.Identified() {
		cert = catalog.FromWire(body, (&catalog.Synthesizer{}).ID(body.ProductID, body.CertificateNumber))
	}
	s.mu.Lock()
	s.certifications = spliceByID(s.certifications, cert, certificationID)
	s.mu.Unlock()

	_ = audit.LogEvent(ctx, "certification.created", map[string]any{
		"id":         cert.ID.String(),
		"product_id": cert.ProductID,
	})
	return cert, nil
}

// Update changes a server-backed certification. Synthesized ids are rejected
// before any request. An empty response keeps id and caches the sent body.
func (s *Certifications) Update(ctx context.Context, id catalog.CertificationID, ch CertificationChanges) (catalog.Certification, error) {
	s.setErr("")
	current, err := s.addressable(id)
	if err != nil {
		return catalog.Certification{}, err
	}

	productID := current.ProductID
	if ch.ProductID != nil {
		productID = *ch.ProductID
	}
	if _, ok := s.Product(productID); !ok {
		return catalog.Certification{}, notFoundError("product not found for certification")
	}
	number := current.CertificateNumber
	if ch.CertificateNumber != nil {
		number = strings.TrimSpace(*ch.CertificateNumber)
	}
	if number == "" {
		return catalog.Certification{}, validationError("certificate number is required")
	}

	body := catalog.ToWire(current)
	body.ProductID = productID
	body.CertificateNumber = number
	body.Status = lowerOr(ch.Status, current.Status)
	body.Type = lowerOr(ch.Type, current.Type)
	if ch.IssuedAt != nil {
		body.IssuedAt = nonEmpty(*ch.IssuedAt)
	}
	if ch.ExpiresAt != nil {
		body.ExpiresAt = nonEmpty(*ch.ExpiresAt)
	}
	body.Notes = trimmedNotes(ch.Notes, body.Notes)

	var updated catalog.APICertification
	if err := s.client.Fetch(ctx, certificationEndpoint+"/"+apiclient.PathEscape(id.String()), apiclient.RequestOptions{
		Method: http.MethodPut,
		Body:   body,
	}, &updated); err != nil {
		s.setErr(failure("certifications.update", err, "Failed to update certification."))
		return catalog.Certification{}, err
	}

	cert := catalog.NormalizeCertification(updated, productID)
	if !updated.Identified() {
		cert = catalog.FromWire(body, id)
	}
	s.mu.Lock()
	replaced := false
	for i := range s.certifications {
		if s.certifications[i].ID == id {
			s.certifications[i] = cert
			replaced = true
			break
		}
	}
	if !replaced {
		s.certifications = spliceByID(s.certifications, cert, certificationID)
	}
	s.mu.Unlock()

	_ = audit.LogEvent(ctx, "certification.updated", map[string]any{"id": cert.ID.String()})
	return cert, nil
}

// Delete removes a server-backed certification.
func (s *Certifications) Delete(ctx context.Context, id catalog.CertificationID) error {
	s.setErr("")
	if _, err := s.addressable(id); err != nil {
		return err
	}
	if err := s.client.Fetch(ctx, certificationEndpoint+"/"+apiclient.PathEscape(id.String()), apiclient.RequestOptions{
		Method: http.MethodDelete,
	}, nil); err != nil {
		s.setErr(failure("certifications.delete", err, "Failed to delete certification."))
		return err
	}

	s.mu.Lock()
	s.certifications = slices.DeleteFunc(s.certifications, func(c catalog.Certification) bool { return c.ID == id })
	s.mu.Unlock()

	_ = audit.LogEvent(ctx, "certification.deleted", map[string]any{"id": id.String()})
	return nil
}

func (s *Certifications) addressable(id catalog.CertificationID) (catalog.Certification, error) {
	if id.Synthesized() {
		return catalog.Certification{}, validationError(msgMissingServerID)
	}
	current, ok := s.Certification(id)
	if !ok {
		return catalog.Certification{}, notFoundError(fmt.Sprintf("certification %s not found", id))
	}
	return current, nil
}

func lowerOr(v, fallback string) string {
	if v = strings.TrimSpace(v); v == "" {
		return fallback
	}
	return strings.ToLower(v)
}

func nonEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// trimmedNotes applies a notes change: nil keeps current, blank clears.
func trimmedNotes(change, current *string) *string {
	if change == nil {
		return current
	}
	return nonEmpty(strings.TrimSpace(*change))
}
