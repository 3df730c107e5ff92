package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"greenlabel.or.id/admin/internal/apiclient"
	"greenlabel.or.id/admin/internal/catalog"
)

// recorder is an httptest backend that remembers every request line.
type recorder struct {
	mu    sync.Mutex
	calls []string
	mux   *http.ServeMux
}

func newRecorder(t *testing.T) (*recorder, *apiclient.Client) {
	t.Helper()
	rec := &recorder{mux: http.NewServeMux()}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.calls = append(rec.calls, r.Method+" "+r.URL.Path)
		rec.mu.Unlock()
		rec.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return rec, apiclient.New(srv.URL)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func writeData(w http.ResponseWriter, data string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"data":`+data+`}`)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `{"error":{"code":"x","message":"`+msg+`"}}`)
}

const productsPayload = `[
  {"id":7,"name":"Eco Paint","brand":{"id":3,"name":"Nippon","category":{"id":2,"name":"Cat Tembok"}},
   "rating":4.1,"created_at":"2024-01-01",
   "certifications":[{"id":11,"certificate_number":"GLI-1","status":"active","type":"green-label","notes":"array"}],
   "certificate_number":"GLI-1"},
  {"id":8,"name":"Aqua Tile","brand_id":4,"rating":4.8,"created_at":"2024-03-01",
   "certificate_number":"GLI-2024-01","certificate_status":"Expired"},
  {"id":9,"name":"Bamboo Board","brand_id":4,"rating":3.2,"created_at":"2023-05-01"}
]`

func catalogRecorder(t *testing.T) (*recorder, *Certifications) {
	t.Helper()
	rec, client := newRecorder(t)
	rec.mux.HandleFunc("GET /brand-categories", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `[{"id":5,"name":"Keramik"}]`)
	})
	rec.mux.HandleFunc("GET /brands", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `[{"id":4,"name":"Roman","category_id":5}]`)
	})
	rec.mux.HandleFunc("GET /products", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, productsPayload)
	})
	return rec, NewCertifications(client)
}

func TestFetchAllNotFoundIsEmpty(t *testing.T) {
	rec, client := newRecorder(t)
	rec.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "missing")
	})
	s := NewCertifications(client)
	if err := s.FetchAll(context.Background(), false); err != nil {
		t.Fatalf("404 must not fail: %v", err)
	}
	if len(s.Categories()) != 0 || len(s.Brands()) != 0 || len(s.Products()) != 0 || len(s.Certifications()) != 0 {
		t.Fatalf("expected empty collections")
	}
	if s.Err() != "" || s.Loading() {
		t.Fatalf("unexpected state err=%q loading=%v", s.Err(), s.Loading())
	}
}

func TestFetchAllNormalizes(t *testing.T) {
	rec, s := catalogRecorder(t)
	ctx := context.Background()
	if err := s.FetchAll(ctx, false); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if _, ok := s.Brand(3); !ok {
		t.Fatalf("nested brand not upserted: %+v", s.Brands())
	}
	if c, ok := s.Category(2); !ok || c.Name != "Cat Tembok" {
		t.Fatalf("nested category not upserted: %+v", s.Categories())
	}

	certs := s.Certifications()
	if len(certs) != 3 {
		t.Fatalf("expected 3 certifications, got %d: %+v", len(certs), certs)
	}
	if certs[0].ID != catalog.ServerID(11) || certs[0].Notes != "array" {
		t.Fatalf("array entry must win: %+v", certs[0])
	}
	if got := certs[1].ID.String(); got != "product-8-gli-2024-01" {
		t.Fatalf("unexpected synthesized id %q", got)
	}
	if !certs[2].ID.Synthesized() || certs[2].ProductID != 9 {
		t.Fatalf("expected placeholder for product 9: %+v", certs[2])
	}

	enriched := s.Enriched()
	if enriched[0].BrandName != "Nippon" || enriched[0].CategoryName != "Cat Tembok" {
		t.Fatalf("unexpected join: %+v", enriched[0])
	}
	if enriched[1].CategoryName != "Keramik" {
		t.Fatalf("expected category through brand: %+v", enriched[1])
	}

	if got := s.StatusOptions(); len(got) != 2 || got[0] != "active" || got[1] != "expired" {
		t.Fatalf("unexpected status options %v", got)
	}
	if got := s.TypeOptions(); len(got) != 1 || got[0] != catalog.DefaultType {
		t.Fatalf("unexpected type options %v", got)
	}

	calls := rec.count()
	if err := s.FetchAll(ctx, false); err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if rec.count() != calls {
		t.Fatalf("second load must be served from cache")
	}
	if err := s.FetchAll(ctx, true); err != nil {
		t.Fatalf("forced fetch: %v", err)
	}
	if rec.count() != calls+3 {
		t.Fatalf("forced load must refetch all three collections")
	}
	if len(s.Certifications()) != 3 {
		t.Fatalf("reload must produce the same certifications")
	}
}

func TestFetchAllFailureRecordsMessage(t *testing.T) {
	rec, client := newRecorder(t)
	rec.mux.HandleFunc("GET /products", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusInternalServerError, "database offline")
	})
	rec.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { writeData(w, `[]`) })

	s := NewCertifications(client)
	err := s.FetchAll(context.Background(), false)
	if apiclient.StatusOf(err) != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v", err)
	}
	if s.Err() != "database offline" {
		t.Fatalf("unexpected message %q", s.Err())
	}
}

func TestSynthesizedIDRejectedWithoutRequest(t *testing.T) {
	rec, s := catalogRecorder(t)
	ctx := context.Background()
	if err := s.FetchAll(ctx, false); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	before := rec.count()

	id := catalog.ParseCertificationID("product-7-cert-1")
	status := "revoked"
	if _, err := s.Update(ctx, id, CertificationChanges{Status: status}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := s.Delete(ctx, id); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if rec.count() != before {
		t.Fatalf("synthesized ids must not reach the network: %v", rec.snapshot()[before:])
	}
}

func TestCertificationMutations(t *testing.T) {
	rec, s := catalogRecorder(t)
	var bodies []catalog.CertificationBody
	capture := func(r *http.Request) {
		var b catalog.CertificationBody
		_ = json.NewDecoder(r.Body).Decode(&b)
		bodies = append(bodies, b)
	}
	rec.mux.HandleFunc("POST /product-certifications", func(w http.ResponseWriter, r *http.Request) {
		capture(r)
		writeData(w, `{"id":21,"product_id":9,"certificate_number":"GLI-9","status":"active","type":"green-label"}`)
	})
	rec.mux.HandleFunc("PUT /product-certifications/{id}", func(w http.ResponseWriter, r *http.Request) {
		capture(r)
		if r.PathValue("id") != "21" {
			writeError(w, http.StatusNotFound, "no")
			return
		}
		writeData(w, `{"id":21,"product_id":9,"certificate_number":"GLI-9","status":"suspended","type":"green-label","notes":"checked"}`)
	})
	rec.mux.HandleFunc("DELETE /product-certifications/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := context.Background()
	if err := s.FetchAll(ctx, false); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if _, err := s.Create(ctx, NewCertification{ProductID: 404, CertificateNumber: "X"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.Create(ctx, NewCertification{ProductID: 9, CertificateNumber: "  "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	created, err := s.Create(ctx, NewCertification{ProductID: 9, CertificateNumber: " GLI-9 ", Status: "Active"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != catalog.ServerID(21) || len(s.Certifications()) != 4 {
		t.Fatalf("create not spliced: %+v", s.Certifications())
	}
	if bodies[0].CertificateNumber != "GLI-9" || bodies[0].Status != "active" || bodies[0].Type != "green-label" {
		t.Fatalf("unexpected create body %+v", bodies[0])
	}

	notes := " checked "
	updated, err := s.Update(ctx, created.ID, CertificationChanges{Status: "Suspended", Notes: &notes})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != "suspended" || updated.Notes != "checked" {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if got := bodies[1]; got.Status != "suspended" || got.Notes == nil || *got.Notes != "checked" || got.ProductID != 9 {
		t.Fatalf("unexpected update body %+v", got)
	}
	if c, _ := s.Certification(created.ID); c.Status != "suspended" {
		t.Fatalf("update not spliced: %+v", c)
	}

	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.Certification(created.ID); ok || len(s.Certifications()) != 3 {
		t.Fatalf("delete not applied")
	}
	if err := s.Delete(ctx, catalog.ServerID(999)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown id, got %v", err)
	}
}

func TestCertificationUpdateFailureRecordsMessage(t *testing.T) {
	rec, s := catalogRecorder(t)
	rec.mux.HandleFunc("PUT /product-certifications/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnprocessableEntity, "certificate number taken")
	})
	ctx := context.Background()
	if err := s.FetchAll(ctx, false); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := s.Update(ctx, catalog.ServerID(11), CertificationChanges{}); apiclient.StatusOf(err) != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %v", err)
	}
	if s.Err() != "certificate number taken" {
		t.Fatalf("unexpected message %q", s.Err())
	}
	if c, _ := s.Certification(catalog.ServerID(11)); c.Status != "active" {
		t.Fatalf("failed update must leave the cache alone: %+v", c)
	}
}

func TestCertificationEmptyResponseKeepsRecord(t *testing.T) {
	rec, s := catalogRecorder(t)
	rec.mux.HandleFunc("PUT /product-certifications/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `null`)
	})
	rec.mux.HandleFunc("POST /product-certifications", func(w http.ResponseWriter, r *http.Request) {
		writeData(w, `{}`)
	})
	ctx := context.Background()
	if err := s.FetchAll(ctx, false); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	updated, err := s.Update(ctx, catalog.ServerID(11), CertificationChanges{Status: "Revoked"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != catalog.ServerID(11) || updated.CertificateNumber != "GLI-1" || updated.Status != "revoked" || updated.Notes != "array" {
		t.Fatalf("expected record built from the sent body, got %+v", updated)
	}
	c, ok := s.Certification(catalog.ServerID(11))
	if !ok || c.Status != "revoked" {
		t.Fatalf("server-backed entry lost from cache: %+v", s.Certifications())
	}
	if len(s.Certifications()) != 3 {
		t.Fatalf("empty response must not add entries: %+v", s.Certifications())
	}
	if _, err := s.Update(ctx, catalog.ServerID(11), CertificationChanges{Status: "active"}); err != nil {
		t.Fatalf("entry must stay addressable: %v", err)
	}

	created, err := s.Create(ctx, NewCertification{ProductID: 9, CertificateNumber: "GLI-9"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID.String() != "product-9-gli-9" || created.CertificateNumber != "GLI-9" || created.Status != catalog.DefaultStatus {
		t.Fatalf("unexpected created entry %+v", created)
	}
	if _, ok := s.Certification(created.ID); !ok {
		t.Fatalf("created entry not cached")
	}
}
