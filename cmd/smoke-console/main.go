package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"greenlabel.or.id/admin/internal/app"
	"greenlabel.or.id/admin/internal/authz"
	"greenlabel.or.id/admin/internal/config"
	"greenlabel.or.id/admin/internal/session"
	"greenlabel.or.id/admin/internal/store"
)

func main() {
	cfg := config.Default()
	if base := os.Getenv("GLI_API_BASE"); base != "" {
		cfg.APIBase = base
	}
	email := envOr("GLI_SMOKE_EMAIL", "alice@example.com")
	password := envOr("GLI_SMOKE_PASSWORD", "password")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a := app.New(cfg, session.NewMemoryStorage())
	if err := a.Session.Login(ctx, email, password); err != nil {
		log.Fatalf("login %s at %s: %v", email, cfg.APIBase, err)
	}
	if err := a.Gate.RequirePermission(ctx, authz.ModeAll, authz.PermCertificationManage); err != nil {
		log.Fatalf("smoke account: %v", err)
	}

	if err := a.Catalog.FetchAll(ctx, true); err != nil {
		log.Fatalf("load catalog: %v", err)
	}
	products := a.Catalog.Products()
	if len(products) == 0 {
		log.Fatal("catalog has no products")
	}
	before := len(a.Catalog.Certifications())

	number := fmt.Sprintf("SMOKE-%d", rand.IntN(1_000_000))
	created, err := a.Catalog.Create(ctx, store.NewCertification{ProductID: products[0].ID, CertificateNumber: number})
	if err != nil {
		log.Fatalf("create certification: %v", err)
	}
	if _, err := a.Catalog.Update(ctx, created.ID, store.CertificationChanges{Status: "suspended"}); err != nil {
		log.Fatalf("update certification %s: %v", created.ID, err)
	}
	if err := a.Catalog.Delete(ctx, created.ID); err != nil {
		log.Fatalf("delete certification %s: %v", created.ID, err)
	}

	if err := a.Catalog.FetchAll(ctx, true); err != nil {
		log.Fatalf("reload catalog: %v", err)
	}
	if after := len(a.Catalog.Certifications()); after != before {
		log.Fatalf("certification count drifted: before=%d after=%d", before, after)
	}

	fmt.Printf("✅ console smoke test passed: certification=%s products=%d\n", created.ID, len(products))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
