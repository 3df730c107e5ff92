package obs

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                 "/",
		"/metrics":                         "/metrics",
		"/api/users":                       "/api/users",
		"/api/users/01HX":                  "/api/users/:id",
		"/rbac/roles/admin/permissions":    "/rbac/roles/:id/permissions",
		"/rbac/users/u-1/roles":            "/rbac/users/:id/roles",
		"/product-certifications/42":       "/product-certifications/:id",
		"/product-certifications?limit=10": "/product-certifications",
		"/profile/password":                "/profile/password",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestClientMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewClientMetrics(reg)

	m.Observe("GET", "/users/abc", 200, 10*time.Millisecond)
	m.Observe("GET", "/users/def", 200, 10*time.Millisecond)
	m.Observe("GET", "/users", 0, time.Millisecond)

	if got := testutil.ToFloat64(m.Requests().WithLabelValues("GET", "/users/:id", "200")); got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.Requests().WithLabelValues("GET", "/users", "error")); got != 1 {
		t.Fatalf("expected 1 transport failure, got %v", got)
	}
}

func TestNilClientMetricsIsNoop(t *testing.T) {
	var m *ClientMetrics
	m.Observe("GET", "/x", 200, time.Millisecond)
}
