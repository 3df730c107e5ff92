package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"greenlabel.or.id/admin/internal/mockapi"
	"greenlabel.or.id/admin/internal/obs"
)

var version = "0.1.0"

func main() {
	var (
		addr    = flag.String("addr", envOr("GLI_MOCK_ADDR", ":8080"), "listen address")
		secret  = flag.String("secret", os.Getenv("GLI_MOCK_SECRET"), "HS256 signing key")
		ttl     = flag.Duration("ttl", time.Hour, "access token lifetime")
		rps     = flag.Float64("rate", 0, "requests per second per client, 0 disables limiting")
		burst   = flag.Int("burst", 20, "rate limit burst")
		origins = flag.String("origins", os.Getenv("GLI_MOCK_ORIGINS"), "comma separated CORS origins")
		empty   = flag.Bool("empty", false, "start without demo data")
	)
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo("mockapi", version)

	opts := []mockapi.Option{
		mockapi.WithSecret(*secret),
		mockapi.WithTokenTTL(*ttl),
		mockapi.WithRateLimit(*rps, *burst),
	}
	if *origins != "" {
		opts = append(opts, mockapi.WithAllowedOrigins(strings.Split(*origins, ",")...))
	}
	if *empty {
		opts = append(opts, mockapi.WithoutSeed())
	}
	api, err := mockapi.New(opts...)
	if err != nil {
		log.Fatalf("build mock api: %v", err)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	obs.Info("starting gli mock api", map[string]any{"version": version, "addr": srv.Addr})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.Info("shutting down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	obs.Info("stopped", nil)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
