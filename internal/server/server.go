// Package server provides the HTTP server setup for go-aquamark.
//
// NewServer wires the decryption tool, credit ledger, logo resolver and
// overlay composer into the watermarking service and returns a ready
// *http.Server.
//
// Usage:
//
//	srv, err := server.NewServer(cfg, server.Deps{Ledger: store, Assets: logos, Log: log})
//	srv.ListenAndServe()
//
// See internal/server/routes.go for route registration.
package server

import (
	"fmt"
	"image"
	"net/http"
	"os"

	"go-aquamark/internal/assets"
	"go-aquamark/internal/config"
	"go-aquamark/internal/decrypt"
	"go-aquamark/internal/handlers"
	"go-aquamark/internal/ledger"
	"go-aquamark/internal/metrics"
	"go-aquamark/internal/overlay"
	"go-aquamark/internal/pdf"
	"go-aquamark/internal/watermark"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Deps are the backends chosen at startup.
type Deps struct {
	Ledger ledger.Store
	Assets assets.Store
	// Fetcher downloads logos and the hologram. It defaults to an
	// HTTPFetcher, which also reads file:// URLs inside a DirStore's root.
	Fetcher assets.Fetcher
	// Registry receives the service metrics; defaults to a fresh registry.
	Registry *prometheus.Registry
	Log      *zap.Logger
}

type Server struct {
	cfg      *config.Config
	log      *zap.Logger
	metrics  *metrics.Metrics
	registry *prometheus.Registry
	handler  *handlers.APIHandler
}

func New(cfg *config.Config, deps Deps) (*Server, error) {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	fetcher := deps.Fetcher
	if fetcher == nil {
		if dir, ok := deps.Assets.(*assets.DirStore); ok {
			fetcher = assets.NewLocalFetcher(dir.Root(), 0)
		} else {
			fetcher = assets.NewHTTPFetcher(nil, 0)
		}
	}

	var template image.Image
	if cfg.BadgeTemplatePath != "" {
		data, err := os.ReadFile(cfg.BadgeTemplatePath)
		if err != nil {
			return nil, fmt.Errorf("read badge template: %w", err)
		}
		if template, _, err = overlay.DecodeLogo(data); err != nil {
			return nil, fmt.Errorf("decode badge template: %w", err)
		}
	}

	m := metrics.New(registry)
	dec := decrypt.New(decrypt.Options{
		Tool:    cfg.QPDFPath,
		TempDir: cfg.TempDir,
		Timeout: cfg.DecryptTimeout,
		Probe:   pdf.Probe,
		Log:     log.Named("decrypt"),
	})
	composer := overlay.NewComposer(overlay.Params{
		LogoWidthFraction: cfg.LogoWidthFraction,
		TileGap:           cfg.TileGap,
		TileOpacity:       cfg.TileOpacity,
		TileOrigin:        cfg.TileOrigin,
		TileAngle:         45,
		QRSize:            cfg.QRSize,
		QROpacity:         cfg.QROpacity,
		DPIScale:          cfg.DPIScale,
	})
	svc := watermark.New(watermark.Options{
		Decrypter:       dec,
		Ledger:          ledger.NewClient(deps.Ledger, cfg.LedgerTimeout, log.Named("ledger")),
		Logos:           assets.NewResolver(deps.Assets, fetcher, cfg.AssetTimeout, log.Named("assets")),
		Composer:        composer,
		Fetcher:         fetcher,
		HologramURL:     cfg.HologramURL,
		QRBaseURL:       cfg.QRBaseURL,
		BadgeTemplate:   template,
		PerPageGeometry: cfg.PerPageGeometry,
		Concurrency:     cfg.BatchConcurrency,
		Metrics:         m,
		Log:             log.Named("watermark"),
	})

	if cfg.APIToken == "" {
		log.Warn("API_TOKEN is empty; watermark routes will reject every request")
	}

	return &Server{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		registry: registry,
		handler:  handlers.NewAPIHandler(svc, dec, m, log.Named("http"), cfg.MaxUploadBytes),
	}, nil
}

func NewServer(cfg *config.Config, deps Deps) (*http.Server, error) {
	srv, err := New(cfg, deps)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.RegisterRoutes(),
		IdleTimeout:  cfg.IdleTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, nil
}
