package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eseva/internal/platform/metrics"
	"eseva/pkg/platform/httputil"
	authmw "eseva/pkg/platform/middleware/auth"
	"eseva/pkg/platform/middleware/metadata"
	request "eseva/pkg/platform/middleware/request"
	"eseva/pkg/platform/middleware/requesttime"
)

type registrar interface {
	Register(r chi.Router)
}

type routerDeps struct {
	logger         *slog.Logger
	metrics        *metrics.Metrics
	gatherer       prometheus.Gatherer
	requestTimeout time.Duration
	tokens         authmw.JWTValidator
	revocations    authmw.TokenRevocationChecker
	auth           registrar
	eseva          registrar
}

// newRouter mounts the public auth routes and the token protected /eseva routes.
func newRouter(d routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(d.logger))
	r.Use(request.Recovery(d.logger))
	if d.requestTimeout > 0 {
		r.Use(request.Timeout(d.requestTimeout))
	}
	r.Use(d.metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	}

	d.auth.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth(d.tokens, d.revocations, d.logger))
		d.eseva.Register(r)
	})
	return r
}
