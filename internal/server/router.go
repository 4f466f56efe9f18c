// Package server assembles the HTTP router and the gRPC server.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	audithandler "github.com/itsfredrick/vayva-platform-sub007/internal/audit/handler"
	consenthandler "github.com/itsfredrick/vayva-platform-sub007/internal/consent/handler"
	enforcementhandler "github.com/itsfredrick/vayva-platform-sub007/internal/enforcement/handler"
	healthhandler "github.com/itsfredrick/vayva-platform-sub007/internal/health/handler"
	inboundhandler "github.com/itsfredrick/vayva-platform-sub007/internal/inbound/handler"
	policyhandler "github.com/itsfredrick/vayva-platform-sub007/internal/policy/handler"
	"github.com/itsfredrick/vayva-platform-sub007/internal/server/middleware"
	"github.com/itsfredrick/vayva-platform-sub007/internal/telemetry"
)

// Deps holds the HTTP handlers and shared infrastructure. Nil handlers are not mounted.
type Deps struct {
	// Tokens validates merchant bearer tokens. Required when any merchant handler is set.
	Tokens middleware.TokenValidator
	// Metrics records request metrics. Nil disables them.
	Metrics *telemetry.Metrics
	// Gatherer backs /metrics. Nil uses prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	// Health backs /readyz. Nil reports ready.
	Health *healthhandler.Checker
	// CORSOrigins lists origins allowed to call the API from a browser. Empty disables CORS headers.
	CORSOrigins []string
	Logger      *zap.Logger

	Consent     *consenthandler.Handler
	Preferences *consenthandler.PreferenceHandler
	Audit       *audithandler.Handler
	Decisions   *enforcementhandler.Handler
	Policies    *policyhandler.Handler
	Inbound     *inboundhandler.Handler
}

// unmeasured routes are skipped by the telemetry middleware.
var unmeasured = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// NewRouter returns the HTTP handler for the whole API.
//
//	/healthz, /readyz, /metrics
//	/v1/preferences, /v1/inbound/messages    token or shared secret
//	/v1/...                                  merchant bearer token
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	health := deps.Health
	if health == nil {
		health = healthhandler.NewChecker(nil, nil)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.Use(middleware.Telemetry(deps.Metrics, logger, unmeasured))

	r.Get("/healthz", healthhandler.Healthz)
	r.Get("/readyz", healthhandler.Readyz(health, logger))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		if deps.Preferences != nil {
			deps.Preferences.PublicRoutes(r)
		}
		if deps.Inbound != nil {
			deps.Inbound.Routes(r)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(deps.Tokens))
			if deps.Consent != nil {
				deps.Consent.Routes(r)
			}
			if deps.Audit != nil {
				deps.Audit.Routes(r)
			}
			if deps.Preferences != nil {
				deps.Preferences.MerchantRoutes(r)
			}
			if deps.Decisions != nil {
				deps.Decisions.Routes(r)
			}
			if deps.Policies != nil {
				deps.Policies.Routes(r)
			}
		})
	})
	return r
}
