package api

import (
	"net/http"
	"net/url"
	"time"

	"adlign-personalization-layer/internal/application"
	"adlign-personalization-layer/internal/infrastructure/metrics"
	"adlign-personalization-layer/internal/infrastructure/middleware"
	"adlign-personalization-layer/internal/infrastructure/pubsub"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Deps are the services the router exposes. Events, Metrics and
// MetricsHandler are optional.
type Deps struct {
	Shopify         *application.ShopifyService
	Scans           *application.ScanService
	Jobs            *application.ScanJobManager
	Events          *pubsub.ScanJobPubSub
	Mappings        *application.MappingService
	Landings        *application.LandingService
	Personalization *application.PersonalizationService
	Analytics       *application.AnalyticsService
	Webhooks        *application.WebhookService

	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	RateLimit      middleware.RateLimitConfig
	CORSOrigins    []string
	SwaggerFile    string
	Logger         zerolog.Logger
}

type server struct {
	Deps
	logger zerolog.Logger
	now    func() time.Time
}

// NewRouter builds the HTTP surface
func NewRouter(d Deps) http.Handler {
	s := &server{Deps: d, logger: d.Logger, now: time.Now}
	if len(d.CORSOrigins) == 0 {
		d.CORSOrigins = []string{"*"}
	}
	if d.SwaggerFile == "" {
		s.SwaggerFile = "./docs/swagger.json"
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.AuditLoggingMiddleware(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	if d.RateLimit.Store != nil {
		r.Use(middleware.RateLimitMiddleware(d.RateLimit, d.Logger))
	}

	r.Get("/", s.root)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, envelope{"status": "ok"})
	})
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, s.SwaggerFile)
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	r.Get("/auth", s.beginInstall)
	r.Get("/auth/callback", s.completeInstall)
	r.Get("/auth/status", s.authStatus)

	r.Post("/webhooks/shopify", s.webhook)

	r.Route("/api", func(r chi.Router) {
		r.Post("/connect-shopify", s.connectShopify)
		r.Get("/stores", s.stores)
		r.Get("/analytics", s.analytics)
		r.Get("/snippet", s.snippet)

		r.Get("/campaigns", s.campaigns)
		r.Get("/campaign/{variant}", s.campaign)

		r.Route("/themes", func(r chi.Router) {
			r.Post("/analyze", s.analyzeTheme)
			r.Post("/scan-complete", s.scanComplete)
			r.Post("/scan-jobs", s.startScanJob)
			r.Get("/scan-jobs/{shop_domain}", s.scanJobStatus)
			r.Get("/scan-jobs/{shop_domain}/events", s.scanJobEvents)
			r.Get("/files", s.themeFiles)
			r.Post("/install-snippet", s.installSnippet)
		})

		r.Route("/mappings", func(r chi.Router) {
			r.Get("/", s.listMappings)
			r.Get("/{id}", s.getMapping)
			r.Delete("/{id}", s.deleteMapping)
			r.Post("/{id}/test-script", s.mappingTestScript)
		})

		r.Route("/landings", func(r chi.Router) {
			r.Post("/", s.createLanding)
			r.Get("/", s.listLandings)
			r.Get("/{handle}", s.getLanding)
			r.Put("/{handle}", s.updateLanding)
			r.Delete("/{handle}", s.deleteLanding)
			r.Get("/{handle}/script", s.landingScript)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.listProducts)
			r.Post("/personalize", s.personalize)
			r.Get("/{product_id}/diagnose", s.diagnose)
			r.Get("/{product_id}/metafields", s.metafields)
			r.Post("/{product_id}/restore", s.restoreProduct)
		})
	})

	return r
}

func (s *server) root(w http.ResponseWriter, r *http.Request) {
	if shop := r.URL.Query().Get("shop"); shop != "" {
		http.Redirect(w, r, "/auth?shop="+url.QueryEscape(shop), http.StatusFound)
		return
	}
	writeOK(w, envelope{
		"service": "adlign",
		"docs":    "/swagger/index.html",
		"health":  "/health",
	})
}
