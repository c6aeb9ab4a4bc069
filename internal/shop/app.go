// Package shop assembles the storefront, the product API and the operational
// endpoints into one HTTP handler.
package shop

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"MiniShop/internal/cart"
	"MiniShop/internal/catalog"
	"MiniShop/internal/events"
	"MiniShop/internal/session"
	"MiniShop/internal/web"
	"MiniShop/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string
}

type Deps struct {
	Products catalog.Store
	Sessions session.Store
	Tokens   *session.TokenMaker
	Events   events.Publisher

	SessionTTL   time.Duration
	CookieSecure bool

	// StaticDir is served at the root when it exists. Empty disables it.
	StaticDir string
}

const readyTimeout = 2 * time.Second

func NewHandler(deps Deps, httpDeps HTTPDeps) (http.Handler, error) {
	if deps.Products == nil || deps.Sessions == nil || deps.Tokens == nil {
		return nil, errors.New("shop: products, sessions and tokens are required")
	}

	log := httpDeps.Log
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}

	views, err := web.NewRenderer()
	if err != nil {
		return nil, err
	}

	api := &catalog.Server{Store: deps.Products, Events: deps.Events, Log: log}
	store := &web.Server{
		Products: deps.Products,
		Cart:     &cart.Service{Sessions: deps.Sessions, Products: deps.Products},
		Views:    views,
		Log:      log,
	}
	sessions := &session.Manager{
		Store:        deps.Sessions,
		Tokens:       deps.Tokens,
		TTL:          deps.SessionTTL,
		CookieSecure: deps.CookieSecure,
		Log:          log,
	}

	r := chi.NewRouter()
	setupMiddleware(r, log)
	setupMetrics(r, httpDeps)

	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz(deps, log))

	r.Mount("/api/products", api.Routes())

	// write aliases kept for clients of the older product routes
	r.Post("/products", api.CreateHandler())
	r.Put("/products/{id}", api.UpdateHandler())
	r.Delete("/products/{id}", api.DeleteWithMessageHandler())

	r.Group(func(sr chi.Router) {
		sr.Use(sessions.Middleware)
		store.Register(sr)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/products", http.StatusFound)
	})
	setupStatic(r, deps.StaticDir, log)

	return r, nil
}

func setupMiddleware(r *chi.Mux, log *zap.Logger) {
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer)
	r.Use(kit.Logging(log))
}

func setupMetrics(r *chi.Mux, deps HTTPDeps) {
	if deps.Registry == nil {
		return
	}

	metrics := kit.NewMetrics(deps.Registry)
	r.Use(metrics.Middleware(deps.Service, kit.RoutePatternLabel))

	if !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}

func setupStatic(r *chi.Mux, dir string, log *zap.Logger) {
	if dir == "" {
		return
	}
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		log.Info("static assets disabled", zap.String("dir", dir))
		return
	}

	files := http.FileServer(http.Dir(dir))
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		// no directory listings
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func readyz(deps Deps, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := deps.Products.Ping(ctx); err != nil {
			log.Warn("readyz failed: products", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "product store not ready", nil)
			return
		}

		if err := deps.Sessions.Ping(ctx); err != nil {
			log.Warn("readyz failed: sessions", zap.Error(err))
			kit.WriteError(w, r, http.StatusServiceUnavailable, "session store not ready", nil)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
