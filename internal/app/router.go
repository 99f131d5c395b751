package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-mfg/meridian-portal/internal/catalog"
	"github.com/meridian-mfg/meridian-portal/internal/observability"
	"github.com/meridian-mfg/meridian-portal/internal/permissions"
	"github.com/meridian-mfg/meridian-portal/internal/roles"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	PermissionsHandler *permissions.Handler
	CatalogHandler     *catalog.Handler
	RolesHandler       *roles.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with portal defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	adminOnly := RequireAdminKey(params.Logger, adminKeyHash(params.Config))

	if params.PermissionsHandler != nil {
		params.PermissionsHandler.MountRoutes(r, adminOnly)
	}
	if params.CatalogHandler != nil {
		params.CatalogHandler.MountRoutes(r, adminOnly)
	}
	if params.RolesHandler != nil {
		params.RolesHandler.MountRoutes(r, adminOnly)
	}

	return r
}

func adminKeyHash(cfg *Config) string {
	if cfg == nil {
		return ""
	}
	return cfg.AdminAPIKeyHash
}
