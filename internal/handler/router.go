package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zhouzirui/pollinator-bot/backend/internal/handler/bot"
	"github.com/zhouzirui/pollinator-bot/backend/internal/handler/ws"
	"github.com/zhouzirui/pollinator-bot/backend/internal/metrics"
	middlewarePkg "github.com/zhouzirui/pollinator-bot/backend/internal/middleware"
	"github.com/zhouzirui/pollinator-bot/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. gatherer may be nil to skip /metrics.
// The /api subtree trusts the caller-supplied user id, so it is only mounted
// behind apiToken; an empty token leaves it unmounted.
func NewRouter(dispatcher bot.Dispatcher, exporter bot.Exporter, limiter *middlewarePkg.RateLimiter, gatherer prometheus.Gatherer, apiToken string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	}

	if apiToken == "" {
		return r
	}

	botHandler := bot.New(dispatcher, exporter, limiter)
	wsHandler := ws.New(dispatcher, limiter)

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.BearerAuth(apiToken))
		botHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)
	})

	return r
}
