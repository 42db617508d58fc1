package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hesabyar/hesabyar/internal/engine"
	chatHandler "github.com/hesabyar/hesabyar/internal/handler/chat"
	reportHandler "github.com/hesabyar/hesabyar/internal/handler/report"
	uploadHandler "github.com/hesabyar/hesabyar/internal/handler/upload"
	"github.com/hesabyar/hesabyar/internal/ingest"
	middlewarePkg "github.com/hesabyar/hesabyar/internal/middleware"
	"github.com/hesabyar/hesabyar/internal/store"
	"github.com/hesabyar/hesabyar/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(eng *engine.Engine, ingestSvc *ingest.Service, st store.Store) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		chatHandler.New(eng, st).RegisterRoutes(api)
		uploadHandler.New(ingestSvc, st).RegisterRoutes(api)
		reportHandler.New(st, eng).RegisterRoutes(api)

		api.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":          "ok",
				"storage":         st.StorageType(),
				"active_sessions": st.ActiveSessions(r.Context()),
			})
		})
	})

	return r
}
