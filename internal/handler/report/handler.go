package report

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hesabyar/hesabyar/internal/engine"
	"github.com/hesabyar/hesabyar/internal/store"
	"github.com/hesabyar/hesabyar/pkg/utils"
)

// Handler serves balance reports, user-data introspection and tool
// statistics.
type Handler struct {
	store  store.Store
	engine *engine.Engine
}

// New creates the report handler.
func New(st store.Store, eng *engine.Engine) *Handler {
	return &Handler{store: st, engine: eng}
}

// RegisterRoutes mounts the report routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/users/{userID}/report", h.handleReport)
	r.Get("/users/{userID}/debug", h.handleDebug)
	r.Delete("/users/{userID}/data", h.handleClearData)
	r.Get("/tools/stats", h.handleToolStats)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	table, ok := h.store.GetTable(r.Context(), userID, store.TableAccounting)
	if !ok {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"has_data": false,
			"message":  "داده‌ای برای این کاربر بارگذاری نشده است.",
		})
		return
	}

	debit, credit := table.Totals()
	balance := debit.Sub(credit)

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"has_data":     true,
		"rows":         len(table.Rows),
		"columns":      table.Columns,
		"total_debit":  debit.String(),
		"total_credit": credit.String(),
		"balance":      balance.String(),
		"balanced":     balance.IsZero(),
		"uploads":      h.store.ListUploads(r.Context(), userID),
	})
}

func (h *Handler) handleDebug(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	utils.RespondJSON(w, http.StatusOK, h.store.DebugUserData(r.Context(), userID))
}

func (h *Handler) handleClearData(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	h.store.ClearUserData(r.Context(), userID)
	utils.RespondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleToolStats(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.engine.Stats())
}
