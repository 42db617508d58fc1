package upload

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hesabyar/hesabyar/internal/engine"
	"github.com/hesabyar/hesabyar/internal/ingest"
	"github.com/hesabyar/hesabyar/internal/model/ledger"
	"github.com/hesabyar/hesabyar/internal/store"
	"github.com/hesabyar/hesabyar/pkg/utils"
)

const maxUploadBytes = 32 << 20

// Handler serves spreadsheet uploads.
type Handler struct {
	ingest *ingest.Service
	store  store.Store
}

// New creates the upload handler.
func New(ingestSvc *ingest.Service, st store.Store) *Handler {
	return &Handler{ingest: ingestSvc, store: st}
}

// RegisterRoutes mounts the upload routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/upload", h.handleUpload)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	// Same derivation as chat, so an id-less upload lands under the
	// session-scoped id the subsequent chat messages will use.
	userID := engine.DeriveUserID(r.FormValue("user_id"), r.FormValue("session_id"))

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	table, mapping, err := h.ingest.Ingest(r.Context(), file, header.Filename)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ingest.ErrUnsupportedFormat) || errors.Is(err, ingest.ErrEmptyFile) {
			status = http.StatusBadRequest
		}
		utils.RespondError(w, status, err.Error())
		return
	}

	// A new upload fully replaces the previous table for this user.
	h.store.SaveTable(r.Context(), userID, store.TableAccounting, table)

	debit, credit := table.Totals()
	h.store.RecordUpload(r.Context(), userID, ledger.UploadEvent{
		Filename:    header.Filename,
		RowCount:    len(table.Rows),
		Mapping:     mapping.Fields,
		Confidence:  string(mapping.Confidence),
		TotalDebit:  debit,
		TotalCredit: credit,
		UploadedAt:  time.Now().UTC(),
	})

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"user_id":      userID,
		"rows":         len(table.Rows),
		"columns":      table.Columns,
		"mapping":      mapping.Fields,
		"confidence":   mapping.Confidence,
		"total_debit":  debit.String(),
		"total_credit": credit.String(),
		"balance":      debit.Sub(credit).String(),
	})
}
