package export

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pvsentinel/narrativecore/internal/auth"
	"github.com/pvsentinel/narrativecore/internal/domain"
)

// Handler serves audit report downloads.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register attaches the export routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /export/cases/{case}/audit.xlsx", h.handleWorkbook)
	mux.HandleFunc("GET /export/cases/{case}/audit.csv", h.handleCSV)
}

func (h *Handler) handleWorkbook(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", FileName(caseID, "xlsx")))
	if err := h.service.WriteWorkbook(r.Context(), caseID, w); err != nil {
		h.writeError(w, err)
		return
	}
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	caseID, ok := h.authorize(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", FileName(caseID, "csv")))
	if err := h.service.WriteCSV(r.Context(), caseID, w); err != nil {
		h.writeError(w, err)
		return
	}
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	if _, err := auth.RequireCapability(r.Context(), func(c domain.Capabilities) bool { return c.CanExportReports }); err != nil {
		status := http.StatusForbidden
		if !errors.Is(err, domain.ErrPermissionDenied) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return "", false
	}
	return r.PathValue("case"), true
}

// writeError is only effective before the first body byte; the service loads
// the full report before rendering, so load failures arrive here in time.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}
