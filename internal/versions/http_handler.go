package versions

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/pvsentinel/narrativecore/internal/auth"
	"github.com/pvsentinel/narrativecore/internal/domain"
	"github.com/pvsentinel/narrativecore/internal/review"
)

// Handler exposes the version store over HTTP.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register attaches the version routes to the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /cases/{case}/versions", h.handleAppend)
	mux.HandleFunc("GET /cases/{case}/versions", h.handleList)
	mux.HandleFunc("GET /cases/{case}/versions/latest", h.handleLatest)
	mux.HandleFunc("GET /cases/{case}/versions/{seq}", h.handleGet)
	mux.HandleFunc("GET /cases/{case}/versions/{seq}/changes", h.handleChanges)
	mux.HandleFunc("GET /cases/{case}/versions/{seq}/pending", h.handlePending)
	mux.HandleFunc("POST /cases/{case}/versions/{seq}/{action}", h.handleTransition)
	mux.HandleFunc("GET /cases/{case}/diff", h.handleDiff)
	mux.HandleFunc("POST /changes/{id}/justify", h.handleJustify)
}

type appendPayload struct {
	Text string `json:"text"`
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireCapability(r.Context(), func(c domain.Capabilities) bool { return c.CanEditDrafts })
	if err != nil {
		writeError(w, err)
		return
	}

	var payload appendPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.service.Append(r.Context(), AppendRequest{
		CaseID:   r.PathValue("case"),
		Text:     payload.Text,
		AuthorID: actor.ID,
		Source:   domain.SourceHumanEdit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	versions, err := h.service.List(r.Context(), r.PathValue("case"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	version, err := h.service.Latest(r.Context(), r.PathValue("case"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sequence, err := parseSequence(r.PathValue("seq"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	version, err := h.service.Get(r.Context(), r.PathValue("case"), sequence)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (h *Handler) handleChanges(w http.ResponseWriter, r *http.Request) {
	sequence, err := parseSequence(r.PathValue("seq"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	changes, err := h.service.ChangesForVersion(r.Context(), r.PathValue("case"), sequence)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	sequence, err := parseSequence(r.PathValue("seq"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pending, err := h.service.PendingJustifications(r.Context(), r.PathValue("case"), sequence)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	sequence, err := parseSequence(r.PathValue("seq"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	action, err := review.ParseAction(r.PathValue("action"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	version, err := h.service.Transition(r.Context(), r.PathValue("case"), sequence, action, actor.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (h *Handler) handleDiff(w http.ResponseWriter, r *http.Request) {
	fromSeq, err := parseSequence(r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid from parameter: %v", err), http.StatusBadRequest)
		return
	}
	toSeq, err := parseSequence(r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid to parameter: %v", err), http.StatusBadRequest)
		return
	}

	comparison, err := h.service.Compare(r.Context(), r.PathValue("case"), fromSeq, toSeq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comparison)
}

type justifyPayload struct {
	Justification string `json:"justification"`
}

func (h *Handler) handleJustify(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	changeID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid change id: %v", err), http.StatusBadRequest)
		return
	}

	var payload justifyPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	change, err := h.service.Justify(r.Context(), changeID, payload.Justification, actor.ID, actor.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, change)
}

func parseSequence(raw string) (int64, error) {
	sequence, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || sequence < 1 {
		return 0, fmt.Errorf("invalid sequence number %q", raw)
	}
	return sequence, nil
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrSequenceConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrMissingJustification):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrClassification):
		status = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
