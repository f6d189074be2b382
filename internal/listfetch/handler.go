package listfetch

import (
	"net/http"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/session"
	"github.com/frahmantamala/trading-panel/internal/transport"
	"github.com/go-chi/chi"
)

type SourceLookup interface {
	ListSource(slug string) (Source, bool)
}

// QueryRequest changes what a view asks for; absent fields stay as they are.
type QueryRequest struct {
	PageIndex *int    `json:"page_index,omitempty"`
	PageSize  *int    `json:"page_size,omitempty"`
	Search    *string `json:"search,omitempty"`
	// Flush applies the search immediately instead of after the debounce window.
	Flush bool `json:"flush,omitempty"`
}

type Response struct {
	ID string `json:"id"`
	State
	Pending bool        `json:"search_pending"`
	Summary interface{} `json:"summary,omitempty"`
}

type Handler struct {
	*transport.BaseHandler
	Manager *Manager
	Sources SourceLookup
}

func NewHandler(baseHandler *transport.BaseHandler, manager *Manager, sources SourceLookup) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Manager:     manager,
		Sources:     sources,
	}
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, id string, v *View) {
	if err := v.Await(r.Context()); err != nil {
		h.Logger.WarnContext(r.Context(), "list view: request ended before load finished", "view_id", id)
	}

	resp := Response{ID: id, State: v.State(), Pending: v.SearchPending()}
	if v.Source.Summarize != nil && !resp.IsError && !resp.IsLoading {
		summary, err := v.Source.Summarize(resp.Rows)
		if err != nil {
			h.Logger.WarnContext(r.Context(), "list view: summary failed", "view_id", id, "error", err)
		} else {
			resp.Summary = summary
		}
	}
	h.WriteJSON(w, status, resp)
}

// Open handles POST /entities/{entity}/views.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrSessionNotFound)
		return
	}
	src, ok := h.Sources.ListSource(chi.URLParam(r, "entity"))
	if !ok {
		h.WriteAppError(w, internal.ErrEntityNotFound)
		return
	}

	id, v, err := h.Manager.Open(sess, src)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.respond(w, r, http.StatusCreated, id, v)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request) (string, *View, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrSessionNotFound)
		return "", nil, false
	}
	id := chi.URLParam(r, "id")
	v, err := h.Manager.Get(sess.ID, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return "", nil, false
	}
	return id, v, true
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, v, ok := h.view(w, r)
	if !ok {
		return
	}
	h.respond(w, r, http.StatusOK, id, v)
}

// Update handles PATCH /views/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, v, ok := h.view(w, r)
	if !ok {
		return
	}

	var req QueryRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PageIndex != nil && *req.PageIndex < 0 {
		h.WriteAppError(w, internal.NewValidationFieldError("page_index", "page_index must not be negative", internal.ErrCodeValidationFailed))
		return
	}
	if req.PageSize != nil && *req.PageSize <= 0 {
		h.WriteAppError(w, internal.NewValidationFieldError("page_size", "page_size must be positive", internal.ErrCodeValidationFailed))
		return
	}

	if req.PageSize != nil {
		v.SetPageSize(*req.PageSize)
	}
	if req.PageIndex != nil {
		v.SetPage(*req.PageIndex)
	}
	if req.Search != nil {
		v.SetSearch(*req.Search)
	}
	if req.Flush {
		v.FlushSearch()
	}
	h.respond(w, r, http.StatusOK, id, v)
}

func (h *Handler) Refetch(w http.ResponseWriter, r *http.Request) {
	id, v, ok := h.view(w, r)
	if !ok {
		return
	}
	v.Refetch()
	h.respond(w, r, http.StatusOK, id, v)
}

func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrSessionNotFound)
		return
	}
	if err := h.Manager.Discard(sess.ID, chi.URLParam(r, "id")); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
