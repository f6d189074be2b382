package form

import (
	"net/http"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/session"
	"github.com/frahmantamala/trading-panel/internal/transport"
	"github.com/go-chi/chi"
)

type EntityLookup interface {
	FormEntity(slug string) (*Entity, bool)
}

type OpenRequest struct {
	Mode Mode   `json:"mode"`
	ID   string `json:"id"`
}

// UpdateRequest sets a whole value, or types keystrokes one at a time.
type UpdateRequest struct {
	Field      string  `json:"field"`
	Value      *string `json:"value,omitempty"`
	Keystrokes *string `json:"keystrokes,omitempty"`
}

type Response struct {
	ID string `json:"id"`
	View
	Rejected []string `json:"rejected,omitempty"`
}

type Handler struct {
	*transport.BaseHandler
	Manager  *Manager
	Entities EntityLookup
}

func NewHandler(baseHandler *transport.BaseHandler, manager *Manager, entities EntityLookup) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Manager:     manager,
		Entities:    entities,
	}
}

// Open handles POST /entities/{entity}/forms. Edit forms are returned once the
// record is loaded, or closed with the load error.
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrSessionNotFound)
		return
	}
	entity, ok := h.Entities.FormEntity(chi.URLParam(r, "entity"))
	if !ok {
		h.WriteAppError(w, internal.ErrEntityNotFound)
		return
	}

	var req OpenRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, c, err := h.Manager.Open(sess, entity, req.Mode, req.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}
	if err := c.Await(r.Context()); err != nil {
		h.Logger.WarnContext(r.Context(), "form open: request ended before record loaded", "form_id", id)
	}

	h.WriteJSON(w, http.StatusCreated, Response{ID: id, View: c.View()})
}

func (h *Handler) controller(w http.ResponseWriter, r *http.Request) (session.Session, string, *Controller, bool) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrSessionNotFound)
		return session.Session{}, "", nil, false
	}
	id := chi.URLParam(r, "id")
	c, err := h.Manager.Get(sess.ID, id)
	if err != nil {
		h.HandleServiceError(w, err)
		return session.Session{}, "", nil, false
	}
	return sess, id, c, true
}

// respond writes the form's state. A form that has closed by itself is
// dropped once that final state is out.
func (h *Handler) respond(w http.ResponseWriter, sess session.Session, id string, c *Controller) {
	view := c.View()
	h.WriteJSON(w, http.StatusOK, Response{ID: id, View: view})
	if view.Phase == PhaseClosed {
		h.Manager.Settle(sess.ID, id, c)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, id, c, ok := h.controller(w, r)
	if !ok {
		return
	}
	h.respond(w, sess, id, c)
}

// Update handles PATCH /forms/{id}. Rejected keystrokes are reported and
// skipped; a rejected whole value fails the request.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	_, id, c, ok := h.controller(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp := Response{ID: id}
	switch {
	case req.Keystrokes != nil:
		for _, key := range *req.Keystrokes {
			if err := c.Type(req.Field, key); err != nil {
				if appErr, ok := internal.IsAppError(err); ok && appErr == ErrInputRejected {
					resp.Rejected = append(resp.Rejected, string(key))
					continue
				}
				h.HandleServiceError(w, err)
				return
			}
		}
	case req.Value != nil:
		if err := c.SetField(req.Field, *req.Value); err != nil {
			h.HandleServiceError(w, err)
			return
		}
	default:
		h.WriteError(w, http.StatusBadRequest, "value or keystrokes is required")
		return
	}

	resp.View = c.View()
	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sess, id, c, ok := h.controller(w, r)
	if !ok {
		return
	}

	if _, err := c.Submit(r.Context()); err != nil {
		h.HandleServiceError(w, err)
		return
	}
	h.respond(w, sess, id, c)
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
