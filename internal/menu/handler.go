package menu

import (
	"net/http"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/permission"
	"github.com/frahmantamala/trading-panel/internal/transport"
)

type Response struct {
	Items []Item `json:"items"`
}

type Handler struct {
	*transport.BaseHandler
	items   []Item
	resolve permission.SubjectResolver
}

func NewHandler(baseHandler *transport.BaseHandler, items []Item, resolve permission.SubjectResolver) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		items:       items,
		resolve:     resolve,
	}
}

// GetMenu returns the navigation tree filtered by the caller's page grants.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	subject, ok := h.resolve(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrSessionNotFound)
		return
	}

	h.WriteJSON(w, http.StatusOK, Response{
		Items: Filter(h.items, subject.PageGrants, subject.UserID),
	})
}
