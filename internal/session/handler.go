package session

import (
	"context"
	"net/http"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/transport"
	"github.com/frahmantamala/trading-panel/pkg/logger"
)

type ServiceAPI interface {
	Login(ctx context.Context, dto LoginDTO) (*LoginResponse, error)
	Logout(ctx context.Context, sess Session) error
	Authenticate(ctx context.Context, token string) (Session, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, svc ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     svc,
	}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := h.DecodeJSON(r, &dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.Service.Login(r.Context(), dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	sess, ok := FromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrSessionNotFound)
		return
	}

	if err := h.Service.Logout(r.Context(), sess); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me returns the caller's session.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	sess, ok := FromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrSessionNotFound)
		return
	}
	h.WriteJSON(w, http.StatusOK, sess)
}

// AuthMiddleware resolves the bearer token to a live session and puts it on
// the request context.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		sess, err := h.Service.Authenticate(r.Context(), token)
		if err != nil {
			h.HandleServiceError(w, err)
			return
		}

		ctx := WithSession(r.Context(), sess)
		ctx = logger.With(ctx, "session_id", sess.ID, "user_id", sess.User.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
