package permission

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/transport"
	"github.com/go-chi/chi"
)

// Subject is the acting user together with the grants loaded at login.
type Subject struct {
	UserID       string
	ButtonGrants Grants
	PageGrants   Grants
}

// SubjectResolver extracts the acting subject from a request context.
type SubjectResolver func(ctx context.Context) (Subject, bool)

type Authorization struct {
	*transport.BaseHandler
	resolve SubjectResolver
}

func NewAuthorization(resolve SubjectResolver, logger *slog.Logger) *Authorization {
	return &Authorization{
		BaseHandler: transport.NewBaseHandler(logger),
		resolve:     resolve,
	}
}

// Subject returns the resolved subject for the request context.
func (a *Authorization) Subject(ctx context.Context) (Subject, bool) {
	if a.resolve == nil {
		return Subject{}, false
	}
	return a.resolve(ctx)
}

// Can reports whether the subject in ctx holds the button action.
func (a *Authorization) Can(ctx context.Context, action string) bool {
	subject, ok := a.Subject(ctx)
	if !ok {
		return false
	}
	return CanAct(subject.UserID, action, subject.ButtonGrants)
}

// RequireAction gates a route on a button grant.
func (a *Authorization) RequireAction(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := a.Subject(r.Context())
			if !ok {
				a.Logger.WarnContext(r.Context(), "authorization check failed: no session in context")
				a.WriteAppError(w, internal.ErrSessionNotFound)
				return
			}

			if !CanAct(subject.UserID, action, subject.ButtonGrants) {
				a.Logger.WarnContext(r.Context(), "access denied: missing action grant",
					"user_id", subject.UserID,
					"required_action", action)
				a.WriteAppError(w, internal.ErrPermissionDenied)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type DecisionResponse struct {
	Action  string `json:"action"`
	Allowed bool   `json:"allowed"`
}

type DecisionsResponse struct {
	Allowed []string `json:"allowed"`
}

// GetDecision handles GET /permissions/{action}.
func (a *Authorization) GetDecision(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	a.WriteJSON(w, http.StatusOK, DecisionResponse{
		Action:  action,
		Allowed: a.Can(r.Context(), action),
	})
}

// ListAllowed handles GET /permissions?action=a&action=b, answering which of
// the requested button actions the user holds.
func (a *Authorization) ListAllowed(w http.ResponseWriter, r *http.Request) {
	subject, ok := a.Subject(r.Context())
	if !ok {
		a.WriteAppError(w, internal.ErrSessionNotFound)
		return
	}
	actions := r.URL.Query()["action"]
	a.WriteJSON(w, http.StatusOK, DecisionsResponse{
		Allowed: Allowed(subject.UserID, actions, subject.ButtonGrants),
	})
}
