package permission_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/frahmantamala/trading-panel/internal/permission"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type subjectKey struct{}

func resolveFromContext(ctx context.Context) (permission.Subject, bool) {
	s, ok := ctx.Value(subjectKey{}).(permission.Subject)
	return s, ok
}

var _ = Describe("Authorization", func() {
	var (
		authz   *permission.Authorization
		router  chi.Router
		subject *permission.Subject
	)

	BeforeEach(func() {
		authz = permission.NewAuthorization(resolveFromContext, slog.New(slog.NewTextHandler(io.Discard, nil)))
		subject = &permission.Subject{
			UserID:       "7",
			ButtonGrants: permission.Grants{active("StateCreate", "7")},
		}

		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if subject != nil {
					r = r.WithContext(context.WithValue(r.Context(), subjectKey{}, *subject))
				}
				next.ServeHTTP(w, r)
			})
		})
		router.With(authz.RequireAction("StateCreate")).Post("/states", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		router.With(authz.RequireAction("SchemeCreate")).Post("/schemes", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		router.Get("/permissions/{action}", authz.GetDecision)
		router.Get("/permissions", authz.ListAllowed)
	})

	serve := func(method, target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
		return rec
	}

	It("passes requests holding the action", func() {
		Expect(serve(http.MethodPost, "/states").Code).To(Equal(http.StatusNoContent))
	})

	It("forbids requests missing the action", func() {
		Expect(serve(http.MethodPost, "/schemes").Code).To(Equal(http.StatusForbidden))
	})

	It("rejects requests without a subject", func() {
		subject = nil
		Expect(serve(http.MethodPost, "/states").Code).To(Equal(http.StatusUnauthorized))
	})

	It("reports a single decision", func() {
		rec := serve(http.MethodGet, "/permissions/StateCreate")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body permission.DecisionResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body).To(Equal(permission.DecisionResponse{Action: "StateCreate", Allowed: true}))
	})

	It("lists the allowed subset", func() {
		rec := serve(http.MethodGet, "/permissions?action=SchemeCreate&action=StateCreate")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body permission.DecisionsResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Allowed).To(Equal([]string{"StateCreate"}))
	})
})
