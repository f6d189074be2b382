package session_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/frahmantamala/trading-panel/internal/core/events"
	"github.com/frahmantamala/trading-panel/internal/session"
	"github.com/frahmantamala/trading-panel/internal/transport"
	"github.com/frahmantamala/trading-panel/internal/upstream"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Handler", func() {
	var router chi.Router

	BeforeEach(func() {
		auth := &MockAuthenticator{result: &upstream.LoginResult{
			User:        upstream.UserPayload{ID: "7", Name: "Ana"},
			Token:       "upstream-token",
			TokenExpiry: upstream.Timestamp{Time: time.Now().Add(time.Hour)},
		}}
		svc := session.NewService(
			session.NewStore(session.NewMemoryRepository()),
			session.NewTokenService("0123456789abcdef0123456789abcdef", time.Hour),
			auth, events.NewEventBus(discardLogger()), discardLogger())
		h := session.NewHandler(transport.NewBaseHandler(discardLogger()), svc)

		router = chi.NewRouter()
		router.Post("/session/login", h.Login)
		router.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			r.Get("/session/me", h.Me)
			r.Post("/session/logout", h.Logout)
		})
	})

	do := func(method, target, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req.WithContext(context.Background()))
		return rec
	}

	It("logs in, resolves the session, and logs out", func() {
		rec := do(http.MethodPost, "/session/login", "", `{"email":"ana@example.com","password":"secret"}`)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var login session.LoginResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &login)).To(Succeed())
		Expect(rec.Body.String()).NotTo(ContainSubstring("upstream-token"))

		rec = do(http.MethodGet, "/session/me", login.Token, "")
		Expect(rec.Code).To(Equal(http.StatusOK))
		var me session.Session
		Expect(json.Unmarshal(rec.Body.Bytes(), &me)).To(Succeed())
		Expect(me.User.Name).To(Equal("Ana"))

		Expect(do(http.MethodPost, "/session/logout", login.Token, "").Code).To(Equal(http.StatusNoContent))
		Expect(do(http.MethodGet, "/session/me", login.Token, "").Code).To(Equal(http.StatusUnauthorized))
	})

	It("rejects malformed bodies", func() {
		Expect(do(http.MethodPost, "/session/login", "", `{"email":`).Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects missing credentials with a validation error", func() {
		Expect(do(http.MethodPost, "/session/login", "", `{"email":""}`).Code).To(Equal(http.StatusBadRequest))
	})

	It("rejects requests without a token", func() {
		Expect(do(http.MethodGet, "/session/me", "", "").Code).To(Equal(http.StatusUnauthorized))
	})
})
