package form_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/catalog"
	"github.com/frahmantamala/trading-panel/internal/form"
	"github.com/frahmantamala/trading-panel/internal/permission"
	"github.com/frahmantamala/trading-panel/internal/session"
	"github.com/frahmantamala/trading-panel/internal/transport"
	"github.com/frahmantamala/trading-panel/internal/upstream"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func buttonGrant(action string, userIDs ...string) permission.Grant {
	return permission.Grant{Action: action, UserIDs: userIDs, Status: permission.StatusActive}
}

func testSession(id string, grants ...permission.Grant) session.Session {
	return session.Session{
		ID:           id,
		User:         session.User{ID: "7", Name: "Asha", Token: "tok"},
		ButtonGrants: grants,
	}
}

var _ = Describe("Manager", func() {
	var (
		backend *FakeBackend
		manager *form.Manager
		entity  *form.Entity
	)

	BeforeEach(func() {
		backend = &FakeBackend{record: map[string]json.RawMessage{"state_name": raw(`"Goa"`)}}
		manager = form.NewManager(backend, &RecordingPublisher{}, time.Second, discardLogger())
		entity = catalog.State().Form
	})

	It("needs the create grant to open a create form", func() {
		_, _, err := manager.Open(testSession("s1", buttonGrant("StateEdit", "7")), entity, form.ModeCreate, "")
		Expect(err).To(Equal(internal.ErrPermissionDenied))

		id, c, err := manager.Open(testSession("s1", buttonGrant("StateCreate", "7")), entity, form.ModeCreate, "")
		Expect(err).NotTo(HaveOccurred())
		Expect(id).NotTo(BeEmpty())
		Expect(c.Phase()).To(Equal(form.PhaseReady))
	})

	It("needs the edit grant and a record id to open an edit form", func() {
		sess := testSession("s1", buttonGrant("StateEdit", "7"))

		_, _, err := manager.Open(sess, entity, form.ModeEdit, "")
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Details.(internal.ValidationErrors).Fields()).To(Equal([]string{"id"}))

		_, c, err := manager.Open(sess, entity, form.ModeEdit, "3")
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Await(context.Background())).To(Succeed())
		Expect(c.View().Values["state_name"]).To(Equal("Goa"))
	})

	It("ignores grants that name another user", func() {
		_, _, err := manager.Open(testSession("s1", buttonGrant("StateCreate", "8")), entity, form.ModeCreate, "")
		Expect(err).To(Equal(internal.ErrPermissionDenied))
	})

	It("rejects unknown modes", func() {
		_, _, err := manager.Open(testSession("s1", buttonGrant("StateCreate", "7")), entity, form.Mode("delete"), "")
		appErr, ok := internal.IsAppError(err)
		Expect(ok).To(BeTrue())
		Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
	})

	It("keeps forms private to the session that opened them", func() {
		id, _, err := manager.Open(testSession("s1", buttonGrant("StateCreate", "7")), entity, form.ModeCreate, "")
		Expect(err).NotTo(HaveOccurred())

		_, err = manager.Get("s2", id)
		Expect(err).To(Equal(internal.ErrFormNotFound))
		Expect(manager.Discard("s2", id)).To(Equal(internal.ErrFormNotFound))

		Expect(manager.Discard("s1", id)).To(Succeed())
		_, err = manager.Get("s1", id)
		Expect(err).To(Equal(internal.ErrFormNotFound))
	})

	It("closes the forms of a session once its token lapses", func() {
		expiring := testSession("s1", buttonGrant("StateCreate", "7"))
		expiring.User.TokenExpiresAt = time.Now().Add(time.Minute)
		lasting := testSession("s2", buttonGrant("StateCreate", "7"))

		id, c, err := manager.Open(expiring, entity, form.ModeCreate, "")
		Expect(err).NotTo(HaveOccurred())
		otherID, _, err := manager.Open(lasting, entity, form.ModeCreate, "")
		Expect(err).NotTo(HaveOccurred())

		Expect(manager.Sweep(time.Now())).To(BeZero())
		Expect(manager.Sweep(time.Now().Add(2 * time.Minute))).To(Equal(1))

		Expect(c.Phase()).To(Equal(form.PhaseClosed))
		_, err = manager.Get("s1", id)
		Expect(err).To(Equal(internal.ErrFormNotFound))
		_, err = manager.Get("s2", otherID)
		Expect(err).NotTo(HaveOccurred())
	})

	It("only settles forms that have closed", func() {
		sess := testSession("s1", buttonGrant("StateCreate", "7"))
		id, c, err := manager.Open(sess, entity, form.ModeCreate, "")
		Expect(err).NotTo(HaveOccurred())

		Expect(manager.Settle("s1", id, c)).To(BeFalse())
		Expect(manager.Len()).To(Equal(1))

		c.Close()
		Expect(manager.Settle("s1", id, c)).To(BeTrue())
		Expect(manager.Len()).To(BeZero())
	})
})

var _ = Describe("Handler", func() {
	var (
		backend *FakeBackend
		router  chi.Router
		sess    session.Session
	)

	BeforeEach(func() {
		backend = &FakeBackend{}
		manager := form.NewManager(backend, &RecordingPublisher{}, time.Second, discardLogger())
		h := form.NewHandler(transport.NewBaseHandler(discardLogger()), manager, catalog.Default())
		sess = testSession("s1", buttonGrant("ItemBoxCreate", "7"))

		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), sess)))
			})
		})
		router.Post("/entities/{entity}/forms", h.Open)
		router.Get("/forms/{id}", h.Get)
		router.Patch("/forms/{id}", h.Update)
		router.Post("/forms/{id}/submit", h.Submit)
		router.Delete("/forms/{id}", h.Discard)
	})

	call := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	decode := func(rec *httptest.ResponseRecorder) form.Response {
		var resp form.Response
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		return resp
	}

	open := func() string {
		rec := call(http.MethodPost, "/entities/item-box/forms", form.OpenRequest{Mode: form.ModeCreate})
		Expect(rec.Code).To(Equal(http.StatusCreated))
		return decode(rec).ID
	}

	It("opens a create form with defaults", func() {
		rec := call(http.MethodPost, "/entities/item-box/forms", form.OpenRequest{Mode: form.ModeCreate})

		Expect(rec.Code).To(Equal(http.StatusCreated))
		resp := decode(rec)
		Expect(resp.Phase).To(Equal(form.PhaseReady))
		Expect(resp.Values).To(HaveKeyWithValue("item_box_status", "Active"))
		Expect(resp.Missing).To(Equal([]string{"Item Box", "Weight"}))
		Expect(resp.CanSubmit).To(BeFalse())
	})

	It("answers 404 for entities without a form", func() {
		rec := call(http.MethodPost, "/entities/invoice/forms", form.OpenRequest{Mode: form.ModeCreate})
		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("answers 403 without the button grant", func() {
		rec := call(http.MethodPost, "/entities/item-box/forms", form.OpenRequest{Mode: form.ModeEdit, ID: "1"})
		Expect(rec.Code).To(Equal(http.StatusForbidden))
	})

	It("reports rejected keystrokes and keeps the accepted ones", func() {
		id := open()
		keys := "12a.5"

		rec := call(http.MethodPatch, "/forms/"+id, form.UpdateRequest{Field: "item_weight", Keystrokes: &keys})

		Expect(rec.Code).To(Equal(http.StatusOK))
		resp := decode(rec)
		Expect(resp.Rejected).To(Equal([]string{"a"}))
		Expect(resp.Values["item_weight"]).To(Equal("12.5"))
	})

	It("fails a whole value the field does not accept", func() {
		id := open()
		value := "12x4"

		rec := call(http.MethodPatch, "/forms/"+id, form.UpdateRequest{Field: "item_box", Value: &value})

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("submits a filled form and closes it", func() {
		id := open()
		box, weight := "10X10", "3"
		Expect(call(http.MethodPatch, "/forms/"+id, form.UpdateRequest{Field: "item_box", Value: &box}).Code).To(Equal(http.StatusOK))
		Expect(call(http.MethodPatch, "/forms/"+id, form.UpdateRequest{Field: "item_weight", Value: &weight}).Code).To(Equal(http.StatusOK))

		rec := call(http.MethodPost, "/forms/"+id+"/submit", nil)

		Expect(rec.Code).To(Equal(http.StatusOK))
		resp := decode(rec)
		Expect(resp.Phase).To(Equal(form.PhaseClosed))
		Expect(resp.Message).To(Equal("Saved successfully"))
		Expect(backend.Creates()).To(HaveLen(1))
	})

	It("answers 400 with the missing fields when submitting too early", func() {
		id := open()

		rec := call(http.MethodPost, "/forms/"+id+"/submit", nil)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(rec.Body.String()).To(ContainSubstring("Item Box is required"))
		Expect(backend.Creates()).To(BeEmpty())
	})

	It("drops a form after returning its saved state", func() {
		id := open()
		box, weight := "10X10", "3"
		Expect(call(http.MethodPatch, "/forms/"+id, form.UpdateRequest{Field: "item_box", Value: &box}).Code).To(Equal(http.StatusOK))
		Expect(call(http.MethodPatch, "/forms/"+id, form.UpdateRequest{Field: "item_weight", Value: &weight}).Code).To(Equal(http.StatusOK))

		Expect(call(http.MethodPost, "/forms/"+id+"/submit", nil).Code).To(Equal(http.StatusOK))

		Expect(call(http.MethodGet, "/forms/"+id, nil).Code).To(Equal(http.StatusNotFound))
	})

	It("reports a failed record load once and then drops the form", func() {
		backend.fetchErr = &upstream.ResponseError{Code: 404, Msg: "Item box not found"}
		sess = testSession("s1", buttonGrant("ItemBoxEdit", "7"))

		rec := call(http.MethodPost, "/entities/item-box/forms", form.OpenRequest{Mode: form.ModeEdit, ID: "9"})
		Expect(rec.Code).To(Equal(http.StatusCreated))
		id := decode(rec).ID

		var last form.Response
		Eventually(func() form.Phase {
			rec := call(http.MethodGet, "/forms/"+id, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			last = decode(rec)
			return last.Phase
		}).Should(Equal(form.PhaseClosed))
		Expect(last.Error).To(Equal("Item box not found"))

		Expect(call(http.MethodGet, "/forms/"+id, nil).Code).To(Equal(http.StatusNotFound))
	})

	It("discards a form", func() {
		id := open()

		Expect(call(http.MethodDelete, "/forms/"+id, nil).Code).To(Equal(http.StatusNoContent))
		Expect(call(http.MethodGet, "/forms/"+id, nil).Code).To(Equal(http.StatusNotFound))
	})
})
