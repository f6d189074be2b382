package form_test

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/catalog"
	"github.com/frahmantamala/trading-panel/internal/form"
	"github.com/frahmantamala/trading-panel/internal/upstream"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Controller", func() {
	var (
		backend   *FakeBackend
		publisher *RecordingPublisher
		ctx       context.Context
	)

	BeforeEach(func() {
		backend = &FakeBackend{}
		publisher = &RecordingPublisher{}
		ctx = context.Background()
	})

	newController := func(def catalog.Definition) *form.Controller {
		return form.NewController(def.Form, "tok", backend, publisher, time.Second, discardLogger())
	}

	openEdit := func(def catalog.Definition, id string) *form.Controller {
		c := newController(def)
		c.OpenEdit(id)
		Expect(c.Await(ctx)).To(Succeed())
		return c
	}

	Describe("required fields", func() {
		It("blocks a state with no name and never calls the backend", func() {
			c := newController(catalog.State())
			c.OpenCreate()
			Expect(c.SetField("state_name", "")).To(Succeed())
			Expect(c.SetField("state_no", "21")).To(Succeed())

			Expect(c.Missing()).To(Equal([]string{"State Name"}))
			Expect(c.CanSubmit()).To(BeFalse())

			_, err := c.Submit(ctx)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(internal.ErrorTypeValidation))
			details := appErr.Details.(internal.ValidationErrors)
			Expect(details.Fields()).To(Equal([]string{"state_name"}))
			Expect(details.Errors[0].Message).To(Equal("State Name is required"))

			Expect(backend.Creates()).To(BeEmpty())
			Expect(c.Phase()).To(Equal(form.PhaseReady))
		})

		It("reports every missing field together and trims strings", func() {
			c := newController(catalog.State())
			c.OpenCreate()
			Expect(c.SetField("state_name", "   ")).To(Succeed())

			Expect(c.Missing()).To(Equal([]string{"State Name", "State No"}))
		})

		It("requires the status only when editing a state", func() {
			backend.record = map[string]json.RawMessage{
				"state_name": raw(`"Gujarat"`), "state_no": raw(`24`), "state_status": raw(`null`),
			}
			c := openEdit(catalog.State(), "5")

			Expect(c.Missing()).To(Equal([]string{"Status"}))

			create := newController(catalog.State())
			create.OpenCreate()
			Expect(create.SetField("state_name", "Gujarat")).To(Succeed())
			Expect(create.SetField("state_no", "24")).To(Succeed())
			Expect(create.SetField("state_status", "")).To(Succeed())
			Expect(create.Missing()).To(BeEmpty())
		})
	})

	Describe("input filters", func() {
		It("rejects the letter in the weight keystrokes 1 2 a . 5", func() {
			c := newController(catalog.ItemBox())
			c.OpenCreate()

			for _, r := range "12a.5" {
				err := c.Type("item_weight", r)
				if r == 'a' {
					Expect(err).To(MatchError(form.ErrInputRejected))
				} else {
					Expect(err).NotTo(HaveOccurred())
				}
			}

			Expect(c.View().Values["item_weight"]).To(Equal("12.5"))
		})

		DescribeTable("field patterns",
			func(def catalog.Definition, field, value string, accepted bool) {
				c := newController(def)
				c.OpenCreate()
				err := c.SetField(field, value)
				if accepted {
					Expect(err).NotTo(HaveOccurred())
					Expect(c.View().Values[field]).To(Equal(value))
				} else {
					Expect(err).To(MatchError(form.ErrInputRejected))
					Expect(c.View().Values[field]).NotTo(Equal(value))
				}
			},
			Entry("box dimension", catalog.ItemBox(), "item_box", "10X20X5", true),
			Entry("lowercase separator", catalog.ItemBox(), "item_box", "10x20", false),
			Entry("weight with two points", catalog.ItemBox(), "item_weight", "1.2.3", false),
			Entry("tax with a point", catalog.Scheme(), "scheme_tax", "18.5", true),
			Entry("tax with a sign", catalog.Scheme(), "scheme_tax", "-1", false),
			Entry("state number digits", catalog.State(), "state_no", "007", true),
			Entry("state number letters", catalog.State(), "state_no", "7a", false),
			Entry("free text name", catalog.State(), "state_name", "Tamil Nadu", true),
		)

		It("rejects unknown fields", func() {
			c := newController(catalog.State())
			c.OpenCreate()
			Expect(c.SetField("nope", "x")).To(MatchError(form.ErrUnknownField))
		})

		It("refuses input while closed", func() {
			c := newController(catalog.State())
			Expect(c.SetField("state_name", "x")).To(Equal(form.ErrNotReady))
		})
	})

	Describe("dirty tracking", func() {
		BeforeEach(func() {
			backend.record = map[string]json.RawMessage{
				"scheme_name": raw(`"Gold"`), "scheme_tax": raw(`5`), "scheme_status": raw(`"Active"`), "ignored": raw(`1`),
			}
		})

		It("enables submit only while a field differs from the fetched record", func() {
			c := openEdit(catalog.Scheme(), "9")
			Expect(c.Phase()).To(Equal(form.PhaseReady))
			Expect(c.View().Values).To(Equal(map[string]string{"scheme_name": "Gold", "scheme_tax": "5", "scheme_status": "Active"}))
			Expect(c.IsDirty()).To(BeFalse())
			Expect(c.CanSubmit()).To(BeFalse())

			Expect(c.SetField("scheme_name", "Gold Plus")).To(Succeed())
			Expect(c.IsDirty()).To(BeTrue())
			Expect(c.CanSubmit()).To(BeTrue())

			Expect(c.SetField("scheme_name", "Gold")).To(Succeed())
			Expect(c.IsDirty()).To(BeFalse())
			Expect(c.CanSubmit()).To(BeFalse())
		})

		It("treats submitting an unchanged record as a no-op", func() {
			c := openEdit(catalog.Scheme(), "9")

			_, err := c.Submit(ctx)

			Expect(err).To(Equal(form.ErrNothingToSave))
			Expect(backend.Updates()).To(BeEmpty())
			Expect(c.Phase()).To(Equal(form.PhaseReady))
		})

		It("sends the changed record to the update endpoint", func() {
			c := openEdit(catalog.Scheme(), "9")
			Expect(c.SetField("scheme_tax", "012.50")).To(Succeed())

			_, err := c.Submit(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(backend.Updates()).To(HaveLen(1))
			Expect(backend.Updates()[0]).To(HaveKeyWithValue("scheme_tax", "12.5"))
			Expect(publisher.Tags()).To(Equal([]string{"scheme"}))
		})

		It("is never dirty in create mode", func() {
			c := newController(catalog.Scheme())
			c.OpenCreate()
			Expect(c.SetField("scheme_name", "x")).To(Succeed())
			Expect(c.IsDirty()).To(BeFalse())
		})
	})

	Describe("submit", func() {
		fill := func(c *form.Controller) {
			Expect(c.SetField("item_box", "10X20")).To(Succeed())
			Expect(c.SetField("item_weight", "2.50")).To(Succeed())
		}

		It("invalidates the list and resets the form on success", func() {
			c := newController(catalog.ItemBox())
			c.OpenCreate()
			fill(c)

			result, err := c.Submit(ctx)

			Expect(err).NotTo(HaveOccurred())
			Expect(result.Code).To(Equal(200))
			Expect(backend.Creates()).To(Equal([]map[string]string{{
				"item_box": "10X20", "item_weight": "2.5", "item_box_status": "Active",
			}}))
			Expect(publisher.Tags()).To(Equal([]string{"item-box"}))

			view := c.View()
			Expect(view.Phase).To(Equal(form.PhaseClosed))
			Expect(view.Message).To(Equal("Saved successfully"))
			Expect(view.Values).To(Equal(map[string]string{"item_box": "", "item_weight": "", "item_box_status": "Active"}))
		})

		It("stays ready with the server message on an application error", func() {
			backend.submitErr = &upstream.ResponseError{Code: 409, Msg: "Item Box already exists"}
			c := newController(catalog.ItemBox())
			c.OpenCreate()
			fill(c)

			_, err := c.Submit(ctx)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeUpstreamRejected))
			view := c.View()
			Expect(view.Phase).To(Equal(form.PhaseReady))
			Expect(view.Error).To(Equal("Item Box already exists"))
			Expect(view.Values["item_box"]).To(Equal("10X20"))
			Expect(publisher.Tags()).To(BeEmpty())
		})

		It("stays ready with the generic message on a transport error", func() {
			backend.submitErr = fmt.Errorf("%w: timeout", upstream.ErrTransport)
			c := newController(catalog.ItemBox())
			c.OpenCreate()
			fill(c)

			_, err := c.Submit(ctx)

			Expect(err).To(HaveOccurred())
			Expect(c.View().Error).To(Equal(internal.GenericTransportMessage))
			Expect(c.Phase()).To(Equal(form.PhaseReady))
		})

		It("allows only one submit in flight", func() {
			backend.submitGate = make(chan struct{})
			c := newController(catalog.ItemBox())
			c.OpenCreate()
			fill(c)

			done := make(chan error, 1)
			go func() {
				_, err := c.Submit(ctx)
				done <- err
			}()
			Eventually(c.Phase).Should(Equal(form.PhaseSubmitting))

			_, err := c.Submit(ctx)
			Expect(err).To(Equal(form.ErrNotReady))
			Expect(c.SetField("item_box", "1")).To(Equal(form.ErrNotReady))

			close(backend.submitGate)
			Eventually(done).Should(Receive(BeNil()))
			Expect(backend.Creates()).To(HaveLen(1))
		})

		It("rejects a decimal field that is only a point", func() {
			c := newController(catalog.ItemBox())
			c.OpenCreate()
			Expect(c.SetField("item_box", "1X1")).To(Succeed())
			Expect(c.SetField("item_weight", ".")).To(Succeed())

			_, err := c.Submit(ctx)

			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Details.(internal.ValidationErrors).Fields()).To(Equal([]string{"item_weight"}))
			Expect(backend.Creates()).To(BeEmpty())
		})
	})

	Describe("late results", func() {
		It("closes the form when the record cannot be fetched", func() {
			backend.fetchErr = &upstream.ResponseError{Code: 404, Msg: "State not found"}

			c := openEdit(catalog.State(), "5")

			view := c.View()
			Expect(view.Phase).To(Equal(form.PhaseClosed))
			Expect(view.Error).To(Equal("State not found"))
		})

		It("ignores a record that arrives after the form closed", func() {
			backend.fetchGate = make(chan struct{})
			backend.record = map[string]json.RawMessage{"state_name": raw(`"Late"`)}
			c := newController(catalog.State())
			c.OpenEdit("5")
			c.Close()

			close(backend.fetchGate)
			Expect(c.Await(ctx)).To(Succeed())

			view := c.View()
			Expect(view.Phase).To(Equal(form.PhaseClosed))
			Expect(view.Values["state_name"]).To(BeEmpty())
		})

		It("ignores a record fetched for a previous opening", func() {
			backend.fetchGate = make(chan struct{})
			backend.record = map[string]json.RawMessage{"state_name": raw(`"Old"`)}
			c := newController(catalog.State())
			c.OpenEdit("5")
			c.OpenCreate()

			close(backend.fetchGate)
			Expect(c.Await(ctx)).To(Succeed())

			view := c.View()
			Expect(view.Mode).To(Equal(form.ModeCreate))
			Expect(view.Phase).To(Equal(form.PhaseReady))
			Expect(view.Values["state_name"]).To(BeEmpty())
		})

		It("keeps a closed form closed when its submit succeeds later, but still invalidates", func() {
			backend.submitGate = make(chan struct{})
			c := newController(catalog.State())
			c.OpenCreate()
			Expect(c.SetField("state_name", "Goa")).To(Succeed())
			Expect(c.SetField("state_no", "30")).To(Succeed())

			done := make(chan error, 1)
			go func() {
				_, err := c.Submit(ctx)
				done <- err
			}()
			Eventually(c.Phase).Should(Equal(form.PhaseSubmitting))
			c.Close()

			close(backend.submitGate)
			Eventually(done).Should(Receive(BeNil()))

			Expect(c.Phase()).To(Equal(form.PhaseClosed))
			Expect(c.View().Message).To(BeEmpty())
			Expect(publisher.Tags()).To(Equal([]string{"state"}))
		})
	})
})
