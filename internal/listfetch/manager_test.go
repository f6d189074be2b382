package listfetch_test

import (
	"context"
	"time"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/core/events"
	"github.com/frahmantamala/trading-panel/internal/listfetch"
	"github.com/frahmantamala/trading-panel/internal/permission"
	"github.com/frahmantamala/trading-panel/internal/session"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Manager", func() {
	var (
		loader  *FakeLoader
		cache   *listfetch.Cache
		manager *listfetch.Manager
		source  listfetch.Source
		ctx     context.Context
	)

	viewer := func(id string, expiresAt time.Time) session.Session {
		return session.Session{
			ID:   id,
			User: session.User{ID: "7", Token: "tok-" + id, TokenExpiresAt: expiresAt},
			PageGrants: permission.Grants{{
				Page: "State", URL: "master/state", UserIDs: permission.UserIDs{"7"}, Status: permission.StatusActive,
			}},
		}
	}

	BeforeEach(func() {
		loader = NewFakeLoader()
		cache = listfetch.NewCache(time.Minute, discardLogger())
		source = listfetch.Source{Tag: "state", Path: "/api/panel-fetch-state-list", Page: "State", PageURL: "/master/state"}
		manager = listfetch.NewManager(loader, cache, listfetch.Options{FetchTimeout: time.Second, PageSize: 10}, discardLogger())
		ctx = context.Background()
	})

	It("needs the page grant of the list", func() {
		sess := viewer("s1", time.Time{})
		sess.PageGrants = nil

		_, _, err := manager.Open(sess, source)
		Expect(err).To(Equal(internal.ErrPermissionDenied))
	})

	It("stops reloading the views of a session once its token lapsed", func() {
		id, view, err := manager.Open(viewer("s1", time.Now().Add(time.Minute)), source)
		Expect(err).NotTo(HaveOccurred())
		Expect(view.Await(ctx)).To(Succeed())
		Expect(loader.Calls()).To(HaveLen(1))

		Expect(manager.Sweep(time.Now().Add(2 * time.Minute))).To(Equal(1))
		_, err = manager.Get("s1", id)
		Expect(err).To(Equal(internal.ErrViewNotFound))

		for i := 0; i < 5; i++ {
			cache.Invalidate("state")
		}
		Consistently(func() int { return len(loader.Calls()) }, 100*time.Millisecond).Should(Equal(1))
	})

	It("releases the views of a session when it ends", func() {
		bus := events.NewEventBus(discardLogger())
		manager.Attach(bus)
		_, view, err := manager.Open(viewer("s1", time.Time{}), source)
		Expect(err).NotTo(HaveOccurred())
		Expect(view.Await(ctx)).To(Succeed())

		Expect(bus.PublishSync(ctx, events.NewSessionEnded("s1", "7"))).To(Succeed())

		Expect(manager.Len()).To(BeZero())
	})
})
