package session_test

import (
	"context"
	"time"

	"github.com/frahmantamala/trading-panel/internal"
	"github.com/frahmantamala/trading-panel/internal/permission"
	"github.com/frahmantamala/trading-panel/internal/session"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func sampleSession() session.Session {
	return session.Session{
		User: session.User{
			ID:             "7",
			Name:           "Ana",
			Token:          "upstream-token",
			TokenExpiresAt: time.Now().Add(time.Hour),
		},
		ButtonGrants: permission.Grants{{Action: "StateCreate", UserIDs: permission.UserIDs{"7"}, Status: permission.StatusActive}},
		PageGrants:   permission.Grants{{Page: "State", URL: "/master/state", UserIDs: permission.UserIDs{"7"}, Status: permission.StatusActive}},
	}
}

var _ = Describe("Store", func() {
	var (
		store *session.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		store = session.NewStore(session.NewMemoryRepository())
		ctx = context.Background()
	})

	It("stores a whole session on login and stamps a new version", func() {
		first, err := store.Login(ctx, sampleSession())
		Expect(err).NotTo(HaveOccurred())
		second, err := store.Login(ctx, sampleSession())
		Expect(err).NotTo(HaveOccurred())

		Expect(first.ID).NotTo(BeEmpty())
		Expect(second.ID).NotTo(Equal(first.ID))
		Expect(second.Version).To(BeNumerically(">", first.Version))
		Expect(store.Version()).To(Equal(second.Version))

		current, err := store.Current(ctx, first.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(current.User.Name).To(Equal("Ana"))
		Expect(current.ButtonGrants).To(HaveLen(1))
	})

	It("hands out copies that cannot mutate the stored record", func() {
		stored, err := store.Login(ctx, sampleSession())
		Expect(err).NotTo(HaveOccurred())

		copy1, err := store.Current(ctx, stored.ID)
		Expect(err).NotTo(HaveOccurred())
		copy1.User.Name = "Mallory"
		copy1.ButtonGrants[0].UserIDs[0] = "99"

		copy2, err := store.Current(ctx, stored.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(copy2.User.Name).To(Equal("Ana"))
		Expect(copy2.ButtonGrants[0].UserIDs).To(Equal(permission.UserIDs{"7"}))
	})

	It("removes the record on logout and bumps the version", func() {
		stored, err := store.Login(ctx, sampleSession())
		Expect(err).NotTo(HaveOccurred())
		before := store.Version()

		removed, err := store.Logout(ctx, stored.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(removed.ID).To(Equal(stored.ID))
		Expect(store.Version()).To(BeNumerically(">", before))

		_, err = store.Current(ctx, stored.ID)
		Expect(err).To(Equal(internal.ErrSessionNotFound))
	})

	It("reports expired sessions as expired", func() {
		sess := sampleSession()
		sess.User.TokenExpiresAt = time.Now().Add(-time.Minute)
		stored, err := store.Login(ctx, sess)
		Expect(err).NotTo(HaveOccurred())

		_, err = store.Current(ctx, stored.ID)
		Expect(err).To(Equal(internal.ErrTokenExpired))
	})

	It("rejects an empty id", func() {
		_, err := store.Current(ctx, "")
		Expect(err).To(Equal(internal.ErrSessionNotFound))
	})
})

var _ = Describe("TokenService", func() {
	const secret = "0123456789abcdef0123456789abcdef"

	It("round-trips the session id", func() {
		tokens := session.NewTokenService(secret, time.Hour)
		sess := sampleSession()
		sess.ID = "sess-1"

		signed, expiresAt, err := tokens.Issue(sess)
		Expect(err).NotTo(HaveOccurred())
		Expect(expiresAt).To(BeTemporally("<=", sess.User.TokenExpiresAt))

		claims, err := tokens.Parse(signed)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.SessionID).To(Equal("sess-1"))
		Expect(claims.Subject).To(Equal("7"))
	})

	It("caps the token lifetime at the upstream expiry", func() {
		tokens := session.NewTokenService(secret, 24*time.Hour)
		sess := sampleSession()
		sess.ID = "sess-1"

		_, expiresAt, err := tokens.Issue(sess)
		Expect(err).NotTo(HaveOccurred())
		Expect(expiresAt).To(Equal(sess.User.TokenExpiresAt))
	})

	It("rejects tokens signed with another secret", func() {
		sess := sampleSession()
		sess.ID = "sess-1"
		signed, _, err := session.NewTokenService("another-secret-another-secret-000", time.Hour).Issue(sess)
		Expect(err).NotTo(HaveOccurred())

		_, err = session.NewTokenService(secret, time.Hour).Parse(signed)
		Expect(err).To(Equal(internal.ErrInvalidToken))
	})

	It("reports expiry", func() {
		sess := sampleSession()
		sess.ID = "sess-1"
		sess.User.TokenExpiresAt = time.Now().Add(-time.Minute)
		signed, _, err := session.NewTokenService(secret, time.Hour).Issue(sess)
		Expect(err).NotTo(HaveOccurred())

		claims, err := session.NewTokenService(secret, time.Hour).Parse(signed)
		Expect(err).To(Equal(internal.ErrTokenExpired))
		Expect(claims.SessionID).To(Equal("sess-1"))
	})

	It("keeps the claims of an expired token with a bad signature to itself", func() {
		sess := sampleSession()
		sess.ID = "sess-1"
		sess.User.TokenExpiresAt = time.Now().Add(-time.Minute)
		signed, _, err := session.NewTokenService("another-secret-another-secret-000", time.Hour).Issue(sess)
		Expect(err).NotTo(HaveOccurred())

		claims, err := session.NewTokenService(secret, time.Hour).Parse(signed)
		Expect(err).To(Equal(internal.ErrInvalidToken))
		Expect(claims).To(BeNil())
	})

	It("rejects garbage", func() {
		_, err := session.NewTokenService(secret, time.Hour).Parse("not-a-token")
		Expect(err).To(Equal(internal.ErrInvalidToken))
	})
})

var _ = Describe("request context", func() {
	It("carries the session, its subject and the actor", func() {
		s := sampleSession()
		s.ID = "sess-1"

		ctx := session.WithSession(context.Background(), s)

		got, ok := session.FromContext(ctx)
		Expect(ok).To(BeTrue())
		Expect(got.ID).To(Equal("sess-1"))

		subject, ok := session.SubjectFromContext(ctx)
		Expect(ok).To(BeTrue())
		Expect(subject.UserID).To(Equal("7"))

		actor, ok := internal.ActorFromContext(ctx)
		Expect(ok).To(BeTrue())
		Expect(actor).To(Equal(internal.Actor{SessionID: "sess-1", UserID: "7"}))
		Expect(internal.LogAttrs(ctx)).To(Equal([]any{"session_id", "sess-1", "user_id", "7"}))
	})

	It("is empty without a session", func() {
		_, ok := session.FromContext(context.Background())
		Expect(ok).To(BeFalse())
		Expect(internal.LogAttrs(context.Background())).To(BeNil())
	})
})
