// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

//go:build integration

package postgres_test

import (
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/chms/chms/internal/auth"
	"github.com/chms/chms/internal/auth/postgres"
)

var _ = Describe("Repositories", func() {
	var (
		identities *postgres.IdentityRepository
		sessions   *postgres.SessionRepository
		audits     *postgres.AuditRepository
		now        time.Time
	)

	BeforeEach(func(ctx SpecContext) {
		resetTables(ctx)
		identities = postgres.NewIdentityRepository(pool)
		sessions = postgres.NewSessionRepository(pool)
		audits = postgres.NewAuditRepository(pool)
		now = time.Now().UTC().Truncate(time.Microsecond)
	})

	newIdentity := func(ctx SpecContext, email string, role auth.Role) *auth.Identity {
		identity, err := auth.NewIdentity(email, "Test User", "0700000000", "$2a$10$hash", role)
		Expect(err).NotTo(HaveOccurred())
		Expect(identities.Create(ctx, identity)).To(Succeed())
		return identity
	}

	Describe("IdentityRepository", func() {
		It("finds identities by email regardless of case", func(ctx SpecContext) {
			created := newIdentity(ctx, "Jane.Doe@Example.com", auth.RoleMother)

			found, err := identities.FindByEmail(ctx, "jane.doe@example.COM")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).NotTo(BeNil())
			Expect(found.ID).To(Equal(created.ID))
			Expect(found.Email).To(Equal("Jane.Doe@Example.com"))
			Expect(found.Role).To(Equal(auth.RoleMother))
		})

		It("returns nil for unknown email and id", func(ctx SpecContext) {
			found, err := identities.FindByEmail(ctx, "ghost@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())

			found, err = identities.FindByID(ctx, ulid.Make())
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeNil())
		})

		It("rejects emails that differ only by case", func(ctx SpecContext) {
			newIdentity(ctx, "dup@example.com", auth.RoleMother)

			dup, err := auth.NewIdentity("DUP@example.com", "Other", "", "$2a$10$hash", auth.RoleDoctor)
			Expect(err).NotTo(HaveOccurred())
			err = identities.Create(ctx, dup)
			Expect(errors.Is(err, auth.ErrDuplicateEmail)).To(BeTrue())
		})

		It("records last login and password rehash", func(ctx SpecContext) {
			identity := newIdentity(ctx, "a@example.com", auth.RoleDoctor)

			ok, err := identities.UpdateLastLogin(ctx, identity.ID, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(identities.UpdatePasswordHash(ctx, identity.ID, "$2a$12$newer")).To(Succeed())

			found, err := identities.FindByID(ctx, identity.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.LastLogin).NotTo(BeNil())
			Expect(found.LastLogin.Equal(now)).To(BeTrue())
			Expect(found.PasswordHash).To(Equal("$2a$12$newer"))
		})

		It("lists by role and toggles active", func(ctx SpecContext) {
			mother := newIdentity(ctx, "b@example.com", auth.RoleMother)
			newIdentity(ctx, "a@example.com", auth.RoleDoctor)

			all, err := identities.List(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(2))
			Expect(all[0].Email).To(Equal("a@example.com"))

			role := auth.RoleMother
			mothers, err := identities.List(ctx, &role)
			Expect(err).NotTo(HaveOccurred())
			Expect(mothers).To(HaveLen(1))

			ok, err := identities.SetActive(ctx, mother.ID, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			found, err := identities.FindByID(ctx, mother.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(found.Active).To(BeFalse())
		})
	})

	Describe("SessionRepository", func() {
		var session auth.Session

		BeforeEach(func(ctx SpecContext) {
			identity := newIdentity(ctx, "s@example.com", auth.RoleMother)
			_, hash, err := auth.GenerateSessionToken()
			Expect(err).NotTo(HaveOccurred())
			session, err = auth.NewSession(identity, hash, now, 30*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions.Create(ctx, session)).To(Succeed())
		})

		It("round-trips a session", func(ctx SpecContext) {
			got, err := sessions.Get(ctx, session.TokenHash)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.IdentityID).To(Equal(session.IdentityID))
			Expect(got.ExpiresAt.Equal(session.ExpiresAt)).To(BeTrue())
		})

		It("slides the deadline forward but never back", func(ctx SpecContext) {
			touched, err := sessions.Touch(ctx, session.TokenHash, now.Add(10*time.Minute), 30*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(touched.ExpiresAt.Equal(now.Add(40 * time.Minute))).To(BeTrue())

			stale, err := sessions.Touch(ctx, session.TokenHash, now.Add(5*time.Minute), 30*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(stale.ExpiresAt.Equal(now.Add(40 * time.Minute))).To(BeTrue())
		})

		It("refuses to touch an expired session", func(ctx SpecContext) {
			_, err := sessions.Touch(ctx, session.TokenHash, now.Add(31*time.Minute), 30*time.Minute)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})

		It("keeps the latest deadline under concurrent touches", func(ctx SpecContext) {
			var wg sync.WaitGroup
			for i := 1; i <= 20; i++ {
				wg.Add(1)
				go func(offset int) {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := sessions.Touch(ctx, session.TokenHash, now.Add(time.Duration(offset)*time.Second), 30*time.Minute)
					Expect(err).NotTo(HaveOccurred())
				}(i)
			}
			wg.Wait()

			got, err := sessions.Get(ctx, session.TokenHash)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ExpiresAt.Equal(now.Add(20*time.Second + 30*time.Minute))).To(BeTrue())
		})

		It("deletes idempotently, by identity and by expiry", func(ctx SpecContext) {
			Expect(sessions.Delete(ctx, "unknown")).To(Succeed())

			n, err := sessions.DeleteExpired(ctx, now.Add(time.Minute))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			n, err = sessions.DeleteByIdentity(ctx, session.IdentityID)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))

			_, err = sessions.Get(ctx, session.TokenHash)
			Expect(errors.Is(err, auth.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("AuditRepository", func() {
		It("lists newest first with filters", func(ctx SpecContext) {
			actor := newIdentity(ctx, "admin@example.com", auth.RoleAdmin)
			actorID := actor.ID

			for i, action := range []string{auth.ActionLogin, auth.ActionLogout, auth.ActionLogin} {
				event := auth.NewAuditEvent(ctx, action, &actorID, "entry")
				event.CreatedAt = now.Add(time.Duration(i) * time.Second)
				Expect(audits.Record(ctx, event)).To(Succeed())
			}
			Expect(audits.Record(ctx, auth.NewAuditEvent(ctx, auth.ActionRegister, nil, "anonymous"))).To(Succeed())

			logins, err := audits.List(ctx, auth.AuditFilter{Action: auth.ActionLogin})
			Expect(err).NotTo(HaveOccurred())
			Expect(logins).To(HaveLen(2))
			Expect(logins[0].CreatedAt.After(logins[1].CreatedAt)).To(BeTrue())

			byActor, err := audits.List(ctx, auth.AuditFilter{ActorID: &actorID, Limit: 2, Offset: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(byActor).To(HaveLen(2))
			for _, e := range byActor {
				Expect(e.ActorID).NotTo(BeNil())
				Expect(*e.ActorID).To(Equal(actorID))
			}
		})
	})
})
