// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

//go:build integration

package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/chms/chms/internal/store"
)

var _ = Describe("Migrator", Ordered, func() {
	var migrator *store.Migrator

	BeforeAll(func() {
		var err error
		migrator, err = store.NewMigrator(connStr)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { Expect(migrator.Close()).To(Succeed()) })
	})

	It("starts empty with every migration pending", func() {
		st, err := migrator.Status()
		Expect(err).NotTo(HaveOccurred())
		Expect(st.Version).To(BeZero())
		Expect(st.Applied).To(BeEmpty())
		Expect(st.Pending).To(HaveLen(3))
	})

	It("applies, steps and rolls back", func() {
		Expect(migrator.Up()).To(Succeed())
		latest, dirty, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(dirty).To(BeFalse())
		Expect(latest).To(Equal(uint(3)))

		Expect(migrator.Steps(-1)).To(Succeed())
		v, _, err := migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(latest - 1))

		Expect(migrator.Down()).To(Succeed())
		v, _, err = migrator.Version()
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(BeZero())

		Expect(migrator.Up()).To(Succeed())
	})

	Describe("schema", func() {
		It("rejects a second identity whose email differs only by case", func(ctx SpecContext) {
			pool, err := store.Connect(ctx, connStr)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(pool.Close)

			insert := `INSERT INTO identities (id, email, password_hash, role) VALUES ($1, $2, 'x', 'MOTHER')`
			_, err = pool.Exec(ctx, insert, "01J000000000000000000000A1", "Case@Example.com")
			Expect(err).NotTo(HaveOccurred())
			_, err = pool.Exec(ctx, insert, "01J000000000000000000000A2", "case@example.COM")
			Expect(err).To(MatchError(ContainSubstring("identities_email_lower_idx")))
		})

		It("keeps audit rows append-only", func(ctx SpecContext) {
			pool, err := store.Connect(context.Background(), connStr)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(pool.Close)

			_, err = pool.Exec(ctx, `INSERT INTO audit_logs (id, action) VALUES ('01J000000000000000000000B1', 'LOGIN')`)
			Expect(err).NotTo(HaveOccurred())

			_, err = pool.Exec(ctx, `UPDATE audit_logs SET action = 'LOGOUT'`)
			Expect(err).To(MatchError(ContainSubstring("append-only")))
			_, err = pool.Exec(ctx, `DELETE FROM audit_logs`)
			Expect(err).To(MatchError(ContainSubstring("append-only")))
		})

		It("refuses to delete an identity that audit rows reference", func(ctx SpecContext) {
			pool, err := store.Connect(ctx, connStr)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(pool.Close)

			_, err = pool.Exec(ctx, `INSERT INTO identities (id, email, password_hash, role) VALUES ('01J000000000000000000000C1', 'actor@example.com', 'x', 'ADMIN')`)
			Expect(err).NotTo(HaveOccurred())
			_, err = pool.Exec(ctx, `INSERT INTO audit_logs (id, actor_identity_id, action) VALUES ('01J000000000000000000000C2', '01J000000000000000000000C1', 'LOGIN')`)
			Expect(err).NotTo(HaveOccurred())

			_, err = pool.Exec(ctx, `DELETE FROM identities WHERE id = '01J000000000000000000000C1'`)
			Expect(err).To(MatchError(ContainSubstring("audit_logs_actor_identity_id_fkey")))
		})
	})
})
