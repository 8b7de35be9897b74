// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chms/chms/internal/account"
	"github.com/chms/chms/internal/auth"
	"github.com/chms/chms/internal/auth/postgres"
	"github.com/chms/chms/internal/store"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedFile is the YAML document read by chms seed.
type seedFile struct {
	Users []seedUser `yaml:"users"`
}

// seedUser describes one identity. Exactly one of Password and
// PasswordHash is set; PasswordHash is the output of chms hash-password.
type seedUser struct {
	Email        string `yaml:"email"`
	FullName     string `yaml:"full_name"`
	Phone        string `yaml:"phone"`
	Role         string `yaml:"role"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	file       string
	timeout    time.Duration
	bcryptCost int
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create identities from a YAML file",
		Long: `Creates the identities listed in a YAML file. This is the only way to
create ADMIN identities. Identities whose email already exists are skipped,
so the command is safe to run more than once.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.file, "file", "f", "", "seed file (YAML)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().IntVar(&cfg.bcryptCost, "bcrypt-cost", auth.DefaultBcryptCost, "bcrypt cost for plaintext passwords")
	cmd.Flags().String("database-url", "", "PostgreSQL URL (default: DATABASE_URL)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runSeed(cmd *cobra.Command, cfg *seedConfig) error {
	f, err := os.Open(cfg.file)
	if err != nil {
		return oops.Code("SEED_FILE_UNREADABLE").With("file", cfg.file).Wrap(err)
	}
	defer f.Close()

	users, err := parseSeedFile(f)
	if err != nil {
		return oops.With("file", cfg.file).Wrap(err)
	}

	url, err := databaseURL(cmd.Flags())
	if err != nil {
		return err
	}

	// cmd.Context() carries SIGINT/SIGTERM cancellation.
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	pool, err := store.Connect(ctx, url)
	if err != nil {
		return err
	}
	defer pool.Close()

	hasher, err := auth.NewBcryptHasher(cfg.bcryptCost)
	if err != nil {
		return err
	}

	created, skipped, err := seedIdentities(ctx, postgres.NewIdentityRepository(pool), hasher,
		postgres.NewAuditRepository(pool), users, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seed complete: %d created, %d skipped\n", created, skipped)
	return nil
}

// parseSeedFile decodes and validates a seed document. Unknown keys are
// rejected so a misspelt field cannot silently drop data.
func parseSeedFile(r io.Reader) ([]seedUser, error) {
	var doc seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, oops.Code("SEED_FILE_INVALID").Wrap(err)
	}
	if len(doc.Users) == 0 {
		return nil, oops.Code("SEED_FILE_INVALID").Errorf("seed file lists no users")
	}

	for i, u := range doc.Users {
		invalid := func(msg string) error {
			return oops.Code("SEED_FILE_INVALID").With("index", i).With("email", u.Email).Errorf("%s", msg)
		}
		switch {
		case !account.ValidEmail(u.Email):
			return nil, invalid("email address is invalid")
		case (u.Password == "") == (u.PasswordHash == ""):
			return nil, invalid("exactly one of password and password_hash is required")
		}
		if _, err := auth.ParseRole(u.Role); err != nil {
			return nil, invalid("role must be MOTHER, DOCTOR or ADMIN")
		}
	}
	return doc.Users, nil
}

// identityCreator is the identity store seeding writes to.
type identityCreator interface {
	Create(ctx context.Context, identity *auth.Identity) error
}

// seedIdentities creates each user, skipping emails that already exist.
func seedIdentities(ctx context.Context, identities identityCreator, hasher auth.PasswordHasher,
	audit auth.AuditSink, users []seedUser, out io.Writer,
) (created, skipped int, err error) {
	for _, u := range users {
		role, err := auth.ParseRole(u.Role)
		if err != nil {
			return created, skipped, err
		}

		hash := u.PasswordHash
		if hash == "" {
			if hash, err = hasher.Hash(u.Password); err != nil {
				return created, skipped, oops.With("email", u.Email).Wrap(err)
			}
		}

		identity, err := auth.NewIdentity(u.Email, account.SanitizeName(u.FullName), u.Phone, hash, role)
		if err != nil {
			return created, skipped, err
		}

		err = identities.Create(ctx, identity)
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			fmt.Fprintf(out, "skip   %s (already exists)\n", u.Email)
			skipped++
			continue
		case err != nil:
			return created, skipped, oops.Code("SEED_FAILED").With("email", u.Email).Wrap(err)
		}

		event := auth.NewAuditEvent(ctx, auth.ActionRegister, nil, "Seeded as "+role.String())
		event.SubjectTable = auth.SubjectIdentities
		event.SubjectID = identity.ID.String()
		if err := audit.Record(ctx, event); err != nil {
			fmt.Fprintf(out, "warning: audit record for %s failed: %v\n", u.Email, err)
		}

		fmt.Fprintf(out, "create %s (%s)\n", u.Email, role)
		created++
	}
	return created, skipped, nil
}
