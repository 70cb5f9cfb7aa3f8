package seed

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coursehub/portal-access/internal/domain"
	"github.com/coursehub/portal-access/internal/repository"
	"github.com/coursehub/portal-access/internal/security"
	"github.com/coursehub/portal-access/internal/service"
)

// NewCommand returns the seeding subcommand. It provisions the standing
// class representatives and their access-code index records so a fresh
// database serves the fast-path codes from the real store as well.
func NewCommand() *cobra.Command {
	var (
		dsn         string
		password    string
		emailDomain string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Provision the standing representatives and access codes",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := repository.OpenDB(dsn)
			if err != nil {
				return err
			}
			if err := repository.Migrate(db); err != nil {
				return err
			}
			reps := repository.NewRepresentativeRepository(db)
			codes := repository.NewAccessCodeRepository(db)

			hash, err := security.HashPassword(password)
			if err != nil {
				return err
			}

			count := 0
			for code, owner := range service.DefaultFastPathCodes() {
				email := strings.ReplaceAll(strings.TrimPrefix(owner.RepID, "rep_"), "_", ".") + "@" + emailDomain
				rep := &domain.Representative{
					ID:           owner.RepID,
					Name:         owner.RepName,
					Email:        email,
					PasswordHash: hash,
					AccessCode:   code,
					Stage:        stageForCode(code),
				}
				if err := reps.Upsert(rep); err != nil {
					return fmt.Errorf("seed representative %s: %w", owner.RepID, err)
				}
				record := &domain.AccessCodeRecord{
					DocKey:  domain.AccessCodeDocKey(code),
					Code:    code,
					RepID:   owner.RepID,
					RepName: owner.RepName,
					Stage:   rep.Stage,
				}
				if err := codes.Upsert(record); err != nil {
					return fmt.Errorf("seed access code %s: %w", code, err)
				}
				count++
			}
			cmd.Printf("seeded %d representatives\n", count)
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "portal.db", "database DSN")
	cmd.Flags().StringVar(&password, "password", "changeme123", "initial representative password")
	cmd.Flags().StringVar(&emailDomain, "email-domain", "portal.example.edu", "email domain for generated addresses")
	return cmd
}

// Codes end in the stage digit.
func stageForCode(code string) string {
	if code == "" {
		return ""
	}
	return "stage-" + code[len(code)-1:]
}
