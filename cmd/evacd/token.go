package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/couchcryptid/crowd-evac-service/internal/auth"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development bearer token signed with $JWT_SECRET",
		RunE: func(cmd *cobra.Command, _ []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET is required")
			}
			issuer, err := auth.NewIssuer(secret, clockwork.NewRealClock())
			if err != nil {
				return err
			}
			token, err := issuer.Mint(subject, auth.Role(role), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().String("subject", "", "token subject (user or authority id)")
	cmd.Flags().String("role", string(auth.RoleUser), "user, authority or service")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}
