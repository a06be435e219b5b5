// Command token mints a signed chat credential for local testing.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/domain"
)

var (
	subjectID int64
	username  string
	ttl       time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a chat credential signed with the configured JWT secret",
	Example: `  token --id 42 --name alice
  websocat "ws://localhost:8080/ws/chat?room=lobby&token=$(token --id 42 --name alice)"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		issuer, err := auth.NewJWTVerifier(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
		if err != nil {
			return err
		}
		tok, err := issuer.Issue(domain.SubjectID(subjectID), username, ttl)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.Flags().Int64Var(&subjectID, "id", 1, "subject id (must be positive)")
	rootCmd.Flags().StringVar(&username, "name", "", "display name carried in the token")
	rootCmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, 0 uses jwt.ttl from config")
}

func main() {
	// Keep stdout clean for the token itself.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
