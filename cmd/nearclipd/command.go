package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nearclip/nearclip-core/internal/auth"
	"github.com/nearclip/nearclip-core/internal/infrastructure/config"
)

// newRootCommand builds the nearclipd command tree. Without a subcommand
// the daemon runs until the command context ends.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "nearclipd",
		Short:         "NearClip device registry and connection lifecycle daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	root.AddCommand(newTokenCommand())
	return root
}

// newTokenCommand mints API access tokens signed with security.jwt.secret,
// for front ends and scripts that talk to the REST and WebSocket API.
func newTokenCommand() *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:     "token",
		Short:   "Print an API access token signed with the configured JWT secret",
		Example: "  nearclipd token --subject desktop-ui --role controller --ttl 720h",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(getConfigPath())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			token, err := mintToken(cfg.Security.JWT, subject, auth.Role(role), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "caller recorded in the audit trail (required)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "viewer, controller or owner")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default security.jwt.access_token_ttl minutes)")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

// errAuthDisabled is returned when no JWT secret is configured.
var errAuthDisabled = errors.New("security.jwt.secret is not set, API authentication is disabled")

// mintToken signs a token for subject. A non-positive ttl falls back to the
// configured access token TTL.
func mintToken(cfg config.JWTConfig, subject string, role auth.Role, ttl time.Duration) (string, error) {
	if cfg.Secret == "" {
		return "", errAuthDisabled
	}
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if !role.IsValid() {
		return "", fmt.Errorf("unknown role %q", role)
	}
	if ttl <= 0 {
		ttl = time.Duration(cfg.AccessTokenTTL) * time.Minute
	}
	return auth.GenerateAccessToken(subject, role, cfg.Secret, ttl)
}
