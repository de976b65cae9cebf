package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"trailwatch.org/internal/audit"
	"trailwatch.org/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Token helpers for operators",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign a token for a subject without a password check",
	RunE:  runTokenIssue,
}

var tokenOpts struct {
	subject string
	role    string
	ttl     time.Duration
}

func init() {
	f := tokenIssueCmd.Flags()
	f.StringVar(&tokenOpts.subject, "subject", "", "token subject (user id)")
	f.StringVar(&tokenOpts.role, "role", "user", "user or admin")
	f.DurationVar(&tokenOpts.ttl, "ttl", 0, "lifetime; defaults to the configured TTL for the role")
	_ = tokenIssueCmd.MarkFlagRequired("subject")
	tokenCmd.AddCommand(tokenIssueCmd)
}

func runTokenIssue(cmd *cobra.Command, _ []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	role, err := auth.ParseRole(tokenOpts.role)
	if err != nil {
		return err
	}
	secret, err := cfg.Secret()
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(secret,
		auth.WithIssuer(cfg.AuthIssuer),
		auth.WithTTLPolicy(cfg.TTLPolicy()),
	)
	if err != nil {
		return err
	}

	var tok auth.Token
	if tokenOpts.ttl > 0 {
		tok, err = tokens.Issue(tokenOpts.subject, role, tokenOpts.ttl)
	} else {
		tok, err = tokens.IssueFor(tokenOpts.subject, role)
	}
	if err != nil {
		return err
	}
	_ = audit.LogEvent(cmd.Context(), "auth.token.issued", map[string]any{
		"subject":    tok.Identity.Subject,
		"role":       role.String(),
		"expires_at": tok.ExpiresAt.Format(time.RFC3339),
		"source":     "cli",
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(tok)
}
