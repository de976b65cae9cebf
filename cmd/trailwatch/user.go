package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trailwatch.org/internal/audit"
	"trailwatch.org/internal/auth"
	"trailwatch.org/internal/ids"
	"trailwatch.org/internal/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user able to log in",
	RunE:  runUserCreate,
}

var userOpts struct {
	name     string
	email    string
	phone    string
	password string
	admin    bool
}

func init() {
	f := userCreateCmd.Flags()
	f.StringVar(&userOpts.name, "name", "", "display name")
	f.StringVar(&userOpts.email, "email", "", "login email")
	f.StringVar(&userOpts.phone, "phone", "", "contact phone")
	f.StringVar(&userOpts.password, "password", "", "initial password")
	f.BoolVar(&userOpts.admin, "admin", false, "grant the admin role")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userCreateCmd)
}

func runUserCreate(cmd *cobra.Command, _ []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	email := strings.TrimSpace(userOpts.email)
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email %q", email)
	}
	name := strings.TrimSpace(userOpts.name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	hash, err := auth.HashPassword(userOpts.password, cfg.BcryptCost)
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	u := store.User{
		ID:        ids.New(),
		Name:      name,
		Email:     email,
		Phone:     userOpts.phone,
		IsAdmin:   userOpts.admin,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateUser(cmd.Context(), u, hash); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("a user with email %s already exists", email)
		}
		return err
	}
	_ = audit.LogEvent(cmd.Context(), "user.created", map[string]any{
		"user_id":  u.ID,
		"is_admin": u.IsAdmin,
	})
	fmt.Fprintln(cmd.OutOrStdout(), u.ID)
	return nil
}
