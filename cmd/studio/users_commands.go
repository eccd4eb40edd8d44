package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"studio/internal/users"
)

const passwordEnv = "STUDIO_PASSWORD"

func newUsersCommand(ctx *commandContext) *cobra.Command {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage studio accounts",
	}
	usersCmd.AddCommand(newUsersRegisterCommand(ctx))
	usersCmd.AddCommand(newUsersLoginCommand(ctx))
	return usersCmd
}

func newUsersRegisterCommand(ctx *commandContext) *cobra.Command {
	var email, password, name, plan string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and print its token",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			c, err := ctx.client()
			if err != nil {
				return err
			}
			session, err := c.Register(cmd.Context(), users.RegisterRequest{
				Email:    strings.TrimSpace(email),
				Password: pw,
				Name:     strings.TrimSpace(name),
				Plan:     strings.TrimSpace(plan),
			})
			if err != nil {
				return wrapClientError(err, c.BaseURL())
			}
			return ctx.emit(cmd, session, func(w io.Writer) {
				renderSession(w, session)
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (defaults to $"+passwordEnv+")")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&plan, "plan", "", "Subscription plan: "+strings.Join(users.PlanIDs(), ", "))
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newUsersLoginCommand(ctx *commandContext) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a token",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := resolvePassword(password)
			if err != nil {
				return err
			}
			c, err := ctx.client()
			if err != nil {
				return err
			}
			session, err := c.Login(cmd.Context(), strings.TrimSpace(email), pw)
			if err != nil {
				return wrapClientError(err, c.BaseURL())
			}
			return ctx.emit(cmd, session, func(w io.Writer) {
				renderSession(w, session)
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (defaults to $"+passwordEnv+")")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func resolvePassword(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	return "", errors.New("password is required (use --password or $" + passwordEnv + ")")
}

func renderSession(w io.Writer, s *users.Session) {
	fmt.Fprintln(w, renderKeyValues([][2]string{
		{"User", s.UserID},
		{"Email", s.Email},
		{"Name", s.Name},
		{"Plan", s.Plan},
		{"Expires", formatTime(s.ExpiresAt)},
	}))
	fmt.Fprintf(w, "\nexport %s=%s\n", tokenEnv, s.Token)
}
