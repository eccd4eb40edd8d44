package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the studio server is healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			health, err := c.Health(cmd.Context())
			if err != nil {
				return wrapClientError(err, c.BaseURL())
			}
			return ctx.emit(cmd, health, func(w io.Writer) {
				fmt.Fprintln(w, renderKeyValues([][2]string{
					{"Server", c.BaseURL()},
					{"Status", health.Status},
					{"Service", health.Service},
					{"Version", health.Version},
					{"Environment", health.Environment},
					{"Uptime", health.Uptime},
					{"Storage", health.Checks.Storage},
					{"Providers", strings.Join(health.Checks.Providers, ", ")},
				}))
			})
		},
	}
}
