package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"studio/internal/scripts"
	"studio/internal/store"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var duration int
	var style string

	cmd := &cobra.Command{
		Use:   "generate <topic>",
		Short: "Generate a script for a topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			req := scripts.Request{
				Topic:    strings.Join(args, " "),
				Duration: duration,
				Style:    style,
			}
			script, err := c.Generate(cmd.Context(), req)
			if err != nil {
				return wrapClientError(err, c.BaseURL())
			}
			return ctx.emit(cmd, script, func(w io.Writer) {
				renderScript(w, script)
			})
		},
	}

	cmd.Flags().IntVarP(&duration, "duration", "d", 60, "Target duration in seconds (10-300)")
	cmd.Flags().StringVarP(&style, "style", "s", "", "Script style: "+strings.Join(scripts.StyleNames(), ", "))
	return cmd
}

func newScriptsCommand(ctx *commandContext) *cobra.Command {
	scriptsCmd := &cobra.Command{
		Use:   "scripts",
		Short: "Inspect generated scripts",
	}
	scriptsCmd.AddCommand(newScriptsListCommand(ctx))
	scriptsCmd.AddCommand(newScriptsShowCommand(ctx))
	return scriptsCmd
}

func newScriptsListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your most recent scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			list, err := c.Scripts(cmd.Context(), limit)
			if err != nil {
				return wrapClientError(err, c.BaseURL())
			}
			return ctx.emit(cmd, list, func(w io.Writer) {
				if len(list.Scripts) == 0 {
					fmt.Fprintln(w, "No scripts yet")
					return
				}
				rows := make([][]string, 0, len(list.Scripts))
				for _, s := range list.Scripts {
					rows = append(rows, []string{
						s.ID,
						truncate(s.Topic, 40),
						s.Style,
						s.Provider,
						strconv.Itoa(s.WordCount),
						formatMoney(s.Cost),
						formatTime(s.CreatedAt),
					})
				}
				fmt.Fprintln(w, renderTable(
					[]string{"ID", "Topic", "Style", "Provider", "Words", "Cost", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum scripts to list (1-100)")
	return cmd
}

func newScriptsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a script",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			script, err := c.Script(cmd.Context(), args[0])
			if err != nil {
				return wrapClientError(err, c.BaseURL())
			}
			return ctx.emit(cmd, script, func(w io.Writer) {
				renderScript(w, script)
			})
		},
	}
}

func renderScript(w io.Writer, s *store.Script) {
	fmt.Fprintln(w, renderKeyValues([][2]string{
		{"ID", s.ID},
		{"Topic", s.Topic},
		{"Style", s.Style},
		{"Provider", s.Provider},
		{"Words", strconv.Itoa(s.WordCount)},
		{"Duration", fmt.Sprintf("%ds (estimated %ds)", s.Duration, s.EstimatedDuration)},
		{"Tokens", strconv.Itoa(s.Tokens)},
		{"Cost", formatMoney(s.Cost)},
		{"Quality", strconv.FormatFloat(s.QualityScore, 'f', 1, 64)},
		{"Created", formatTime(s.CreatedAt)},
	}))
	fmt.Fprintln(w)
	fmt.Fprintln(w, s.Content)
}
