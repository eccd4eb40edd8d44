package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"studio/internal/analytics"
	"studio/internal/cost"
)

func newAnalyticsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "analytics",
		Short: "Show the analytics dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			dash, err := c.Dashboard(cmd.Context())
			if err != nil {
				return wrapClientError(err, c.BaseURL())
			}
			return ctx.emit(cmd, dash, func(w io.Writer) {
				renderDashboard(w, dash)
			})
		},
	}
}

func renderDashboard(w io.Writer, dash *analytics.Dashboard) {
	if stats := dash.SystemStats; stats != nil {
		fmt.Fprintln(w, "System")
		fmt.Fprintln(w, renderKeyValues([][2]string{
			{"Status", stats.Status},
			{"Version", stats.Version},
			{"Uptime", stats.UptimeHuman},
			{"Scripts generated", strconv.Itoa(stats.TotalScriptsGenerated)},
			{"Requests", strconv.Itoa(stats.TotalRequests)},
			{"Users", fmt.Sprintf("%d (%d active)", stats.TotalUsers, stats.ActiveUsers)},
			{"Avg response", fmt.Sprintf("%.3f ms", stats.AverageResponseTimeMS)},
			{"Error rate", fmt.Sprintf("%.2f%%", stats.ErrorRate)},
		}))
	}
	if u := dash.User; u != nil {
		last := "-"
		if u.UserMetrics.LastActivity != nil {
			last = formatTime(*u.UserMetrics.LastActivity)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "You")
		fmt.Fprintln(w, renderKeyValues([][2]string{
			{"User", u.UserID},
			{"Scripts generated", strconv.Itoa(u.UserMetrics.ScriptsGenerated)},
			{"API calls", strconv.Itoa(u.UserMetrics.APICalls)},
			{"Last activity", last},
			{"Trend", u.Trends.ScriptGenerationTrend},
			{"Activity score", strconv.FormatFloat(u.Trends.ActivityScore, 'f', 2, 64)},
		}))
	}
	if len(dash.RecentScripts) > 0 {
		rows := make([][]string, 0, len(dash.RecentScripts))
		for _, s := range dash.RecentScripts {
			rows = append(rows, []string{s.ID, truncate(s.Topic, 40), s.Provider, formatTime(s.CreatedAt)})
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Recent scripts")
		fmt.Fprintln(w, renderTable([]string{"ID", "Topic", "Provider", "Created"}, rows, nil))
	}
}

func newCostCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cost",
		Short: "Show your generation spend and savings suggestions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.client()
			if err != nil {
				return err
			}
			analysis, err := c.CostAnalysis(cmd.Context())
			if err != nil {
				return wrapClientError(err, c.BaseURL())
			}
			return ctx.emit(cmd, analysis, func(w io.Writer) {
				renderCostAnalysis(w, analysis)
			})
		},
	}
}

func renderCostAnalysis(w io.Writer, a *cost.Analysis) {
	fmt.Fprintln(w, renderKeyValues([][2]string{
		{"User", a.UserID},
		{"Total cost", formatMoney(a.TotalCost)},
		{"Scripts", strconv.Itoa(a.ScriptCount)},
		{"Average per script", formatMoney(a.AverageCostPerScript)},
		{"Trend", fmt.Sprintf("%s (%+.1f%%)", a.Trends.Trend, a.Trends.MonthlyChange)},
		{"Projected monthly", formatMoney(a.Trends.ProjectedMonthlyCost)},
	}))

	if len(a.CostBreakdown) > 0 {
		providers := make([]string, 0, len(a.CostBreakdown))
		for p := range a.CostBreakdown {
			providers = append(providers, p)
		}
		sort.Strings(providers)
		rows := make([][]string, 0, len(providers))
		for _, p := range providers {
			rows = append(rows, []string{p, formatMoney(a.CostBreakdown[p])})
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderTable([]string{"Provider", "Spend"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if len(a.Recommendations) > 0 {
		rows := make([][]string, 0, len(a.Recommendations))
		for _, r := range a.Recommendations {
			rows = append(rows, []string{r.Type, r.Impact, formatMoney(r.PotentialSavings), r.Description})
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, renderTable(
			[]string{"Recommendation", "Impact", "Savings", "Details"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
		))
	}
}
