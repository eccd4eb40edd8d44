package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"studio/internal/services"
	"studio/internal/store"
	"studio/internal/testsupport"
)

// 2026-03-11 is a Wednesday.
var fixedNow = time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	svc := NewService(st, nil)
	svc.started = fixedNow.Add(-26 * time.Hour)
	svc.now = func() time.Time { return fixedNow }
	return svc, st
}

func appendEvent(t *testing.T, st store.Store, e store.Event) {
	t.Helper()
	if err := st.AppendEvent(context.Background(), e); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
}

func TestSystemStatsEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	stats, err := svc.SystemStats(context.Background())
	if err != nil {
		t.Fatalf("SystemStats: %v", err)
	}
	if stats.TotalRequests != 0 || stats.TotalScriptsGenerated != 0 {
		t.Fatalf("expected zero counters, got %+v", stats)
	}
	if stats.SuccessRate != 100 || stats.ErrorRate != 0 {
		t.Fatalf("expected 100%% success on empty log, got %+v", stats)
	}
	if stats.Status != "operational" {
		t.Fatalf("status = %q", stats.Status)
	}
	if stats.UptimeHuman != "1 day, 2:00:00" {
		t.Fatalf("uptime_human = %q", stats.UptimeHuman)
	}
}

func TestTrackAPICallFeedsSystemStats(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	calls := []APICall{
		{UserID: "u1", Endpoint: "/api/v1/scripts", Method: "GET", StatusCode: 200, Duration: 10 * time.Millisecond},
		{UserID: "u1", Endpoint: "/api/v1/scripts", Method: "GET", StatusCode: 200, Duration: 20 * time.Millisecond},
		{UserID: "u2", Endpoint: "/api/v1/scripts/x", Method: "GET", StatusCode: 404, Duration: 30 * time.Millisecond},
		{UserID: "u2", Endpoint: "/api/v1/scripts", Method: "GET", StatusCode: 200, Duration: 40 * time.Millisecond},
	}
	for _, call := range calls {
		if err := svc.TrackAPICall(ctx, call); err != nil {
			t.Fatalf("TrackAPICall: %v", err)
		}
	}
	stats, err := svc.SystemStats(ctx)
	if err != nil {
		t.Fatalf("SystemStats: %v", err)
	}
	if stats.TotalRequests != 4 {
		t.Fatalf("total_requests = %d, want 4", stats.TotalRequests)
	}
	if stats.AverageResponseTimeMS != 25 {
		t.Fatalf("average_response_time_ms = %v, want 25", stats.AverageResponseTimeMS)
	}
	if stats.ErrorRate != 25 || stats.SuccessRate != 75 {
		t.Fatalf("rates = %v/%v, want 25/75", stats.ErrorRate, stats.SuccessRate)
	}
	if stats.ActiveUsers != 2 {
		t.Fatalf("active_users = %d, want 2", stats.ActiveUsers)
	}
}

func TestDashboardUserSection(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		created := fixedNow.Add(-time.Duration(i) * time.Hour)
		script := &store.Script{ID: "s" + string(rune('a'+i)), UserID: "u1", Topic: "topic", Content: "body", CreatedAt: created}
		if err := st.CreateScript(ctx, script); err != nil {
			t.Fatalf("CreateScript: %v", err)
		}
		appendEvent(t, st, store.Event{Type: store.EventScriptGeneration, UserID: "u1", Timestamp: created})
	}
	appendEvent(t, st, store.Event{Type: store.EventAPICall, UserID: "u1", StatusCode: 200, Timestamp: fixedNow})

	dash, err := svc.Dashboard(ctx, "u1")
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if dash.Service != "ai-content-studio" {
		t.Fatalf("service = %q", dash.Service)
	}
	if len(dash.RecentScripts) != 3 || dash.RecentScripts[0].ID != "sa" {
		t.Fatalf("unexpected recent scripts: %+v", dash.RecentScripts)
	}
	if dash.User == nil {
		t.Fatal("expected user section")
	}
	if dash.User.UserMetrics.ScriptsGenerated != 3 || dash.User.UserMetrics.APICalls != 1 {
		t.Fatalf("unexpected user metrics: %+v", dash.User.UserMetrics)
	}
	if got := dash.User.Trends.ScriptGenerationTrend; got != "increasing" {
		t.Fatalf("trend = %q, want increasing", got)
	}
	if got := dash.User.Trends.ActivityScore; got != 6.1 {
		t.Fatalf("activity_score = %v, want 6.1", got)
	}
	if last := dash.User.UserMetrics.LastActivity; last == nil || !last.Equal(fixedNow) {
		t.Fatalf("last_activity = %v", last)
	}

	anon, err := svc.Dashboard(ctx, "")
	if err != nil {
		t.Fatalf("Dashboard anonymous: %v", err)
	}
	if anon.User != nil {
		t.Fatal("anonymous dashboard should omit the user section")
	}
}

func TestUsageRejectsOutOfRangeDays(t *testing.T) {
	svc, _ := newTestService(t)
	for _, days := range []int{-1, 366} {
		_, err := svc.Usage(context.Background(), "u1", days)
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("days=%d: expected validation error, got %v", days, err)
		}
	}
}

func TestUsageBucketsByDay(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	appendEvent(t, st, store.Event{Type: store.EventScriptGeneration, UserID: "u1", Timestamp: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)})
	appendEvent(t, st, store.Event{Type: store.EventAPICall, UserID: "u1", Timestamp: time.Date(2026, 3, 11, 9, 30, 0, 0, time.UTC)})
	appendEvent(t, st, store.Event{Type: store.EventAPICall, UserID: "u1", Timestamp: time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)})
	appendEvent(t, st, store.Event{Type: store.EventAPICall, UserID: "u1", Timestamp: fixedNow.AddDate(0, 0, -40)})
	appendEvent(t, st, store.Event{Type: store.EventAPICall, UserID: "other", Timestamp: fixedNow})

	usage, err := svc.Usage(ctx, "u1", 7)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if len(usage.DailyUsage) != 7 {
		t.Fatalf("daily rows = %d, want 7", len(usage.DailyUsage))
	}
	if usage.DailyUsage[0].Date != "2026-03-05" || usage.DailyUsage[6].Date != "2026-03-11" {
		t.Fatalf("unexpected date range %s..%s", usage.DailyUsage[0].Date, usage.DailyUsage[6].Date)
	}
	today := usage.DailyUsage[6]
	if today.Scripts != 1 || today.APICalls != 1 {
		t.Fatalf("today = %+v", today)
	}
	if usage.DailyUsage[5].APICalls != 1 {
		t.Fatalf("yesterday = %+v", usage.DailyUsage[5])
	}
	if usage.TotalScripts != 1 || usage.TotalAPICalls != 2 {
		t.Fatalf("totals = %d/%d", usage.TotalScripts, usage.TotalAPICalls)
	}
	if usage.UsagePatterns.PeakHour != 9 {
		t.Fatalf("peak_hour = %d, want 9", usage.UsagePatterns.PeakHour)
	}
	if usage.UsagePatterns.PeakDay != 2 {
		t.Fatalf("peak_day = %d, want 2 (Wednesday)", usage.UsagePatterns.PeakDay)
	}

	defaulted, err := svc.Usage(ctx, "nobody", 0)
	if err != nil {
		t.Fatalf("Usage default: %v", err)
	}
	if defaulted.PeriodDays != 30 || len(defaulted.DailyUsage) != 30 {
		t.Fatalf("expected 30 day default, got %d", defaulted.PeriodDays)
	}
	if defaulted.UsagePatterns.HourlyDistribution == nil {
		t.Fatal("distributions must be non-nil")
	}
}

func TestTopUsersOrdering(t *testing.T) {
	svc, st := newTestService(t)
	for i := 0; i < 3; i++ {
		appendEvent(t, st, store.Event{Type: store.EventScriptGeneration, UserID: "busy", Timestamp: fixedNow})
	}
	appendEvent(t, st, store.Event{Type: store.EventScriptGeneration, UserID: "quiet", Timestamp: fixedNow})
	appendEvent(t, st, store.Event{Type: store.EventAPICall, UserID: "quiet", Timestamp: fixedNow})

	top, err := svc.TopUsers(context.Background(), 1)
	if err != nil {
		t.Fatalf("TopUsers: %v", err)
	}
	if len(top) != 1 || top[0].UserID != "busy" || top[0].ActivityScore != 6 {
		t.Fatalf("unexpected ranking: %+v", top)
	}
}

func TestExportShapes(t *testing.T) {
	svc, st := newTestService(t)
	appendEvent(t, st, store.Event{Type: store.EventAPICall, UserID: "u1", StatusCode: 200, Timestamp: fixedNow})

	data, err := svc.Export(context.Background(), "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	var system map[string]json.RawMessage
	if err := json.Unmarshal(data, &system); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	for _, key := range []string{"system_stats", "top_users", "exported_at"} {
		if _, ok := system[key]; !ok {
			t.Fatalf("system export missing %q", key)
		}
	}

	data, err = svc.Export(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Export user: %v", err)
	}
	var user map[string]json.RawMessage
	if err := json.Unmarshal(data, &user); err != nil {
		t.Fatalf("decode user export: %v", err)
	}
	for _, key := range []string{"user_id", "dashboard_data", "usage_data", "exported_at"} {
		if _, ok := user[key]; !ok {
			t.Fatalf("user export missing %q", key)
		}
	}
}

func TestTrend(t *testing.T) {
	window := 30 * 24 * time.Hour
	old := fixedNow.Add(-20 * 24 * time.Hour)
	recent := fixedNow.Add(-time.Hour)
	tests := []struct {
		name  string
		times []time.Time
		want  string
	}{
		{"empty", nil, "stable"},
		{"single", []time.Time{recent}, "stable"},
		{"increasing", []time.Time{old, recent, recent}, "increasing"},
		{"decreasing", []time.Time{old, old, recent}, "decreasing"},
		{"balanced", []time.Time{old, recent}, "stable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Trend(tt.times, fixedNow, window); got != tt.want {
				t.Fatalf("Trend = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestActivityScoreCaps(t *testing.T) {
	if got := ActivityScore(80, 0); got != 100 {
		t.Fatalf("ActivityScore capped = %v, want 100", got)
	}
	if got := ActivityScore(1, 5); got != 2.5 {
		t.Fatalf("ActivityScore = %v, want 2.5", got)
	}
}

func TestFormatUptime(t *testing.T) {
	cases := map[time.Duration]string{
		0:                             "0:00:00",
		90 * time.Second:              "0:01:30",
		25*time.Hour + 5*time.Second:  "1 day, 1:00:05",
		72*time.Hour + 61*time.Minute: "3 days, 1:01:00",
	}
	for d, want := range cases {
		if got := FormatUptime(d); got != want {
			t.Fatalf("FormatUptime(%v) = %q, want %q", d, got, want)
		}
	}
}
