package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"studio/internal/buildinfo"
	"studio/internal/logging"
	"studio/internal/services"
	"studio/internal/store"
)

const (
	recentScriptsLimit  = 5
	recentActivityLimit = 10
	trendWindow         = 30 * 24 * time.Hour
	defaultUsageDays    = 30
	maxUsageDays        = 365
	defaultTopUsers     = 10
	maxTopUsers         = 100
)

// APICall is one tracked API request.
type APICall struct {
	UserID     string
	Endpoint   string
	Method     string
	StatusCode int
	Duration   time.Duration
}

// Service derives analytics views from stored events and scripts.
type Service struct {
	store   store.Store
	started time.Time
	now     func() time.Time
	logger  *slog.Logger
}

// NewService returns an analytics service whose uptime starts now.
func NewService(st store.Store, logger *slog.Logger) *Service {
	return &Service{
		store:   st,
		started: time.Now().UTC(),
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logging.NewComponentLogger(logger, "analytics"),
	}
}

// Started reports when the service began counting uptime.
func (s *Service) Started() time.Time {
	return s.started
}

// Uptime reports the time since the service started.
func (s *Service) Uptime() time.Duration {
	return s.now().Sub(s.started)
}

// TrackAPICall appends an api_call event.
func (s *Service) TrackAPICall(ctx context.Context, call APICall) error {
	err := s.store.AppendEvent(ctx, store.Event{
		Type:       store.EventAPICall,
		UserID:     call.UserID,
		Endpoint:   call.Endpoint,
		Method:     call.Method,
		StatusCode: call.StatusCode,
		DurationMS: roundTo(float64(call.Duration)/float64(time.Millisecond), 3),
		Timestamp:  s.now(),
	})
	if err != nil {
		return fmt.Errorf("track api call: %w", err)
	}
	return nil
}

// SystemStats summarizes service-wide usage.
type SystemStats struct {
	TotalScriptsGenerated int     `json:"total_scripts_generated"`
	TotalRequests         int     `json:"total_requests"`
	TotalUsers            int     `json:"total_users"`
	ActiveUsers           int     `json:"active_users"`
	AverageResponseTimeMS float64 `json:"average_response_time_ms"`
	ErrorRate             float64 `json:"error_rate"`
	SuccessRate           float64 `json:"success_rate"`
	UptimeSeconds         int64   `json:"uptime_seconds"`
	UptimeHuman           string  `json:"uptime_human"`
	Status                string  `json:"status"`
	Version               string  `json:"version"`
}

// SystemStats computes service-wide counters from the event log.
func (s *Service) SystemStats(ctx context.Context) (*SystemStats, error) {
	scripts, err := s.store.CountScripts(ctx, store.ScriptFilter{})
	if err != nil {
		return nil, fmt.Errorf("count scripts: %w", err)
	}
	accounts, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	events, err := s.store.ListEvents(ctx, store.EventFilter{Types: []store.EventType{store.EventAPICall, store.EventScriptGeneration}})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	var (
		calls    int
		failures int
		totalMS  float64
		active   = make(map[string]struct{})
	)
	for _, e := range events {
		active[e.UserID] = struct{}{}
		if e.Type != store.EventAPICall {
			continue
		}
		calls++
		totalMS += e.DurationMS
		if e.StatusCode >= 400 {
			failures++
		}
	}
	stats := &SystemStats{
		TotalScriptsGenerated: scripts,
		TotalRequests:         calls,
		TotalUsers:            len(accounts),
		ActiveUsers:           len(active),
		SuccessRate:           100,
		Status:                "operational",
		Version:               buildinfo.Version,
	}
	if calls > 0 {
		stats.AverageResponseTimeMS = roundTo(totalMS/float64(calls), 3)
		stats.ErrorRate = roundTo(float64(failures)/float64(calls)*100, 2)
		stats.SuccessRate = roundTo(100-stats.ErrorRate, 2)
	}
	uptime := s.Uptime()
	stats.UptimeSeconds = int64(uptime.Seconds())
	stats.UptimeHuman = FormatUptime(uptime)
	return stats, nil
}

// Performance summarizes request latency and outcomes.
type Performance struct {
	AverageResponseTimeMS float64 `json:"average_response_time_ms"`
	SuccessRate           float64 `json:"success_rate"`
	ErrorRate             float64 `json:"error_rate"`
}

// UserMetrics are per-user counters derived from the event log.
type UserMetrics struct {
	ScriptsGenerated int        `json:"scripts_generated"`
	APICalls         int        `json:"api_calls"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
}

// Trends describe recent user behaviour.
type Trends struct {
	ScriptGenerationTrend string  `json:"script_generation_trend"`
	ActivityScore         float64 `json:"activity_score"`
}

// UserDashboard is the per-user section of the dashboard.
type UserDashboard struct {
	UserID         string          `json:"user_id"`
	UserMetrics    UserMetrics     `json:"user_metrics"`
	RecentActivity []*store.Script `json:"recent_activity"`
	Trends         Trends          `json:"trends"`
}

// Dashboard is the analytics dashboard payload.
type Dashboard struct {
	Service       string          `json:"service"`
	SystemStats   *SystemStats    `json:"system_stats"`
	RecentScripts []*store.Script `json:"recent_scripts"`
	Performance   Performance     `json:"performance"`
	User          *UserDashboard  `json:"user,omitempty"`
	GeneratedAt   time.Time       `json:"generated_at"`
}

// Dashboard builds the system dashboard, plus a user section when userID has
// recorded activity or an account.
func (s *Service) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	stats, err := s.SystemStats(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.ListScripts(ctx, store.ScriptFilter{Limit: recentScriptsLimit})
	if err != nil {
		return nil, fmt.Errorf("recent scripts: %w", err)
	}
	dash := &Dashboard{
		Service:       buildinfo.ServiceName,
		SystemStats:   stats,
		RecentScripts: recent,
		Performance: Performance{
			AverageResponseTimeMS: stats.AverageResponseTimeMS,
			SuccessRate:           stats.SuccessRate,
			ErrorRate:             stats.ErrorRate,
		},
		GeneratedAt: s.now(),
	}
	if userID == "" {
		return dash, nil
	}
	user, err := s.userDashboard(ctx, userID)
	if err != nil {
		return nil, err
	}
	dash.User = user
	return dash, nil
}

func (s *Service) userDashboard(ctx context.Context, userID string) (*UserDashboard, error) {
	events, err := s.store.ListEvents(ctx, store.EventFilter{
		UserID: userID,
		Types:  []store.EventType{store.EventScriptGeneration, store.EventAPICall},
	})
	if err != nil {
		return nil, fmt.Errorf("list user events: %w", err)
	}
	recent, err := s.store.ListScripts(ctx, store.ScriptFilter{UserID: userID, Limit: recentActivityLimit})
	if err != nil {
		return nil, fmt.Errorf("list user scripts: %w", err)
	}
	metrics := tallyUser(events)
	now := s.now()
	var scriptTimes []time.Time
	for _, e := range events {
		if e.Type == store.EventScriptGeneration && !e.Timestamp.Before(now.Add(-trendWindow)) {
			scriptTimes = append(scriptTimes, e.Timestamp)
		}
	}
	return &UserDashboard{
		UserID:         userID,
		UserMetrics:    metrics,
		RecentActivity: recent,
		Trends: Trends{
			ScriptGenerationTrend: Trend(scriptTimes, now, trendWindow),
			ActivityScore:         ActivityScore(metrics.ScriptsGenerated, metrics.APICalls),
		},
	}, nil
}

func tallyUser(events []store.Event) UserMetrics {
	var m UserMetrics
	for _, e := range events {
		switch e.Type {
		case store.EventScriptGeneration:
			m.ScriptsGenerated++
		case store.EventAPICall:
			m.APICalls++
		}
		if m.LastActivity == nil || e.Timestamp.After(*m.LastActivity) {
			ts := e.Timestamp
			m.LastActivity = &ts
		}
	}
	return m
}

// DailyUsage counts a user's activity on one UTC day.
type DailyUsage struct {
	Date     string `json:"date"`
	Scripts  int    `json:"scripts"`
	APICalls int    `json:"api_calls"`
}

// UsagePatterns describe when a user is active. Days are numbered from Monday = 0.
type UsagePatterns struct {
	PeakHour           int         `json:"peak_hour"`
	PeakDay            int         `json:"peak_day"`
	HourlyDistribution map[int]int `json:"hourly_distribution"`
	WeeklyDistribution map[int]int `json:"weekly_distribution"`
}

// Usage is a user's activity over a window of days.
type Usage struct {
	UserID        string        `json:"user_id"`
	PeriodDays    int           `json:"period_days"`
	TotalScripts  int           `json:"total_scripts"`
	TotalAPICalls int           `json:"total_api_calls"`
	DailyUsage    []DailyUsage  `json:"daily_usage"`
	UsagePatterns UsagePatterns `json:"usage_patterns"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

// Usage reports per-day activity for the last days UTC days, today included.
func (s *Service) Usage(ctx context.Context, userID string, days int) (*Usage, error) {
	if days == 0 {
		days = defaultUsageDays
	}
	if days < 1 || days > maxUsageDays {
		return nil, services.Wrap(services.ErrValidation, "usage", "days must be between 1 and 365", nil)
	}
	now := s.now()
	today := startOfDay(now)
	since := today.AddDate(0, 0, -(days - 1))
	events, err := s.store.ListEvents(ctx, store.EventFilter{
		UserID: userID,
		Types:  []store.EventType{store.EventScriptGeneration, store.EventAPICall},
		Since:  since,
	})
	if err != nil {
		return nil, fmt.Errorf("list usage events: %w", err)
	}

	daily := make([]DailyUsage, days)
	for i := range daily {
		daily[i].Date = since.AddDate(0, 0, i).Format(time.DateOnly)
	}
	usage := &Usage{
		UserID:      userID,
		PeriodDays:  days,
		DailyUsage:  daily,
		GeneratedAt: now,
	}
	hourly := make(map[int]int)
	weekly := make(map[int]int)
	for _, e := range events {
		ts := e.Timestamp.UTC()
		idx := int(startOfDay(ts).Sub(since).Hours() / 24)
		if idx < 0 || idx >= days {
			continue
		}
		switch e.Type {
		case store.EventScriptGeneration:
			usage.TotalScripts++
			daily[idx].Scripts++
		case store.EventAPICall:
			usage.TotalAPICalls++
			daily[idx].APICalls++
		}
		hourly[ts.Hour()]++
		weekly[mondayIndex(ts.Weekday())]++
	}
	usage.UsagePatterns = UsagePatterns{
		PeakHour:           peakKey(hourly),
		PeakDay:            peakKey(weekly),
		HourlyDistribution: hourly,
		WeeklyDistribution: weekly,
	}
	return usage, nil
}

// TopUser ranks one user's activity.
type TopUser struct {
	UserID           string     `json:"user_id"`
	ActivityScore    float64    `json:"activity_score"`
	ScriptsGenerated int        `json:"scripts_generated"`
	APICalls         int        `json:"api_calls"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
}

// TopUsers returns the most active users by activity score, highest first.
func (s *Service) TopUsers(ctx context.Context, limit int) ([]TopUser, error) {
	if limit <= 0 {
		limit = defaultTopUsers
	}
	limit = min(limit, maxTopUsers)
	events, err := s.store.ListEvents(ctx, store.EventFilter{Types: []store.EventType{store.EventScriptGeneration, store.EventAPICall}})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	byUser := make(map[string][]store.Event)
	for _, e := range events {
		byUser[e.UserID] = append(byUser[e.UserID], e)
	}
	out := make([]TopUser, 0, len(byUser))
	for userID, userEvents := range byUser {
		m := tallyUser(userEvents)
		out = append(out, TopUser{
			UserID:           userID,
			ActivityScore:    ActivityScore(m.ScriptsGenerated, m.APICalls),
			ScriptsGenerated: m.ScriptsGenerated,
			APICalls:         m.APICalls,
			LastActivity:     m.LastActivity,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ActivityScore != out[j].ActivityScore {
			return out[i].ActivityScore > out[j].ActivityScore
		}
		return out[i].UserID < out[j].UserID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Export renders an indented JSON document: the user's dashboard and usage
// when userID is set, otherwise system stats and top users.
func (s *Service) Export(ctx context.Context, userID string) ([]byte, error) {
	var doc any
	if userID != "" {
		dash, err := s.Dashboard(ctx, userID)
		if err != nil {
			return nil, err
		}
		usage, err := s.Usage(ctx, userID, defaultUsageDays)
		if err != nil {
			return nil, err
		}
		doc = struct {
			UserID     string     `json:"user_id"`
			Dashboard  *Dashboard `json:"dashboard_data"`
			Usage      *Usage     `json:"usage_data"`
			ExportedAt time.Time  `json:"exported_at"`
		}{userID, dash, usage, s.now()}
	} else {
		stats, err := s.SystemStats(ctx)
		if err != nil {
			return nil, err
		}
		top, err := s.TopUsers(ctx, defaultTopUsers)
		if err != nil {
			return nil, err
		}
		doc = struct {
			SystemStats *SystemStats `json:"system_stats"`
			TopUsers    []TopUser    `json:"top_users"`
			ExportedAt  time.Time    `json:"exported_at"`
		}{stats, top, s.now()}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return data, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func mondayIndex(day time.Weekday) int {
	return (int(day) + 6) % 7
}

// peakKey returns the key with the highest count; ties pick the lowest key.
func peakKey(counts map[int]int) int {
	peak, best := 0, -1
	for k, v := range counts {
		if v > best || (v == best && k < peak) {
			peak, best = k, v
		}
	}
	return peak
}

func roundTo(value float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(value*scale) / scale
}
