package store

import (
	"maps"
	"strings"
	"time"
)

// Script is a generated video script.
type Script struct {
	ID                string    `json:"script_id"`
	UserID            string    `json:"user_id"`
	Topic             string    `json:"topic"`
	Content           string    `json:"content"`
	Style             string    `json:"style"`
	Duration          int       `json:"duration"`
	WordCount         int       `json:"word_count"`
	EstimatedDuration int       `json:"estimated_duration"`
	Provider          string    `json:"provider"`
	Model             string    `json:"model,omitempty"`
	Tokens            int       `json:"tokens"`
	Cost              float64   `json:"cost"`
	QualityScore      float64   `json:"quality_score"`
	CreatedAt         time.Time `json:"created_at"`
}

// User is a registered account.
type User struct {
	ID           string      `json:"user_id"`
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	PasswordHash string      `json:"password_hash"`
	Plan         string      `json:"subscription_plan"`
	CreatedAt    time.Time   `json:"created_at"`
	LastLogin    *time.Time  `json:"last_login,omitempty"`
	Profile      ProfileData `json:"profile_data"`
	Preferences  Preferences `json:"preferences"`
	Usage        UsageStats  `json:"usage_stats"`
}

// ProfileData holds user-editable public profile details.
type ProfileData struct {
	AvatarURL   string            `json:"avatar_url"`
	Bio         string            `json:"bio"`
	Website     string            `json:"website"`
	SocialLinks map[string]string `json:"social_links"`
}

// Preferences holds generation defaults and notification settings.
type Preferences struct {
	DefaultScriptStyle string            `json:"default_script_style"`
	PreferredProvider  string            `json:"preferred_provider"`
	Notifications      NotificationPrefs `json:"notifications"`
	Privacy            PrivacyPrefs      `json:"privacy"`
}

type NotificationPrefs struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
	SMS   bool `json:"sms"`
}

type PrivacyPrefs struct {
	ProfilePublic bool `json:"profile_public"`
	ContentPublic bool `json:"content_public"`
}

// UsageStats accumulates per-user counters.
type UsageStats struct {
	ScriptsGenerated int       `json:"scripts_generated"`
	APICallsMade     int       `json:"api_calls_made"`
	TotalCost        float64   `json:"total_cost"`
	LastReset        time.Time `json:"last_reset"`
}

// EventType classifies analytics events.
type EventType string

const (
	EventScriptGeneration EventType = "script_generation"
	EventAPICall          EventType = "api_call"
	EventUserRegistered   EventType = "user_registered"
	EventUserLogin        EventType = "user_login"
)

// Event is one analytics record.
type Event struct {
	Type       EventType         `json:"event_type"`
	UserID     string            `json:"user_id"`
	Endpoint   string            `json:"endpoint,omitempty"`
	Method     string            `json:"method,omitempty"`
	StatusCode int               `json:"status_code,omitempty"`
	DurationMS float64           `json:"duration_ms,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ScriptFilter narrows ListScripts and CountScripts. Zero values match everything.
type ScriptFilter struct {
	UserID string
	Since  time.Time
	Limit  int
}

func (f ScriptFilter) matches(s *Script) bool {
	if f.UserID != "" && s.UserID != f.UserID {
		return false
	}
	if !f.Since.IsZero() && s.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}

// EventFilter narrows ListEvents and CountEvents. Zero values match everything.
type EventFilter struct {
	UserID string
	Types  []EventType
	Since  time.Time
}

func (f EventFilter) matches(e *Event) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if e.Type == t {
			return true
		}
	}
	return false
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneScript(s *Script) *Script {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	cp := *u
	if u.LastLogin != nil {
		ts := *u.LastLogin
		cp.LastLogin = &ts
	}
	cp.Profile.SocialLinks = maps.Clone(u.Profile.SocialLinks)
	return &cp
}

func cloneEvent(e Event) Event {
	e.Metadata = maps.Clone(e.Metadata)
	return e
}
