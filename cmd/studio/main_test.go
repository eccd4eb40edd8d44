package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"studio/internal/daemon"
	"studio/internal/logging"
	"studio/internal/testsupport"
)

func setupCLIEnv(t *testing.T) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(home, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", home)
	t.Setenv(tokenEnv, "")
	t.Setenv(passwordEnv, "")

	cfg := testsupport.NewConfig(t, testsupport.WithoutRateLimit())
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon Start: %v", err)
	}
	t.Cleanup(d.Stop)
	return d.Status().Address
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func decodeJSON(t *testing.T, out string, dst any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), dst); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestHealthCommand(t *testing.T) {
	addr := setupCLIEnv(t)
	out, _, err := runCLI(t, "--server", addr, "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var health struct {
		Status string `json:"status"`
	}
	decodeJSON(t, out, &health)
	if health.Status != "healthy" {
		t.Fatalf("status = %q", health.Status)
	}
}

func TestRegisterGenerateAndList(t *testing.T) {
	addr := setupCLIEnv(t)

	out, _, err := runCLI(t, "--server", addr, "users", "register",
		"--email", "writer@example.com", "--password", "password123", "--name", "Writer")
	if err != nil {
		t.Fatalf("users register: %v", err)
	}
	var session struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
	}
	decodeJSON(t, out, &session)
	if session.Token == "" {
		t.Fatal("expected token from register")
	}

	t.Setenv(passwordEnv, "password123")
	out, _, err = runCLI(t, "--server", addr, "users", "login", "--email", "writer@example.com")
	if err != nil {
		t.Fatalf("users login: %v", err)
	}
	requireContains(t, out, session.UserID)

	t.Setenv(tokenEnv, session.Token)
	out, _, err = runCLI(t, "--server", addr, "generate", "--duration", "45", "--style", "educational", "Solar", "power")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	var script struct {
		ID     string `json:"script_id"`
		Topic  string `json:"topic"`
		UserID string `json:"user_id"`
	}
	decodeJSON(t, out, &script)
	if script.Topic != "Solar power" || script.UserID != session.UserID {
		t.Fatalf("unexpected script: %+v", script)
	}

	out, _, err = runCLI(t, "--server", addr, "scripts", "list")
	if err != nil {
		t.Fatalf("scripts list: %v", err)
	}
	var list struct {
		Count int `json:"count"`
	}
	decodeJSON(t, out, &list)
	if list.Count != 1 {
		t.Fatalf("count = %d, want 1", list.Count)
	}

	out, _, err = runCLI(t, "--server", addr, "scripts", "show", script.ID)
	if err != nil {
		t.Fatalf("scripts show: %v", err)
	}
	requireContains(t, out, script.ID)

	out, _, err = runCLI(t, "--server", addr, "analytics")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	requireContains(t, out, `"system_stats"`)

	out, _, err = runCLI(t, "--server", addr, "--token", session.Token, "cost")
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	requireContains(t, out, `"cost_breakdown"`)
}

func TestScriptsShowMissing(t *testing.T) {
	addr := setupCLIEnv(t)
	_, _, err := runCLI(t, "--server", addr, "scripts", "show", "nope")
	if err == nil {
		t.Fatal("expected error for missing script")
	}
	requireContains(t, err.Error(), "Script not found")
}

func TestLoginRequiresPassword(t *testing.T) {
	addr := setupCLIEnv(t)
	_, _, err := runCLI(t, "--server", addr, "users", "login", "--email", "a@example.com")
	if err == nil {
		t.Fatal("expected password error")
	}
	requireContains(t, err.Error(), "password is required")
}

func TestConfigInitValidateShow(t *testing.T) {
	setupCLIEnv(t)
	target := filepath.Join(t.TempDir(), "studio.toml")

	out, _, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting")
	}

	out, _, err = runCLI(t, "--config", target, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, "--config", target, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "[server]")
}

func TestDialAddress(t *testing.T) {
	cases := map[string]string{
		"0.0.0.0:8000":   "127.0.0.1:8000",
		":9000":          "127.0.0.1:9000",
		"10.0.0.5:8000":  "10.0.0.5:8000",
		"[::]:8000":      "127.0.0.1:8000",
		"not-an-address": "not-an-address",
	}
	for in, want := range cases {
		if got := dialAddress(in); got != want {
			t.Errorf("dialAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
