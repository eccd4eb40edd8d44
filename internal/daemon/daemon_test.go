package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"studio/internal/config"
	"studio/internal/daemon"
	"studio/internal/logging"
	"studio/internal/testsupport"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Address == "" || status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.SnapshotPath != cfg.SnapshotPath() {
		t.Fatalf("snapshot path = %q, want %q", status.SnapshotPath, cfg.SnapshotPath())
	}

	resp, err := http.Get("http://" + status.Address + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	status = d.Status()
	if status.Running || status.Address != "" {
		t.Fatalf("expected daemon to be stopped, got %+v", status)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	second := newDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	err := second.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second Start after release: %v", err)
	}
}

func TestDaemonPersistsAcrossRestart(t *testing.T) {
	for _, driver := range []string{"memory", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			cfg := testsupport.NewConfig(t, testsupport.WithStorageDriver(driver), testsupport.WithoutRateLimit())
			ctx := context.Background()

			d := newDaemon(t, cfg)
			if err := d.Start(ctx); err != nil {
				t.Fatalf("Start: %v", err)
			}
			body := []byte(`{"email":"restart@example.com","password":"password123","name":"Restart"}`)
			resp, err := http.Post("http://"+d.Status().Address+"/api/users/register", "application/json", bytes.NewReader(body))
			if err != nil {
				t.Fatalf("register: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusCreated {
				t.Fatalf("register status = %d", resp.StatusCode)
			}
			d.Stop()

			if err := d.Start(ctx); err != nil {
				t.Fatalf("restart: %v", err)
			}
			login := []byte(`{"email":"restart@example.com","password":"password123"}`)
			resp, err = http.Post("http://"+d.Status().Address+"/api/users/login", "application/json", bytes.NewReader(login))
			if err != nil {
				t.Fatalf("login: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("login status = %d", resp.StatusCode)
			}
			var session struct {
				Token string `json:"token"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
				t.Fatalf("decode login: %v", err)
			}
			if session.Token == "" {
				t.Fatal("expected access token after restart")
			}
		})
	}
}

func TestDaemonRunStopsOnCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !d.Status().Running {
		if time.Now().After(deadline) {
			t.Fatal("daemon did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if d.Status().Running {
		t.Fatal("expected daemon stopped after Run returns")
	}
}
