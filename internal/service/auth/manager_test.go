package auth_test

import (
	"path/filepath"
	"testing"

	"github.com/cascadehq/docagent/internal/service/auth"
)

func TestManagerLoginLogout(t *testing.T) {
	m := auth.NewManager(nil)

	if m.LoggedIn() {
		t.Fatal("fresh manager must be logged out")
	}

	if err := m.Login("  tok-123  "); err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if got := m.Token(); got != "tok-123" {
		t.Fatalf("unexpected token: %q", got)
	}

	if err := m.Logout(); err != nil {
		t.Fatalf("Logout err: %v", err)
	}
	if m.LoggedIn() {
		t.Fatal("expected logged out after Logout")
	}
}

func TestManagerRejectsEmptyToken(t *testing.T) {
	m := auth.NewManager(nil)
	if err := m.Login("   "); err == nil {
		t.Fatal("expected error for blank token")
	}
}

func TestFileStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "token")
	m := auth.NewManager(auth.FileStorage{Path: path})

	if err := m.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap on missing file err: %v", err)
	}
	if m.LoggedIn() {
		t.Fatal("missing file must bootstrap to logged out")
	}

	if err := m.Login("persisted-token"); err != nil {
		t.Fatalf("Login err: %v", err)
	}

	reloaded := auth.NewManager(auth.FileStorage{Path: path})
	if err := reloaded.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap err: %v", err)
	}
	if got := reloaded.Token(); got != "persisted-token" {
		t.Fatalf("unexpected reloaded token: %q", got)
	}

	if err := reloaded.Logout(); err != nil {
		t.Fatalf("Logout err: %v", err)
	}
	cleared := auth.NewManager(auth.FileStorage{Path: path})
	if err := cleared.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap err: %v", err)
	}
	if cleared.LoggedIn() {
		t.Fatal("expected cleared token after logout")
	}
}
