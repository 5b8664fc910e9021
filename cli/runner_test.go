package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/richinex/geoassist/config"
	"github.com/richinex/geoassist/storage"
)

func TestListTools(t *testing.T) {
	var out bytes.Buffer
	if err := ListTools(&out, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, name := range []string{"RunAnalysis", "AnswerFromDocuments", "DraftReport", "ListLayerNames"} {
		if !strings.Contains(out.String(), "  "+name+"\n") {
			t.Errorf("expected %s in output:\n%s", name, out.String())
		}
	}
	if strings.Contains(out.String(), "Parameters:") {
		t.Errorf("parameters listed without verbose:\n%s", out.String())
	}
}

func TestListToolsVerbose(t *testing.T) {
	var out bytes.Buffer
	if err := ListTools(&out, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(out.String(), "Tool: RunAnalysis\n") {
		t.Errorf("expected RunAnalysis block in output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "  - startDate1 (string): ") || !strings.Contains(out.String(), "[required]") {
		t.Errorf("expected parameter details in output:\n%s", out.String())
	}
}

func TestAddUserIssuesWorkingToken(t *testing.T) {
	settings := config.Settings{Storage: config.StorageConfig{DBPath: filepath.Join(t.TempDir(), "test.db")}}
	var out bytes.Buffer

	err := AddUser(context.Background(), &out, settings, UserOptions{ID: "alice", Role: "analyst", Tier: "free"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var token string
	for _, line := range strings.Split(out.String(), "\n") {
		if v, ok := strings.CutPrefix(line, "Token:"); ok {
			token = strings.TrimSpace(v)
		}
	}
	if !strings.HasPrefix(token, "ga_") {
		t.Fatalf("no token in output:\n%s", out.String())
	}

	store, err := storage.OpenSqlite(settings.Storage.DBPath)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	userID, err := store.LookupToken(context.Background(), token)
	if err != nil || userID != "alice" {
		t.Errorf("LookupToken = %q, %v", userID, err)
	}
	role, tier, err := store.ResolveRoleAndTier(context.Background(), "alice")
	if err != nil || role != "analyst" || tier != "free" {
		t.Errorf("ResolveRoleAndTier = %q %q %v", role, tier, err)
	}
}

func TestAddUserRejectsUnknownRole(t *testing.T) {
	settings := config.Settings{Storage: config.StorageConfig{DBPath: filepath.Join(t.TempDir(), "test.db")}}

	err := AddUser(context.Background(), &bytes.Buffer{}, settings, UserOptions{ID: "bob", Role: "guest", Tier: "free"})
	if err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	if err := Serve(context.Background(), config.Settings{}, nil); err == nil {
		t.Error("expected configuration error")
	}
}
