package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const installedSecrets = `{
  "installed": {
    "client_id": "123.apps.googleusercontent.com",
    "client_secret": "shh",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "redirect_uris": ["http://localhost"]
  }
}`

func TestGetConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte(installedSecrets), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := GetConfig(path, Scopes)
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if cfg.ClientID != "123.apps.googleusercontent.com" {
		t.Errorf("Unexpected client id %q", cfg.ClientID)
	}
	if len(cfg.Scopes) != 1 || !strings.HasSuffix(cfg.Scopes[0], "/auth/tasks") {
		t.Errorf("Expected the tasks scope, got %v", cfg.Scopes)
	}
}

func TestGetConfigMissingFile(t *testing.T) {
	if _, err := GetConfig(filepath.Join(t.TempDir(), "nope.json"), Scopes); err == nil {
		t.Error("Expected an error for a missing secrets file")
	}
}
