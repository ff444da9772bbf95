package directory

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRegisterAndLocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	d, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if loc, ok := d.Location("7"); ok || loc.String() != "UTC" {
		t.Errorf("Expected UTC default for unregistered owner, got %v ok=%v", loc, ok)
	}

	if err := d.Register("7", "Africa/Lagos"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	loc, ok := d.Location("user_7")
	if !ok || loc.String() != "Africa/Lagos" {
		t.Errorf("Expected Africa/Lagos, got %v ok=%v", loc, ok)
	}

	if err := d.Register("7", "Mars/Olympus"); !errors.Is(err, ErrInvalidZone) {
		t.Errorf("Expected ErrInvalidZone, got %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if owners := reopened.Owners(); len(owners) != 1 || owners[0] != "user_7" {
		t.Errorf("Expected persisted owner user_7, got %v", owners)
	}
}

func TestKeepsUnknownOnboardingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "database.json")
	seed := `{"user_9": {"timezone": "Europe/Berlin", "onboarding_step": "done", "name": "Ada"}}`
	if err := os.WriteFile(path, []byte(seed), 0600); err != nil {
		t.Fatal(err)
	}

	d, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := d.SetRefreshToken("9", "1//refresh"); err != nil {
		t.Fatalf("SetRefreshToken failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("directory not valid JSON: %v", err)
	}
	e := raw["user_9"]
	if e["onboarding_step"] != "done" || e["name"] != "Ada" || e["timezone"] != "Europe/Berlin" || e["refresh_token"] != "1//refresh" {
		t.Errorf("Unexpected entry after write: %v", e)
	}

	tok, err := d.RefreshToken("user_9")
	if err != nil || tok != "1//refresh" {
		t.Errorf("Expected stored token, got %q err=%v", tok, err)
	}
	if _, err := d.RefreshToken("user_10"); !errors.Is(err, ErrNoCredential) {
		t.Errorf("Expected ErrNoCredential, got %v", err)
	}
}
