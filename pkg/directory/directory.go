package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/harrisonrobin/tasknudge/pkg/model"
)

var (
	ErrInvalidZone  = errors.New("invalid timezone")
	ErrNoCredential = errors.New("no remote credential registered")
)

// Entry is one owner's record. Onboarding state written by other tools is
// kept in Extra and written back untouched.
type Entry struct {
	Timezone     string                     `json:"timezone,omitempty"`
	RefreshToken string                     `json:"refresh_token,omitempty"`
	Extra        map[string]json.RawMessage `json:"-"`
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for key, dst := range map[string]*string{"timezone": &e.Timezone, "refresh_token": &e.RefreshToken} {
		if v, ok := raw[key]; ok {
			if err := json.Unmarshal(v, dst); err != nil {
				return fmt.Errorf("field %s: %w", key, err)
			}
			delete(raw, key)
		}
	}
	e.Extra = raw
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Extra)+2)
	for k, v := range e.Extra {
		out[k] = v
	}
	if e.Timezone != "" {
		out["timezone"] = e.Timezone
	}
	if e.RefreshToken != "" {
		out["refresh_token"] = e.RefreshToken
	}
	return json.Marshal(out)
}

// Directory maps owners to their registered time zone and remote credential.
type Directory struct {
	Path    string
	entries map[string]Entry
	mu      sync.RWMutex
}

// New opens the directory file at path. A missing file is an empty directory.
func New(path string) (*Directory, error) {
	d := &Directory{Path: path, entries: make(map[string]Entry)}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload re-reads the file, picking up registrations made by other processes.
func (d *Directory) Reload() error {
	f, err := os.Open(d.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	entries := make(map[string]Entry)
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return fmt.Errorf("failed to decode directory %s: %w", d.Path, err)
	}
	normalized := make(map[string]Entry, len(entries))
	for owner, e := range entries {
		normalized[model.NormalizeOwner(owner)] = e
	}

	d.mu.Lock()
	d.entries = normalized
	d.mu.Unlock()
	return nil
}

// Location returns the owner's registered zone. Unregistered owners, and
// owners whose stored zone no longer loads, get UTC and ok == false.
func (d *Directory) Location(owner string) (loc *time.Location, ok bool) {
	d.mu.RLock()
	e, exists := d.entries[model.NormalizeOwner(owner)]
	d.mu.RUnlock()
	if !exists || e.Timezone == "" {
		return time.UTC, false
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return time.UTC, false
	}
	return loc, true
}

// RefreshToken returns the owner's stored remote credential.
func (d *Directory) RefreshToken(owner string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e := d.entries[model.NormalizeOwner(owner)]
	if e.RefreshToken == "" {
		return "", fmt.Errorf("%w for %s", ErrNoCredential, owner)
	}
	return e.RefreshToken, nil
}

// Owners lists every registered owner in a stable order.
func (d *Directory) Owners() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	owners := make([]string, 0, len(d.entries))
	for o := range d.entries {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners
}

// Register sets the owner's IANA time zone and persists the directory.
func (d *Directory) Register(owner, zone string) error {
	zone = strings.TrimSpace(zone)
	if _, err := time.LoadLocation(zone); err != nil || zone == "" {
		return fmt.Errorf("%w: %q", ErrInvalidZone, zone)
	}
	return d.update(owner, func(e *Entry) { e.Timezone = zone })
}

// SetRefreshToken stores the credential the remote adapter acts with.
func (d *Directory) SetRefreshToken(owner, token string) error {
	return d.update(owner, func(e *Entry) { e.RefreshToken = strings.TrimSpace(token) })
}

func (d *Directory) update(owner string, fn func(*Entry)) error {
	owner = model.NormalizeOwner(owner)
	if owner == "" {
		return errors.New("empty owner")
	}
	if err := d.Reload(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	e := d.entries[owner]
	fn(&e)
	d.entries[owner] = e
	return d.save()
}

func (d *Directory) save() error {
	dir := filepath.Dir(d.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory folder: %w", err)
	}

	tmp := d.Path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open directory file for writing: %w", err)
	}
	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(d.entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, d.Path)
}
