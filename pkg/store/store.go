// Package store holds the authoritative local task records.
//
// The record set lives in one flat CSV file. Every mutation reads the whole
// set, applies a change and atomically replaces the file, all under a single
// writer lock per Store.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harrisonrobin/tasknudge/pkg/match"
	"github.com/harrisonrobin/tasknudge/pkg/model"
	"go.uber.org/zap"
)

// Fields is the persisted column layout.
var Fields = []string{"owner", "title", "details", "due", "readiness", "sync_state", "remote_id", "assistant_note"}

var (
	ErrNoOwner      = errors.New("task has no owner")
	ErrInvalidState = errors.New("invalid sync state")
)

// Identity names an existing task exactly. RemoteID wins when set; otherwise
// the title must match case-insensitively.
type Identity struct {
	RemoteID string
	Title    string
}

type Store struct {
	Path    string
	matcher match.Matcher
	log     *zap.SugaredLogger
	mu      sync.Mutex
}

// New returns a store backed by the CSV file at path. The file is created on
// first write.
func New(path string, m match.Matcher, log *zap.SugaredLogger) *Store {
	if m == nil {
		m = match.Default()
	}
	return &Store{Path: path, matcher: m, log: log}
}

// Matcher returns the title matching policy the store resolves upserts with.
func (s *Store) Matcher() match.Matcher {
	return s.matcher
}

// ListAll returns a snapshot of every record in store order.
func (s *Store) ListAll() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// ListForOwner returns the owner's records ordered by ascending due, with
// absent or unparseable due values last. limit > 0 keeps the first limit rows.
func (s *Store) ListForOwner(owner string, limit int) []model.Task {
	owner = model.NormalizeOwner(owner)
	var out []model.Task
	for _, t := range s.ListAll() {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	SortByDue(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SortByDue orders tasks by ascending due; tasks without a resolvable due
// keep their relative order at the end.
func SortByDue(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		di, oki := tasks[i].DueTime()
		dj, okj := tasks[j].DueTime()
		switch {
		case oki && okj:
			return di.Before(dj)
		case oki:
			return true
		default:
			return false
		}
	})
}

// Update is the store's transaction boundary: fn receives a snapshot of the
// record set and returns the set to persist. Returning an error aborts the
// write.
func (s *Store) Update(fn func(rows []model.Task) ([]model.Task, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := fn(s.load())
	if err != nil {
		return err
	}
	for i := range rows {
		rows[i] = rows[i].Normalize()
	}
	return s.save(rows)
}

// Upsert folds m into the owner's matching record, or appends a new one.
// A record matches on remote id, else on title similarity. The result is
// always pending.
func (s *Store) Upsert(m model.Mutation) (model.Task, bool, error) {
	m.Owner = model.NormalizeOwner(m.Owner)
	if m.Owner == "" {
		return model.Task{}, false, ErrNoOwner
	}

	var result model.Task
	created := false
	err := s.Update(func(rows []model.Task) ([]model.Task, error) {
		idx := s.resolve(rows, m)
		if idx < 0 {
			result = model.Task{Owner: m.Owner}.Apply(m)
			created = true
			return append(rows, result), nil
		}
		result = rows[idx].Apply(m)
		rows[idx] = result
		return rows, nil
	})
	if err != nil {
		return model.Task{}, false, err
	}
	return result, created, nil
}

func (s *Store) resolve(rows []model.Task, m model.Mutation) int {
	if m.RemoteID != "" {
		for i, r := range rows {
			if r.Owner == m.Owner && r.RemoteID == m.RemoteID {
				return i
			}
		}
	}
	if m.Title == nil || strings.TrimSpace(*m.Title) == "" {
		return -1
	}
	for i, r := range rows {
		if r.Owner == m.Owner && s.matcher.Same(r.Title, *m.Title) {
			return i
		}
	}
	return -1
}

// SetStatus sets the sync state of the task named exactly by id. Marking a
// task passed or delete before it ever reached the remote service drops it.
// It reports whether a task matched.
func (s *Store) SetStatus(owner string, id Identity, state model.SyncState) (bool, error) {
	if !state.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	owner = model.NormalizeOwner(owner)
	found := false
	err := s.Update(func(rows []model.Task) ([]model.Task, error) {
		idx := findExact(rows, owner, id)
		if idx < 0 {
			return rows, nil
		}
		found = true
		if state.Terminal() && rows[idx].RemoteID == "" {
			return append(rows[:idx], rows[idx+1:]...), nil
		}
		rows[idx].SyncState = state
		return rows, nil
	})
	return found, err
}

func findExact(rows []model.Task, owner string, id Identity) int {
	for i, r := range rows {
		if r.Owner != owner {
			continue
		}
		if id.RemoteID != "" {
			if r.RemoteID == id.RemoteID {
				return i
			}
			continue
		}
		if id.Title != "" && strings.EqualFold(strings.TrimSpace(r.Title), strings.TrimSpace(id.Title)) {
			return i
		}
	}
	return -1
}

// CompareAndSwap replaces the first record equal to old with next, or removes
// it when next is nil. It reports false when no record equals old any more.
func (s *Store) CompareAndSwap(old model.Task, next *model.Task) (bool, error) {
	swapped := false
	err := s.Update(func(rows []model.Task) ([]model.Task, error) {
		for i, r := range rows {
			if r != old {
				continue
			}
			swapped = true
			if next == nil {
				return append(rows[:i], rows[i+1:]...), nil
			}
			rows[i] = *next
			return rows, nil
		}
		return rows, nil
	})
	return swapped, err
}

// load reads the record set. A missing file is an empty set; so is a file
// that cannot be parsed, which is first moved aside so it is not overwritten.
func (s *Store) load() []model.Task {
	f, err := os.Open(s.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Errorw("store: could not open task file, treating as empty", "path", s.Path, "error", err)
		}
		return nil
	}
	rows, err := decode(f)
	f.Close()
	if err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", s.Path, time.Now().Unix())
		if rerr := os.Rename(s.Path, aside); rerr != nil {
			s.log.Errorw("store: could not quarantine unreadable task file", "path", s.Path, "error", rerr)
		}
		s.log.Errorw("store: task file unreadable, treating as empty", "path", s.Path, "quarantined", aside, "error", err)
		return nil
	}
	return rows
}

func decode(r io.Reader) ([]model.Task, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"owner", "title", "due", "sync_state"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	get := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var rows []model.Task
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, model.Task{
			Owner:         get(rec, "owner"),
			Title:         get(rec, "title"),
			Details:       get(rec, "details"),
			Due:           get(rec, "due"),
			Readiness:     get(rec, "readiness"),
			SyncState:     model.SyncState(get(rec, "sync_state")),
			RemoteID:      get(rec, "remote_id"),
			AssistantNote: get(rec, "assistant_note"),
		}.Normalize())
	}
	return rows, nil
}

// save writes rows to a temp file next to Path and renames it into place.
func (s *Store) save(rows []model.Task) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp task file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(Fields); err != nil {
		tmp.Close()
		return err
	}
	for _, t := range rows {
		rec := []string{t.Owner, t.Title, t.Details, t.Due, t.Readiness, string(t.SyncState), t.RemoteID, t.AssistantNote}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write task file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("failed to replace task file: %w", err)
	}
	return nil
}
