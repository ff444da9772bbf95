// Package ledger keeps the durable records of notifications already sent, so
// a restart does not send them again.
//
// Both ledgers are append-only JSON lines files loaded into an in-memory
// index at open. A torn last line from a crash is ignored on load.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record marks one reminder threshold as fired for one task occurrence.
type Record struct {
	Owner     string    `json:"owner"`
	TaskKey   string    `json:"task_key"`
	Threshold int       `json:"threshold"`
	FiredAt   time.Time `json:"fired_at"`
}

type reminderKey struct {
	owner     string
	taskKey   string
	threshold int
}

// Reminders is the reminder dedup ledger.
type Reminders struct {
	Path  string
	mu    sync.Mutex
	index map[reminderKey]Record
}

func OpenReminders(path string) (*Reminders, error) {
	r := &Reminders{Path: path, index: make(map[reminderKey]Record)}
	err := readLines(path, func(line []byte) {
		var rec Record
		if json.Unmarshal(line, &rec) == nil && rec.Owner != "" {
			r.index[reminderKey{rec.Owner, rec.TaskKey, rec.Threshold}] = rec
		}
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Fired reports whether the threshold was already notified for the task key.
func (r *Reminders) Fired(owner, taskKey string, threshold int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.index[reminderKey{owner, taskKey, threshold}]
	return ok
}

// Record durably marks the threshold fired. Recording twice is harmless.
func (r *Reminders) Record(owner, taskKey string, threshold int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := reminderKey{owner, taskKey, threshold}
	if _, ok := r.index[k]; ok {
		return nil
	}
	rec := Record{Owner: owner, TaskKey: taskKey, Threshold: threshold, FiredAt: at.UTC()}
	if err := appendLine(r.Path, rec); err != nil {
		return err
	}
	r.index[k] = rec
	return nil
}

// Prune rewrites the ledger keeping only records for which keep returns
// true. It returns how many records were dropped.
func (r *Reminders) Prune(keep func(Record) bool) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := make(map[reminderKey]Record, len(r.index))
	var lines []any
	for k, rec := range r.index {
		if keep(rec) {
			kept[k] = rec
			lines = append(lines, rec)
		}
	}
	removed := len(r.index) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := rewrite(r.Path, lines); err != nil {
		return 0, err
	}
	r.index = kept
	return removed, nil
}

// Len returns the number of records in the index.
func (r *Reminders) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.index)
}

// SummaryRecord marks the daily summary as sent for one owner and local date.
type SummaryRecord struct {
	Owner     string    `json:"owner"`
	LocalDate string    `json:"local_date"`
	SentAt    time.Time `json:"sent_at"`
}

type summaryKey struct {
	owner string
	date  string
}

// Summaries is the daily-summary ledger.
type Summaries struct {
	Path  string
	mu    sync.Mutex
	index map[summaryKey]bool
}

func OpenSummaries(path string) (*Summaries, error) {
	s := &Summaries{Path: path, index: make(map[summaryKey]bool)}
	err := readLines(path, func(line []byte) {
		var rec SummaryRecord
		if json.Unmarshal(line, &rec) == nil && rec.Owner != "" {
			s.index[summaryKey{rec.Owner, rec.LocalDate}] = true
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Sent reports whether the summary for owner on localDate (YYYY-MM-DD) went out.
func (s *Summaries) Sent(owner, localDate string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index[summaryKey{owner, localDate}]
}

func (s *Summaries) Record(owner, localDate string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := summaryKey{owner, localDate}
	if s.index[k] {
		return nil
	}
	if err := appendLine(s.Path, SummaryRecord{Owner: owner, LocalDate: localDate, SentAt: at.UTC()}); err != nil {
		return err
	}
	s.index[k] = true
	return nil
}

func readLines(path string, fn func([]byte)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Bytes(); len(line) > 0 {
			fn(line)
		}
	}
	return scanner.Err()
}

func appendLine(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open ledger %s: %w", path, err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("failed to append to ledger %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func rewrite(path string, lines []any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(f)
	for _, l := range lines {
		if err := encoder.Encode(l); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
