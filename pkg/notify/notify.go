// Package notify delivers reminder and summary messages to owners.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Kind string

const (
	KindReminder Kind = "reminder"
	KindSummary  Kind = "summary"
)

type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Owner     string    `json:"owner"`
	TaskKey   string    `json:"task_key,omitempty"`
	Threshold int       `json:"threshold,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// New stamps a notification with a fresh id.
func New(kind Kind, owner, text string, at time.Time) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Owner:     owner,
		Text:      text,
		CreatedAt: at.UTC(),
	}
}

// Notifier delivers a notification. Delivery is best effort and never
// retried by callers.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Log writes notifications to the structured log.
type Log struct {
	Logger *zap.SugaredLogger
}

func (l Log) Notify(_ context.Context, n Notification) error {
	l.Logger.Infow("notify: message",
		"id", n.ID,
		"kind", n.Kind,
		"owner", n.Owner,
		"task_key", n.TaskKey,
		"threshold", n.Threshold,
		"text", n.Text,
	)
	return nil
}

// Outbox appends notifications as JSON lines for the chat transport to drain.
type Outbox struct {
	Path string
	mu   sync.Mutex
}

func NewOutbox(path string) *Outbox {
	return &Outbox{Path: path}
}

func (o *Outbox) Notify(_ context.Context, n Notification) error {
	line, err := json.Marshal(n)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(o.Path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(o.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open outbox: %w", err)
	}
	_, err = f.Write(append(line, '\n'))
	return multierr.Append(err, f.Close())
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var err error
	for _, notifier := range m {
		err = multierr.Append(err, notifier.Notify(ctx, n))
	}
	return err
}
