// Package remote is the contract for the hosted task service tasks are
// mirrored to.
package remote

import (
	"context"
	"time"
)

// Task is a task as the remote service reports it.
type Task struct {
	ID        string
	Title     string
	Notes     string
	Due       string
	Completed bool
}

// Fields carries an update. Nil fields are left as they are remotely.
type Fields struct {
	Title   *string
	Details *string
	Due     *time.Time
}

// Service is implemented by remote task backends. Every call may fail; callers
// treat all failures alike and retry on their next pass.
type Service interface {
	Create(ctx context.Context, owner, title string, due *time.Time, details string) (string, error)
	Update(ctx context.Context, remoteID, owner string, f Fields) error
	Delete(ctx context.Context, remoteID, owner string) error
	Complete(ctx context.Context, remoteID, owner string) error
	List(ctx context.Context, owner string) ([]Task, error)
}
