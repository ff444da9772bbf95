package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/harrisonrobin/tasknudge/pkg/remote"
	"github.com/harrisonrobin/tasknudge/pkg/util"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/tasks/v1"
)

// TasksClient is a Google Tasks API client that acts on behalf of many
// owners. It implements remote.Service.
type TasksClient struct {
	factory  ServiceFactory
	listName string
	now      func() time.Time

	mu       sync.Mutex
	services map[string]*ownerService
}

type ownerService struct {
	srv    *tasks.Service
	listID string
}

var _ remote.Service = (*TasksClient)(nil)

// NewTasksClient creates a client over factory.
func NewTasksClient(factory ServiceFactory, listName string) *TasksClient {
	return &TasksClient{
		factory:  factory,
		listName: listName,
		now:      time.Now,
		services: make(map[string]*ownerService),
	}
}

func (c *TasksClient) service(ctx context.Context, owner string) (*ownerService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.services[owner]; ok {
		return s, nil
	}

	srv, err := c.factory(ctx, owner)
	if err != nil {
		return nil, err
	}
	listID, err := resolveList(ctx, srv, c.listName)
	if err != nil {
		return nil, err
	}
	s := &ownerService{srv: srv, listID: listID}
	c.services[owner] = s
	return s, nil
}

// forget drops a cached service after an auth failure so the next call
// rebuilds it from the directory.
func (c *TasksClient) forget(owner string, err error) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
		c.mu.Lock()
		delete(c.services, owner)
		c.mu.Unlock()
	}
}

// Create inserts a new task and returns its id.
func (c *TasksClient) Create(ctx context.Context, owner, title string, due *time.Time, details string) (string, error) {
	payload, err := util.ConvertTaskToRemote(title, due, details)
	if err != nil {
		return "", err
	}
	s, err := c.service(ctx, owner)
	if err != nil {
		return "", err
	}
	created, err := s.srv.Tasks.Insert(s.listID, payload).Context(ctx).Do()
	if err != nil {
		c.forget(owner, err)
		return "", fmt.Errorf("insert task: %w", err)
	}
	if created.Id == "" {
		return "", errors.New("insert task: response carried no id")
	}
	return created.Id, nil
}

// Update patches the fields set in f.
func (c *TasksClient) Update(ctx context.Context, remoteID, owner string, f remote.Fields) error {
	patch := util.PatchFromFields(f)
	if patch == nil {
		return nil
	}
	s, err := c.service(ctx, owner)
	if err != nil {
		return err
	}
	if _, err := s.srv.Tasks.Patch(s.listID, remoteID, patch).Context(ctx).Do(); err != nil {
		c.forget(owner, err)
		return fmt.Errorf("patch task %s: %w", remoteID, err)
	}
	return nil
}

// Complete marks the task completed. A task the service no longer has
// counts as completed.
func (c *TasksClient) Complete(ctx context.Context, remoteID, owner string) error {
	s, err := c.service(ctx, owner)
	if err != nil {
		return err
	}
	_, err = s.srv.Tasks.Patch(s.listID, remoteID, util.CompletionPatch(c.now())).Context(ctx).Do()
	if err != nil && !isGone(err) {
		c.forget(owner, err)
		return fmt.Errorf("complete task %s: %w", remoteID, err)
	}
	return nil
}

// Delete removes the task. A task the service no longer has counts as
// deleted.
func (c *TasksClient) Delete(ctx context.Context, remoteID, owner string) error {
	s, err := c.service(ctx, owner)
	if err != nil {
		return err
	}
	if err := s.srv.Tasks.Delete(s.listID, remoteID).Context(ctx).Do(); err != nil && !isGone(err) {
		c.forget(owner, err)
		return fmt.Errorf("delete task %s: %w", remoteID, err)
	}
	return nil
}

// List fetches every task in the owner's list, completed ones included.
func (c *TasksClient) List(ctx context.Context, owner string) ([]remote.Task, error) {
	s, err := c.service(ctx, owner)
	if err != nil {
		return nil, err
	}
	var out []remote.Task
	err = s.srv.Tasks.List(s.listID).ShowCompleted(true).Pages(ctx, func(page *tasks.Tasks) error {
		for _, t := range page.Items {
			out = append(out, util.ConvertRemoteTask(t))
		}
		return nil
	})
	if err != nil {
		c.forget(owner, err)
		return nil, fmt.Errorf("unable to retrieve tasks: %w", err)
	}
	return out, nil
}

func isGone(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone)
}
