package google

import (
	"context"
	"fmt"
	"net/http"

	"github.com/harrisonrobin/tasknudge/pkg/auth"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

const defaultList = "@default"

// TokenStore yields the refresh token an owner onboarded with.
type TokenStore interface {
	RefreshToken(owner string) (string, error)
}

// ServiceFactory builds a Tasks API service acting as owner.
type ServiceFactory func(ctx context.Context, owner string) (*tasks.Service, error)

// OAuthFactory builds services authenticated with each owner's stored
// refresh token.
func OAuthFactory(config *oauth2.Config, tokens TokenStore) ServiceFactory {
	return func(ctx context.Context, owner string) (*tasks.Service, error) {
		refresh, err := tokens.RefreshToken(owner)
		if err != nil {
			return nil, err
		}
		// The client outlives ctx, so token refreshes must not be tied to it.
		client := oauth2.NewClient(context.Background(), auth.TokenSource(context.Background(), config, refresh))
		return newService(ctx, client)
	}
}

func newService(ctx context.Context, client *http.Client) (*tasks.Service, error) {
	srv, err := tasks.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Tasks client: %w", err)
	}
	return srv, nil
}

// NewClient creates a Google Tasks client that acts for every owner in
// tokens, writing to the task list titled listName.
func NewClient(clientSecretsFile, listName string, tokens TokenStore) (*TasksClient, error) {
	config, err := auth.GetConfig(clientSecretsFile, auth.Scopes)
	if err != nil {
		return nil, err
	}
	return NewTasksClient(OAuthFactory(config, tokens), listName), nil
}

// resolveList finds the id of the task list titled name.
func resolveList(ctx context.Context, srv *tasks.Service, name string) (string, error) {
	if name == "" || name == defaultList {
		return defaultList, nil
	}

	var listID string
	err := srv.Tasklists.List().Pages(ctx, func(page *tasks.TaskLists) error {
		for _, item := range page.Items {
			if item.Title == name && listID == "" {
				listID = item.Id
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("unable to retrieve task lists: %w", err)
	}
	if listID == "" {
		return "", fmt.Errorf("task list '%s' not found", name)
	}
	return listID, nil
}
