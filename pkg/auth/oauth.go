package auth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/tasks/v1"
)

const (
	// ClientSecretsFile is the downloaded Google API credentials.json, read
	// from the config directory unless an absolute path is configured.
	ClientSecretsFile = "credentials.json"

	xdgAppName = "tasknudge"
)

// Scopes are the permissions every owner grants during onboarding.
var Scopes = []string{tasks.TasksScope}

// GetConfig creates an oauth2.Config from the client secrets file.
func GetConfig(clientSecretsFile string, scopes []string) (*oauth2.Config, error) {
	if clientSecretsFile == "" {
		xdgConfigBase, err := GetXdgHome()
		if err != nil {
			return nil, err
		}
		clientSecretsFile = filepath.Join(xdgConfigBase, ClientSecretsFile)
	}

	b, err := os.ReadFile(clientSecretsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", clientSecretsFile, err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	return config, nil
}

// TokenSource returns a source that mints access tokens from an owner's
// stored refresh token. Access tokens are cached until they expire.
//
// The refresh token itself comes from onboarding; exchanging an
// authorization code for one is not done here.
func TokenSource(ctx context.Context, config *oauth2.Config, refreshToken string) oauth2.TokenSource {
	tok := &oauth2.Token{RefreshToken: refreshToken}
	return oauth2.ReuseTokenSource(nil, config.TokenSource(ctx, tok))
}

func GetXdgHome() (string, error) {
	xdgHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(xdgHome, ".config", xdgAppName), nil
}
