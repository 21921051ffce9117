package ghclient

import (
	"context"
	"crypto/rsa"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v57/github"

	"github.com/spiffcs/deprecator/internal/constants"
	"github.com/spiffcs/deprecator/internal/log"
)

// Installation is a GitHub App installation.
type Installation struct {
	ID      int64
	Account string
}

// InstallationRepository is a repository an installation can access, along
// with the installation token that grants that access.
type InstallationRepository struct {
	FullName string
	// Token is short-lived and must never be logged.
	Token string
}

// App authenticates as a GitHub App.
type App struct {
	id       string
	key      *rsa.PrivateKey
	endpoint string
	now      func() time.Time
}

// LoadAppKey returns the PEM bytes of value, reading it as a file path when
// it does not look like a PEM block.
func LoadAppKey(value string) ([]byte, error) {
	if strings.Contains(value, "-----BEGIN") {
		return []byte(value), nil
	}
	data, err := os.ReadFile(value)
	if err != nil {
		return nil, fmt.Errorf("failed to read GitHub App key: %w", err)
	}
	return data, nil
}

// NewApp creates an App from its ID and RSA private key in PEM form.
func NewApp(id string, keyPEM []byte, opts ...Option) (*App, error) {
	if id == "" {
		return nil, fmt.Errorf("GitHub App ID not provided. Set the GITHUB_APP_ID environment variable")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GitHub App key: %w", err)
	}

	o := buildOptions(opts)
	return &App{
		id:       id,
		key:      key,
		endpoint: o.endpoint,
		now:      time.Now,
	}, nil
}

// Token returns a signed JWT identifying the app.
func (a *App) Token() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Issuer: a.id,
		// backdated to tolerate clock drift
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(constants.AppTokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign GitHub App token: %w", err)
	}
	return signed, nil
}

func (a *App) client(ctx context.Context) (*gh.Client, error) {
	token, err := a.Token()
	if err != nil {
		return nil, err
	}
	return newGitHubClient(ctx, token, a.endpoint, &RateLimitState{})
}

// Installations lists every installation of the app.
func (a *App) Installations(ctx context.Context) ([]Installation, error) {
	client, err := a.client(ctx)
	if err != nil {
		return nil, err
	}

	opts := &gh.ListOptions{PerPage: 100}
	var out []Installation
	for {
		installs, resp, err := client.Apps.ListInstallations(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list installations: %w", err)
		}
		for _, inst := range installs {
			out = append(out, Installation{ID: inst.GetID(), Account: inst.GetAccount().GetLogin()})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	log.Debug("fetched installations", "count", len(out))
	return out, nil
}

// InstallationToken mints an access token for one installation.
func (a *App) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	client, err := a.client(ctx)
	if err != nil {
		return "", err
	}

	log.Debug("creating installation token", "installation", installationID, "endpoint", a.endpoint)
	tok, _, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create token for installation %d: %w", installationID, err)
	}
	return tok.GetToken(), nil
}

// InstallationRepositories lists the repositories one installation can
// access. Each result carries the installation token.
func (a *App) InstallationRepositories(ctx context.Context, installationID int64) ([]InstallationRepository, error) {
	token, err := a.InstallationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	client, err := newGitHubClient(ctx, token, a.endpoint, &RateLimitState{})
	if err != nil {
		return nil, err
	}

	opts := &gh.ListOptions{PerPage: 100}
	var out []InstallationRepository
	for {
		repos, resp, err := client.Apps.ListRepos(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list repositories for installation %d: %w", installationID, err)
		}
		for _, r := range repos.Repositories {
			out = append(out, InstallationRepository{FullName: r.GetFullName(), Token: token})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	names := make([]string, 0, len(out))
	for _, r := range out {
		names = append(names, r.FullName)
	}
	log.Debug("found repositories for installation", "installation", installationID, "repositories", names)
	return out, nil
}

// Repositories lists the repositories of every installation.
func (a *App) Repositories(ctx context.Context) ([]InstallationRepository, error) {
	installs, err := a.Installations(ctx)
	if err != nil {
		return nil, err
	}

	var out []InstallationRepository
	for _, inst := range installs {
		repos, err := a.InstallationRepositories(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, repos...)
	}
	return out, nil
}
