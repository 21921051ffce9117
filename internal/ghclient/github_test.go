package ghclient

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), "test-token", WithEndpoint(server.URL))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestNewClient_RequiresToken(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	if _, err := NewClient(context.Background(), ""); err == nil {
		t.Error("expected error without a token")
	}
}

func TestRepositoryFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		fmt.Fprint(w, `{"full_name": "acme/widgets", "default_branch": "trunk"}`)
	})
	mux.HandleFunc("/repos/acme/widgets/git/trees/trunk", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("recursive") == "" {
			t.Error("tree should be requested recursively")
		}
		fmt.Fprint(w, `{"sha": "abc", "truncated": true, "tree": [
			{"path": "package.json", "type": "blob", "sha": "s1"},
			{"path": "packages", "type": "tree", "sha": "s2"},
			{"path": "packages/a/package.json", "type": "blob", "sha": "s3"}
		]}`)
	})
	mux.HandleFunc("/repos/acme/widgets/git/blobs/s1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sha": "s1", "encoding": "base64", "content": "eyJuYW1l\nIjoid2lkZ2V0cyJ9\n"}`)
	})

	client := newTestClient(t, mux)
	ctx := context.Background()

	branch, err := client.DefaultBranch(ctx, "acme", "widgets")
	if err != nil {
		t.Fatalf("DefaultBranch() error = %v", err)
	}
	if branch != "trunk" {
		t.Errorf("DefaultBranch() = %q, want trunk", branch)
	}

	files, truncated, err := client.Files(ctx, "acme", "widgets", branch)
	if err != nil {
		t.Fatalf("Files() error = %v", err)
	}
	if !truncated {
		t.Error("Files() truncated = false, want true")
	}
	want := []TreeEntry{{Path: "package.json", SHA: "s1"}, {Path: "packages/a/package.json", SHA: "s3"}}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("Files() mismatch (-want +got):\n%s", diff)
	}

	content, err := client.Blob(ctx, "acme", "widgets", "s1")
	if err != nil {
		t.Fatalf("Blob() error = %v", err)
	}
	if string(content) != `{"name":"widgets"}` {
		t.Errorf("Blob() = %q, want decoded JSON", content)
	}
}

func TestRateLimitTransport(t *testing.T) {
	reset := time.Now().Add(time.Hour).Unix()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprint(reset))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
	})

	client := newTestClient(t, mux)

	_, err := client.DefaultBranch(context.Background(), "acme", "widgets")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("DefaultBranch() error = %v, want ErrRateLimited", err)
	}
	if !client.RateLimitState().IsLimited() {
		t.Error("state should be limited after a rate limited response")
	}

	remaining, limit, _, limited := client.RateLimitState().Status()
	if remaining != 0 || limit != 5000 || !limited {
		t.Errorf("Status() = %d/%d limited=%v, want 0/5000 limited", remaining, limit, limited)
	}
}

func TestParseRateLimitHeaders(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	remaining, limit, resetAt := parseRateLimitHeaders(resp)
	if remaining != -1 || limit != -1 || !resetAt.IsZero() {
		t.Errorf("parseRateLimitHeaders(empty) = %d, %d, %v", remaining, limit, resetAt)
	}

	resp.Header.Set("X-RateLimit-Remaining", "42")
	resp.Header.Set("X-RateLimit-Limit", "60")
	resp.Header.Set("X-RateLimit-Reset", "1700000000")
	remaining, limit, resetAt = parseRateLimitHeaders(resp)
	if remaining != 42 || limit != 60 || resetAt.Unix() != 1700000000 {
		t.Errorf("parseRateLimitHeaders() = %d, %d, %v", remaining, limit, resetAt)
	}
}

func TestSplitRepository(t *testing.T) {
	tests := []struct {
		in        string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{"acme/widgets", "acme", "widgets", false},
		{"/acme/widgets/", "acme", "widgets", false},
		{"acme", "", "", true},
		{"acme/", "", "", true},
		{"acme/widgets/extra", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			owner, repo, err := SplitRepository(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SplitRepository(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("SplitRepository(%q) = %q, %q, want %q, %q", tt.in, owner, repo, tt.wantOwner, tt.wantRepo)
			}
		})
	}
}

func testKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return key, pem.EncodeToMemory(block)
}

func TestAppToken(t *testing.T) {
	key, keyPEM := testKey(t)
	app, err := NewApp("12345", keyPEM)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	app.now = func() time.Time { return now }

	signed, err := app.Token()
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodRS256 {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Method)
		}
		return &key.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("ParseWithClaims() error = %v", err)
	}

	if claims.Issuer != "12345" {
		t.Errorf("Issuer = %q, want 12345", claims.Issuer)
	}
	if got := claims.ExpiresAt.Sub(now); got != 5*time.Minute {
		t.Errorf("expiry = %v, want 5m", got)
	}
}

func TestNewApp_Errors(t *testing.T) {
	_, keyPEM := testKey(t)

	if _, err := NewApp("", keyPEM); err == nil {
		t.Error("expected error without an app ID")
	}
	if _, err := NewApp("1", []byte("not a key")); err == nil {
		t.Error("expected error for an invalid key")
	}
}

func TestLoadAppKey(t *testing.T) {
	_, keyPEM := testKey(t)

	inline, err := LoadAppKey(string(keyPEM))
	if err != nil || string(inline) != string(keyPEM) {
		t.Errorf("LoadAppKey(inline) = %v, want the PEM unchanged", err)
	}

	path := filepath.Join(t.TempDir(), "app.pem")
	if err := os.WriteFile(path, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
	fromFile, err := LoadAppKey(path)
	if err != nil || string(fromFile) != string(keyPEM) {
		t.Errorf("LoadAppKey(path) = %v, want file contents", err)
	}

	if _, err := LoadAppKey(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Error("expected error for a missing key file")
	}
}

func TestAppRepositories(t *testing.T) {
	_, keyPEM := testKey(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/app/installations", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ey") {
			t.Errorf("installations should authenticate with the app JWT, got %q", r.Header.Get("Authorization"))
		}
		fmt.Fprint(w, `[{"id": 7, "account": {"login": "acme"}}]`)
	})
	mux.HandleFunc("/app/installations/7/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"token": "ghs_installation"}`)
	})
	mux.HandleFunc("/installation/repositories", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer ghs_installation" {
			t.Errorf("Authorization = %q, want installation token", got)
		}
		fmt.Fprint(w, `{"total_count": 2, "repositories": [{"full_name": "acme/widgets"}, {"full_name": "acme/gears"}]}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	app, err := NewApp("12345", keyPEM, WithEndpoint(server.URL))
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}

	repos, err := app.Repositories(context.Background())
	if err != nil {
		t.Fatalf("Repositories() error = %v", err)
	}
	want := []InstallationRepository{
		{FullName: "acme/widgets", Token: "ghs_installation"},
		{FullName: "acme/gears", Token: "ghs_installation"},
	}
	if diff := cmp.Diff(want, repos); diff != "" {
		t.Errorf("Repositories() mismatch (-want +got):\n%s", diff)
	}
}
