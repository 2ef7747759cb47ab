package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"Spotify-Likes-Go/pkg/config"
	"Spotify-Likes-Go/pkg/db"
	"Spotify-Likes-Go/pkg/logging"
)

// TestMigrateCreatesDatabase runs the migrate subcommand against a temporary
// file.
func TestMigrateCreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "likes.db")
	args := []string{"spotify-likes", "migrate", "--config", filepath.Join(t.TempDir(), "none.toml"), "--db", path}
	if err := newApp().Run(context.Background(), args); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database not created: %v", err)
	}
	// the lock is released so the file can be reopened
	d, err := db.New(path)
	if err != nil {
		t.Fatal(err)
	}
	d.Close()
}

// TestServeRequiresCredentials ensures the server refuses to start without
// the Spotify client credentials.
func TestServeRequiresCredentials(t *testing.T) {
	t.Setenv("SPOTIFY_CLIENT_ID", "")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "")
	args := []string{"spotify-likes", "serve", "--config", filepath.Join(t.TempDir(), "none.toml"), "--db", ":memory:"}
	err := newApp().Run(context.Background(), args)
	if err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestLoadConfigFlagsOverride(t *testing.T) {
	var got *config.Config
	cmd := newApp()
	cmd.Action = nil
	for _, c := range cmd.Commands {
		if c.Name == "serve" {
			c.Action = func(ctx context.Context, c2 *cli.Command) error {
				var err error
				got, err = loadConfig(c2)
				return err
			}
		}
	}
	t.Setenv("LISTEN_ADDR", ":5000")
	args := []string{"spotify-likes", "serve", "--config", filepath.Join(t.TempDir(), "none.toml"), "--addr", ":6000", "--log-level", "debug"}
	if err := cmd.Run(context.Background(), args); err != nil {
		t.Fatal(err)
	}
	if got.Server.Addr != ":6000" || got.Log.Level != "debug" {
		t.Fatalf("flags not applied: %+v", got)
	}
}

// TestNewApplicationWiring checks the Spotify collaborators are set without
// contacting Spotify.
func TestNewApplicationWiring(t *testing.T) {
	cfg := config.Default()
	cfg.Spotify.ClientID = "id"
	cfg.Spotify.ClientSecret = "secret"
	cfg.Session.SigningKey = "key"
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	app := newApplication(cfg, logging.Discard(), database)
	if app.Catalog(&oauth2.Token{AccessToken: "x"}) == nil {
		t.Fatal("catalog factory returned nil")
	}
	if app.OAuth.Endpoint.TokenURL == "" {
		t.Fatal("refresh config not wired")
	}
}

// TestGracefulShutdown starts a real listener and stops it through the
// context.
func TestGracefulShutdown(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listenAndServe(ctx, srv, logging.Discard()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
