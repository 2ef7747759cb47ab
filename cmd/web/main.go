// Command web starts the Spotify Likes HTTP server. Configuration comes from
// an optional TOML file, environment variables (SPOTIFY_CLIENT_ID,
// SPOTIFY_CLIENT_SECRET, SPOTIFY_REDIRECT_URL, SIGNING_KEY, DATABASE_PATH,
// LISTEN_ADDR, LOG_LEVEL) and command line flags, in increasing precedence.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	libspotify "github.com/zmb3/spotify"
	"golang.org/x/oauth2"

	"Spotify-Likes-Go/pkg/config"
	"Spotify-Likes-Go/pkg/db"
	"Spotify-Likes-Go/pkg/handlers"
	"Spotify-Likes-Go/pkg/logging"
	"Spotify-Likes-Go/pkg/spotify"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		logrus.Fatalf("application error: %v", err)
	}
}

// configFlags are declared on the root command and inherited by every
// subcommand.
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
			Sources: cli.EnvVars("CONFIG_PATH"),
		},
		&cli.StringFlag{Name: "addr", Usage: "Listen address"},
		&cli.StringFlag{Name: "db", Usage: "SQLite database path"},
		&cli.StringFlag{Name: "log-level", Usage: "Log level (debug, info, warn, error)"},
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:   "spotify-likes",
		Usage:  "Search Spotify artists and keep a list of liked tracks",
		Flags:  configFlags(),
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Create the database schema and exit",
				Action: migrate,
			},
		},
	}
}

// loadConfig applies file, environment and flags in that order.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if v := cmd.String("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := cmd.String("db"); v != "" {
		cfg.Database.Path = v
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, nil
}

func migrate(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, nil)
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("db init: %w", err)
	}
	log.WithField("path", cfg.Database.Path).Info("schema ready")
	return database.Close()
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format, nil)

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("db init: %w", err)
	}
	defer database.Close()

	app := newApplication(cfg, log, database)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           app.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       time.Minute,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return listenAndServe(ctx, srv, log)
}

// newApplication wires the Spotify authenticator and per-user clients into
// the handlers.
func newApplication(cfg *config.Config, log *logrus.Logger, database *db.DB) *handlers.Application {
	auth := libspotify.NewAuthenticator(cfg.Spotify.RedirectURL, libspotify.ScopeUserReadEmail)
	auth.SetAuthInfo(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret)
	limiter := spotify.NewLimiter(cfg.Spotify.RequestsPerSecond)

	return &handlers.Application{
		Log:           log,
		DB:            database,
		Authenticator: auth,
		OAuth:         spotify.OAuthConfig(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.RedirectURL, libspotify.ScopeUserReadEmail),
		Catalog: func(tok *oauth2.Token) handlers.UserCatalog {
			return spotify.NewUserClient(auth, tok, cfg.Spotify.Market, limiter)
		},
		SignKey:       []byte(cfg.Session.SigningKey),
		SecureCookies: cfg.Server.SecureCookies,
		SearchLimit:   cfg.Search.Limit,
	}
}

// listenAndServe runs srv until ctx is done, then shuts it down gracefully.
func listenAndServe(ctx context.Context, srv *http.Server, log logrus.FieldLogger) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
