// Command picker is a terminal artist search. It signs in with the app's
// client credentials, lets the user pick an artist interactively and prints
// the chosen artist id, optionally followed by the artist's top tracks.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"Spotify-Likes-Go/pkg/config"
	"Spotify-Likes-Go/pkg/logging"
	"Spotify-Likes-Go/pkg/music"
	"Spotify-Likes-Go/pkg/picker"
	"Spotify-Likes-Go/pkg/spotify"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		logrus.Fatalf("picker: %v", err)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "picker",
		Usage: "Search Spotify artists from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("CONFIG_PATH"),
			},
			&cli.BoolFlag{
				Name:  "top-tracks",
				Usage: "Print the selected artist's top tracks",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "File receiving logs while the picker owns the terminal",
				Value: "picker.log",
			},
		},
		Action: run,
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return err
	}

	log, closeLog, err := logging.NewFile(cmd.String("log-file"), cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	defer closeLog()

	client, err := spotify.NewSpotifyClient(ctx, cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.Market, spotify.NewLimiter(cfg.Spotify.RequestsPerSecond))
	if err != nil {
		return fmt.Errorf("spotify login: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	model := picker.New(ctx, picker.Options{
		Searcher: client,
		Delay:    cfg.Search.Debounce(),
		Limit:    cfg.Search.Limit,
		Log:      log,
	})
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return fmt.Errorf("error running picker: %w", err)
	}
	cancel()

	return printSelection(context.Background(), os.Stdout, model.Selected(), client, cmd.Bool("top-tracks"))
}

// printSelection writes the chosen artist id and, when asked, its top
// tracks. Nothing is printed when no artist was chosen.
func printSelection(ctx context.Context, w io.Writer, sel *music.Candidate, catalog music.Catalog, topTracks bool) error {
	if sel == nil {
		return nil
	}
	fmt.Fprintln(w, sel.ID)
	if !topTracks {
		return nil
	}
	tracks, err := catalog.TopTracks(ctx, sel.ID)
	if err != nil {
		return fmt.Errorf("top tracks: %w", err)
	}
	for i, t := range tracks {
		fmt.Fprintf(w, "%2d. %s - %s\n", i+1, t.Name, strings.Join(t.Artists, ", "))
	}
	return nil
}
