package handlers

import (
	"io/fs"
	"net/http"

	"Spotify-Likes-Go/pkg/metrics"
	"Spotify-Likes-Go/ui"
)

// Routes registers every endpoint and wraps the mux with the security
// headers middleware.
func (app *Application) Routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.Handler) {
		mux.Handle(pattern, app.instrument(pattern, h))
	}

	handle("GET /{$}", http.HandlerFunc(app.Index))
	handle("GET /login", http.HandlerFunc(app.Login))
	handle("POST /auth/spotify", http.HandlerFunc(app.Login))
	handle("GET /auth/spotify", http.RedirectHandler("/", http.StatusFound))
	handle("GET /auth/spotify/callback", http.HandlerFunc(app.OAuthCallback))
	handle("GET /logout", http.HandlerFunc(app.Logout))

	handle("GET /home", app.requireSession(app.Home))
	handle("GET /artists", app.requireSession(app.Artists))
	handle("POST /artists", app.requireSession(app.SelectArtist))
	handle("GET /artists/{artistId}", app.requireSession(app.Artist))
	handle("POST /artists/{artistId}", app.requireSession(app.ArtistAction))
	handle("GET /likes", app.requireSession(app.Likes))

	handle("GET /resources/artists", app.requireAPISession(app.ArtistsResource))
	handle("GET /api/likes", app.requireAPISession(app.LikesJSON))
	handle("POST /api/likes", app.requireAPISession(app.AddLikeJSON))
	handle("DELETE /api/likes/{trackId}", app.requireAPISession(app.DeleteLikeJSON))

	handle("GET /healthz", http.HandlerFunc(app.Healthz))
	mux.Handle("GET /metrics", metrics.Handler())

	static, err := fs.Sub(ui.Files, "static")
	if err != nil {
		panic(err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	return SecurityHeaders(mux)
}
