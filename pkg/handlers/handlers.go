// Package handlers contains the HTTP handlers of the web application: the
// login flow, the artist search page and its JSON resource, artist pages
// with like/unlike actions, the likes list and a small JSON API.
//
// Handlers that need a signed-in user receive the resolved *Session as an
// explicit argument; see requireSession.
package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"Spotify-Likes-Go/pkg/db"
	"Spotify-Likes-Go/pkg/music"
)

// Authenticator is the part of spotify.Authenticator used by the login flow.
type Authenticator interface {
	AuthURL(state string) string
	Token(state string, r *http.Request) (*oauth2.Token, error)
}

// UserCatalog is a catalogue client acting on behalf of a signed-in user.
type UserCatalog interface {
	music.Catalog
	CurrentUser(ctx context.Context) (music.User, error)
}

// Application holds the dependencies shared by all handlers.
type Application struct {
	Log           *logrus.Logger
	DB            *db.DB
	Authenticator Authenticator
	// OAuth refreshes expired user tokens. Nil disables refreshing.
	OAuth *oauth2.Config
	// Catalog returns a catalogue client for the given user token.
	Catalog       func(tok *oauth2.Token) UserCatalog
	SignKey       []byte
	SecureCookies bool
	// SearchLimit caps the number of artists returned by a search.
	SearchLimit int
}

func (app *Application) log() logrus.FieldLogger {
	if app.Log == nil {
		return logrus.StandardLogger()
	}
	return app.Log
}

func (app *Application) searchLimit() int {
	if app.SearchLimit <= 0 {
		return 10
	}
	return app.SearchLimit
}

// Home greets the signed-in user.
func (app *Application) Home(w http.ResponseWriter, r *http.Request, s *Session) {
	app.render(w, r, http.StatusOK, "home.html", app.newTemplateData(r, s))
}

// Healthz reports that the process is serving and the database answers.
func (app *Application) Healthz(w http.ResponseWriter, r *http.Request) {
	if app.DB != nil {
		if err := app.DB.PingContext(r.Context()); err != nil {
			app.log().WithError(err).Error("health check")
			respondJSONError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
