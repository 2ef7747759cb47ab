// This file groups authentication: signed cookies, CSRF tokens, the Spotify
// OAuth login and callback handlers and the session resolution used by
// protected routes. CSRF protection is implemented using a random token
// stored in a cookie which clients must echo back in the `X-CSRF-Token`
// header (JSON API) or a `csrf_token` form field (HTML forms) for all state
// changing requests.
package handlers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"Spotify-Likes-Go/pkg/music"
)

const (
	userCookie     = "spotify_user_id"
	tokenCookie    = "spotify_token"
	stateCookie    = "oauth_state"
	csrfCookie     = "csrf_token"
	redirectCookie = "redirect_to"
	flashCookie    = "flash"

	defaultAfterLogin = "/likes"
)

// signValue computes an HMAC signature for value and appends it using the
// format value|signature. The signature is base64 URL encoded so it can be
// safely stored in cookies.
func signValue(value string, key []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(value))
	sig := mac.Sum(nil)
	return value + "|" + base64.RawURLEncoding.EncodeToString(sig)
}

// verifyValue checks the HMAC signature appended to signed. It returns the
// original value and true when the signature matches the provided key.
func verifyValue(signed string, key []byte) (string, bool) {
	parts := strings.Split(signed, "|")
	if len(parts) != 2 {
		return "", false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(parts[0]))
	expected := mac.Sum(nil)
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil || !hmac.Equal(expected, sig) {
		return "", false
	}
	return parts[0], true
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (app *Application) secure(r *http.Request) bool {
	return app.SecureCookies || r.TLS != nil
}

func (app *Application) setCookie(w http.ResponseWriter, r *http.Request, name, value string, httpOnly bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: httpOnly,
		Secure:   app.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (app *Application) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: name != csrfCookie,
		Secure:   app.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// setCSRFToken generates a new random token and sets it in a cookie. The
// cookie is not HttpOnly so client-side scripts can read the value and attach
// it to subsequent requests.
func (app *Application) setCSRFToken(w http.ResponseWriter, r *http.Request) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}
	app.setCookie(w, r, csrfCookie, token, false)
	return token, nil
}

// verifyCSRF compares the X-CSRF-Token header, or the csrf_token form field,
// with the csrf_token cookie in constant time.
func verifyCSRF(r *http.Request) bool {
	c, err := r.Cookie(csrfCookie)
	if err != nil || c.Value == "" {
		return false
	}
	sent := r.Header.Get("X-CSRF-Token")
	if sent == "" {
		sent = r.PostFormValue(csrfCookie)
	}
	if sent == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(sent)) == 1
}

// decodeToken converts the base64 encoded JSON token stored in cookies back
// into an oauth2.Token instance.
func decodeToken(v string) (*oauth2.Token, error) {
	data, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, err
	}
	var t oauth2.Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// encodeToken signs and encodes the OAuth token for storage in a cookie.
func (app *Application) encodeToken(t *oauth2.Token) string {
	b, _ := json.Marshal(t)
	return signValue(base64.StdEncoding.EncodeToString(b), app.SignKey)
}

// userFromCookie returns the verified Spotify user ID from the request cookie.
func (app *Application) userFromCookie(r *http.Request) (string, error) {
	c, err := r.Cookie(userCookie)
	if err != nil {
		return "", err
	}
	if v, ok := verifyValue(c.Value, app.SignKey); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("invalid signature")
}

// tokenFromRequest prefers the signed cookie and falls back to the stored
// token.
func (app *Application) tokenFromRequest(r *http.Request, userID string) (*oauth2.Token, error) {
	if c, err := r.Cookie(tokenCookie); err == nil {
		if v, ok := verifyValue(c.Value, app.SignKey); ok {
			if tok, err := decodeToken(v); err == nil {
				return tok, nil
			}
		}
	}
	if app.DB == nil {
		return nil, music.ErrAuthRequired
	}
	return app.DB.GetToken(r.Context(), userID)
}

// refreshIfExpired refreshes the OAuth token if it has expired. The new token
// is persisted and written back to the cookie.
func (app *Application) refreshIfExpired(w http.ResponseWriter, r *http.Request, userID string, t *oauth2.Token) (*oauth2.Token, error) {
	if t == nil || t.Valid() {
		return t, nil
	}
	if t.RefreshToken == "" || app.OAuth == nil {
		return nil, music.ErrAuthRequired
	}
	newTok, err := app.OAuth.TokenSource(r.Context(), t).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	if app.DB != nil {
		if err := app.DB.SaveToken(r.Context(), userID, newTok); err != nil {
			app.log().WithError(err).WithField("user", userID).Error("save refreshed token")
		}
	}
	app.setCookie(w, r, tokenCookie, app.encodeToken(newTok), true)
	return newTok, nil
}

// Session is the signed-in user's request context.
type Session struct {
	UserID  string
	User    music.User
	Token   *oauth2.Token
	CSRF    string
	Catalog UserCatalog
}

// session resolves the caller's session. Any failure to identify the user
// is reported as music.ErrAuthRequired.
func (app *Application) session(w http.ResponseWriter, r *http.Request) (*Session, error) {
	userID, err := app.userFromCookie(r)
	if err != nil {
		return nil, music.ErrAuthRequired
	}
	tok, err := app.tokenFromRequest(r, userID)
	if err != nil {
		return nil, music.ErrAuthRequired
	}
	tok, err = app.refreshIfExpired(w, r, userID, tok)
	if err != nil {
		app.log().WithError(err).WithField("user", userID).Warn("session token unusable")
		return nil, music.ErrAuthRequired
	}
	s := &Session{UserID: userID, Token: tok, User: music.User{ID: userID, Name: userID}}
	if app.DB != nil {
		u, err := app.DB.GetUser(r.Context(), userID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, music.ErrAuthRequired
		case err != nil:
			return nil, err
		}
		s.User = u
	}
	if c, err := r.Cookie(csrfCookie); err == nil && c.Value != "" {
		s.CSRF = c.Value
	} else if s.CSRF, err = app.setCSRFToken(w, r); err != nil {
		return nil, err
	}
	if app.Catalog != nil {
		s.Catalog = app.Catalog(tok)
	}
	return s, nil
}

// requireSession wraps an HTML handler. Anonymous visitors are sent to the
// login page with the path they asked for.
func (app *Application) requireSession(next func(http.ResponseWriter, *http.Request, *Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := app.session(w, r)
		if errors.Is(err, music.ErrAuthRequired) {
			q := url.Values{
				"redirectTo":   {r.URL.RequestURI()},
				"loginMessage": {"Please log in to continue"},
			}
			http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
			return
		}
		if err != nil {
			app.log().WithError(err).Error("resolve session")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead && !verifyCSRF(r) {
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}
		next(w, r, s)
	}
}

// requireAPISession is requireSession for JSON endpoints: failures are
// reported as JSON errors instead of redirects.
func (app *Application) requireAPISession(next func(http.ResponseWriter, *http.Request, *Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := app.session(w, r)
		if errors.Is(err, music.ErrAuthRequired) {
			respondJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if err != nil {
			app.log().WithError(err).Error("resolve session")
			respondJSONError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead && !verifyCSRF(r) {
			respondJSONError(w, http.StatusForbidden, "invalid csrf token")
			return
		}
		next(w, r, s)
	}
}

// safeRedirect accepts only local absolute paths.
func safeRedirect(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, `\`)
}

// setFlash stores a one-shot message shown on the next rendered page.
func (app *Application) setFlash(w http.ResponseWriter, r *http.Request, msg string) {
	app.setCookie(w, r, flashCookie, url.QueryEscape(msg), true)
}

// popFlash returns and clears the pending flash message.
func (app *Application) popFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return ""
	}
	app.clearCookie(w, r, flashCookie)
	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return msg
}

// Index is the login page. Signed-in users go straight to their likes.
func (app *Application) Index(w http.ResponseWriter, r *http.Request) {
	if _, err := app.session(w, r); err == nil {
		http.Redirect(w, r, defaultAfterLogin, http.StatusSeeOther)
		return
	}
	if to := r.URL.Query().Get("redirectTo"); to != "" && safeRedirect(to) {
		app.setCookie(w, r, redirectCookie, to, true)
	}
	data := app.newTemplateData(r, nil)
	data.Flash = app.popFlash(w, r)
	data.LoginMessage = r.URL.Query().Get("loginMessage")
	app.render(w, r, http.StatusOK, "login.html", data)
}

// Login begins the Spotify OAuth flow and redirects the user to the
// authorization URL with a signed state value stored in a cookie.
func (app *Application) Login(w http.ResponseWriter, r *http.Request) {
	state, err := randomToken()
	if err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}
	app.setCookie(w, r, stateCookie, signValue(state, app.SignKey), true)
	code := http.StatusFound
	if r.Method == http.MethodPost {
		code = http.StatusSeeOther
	}
	http.Redirect(w, r, app.Authenticator.AuthURL(state), code)
}

// loginFailed sends the user back to the login page with a flash message.
func (app *Application) loginFailed(w http.ResponseWriter, r *http.Request, msg string, err error) {
	app.log().WithError(err).Warn("login failed")
	app.setFlash(w, r, msg)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// OAuthCallback completes the OAuth flow: it exchanges the authorization
// code, records the user and their token and sets the session cookies.
func (app *Application) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(stateCookie)
	if err != nil {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	state, ok := verifyValue(c.Value, app.SignKey)
	if !ok || r.URL.Query().Get("state") != state {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	app.clearCookie(w, r, stateCookie)

	if e := r.URL.Query().Get("error"); e != "" {
		app.loginFailed(w, r, "Spotify login was cancelled", errors.New(e))
		return
	}
	token, err := app.Authenticator.Token(state, r)
	if err != nil {
		app.loginFailed(w, r, "Spotify login failed", err)
		return
	}
	user, err := app.Catalog(token).CurrentUser(r.Context())
	if err != nil {
		app.loginFailed(w, r, "Could not load your Spotify profile", err)
		return
	}
	if app.DB != nil {
		if err := app.DB.UpsertUser(r.Context(), user); err != nil {
			app.loginFailed(w, r, "Could not save your profile", err)
			return
		}
		if err := app.DB.SaveToken(r.Context(), user.ID, token); err != nil {
			app.loginFailed(w, r, "Could not save your profile", err)
			return
		}
	}
	app.setCookie(w, r, tokenCookie, app.encodeToken(token), true)
	app.setCookie(w, r, userCookie, signValue(user.ID, app.SignKey), true)
	if _, err := app.setCSRFToken(w, r); err != nil {
		http.Error(w, "csrf token", http.StatusInternalServerError)
		return
	}
	app.log().WithField("user", user.ID).Info("user logged in")

	to := defaultAfterLogin
	if rc, err := r.Cookie(redirectCookie); err == nil && safeRedirect(rc.Value) {
		to = rc.Value
		app.clearCookie(w, r, redirectCookie)
	}
	http.Redirect(w, r, to, http.StatusFound)
}

// Logout clears authentication cookies and the stored token so the user must
// re-authenticate.
func (app *Application) Logout(w http.ResponseWriter, r *http.Request) {
	if id, err := app.userFromCookie(r); err == nil && app.DB != nil {
		if err := app.DB.DeleteToken(r.Context(), id); err != nil {
			app.log().WithError(err).WithField("user", id).Error("delete token")
		}
	}
	for _, name := range []string{userCookie, tokenCookie, csrfCookie} {
		app.clearCookie(w, r, name)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
