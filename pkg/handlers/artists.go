// This file holds the artist search page, its JSON resource used for
// autocomplete, and the artist page with its like/unlike actions.
package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"Spotify-Likes-Go/pkg/combobox"
	"Spotify-Likes-Go/pkg/metrics"
	"Spotify-Likes-Go/pkg/music"
)

// comboView is the rendered form of a combobox.Model.
type comboView struct {
	State   string
	Query   string
	Rows    []comboRow
	PrevURL string
	NextURL string
}

type comboRow struct {
	music.Candidate
	Highlighted bool
}

// searchArtists runs a search and degrades every failure to an empty list.
func (app *Application) searchArtists(ctx context.Context, s *Session, query string) []music.Candidate {
	if s.Catalog == nil {
		return []music.Candidate{}
	}
	found, err := s.Catalog.SearchArtists(ctx, query, app.searchLimit())
	switch {
	case errors.Is(err, music.ErrValidation):
		return []music.Candidate{}
	case err != nil:
		app.log().WithError(err).WithField("query", query).Warn("artist search failed")
		return []music.Candidate{}
	}
	if found == nil {
		found = []music.Candidate{}
	}
	return found
}

// ArtistsResource answers autocomplete lookups with {"artists": [...]}.
// A missing query parameter is a bad request; an empty one yields an empty
// list without contacting Spotify.
func (app *Application) ArtistsResource(w http.ResponseWriter, r *http.Request, s *Session) {
	values, ok := r.URL.Query()["query"]
	if !ok {
		respondJSONError(w, http.StatusBadRequest, "query parameter is required")
		return
	}
	query := strings.TrimSpace(values[0])
	artists := []music.Candidate{}
	if query != "" {
		artists = app.searchArtists(r.Context(), s, query)
	}
	respondJSON(w, http.StatusOK, map[string]any{"artists": artists})
}

// comboFromRequest replays the request through the combobox: the query as
// an input change, the search result, then one highlight move per step.
func (app *Application) comboFromRequest(r *http.Request, s *Session) combobox.Model {
	m := combobox.New()
	query := r.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		return m
	}
	m, effects := combobox.Transition(m, combobox.InputChanged{Query: query})
	for _, eff := range effects {
		if f, ok := eff.(combobox.FetchRequested); ok {
			found := app.searchArtists(r.Context(), s, f.Query)
			m, _ = combobox.Transition(m, combobox.ResultsArrived{Query: f.Query, Candidates: found})
		}
	}
	// moves past the last row are no-ops, so more than len(Candidates) is
	// never needed
	steps, _ := strconv.Atoi(r.URL.Query().Get("highlight"))
	steps = min(max(steps, 0), len(m.Candidates))
	for i := 0; i < steps; i++ {
		m, _ = combobox.Transition(m, combobox.HighlightNext{})
	}
	return m
}

func newComboView(m combobox.Model) *comboView {
	v := &comboView{State: m.State.String(), Query: m.Query}
	if !m.Open() {
		return v
	}
	for i, c := range m.Candidates {
		v.Rows = append(v.Rows, comboRow{Candidate: c, Highlighted: i == m.Highlight})
	}
	link := func(h int) string {
		return "/artists?" + url.Values{"query": {m.Query}, "highlight": {strconv.Itoa(h)}}.Encode()
	}
	if m.Highlight > 0 {
		v.PrevURL = link(m.Highlight - 1)
	}
	if m.Highlight >= 0 && m.Highlight < len(m.Candidates)-1 {
		v.NextURL = link(m.Highlight + 1)
	}
	return v
}

// Artists renders the search page with the combobox in the state implied by
// the query string.
func (app *Application) Artists(w http.ResponseWriter, r *http.Request, s *Session) {
	data := app.newTemplateData(r, s)
	data.Combo = newComboView(app.comboFromRequest(r, s))
	app.render(w, r, http.StatusOK, "artists.html", data)
}

// SelectArtist commits the chosen candidate and sends the user to its page.
func (app *Application) SelectArtist(w http.ResponseWriter, r *http.Request, s *Session) {
	id := strings.TrimSpace(r.PostFormValue("artistId"))
	if id == "" {
		data := app.newTemplateData(r, s)
		data.Combo = newComboView(combobox.New())
		data.Error = "Please enter an artist name"
		app.render(w, r, http.StatusBadRequest, "artists.html", data)
		return
	}
	m := combobox.Model{
		State:      combobox.OpenWithResults,
		Candidates: []music.Candidate{{ID: id, Name: r.PostFormValue("artistName")}},
		Highlight:  0,
	}
	_, effects := combobox.Transition(m, combobox.Commit{Index: -1})
	for _, eff := range effects {
		if sel, ok := eff.(combobox.SelectionChanged); ok {
			http.Redirect(w, r, "/artists/"+url.PathEscape(sel.CandidateID), http.StatusSeeOther)
			return
		}
	}
	http.Error(w, "invalid selection", http.StatusBadRequest)
}

// Artist renders the artist card and top tracks, each marked liked or not.
func (app *Application) Artist(w http.ResponseWriter, r *http.Request, s *Session) {
	id := r.PathValue("artistId")
	if s.Catalog == nil {
		http.Error(w, "catalog not configured", http.StatusInternalServerError)
		return
	}
	artist, err := s.Catalog.Artist(r.Context(), id)
	switch {
	case errors.Is(err, music.ErrNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, music.ErrAuthRequired):
		http.Redirect(w, r, "/logout", http.StatusSeeOther)
		return
	case err != nil:
		app.log().WithError(err).WithField("artist", id).Warn("load artist")
		http.Error(w, "Spotify is unavailable, try again later", http.StatusBadGateway)
		return
	}

	tracks, err := s.Catalog.TopTracks(r.Context(), id)
	if err != nil {
		app.log().WithError(err).WithField("artist", id).Warn("load top tracks")
		tracks = nil
	}
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	liked := map[string]bool{}
	if app.DB != nil {
		if liked, err = app.DB.LikedSpotifyIDs(r.Context(), s.UserID, ids); err != nil {
			app.log().WithError(err).Error("load liked tracks")
			http.Error(w, "failed to load likes", http.StatusInternalServerError)
			return
		}
	}

	data := app.newTemplateData(r, s)
	data.Artist = &artist
	for _, t := range tracks {
		data.Tracks = append(data.Tracks, trackView{Track: t, Liked: liked[t.ID]})
	}
	app.render(w, r, http.StatusOK, "artist.html", data)
}

// ArtistAction handles the like and unlike buttons of the artist page.
// Unknown intents are ignored.
func (app *Application) ArtistAction(w http.ResponseWriter, r *http.Request, s *Session) {
	artistID := r.PathValue("artistId")
	trackID := strings.TrimSpace(r.PostFormValue("trackId"))
	if formArtist := r.PostFormValue("artistId"); formArtist != "" {
		artistID = formArtist
	}
	if trackID == "" || artistID == "" {
		http.Error(w, "trackId and artistId are required", http.StatusBadRequest)
		return
	}

	var err error
	switch intent := r.PostFormValue("intent"); intent {
	case "like":
		_, err = app.likeTrack(r.Context(), s, artistID, trackID)
	case "unlike":
		err = app.unlikeTrack(r.Context(), s, trackID)
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
		}
	default:
		app.log().WithField("intent", intent).Debug("ignoring unknown intent")
	}
	if err != nil {
		app.respondActionError(w, err)
		return
	}
	http.Redirect(w, r, "/artists/"+url.PathEscape(r.PathValue("artistId")), http.StatusSeeOther)
}

// actionStatus maps a like/unlike failure to a status and message. A zero
// status means the error is internal.
func actionStatus(err error) (int, string) {
	switch {
	case errors.Is(err, music.ErrNotFound):
		return http.StatusNotFound, "track not found"
	case music.IsUpstream(err):
		return http.StatusBadGateway, "Spotify is unavailable, try again later"
	}
	return 0, ""
}

func (app *Application) respondActionError(w http.ResponseWriter, err error) {
	if code, msg := actionStatus(err); code != 0 {
		http.Error(w, msg, code)
		return
	}
	http.Error(w, "failed to update likes", http.StatusInternalServerError)
}

// likeTrack fetches the full track and stores it for the user.
func (app *Application) likeTrack(ctx context.Context, s *Session, artistID, trackID string) (string, error) {
	if s.Catalog == nil || app.DB == nil {
		return "", errors.New("not configured")
	}
	data, err := s.Catalog.TrackJSON(ctx, trackID)
	if err != nil {
		app.log().WithError(err).WithField("track", trackID).Warn("fetch track")
		return "", err
	}
	id, err := app.DB.LikeTrack(ctx, s.UserID, artistID, data)
	if err != nil {
		app.log().WithError(err).WithField("track", trackID).Error("like track")
		return "", err
	}
	metrics.Likes.WithLabelValues("like").Inc()
	return id, nil
}

func (app *Application) unlikeTrack(ctx context.Context, s *Session, trackID string) error {
	if app.DB == nil {
		return errors.New("not configured")
	}
	err := app.DB.UnlikeTrack(ctx, s.UserID, trackID)
	if err == nil {
		metrics.Likes.WithLabelValues("unlike").Inc()
	} else if !errors.Is(err, sql.ErrNoRows) {
		app.log().WithError(err).WithField("track", trackID).Error("unlike track")
	}
	return err
}
