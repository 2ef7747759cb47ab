// This file focuses on the liked tracks list, both the HTML page and the JSON
// API.
package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"Spotify-Likes-Go/pkg/db"
)

// Likes renders the tracks the user has liked, newest first.
func (app *Application) Likes(w http.ResponseWriter, r *http.Request, s *Session) {
	if app.DB == nil {
		http.Error(w, "db not configured", http.StatusInternalServerError)
		return
	}
	likes, err := app.DB.ListLikes(r.Context(), s.UserID)
	if err != nil {
		app.log().WithError(err).WithField("user", s.UserID).Error("list likes")
		http.Error(w, "failed to load likes", http.StatusInternalServerError)
		return
	}
	data := app.newTemplateData(r, s)
	data.Likes = likes
	app.render(w, r, http.StatusOK, "likes.html", data)
}

// LikesJSON returns the user's likes as JSON.
func (app *Application) LikesJSON(w http.ResponseWriter, r *http.Request, s *Session) {
	if app.DB == nil {
		respondJSONError(w, http.StatusInternalServerError, "db not configured")
		return
	}
	likes, err := app.DB.ListLikes(r.Context(), s.UserID)
	if err != nil {
		app.log().WithError(err).WithField("user", s.UserID).Error("list likes")
		respondJSONError(w, http.StatusInternalServerError, "failed to load likes")
		return
	}
	respondJSON(w, http.StatusOK, likes)
}

// AddLikeJSON accepts {"track_id", "artist_id"}, stores the track and
// answers 201 with the stored id.
func (app *Application) AddLikeJSON(w http.ResponseWriter, r *http.Request, s *Session) {
	var req struct {
		TrackID  string `json:"track_id"`
		ArtistID string `json:"artist_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.TrackID = strings.TrimSpace(req.TrackID)
	req.ArtistID = strings.TrimSpace(req.ArtistID)
	if req.TrackID == "" || req.ArtistID == "" {
		respondJSONError(w, http.StatusBadRequest, "track_id and artist_id are required")
		return
	}
	id, err := app.likeTrack(r.Context(), s, req.ArtistID, req.TrackID)
	if err != nil {
		status, msg := http.StatusInternalServerError, "failed to save like"
		switch {
		case errors.Is(err, db.ErrInvalidTrack):
			status, msg = http.StatusBadGateway, "malformed track payload"
		default:
			if code, m := actionStatus(err); code != 0 {
				status, msg = code, m
			}
		}
		respondJSONError(w, status, msg)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"id": id, "track_id": req.TrackID})
}

// DeleteLikeJSON removes a like. Unknown likes answer 404.
func (app *Application) DeleteLikeJSON(w http.ResponseWriter, r *http.Request, s *Session) {
	trackID := r.PathValue("trackId")
	err := app.unlikeTrack(r.Context(), s, trackID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		respondJSONError(w, http.StatusNotFound, "like not found")
	case err != nil:
		respondJSONError(w, http.StatusInternalServerError, "failed to delete like")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
