// Package db provides the persistence layer used by the application. It wraps
// a SQLite database holding users, their OAuth tokens, the tracks they liked
// and the link between the two. Track payloads are stored as JSON blobs and
// read back with SQLite's JSON functions.
//
// Callers are expected to open a single DB instance using New and reuse it
// for all operations. A lock file next to the database prevents a second
// process from opening the same file.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"Spotify-Likes-Go/pkg/music"
)

// ErrLocked is returned by New when another process holds the database.
var ErrLocked = errors.New("database is in use by another process")

// ErrInvalidTrack is returned when a track blob is not valid JSON or has no id.
var ErrInvalidTrack = errors.New("invalid track payload")

const memoryPath = ":memory:"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		image TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tokens (user_id TEXT PRIMARY KEY, token TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		spotify_id TEXT NOT NULL UNIQUE,
		artist_id TEXT NOT NULL,
		data TEXT NOT NULL CHECK (json_valid(data)),
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tracks_for_users (
		track_id TEXT NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (track_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_likes_user_created ON tracks_for_users(user_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist_id)`,
}

// DB wraps a sql.DB connection and exposes helper methods for the
// application's persistence layer.
type DB struct {
	*sql.DB
	lock *flock.Flock
	now  func() time.Time
}

// New opens the SQLite database located at path, creating the file and the
// schema when needed. ":memory:" opens a private in-memory database.
func New(path string) (*DB, error) {
	var lock *flock.Flock
	if path != memoryPath {
		lock = flock.New(path + ".lock")
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock db: %w", err)
		}
		if !ok {
			return nil, ErrLocked
		}
	}

	d, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		unlock(lock)
		return nil, err
	}
	if path == memoryPath {
		// every connection would otherwise see its own empty database
		d.SetMaxOpenConns(1)
	}
	for _, s := range schema {
		if _, err := d.Exec(s); err != nil {
			d.Close()
			unlock(lock)
			return nil, fmt.Errorf("init db: %w", err)
		}
	}
	return &DB{DB: d, lock: lock, now: time.Now}, nil
}

func unlock(l *flock.Flock) {
	if l != nil {
		_ = l.Unlock()
	}
}

// Close closes the database and releases the lock file.
func (db *DB) Close() error {
	err := db.DB.Close()
	unlock(db.lock)
	return err
}

// UpsertUser stores the profile of a user who just signed in.
func (db *DB) UpsertUser(ctx context.Context, u music.User) error {
	_, err := db.ExecContext(ctx, `INSERT INTO users(id, email, name, image, updated_at) VALUES(?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET email=excluded.email, name=excluded.name, image=excluded.image, updated_at=excluded.updated_at`,
		u.ID, u.Email, u.Name, u.ImageURL, db.now().UnixNano())
	return err
}

// GetUser returns the stored profile. sql.ErrNoRows is returned for unknown
// users.
func (db *DB) GetUser(ctx context.Context, id string) (music.User, error) {
	u := music.User{ID: id}
	err := db.QueryRowContext(ctx, `SELECT email, name, image FROM users WHERE id=?`, id).Scan(&u.Email, &u.Name, &u.ImageURL)
	if err != nil {
		return music.User{}, err
	}
	return u, nil
}

// SaveToken persists the OAuth token for the given userID.  If a token
// already exists it is replaced.
func (db *DB) SaveToken(ctx context.Context, userID string, token *oauth2.Token) error {
	b, err := json.Marshal(token)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `INSERT INTO tokens(user_id, token) VALUES(?, ?) ON CONFLICT(user_id) DO UPDATE SET token=excluded.token`, userID, string(b))
	return err
}

// GetToken retrieves the OAuth token stored for userID. The returned token
// includes the refresh token if one was originally saved.
func (db *DB) GetToken(ctx context.Context, userID string) (*oauth2.Token, error) {
	var data string
	if err := db.QueryRowContext(ctx, `SELECT token FROM tokens WHERE user_id=?`, userID).Scan(&data); err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(data), &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

// DeleteToken forgets the token of a user who logged out.
func (db *DB) DeleteToken(ctx context.Context, userID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM tokens WHERE user_id=?`, userID)
	return err
}

// LikeTrack stores the track blob and links it to userID in one transaction.
// The blob is upserted by its Spotify id so repeated likes refresh the stored
// payload and artist while keeping the server-generated id. Liking an already
// liked track keeps the original like time. The stored track id is returned.
func (db *DB) LikeTrack(ctx context.Context, userID, artistID string, data []byte) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", ErrInvalidTrack
	}
	spotifyID := gjson.GetBytes(data, "id").String()
	if spotifyID == "" {
		return "", ErrInvalidTrack
	}
	now := db.now().UnixNano()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `INSERT INTO tracks(id, spotify_id, artist_id, data, updated_at) VALUES(?,?,?,json(?),?)
		ON CONFLICT(spotify_id) DO UPDATE SET artist_id=excluded.artist_id, data=excluded.data, updated_at=excluded.updated_at
		RETURNING id`, uuid.NewString(), spotifyID, artistID, string(data), now).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert track: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO tracks_for_users(track_id, user_id, created_at) VALUES(?,?,?)
		ON CONFLICT(track_id, user_id) DO NOTHING`, id, userID, now); err != nil {
		return "", fmt.Errorf("link track: %w", err)
	}
	return id, tx.Commit()
}

// UnlikeTrack removes the like of spotifyID by userID. sql.ErrNoRows is
// returned when the like does not exist which allows callers to respond with
// a 404.
func (db *DB) UnlikeTrack(ctx context.Context, userID, spotifyID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM tracks_for_users
		WHERE user_id=? AND track_id IN (SELECT id FROM tracks WHERE spotify_id=?)`, userID, spotifyID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LikedSpotifyIDs reports which of spotifyIDs userID has liked.
func (db *DB) LikedSpotifyIDs(ctx context.Context, userID string, spotifyIDs []string) (map[string]bool, error) {
	liked := make(map[string]bool)
	if len(spotifyIDs) == 0 {
		return liked, nil
	}
	ids, err := json.Marshal(spotifyIDs)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT t.spotify_id FROM tracks t
		JOIN tracks_for_users tu ON tu.track_id = t.id
		WHERE tu.user_id = ? AND t.spotify_id IN (SELECT value FROM json_each(?))`, userID, string(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		liked[id] = true
	}
	return liked, rows.Err()
}

// listLikesQuery flattens the stored blobs: track name, every artist name,
// album name and the last (smallest) album image.
const listLikesQuery = `SELECT
	t.id,
	t.spotify_id,
	coalesce(json_extract(t.data, '$.name'), ''),
	(SELECT json_group_array(json_extract(a.value, '$.name')) FROM json_each(t.data, '$.artists') a),
	coalesce(json_extract(t.data, '$.album.name'), ''),
	json_extract(t.data, '$.album.images[#-1]')
FROM tracks_for_users tu
JOIN tracks t ON t.id = tu.track_id
WHERE tu.user_id = ?
ORDER BY tu.created_at DESC, tu.rowid DESC`

// ListLikes returns the tracks liked by userID, newest first.
func (db *DB) ListLikes(ctx context.Context, userID string) ([]music.LikedTrack, error) {
	rows, err := db.QueryContext(ctx, listLikesQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	likes := []music.LikedTrack{}
	for rows.Next() {
		var (
			lt      music.LikedTrack
			artists string
			image   sql.NullString
		)
		if err := rows.Scan(&lt.ID, &lt.TrackID, &lt.Name, &artists, &lt.AlbumName, &image); err != nil {
			return nil, err
		}
		lt.Artists = []string{}
		gjson.Parse(artists).ForEach(func(_, v gjson.Result) bool {
			if v.Type == gjson.String {
				lt.Artists = append(lt.Artists, v.String())
			}
			return true
		})
		if image.Valid {
			img := gjson.Parse(image.String)
			if u := img.Get("url").String(); u != "" {
				lt.Image = &music.Image{URL: u, Width: int(img.Get("width").Int()), Height: int(img.Get("height").Int())}
			}
		}
		likes = append(likes, lt)
	}
	return likes, rows.Err()
}
