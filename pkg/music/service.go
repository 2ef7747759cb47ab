// Package music defines the provider-agnostic data structures used by the
// rest of the application. Upstream responses are converted into these strict
// types at the boundary so handlers, templates and the picker never see the
// loosely-typed shapes returned by the remote API.
package music

import "context"

// Image is a single artwork rendition.
type Image struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Candidate is an artist returned by a search. A batch of candidates is
// always replaced wholesale by the next completed search.
type Candidate struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	ImageURL string   `json:"imageUrl,omitempty"`
	Tags     []string `json:"tags"`
}

// Artist is the detailed view of a single artist.
type Artist struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
	Images []Image  `json:"images"`
}

// Track is a playable track as shown on an artist page.
type Track struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Artists   []string `json:"artists"`
	AlbumName string   `json:"albumName,omitempty"`
	// AlbumImage is the smallest album rendition, nil when the album has none.
	AlbumImage *Image `json:"albumImage,omitempty"`
}

// LikedTrack is a row of the user's liked list, read back from the stored
// JSON blob.
type LikedTrack struct {
	ID        string   `json:"id"`
	TrackID   string   `json:"trackId"`
	Name      string   `json:"name"`
	Artists   []string `json:"artists"`
	AlbumName string   `json:"albumName,omitempty"`
	Image     *Image   `json:"image,omitempty"`
}

// User is the authenticated account as reported by the upstream service.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Catalog is the remote catalogue used by the handlers and the picker.
type Catalog interface {
	// SearchArtists returns at most limit artists matching query. An empty
	// query yields ErrValidation without contacting the upstream service.
	SearchArtists(ctx context.Context, query string, limit int) ([]Candidate, error)

	// Artist returns a single artist or ErrNotFound.
	Artist(ctx context.Context, id string) (Artist, error)

	// TopTracks returns the artist's most popular tracks.
	TopTracks(ctx context.Context, artistID string) ([]Track, error)

	// TrackJSON returns the full upstream representation of a track, used as
	// the opaque blob persisted for liked tracks.
	TrackJSON(ctx context.Context, id string) ([]byte, error)
}

// Searcher is the subset of Catalog needed by the search controller.
type Searcher interface {
	SearchArtists(ctx context.Context, query string, limit int) ([]Candidate, error)
}
