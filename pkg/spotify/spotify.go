// Package spotify wraps the Spotify Web API client and converts its responses
// into the strict types of the music package. Payloads with missing
// identifiers are rejected at this boundary.
//
// The wrapped library does not accept a context, so cancellation is checked
// while waiting on the shared rate limiter before each call.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/zmb3/spotify"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"Spotify-Likes-Go/pkg/metrics"
	"Spotify-Likes-Go/pkg/music"
)

// api defines the subset of spotify.Client used by this package.
// It allows the concrete client to be replaced in tests.
type api interface {
	SearchOpt(query string, t spotify.SearchType, opt *spotify.Options) (*spotify.SearchResult, error)
	GetArtist(id spotify.ID) (*spotify.FullArtist, error)
	GetArtistsTopTracks(artistID spotify.ID, country string) ([]spotify.FullTrack, error)
	GetTrack(id spotify.ID) (*spotify.FullTrack, error)
	CurrentUser() (*spotify.PrivateUser, error)
}

// SpotifyClient implements music.Catalog on top of the Spotify Web API.
type SpotifyClient struct {
	client  api
	limiter *rate.Limiter
	market  string
}

var _ music.Catalog = (*SpotifyClient)(nil)

// NewLimiter returns a limiter allowing rps requests per second. A
// non-positive rps disables limiting.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// NewSpotifyClient authenticates using the client credentials flow. The
// resulting client can search the catalogue without a user login.
func NewSpotifyClient(ctx context.Context, clientID, clientSecret, market string, limiter *rate.Limiter) (*SpotifyClient, error) {
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotify.TokenURL,
	}
	token, err := config.Token(ctx)
	if err != nil {
		return nil, music.Upstream("token", err)
	}
	c := spotify.Authenticator{}.NewClient(token)
	return newClient(&c, market, limiter), nil
}

// NewUserClient returns a client acting on behalf of the user owning tok.
func NewUserClient(auth spotify.Authenticator, tok *oauth2.Token, market string, limiter *rate.Limiter) *SpotifyClient {
	c := auth.NewClient(tok)
	return newClient(&c, market, limiter)
}

func newClient(c api, market string, limiter *rate.Limiter) *SpotifyClient {
	if market == "" {
		market = spotify.CountryUSA
	}
	if limiter == nil {
		limiter = NewLimiter(0)
	}
	return &SpotifyClient{client: c, limiter: limiter, market: market}
}

// OAuthConfig mirrors the authenticator settings so stored tokens can be
// refreshed outside of a request to the authorization server.
func OAuthConfig(clientID, clientSecret, redirectURL string, scopes ...string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotify.AuthURL,
			TokenURL: spotify.TokenURL,
		},
	}
}

func (sc *SpotifyClient) wait(ctx context.Context) error {
	return sc.limiter.Wait(ctx)
}

// convertErr maps library errors onto the music taxonomy.
func convertErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se spotify.Error
	if errors.As(err, &se) {
		switch se.Status {
		case http.StatusNotFound, http.StatusBadRequest:
			return fmt.Errorf("%s: %w", op, music.ErrNotFound)
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", op, music.ErrAuthRequired)
		}
	}
	return music.Upstream(op, err)
}

// SearchArtists returns at most limit artists matching query.
func (sc *SpotifyClient) SearchArtists(ctx context.Context, query string, limit int) ([]music.Candidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, music.ErrValidation
	}
	if err := sc.wait(ctx); err != nil {
		return nil, err
	}
	opt := &spotify.Options{Country: &sc.market}
	if limit > 0 {
		opt.Limit = &limit
	}
	res, err := sc.client.SearchOpt(query, spotify.SearchTypeArtist, opt)
	metrics.ObserveUpstream("search", err)
	if err != nil {
		return nil, convertErr("search", err)
	}
	if res == nil || res.Artists == nil {
		return []music.Candidate{}, nil
	}
	out := make([]music.Candidate, 0, len(res.Artists.Artists))
	for _, a := range res.Artists.Artists {
		if a.ID == "" || a.Name == "" {
			continue
		}
		out = append(out, toCandidate(a))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Artist returns a single artist or music.ErrNotFound.
func (sc *SpotifyClient) Artist(ctx context.Context, id string) (music.Artist, error) {
	if id == "" {
		return music.Artist{}, music.ErrNotFound
	}
	if err := sc.wait(ctx); err != nil {
		return music.Artist{}, err
	}
	a, err := sc.client.GetArtist(spotify.ID(id))
	metrics.ObserveUpstream("artist", err)
	if err != nil {
		return music.Artist{}, convertErr("artist", err)
	}
	if a == nil || a.ID == "" {
		return music.Artist{}, music.Upstream("artist", errors.New("malformed artist payload"))
	}
	return music.Artist{
		ID:     string(a.ID),
		Name:   a.Name,
		Genres: nonNil(a.Genres),
		Images: toImages(a.Images),
	}, nil
}

// TopTracks returns the artist's most popular tracks in the client's market.
func (sc *SpotifyClient) TopTracks(ctx context.Context, artistID string) ([]music.Track, error) {
	if artistID == "" {
		return nil, music.ErrNotFound
	}
	if err := sc.wait(ctx); err != nil {
		return nil, err
	}
	tracks, err := sc.client.GetArtistsTopTracks(spotify.ID(artistID), sc.market)
	metrics.ObserveUpstream("top_tracks", err)
	if err != nil {
		return nil, convertErr("top_tracks", err)
	}
	out := make([]music.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		out = append(out, toTrack(t))
	}
	return out, nil
}

// TrackJSON fetches a track and returns its full JSON representation.
func (sc *SpotifyClient) TrackJSON(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, music.ErrNotFound
	}
	if err := sc.wait(ctx); err != nil {
		return nil, err
	}
	t, err := sc.client.GetTrack(spotify.ID(id))
	metrics.ObserveUpstream("track", err)
	if err != nil {
		return nil, convertErr("track", err)
	}
	if t == nil || t.ID == "" {
		return nil, music.Upstream("track", errors.New("malformed track payload"))
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, music.Upstream("track", err)
	}
	return data, nil
}

// CurrentUser returns the profile of the user owning the client's token.
func (sc *SpotifyClient) CurrentUser(ctx context.Context) (music.User, error) {
	if err := sc.wait(ctx); err != nil {
		return music.User{}, err
	}
	u, err := sc.client.CurrentUser()
	metrics.ObserveUpstream("current_user", err)
	if err != nil {
		return music.User{}, convertErr("current_user", err)
	}
	if u == nil || u.ID == "" {
		return music.User{}, music.Upstream("current_user", errors.New("malformed user payload"))
	}
	user := music.User{ID: u.ID, Email: u.Email, Name: u.DisplayName}
	if user.Name == "" {
		user.Name = u.ID
	}
	if len(u.Images) > 0 {
		user.ImageURL = u.Images[0].URL
	}
	return user, nil
}

func toCandidate(a spotify.FullArtist) music.Candidate {
	c := music.Candidate{ID: string(a.ID), Name: a.Name, Tags: nonNil(a.Genres)}
	if img := smallest(a.Images); img != nil {
		c.ImageURL = img.URL
	}
	return c
}

func toTrack(t spotify.FullTrack) music.Track {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return music.Track{
		ID:         string(t.ID),
		Name:       t.Name,
		Artists:    names,
		AlbumName:  t.Album.Name,
		AlbumImage: smallest(t.Album.Images),
	}
}

func toImages(in []spotify.Image) []music.Image {
	out := make([]music.Image, 0, len(in))
	for _, img := range in {
		if img.URL == "" {
			continue
		}
		out = append(out, music.Image{URL: img.URL, Width: img.Width, Height: img.Height})
	}
	return out
}

// smallest returns the last rendition; Spotify orders images widest first.
func smallest(in []spotify.Image) *music.Image {
	imgs := toImages(in)
	if len(imgs) == 0 {
		return nil
	}
	img := imgs[len(imgs)-1]
	return &img
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
