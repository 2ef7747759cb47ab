package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	libspotify "github.com/zmb3/spotify"
	"golang.org/x/time/rate"

	"Spotify-Likes-Go/pkg/music"
)

type fakeAPI struct {
	searches  int
	lastQuery string
	lastType  libspotify.SearchType
	lastOpt   *libspotify.Options
	result    *libspotify.SearchResult
	artist    *libspotify.FullArtist
	top       []libspotify.FullTrack
	country   string
	track     *libspotify.FullTrack
	user      *libspotify.PrivateUser
	err       error
}

func (f *fakeAPI) SearchOpt(query string, t libspotify.SearchType, opt *libspotify.Options) (*libspotify.SearchResult, error) {
	f.searches++
	f.lastQuery = query
	f.lastType = t
	f.lastOpt = opt
	return f.result, f.err
}

func (f *fakeAPI) GetArtist(id libspotify.ID) (*libspotify.FullArtist, error) {
	return f.artist, f.err
}

func (f *fakeAPI) GetArtistsTopTracks(id libspotify.ID, country string) ([]libspotify.FullTrack, error) {
	f.country = country
	return f.top, f.err
}

func (f *fakeAPI) GetTrack(id libspotify.ID) (*libspotify.FullTrack, error) {
	return f.track, f.err
}

func (f *fakeAPI) CurrentUser() (*libspotify.PrivateUser, error) {
	return f.user, f.err
}

func artist(id, name string, genres []string, urls ...string) libspotify.FullArtist {
	a := libspotify.FullArtist{
		SimpleArtist: libspotify.SimpleArtist{ID: libspotify.ID(id), Name: name},
		Genres:       genres,
	}
	for i, u := range urls {
		a.Images = append(a.Images, libspotify.Image{URL: u, Width: 640 / (i + 1), Height: 640 / (i + 1)})
	}
	return a
}

func TestSearchArtists(t *testing.T) {
	fa := &fakeAPI{result: &libspotify.SearchResult{Artists: &libspotify.FullArtistPage{Artists: []libspotify.FullArtist{
		artist("1", "Radiohead", []string{"art rock"}, "big.jpg", "small.jpg"),
		artist("", "broken", nil),
		artist("2", "Radiohead Tribute", nil),
	}}}}
	sc := newClient(fa, "GB", nil)

	got, err := sc.SearchArtists(context.Background(), " radio ", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fa.lastQuery != "radio" || fa.lastType != libspotify.SearchTypeArtist {
		t.Errorf("SearchOpt called with %q %v", fa.lastQuery, fa.lastType)
	}
	if *fa.lastOpt.Limit != 10 || *fa.lastOpt.Country != "GB" {
		t.Errorf("options not forwarded: %+v", fa.lastOpt)
	}
	if len(got) != 2 {
		t.Fatalf("expected malformed entry to be dropped, got %+v", got)
	}
	if got[0].ImageURL != "small.jpg" || got[0].Tags[0] != "art rock" {
		t.Errorf("unexpected candidate %+v", got[0])
	}
	if got[1].Tags == nil || got[1].ImageURL != "" {
		t.Errorf("missing fields should default: %+v", got[1])
	}
}

func TestSearchArtistsEmptyQuery(t *testing.T) {
	fa := &fakeAPI{}
	sc := newClient(fa, "", nil)
	_, err := sc.SearchArtists(context.Background(), "   ", 10)
	if !errors.Is(err, music.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if fa.searches != 0 {
		t.Errorf("empty query must not reach the API")
	}
}

func TestSearchArtistsUpstreamError(t *testing.T) {
	fa := &fakeAPI{err: errors.New("boom")}
	sc := newClient(fa, "", nil)
	_, err := sc.SearchArtists(context.Background(), "x", 10)
	if !music.IsUpstream(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestSearchArtistsCancelled(t *testing.T) {
	fa := &fakeAPI{}
	// a limiter with an empty bucket forces Wait to observe the context
	sc := newClient(fa, "", rate.NewLimiter(rate.Every(1e12), 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sc.SearchArtists(ctx, "x", 10); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if fa.searches != 0 {
		t.Errorf("cancelled call must not reach the API")
	}
}

func TestArtistNotFound(t *testing.T) {
	fa := &fakeAPI{err: libspotify.Error{Message: "non existing id", Status: 404}}
	sc := newClient(fa, "", nil)
	_, err := sc.Artist(context.Background(), "nope")
	if !errors.Is(err, music.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestArtist(t *testing.T) {
	a := artist("1", "Björk", nil, "a.jpg")
	sc := newClient(&fakeAPI{artist: &a}, "", nil)
	got, err := sc.Artist(context.Background(), "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "Björk" || len(got.Images) != 1 || got.Genres == nil {
		t.Errorf("unexpected artist %+v", got)
	}
}

func TestTopTracks(t *testing.T) {
	tr := libspotify.FullTrack{
		SimpleTrack: libspotify.SimpleTrack{
			ID:      "t1",
			Name:    "Song",
			Artists: []libspotify.SimpleArtist{{Name: "A"}, {Name: "B"}},
		},
		Album: libspotify.SimpleAlbum{Name: "Album", Images: []libspotify.Image{{URL: "l.jpg"}, {URL: "s.jpg"}}},
	}
	fa := &fakeAPI{top: []libspotify.FullTrack{tr, {}}}
	sc := newClient(fa, "SE", nil)

	got, err := sc.TopTracks(context.Background(), "1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fa.country != "SE" {
		t.Errorf("market not forwarded: %q", fa.country)
	}
	if len(got) != 1 {
		t.Fatalf("track without id should be dropped: %+v", got)
	}
	if got[0].AlbumImage == nil || got[0].AlbumImage.URL != "s.jpg" || len(got[0].Artists) != 2 {
		t.Errorf("unexpected track %+v", got[0])
	}
}

func TestTrackJSON(t *testing.T) {
	tr := &libspotify.FullTrack{SimpleTrack: libspotify.SimpleTrack{ID: "t1", Name: "Song"}}
	sc := newClient(&fakeAPI{track: tr}, "", nil)
	data, err := sc.TrackJSON(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if decoded["id"] != "t1" || decoded["name"] != "Song" {
		t.Errorf("unexpected blob %s", data)
	}

	sc = newClient(&fakeAPI{track: &libspotify.FullTrack{}}, "", nil)
	if _, err := sc.TrackJSON(context.Background(), "t1"); !music.IsUpstream(err) {
		t.Errorf("expected malformed payload error, got %v", err)
	}
}

func TestCurrentUser(t *testing.T) {
	u := &libspotify.PrivateUser{Email: "me@example.com"}
	u.ID = "me"
	u.Images = []libspotify.Image{{URL: "avatar.jpg"}}
	sc := newClient(&fakeAPI{user: u}, "", nil)
	got, err := sc.CurrentUser(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Name != "me" || got.ImageURL != "avatar.jpg" || got.Email != "me@example.com" {
		t.Errorf("unexpected user %+v", got)
	}
}
