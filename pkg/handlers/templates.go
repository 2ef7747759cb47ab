package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"unicode"

	"Spotify-Likes-Go/pkg/music"
	"Spotify-Likes-Go/ui"
)

// templateData is passed to every page.
type templateData struct {
	User         *music.User
	CSRFToken    string
	Flash        string
	LoginMessage string
	Error        string

	Combo  *comboView
	Artist *music.Artist
	Tracks []trackView
	Likes  []music.LikedTrack
}

type trackView struct {
	music.Track
	Liked bool
}

var funcs = template.FuncMap{
	"join":       strings.Join,
	"initials":   initials,
	"firstImage": firstImage,
}

// initials returns up to two leading letters of name, upper-cased.
func initials(name string) string {
	var out []rune
	for _, f := range strings.Fields(name) {
		for _, r := range f {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				out = append(out, unicode.ToUpper(r))
				break
			}
		}
		if len(out) == 2 {
			break
		}
	}
	return string(out)
}

func firstImage(imgs []music.Image) *music.Image {
	if len(imgs) == 0 {
		return nil
	}
	return &imgs[0]
}

var pages = mustParsePages(ui.Files)

// mustParsePages builds one template set per page, each combined with the
// shared layout.
func mustParsePages(files fs.FS) map[string]*template.Template {
	names, err := fs.Glob(files, "templates/*.html")
	if err != nil {
		panic(err)
	}
	out := make(map[string]*template.Template)
	for _, name := range names {
		page := path.Base(name)
		if page == "base.html" {
			continue
		}
		t := template.Must(template.New(page).Funcs(funcs).ParseFS(files, "templates/base.html", name))
		out[page] = t
	}
	return out
}

func (app *Application) newTemplateData(r *http.Request, s *Session) *templateData {
	data := &templateData{}
	if s != nil {
		u := s.User
		data.User = &u
		data.CSRFToken = s.CSRF
	}
	return data
}

// render executes page into a buffer first so template errors produce a
// clean 500 instead of a half-written page.
func (app *Application) render(w http.ResponseWriter, r *http.Request, status int, page string, data *templateData) {
	t, ok := pages[page]
	if !ok {
		app.log().WithError(fmt.Errorf("template %s does not exist", page)).Error("render")
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		app.log().WithError(err).WithField("page", page).Error("template execute")
		http.Error(w, "render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
