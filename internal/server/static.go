package server

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed dist/*
var distFS embed.FS

// staticHandler serves the embedded chat UI. Paths that don't name an
// embedded file fall back to index.html, so a reloaded or bookmarked
// session URL still loads the app.
func staticHandler() http.Handler {
	ui, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("embedded chat UI missing: " + err.Error())
	}
	files := http.FileServer(http.FS(ui))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// API routes never fall through to the UI.
		if strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}

		if name := strings.TrimPrefix(r.URL.Path, "/"); name != "" {
			if _, err := fs.Stat(ui, name); err == nil {
				files.ServeHTTP(w, r)
				return
			}
		}

		r.URL.Path = "/"
		files.ServeHTTP(w, r)
	})
}
