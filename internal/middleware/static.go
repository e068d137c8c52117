package middleware

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
)

// StaticFileServer serves uploaded bank-statement files referenced by
// statement_file_url. Missing files return a JSON 404 rather than the
// default plain-text body so API clients get a consistent shape.
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(r.URL.Path))

		if _, err := os.Stat(path); err == nil {
			w.Header().Set("Cache-Control", "private, max-age=3600")
			http.ServeFile(w, r, path)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "statement file not found"})
	})
}
