package server

import (
	"net/http"
	"os"
	"path/filepath"
)

// handleSPA serves the presenter and player pages from dir. Unknown paths
// such as /host and /player fall back to index.html, which is never cached
// so a new bundle is picked up on reload.
func handleSPA(dir string) http.HandlerFunc {
	fileServer := http.FileServer(http.Dir(dir))

	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean(r.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	}
}
