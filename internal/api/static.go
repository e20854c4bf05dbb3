package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sdvuuv/spitec/pkg/logger"
)

// StaticFileHandler serves a map client from a directory without caching
type StaticFileHandler struct {
	root   string
	logger *logger.Logger
}

// NewStaticFileHandler creates a new static file handler rooted at dir
func NewStaticFileHandler(dir string, log *logger.Logger) (*StaticFileHandler, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &StaticFileHandler{root: root, logger: log.Named("static-handler")}, nil
}

// ServeHTTP serves the requested file, falling back to index.html for directories
func (h *StaticFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(filepath.Clean("/"+r.URL.Path), "/")
	full := filepath.Join(h.root, rel)

	// Reject anything that resolves outside the root
	if full != h.root && !strings.HasPrefix(full, h.root+string(filepath.Separator)) {
		h.logger.Warn("Rejected path outside static root", logger.String("path", r.URL.Path))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(full)
	if err == nil && info.IsDir() {
		full = filepath.Join(full, "index.html")
		info, err = os.Stat(full)
	}
	if err != nil {
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("Failed to stat file", logger.Error(err), logger.String("path", full))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	http.ServeFile(w, r, full)
}
