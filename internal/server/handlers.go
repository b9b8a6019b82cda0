package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/hlog"

	"seedlink/internal/resolver"
)

const (
	errMissingURL = "Missing ?url parameter"
	errNotFound   = "Redirect link not found"
)

// LinkResponse is the /getlink success body.
type LinkResponse struct {
	FinalURL      string         `json:"final_url"`
	FileID        string         `json:"file_id"`
	DownloadLinks resolver.Links `json:"download_links"`
}

// NotFoundResponse carries what the page looked like when no link was found.
type NotFoundResponse struct {
	Error      string  `json:"error"`
	DebugTitle string  `json:"debug_title,omitempty"`
	DebugHTML  *string `json:"debug_html"`
	DebugError string  `json:"debug_error,omitempty"`
}

// ErrorResponse is the body of every other failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "OK")
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "pong\n")
}

func (s *Server) handleGetLink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: errMissingURL})
		return
	}
	log := hlog.FromRequest(r)
	log.Info().Str("url", target).Msg("getlink")

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}
	res, err := s.svc.GetLink(ctx, target)
	status, body := Response(res, err, s.cfg.DebugHTMLLimit)
	if err != nil {
		log.Warn().Err(err).Str("url", target).Int("status", status).Msg("getlink failed")
	}
	writeJSON(w, status, body)
}

// Response maps the outcome of GetLink to a status code and JSON body.
// debugLimit caps the echoed markup of a not-found page; zero keeps it whole.
func Response(res *resolver.Result, err error, debugLimit int) (int, any) {
	if err == nil {
		return http.StatusOK, LinkResponse{
			FinalURL:      res.FinalURL,
			FileID:        res.FileID,
			DownloadLinks: res.Links,
		}
	}
	var nf *resolver.NotFoundError
	if !errors.As(err, &nf) {
		return http.StatusInternalServerError, ErrorResponse{Error: err.Error()}
	}
	body := NotFoundResponse{Error: errNotFound, DebugTitle: nf.Title}
	if nf.HTML != "" {
		html := truncate(nf.HTML, debugLimit)
		body.DebugHTML = &html
	}
	if nf.Err != nil {
		body.DebugError = nf.Err.Error()
	}
	return http.StatusGatewayTimeout, body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	n := limit
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
