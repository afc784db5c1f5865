// Package web serves decks, review queues and card media as JSON over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/conorfennell/knoldeck/internal/media"
	"github.com/conorfennell/knoldeck/internal/review"
	"github.com/conorfennell/knoldeck/internal/sm2"
	"github.com/conorfennell/knoldeck/internal/storage"
	"github.com/conorfennell/knoldeck/internal/sync"
)

// Media handles a client neither fetches nor releases for mediaIdle are
// dropped by a sweep every sweepInterval.
const (
	mediaIdle     = 30 * time.Minute
	sweepInterval = time.Minute
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	db     *storage.DB
	review *review.Service
	syncer *sync.Syncer
	arena  *media.Arena
	router *http.ServeMux
	stop   context.CancelFunc
}

// NewServer creates and configures a new server. syncer may be nil, in
// which case POST /sync is unavailable.
func NewServer(db *storage.DB, svc *review.Service, syncer *sync.Syncer) *Server {
	s := &Server{
		db:     db,
		review: svc,
		syncer: syncer,
		arena:  media.NewArena(),
		router: http.NewServeMux(),
	}
	s.routes()

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	go s.sweepMedia(ctx, sweepInterval, mediaIdle)
	return s
}

func (s *Server) sweepMedia(ctx context.Context, every, idle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.arena.Sweep(idle); n > 0 {
				slog.Debug("Released idle media handles", "count", n)
			}
		}
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the idle sweep and releases every media handle still held by
// clients.
func (s *Server) Close() {
	s.stop()
	s.arena.Close()
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /decks", s.handleGetDecks())
	s.router.HandleFunc("DELETE /decks/{id}", s.handleDeleteDeck())
	s.router.HandleFunc("GET /decks/{id}/queue", s.handleGetQueue())

	s.router.HandleFunc("GET /cards/{id}", s.handleGetCard())
	s.router.HandleFunc("POST /cards/{id}/review", s.handlePostReview())

	s.router.HandleFunc("GET "+media.URLPrefix+"{token}", s.handleGetMedia())
	s.router.HandleFunc("DELETE "+media.URLPrefix+"{token}", s.handleReleaseMedia())

	// Source management routes
	s.router.HandleFunc("GET /sources", s.handleGetSources())
	s.router.HandleFunc("POST /sources", s.handlePostSource())
	s.router.HandleFunc("DELETE /sources/{id}", s.handleDeleteSource())
	s.router.HandleFunc("POST /sync", s.handlePostSync())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, sm2.ErrInvalidQuality):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil && id > 0
}

// handleGetDecks lists every deck with its card count.
func (s *Server) handleGetDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decks, err := s.db.Decks(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if decks == nil {
			decks = []storage.Deck{}
		}
		writeJSON(w, http.StatusOK, decks)
	}
}

func (s *Server) handleDeleteDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			badRequest(w, "invalid deck id")
			return
		}
		if err := s.db.DeleteDeck(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleGetQueue returns the new, due and learning cards of a deck.
func (s *Server) handleGetQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			badRequest(w, "invalid deck id")
			return
		}
		q, err := s.review.Queue(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}

type mediaView struct {
	URL         string `json:"url"`
	Token       string `json:"token"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

type cardView struct {
	ID       int64      `json:"id"`
	DeckID   int64      `json:"deck_id"`
	DeckName string     `json:"deck_name"`
	Front    string     `json:"front"`
	Back     string     `json:"back"`
	Tags     []string   `json:"tags"`
	Image    *mediaView `json:"image,omitempty"`
	Audio    *mediaView `json:"audio,omitempty"`
}

func (s *Server) acquire(a *domain.MediaAsset) *mediaView {
	if a == nil {
		return nil
	}
	h := s.arena.Acquire(a)
	return &mediaView{URL: h.URL, Token: h.Token, Name: a.Name, ContentType: a.ContentType, Size: a.Size()}
}

// handleGetCard returns a card. Its media are served through handles the
// client releases with DELETE /media/{token} once the card is off screen.
func (s *Server) handleGetCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			badRequest(w, "invalid card id")
			return
		}
		c, err := s.db.Card(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tags := c.Tags
		if tags == nil {
			tags = []string{}
		}
		writeJSON(w, http.StatusOK, cardView{
			ID:       c.ID,
			DeckID:   c.DeckID,
			DeckName: c.DeckName,
			Front:    c.Front,
			Back:     c.Back,
			Tags:     tags,
			Image:    s.acquire(c.Image),
			Audio:    s.acquire(c.Audio),
		})
	}
}

// handlePostReview grades a card. The body is {"quality": 0..5}.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			badRequest(w, "invalid card id")
			return
		}
		var body struct {
			Quality *int `json:"quality"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Quality == nil {
			badRequest(w, "body must be {\"quality\": 0..5}")
			return
		}

		out, err := s.review.Answer(r.Context(), id, sm2.Quality(*body.Quality))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) handleGetMedia() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := s.arena.Lookup(r.PathValue("token"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", h.Asset.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(h.Asset.Size()))
		w.Header().Set("Cache-Control", "private, max-age=3600")
		if _, err := w.Write(h.Asset.Data); err != nil {
			slog.Debug("Failed to write media", "token", h.Token, "error", err)
		}
	}
}

func (s *Server) handleReleaseMedia() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.arena.Release(r.PathValue("token")) {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleGetSources() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := s.db.GetAllSources(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if sources == nil {
			sources = []storage.Source{}
		}
		writeJSON(w, http.StatusOK, sources)
	}
}

// handlePostSource adds a source given as {"path": "..."} or a form value.
func (s *Server) handlePostSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Path string `json:"path"`
		}
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				badRequest(w, "invalid JSON body")
				return
			}
		} else {
			body.Path = r.PostFormValue("path")
		}
		if strings.TrimSpace(body.Path) == "" {
			badRequest(w, "path cannot be empty")
			return
		}

		src, err := sync.AddSource(r.Context(), s.db, body.Path)
		if err != nil {
			slog.Warn("Failed to add source", "path", body.Path, "error", err)
			badRequest(w, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, src)
	}
}

func (s *Server) handleDeleteSource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			badRequest(w, "invalid source id")
			return
		}
		if err := s.db.DeleteSource(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePostSync runs a sync in the foreground and returns its report.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.syncer == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "sync is not configured"})
			return
		}
		report, err := s.syncer.Run(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}
