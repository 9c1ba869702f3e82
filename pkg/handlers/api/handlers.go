// Package api provides the JSON management API: link composition,
// provider introspection, watchlist and continue-watching CRUD, and
// process status.
package api

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"embedgate/pkg/linker"
	"embedgate/pkg/logging"
	"embedgate/pkg/providers"
	"embedgate/pkg/store"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Handlers contains all API handlers.
type Handlers struct {
	reg      *providers.Registry
	composer *linker.Composer
	store    *store.Store
	log      *logging.Logger
	started  time.Time
}

// NewHandlers creates a new Handlers instance. st may be nil when
// persistence is disabled; the watchlist routes are then not registered.
func NewHandlers(reg *providers.Registry, composer *linker.Composer, st *store.Store, log *logging.Logger) *Handlers {
	return &Handlers{
		reg:      reg,
		composer: composer,
		store:    st,
		log:      log.WithComponent("api"),
		started:  time.Now(),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", h.handleStatus)
	mux.HandleFunc("GET /api/providers", h.handleProviders)

	mux.HandleFunc("GET /api/links/movie/{tmdbID}", h.handleMovieLinks)
	mux.HandleFunc("GET /api/links/tv/{tmdbID}/{season}/{episode}", h.handleTVLinks)

	if h.store != nil {
		mux.HandleFunc("GET /api/watchlist/{userID}", h.handleGetWatchlist)
		mux.HandleFunc("POST /api/watchlist/{userID}", h.handleAddWatchlist)
		mux.HandleFunc("DELETE /api/watchlist/{userID}/{mediaType}/{tmdbID}", h.handleRemoveWatchlist)

		mux.HandleFunc("GET /api/continue/{userID}", h.handleGetContinue)
		mux.HandleFunc("POST /api/continue/{userID}", h.handleRecordContinue)
		mux.HandleFunc("DELETE /api/continue/{userID}/{mediaType}/{tmdbID}", h.handleClearContinue)
	}
}

// handleStatus reports process and host health.
func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	status := map[string]any{
		"status":         "running",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"heap_mb":        m.Alloc / 1024 / 1024,
		"providers":      h.reg.Len(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		status["host_mem_used_percent"] = vm.UsedPercent
	}
	if pcts, err := cpu.Percent(0, false); err == nil && len(pcts) > 0 {
		status["host_cpu_percent"] = pcts[0]
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if rss, err := proc.MemoryInfo(); err == nil {
			status["rss_mb"] = rss.RSS / 1024 / 1024
		}
	}

	h.writeJSON(w, http.StatusOK, status)
}

// handleProviders lists the registry, optionally filtered by ?type=.
func (h *Handlers) handleProviders(w http.ResponseWriter, r *http.Request) {
	t := providers.MediaType(r.URL.Query().Get("type"))
	h.writeJSON(w, http.StatusOK, h.reg.List(t))
}

func (h *Handlers) handleMovieLinks(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := strconv.Atoi(r.PathValue("tmdbID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "tmdb id must be numeric")
		return
	}

	links, err := h.composer.AllMovieLinks(tmdbID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, links)
}

func (h *Handlers) handleTVLinks(w http.ResponseWriter, r *http.Request) {
	tmdbID, err1 := strconv.Atoi(r.PathValue("tmdbID"))
	season, err2 := strconv.Atoi(r.PathValue("season"))
	episode, err3 := strconv.Atoi(r.PathValue("episode"))
	if err1 != nil || err2 != nil || err3 != nil {
		h.writeError(w, http.StatusBadRequest, "tmdb id, season, and episode must be numeric")
		return
	}

	// An anime=1 request augments the list with MAL-addressed providers;
	// mal_id skips the external id-mapping lookup.
	if r.URL.Query().Get("anime") == "1" || r.URL.Query().Get("mal_id") != "" {
		malID, _ := strconv.Atoi(r.URL.Query().Get("mal_id"))
		if season < 1 || episode < 1 {
			h.writeError(w, http.StatusBadRequest, "season and episode must be positive")
			return
		}
		h.writeJSON(w, http.StatusOK, h.composer.AnimeTVLinks(r.Context(), tmdbID, season, episode, malID))
		return
	}

	links, err := h.composer.AllTVLinks(tmdbID, season, episode)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, links)
}

// Watchlist handlers

func (h *Handlers) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.store.Watchlist(r.Context(), r.PathValue("userID"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []store.WatchlistEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) handleAddWatchlist(w http.ResponseWriter, r *http.Request) {
	var entry store.WatchlistEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	entry.UserID = r.PathValue("userID")

	if entry.TMDBID <= 0 || entry.Title == "" || !validMediaType(entry.MediaType) {
		h.writeError(w, http.StatusBadRequest, "tmdb_id, title, and media_type are required")
		return
	}

	if err := h.store.AddToWatchlist(r.Context(), entry); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, entry)
}

func (h *Handlers) handleRemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := strconv.Atoi(r.PathValue("tmdbID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "tmdb id must be numeric")
		return
	}

	removed, err := h.store.RemoveFromWatchlist(r.Context(), r.PathValue("userID"), tmdbID, providers.MediaType(r.PathValue("mediaType")))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		h.writeError(w, http.StatusNotFound, "not on watchlist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Continue-watching handlers

func (h *Handlers) handleGetContinue(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.store.ContinueWatching(r.Context(), r.PathValue("userID"), limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []store.Progress{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) handleRecordContinue(w http.ResponseWriter, r *http.Request) {
	var p store.Progress
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p.UserID = r.PathValue("userID")

	if p.TMDBID <= 0 || p.Title == "" || !validMediaType(p.MediaType) {
		h.writeError(w, http.StatusBadRequest, "tmdb_id, title, and media_type are required")
		return
	}

	if err := h.store.RecordProgress(r.Context(), p); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *Handlers) handleClearContinue(w http.ResponseWriter, r *http.Request) {
	tmdbID, err := strconv.Atoi(r.PathValue("tmdbID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "tmdb id must be numeric")
		return
	}

	if err := h.store.ClearProgress(r.Context(), r.PathValue("userID"), tmdbID, providers.MediaType(r.PathValue("mediaType"))); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helper methods

func validMediaType(t providers.MediaType) bool {
	return t == providers.MediaMovie || t == providers.MediaTV
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
