// Package server provides the HTTP API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/bryan-buckman/newsriver/internal/database"
	"github.com/bryan-buckman/newsriver/internal/fetch"
	"github.com/bryan-buckman/newsriver/internal/icon"
	"github.com/bryan-buckman/newsriver/internal/ingest"
	"github.com/bryan-buckman/newsriver/internal/model"
	"github.com/bryan-buckman/newsriver/internal/opml"
	"github.com/bryan-buckman/newsriver/internal/retention"
	"github.com/bryan-buckman/newsriver/internal/syncsvc"
)

// defaultUserID is assumed when the client sends no X-User-ID header.
// Single-user deployments never need to set it.
const defaultUserID = 1

// Server is the HTTP front of the engine.
type Server struct {
	db        *database.DB
	fetcher   *fetch.Client
	pipeline  *ingest.Pipeline
	syncer    *syncsvc.Service
	retention *retention.Engine
	icons     *icon.Cache
	router    chi.Router
	log       *logrus.Entry
	httpSrv   *http.Server
}

// New creates a server and wires its routes.
func New(db *database.DB, fetcher *fetch.Client, pipeline *ingest.Pipeline,
	syncer *syncsvc.Service, ret *retention.Engine, icons *icon.Cache,
	log *logrus.Entry) *Server {
	s := &Server{
		db:        db,
		fetcher:   fetcher,
		pipeline:  pipeline,
		syncer:    syncer,
		retention: ret,
		icons:     icons,
		log:       log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/icons/{feedID}", s.handleIcon)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sync", s.handleSync)
		r.Post("/sync/push", s.handleSyncPush)

		r.Route("/feeds", func(r chi.Router) {
			r.Get("/", s.handleListFeeds)
			r.Post("/", s.handleSubscribe)
			r.Get("/{feedID}/articles", s.handleFeedArticles)
			r.Post("/{feedID}/refresh", s.handleRefreshNow)
			r.Post("/{feedID}/pause", s.handlePause)
			r.Post("/{feedID}/resume", s.handleResume)
			r.Post("/{feedID}/read-all", s.handleMarkAllRead)
			r.Delete("/{feedID}", s.handleUnsubscribe)
		})

		r.Route("/articles", func(r chi.Router) {
			r.Post("/{articleID}/bookmark", s.handleBookmark)
			r.Post("/{articleID}/read", s.handleSetRead)
		})

		r.Route("/folders", func(r chi.Router) {
			r.Get("/", s.handleListFolders)
			r.Post("/", s.handleCreateFolder)
			r.Patch("/{folderID}", s.handleRenameFolder)
			r.Delete("/{folderID}", s.handleDeleteFolder)
		})

		r.Route("/retention", func(r chi.Router) {
			r.Get("/", s.handleGetRetention)
			r.Put("/", s.handleSaveRetention)
			r.Get("/preview", s.handleRetentionPreview)
			r.Post("/run", s.handleRetentionRun)
		})

		r.Route("/maintenance", func(r chi.Router) {
			r.Get("/stats", s.handleStats)
			r.Post("/optimize", s.handleOptimize)
			r.Post("/compact", s.handleCompact)
		})

		r.Post("/opml/import", s.handleImportOPML)
		r.Get("/opml/export", s.handleExportOPML)
	})

	s.router = r
}

// Start blocks serving HTTP until Shutdown or listener failure.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.WithField("addr", addr).Info("http server listening")
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func userID(r *http.Request) int64 {
	if raw := r.Header.Get("X-User-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return defaultUserID
}

func idParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.WithError(err).Debug("encode response")
	}
}

// --- Sync ---

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	cursor := syncsvc.DecodeCursor(r.URL.Query().Get("cursor"))
	include := syncsvc.ParseInclude(r.URL.Query().Get("include"))

	resp, err := s.syncer.Changes(userID(r), cursor, include)
	if err != nil {
		s.log.WithError(err).Error("sync changes")
		http.Error(w, "Sync failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSyncPush(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReadState []syncsvc.PushItem `json:"read_state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	result := s.syncer.Push(userID(r), req.ReadState)
	s.respondJSON(w, http.StatusOK, result)
}

// --- Feeds ---

type subscribeRequest struct {
	URL                    string `json:"url"`
	Type                   string `json:"type"`
	Title                  string `json:"title"`
	Folder                 string `json:"folder"`
	RefreshIntervalMinutes int    `json:"refresh_interval_minutes"`
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	feedType := model.FeedType(req.Type)
	if req.Type == "" {
		feedType = model.FeedTypeWeb
	}
	if !feedType.Valid() {
		http.Error(w, fmt.Sprintf("unknown feed type %q", req.Type), http.StatusBadRequest)
		return
	}

	fetchURL := req.URL
	if feedType == model.FeedTypeVideo {
		resolved, err := ingest.ResolveVideoFeedURL(r.Context(), s.fetcher, req.URL)
		if err != nil {
			http.Error(w, fmt.Sprintf("Cannot resolve channel: %v", err), http.StatusBadRequest)
			return
		}
		fetchURL = resolved
	}

	uid := userID(r)
	if existing, err := s.db.GetFeedByURL(uid, fetchURL); err == nil {
		s.respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":   "already subscribed",
			"feed_id": existing.ID,
		})
		return
	} else if !database.IsNotFound(err) {
		http.Error(w, "Lookup failed", http.StatusInternalServerError)
		return
	}

	feed := &model.Feed{
		UserID:                 uid,
		Type:                   feedType,
		URL:                    fetchURL,
		Title:                  req.Title,
		RefreshIntervalMinutes: req.RefreshIntervalMinutes,
	}
	if feed.RefreshIntervalMinutes <= 0 {
		feed.RefreshIntervalMinutes = 60
	}
	if req.Folder != "" {
		folderID, err := s.db.GetOrCreateFolder(uid, req.Folder)
		if err != nil {
			http.Error(w, "Folder creation failed", http.StatusInternalServerError)
			return
		}
		feed.FolderID = &folderID
	}

	feedID, err := s.db.CreateFeed(feed)
	if err != nil {
		s.log.WithError(err).Error("create feed")
		http.Error(w, "Subscribe failed", http.StatusInternalServerError)
		return
	}

	// First fetch runs detached so subscribe returns immediately; the feed
	// shows up in sync with its articles once the refresh lands.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.pipeline.RefreshFeed(ctx, feedID); err != nil {
			s.log.WithField("feed_id", feedID).WithError(err).Warn("initial refresh")
		}
	}()

	s.respondJSON(w, http.StatusCreated, map[string]interface{}{
		"feed_id": feedID,
		"url":     fetchURL,
		"type":    string(feedType),
	})
}

func (s *Server) handleListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.db.GetFeedsByUser(userID(r))
	if err != nil {
		http.Error(w, "Failed to list feeds", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"feeds": feeds})
}

func (s *Server) handleFeedArticles(w http.ResponseWriter, r *http.Request) {
	feedID, err := idParam(r, "feedID")
	if err != nil {
		http.Error(w, "Invalid feed id", http.StatusBadRequest)
		return
	}
	if !s.ownsFeed(w, r, feedID) {
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	articles, err := s.db.GetArticlesByFeed(feedID, limit)
	if err != nil {
		http.Error(w, "Failed to list articles", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"articles": articles})
}

func (s *Server) handleRefreshNow(w http.ResponseWriter, r *http.Request) {
	feedID, err := idParam(r, "feedID")
	if err != nil {
		http.Error(w, "Invalid feed id", http.StatusBadRequest)
		return
	}
	if !s.ownsFeed(w, r, feedID) {
		return
	}
	// Manual refresh always runs, even past the error ceiling; a success
	// here is what closes the circuit again.
	newCount, err := s.pipeline.RefreshFeed(r.Context(), feedID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Refresh failed: %v", err), http.StatusBadGateway)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"new_articles": newCount})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.feedAction(w, r, s.db.PauseFeed)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.feedAction(w, r, s.db.ResumeFeed)
}

func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	s.feedAction(w, r, s.db.SoftDeleteFeed)
}

func (s *Server) feedAction(w http.ResponseWriter, r *http.Request, action func(int64) error) {
	feedID, err := idParam(r, "feedID")
	if err != nil {
		http.Error(w, "Invalid feed id", http.StatusBadRequest)
		return
	}
	if !s.ownsFeed(w, r, feedID) {
		return
	}
	if err := action(feedID); err != nil {
		http.Error(w, "Update failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	feedID, err := idParam(r, "feedID")
	if err != nil {
		http.Error(w, "Invalid feed id", http.StatusBadRequest)
		return
	}
	if !s.ownsFeed(w, r, feedID) {
		return
	}
	n, err := s.db.MarkAllRead(userID(r), feedID, time.Now().UTC())
	if err != nil {
		http.Error(w, "Mark read failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"marked": n})
}

// ownsFeed loads the feed and verifies the caller owns it. Writes the error
// response itself and reports whether the handler may continue.
func (s *Server) ownsFeed(w http.ResponseWriter, r *http.Request, feedID int64) bool {
	feed, err := s.db.GetFeedByID(feedID)
	if database.IsNotFound(err) {
		http.Error(w, "Feed not found", http.StatusNotFound)
		return false
	}
	if err != nil {
		http.Error(w, "Lookup failed", http.StatusInternalServerError)
		return false
	}
	if feed.UserID != userID(r) {
		http.Error(w, "Feed not found", http.StatusNotFound)
		return false
	}
	return true
}

// --- Articles ---

func (s *Server) handleBookmark(w http.ResponseWriter, r *http.Request) {
	articleID, err := idParam(r, "articleID")
	if err != nil {
		http.Error(w, "Invalid article id", http.StatusBadRequest)
		return
	}
	var req struct {
		Bookmarked bool `json:"bookmarked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := s.db.SetArticleBookmarked(userID(r), articleID, req.Bookmarked); err != nil {
		if err == database.ErrNotOwned {
			http.Error(w, "Article not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Update failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"bookmarked": req.Bookmarked})
}

func (s *Server) handleSetRead(w http.ResponseWriter, r *http.Request) {
	articleID, err := idParam(r, "articleID")
	if err != nil {
		http.Error(w, "Invalid article id", http.StatusBadRequest)
		return
	}
	var req struct {
		IsRead bool `json:"is_read"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := s.db.UpsertReadState(userID(r), articleID, req.IsRead, time.Now().UTC()); err != nil {
		if err == database.ErrNotOwned {
			http.Error(w, "Article not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Update failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Folders ---

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.db.GetFoldersByUser(userID(r))
	if err != nil {
		http.Error(w, "Failed to list folders", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"folders": folders})
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	id, err := s.db.GetOrCreateFolder(userID(r), req.Name)
	if err != nil {
		http.Error(w, "Create failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]interface{}{"folder_id": id})
}

func (s *Server) handleRenameFolder(w http.ResponseWriter, r *http.Request) {
	folderID, err := idParam(r, "folderID")
	if err != nil {
		http.Error(w, "Invalid folder id", http.StatusBadRequest)
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if !s.ownsFolder(w, r, folderID) {
		return
	}
	if err := s.db.RenameFolder(folderID, req.Name); err != nil {
		http.Error(w, "Rename failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	folderID, err := idParam(r, "folderID")
	if err != nil {
		http.Error(w, "Invalid folder id", http.StatusBadRequest)
		return
	}
	if !s.ownsFolder(w, r, folderID) {
		return
	}
	if err := s.db.SoftDeleteFolder(folderID); err != nil {
		http.Error(w, "Delete failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ownsFolder(w http.ResponseWriter, r *http.Request, folderID int64) bool {
	folder, err := s.db.GetFolderByID(folderID)
	if database.IsNotFound(err) {
		http.Error(w, "Folder not found", http.StatusNotFound)
		return false
	}
	if err != nil {
		http.Error(w, "Lookup failed", http.StatusInternalServerError)
		return false
	}
	if folder.UserID != userID(r) {
		http.Error(w, "Folder not found", http.StatusNotFound)
		return false
	}
	return true
}

// --- Retention ---

func (s *Server) handleGetRetention(w http.ResponseWriter, r *http.Request) {
	policy, err := s.db.GetRetentionPolicy(userID(r))
	if err != nil {
		http.Error(w, "Failed to load policy", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, policy)
}

func (s *Server) handleSaveRetention(w http.ResponseWriter, r *http.Request) {
	var policy model.RetentionPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if policy.MaxAgeDays < 0 || policy.MaxPerFeed < 0 {
		http.Error(w, "Limits must not be negative", http.StatusBadRequest)
		return
	}
	policy.UserID = userID(r)
	if err := s.db.SaveRetentionPolicy(policy); err != nil {
		http.Error(w, "Save failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, policy)
}

func (s *Server) handleRetentionPreview(w http.ResponseWriter, r *http.Request) {
	preview, err := s.retention.Preview(userID(r))
	if err != nil {
		http.Error(w, "Preview failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, preview)
}

func (s *Server) handleRetentionRun(w http.ResponseWriter, r *http.Request) {
	report, err := s.retention.Enforce(userID(r))
	if err != nil {
		http.Error(w, "Retention run failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

// --- Maintenance ---

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.CollectStats()
	if err != nil {
		http.Error(w, "Stats failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"stats":               stats,
		"compaction_advised":  stats.Fragmentation >= retention.CompactionFragThreshold(),
		"fragmentation_floor": retention.CompactionFragThreshold(),
	})
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	elapsed, err := s.db.Optimize()
	if err != nil {
		http.Error(w, "Optimize failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"elapsed_ms": elapsed.Milliseconds(),
	})
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	if !force {
		worthwhile, frag, err := s.db.CompactionWorthwhile(retention.CompactionFragThreshold())
		if err != nil {
			http.Error(w, "Fragmentation check failed", http.StatusInternalServerError)
			return
		}
		if !worthwhile {
			s.respondJSON(w, http.StatusOK, map[string]interface{}{
				"status":        "skipped",
				"fragmentation": frag,
			})
			return
		}
	}
	reclaimed, elapsed, err := s.db.Vacuum()
	if err != nil {
		http.Error(w, "Compaction failed", http.StatusInternalServerError)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"bytes_reclaimed": reclaimed,
		"elapsed_ms":      elapsed.Milliseconds(),
	})
}

// --- OPML ---

func (s *Server) handleImportOPML(w http.ResponseWriter, r *http.Request) {
	file, _, err := r.FormFile("opml")
	if err != nil {
		http.Error(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	entries, err := opml.Parse(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse OPML: %v", err), http.StatusBadRequest)
		return
	}

	uid := userID(r)
	imported := 0
	for _, entry := range entries {
		if _, err := s.db.GetFeedByURL(uid, entry.URL); err == nil {
			continue
		} else if !database.IsNotFound(err) {
			s.log.WithField("url", entry.URL).WithError(err).Warn("opml lookup")
			continue
		}
		feed := &model.Feed{
			UserID:                 uid,
			Type:                   entry.Type,
			URL:                    entry.URL,
			Title:                  entry.Title,
			SiteURL:                entry.SiteURL,
			RefreshIntervalMinutes: 60,
		}
		if entry.Folder != "" {
			folderID, err := s.db.GetOrCreateFolder(uid, entry.Folder)
			if err != nil {
				s.log.WithField("folder", entry.Folder).WithError(err).Warn("opml folder")
			} else {
				feed.FolderID = &folderID
			}
		}
		if _, err := s.db.CreateFeed(feed); err != nil {
			s.log.WithField("url", entry.URL).WithError(err).Warn("opml import")
			continue
		}
		imported++
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"imported": imported,
		"total":    len(entries),
	})
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	feeds, err := s.db.GetFeedsByUser(uid)
	if err != nil {
		http.Error(w, "Failed to list feeds", http.StatusInternalServerError)
		return
	}
	folders, err := s.db.GetFoldersByUser(uid)
	if err != nil {
		http.Error(w, "Failed to list folders", http.StatusInternalServerError)
		return
	}
	folderNames := make(map[int64]string, len(folders))
	for _, f := range folders {
		folderNames[f.ID] = f.Name
	}

	entries := make([]opml.Entry, 0, len(feeds))
	for _, f := range feeds {
		entry := opml.Entry{
			Title:   f.Title,
			URL:     f.URL,
			SiteURL: f.SiteURL,
			Type:    f.Type,
		}
		if f.FolderID != nil {
			entry.Folder = folderNames[*f.FolderID]
		}
		entries = append(entries, entry)
	}

	out, err := opml.Export("newsriver subscriptions", entries, time.Now())
	if err != nil {
		http.Error(w, "Failed to export", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/x-opml")
	w.Header().Set("Content-Disposition", `attachment; filename="subscriptions.opml"`)
	w.Write(out)
}

// --- Icons ---

func (s *Server) handleIcon(w http.ResponseWriter, r *http.Request) {
	feedID, err := idParam(r, "feedID")
	if err != nil {
		http.Error(w, "Invalid feed id", http.StatusBadRequest)
		return
	}
	feed, err := s.db.GetFeedByID(feedID)
	if database.IsNotFound(err) {
		http.Error(w, "Feed not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Lookup failed", http.StatusInternalServerError)
		return
	}

	if feed.IconPath != "" {
		path, err := s.icons.Resolve(feed.IconPath)
		if err == nil {
			if feed.IconType != "" {
				w.Header().Set("Content-Type", feed.IconType)
			}
			// Cached icons are content-addressed, so the name changes
			// whenever the bytes do.
			w.Header().Set("Cache-Control", "public, max-age=604800, immutable")
			http.ServeFile(w, r, path)
			return
		}
		s.log.WithField("feed_id", feedID).WithError(err).Debug("icon resolve")
	}
	if feed.IconURL != "" {
		http.Redirect(w, r, feed.IconURL, http.StatusFound)
		return
	}
	http.Error(w, "No icon", http.StatusNotFound)
}
