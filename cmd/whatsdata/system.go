package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"whatsdata/internal/constants"
	"whatsdata/internal/httputil"
	"whatsdata/internal/stats"
	"whatsdata/internal/store"
	"whatsdata/internal/versioning"
)

const healthyHeapLimitMB = 512

type endpointDoc struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
	Parameters  []string `json:"parameters"`
}

func (s *Server) endpoints() map[string]endpointDoc {
	base := "/" + constants.APIVersion
	return map[string]endpointDoc{
		"contacts": {base + "/contacts", []string{"GET", "POST", "PUT", "DELETE"},
			"Manage WhatsApp contacts",
			[]string{"file", "fields", "search", "limit", "offset", "sort", "order", "id"}},
		"messages": {base + "/messages", []string{"GET", "POST"},
			"Query and append WhatsApp messages",
			[]string{"file", "contact_id", "from_user", "to_user", "fields", "search", "limit", "offset",
				"start_date", "end_date", "has_media", "from_me", "sort", "order"}},
		"files": {base + "/files", []string{"GET", "POST", "DELETE"},
			"List, download, write and delete JSON files",
			[]string{"directory", "type", "search", "action", "filename", "create_backup"}},
		"stats": {base + "/stats", []string{"GET"},
			"Statistics: summary, contacts, messages, files, activity",
			[]string{"type", "file", "contact_id", "date_range", "include_details"}},
		"watch": {base + "/watch", []string{"GET"},
			"Websocket feed of file changes", nil},
	}
}

// handleIndex serves GET /v1?action=info|status|health
func (s *Server) handleIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch httputil.QueryString(r, "action") {
		case "status":
			s.respond(w, r, http.StatusOK, httputil.NewEnvelope(respSuccess, s.status(r.Context())).
				With("message", "System status retrieved successfully"))
		case "health":
			s.writeHealth(w, r)
		default:
			s.respond(w, r, http.StatusOK, httputil.NewEnvelope(respSuccess, s.info(r.Context())).
				With("message", "API Documentation retrieved successfully"))
		}
	}
}

func (s *Server) handleHealth() http.HandlerFunc {
	return s.writeHealth
}

func (s *Server) info(ctx context.Context) map[string]any {
	v, ok := versioning.FromContext(ctx)
	if !ok {
		v = versioning.CurrentVersion
	}
	limit, window := s.limiter.Limit()

	return map[string]any{
		"api_version": constants.APIVersion,
		"build":       s.build,
		"documentation": map[string]any{
			"title":       "WhatsApp JSON API",
			"description": "Query, filter and aggregate WhatsApp exports stored as JSON files",
			"version":     versioning.CurrentVersion.String(),
			"endpoints":   s.endpoints(),
		},
		"features": versioning.SupportedFeatures(v),
		"flags":    s.flags.List(),
		"file_types": map[string]string{
			string(store.KindContacts): "Files containing contact information",
			string(store.KindMessages): "Files containing message data",
			string(store.KindBackup):   "Backup copies of files",
			string(store.KindUnknown):  "Uncategorized files",
		},
		"limitations": map[string]any{
			"max_file_size":      fmt.Sprintf("%dMB", s.cfg.Storage.MaxFileSizeMB),
			"max_request_body":   fmt.Sprintf("%dMB", s.maxBodyBytes()/constants.BytesPerMegabyte),
			"allowed_extensions": []string{constants.JSONExtension},
			"rate_limiting":      fmt.Sprintf("%d requests per %s", limit, window),
			"backup_policy":      "Backups are kept on overwrite and on request before delete",
		},
	}
}

func (s *Server) allBlobs(ctx context.Context) []store.BlobMeta {
	var out []store.BlobMeta
	for _, dir := range s.store.Dirs() {
		blobs, err := s.store.List(ctx, dir)
		if err != nil {
			s.logger.WithError(err).WithField("directory", dir).Warn("Failed to list directory for status")
			continue
		}
		out = append(out, blobs...)
	}
	return out
}

// dirResolver is implemented by stores backed by real directories
type dirResolver interface {
	DirPath(dir string) (string, error)
}

func (s *Server) directoryExists() map[string]bool {
	exists := make(map[string]bool)
	resolver, ok := s.store.(dirResolver)
	for _, dir := range s.store.Dirs() {
		if !ok {
			exists[dir] = true
			continue
		}
		path, err := resolver.DirPath(dir)
		if err != nil {
			exists[dir] = false
			continue
		}
		info, err := os.Stat(path)
		exists[dir] = err == nil && info.IsDir()
	}
	return exists
}

func toMB(b uint64) int {
	return int(b / constants.BytesPerMegabyte)
}

func (s *Server) status(ctx context.Context) map[string]any {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	uptime := time.Since(s.started)
	files := stats.Files(s.allBlobs(ctx), time.UTC)

	watchers := 0
	if s.hub != nil {
		watchers = s.hub.Subscribers()
	}

	return map[string]any{
		"api": map[string]any{
			"version":          constants.APIVersion,
			"status":           "operational",
			"uptime_seconds":   int(uptime.Seconds()),
			"uptime_formatted": uptime.Truncate(time.Second).String(),
		},
		"system": map[string]any{
			"go_version":   runtime.Version(),
			"platform":     runtime.GOOS,
			"architecture": runtime.GOARCH,
			"goroutines":   runtime.NumGoroutine(),
			"memory": map[string]int{
				"heap_alloc_mb": toMB(mem.HeapAlloc),
				"heap_sys_mb":   toMB(mem.HeapSys),
				"sys_mb":        toMB(mem.Sys),
			},
		},
		"files": files,
		"performance": map[string]any{
			"file_count":      files.TotalFiles,
			"storage_size_mb": files.TotalSize / constants.BytesPerMegabyte,
			"rate_limited":    s.limiter.Size(),
			"watchers":        watchers,
		},
		"directories": map[string]any{
			"exists": s.directoryExists(),
		},
	}
}

// writeHealth answers 200 when every check passes and 503 otherwise
func (s *Server) writeHealth(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	fileSystem := true
	for _, ok := range s.directoryExists() {
		fileSystem = fileSystem && ok
	}
	checks := map[string]bool{
		"api_server":   true,
		"file_system":  fileSystem,
		"memory_usage": toMB(mem.HeapAlloc) < healthyHeapLimitMB,
		"uptime":       time.Since(s.started) > 0,
	}

	healthy := true
	for _, ok := range checks {
		healthy = healthy && ok
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	_ = httputil.WriteJSON(w, status, map[string]any{
		"healthy":   healthy,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
