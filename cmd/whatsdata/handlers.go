package main

import (
	"fmt"
	"net/http"
	"time"

	"whatsdata/internal/constants"
	apperrors "whatsdata/internal/errors"
	"whatsdata/internal/features"
	"whatsdata/internal/httputil"
	"whatsdata/internal/models"
	"whatsdata/internal/query"
	"whatsdata/internal/service"

	"github.com/sirupsen/logrus"
)

// Envelope types
const (
	respSuccess = "success"
	respError   = "error"
)

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, body httputil.Envelope) {
	if err := httputil.WriteJSON(w, status, body); err != nil {
		s.errLog.LogError(err, "Failed to write response", logrus.Fields{
			"path": r.URL.Path,
		})
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.errLog.LogByStatus(err, "Request failed", logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	})
	httputil.WriteError(w, r, err)
}

// nullable renders an empty string as JSON null
func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// optionalFlag is nil when key is absent; any value other than "true" means false
func optionalFlag(r *http.Request, key string) *bool {
	return query.ParseFlag(httputil.QueryString(r, key), httputil.QueryPresent(r, key))
}

// decodeRecords accepts a single object or an array. Array items that are not
// objects stay as nil entries so the services count them as rejected.
func decodeRecords(r *http.Request) ([]models.Record, error) {
	var raw any
	if err := httputil.DecodeJSON(r, &raw); err != nil {
		return nil, err
	}
	switch v := raw.(type) {
	case map[string]any:
		return []models.Record{v}, nil
	case []any:
		out := make([]models.Record, len(v))
		for i, item := range v {
			if m, ok := item.(map[string]any); ok {
				out[i] = m
			}
		}
		return out, nil
	default:
		return nil, apperrors.NewInputError("Request body must be an object or an array of objects")
	}
}

func (s *Server) handleListContacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.contacts.List(r.Context(), service.ContactQuery{
			File:   httputil.QueryString(r, "file"),
			Fields: httputil.QueryString(r, "fields"),
			Search: httputil.QueryString(r, "search"),
			Limit:  httputil.QueryString(r, "limit"),
			Offset: httputil.QueryString(r, "offset"),
			Sort:   httputil.QueryString(r, "sort"),
			Order:  httputil.QueryString(r, "order"),
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}

		body := httputil.NewEnvelope(respSuccess, res.Contacts).
			With("message", fmt.Sprintf("Retrieved %d contacts", len(res.Contacts))).
			With("total", res.Total).
			With("count", res.Page.Count).
			With("source", res.Source).
			With("fields", res.Fields).
			With("search", nullable(res.Search)).
			With("pagination", res.Page)
		if len(res.Skipped) > 0 {
			body = body.With("skipped_files", res.Skipped)
		}
		s.respond(w, r, http.StatusOK, body)
	}
}

func (s *Server) handleCreateContacts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := decodeRecords(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		res, err := s.contacts.Create(r.Context(), records)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, r, http.StatusCreated, saveEnvelope(res, "contacts"))
	}
}

func saveEnvelope(res *service.SaveResult, noun string) httputil.Envelope {
	return httputil.NewEnvelope(respSuccess, res.Saved).
		With("message", fmt.Sprintf("Saved %d new %s", len(res.Saved), noun)).
		With("saved", len(res.Saved)).
		With("rejected", res.Rejected).
		With("total", res.Total).
		With("file", res.File).
		With("source", constants.MessageSourceAPI)
}

func (s *Server) handleUpdateContact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch map[string]any
		if err := httputil.DecodeJSON(r, &patch); err != nil {
			s.fail(w, r, err)
			return
		}
		updated, file, err := s.contacts.Update(r.Context(),
			httputil.QueryString(r, "file"), httputil.QueryString(r, "id"), patch)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, r, http.StatusOK, httputil.NewEnvelope(respSuccess, updated).
			With("message", "Contact updated successfully").
			With("file", file).
			With("updated_at", updated[models.FieldUpdatedAt]))
	}
}

func (s *Server) handleDeleteContact() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := httputil.QueryString(r, "id")
		removed, file, err := s.contacts.Delete(r.Context(), httputil.QueryString(r, "file"), id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, r, http.StatusOK, httputil.NewEnvelope(respSuccess, nil).
			With("message", fmt.Sprintf("Contact %s deleted successfully", id)).
			With("removed_count", removed).
			With("file", file))
	}
}

func (s *Server) handleListMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.messages.List(r.Context(), service.MessageQuery{
			File:      httputil.QueryString(r, "file"),
			ContactID: httputil.QueryString(r, "contact_id"),
			FromUser:  httputil.QueryString(r, "from_user"),
			ToUser:    httputil.QueryString(r, "to_user"),
			Fields:    httputil.QueryString(r, "fields"),
			Search:    httputil.QueryString(r, "search"),
			Limit:     httputil.QueryString(r, "limit"),
			Offset:    httputil.QueryString(r, "offset"),
			StartDate: httputil.QueryString(r, "start_date"),
			EndDate:   httputil.QueryString(r, "end_date"),
			HasMedia:  optionalFlag(r, "has_media"),
			FromMe:    optionalFlag(r, "from_me"),
			Sort:      httputil.QueryString(r, "sort"),
			Order:     httputil.QueryString(r, "order"),
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}

		body := httputil.NewEnvelope(respSuccess, res.Messages).
			With("message", fmt.Sprintf("Retrieved %d messages", len(res.Messages))).
			With("total", res.Total).
			With("count", res.Page.Count).
			With("source", res.Source).
			With("fields", res.Fields).
			With("search", nullable(res.Search)).
			With("filters", res.Filters).
			With("date_range", res.DateRange).
			With("pagination", res.Page).
			With("statistics", res.Statistics)
		if len(res.Skipped) > 0 {
			body = body.With("skipped_files", res.Skipped)
		}
		s.respond(w, r, http.StatusOK, body)
	}
}

func (s *Server) handleCreateMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := decodeRecords(r)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		res, err := s.messages.Create(r.Context(), records)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, r, http.StatusCreated, saveEnvelope(res, "messages"))
	}
}

func (s *Server) handleListFiles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		search := httputil.QueryString(r, "search")

		switch action := httputil.QueryString(r, "action"); action {
		case "", "list":
		case service.ActionDownload:
			s.downloadFile(w, r, search)
			return
		default:
			s.fail(w, r, apperrors.NewValidationError("action", action, "must be list or download"))
			return
		}

		res, err := s.files.List(r.Context(), service.FileQuery{
			Directory: httputil.QueryString(r, "directory"),
			Type:      httputil.QueryString(r, "type"),
			Search:    search,
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, r, http.StatusOK, httputil.NewEnvelope(respSuccess, res.Files).
			With("message", fmt.Sprintf("Found %d files", len(res.Files))).
			With("filters", map[string]any{
				"directory": res.Directory,
				"type":      nullable(res.Type),
				"search":    nullable(res.Search),
			}).
			With("statistics", res.Statistics))
	}
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request, name string) {
	if name == "" {
		s.fail(w, r, apperrors.NewInputError("Filename is required for download"))
		return
	}
	doc, meta, err := s.files.Download(r.Context(), name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, httputil.NewEnvelope(respSuccess, doc).
		With("message", "Downloaded "+meta.Name).
		With("filename", meta.Name).
		With("directory", meta.Dir).
		With("downloaded_at", time.Now().UTC().Format(time.RFC3339Nano)))
}

func (s *Server) handleSaveFile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req service.SaveFileRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}

		switch req.Action {
		case "", service.ActionCreate:
			res, err := s.files.Save(r.Context(), req)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			s.respond(w, r, http.StatusCreated, httputil.NewEnvelope(respSuccess, nil).
				With("message", fmt.Sprintf("File %s created successfully", res.Filename)).
				With("filename", res.Filename).
				With("directory", res.Directory).
				With("backup_created", res.BackupCreated))

		case service.ActionProcessChat, service.ActionProcessMessages:
			if !s.flags.IsEnabled(features.FlagImporters) {
				s.fail(w, r, apperrors.NewInputError("File importers are disabled"))
				return
			}
			var (
				res *service.ImportResult
				err error
			)
			if req.Action == service.ActionProcessChat {
				res, err = s.files.ProcessChats(r.Context(), req.InputFile, req.OutputFile)
			} else {
				res, err = s.files.ProcessMessages(r.Context(), req.InputFile, req.OutputFile, req.Fields)
			}
			if err != nil {
				s.fail(w, r, err)
				return
			}
			s.respond(w, r, http.StatusOK, httputil.NewEnvelope(respSuccess, res).
				With("message", fmt.Sprintf("Processed %d records from %s", res.Imported, res.InputFile)))

		default:
			s.fail(w, r, apperrors.NewValidationError("action", req.Action,
				"must be create, process_chat or process_messages"))
		}
	}
}

func (s *Server) handleDeleteFile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.files.Delete(r.Context(),
			httputil.QueryString(r, "filename"),
			httputil.QueryString(r, "directory"),
			httputil.QueryBool(r, "create_backup", true))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, r, http.StatusOK, httputil.NewEnvelope(respSuccess, nil).
			With("message", fmt.Sprintf("File %s deleted successfully", res.Filename)).
			With("filename", res.Filename).
			With("directory", res.Directory).
			With("deleted_at", time.Now().UTC().Format(time.RFC3339Nano)).
			With("backup_created", res.BackupPath != nil).
			With("backup_path", res.BackupPath).
			With("original_size", res.OriginalSize).
			With("original_modified", res.OriginalModified))
	}
}

func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.stats.Compute(r.Context(), service.StatsQuery{
			Type:           httputil.QueryString(r, "type"),
			File:           httputil.QueryString(r, "file"),
			ContactID:      httputil.QueryString(r, "contact_id"),
			DateRange:      httputil.QueryString(r, "date_range"),
			IncludeDetails: httputil.QueryBool(r, "include_details", false),
		})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, r, http.StatusOK, httputil.NewEnvelope(respSuccess, res.Data).
			With("message", fmt.Sprintf("Generated %s statistics", res.Type)).
			With("stats_type", res.Type).
			With("generated_at", res.GeneratedAt.UTC().Format(time.RFC3339Nano)).
			With("filters", res.Filters).
			With("cached", res.Cached))
	}
}
