package service

import (
	"context"
	"time"

	"whatsdata/internal/constants"
	"whatsdata/internal/errors"
	"whatsdata/internal/models"
	"whatsdata/internal/query"
	"whatsdata/internal/security"
	"whatsdata/internal/store"

	"github.com/sirupsen/logrus"
)

// SourceMultiple is the listing source when blobs were merged
const SourceMultiple = "multiple"

// Options wires the services to storage and configuration
type Options struct {
	Store   store.BlobStore
	Storage models.StorageConfig
	Query   models.QueryConfig
	Stats   models.StatsConfig
	Logger  *logrus.Logger
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Storage.ContactsFile == "" {
		o.Storage.ContactsFile = constants.DefaultContactsFile
	}
	if o.Storage.MessagesFile == "" {
		o.Storage.MessagesFile = constants.DefaultMessagesFile
	}
	if o.Query.DefaultLimit <= 0 {
		o.Query.DefaultLimit = constants.DefaultPageLimit
	}
	if o.Query.MaxLimit <= 0 {
		o.Query.MaxLimit = constants.MaxPageLimit
	}
	if o.Query.SortLocale == "" {
		o.Query.SortLocale = constants.DefaultSortLocale
	}
	return o
}

// location resolves the statistics time zone, falling back to UTC
func (o Options) location() *time.Location {
	if o.Stats.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.Stats.TimeZone)
	if err != nil {
		o.Logger.WithError(err).WithField("time_zone", o.Stats.TimeZone).Warn("Unknown time zone, using UTC")
		return time.UTC
	}
	return loc
}

// SkippedFile names a blob left out of a merge and why
type SkippedFile struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// collection is a loaded logical collection
type collection struct {
	Records []models.Record
	Source  string
	Files   []string
	Skipped []SkippedFile
}

// loader reads collections of one kind out of the output directory
type loader struct {
	store  store.BlobStore
	logger *logrus.Logger
}

// sanitizeFile returns the safe blob name or an input error
func sanitizeFile(raw string) (string, error) {
	name := security.SanitizeFilename(raw)
	if name == "" {
		return "", errors.NewInputError("Invalid file parameter").WithContext("file", raw)
	}
	return name, nil
}

// fileOrDefault sanitizes raw, falling back to def when raw is empty
func fileOrDefault(raw, def string) (string, error) {
	if raw == "" {
		return def, nil
	}
	return sanitizeFile(raw)
}

// load returns either one named blob or every output blob of kind merged.
// Merged records carry their blob name under tag; a named blob is tagged
// only when tagSingle is set. Unreadable blobs are skipped during a merge.
func (l loader) load(ctx context.Context, kind store.Kind, file, tag string, tagSingle bool) (*collection, error) {
	if file != "" {
		name, err := sanitizeFile(file)
		if err != nil {
			return nil, err
		}
		records, err := l.store.Read(ctx, store.DirOutput, name)
		if err != nil {
			return nil, err
		}
		if tagSingle {
			records = query.MergeAs([]query.Blob{{Name: name, Records: records}}, tag)
		}
		return &collection{Records: records, Source: name, Files: []string{name}}, nil
	}

	metas, err := l.store.List(ctx, store.DirOutput)
	if err != nil {
		return nil, err
	}

	c := &collection{Source: SourceMultiple, Files: []string{}, Skipped: []SkippedFile{}}
	var blobs []query.Blob
	for _, meta := range metas {
		if meta.Kind != kind {
			continue
		}
		records, err := l.store.Read(ctx, store.DirOutput, meta.Name)
		if err != nil {
			c.Skipped = append(c.Skipped, SkippedFile{File: meta.Name, Reason: errors.GetUserMessage(err)})
			l.logger.WithFields(LogFields(ctx, logrus.Fields{
				LogFieldFileName:  meta.Name,
				LogFieldKind:      kind,
				LogFieldErrorCode: errors.GetCode(err),
			})).WithError(err).Warn("Skipping unreadable file while merging")
			continue
		}
		blobs = append(blobs, query.Blob{Name: meta.Name, Records: records})
		c.Files = append(c.Files, meta.Name)
	}
	c.Records = query.MergeAs(blobs, tag)
	return c, nil
}
