package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"whatsdata/internal/constants"
	"whatsdata/internal/errors"
	"whatsdata/internal/metrics"
	"whatsdata/internal/models"
	"whatsdata/internal/security"
	"whatsdata/internal/tracing"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// Options configures a FileStore
type Options struct {
	BaseDir      string
	Dirs         map[string]string // logical name -> path relative to BaseDir
	MaxFileSize  int64
	BackupSuffix string
	Logger       *logrus.Logger
}

// FileStore implements BlobStore on the local filesystem
type FileStore struct {
	baseDir      string
	dirs         map[string]string
	order        []string
	maxFileSize  int64
	backupSuffix string
	logger       *logrus.Logger
	now          func() time.Time

	mu        sync.RWMutex
	observers []Observer
}

// NewFileStore validates the layout; directories are created lazily on first write
func NewFileStore(opts Options) (*FileStore, error) {
	if opts.BaseDir == "" {
		return nil, errors.NewConfigError("storage.base_dir", "base directory is required")
	}
	if len(opts.Dirs) == 0 {
		opts.Dirs = map[string]string{
			DirInput:      constants.DefaultInputDir,
			DirOutput:     constants.DefaultOutputDir,
			DirChatID:     constants.DefaultChatIDDir,
			DirMessagesID: constants.DefaultMessagesIDDir,
		}
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = constants.DefaultMaxFileSizeMB * constants.BytesPerMegabyte
	}
	if opts.BackupSuffix == "" {
		opts.BackupSuffix = constants.DefaultBackupSuffix
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	order := make([]string, 0, len(opts.Dirs))
	for _, name := range []string{DirInput, DirOutput, DirChatID, DirMessagesID} {
		if _, ok := opts.Dirs[name]; ok {
			order = append(order, name)
		}
	}
	for name, rel := range opts.Dirs {
		if err := security.ValidateFilePathWithBase(rel, opts.BaseDir); err != nil {
			return nil, errors.NewConfigError("storage."+name, err.Error())
		}
		if !contains(order, name) {
			order = append(order, name)
		}
	}

	return &FileStore{
		baseDir:      filepath.Clean(opts.BaseDir),
		dirs:         opts.Dirs,
		order:        order,
		maxFileSize:  opts.MaxFileSize,
		backupSuffix: opts.BackupSuffix,
		logger:       opts.Logger,
		now:          time.Now,
	}, nil
}

// Dirs returns the logical directory names in lookup order
func (s *FileStore) Dirs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// DirPath returns the absolute-or-relative filesystem path of a logical directory
func (s *FileStore) DirPath(dir string) (string, error) {
	rel, ok := s.dirs[dir]
	if !ok {
		return "", errors.NewInputError(fmt.Sprintf("Invalid directory: %s", dir)).WithContext("directory", dir)
	}
	return filepath.Join(s.baseDir, rel), nil
}

// EnsureDirs creates every configured directory that does not exist yet
func (s *FileStore) EnsureDirs(ctx context.Context) error {
	for _, dir := range s.order {
		if err := ctx.Err(); err != nil {
			return err
		}
		path, err := s.DirPath(dir)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return errors.NewStorageError("mkdir", dir, err)
		}
	}
	return nil
}

// Subscribe registers an observer for mutation events
func (s *FileStore) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *FileStore) emit(ev Event) {
	s.mu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, o := range observers {
		o(ev)
	}
}

func (s *FileStore) resolve(dir, name string) (string, error) {
	dirPath, err := s.DirPath(dir)
	if err != nil {
		return "", err
	}
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return "", errors.NewInputError(fmt.Sprintf("Invalid filename: %s", name)).WithContext("file", name)
	}
	return filepath.Join(dirPath, name), nil
}

func (s *FileStore) meta(dir, name string, info os.FileInfo) BlobMeta {
	return BlobMeta{
		Name:     name,
		Dir:      dir,
		Path:     filepath.ToSlash(filepath.Join(s.dirs[dir], name)),
		Size:     info.Size(),
		Modified: info.ModTime(),
		Kind:     Classify(name),
	}
}

// List returns the .json files of dir sorted by name; a missing directory lists as empty
func (s *FileStore) List(ctx context.Context, dir string) ([]BlobMeta, error) {
	_, span := tracing.StartBlobSpan(ctx, "list", dir, "")
	defer span.End()

	dirPath, err := s.DirPath(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dirPath)
	if os.IsNotExist(err) {
		return []BlobMeta{}, nil
	}
	if err != nil {
		return nil, errors.NewStorageError("list", dir, err)
	}

	out := make([]BlobMeta, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), constants.JSONExtension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		out = append(out, s.meta(dir, entry.Name(), info))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Stat returns metadata for one blob
func (s *FileStore) Stat(ctx context.Context, dir, name string) (BlobMeta, error) {
	path, err := s.resolve(dir, name)
	if err != nil {
		return BlobMeta{}, err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) || (err == nil && !info.Mode().IsRegular()) {
		return BlobMeta{}, errors.NewNotFoundError("File", name).WithContext("directory", dir)
	}
	if err != nil {
		return BlobMeta{}, errors.NewStorageError("stat", name, err)
	}
	return s.meta(dir, name, info), nil
}

// Locate finds the first directory holding name, searching dirs or every directory
func (s *FileStore) Locate(ctx context.Context, name string, dirs ...string) (BlobMeta, error) {
	if len(dirs) == 0 {
		dirs = s.order
	}
	for _, dir := range dirs {
		meta, err := s.Stat(ctx, dir, name)
		if err == nil {
			return meta, nil
		}
		if !errors.Is(err, errors.ErrCodeNotFound) {
			return BlobMeta{}, err
		}
	}
	return BlobMeta{}, errors.NewNotFoundError("File", name)
}

func (s *FileStore) readDocument(ctx context.Context, dir, name string) (any, error) {
	start := time.Now()
	path, err := s.resolve(dir, name)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("File", name).WithContext("directory", dir)
	}
	if err != nil {
		return nil, errors.NewStorageError("read", name, err)
	}
	if info.Size() > s.maxFileSize {
		return nil, errors.NewNotFoundError("File", name).
			WithContext("directory", dir).
			WithContext("reason", "file exceeds size limit")
	}

	data, err := os.ReadFile(path) // #nosec G304 - path confined by resolve
	if err != nil {
		return nil, errors.NewStorageError("read", name, err)
	}

	doc, err := decode(data)
	if err != nil {
		metrics.ObserveStore("read", string(Classify(name)), "invalid", time.Since(start))
		return nil, errors.NewFormatError(name, err)
	}
	metrics.ObserveStore("read", string(Classify(name)), "ok", time.Since(start))
	return doc, nil
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after top-level value")
	}
	return doc, nil
}

// ReadRaw returns the parsed document whatever its shape
func (s *FileStore) ReadRaw(ctx context.Context, dir, name string) (doc any, err error) {
	ctx, span := tracing.StartBlobSpan(ctx, "read_raw", dir, name)
	defer func() { tracing.EndSpan(span, err) }()

	return s.readDocument(ctx, dir, name)
}

// Read returns the records of a blob. A single JSON object is returned as a
// one-element collection; array elements that are not objects are dropped.
func (s *FileStore) Read(ctx context.Context, dir, name string) (_ []models.Record, err error) {
	ctx, span := tracing.StartBlobSpan(ctx, "read", dir, name)
	defer func() { tracing.EndSpan(span, err) }()

	doc, err := s.readDocument(ctx, dir, name)
	if err != nil {
		return nil, err
	}

	records, dropped, err := toRecords(doc)
	if err != nil {
		return nil, errors.NewFormatError(name, err)
	}
	if dropped > 0 {
		s.logger.WithFields(logrus.Fields{
			"file_name": name,
			"directory": dir,
			"dropped":   dropped,
		}).Warn("Skipped non-object array elements")
	}
	span.SetAttributes(tracing.AttrBlobRecords.Int(len(records)))
	return records, nil
}

func toRecords(doc any) ([]models.Record, int, error) {
	switch v := doc.(type) {
	case []any:
		out := make([]models.Record, 0, len(v))
		dropped := 0
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				out = append(out, models.Record(obj))
			} else {
				dropped++
			}
		}
		return out, dropped, nil
	case map[string]any:
		return []models.Record{models.Record(v)}, 0, nil
	default:
		return nil, 0, fmt.Errorf("expected a JSON array or object, got %T", doc)
	}
}

// Write replaces the blob with records, backing up the previous content
func (s *FileStore) Write(ctx context.Context, dir, name string, records []models.Record) error {
	if records == nil {
		records = []models.Record{}
	}
	return s.write(ctx, OpWrite, dir, name, records, len(records), true)
}

// WriteDocument stores any JSON value, optionally backing up the previous content
func (s *FileStore) WriteDocument(ctx context.Context, dir, name string, doc any, backup bool) error {
	count := 1
	if arr, ok := doc.([]any); ok {
		count = len(arr)
	}
	return s.write(ctx, OpWrite, dir, name, doc, count, backup)
}

// Append concatenates records onto the blob, creating it when missing.
// The read and the write are separate steps; see the package documentation.
func (s *FileStore) Append(ctx context.Context, dir, name string, records []models.Record) (total int, err error) {
	ctx, span := tracing.StartBlobSpan(ctx, "append", dir, name)
	defer func() { tracing.EndSpan(span, err) }()

	existing, err := s.Read(ctx, dir, name)
	if err != nil {
		if !errors.Is(err, errors.ErrCodeNotFound) {
			return 0, err
		}
		existing = []models.Record{}
	}

	combined := make([]models.Record, 0, len(existing)+len(records))
	combined = append(combined, existing...)
	combined = append(combined, records...)

	if err := s.write(ctx, OpAppend, dir, name, combined, len(records), true); err != nil {
		return 0, err
	}
	return len(combined), nil
}

func (s *FileStore) write(ctx context.Context, op Op, dir, name string, doc any, count int, backup bool) (err error) {
	_, span := tracing.StartBlobSpan(ctx, "write", dir, name)
	span.SetAttributes(tracing.AttrBlobRecords.Int(count))
	defer func() { tracing.EndSpan(span, err) }()
	start := time.Now()

	path, err := s.resolve(dir, name)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndentWithOption(doc, "", "  ", json.DisableHTMLEscape())
	if err != nil {
		return errors.NewStorageError("encode", name, err)
	}
	if int64(len(data)) > s.maxFileSize {
		return errors.NewTooLargeError(name, int64(len(data)), s.maxFileSize)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewStorageError("mkdir", name, err)
	}

	if backup {
		s.backup(path, path+s.backupSuffix)
	}

	if err := writeAtomic(path, data); err != nil {
		metrics.ObserveStore(string(op), string(Classify(name)), "error", time.Since(start))
		return errors.NewStorageError("write", name, err)
	}
	metrics.ObserveStore(string(op), string(Classify(name)), "ok", time.Since(start))

	s.logger.WithFields(logrus.Fields{
		"operation": op,
		"directory": dir,
		"file_name": name,
		"count":     count,
	}).Debug("Blob written")

	s.emit(Event{Op: op, Dir: dir, Name: name, Kind: Classify(name), Records: count, At: s.now()})
	return nil
}

// backup copies src to dst when src exists. Failures are logged and ignored.
func (s *FileStore) backup(src, dst string) bool {
	in, err := os.Open(src) // #nosec G304 - path confined by resolve
	if os.IsNotExist(err) {
		return false
	}
	if err == nil {
		defer in.Close()
		var out *os.File
		out, err = os.Create(dst) // #nosec G304 - derived from a confined path
		if err == nil {
			_, err = io.Copy(out, in)
			if cerr := out.Close(); err == nil {
				err = cerr
			}
		}
	}
	if err != nil {
		s.logger.WithError(err).WithField("file_name", filepath.Base(src)).Warn("Backup failed, continuing without it")
		return false
	}
	return true
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Delete removes the blob. With backup set, the content is first copied to
// "<name>.backup.<timestamp>" and that name is returned.
func (s *FileStore) Delete(ctx context.Context, dir, name string, backup bool) (_ string, err error) {
	ctx, span := tracing.StartBlobSpan(ctx, "delete", dir, name)
	defer func() { tracing.EndSpan(span, err) }()

	if _, err := s.Stat(ctx, dir, name); err != nil {
		return "", err
	}
	path, _ := s.resolve(dir, name)

	backupName := ""
	if backup {
		candidate := BackupName(name, s.now())
		if s.backup(path, filepath.Join(filepath.Dir(path), candidate)) {
			backupName = candidate
		}
	}

	if err := os.Remove(path); err != nil {
		return "", errors.NewStorageError("delete", name, err)
	}
	metrics.ObserveStore(string(OpDelete), string(Classify(name)), "ok", 0)

	s.logger.WithFields(logrus.Fields{
		"directory": dir,
		"file_name": name,
		"backup":    backupName,
	}).Info("Blob deleted")

	s.emit(Event{Op: OpDelete, Dir: dir, Name: name, Kind: Classify(name), At: s.now()})
	return backupName, nil
}

// BackupName builds the timestamped backup name used before deletes
func BackupName(name string, at time.Time) string {
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(models.FormatISOMillis(at.UnixMilli()))
	return name + ".backup." + ts
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var _ BlobStore = (*FileStore)(nil)
