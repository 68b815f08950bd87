package service

import (
	"bytes"
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"whatsdata/internal/errors"
	"whatsdata/internal/importer"
	"whatsdata/internal/models"
	"whatsdata/internal/store"
	"whatsdata/internal/validation"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

// DirAll lists every directory at once
const DirAll = "all"

// File actions accepted by POST /files
const (
	ActionCreate          = "create"
	ActionProcessChat     = "process_chat"
	ActionProcessMessages = "process_messages"
	ActionDownload        = "download"
)

// Default importer inputs
const (
	DefaultChatExport    = "chats.json"
	DefaultMessageExport = "example1.json"
)

var writableDirs = []string{store.DirInput, store.DirOutput, store.DirChatID, store.DirMessagesID}

// FileEntry is a listed blob with its human readable size
type FileEntry struct {
	store.BlobMeta
	SizeFormatted string `json:"size_formatted"`
}

// FileListingStats summarizes a listing
type FileListingStats struct {
	TotalFiles  int      `json:"total_files"`
	TotalSize   int64    `json:"total_size"`
	Directories []string `json:"directories"`
	Types       []string `json:"types"`
}

// FileListing is the result of a files query
type FileListing struct {
	Files      []FileEntry
	Directory  string
	Type       string
	Search     string
	Statistics FileListingStats
}

// FileQuery carries the raw listing parameters
type FileQuery struct {
	Directory string
	Type      string
	Search    string
}

// SaveFileRequest is the body of a file write
type SaveFileRequest struct {
	Action    string `json:"action"`
	Filename  string `json:"filename"`
	Data      any    `json:"data"`
	Directory string `json:"directory"`
	Backup    *bool  `json:"backup"`

	InputFile  string `json:"input_file"`
	OutputFile string `json:"output_file"`
	Fields     string `json:"fields"`
}

// FileWriteResult reports a file write
type FileWriteResult struct {
	Filename      string `json:"filename"`
	Directory     string `json:"directory"`
	BackupCreated bool   `json:"backup_created"`
}

// FileDeleteResult reports a removed file
type FileDeleteResult struct {
	Filename         string    `json:"filename"`
	Directory        string    `json:"directory"`
	BackupPath       *string   `json:"backup_path"`
	OriginalSize     int64     `json:"original_size"`
	OriginalModified time.Time `json:"original_modified"`
}

// ImportResult reports an importer run
type ImportResult struct {
	InputFile  string `json:"input_file"`
	OutputFile string `json:"output_file"`
	Imported   int    `json:"imported"`
	Skipped    int    `json:"skipped"`
	Total      int    `json:"total"`
}

// FileServiceInterface is the file API used by the HTTP layer
type FileServiceInterface interface {
	List(ctx context.Context, q FileQuery) (*FileListing, error)
	Download(ctx context.Context, name string) (any, store.BlobMeta, error)
	Save(ctx context.Context, req SaveFileRequest) (*FileWriteResult, error)
	Delete(ctx context.Context, filename, directory string, backup bool) (*FileDeleteResult, error)
	ProcessChats(ctx context.Context, inputFile, outputFile string) (*ImportResult, error)
	ProcessMessages(ctx context.Context, inputFile, outputFile, fields string) (*ImportResult, error)
}

// FileService manages raw blobs and runs the importers
type FileService struct {
	opts Options
	loc  *time.Location
}

// NewFileService creates a file service over opts.Store
func NewFileService(opts Options) *FileService {
	opts = opts.withDefaults()
	return &FileService{opts: opts, loc: opts.location()}
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders bytes in base-1024 units with up to two decimals
func FormatFileSize(size int64) string {
	if size <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(size)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := math.Round(float64(size)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

func (fs *FileService) directories(dir string) ([]string, error) {
	if dir == "" {
		dir = store.DirOutput
	}
	if dir == DirAll {
		return fs.opts.Store.Dirs(), nil
	}
	if err := validation.ValidateOneOf("directory", dir, writableDirs); err != nil {
		return nil, err
	}
	return []string{dir}, nil
}

// List returns matching blobs newest first
func (fs *FileService) List(ctx context.Context, q FileQuery) (*FileListing, error) {
	dirs, err := fs.directories(q.Directory)
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(q.Search))
	kind := strings.TrimSpace(q.Type)

	files := []FileEntry{}
	for _, dir := range dirs {
		metas, err := fs.opts.Store.List(ctx, dir)
		if err != nil {
			return nil, err
		}
		for _, m := range metas {
			if kind != "" && string(m.Kind) != kind {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(m.Name), search) &&
				!strings.Contains(strings.ToLower(m.Path), search) {
				continue
			}
			files = append(files, FileEntry{BlobMeta: m, SizeFormatted: FormatFileSize(m.Size)})
		}
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Modified.After(files[j].Modified) })

	st := FileListingStats{TotalFiles: len(files), Directories: []string{}, Types: []string{}}
	seenDir, seenType := map[string]bool{}, map[string]bool{}
	for _, f := range files {
		st.TotalSize += f.Size
		if !seenDir[f.Dir] {
			seenDir[f.Dir] = true
			st.Directories = append(st.Directories, f.Dir)
		}
		if t := string(f.Kind); !seenType[t] {
			seenType[t] = true
			st.Types = append(st.Types, t)
		}
	}
	sort.Strings(st.Directories)
	sort.Strings(st.Types)

	dir := q.Directory
	if dir == "" {
		dir = store.DirOutput
	}
	return &FileListing{Files: files, Directory: dir, Type: kind, Search: q.Search, Statistics: st}, nil
}

// Download returns the parsed content of the first directory holding name
func (fs *FileService) Download(ctx context.Context, name string) (any, store.BlobMeta, error) {
	if strings.TrimSpace(name) == "" {
		return nil, store.BlobMeta{}, errors.NewInputError("File name is required for download")
	}
	safe, err := sanitizeFile(name)
	if err != nil {
		return nil, store.BlobMeta{}, err
	}
	meta, err := fs.opts.Store.Locate(ctx, safe, writableDirs...)
	if err != nil {
		return nil, store.BlobMeta{}, err
	}
	doc, err := fs.opts.Store.ReadRaw(ctx, meta.Dir, meta.Name)
	if err != nil {
		return nil, store.BlobMeta{}, err
	}
	return doc, meta, nil
}

// decodeData accepts the payload as JSON text or as an already parsed value
func decodeData(data any) (any, error) {
	text, ok := data.(string)
	if !ok {
		return data, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.NewInputError("data is not valid JSON")
	}
	return doc, nil
}

// Save creates or overwrites a blob
func (fs *FileService) Save(ctx context.Context, req SaveFileRequest) (*FileWriteResult, error) {
	if strings.TrimSpace(req.Filename) == "" || req.Data == nil {
		return nil, errors.NewInputError("Filename and data are required")
	}
	name, err := sanitizeFile(req.Filename)
	if err != nil {
		return nil, err
	}
	dir := req.Directory
	if dir == "" {
		dir = store.DirOutput
	}
	if err := validation.ValidateOneOf("directory", dir, writableDirs); err != nil {
		return nil, err
	}
	doc, err := decodeData(req.Data)
	if err != nil {
		return nil, err
	}

	backup := req.Backup == nil || *req.Backup
	_, statErr := fs.opts.Store.Stat(ctx, dir, name)
	existed := statErr == nil

	if err := fs.opts.Store.WriteDocument(ctx, dir, name, doc, backup); err != nil {
		return nil, err
	}

	fs.opts.Logger.WithFields(LogFields(ctx, logrus.Fields{
		LogFieldOperation: "save_file",
		LogFieldFileName:  name,
		LogFieldDirectory: dir,
		LogFieldBackup:    backup && existed,
	})).Info("File saved")

	return &FileWriteResult{Filename: name, Directory: dir, BackupCreated: backup && existed}, nil
}

// Delete removes a blob, copying it aside first when backup is set
func (fs *FileService) Delete(ctx context.Context, filename, directory string, backup bool) (*FileDeleteResult, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, errors.NewInputError("Filename is required")
	}
	name, err := sanitizeFile(filename)
	if err != nil {
		return nil, err
	}
	if directory == "" {
		directory = store.DirOutput
	}
	if err := validation.ValidateOneOf("directory", directory, writableDirs); err != nil {
		return nil, err
	}

	meta, err := fs.opts.Store.Stat(ctx, directory, name)
	if err != nil {
		return nil, err
	}
	backupName, err := fs.opts.Store.Delete(ctx, directory, name, backup)
	if err != nil {
		return nil, err
	}

	res := &FileDeleteResult{
		Filename:         name,
		Directory:        directory,
		OriginalSize:     meta.Size,
		OriginalModified: meta.Modified,
	}
	if backupName != "" {
		path := directory + "/" + backupName
		res.BackupPath = &path
	}
	return res, nil
}

// ProcessChats imports a chat export from the chatId directory into an output contacts blob
func (fs *FileService) ProcessChats(ctx context.Context, inputFile, outputFile string) (*ImportResult, error) {
	in, err := fileOrDefault(inputFile, DefaultChatExport)
	if err != nil {
		return nil, err
	}
	out, err := fileOrDefault(outputFile, fs.opts.Storage.ContactsFile)
	if err != nil {
		return nil, err
	}

	chats, err := fs.opts.Store.Read(ctx, store.DirChatID, in)
	if err != nil {
		return nil, err
	}
	contacts, skipped := importer.ImportChats(chats)
	return fs.appendImport(ctx, "process_chat", in, out, contacts, skipped)
}

// ProcessMessages imports a message export from the messagesId directory,
// resolving names from the default contacts blob when it exists.
func (fs *FileService) ProcessMessages(ctx context.Context, inputFile, outputFile, fields string) (*ImportResult, error) {
	in, err := fileOrDefault(inputFile, DefaultMessageExport)
	if err != nil {
		return nil, err
	}
	out, err := fileOrDefault(outputFile, fs.opts.Storage.MessagesFile)
	if err != nil {
		return nil, err
	}

	raw, err := fs.opts.Store.Read(ctx, store.DirMessagesID, in)
	if err != nil {
		return nil, err
	}

	contacts, err := fs.opts.Store.Read(ctx, store.DirOutput, fs.opts.Storage.ContactsFile)
	if err != nil && !errors.Is(err, errors.ErrCodeNotFound) {
		return nil, err
	}
	names := importer.ContactNames(contacts)

	messages := importer.ImportMessages(raw, importer.ParseFields(fields), names, fs.loc)
	return fs.appendImport(ctx, "process_messages", in, out, messages, len(raw)-len(messages))
}

func (fs *FileService) appendImport(ctx context.Context, op, in, out string, records []models.Record, skipped int) (*ImportResult, error) {
	total := 0
	if len(records) > 0 {
		var err error
		if total, err = fs.opts.Store.Append(ctx, store.DirOutput, out, records); err != nil {
			return nil, err
		}
	}

	fs.opts.Logger.WithFields(LogFields(ctx, logrus.Fields{
		LogFieldOperation: op,
		LogFieldFileName:  out,
		LogFieldCount:     len(records),
		LogFieldSkipped:   skipped,
		LogFieldTotal:     total,
	})).Info("Import finished")

	return &ImportResult{InputFile: in, OutputFile: out, Imported: len(records), Skipped: skipped, Total: total}, nil
}
