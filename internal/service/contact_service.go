package service

import (
	"context"
	"fmt"
	"strings"

	"whatsdata/internal/errors"
	"whatsdata/internal/models"
	"whatsdata/internal/query"
	"whatsdata/internal/store"
	"whatsdata/internal/validation"

	"github.com/sirupsen/logrus"
)

// ContactQuery carries the raw listing parameters
type ContactQuery struct {
	File   string
	Fields string
	Search string
	Limit  string
	Offset string
	Sort   string
	Order  string
}

// ContactList is one page of contacts plus listing metadata
type ContactList struct {
	Contacts []models.Record
	Total    int
	Source   string
	Fields   []string
	Search   string
	Page     query.Meta
	Skipped  []SkippedFile
}

// SaveResult reports an append to a blob
type SaveResult struct {
	Saved    []models.Record
	Total    int
	Rejected int
	File     string
}

// ContactServiceInterface is the contact API used by the HTTP layer
type ContactServiceInterface interface {
	List(ctx context.Context, q ContactQuery) (*ContactList, error)
	Create(ctx context.Context, contacts []models.Record) (*SaveResult, error)
	Update(ctx context.Context, file, id string, patch models.Record) (models.Record, string, error)
	Delete(ctx context.Context, file, id string) (int, string, error)
}

// ContactService lists and mutates contact blobs
type ContactService struct {
	opts   Options
	loader loader
	sorter *query.Sorter
}

// NewContactService creates a contact service over opts.Store
func NewContactService(opts Options) *ContactService {
	opts = opts.withDefaults()
	return &ContactService{
		opts:   opts,
		loader: loader{store: opts.Store, logger: opts.Logger},
		sorter: query.NewSorter(opts.Query.SortLocale),
	}
}

// List merges, searches, sorts, paginates and projects contacts
func (cs *ContactService) List(ctx context.Context, q ContactQuery) (*ContactList, error) {
	col, err := cs.loader.load(ctx, store.KindContacts, q.File, models.FieldSource, false)
	if err != nil {
		return nil, err
	}

	search := strings.TrimSpace(q.Search)
	records := query.FilterContacts(col.Records, search)

	sortField := strings.TrimSpace(q.Sort)
	if sortField == "" {
		sortField = models.FieldName
	}
	cs.sorter.Sort(records, sortField, query.ParseOrder(q.Order))

	page := query.ParsePage(q.Limit, q.Offset, cs.opts.Query.DefaultLimit, cs.opts.Query.MaxLimit)
	window, meta := query.Paginate(records, page)
	fields := query.ParseFields(q.Fields, models.DefaultContactFields)

	return &ContactList{
		Contacts: query.ProjectAll(window, fields),
		Total:    meta.Total,
		Source:   col.Source,
		Fields:   fields,
		Search:   search,
		Page:     meta,
		Skipped:  col.Skipped,
	}, nil
}

// Create appends valid contacts to the default contacts blob. Entries
// without an id and name are dropped; none valid is an input error.
func (cs *ContactService) Create(ctx context.Context, contacts []models.Record) (*SaveResult, error) {
	nowMs := cs.opts.Now().UnixMilli()

	valid := make([]models.Record, 0, len(contacts))
	for _, c := range contacts {
		if c == nil || validation.ValidateNewContact(c) != nil {
			continue
		}
		saved := c.Clone()
		if !saved.Truthy(models.FieldCreatedAt) {
			saved[models.FieldCreatedAt] = nowMs
		}
		saved[models.FieldUpdatedAt] = nowMs
		valid = append(valid, saved)
	}
	if len(valid) == 0 {
		return nil, errors.NewInputError("No valid contacts provided")
	}

	file := cs.opts.Storage.ContactsFile
	total, err := cs.opts.Store.Append(ctx, store.DirOutput, file, valid)
	if err != nil {
		return nil, err
	}

	cs.opts.Logger.WithFields(LogFields(ctx, logrus.Fields{
		LogFieldOperation: "create_contacts",
		LogFieldFileName:  file,
		LogFieldCount:     len(valid),
		LogFieldTotal:     total,
	})).Info("Saved new contacts")

	return &SaveResult{Saved: valid, Total: total, Rejected: len(contacts) - len(valid), File: file}, nil
}

// Update merges patch into the first contact with id and bumps updated_at
func (cs *ContactService) Update(ctx context.Context, file, id string, patch models.Record) (models.Record, string, error) {
	if strings.TrimSpace(id) == "" || validation.ValidateContactUpdate(patch) != nil {
		return nil, "", errors.NewInputError("Contact ID and name are required")
	}
	name, err := fileOrDefault(file, cs.opts.Storage.ContactsFile)
	if err != nil {
		return nil, "", err
	}

	records, err := cs.opts.Store.Read(ctx, store.DirOutput, name)
	if err != nil {
		return nil, "", err
	}

	idx := indexOfID(records, id)
	if idx < 0 {
		return nil, "", errors.NewNotFoundError("Contact", id).
			WithUserMessage(fmt.Sprintf("Contact with ID %s not found", id))
	}

	updated := models.MergeRecord(records[idx], patch)
	updated[models.FieldUpdatedAt] = cs.opts.Now().UnixMilli()
	records[idx] = updated

	if err := cs.opts.Store.Write(ctx, store.DirOutput, name, records); err != nil {
		return nil, "", err
	}

	cs.opts.Logger.WithFields(LogFields(ctx, logrus.Fields{
		LogFieldOperation: "update_contact",
		LogFieldFileName:  name,
		LogFieldContactID: id,
	})).Info("Updated contact")
	return updated, name, nil
}

// Delete removes every contact with id and returns how many went
func (cs *ContactService) Delete(ctx context.Context, file, id string) (int, string, error) {
	if strings.TrimSpace(id) == "" {
		return 0, "", errors.NewInputError("Contact ID is required")
	}
	name, err := fileOrDefault(file, cs.opts.Storage.ContactsFile)
	if err != nil {
		return 0, "", err
	}

	records, err := cs.opts.Store.Read(ctx, store.DirOutput, name)
	if err != nil {
		return 0, "", err
	}

	kept := make([]models.Record, 0, len(records))
	for _, r := range records {
		if r.String(models.FieldID) != id {
			kept = append(kept, r)
		}
	}
	removed := len(records) - len(kept)
	if removed == 0 {
		return 0, "", errors.NewNotFoundError("Contact", id).
			WithUserMessage(fmt.Sprintf("Contact with ID %s not found", id))
	}

	if err := cs.opts.Store.Write(ctx, store.DirOutput, name, kept); err != nil {
		return 0, "", err
	}

	cs.opts.Logger.WithFields(LogFields(ctx, logrus.Fields{
		LogFieldOperation: "delete_contact",
		LogFieldFileName:  name,
		LogFieldContactID: id,
		LogFieldCount:     removed,
	})).Info("Deleted contact")
	return removed, name, nil
}

func indexOfID(records []models.Record, id string) int {
	for i, r := range records {
		if r.String(models.FieldID) == id {
			return i
		}
	}
	return -1
}
