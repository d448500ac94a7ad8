package fs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/option"
	"github.com/viant/afs/url"

	"github.com/Automobile-System/taskengine/model"
	"github.com/Automobile-System/taskengine/service/dao"
)

// Service implements a filesystem-based time-log store. Each entry is
// written as a standalone JSON document so that reporting can consume
// the files directly.
type Service struct {
	basePath string
	fs       afs.Service
	mu       sync.RWMutex
}

// Ensure Service implements dao.Service
var _ dao.Service[string, model.TimeLogEntry] = (*Service)(nil)

// Save persists a time-log entry to the filesystem.
func (s *Service) Save(ctx context.Context, entry *model.TimeLogEntry) error {
	if entry == nil {
		return dao.ErrNilEntity
	}
	if entry.ID == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal time-log entry: %w", err)
	}

	filePath := s.entryPath(entry.ID)
	if err = s.fs.Upload(ctx, filePath, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to save time-log entry to file %s: %w", filePath, err)
	}
	return nil
}

// Load retrieves a time-log entry by id, returning nil when absent.
func (s *Service) Load(ctx context.Context, id string) (*model.TimeLogEntry, error) {
	if id == "" {
		return nil, dao.ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filePath := s.entryPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check if time-log entry exists: %w", err)
	}
	if !exists {
		return nil, nil
	}

	data, err := s.fs.DownloadWithURL(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read time-log entry file: %w", err)
	}

	var entry model.TimeLogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal time-log entry: %w", err)
	}
	return &entry, nil
}

// Delete removes a time-log entry from the filesystem.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return dao.ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	filePath := s.entryPath(id)
	exists, err := s.fs.Exists(ctx, filePath)
	if err != nil {
		return fmt.Errorf("failed to check if time-log entry exists: %w", err)
	}
	if !exists {
		return dao.ErrNotFound
	}
	if err := s.fs.Delete(ctx, filePath); err != nil {
		return fmt.Errorf("failed to delete time-log entry file: %w", err)
	}
	return nil
}

// List returns all stored entries. Corrupt files are skipped with a log
// message so a single bad record cannot break reporting.
func (s *Service) List(ctx context.Context, _ ...*dao.Parameter) ([]*model.TimeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, err := s.fs.List(ctx, s.basePath, option.NewRecursive(true))
	if err != nil {
		return nil, fmt.Errorf("failed to list time-log files: %w", err)
	}

	var entries []*model.TimeLogEntry
	for _, object := range objects {
		if object.IsDir() || !strings.HasSuffix(object.Name(), ".json") {
			continue
		}
		data, err := s.fs.Download(ctx, object)
		if err != nil {
			log.Printf("timelog fs: error reading %s: %v", object.URL(), err)
			continue
		}
		var entry model.TimeLogEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			log.Printf("timelog fs: error unmarshaling %s: %v", object.URL(), err)
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// entryPath returns the file path for an entry.
func (s *Service) entryPath(id string) string {
	return path.Join(s.basePath, fmt.Sprintf("%s.json", id))
}

// New creates a new filesystem time-log store rooted at basePath.
func New(basePath string) (*Service, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	fs := afs.New()

	ctx := context.Background()
	exists, _ := fs.Exists(ctx, basePath)
	if !exists {
		if err := fs.Create(ctx, basePath, file.DefaultDirOsMode, true); err != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", err)
		}
	}

	basePath = url.Normalize(basePath, file.Scheme)
	return &Service{
		basePath: basePath,
		fs:       fs,
	}, nil
}
