// Package storage reads and writes the backlog, archive and backup files.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/nishio/ai-project-manager/pkg/models"
)

var (
	// ErrNotFound is returned when an explicitly named input file is missing.
	ErrNotFound = errors.New("not found")
	// ErrMalformedInput is returned for files that do not decode.
	ErrMalformedInput = errors.New("malformed input")
)

const (
	backupTimeLayout    = "20060102_150405"
	maxBackupsPerSecond = 1000
)

// BacklogStore defines file access for the live backlog and its archives.
type BacklogStore interface {
	Load() ([]models.Task, error)
	LoadRaw() (any, error)
	LoadFile(path string) ([]models.Task, error)
	LoadRawFile(path string) (any, error)
	Save(tasks []models.Task) error
	LoadArchives() ([]models.Task, error)
	ArchivePath(date time.Time) string
	AppendArchive(date time.Time, tasks []models.Task) error
	UndoAppendArchive(date time.Time, n int) error
	Backup() (string, error)
	LoadLegacyYAML(path string) ([]models.Task, error)
	Paths() models.StorePaths
}

type fileBacklogStore struct {
	paths  models.StorePaths
	logger *log.Logger
	now    func() time.Time
}

// NewBacklogStore creates a BacklogStore over the given paths. A nil
// logger discards diagnostics.
func NewBacklogStore(paths models.StorePaths, logger *log.Logger) BacklogStore {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &fileBacklogStore{paths: paths, logger: logger, now: time.Now}
}

func (s *fileBacklogStore) Paths() models.StorePaths { return s.paths }

// Load reads the live backlog. A missing file is an empty backlog.
func (s *fileBacklogStore) Load() ([]models.Task, error) {
	tasks, err := s.LoadFile(s.paths.BacklogPath)
	if errors.Is(err, ErrNotFound) {
		return []models.Task{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading backlog: %w", err)
	}
	return tasks, nil
}

// LoadRaw decodes the live backlog generically for validation.
func (s *fileBacklogStore) LoadRaw() (any, error) {
	doc, err := s.LoadRawFile(s.paths.BacklogPath)
	if err != nil {
		return nil, fmt.Errorf("loading backlog: %w", err)
	}
	return doc, nil
}

func (s *fileBacklogStore) LoadFile(path string) ([]models.Task, error) {
	data, err := readNamed(path)
	if err != nil {
		return nil, err
	}
	var bf models.BacklogFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parsing %s: %v: %w", path, err, ErrMalformedInput)
	}
	if bf.Tasks == nil {
		bf.Tasks = []models.Task{}
	}
	return bf.Tasks, nil
}

func (s *fileBacklogStore) LoadRawFile(path string) (any, error) {
	data, err := readNamed(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %v: %w", path, err, ErrMalformedInput)
	}
	return normalizeNumbers(doc), nil
}

// normalizeNumbers turns json.Number leaves into float64 so validators can
// rely on the usual decoded types.
func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return x.String()
		}
		return f
	case map[string]any:
		for k, val := range x {
			x[k] = normalizeNumbers(val)
		}
		return x
	case []any:
		for i, val := range x {
			x[i] = normalizeNumbers(val)
		}
		return x
	}
	return v
}

func readNamed(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

// Save writes the backlog as {"tasks": [...]} with two-space indentation
// and literal non-ASCII text.
func (s *fileBacklogStore) Save(tasks []models.Task) error {
	unlock, err := lockFile(s.paths.BacklogPath)
	if err != nil {
		return fmt.Errorf("saving backlog: %w", err)
	}
	defer unlock()

	if err := writeTasksFile(s.paths.BacklogPath, tasks); err != nil {
		return fmt.Errorf("saving backlog: %w", err)
	}
	s.logger.Debug("backlog saved", "path", s.paths.BacklogPath, "tasks", len(tasks))
	return nil
}

// EncodeTasks renders tasks in the on-disk backlog format.
func EncodeTasks(tasks []models.Task) ([]byte, error) {
	if tasks == nil {
		tasks = []models.Task{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(models.BacklogFile{Tasks: tasks}); err != nil {
		return nil, fmt.Errorf("encoding tasks: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTasksFile(path string, tasks []models.Task) error {
	data, err := EncodeTasks(tasks)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// writeFileAtomic replaces path in one rename so readers never see a
// partial file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// LoadArchives reads every *.json file in the archive directory, in name
// order. Unreadable files are skipped with a warning.
func (s *fileBacklogStore) LoadArchives() ([]models.Task, error) {
	matches, err := filepath.Glob(filepath.Join(s.paths.ArchiveDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing archives: %w", err)
	}
	sort.Strings(matches)

	all := []models.Task{}
	for _, path := range matches {
		tasks, err := s.LoadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable archive", "path", path, "err", err)
			continue
		}
		all = append(all, tasks...)
	}
	return all, nil
}

// ArchivePath returns the archive file for a calendar date.
func (s *fileBacklogStore) ArchivePath(date time.Time) string {
	return filepath.Join(s.paths.ArchiveDir, date.Format(time.DateOnly)+".json")
}

// AppendArchive adds tasks to the archive file for date, keeping whatever
// was archived there before.
func (s *fileBacklogStore) AppendArchive(date time.Time, tasks []models.Task) error {
	path := s.ArchivePath(date)
	unlock, err := lockFile(path)
	if err != nil {
		return fmt.Errorf("appending archive: %w", err)
	}
	defer unlock()

	existing, err := s.LoadFile(path)
	switch {
	case errors.Is(err, ErrNotFound):
		existing = []models.Task{}
	case err != nil:
		return fmt.Errorf("appending archive: %w", err)
	}
	if err := writeTasksFile(path, append(existing, tasks...)); err != nil {
		return fmt.Errorf("appending archive: %w", err)
	}
	s.logger.Debug("archive updated", "path", path, "added", len(tasks), "total", len(existing)+len(tasks))
	return nil
}

// UndoAppendArchive drops the last n tasks appended to the archive file for
// date and removes the file once it is empty.
func (s *fileBacklogStore) UndoAppendArchive(date time.Time, n int) error {
	path := s.ArchivePath(date)
	unlock, err := lockFile(path)
	if err != nil {
		return fmt.Errorf("restoring archive: %w", err)
	}
	defer unlock()

	existing, err := s.LoadFile(path)
	if err != nil {
		return fmt.Errorf("restoring archive: %w", err)
	}
	if n > len(existing) {
		return fmt.Errorf("restoring archive: %s holds %d task(s), cannot drop %d", path, len(existing), n)
	}
	kept := existing[:len(existing)-n]
	if len(kept) == 0 {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("restoring archive: %w", err)
		}
		return nil
	}
	if err := writeTasksFile(path, kept); err != nil {
		return fmt.Errorf("restoring archive: %w", err)
	}
	return nil
}

// Backup copies the backlog to <backup_dir>/<name>.<YYYYMMDD_HHMMSS>.bak.
// A backup never replaces an earlier one: a second backup within the same
// second gets a _1, _2, ... suffix. It returns "" when there is no backlog
// to copy.
func (s *fileBacklogStore) Backup() (string, error) {
	src, err := os.Open(s.paths.BacklogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("backing up backlog: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.paths.BackupDir, 0o750); err != nil {
		return "", fmt.Errorf("backing up backlog: creating directory: %w", err)
	}
	out, dst, err := s.createBackupFile()
	if err != nil {
		return "", fmt.Errorf("backing up backlog: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("backing up backlog: copying: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("backing up backlog: %w", err)
	}
	s.logger.Info("backup created", "path", dst)
	return dst, nil
}

func (s *fileBacklogStore) createBackupFile() (*os.File, string, error) {
	stem := fmt.Sprintf("%s.%s", filepath.Base(s.paths.BacklogPath), s.now().Format(backupTimeLayout))
	for n := 0; n < maxBackupsPerSecond; n++ {
		name := stem + ".bak"
		if n > 0 {
			name = fmt.Sprintf("%s_%d.bak", stem, n)
		}
		dst := filepath.Join(s.paths.BackupDir, name)
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err == nil {
			return f, dst, nil
		}
		if !os.IsExist(err) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("more than %d backups named %s.*", maxBackupsPerSecond, stem)
}

// LoadLegacyYAML decodes the historical YAML backlog. Status values are
// returned as written; callers normalize them.
func (s *fileBacklogStore) LoadLegacyYAML(path string) ([]models.Task, error) {
	data, err := readNamed(path)
	if err != nil {
		return nil, err
	}
	var bf models.BacklogFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parsing %s: %v: %w", path, err, ErrMalformedInput)
	}
	if bf.Tasks == nil {
		bf.Tasks = []models.Task{}
	}
	return bf.Tasks, nil
}
