package state

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"arcsync/internal/errdefs"
)

// FileStore keeps state in a tab-separated file, one `identifier<TAB>marker`
// line per item. Every mutation rewrites the whole file through a temp file
// in the same directory and renames it into place, so readers never observe
// a truncated line.
type FileStore struct {
	path    string
	bakPath string
	items   map[string]string
	loaded  bool
}

// NewFileStore creates a file-backed store rooted in the collection's
// working directory. The state file is read lazily on first use.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		path:    filepath.Join(dir, FileName),
		bakPath: filepath.Join(dir, BackupFileName),
	}
}

func (s *FileStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}
	items, err := readStateFile(s.path)
	if err != nil {
		return errdefs.New(errdefs.KindState, "state.load", err)
	}
	s.items = items
	s.loaded = true
	return nil
}

// readStateFile parses a state file tolerantly: a missing file is an empty
// mapping, and lines without a separator or identifier are skipped so one
// corrupt record cannot poison the rest.
func readStateFile(path string) (map[string]string, error) {
	items := make(map[string]string)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return items, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		identifier, marker, ok := strings.Cut(line, "\t")
		if !ok || identifier == "" {
			continue
		}
		items[identifier] = marker
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// Rotate moves the state file to the backup slot, then rewrites the working
// copy from the cached mapping so the run keeps seeing prior history.
func (s *FileStore) Rotate() error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Nothing to snapshot; a backup left by an older run would
			// misrepresent this run's starting point.
			if err := os.Remove(s.bakPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return errdefs.New(errdefs.KindState, "state.rotate", err)
			}
			return nil
		}
		return errdefs.New(errdefs.KindState, "state.rotate", err)
	}

	if err := os.Rename(s.path, s.bakPath); err != nil {
		return errdefs.New(errdefs.KindState, "state.rotate", err)
	}
	if err := s.writeAll(); err != nil {
		return errdefs.New(errdefs.KindState, "state.rotate", err)
	}
	return nil
}

// Load returns a copy of the mapping.
func (s *FileStore) Load() (map[string]string, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(s.items))
	for identifier, marker := range s.items {
		out[identifier] = marker
	}
	return out, nil
}

// Lookup consults the cached mapping.
func (s *FileStore) Lookup(identifier string) (string, bool) {
	marker, ok := s.items[identifier]
	return marker, ok
}

// Record replaces the entry for identifier and persists the full mapping.
func (s *FileStore) Record(identifier, marker string) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	s.items[identifier] = marker
	if err := s.writeAll(); err != nil {
		return errdefs.New(errdefs.KindState, "state.record", err).WithItem(identifier)
	}
	return nil
}

// Close is a no-op; every mutation is already flushed.
func (s *FileStore) Close() error {
	return nil
}

// writeAll rewrites the state file from the cached mapping, sorted by
// identifier for stable diffs between runs.
func (s *FileStore) writeAll() error {
	identifiers := make([]string, 0, len(s.items))
	for identifier := range s.items {
		identifiers = append(identifiers, identifier)
	}
	sort.Strings(identifiers)

	var buf bytes.Buffer
	for _, identifier := range identifiers {
		buf.WriteString(identifier)
		buf.WriteByte('\t')
		buf.WriteString(s.items[identifier])
		buf.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), FileName+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), s.path)
}
