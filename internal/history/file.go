package history

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileStore keeps one JSON file per session under Dir.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir. The directory is created on
// the first Save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) Name() string { return "local" }

// Path returns the file that holds a session's log.
func (s *FileStore) Path(sessionID string) (string, error) {
	key, err := Key(sessionID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Dir, key), nil
}

func (s *FileStore) Load(_ context.Context, sessionID string) ([]Message, error) {
	path, err := s.Path(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, storageErr(s.Name(), "load", sessionID, errors.Wrap(err, "read session file"))
	}
	msgs, err := Decode(data)
	if err != nil {
		return nil, storageErr(s.Name(), "load", sessionID, errors.Wrapf(err, "decode %s", path))
	}
	return msgs, nil
}

// Save writes the log to a temp file in Dir and renames it over the session
// file, so a crash mid-write never leaves a truncated log.
func (s *FileStore) Save(_ context.Context, sessionID string, messages []Message) error {
	path, err := s.Path(sessionID)
	if err != nil {
		return err
	}
	data, err := Encode(messages)
	if err != nil {
		return storageErr(s.Name(), "save", sessionID, errors.Wrap(err, "encode"))
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return storageErr(s.Name(), "save", sessionID, errors.Wrap(err, "create memory dir"))
	}

	tmp, err := os.CreateTemp(s.Dir, ".session-*.tmp")
	if err != nil {
		return storageErr(s.Name(), "save", sessionID, errors.Wrap(err, "create temp file"))
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return storageErr(s.Name(), "save", sessionID, errors.Wrap(err, "write temp file"))
	}
	if err := tmp.Close(); err != nil {
		return storageErr(s.Name(), "save", sessionID, errors.Wrap(err, "close temp file"))
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return storageErr(s.Name(), "save", sessionID, errors.Wrap(err, "rename temp file"))
	}
	return nil
}
