package retainstore

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"

	"github.com/trustplatform/trustrun/internal/value"
)

// FileStore is the no-DB-available fallback: the whole retained-global set
// is gob-encoded to one file via a tempfile-then-rename, so a crash mid-write
// never corrupts the previous generation (the rename is the only durability
// boundary Load() can observe).
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Save(values map[string][]byte) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".retain-*.tmp")
	if err != nil {
		return value.WrapFault(value.FaultControlError, err, "creating retain store tempfile")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := gob.NewEncoder(tmp).Encode(values); err != nil {
		tmp.Close()
		return value.WrapFault(value.FaultControlError, err, "encoding retain store")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return value.WrapFault(value.FaultControlError, err, "syncing retain store tempfile")
	}
	if err := tmp.Close(); err != nil {
		return value.WrapFault(value.FaultControlError, err, "closing retain store tempfile")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return value.WrapFault(value.FaultControlError, err, "renaming retain store into place")
	}
	return nil
}

func (s *FileStore) Load() (map[string][]byte, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return map[string][]byte{}, nil
	}
	if err != nil {
		return nil, value.WrapFault(value.FaultControlError, err, "opening retain store file")
	}
	defer f.Close()

	values := make(map[string][]byte)
	if err := gob.NewDecoder(f).Decode(&values); err != nil && err != io.EOF {
		return nil, value.WrapFault(value.FaultControlError, err, "decoding retain store file")
	}
	return values, nil
}

func (s *FileStore) Close() error { return nil }
