package retainstore

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/trustplatform/trustrun/internal/value"
)

// LevelDBStore persists retained globals one key per name in a goleveldb
// database, the same on-disk key-value engine the teacher's probedb/leveldb
// package wraps for chain state.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens (creating if absent) a goleveldb database at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{})
	if err != nil {
		return nil, value.WrapFault(value.FaultControlError, err, "opening retain store at %q", path)
	}
	return &LevelDBStore{db: db}, nil
}

// Save writes every entry in a single write batch so a crash mid-flush never
// leaves Load() observing a subset of the new generation alongside stale
// leftovers from names no longer retained.
func (s *LevelDBStore) Save(values map[string][]byte) error {
	batch := new(leveldb.Batch)

	it := s.db.NewIterator(nil, nil)
	for it.Next() {
		key := append([]byte{}, it.Key()...)
		if _, keep := values[string(key)]; !keep {
			batch.Delete(key)
		}
	}
	it.Release()
	if err := it.Error(); err != nil {
		return value.WrapFault(value.FaultControlError, err, "scanning retain store")
	}

	for name, raw := range values {
		batch.Put([]byte(name), raw)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return value.WrapFault(value.FaultControlError, err, "writing retain store batch")
	}
	return nil
}

// Load reads every retained entry currently in the database.
func (s *LevelDBStore) Load() (map[string][]byte, error) {
	out := make(map[string][]byte)
	it := s.db.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		name := string(it.Key())
		out[name] = append([]byte{}, it.Value()...)
	}
	if err := it.Error(); err != nil {
		return nil, value.WrapFault(value.FaultControlError, err, "reading retain store")
	}
	return out, nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
