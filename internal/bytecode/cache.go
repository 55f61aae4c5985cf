package bytecode

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/syndtr/goleveldb/leveldb"
)

// Cache persists raw module bytes keyed by content hash, so a warm restart
// or a reload that reuses an already-seen module does not need to re-fetch
// it from wherever the control plane sourced it from.
type Cache struct {
	db *leveldb.DB
}

// OpenCache opens (creating if absent) a goleveldb store at dir.
func OpenCache(dir string) (*Cache, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, err
	}
	return &Cache{db: db}, nil
}

func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (c *Cache) Put(data []byte) (string, error) {
	key := ContentHash(data)
	if err := c.db.Put([]byte(key), data, nil); err != nil {
		return "", err
	}
	return key, nil
}

func (c *Cache) Get(key string) ([]byte, bool, error) {
	data, err := c.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *Cache) Close() error { return c.db.Close() }
