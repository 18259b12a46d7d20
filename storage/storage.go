// Package storage is small key-value persistence used by durable queue.
package storage

import (
	"github.com/juju/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	lstorage "github.com/syndtr/goleveldb/leveldb/storage"
)

// OnlyForTesting as path opens leveldb on memory storage.
const OnlyForTesting = "\x00"

// ErrUnavailable is cause of every backing store failure.
var ErrUnavailable = errors.New("storage unavailable")

func IsUnavailable(err error) bool { return errors.Cause(err) == ErrUnavailable }

func unavailable(err error, op, key string) error {
	return errors.Annotatef(errors.Wrap(err, ErrUnavailable), "%s key=%s (%v)", op, key, err)
}

// KV get/put/delete by key. Get of missing key returns NotFound.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

type LevelDB struct {
	db   *leveldb.DB
	wopt opt.WriteOptions
}

var _ KV = &LevelDB{}

// OpenLevelDB recovers database at path, see OnlyForTesting.
func OpenLevelDB(path string) (*LevelDB, error) {
	o := &opt.Options{
		BlockCacheCapacity: -1,
		DisableBlockCache:  true,
		NoWriteMerge:       true,
		Strict:             opt.StrictJournalChecksum | opt.StrictBlockChecksum,
		WriteBuffer:        4 << 10,
	}
	var db *leveldb.DB
	var err error
	if path == OnlyForTesting {
		db, err = leveldb.Open(lstorage.NewMemStorage(), o)
	} else {
		db, err = leveldb.RecoverFile(path, o)
	}
	if err != nil {
		return nil, unavailable(err, "open", path)
	}
	return &LevelDB{db: db, wopt: opt.WriteOptions{NoWriteMerge: true, Sync: true}}, nil
}

func (self *LevelDB) Get(key string) ([]byte, error) {
	b, err := self.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, errors.NotFoundf("key=%s", key)
	}
	if err != nil {
		return nil, unavailable(err, "get", key)
	}
	return b, nil
}

func (self *LevelDB) Put(key string, value []byte) error {
	if err := self.db.Put([]byte(key), value, &self.wopt); err != nil {
		return unavailable(err, "put", key)
	}
	return nil
}

// Delete of missing key is not an error.
func (self *LevelDB) Delete(key string) error {
	if err := self.db.Delete([]byte(key), &self.wopt); err != nil {
		return unavailable(err, "delete", key)
	}
	return nil
}

func (self *LevelDB) Close() error { return errors.Trace(self.db.Close()) }

type prefixed struct {
	KV
	prefix string
}

// Prefixed scopes keys to namespace, Close closes underlying store.
func Prefixed(kv KV, prefix string) KV { return prefixed{KV: kv, prefix: prefix} }

func (self prefixed) Get(key string) ([]byte, error) { return self.KV.Get(self.prefix + key) }
func (self prefixed) Put(key string, value []byte) error {
	return self.KV.Put(self.prefix+key, value)
}
func (self prefixed) Delete(key string) error { return self.KV.Delete(self.prefix + key) }
