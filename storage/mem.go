package storage

import (
	"sync"

	"github.com/juju/errors"
)

// Mem is in-memory KV with failure injection for tests.
type Mem struct {
	mu   sync.Mutex
	m    map[string][]byte
	fail error
}

var _ KV = &Mem{}

func NewMem() *Mem { return &Mem{m: make(map[string][]byte)} }

// SetFail makes every following operation fail with err, nil restores.
func (self *Mem) SetFail(err error) {
	self.mu.Lock()
	self.fail = err
	self.mu.Unlock()
}

func (self *Mem) Get(key string) ([]byte, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.fail != nil {
		return nil, unavailable(self.fail, "get", key)
	}
	b, ok := self.m[key]
	if !ok {
		return nil, errors.NotFoundf("key=%s", key)
	}
	return append([]byte(nil), b...), nil
}

func (self *Mem) Put(key string, value []byte) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.fail != nil {
		return unavailable(self.fail, "put", key)
	}
	self.m[key] = append([]byte(nil), value...)
	return nil
}

func (self *Mem) Delete(key string) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.fail != nil {
		return unavailable(self.fail, "delete", key)
	}
	delete(self.m, key)
	return nil
}

func (self *Mem) Len() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return len(self.m)
}

func (self *Mem) Close() error { return nil }
