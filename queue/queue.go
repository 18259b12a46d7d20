// Package queue is fixed capacity FIFO of fixes waiting for upload.
// Ring buffer is mirrored to key-value store, one key per slot,
// so pending fixes survive power loss.
package queue

import (
	"encoding/binary"
	"strconv"
	"sync"

	"github.com/gogotrans/geotrack/gps"
	"github.com/gogotrans/geotrack/log2"
	"github.com/gogotrans/geotrack/storage"
	"github.com/juju/errors"
)

const DefaultCapacity = 512

const (
	keyStart   = "start"
	keyCount   = "count"
	slotPrefix = "fix"
)

// DeadLetter receives records evicted from full queue. spq.Queue fits.
type DeadLetter interface {
	Push(value []byte) error
}

type Queue struct {
	Log *log2.Log

	mu       sync.Mutex
	kv       storage.KV
	dead     DeadLetter
	slots    []gps.Fix
	start    int
	count    int
	volatile bool
	evicted  uint64
}

// New with nil kv keeps everything in memory.
func New(kv storage.KV, capacity int, log *log2.Log) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		Log:      log,
		kv:       kv,
		slots:    make([]gps.Fix, capacity),
		volatile: kv == nil,
	}
}

func (self *Queue) SetDeadLetter(d DeadLetter) {
	self.mu.Lock()
	self.dead = d
	self.mu.Unlock()
}

func SlotKey(index int) string { return slotPrefix + strconv.Itoa(index) }

// Restore loads persisted ring. Replay stops at first missing or malformed
// slot, it and following stored slots are erased.
func (self *Queue) Restore() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.start, self.count = 0, 0
	if self.volatile {
		return 0
	}
	storedStart, err := self.getMeta(keyStart)
	if err != nil {
		self.degrade(err)
		return 0
	}
	storedCount, err := self.getMeta(keyCount)
	if err != nil {
		self.degrade(err)
		return 0
	}
	capacity := len(self.slots)
	if storedStart >= capacity {
		storedStart = 0
	}
	if storedCount > capacity {
		self.Log.Errorf("queue meta count=%d > capacity=%d, discarding stored slots", storedCount, capacity)
		for index := 0; index < capacity; index++ {
			self.clearSlot(index)
		}
		storedCount = 0
	}
	self.start = storedStart

	truncated := false
	for offset := 0; offset < storedCount; offset++ {
		index := self.index(offset)
		b, err := self.kv.Get(SlotKey(index))
		if err != nil {
			if storage.IsUnavailable(err) {
				self.degrade(err)
				return self.count
			}
			self.Log.Errorf("queue slot=%d err=%v", index, err)
			truncated = true
			break
		}
		var f gps.Fix
		if err := f.UnmarshalText(b); err != nil {
			self.Log.Errorf("queue slot=%d record=%q err=%v", index, b, err)
			truncated = true
			break
		}
		self.slots[index] = f
		self.count++
	}
	if truncated {
		self.Log.Errorf("queue corrupted entries, truncating stored=%d recovered=%d", storedCount, self.count)
		for offset := self.count; offset < storedCount; offset++ {
			self.clearSlot(self.index(offset))
		}
	}
	self.persistMeta()
	self.Log.Infof("queue restored %d fixes", self.count)
	return self.count
}

// Enqueue appends fix, evicting oldest when full. Returns true on eviction.
func (self *Queue) Enqueue(f gps.Fix) bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	evicted := false
	if self.count == len(self.slots) {
		old := self.slots[self.start]
		self.dropOldest()
		self.evicted++
		evicted = true
		self.Log.Errorf("queue full capacity=%d evicted %s", len(self.slots), old.String())
		self.deadLetter(old)
	}
	index := self.index(self.count)
	self.slots[index] = f
	self.count++
	self.persistSlot(index)
	self.persistMeta()
	self.Log.Debugf("queue buffered fix count=%d", self.count)
	return evicted
}

// Peek returns oldest fix without removing it.
func (self *Queue) Peek() (gps.Fix, bool) {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.count == 0 {
		return gps.Fix{}, false
	}
	return self.slots[self.start], true
}

func (self *Queue) DropOldest() {
	self.mu.Lock()
	self.dropOldest()
	self.mu.Unlock()
}

func (self *Queue) Len() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.count
}

func (self *Queue) Cap() int    { return len(self.slots) }
func (self *Queue) Empty() bool { return self.Len() == 0 }

// Volatile reports queue is not persisted.
func (self *Queue) Volatile() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.volatile
}

func (self *Queue) Evicted() uint64 {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.evicted
}

// Snapshot copies queued fixes, oldest first.
func (self *Queue) Snapshot() []gps.Fix {
	self.mu.Lock()
	defer self.mu.Unlock()
	result := make([]gps.Fix, self.count)
	for i := range result {
		result[i] = self.slots[self.index(i)]
	}
	return result
}

func (self *Queue) index(offset int) int { return (self.start + offset) % len(self.slots) }

func (self *Queue) dropOldest() {
	if self.count == 0 {
		return
	}
	old := self.start
	self.slots[old] = gps.Fix{}
	self.start = self.index(1)
	self.count--
	// metadata first, power loss before erase never loses a pending fix
	self.persistMeta()
	self.clearSlot(old)
}

func (self *Queue) deadLetter(f gps.Fix) {
	if self.dead == nil {
		return
	}
	b, err := f.MarshalText()
	if err == nil {
		err = self.dead.Push(b)
	}
	if err != nil {
		self.Log.Errorf("queue dead letter err=%v", err)
	}
}

func (self *Queue) getMeta(key string) (int, error) {
	b, err := self.kv.Get(key)
	if errors.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(b) != 2 {
		self.Log.Errorf("queue meta %s=%x invalid", key, b)
		return 0, nil
	}
	return int(binary.BigEndian.Uint16(b)), nil
}

func (self *Queue) persistMeta() {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(self.start))
	self.put(keyStart, b[:])
	binary.BigEndian.PutUint16(b[:], uint16(self.count))
	self.put(keyCount, b[:])
}

func (self *Queue) persistSlot(index int) {
	if self.volatile {
		return
	}
	b, err := self.slots[index].MarshalText()
	if err != nil {
		self.Log.Errorf("queue slot=%d err=%v", index, err)
		return
	}
	self.put(SlotKey(index), b)
}

func (self *Queue) clearSlot(index int) {
	if self.volatile {
		return
	}
	if err := self.kv.Delete(SlotKey(index)); err != nil {
		self.degrade(err)
	}
}

func (self *Queue) put(key string, b []byte) {
	if self.volatile {
		return
	}
	if err := self.kv.Put(key, b); err != nil {
		self.degrade(err)
	}
}

// degrade switches to RAM-only, logged once.
func (self *Queue) degrade(err error) {
	if self.volatile {
		return
	}
	self.volatile = true
	self.Log.Errorf("queue persistence failed, continuing RAM-only err=%v", errors.ErrorStack(err))
}
