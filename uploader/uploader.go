// Package uploader delivers fixes upstream. It owns retry backoff and
// drains durable queue in strict FIFO order.
package uploader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gogotrans/geotrack/gps"
	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/helpers/atomic_clock"
	"github.com/gogotrans/geotrack/internal/state/persist"
	"github.com/gogotrans/geotrack/log2"
	"github.com/gogotrans/geotrack/queue"
	uploader_config "github.com/gogotrans/geotrack/uploader/config"
	"github.com/juju/errors"
)

const (
	DefaultBaseURL      = "https://manage.gogotrans.com/api"
	DefaultResourceType = "geoSensor"
	DefaultInterval     = 300 * time.Second
	DefaultMaxIdle      = 30 * time.Minute
)

// Status is read-only snapshot for reporting.
type Status struct {
	Queued        int       `json:"queued"`
	Capacity      int       `json:"capacity"`
	Evicted       uint64    `json:"evicted"`
	VolatileQueue bool      `json:"volatileQueue"`
	BackoffStage  int       `json:"backoffStage"`
	NextRetryAt   time.Time `json:"nextRetryAt"`
	LastFixAt     time.Time `json:"lastFixAt"`
	LastUploadAt  time.Time `json:"lastUploadAt"`
	LastTransport string    `json:"lastTransport,omitempty"`
	LastError     string    `json:"lastError,omitempty"`
	Uploaded      uint64    `json:"uploaded"`
	Failed        uint64    `json:"failed"`
}

type Uploader struct {
	Log        *log2.Log
	clock      helpers.Clock
	q          *queue.Queue
	source     gps.Source
	transports []Transport
	backoff    *Backoff
	persist    persist.Persist

	url      string
	apiKey   string
	sensorId string

	interval    time.Duration
	lastTick    time.Time
	minDistance float64
	maxIdle     time.Duration
	lastAccept  *gps.Fix
	lastAcceptT time.Time

	lastFix    atomic_clock.Clock
	lastUpload atomic_clock.Clock
	mu         sync.Mutex
	lastSource string
	lastError  string
	uploaded   uint64
	failed     uint64
}

// New validates config. source may be nil when only Cycle/Flush are used.
func New(c uploader_config.Config, q *queue.Queue, source gps.Source, transports []Transport, clock helpers.Clock, log *log2.Log) (*Uploader, error) {
	if q == nil {
		return nil, errors.NotValidf("uploader queue nil")
	}
	if c.ResourceId == "" {
		return nil, errors.NotValidf("uploader resource_id empty")
	}
	if clock == nil {
		clock = helpers.SystemClock
	}
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	rtype := c.ResourceType
	if rtype == "" {
		rtype = DefaultResourceType
	}
	delays := make([]time.Duration, 0, len(c.BackoffSec))
	for _, s := range c.BackoffSec {
		if s <= 0 {
			return nil, errors.NotValidf("uploader backoff_sec=%v", c.BackoffSec)
		}
		delays = append(delays, time.Duration(s)*time.Second)
	}
	self := &Uploader{
		Log:         log,
		clock:       clock,
		q:           q,
		source:      source,
		transports:  transports,
		backoff:     NewBackoff(delays),
		url:         fmt.Sprintf("%s/device/%s/%s/", strings.TrimRight(base, "/"), rtype, c.ResourceId),
		apiKey:      c.APIKey,
		sensorId:    c.SensorId,
		interval:    helpers.IntSecondDefault(c.IntervalSec, DefaultInterval),
		minDistance: c.MinDistanceM,
		maxIdle:     helpers.IntSecondDefault(c.MaxIdleSec, DefaultMaxIdle),
	}
	return self, nil
}

func (self *Uploader) URL() string { return self.url }

// PersistBackoff loads stored backoff state and keeps storing every change.
func (self *Uploader) PersistBackoff(root string, enabled bool) error {
	if err := self.persist.Init("backoff", self.backoff, root, enabled, self.Log); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(self.persist.Load())
}

func (self *Uploader) Ready() bool { return self.backoff.Ready(self.clock.Now()) }

func (self *Uploader) RecordFailure() {
	d := self.backoff.Failure(self.clock.Now())
	self.Log.Infof("upload failed, retry after %v", d)
	self.storeBackoff()
}

func (self *Uploader) RecordSuccess() {
	self.backoff.Success()
	self.storeBackoff()
}

func (self *Uploader) storeBackoff() {
	if err := self.persist.Store(); err != nil {
		self.Log.Error(err)
	}
}

// Upload tries transports in order, first success wins.
func (self *Uploader) Upload(ctx context.Context, f gps.Fix) error {
	var errs []error
	tried := 0
	for _, t := range self.transports {
		if !t.Available() {
			continue
		}
		tried++
		err := self.uploadVia(ctx, t, f)
		if err == nil {
			self.mu.Lock()
			self.lastSource = t.Name()
			self.lastError = ""
			self.uploaded++
			self.mu.Unlock()
			self.lastUpload.SetTime(self.clock.Now())
			return nil
		}
		self.Log.Debugf("upload via %s err=%v", t.Name(), err)
		errs = append(errs, err)
	}
	if tried == 0 {
		errs = append(errs, errors.Errorf("no transport available"))
	}
	err := helpers.FoldErrors(errs)
	self.mu.Lock()
	self.lastError = err.Error()
	self.failed++
	self.mu.Unlock()
	return err
}

func (self *Uploader) uploadVia(ctx context.Context, t Transport, f gps.Fix) error {
	body, err := BuildPayload(f, self.sensorId, t.Name())
	if err != nil {
		return err
	}
	status, err := t.Patch(ctx, self.url, self.apiKey, body)
	if err != nil {
		return errors.Annotatef(err, "upload via %s", t.Name())
	}
	if status < 200 || status >= 300 {
		return errors.Annotatef(UpstreamRejected{Status: status}, "upload via %s", t.Name())
	}
	return nil
}

// Cycle decides what to do with fresh fix.
func (self *Uploader) Cycle(ctx context.Context, f gps.Fix) {
	self.lastFix.SetTime(self.clock.Now())
	if !self.Ready() {
		// no upload attempt during backoff, but the fix is kept for the next drain
		self.Log.Debugf("upload postponed by backoff, buffering")
		self.q.Enqueue(f)
		return
	}
	if !self.q.Empty() {
		self.q.Enqueue(f)
		self.Flush(ctx)
		return
	}
	if err := self.Upload(ctx, f); err != nil {
		self.Log.Errorf("upload immediate, buffering err=%v", err)
		self.RecordFailure()
		self.q.Enqueue(f)
		return
	}
	self.RecordSuccess()
	self.Log.Debugf("upload success %s", f.String())
}

// Flush drains queue oldest first, stops at first failure.
// Returns number of uploaded fixes.
func (self *Uploader) Flush(ctx context.Context) int {
	if !self.Ready() {
		return 0
	}
	n := 0
	for ctx.Err() == nil {
		f, ok := self.q.Peek()
		if !ok {
			break
		}
		if err := self.Upload(ctx, f); err != nil {
			self.Log.Errorf("upload buffered, will retry later err=%v", err)
			self.RecordFailure()
			break
		}
		self.RecordSuccess()
		self.q.DropOldest()
		n++
	}
	if n != 0 {
		self.Log.Infof("upload buffered success=%d remaining=%d", n, self.q.Len())
	}
	return n
}

// Tick is one poll loop iteration. Fix is acquired once per interval,
// between acquisitions queue is drained when backoff allows.
func (self *Uploader) Tick(ctx context.Context) {
	now := self.clock.Now()
	if !self.lastTick.IsZero() && now.Sub(self.lastTick) < self.interval {
		if !self.q.Empty() {
			self.Flush(ctx)
		}
		return
	}
	self.lastTick = now
	if self.source == nil {
		return
	}
	f, err := self.source.Fetch(ctx)
	if err != nil {
		self.Log.Infof("no fix this cycle err=%v", err)
		return
	}
	if self.skipStationary(f, now) {
		return
	}
	self.Cycle(ctx, f)
}

func (self *Uploader) skipStationary(f gps.Fix, now time.Time) bool {
	if self.minDistance <= 0 {
		return false
	}
	if last := self.lastAccept; last != nil && now.Sub(self.lastAcceptT) < self.maxIdle {
		if d := gps.Distance(*last, f); d < self.minDistance {
			self.Log.Debugf("upload skip, moved %.1fm < %.1fm", d, self.minDistance)
			return true
		}
	}
	self.lastAccept = &f
	self.lastAcceptT = now
	return false
}

func (self *Uploader) Status() Status {
	s := Status{
		Queued:        self.q.Len(),
		Capacity:      self.q.Cap(),
		Evicted:       self.q.Evicted(),
		VolatileQueue: self.q.Volatile(),
		BackoffStage:  self.backoff.Stage(),
		NextRetryAt:   self.backoff.NextRetryAt(),
		LastFixAt:     self.lastFix.Time(),
		LastUploadAt:  self.lastUpload.Time(),
	}
	self.mu.Lock()
	s.LastTransport = self.lastSource
	s.LastError = self.lastError
	s.Uploaded = self.uploaded
	s.Failed = self.failed
	self.mu.Unlock()
	return s
}

// Snapshot lists queued fixes oldest first.
func (self *Uploader) Snapshot() []gps.Fix { return self.q.Snapshot() }
