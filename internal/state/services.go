package state

import (
	"context"
	"path/filepath"
	"time"

	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/internal/status"
	"github.com/gogotrans/geotrack/queue"
	"github.com/gogotrans/geotrack/storage"
	"github.com/gogotrans/geotrack/uploader"
	"github.com/juju/errors"
	"github.com/temoto/spq"
)

const DefaultQueueNamespace = "geoBuf"

const shutdownTimeout = 5 * time.Second

type services struct {
	storage struct {
		once
		kv storage.KV
	}
	queue struct {
		once
		q    *queue.Queue
		dead *spq.Queue
	}
	uploader uploaderOnce
	status   struct {
		once
		s *status.Server
	}
}

type uploaderOnce struct {
	once
	u *uploader.Uploader
}

func (x *uploaderOnce) get() *uploader.Uploader {
	if !x.done() {
		return nil
	}
	return x.u
}

// persistPath maps name under persist.root, in-memory root stays as is.
func (g *Global) persistPath(name, testing string) string {
	if g.Config.Persist.Root == storage.OnlyForTesting {
		return testing
	}
	return filepath.Join(g.Config.Persist.Root, name)
}

func (g *Global) Storage() (storage.KV, error) {
	x := &g.services.storage
	_ = x.do(func() error {
		path := g.Config.Queue.Path
		if path == "" {
			path = g.persistPath("queue", storage.OnlyForTesting)
		}
		g.Log.Debugf("storage open path=%q", path)
		db, err := storage.OpenLevelDB(path)
		if err != nil {
			return err
		}
		x.kv = db
		return nil
	})
	return x.kv, x.err
}

// Queue never fails, without storage it keeps fixes in memory only.
func (g *Global) Queue() *queue.Queue {
	x := &g.services.queue
	_ = x.do(func() error {
		cfg := &g.Config.Queue
		ns := cfg.Namespace
		if ns == "" {
			ns = DefaultQueueNamespace
		}
		var kv storage.KV
		if db, err := g.Storage(); err != nil {
			g.Log.Errorf("queue storage err=%v, buffering in memory", err)
		} else {
			kv = storage.Prefixed(db, ns+"/")
		}
		x.q = queue.New(kv, cfg.Capacity, g.Log)
		if n := x.q.Restore(); n != 0 {
			g.Log.Infof("queue restored count=%d", n)
		}

		if cfg.DeadLetter {
			var err error
			if x.dead, err = spq.Open(g.persistPath("deadletter", spq.OnlyForTesting)); err != nil {
				g.Log.Errorf("queue dead letter err=%v", err)
			} else {
				x.q.SetDeadLetter(x.dead)
			}
		}
		return nil
	})
	return x.q
}

func (g *Global) Uploader() (*uploader.Uploader, error) {
	x := &g.services.uploader
	_ = x.do(func() error {
		cfg := g.Config.Upload
		src, err := g.GpsSource()
		if err != nil {
			return errors.Annotate(err, "uploader")
		}

		transports := make([]uploader.Transport, 0, 2)
		if cfg.Wifi.Enabled {
			timeout := helpers.IntSecondDefault(cfg.Wifi.TimeoutSec, uploader.DefaultWifiTimeout)
			transports = append(transports, uploader.NewWifi(cfg.Wifi.Interface, timeout, nil))
		}
		if cfg.CellularEnabled {
			c, err := g.Cellular()
			switch {
			case err != nil:
				g.Log.Errorf("uploader cellular transport err=%v", err)
			case c == nil:
				g.Log.Errorf("config: upload.cellular=true but cellular disabled")
			default:
				transports = append(transports, uploader.Cellular{C: c})
			}
		}
		if len(transports) == 0 {
			g.Log.Errorf("config: no upload transport, fixes will accumulate in queue")
		}

		u, err := uploader.New(cfg, g.Queue(), src, transports, g.clock(), g.Log)
		if err != nil {
			return err
		}
		if err = u.PersistBackoff(g.Config.Persist.Root, cfg.PersistBackoff && g.Config.Persist.Root != storage.OnlyForTesting); err != nil {
			g.Log.Errorf("uploader persist backoff err=%v", err)
		}
		x.u = u
		return nil
	})
	return x.u, x.err
}

// StatusServer returns nil without error when disabled by config.
func (g *Global) StatusServer() (*status.Server, error) {
	x := &g.services.status
	_ = x.do(func() error {
		if !g.Config.Status.Enabled {
			return nil
		}
		u, err := g.Uploader()
		if err != nil {
			return errors.Annotate(err, "status")
		}
		s := status.New(u, g.Log)
		if _, err = s.Start(g.Config.Status.Listen); err != nil {
			return err
		}
		x.s = s
		return nil
	})
	return x.s, x.err
}

func (s *services) close(g *Global) []error {
	errs := make([]error, 0, 4)
	if s.status.s != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		errs = append(errs, s.status.s.Close(ctx))
		cancel()
	}
	if s.queue.dead != nil {
		errs = append(errs, errors.Annotate(s.queue.dead.Close(), "dead letter close"))
	}
	if s.storage.kv != nil {
		errs = append(errs, errors.Annotate(s.storage.kv.Close(), "storage close"))
	}
	return errs
}
