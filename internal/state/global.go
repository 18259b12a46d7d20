package state

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/log2"
	tele_api "github.com/gogotrans/geotrack/tele"
	tele_config "github.com/gogotrans/geotrack/tele/config"
	"github.com/gogotrans/geotrack/uploader"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

const DefaultPoll = time.Second

type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	// nil means system clock
	Clock    helpers.Clock
	Config   *Config
	Hardware hardware // hardware.go
	Log      *log2.Log
	Tele     tele_api.Teler
	// NewTele builds status reporter after modem is available.
	NewTele func(g *Global) tele_api.Teler

	services services // services.go

	_copy_guard sync.Mutex //nolint:unused
}

const ContextKey = "run/state-global"

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if cfg.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}
	g.Log.Infof("build version=%s", g.BuildVersion)

	if g.Config.Persist.Root == "" {
		g.Config.Persist.Root = "./tmp-geotrack-db"
		g.Log.Errorf("config: persist.root=empty changed=%s", g.Config.Persist.Root)
	}
	g.Log.Debugf("config: persist.root=%s", g.Config.Persist.Root)
	if g.Config.Queue.Capacity < 0 || g.Config.Queue.Capacity > 0xffff {
		return errors.NotValidf("config: queue.capacity=%d", g.Config.Queue.Capacity)
	}
	if g.Config.PollMs < 0 {
		return errors.NotValidf("config: poll_ms=%d", g.Config.PollMs)
	}

	// Since tele is remote error reporting mechanism, it must be inited before anything else
	if g.Tele == nil {
		g.Tele = tele_api.Noop{}
		if g.NewTele != nil && g.Config.Tele.Enabled {
			g.Tele = g.NewTele(g)
		}
	}
	// Tele.Init gets g.Log clone before SetErrorFunc, so Tele.Log.Error doesn't recurse on itself
	if err := g.Tele.Init(ctx, g.Log.Clone(log2.LInfo), g.Config.Tele); err != nil {
		g.Tele = tele_api.Noop{}
		return errors.Annotate(err, "tele init")
	}
	g.Log.SetErrorFunc(g.Tele.Error)
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

// TeleNeedsModem reports status reporter may publish through modem MQTT.
func (g *Global) TeleNeedsModem() bool {
	switch g.Config.Tele.Transport {
	case tele_config.TransportModem:
		return true
	case "", tele_config.TransportAuto:
		return g.Config.Cellular.Enabled
	}
	return false
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Poll() time.Duration {
	if g.Config.PollMs == 0 {
		return DefaultPoll
	}
	return time.Duration(g.Config.PollMs) * time.Millisecond
}

// UploadStatus is safe before uploader exists.
func (g *Global) UploadStatus() uploader.Status {
	if u := g.services.uploader.get(); u != nil {
		return u.Status()
	}
	return uploader.Status{BackoffStage: -1}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close releases lazily opened resources.
func (g *Global) Close() error {
	g.Tele.Close()
	errs := g.services.close(g)
	errs = append(errs, g.Hardware.close(g)...)
	return errors.Trace(helpers.FoldErrors(errs))
}

func (g *Global) clock() helpers.Clock {
	if g.Clock == nil {
		return helpers.SystemClock
	}
	return g.Clock
}
