// Package run is the service mode: poll loop acquiring fixes,
// uploading them and reporting device status.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/gogotrans/geotrack/cmd/geotrack/subcmd"
	"github.com/gogotrans/geotrack/internal/state"
	"github.com/juju/errors"
)

var Mod = subcmd.Mod{Name: "run", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, config)
	g.Log.Debugf("config=%+v", g.Config)

	u, err := g.Uploader()
	if err != nil {
		return errors.Annotate(err, "uploader init")
	}
	g.Log.Infof("upload url=%s", u.URL())
	if _, err = g.StatusServer(); err != nil {
		g.Log.Error(errors.Annotate(err, "status server"))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go stopOnSignal(g)
	go func() {
		<-g.Alive.StopChan()
		cancel()
	}()

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("geotrack init complete, running")
	Loop(ctx, g)

	subcmd.SdNotify(daemon.SdNotifyStopping)
	return errors.Trace(g.Close())
}

// Loop is the only owner of modem while running.
func Loop(ctx context.Context, g *state.Global) {
	u, err := g.Uploader()
	if err != nil {
		g.Error(err)
		return
	}
	if !g.Alive.Add(1) {
		return
	}
	defer g.Alive.Done()

	ticker := time.NewTicker(g.Poll())
	defer ticker.Stop()
	stopCh := g.Alive.StopChan()
	for g.Alive.IsRunning() {
		u.Tick(ctx)
		g.Tele.Tick(ctx)
		select {
		case <-stopCh:
		case <-ticker.C:
		}
	}
}

func stopOnSignal(g *state.Global) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case s := <-sigCh:
		g.Log.Infof("signal=%v stopping", s)
		g.Stop()
	case <-g.Alive.StopChan():
	}
	signal.Stop(sigCh)
}
