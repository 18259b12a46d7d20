// Sorry, workaround to import cycles.
package state_new

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gogotrans/geotrack/hardware/modem"
	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/internal/state"
	"github.com/gogotrans/geotrack/log2"
	"github.com/gogotrans/geotrack/storage"
	tele_api "github.com/gogotrans/geotrack/tele"
	"github.com/temoto/alive/v2"
)

func NewContext(log *log2.Log, teler tele_api.Teler) (context.Context, *state.Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &state.Global{
		Alive: alive.NewAlive(),
		Log:   log,
		Tele:  teler,
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, state.ContextKey, g)

	return ctx, g
}

// NewTestContext wires scripted modem port and fake clock.
// Persistence lives in memory unless config sets persist.root.
func NewTestContext(t testing.TB, buildVersion string, confString string, steps ...modem.MockStep) (context.Context, *state.Global, *modem.MockPort) {
	fs := state.NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	var log *log2.Log
	if os.Getenv("geotrack_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log, tele_api.Noop{})
	g.BuildVersion = buildVersion
	clock := helpers.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	g.Clock = clock
	port := modem.NewMockPort(t, clock, steps...)
	g.Hardware.Modem.Port = port
	cfg := state.MustReadConfig(log, fs, "test-inline")
	if cfg.Persist.Root == "" {
		cfg.Persist.Root = storage.OnlyForTesting
	}
	g.MustInit(ctx, cfg)

	return ctx, g, port
}
