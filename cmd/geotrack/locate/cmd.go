// Package locate waits for one fix and prints it.
package locate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gogotrans/geotrack/cmd/geotrack/subcmd"
	"github.com/gogotrans/geotrack/gps"
	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/internal/state"
	"github.com/juju/errors"
)

const (
	DefaultWait     = 2 * time.Minute
	DefaultInterval = 2 * time.Second
)

var Mod = subcmd.Mod{Name: "gps", Main: Main}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	config.Tele.Enabled = false
	g.MustInit(ctx, config)

	f, err := Locate(ctx, g)
	if err != nil {
		return err
	}
	b, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	fmt.Println(string(b))
	return errors.Trace(g.Close())
}

// Locate uses modem GNSS warmup when available, single read otherwise.
func Locate(ctx context.Context, g *state.Global) (gps.Fix, error) {
	src, err := g.GpsSource()
	if err != nil {
		return gps.Fix{}, errors.Annotate(err, "gps init")
	}
	switch s := src.(type) {
	case *gps.Service:
		wait := helpers.IntSecondDefault(g.Config.Gps.WarmupSec, DefaultWait)
		return s.WaitFix(ctx, wait, DefaultInterval)
	default:
		return src.Fetch(ctx)
	}
}
