// Package queue prints fixes waiting for upload.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gogotrans/geotrack/cmd/geotrack/subcmd"
	"github.com/gogotrans/geotrack/gps"
	"github.com/gogotrans/geotrack/internal/state"
	"github.com/juju/errors"
)

var Mod = subcmd.Mod{Name: "queue", Main: Main}

type report struct {
	Count    int       `json:"count"`
	Capacity int       `json:"capacity"`
	Evicted  uint64    `json:"evicted"`
	Volatile bool      `json:"volatile"`
	Fixes    []gps.Fix `json:"fixes"`
}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	config.Tele.Enabled = false
	g.MustInit(ctx, config)

	if err := Dump(g, os.Stdout); err != nil {
		return err
	}
	return errors.Trace(g.Close())
}

func Dump(g *state.Global, w io.Writer) error {
	q := g.Queue()
	fixes := q.Snapshot()
	r := report{
		Count:    len(fixes),
		Capacity: q.Cap(),
		Evicted:  q.Evicted(),
		Volatile: q.Volatile(),
		Fixes:    fixes,
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Trace(err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return errors.Trace(err)
}
