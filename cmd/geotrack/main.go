package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gogotrans/geotrack/cellular"
	"github.com/gogotrans/geotrack/cmd/geotrack/at"
	"github.com/gogotrans/geotrack/cmd/geotrack/locate"
	"github.com/gogotrans/geotrack/cmd/geotrack/queue"
	"github.com/gogotrans/geotrack/cmd/geotrack/run"
	"github.com/gogotrans/geotrack/cmd/geotrack/subcmd"
	"github.com/gogotrans/geotrack/internal/state"
	state_new "github.com/gogotrans/geotrack/internal/state/new"
	"github.com/gogotrans/geotrack/internal/tele"
	"github.com/gogotrans/geotrack/log2"
	tele_api "github.com/gogotrans/geotrack/tele"
	"github.com/juju/errors"
)

var log = log2.NewStderr(log2.LDebug)

// set by -ldflags "-X main.BuildVersion=..."
var BuildVersion string = "unknown"

var modules = []subcmd.Mod{
	run.Mod,
	at.Mod,
	locate.Mod,
	queue.Mod,
}

func main() {
	flagConfig := flag.String("config", state.DefaultConfigName, "")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config FILE] [%s]\n", os.Args[0], subcmd.Names(modules))
		flag.PrintDefaults()
	}
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = run.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else {
		log.SetFlags(log2.LInteractiveFlags)
	}

	ctx, g := state_new.NewContext(log, nil)
	g.BuildVersion = BuildVersion
	g.NewTele = newTele

	config := state.MustReadConfig(log, state.NewOsFullReader(), *flagConfig)
	if err := mod.Main(ctx, config); err != nil {
		log.Fatalf("%s: %s", mod.Name, errors.ErrorStack(err))
	}
}

func newTele(g *state.Global) tele_api.Teler {
	var cell *cellular.Client
	if g.TeleNeedsModem() {
		var err error
		if cell, err = g.Cellular(); err != nil {
			g.Log.Errorf("tele modem transport unavailable err=%v", err)
		}
	}
	return tele.New(g.UploadStatus, cell, g.Clock)
}
