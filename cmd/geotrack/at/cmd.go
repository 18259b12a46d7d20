// Package at is interactive modem console, lines are sent as AT commands.
package at

import (
	"context"
	"fmt"
	"strings"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/gogotrans/geotrack/cmd/geotrack/subcmd"
	"github.com/gogotrans/geotrack/hardware/modem"
	"github.com/gogotrans/geotrack/helpers/cli"
	"github.com/gogotrans/geotrack/internal/state"
	"github.com/juju/errors"
)

const modName = "at"

const usage = `syntax: one AT command per line
- /t=N   set response timeout to N seconds (default 2)
- /sync  resynchronize modem
`

var Mod = subcmd.Mod{Name: modName, Main: Main}

var suggests = []prompt.Suggest{
	{Text: "ATI", Description: "identification"},
	{Text: "AT+CSQ", Description: "signal quality"},
	{Text: "AT+CPIN?", Description: "SIM status"},
	{Text: "AT+CREG?", Description: "network registration"},
	{Text: "AT+QIACT?", Description: "PDP context"},
	{Text: "AT+QGPS?", Description: "GNSS status"},
	{Text: "AT+QGPSLOC=2", Description: "GNSS position"},
	{Text: "AT+QMTCONN?", Description: "MQTT state"},
	{Text: "/sync"},
	{Text: "/help"},
}

func Main(ctx context.Context, config *state.Config) error {
	g := state.GetGlobal(ctx)
	config.Tele.Enabled = false
	g.MustInit(ctx, config)

	m, err := g.Modem()
	if err != nil {
		return errors.Annotate(err, "modem init")
	}
	g.Log.Debugf("modem ready")

	cli.MainLoop("geotrack-at", newExecutor(ctx, m), newCompleter())
	return errors.Trace(g.Close())
}

func newCompleter() func(d prompt.Document) []prompt.Suggest {
	return func(d prompt.Document) []prompt.Suggest {
		return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
	}
}

func newExecutor(ctx context.Context, m *modem.Modem) func(string) {
	g := state.GetGlobal(ctx)
	timeout := modem.DefaultCommandTimeout

	return func(line string) {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			return
		case line == "help" || line == "/help":
			fmt.Print(usage)
			return
		case line == "/sync":
			if err := m.Sync(5 * time.Second); err != nil {
				g.Log.Error(err)
			}
			return
		case strings.HasPrefix(line, "/t="):
			d, err := time.ParseDuration(line[3:] + "s")
			if err != nil {
				g.Log.Errorf("line=%s err=%v", line, err)
				return
			}
			timeout = d
			return
		}

		tbegin := time.Now()
		resp, err := m.Command(line, timeout)
		fmt.Println(strings.TrimSpace(resp))
		if err != nil {
			g.Log.Errorf(errors.ErrorStack(err))
		}
		g.Log.Debugf("duration=%v", time.Since(tbegin))
	}
}
