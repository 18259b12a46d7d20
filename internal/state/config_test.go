package state

import (
	"context"
	"strings"
	"testing"

	"github.com/gogotrans/geotrack/log2"
	tele_api "github.com/gogotrans/geotrack/tele"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/temoto/alive/v2"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		input     string
		check     func(testing.TB, context.Context)
		expectErr string
	}
	cases := []Case{
		{"empty", "", func(t testing.TB, ctx context.Context) {
			g := GetGlobal(ctx)
			assert.Equal(t, "./tmp-geotrack-db", g.Config.Persist.Root)
			assert.Equal(t, DefaultPoll, g.Poll())
			assert.False(t, g.TeleNeedsModem())
		}, ""},

		{"values", `
modem { device = "/dev/ttyUSB2" baud = 115200 power_chip = "/dev/gpiochip0" power_pin = "17" }
cellular { enable = true apn = "CMNET" mode = "qhttp" }
gps { source = "nmea" nmea_device = "/dev/ttyS1" }
queue { capacity = 64 namespace = "buf" dead_letter = true }
upload {
	resource_id = "42"
	backoff_sec = [1, 5, 30]
	wifi { enable = true interface = "wlan0" }
	cellular = true
}
tele { enable = true transport = "auto" mqtt_broker = "tcp://broker:1883" }
status { enable = true listen = ":9000" }
persist { root = "/var/lib/geotrack" }
poll_ms = 250`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				c := g.Config
				assert.Equal(t, "/dev/ttyUSB2", c.Modem.Device)
				assert.Equal(t, 115200, c.Modem.Baud)
				assert.Equal(t, "17", c.Modem.PowerPin)
				assert.Equal(t, "CMNET", c.Cellular.Apn)
				assert.Equal(t, "nmea", c.Gps.Source)
				assert.Equal(t, 64, c.Queue.Capacity)
				assert.True(t, c.Queue.DeadLetter)
				assert.Equal(t, "42", c.Upload.ResourceId)
				assert.Equal(t, []int{1, 5, 30}, c.Upload.BackoffSec)
				assert.Equal(t, "wlan0", c.Upload.Wifi.Interface)
				assert.True(t, c.Upload.CellularEnabled)
				assert.Equal(t, "tcp://broker:1883", c.Tele.MqttBroker)
				assert.Equal(t, ":9000", c.Status.Listen)
				assert.Equal(t, "/var/lib/geotrack", c.Persist.Root)
				assert.Equal(t, 250, c.PollMs)
				assert.True(t, g.TeleNeedsModem())
			},
			"",
		},

		{"include-normalize", `
queue { capacity = 1 }
include "./empty" {}`,
			nil, ""},

		{"include-optional", `
include "upload-42" {}
include "non-exist" { optional = true }`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, "42", g.Config.Upload.ResourceId)
			}, ""},

		{"include-overwrites", `
upload { resource_id = "1" }
include "upload-42" {}`,
			func(t testing.TB, ctx context.Context) {
				g := GetGlobal(ctx)
				assert.Equal(t, "42", g.Config.Upload.ResourceId)
			}, ""},

		{"error-include-required", `include "non-exist" {}`, nil, "config required name=non-exist"},
		{"error-syntax", `hello`, nil, "key 'hello' expected start of object"},
		{"error-include-loop", `include "include-loop" {}`, nil, "config include loop: from=include-loop include=include-loop"},
		{"error-capacity", `queue { capacity = -1 }`, nil, "queue.capacity=-1"},
		{"error-poll", `poll_ms = -5`, nil, "poll_ms=-5"},
	}
	mkCheck := func(c Case) func(*testing.T) {
		return func(t *testing.T) {
			log := log2.NewTest(t, log2.LDebug)

			// code duplicate from NewContext, import cycle
			g := &Global{
				Alive: alive.NewAlive(),
				Log:   log,
				Tele:  tele_api.Noop{},
			}
			ctx := context.Background()
			ctx = context.WithValue(ctx, log2.ContextKey, log)
			ctx = context.WithValue(ctx, ContextKey, g)

			fs := NewMockFullReader(map[string]string{
				"test-inline":  c.input,
				"empty":        "",
				"upload-42":    `upload { resource_id = "42" }`,
				"include-loop": `include "include-loop" {}`,
			})
			cfg, err := ReadConfig(log, fs, "test-inline")
			if err == nil {
				err = g.Init(ctx, cfg)
			}
			if c.expectErr == "" {
				if err != nil {
					t.Fatalf("error expected=nil actual='%v'", errors.ErrorStack(err))
				}
				if c.check != nil {
					c.check(t, ctx)
				}
			} else {
				if err == nil || !strings.Contains(err.Error(), c.expectErr) {
					t.Fatalf("error expected='%s' actual='%v'", c.expectErr, err)
				}
			}
		}
	}
	for _, c := range cases {
		t.Run(c.name, mkCheck(c))
	}
}

func TestReadConfigNoNames(t *testing.T) {
	t.Parallel()

	_, err := ReadConfig(log2.NewTest(t, log2.LDebug), NewMockFullReader(nil))
	assert.Error(t, err)
}
