package tele

import (
	"context"
	"sync"
	"time"

	"github.com/gogotrans/geotrack/log2"
	tele_config "github.com/gogotrans/geotrack/tele/config"
	"github.com/gogotrans/geotrack/uploader"
)

// Teler is device status reporter.
// Init fails only with invalid config, network issues are ignored.
// Tick and Report never block longer than network timeout.
type Teler interface {
	Init(context.Context, *log2.Log, tele_config.Config) error
	Close()
	Error(error)
	Tick(ctx context.Context)
	Report(ctx context.Context) error
}

// Snapshot provides upload state for status message.
type Snapshot func() uploader.Status

// Status is retained MQTT message body.
type Status struct {
	ClientId  string          `json:"clientId"`
	Time      time.Time       `json:"time"`
	UptimeSec int64           `json:"uptimeSec"`
	Errors    uint32          `json:"errors"`
	LastError string          `json:"lastError,omitempty"`
	Modem     string          `json:"modem,omitempty"`
	Upload    uploader.Status `json:"upload"`
}

// Stat counts errors between reports.
type Stat struct {
	sync.Mutex
	Errors    uint32
	LastError string
}

type Noop struct{}

var _ Teler = Noop{} // compile-time interface test

func (Noop) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }
func (Noop) Close()                                                    {}
func (Noop) Error(error)                                               {}
func (Noop) Tick(context.Context)                                      {}
func (Noop) Report(context.Context) error                              { return nil }
