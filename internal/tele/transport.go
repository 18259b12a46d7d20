package tele

import (
	"context"

	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/log2"
	tele_config "github.com/gogotrans/geotrack/tele/config"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - Publish delivers retained message within network timeout or fails
// - application may start without network available
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, topicConnect string) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Close()
}

// transportChain publishes via first transport that succeeds.
type transportChain []Transporter

func (self transportChain) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, topicConnect string) error {
	errs := make([]error, 0, len(self))
	for _, t := range self {
		errs = append(errs, t.Init(ctx, log, teleConfig, topicConnect))
	}
	return helpers.FoldErrors(errs)
}

func (self transportChain) Publish(ctx context.Context, topic string, payload []byte) error {
	errs := make([]error, 0, len(self))
	for _, t := range self {
		err := t.Publish(ctx, topic, payload)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return helpers.FoldErrors(errs)
}

func (self transportChain) Close() {
	for _, t := range self {
		t.Close()
	}
}
