package run

import (
	"context"
	"testing"
	"time"

	"github.com/gogotrans/geotrack/hardware/modem"
	state_new "github.com/gogotrans/geotrack/internal/state/new"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLoc = "\r\n+QGPSLOC: 061951.000,2237.1234N,11408.6717E,1.2,62.3,2,0.00,7.4,4.0,110324,08\r\n\r\nOK\r\n"

func TestLoop(t *testing.T) {
	t.Parallel()

	ctx, g, port := state_new.NewTestContext(t, "", `
poll_ms = 5
upload { resource_id = "42" }`,
		modem.Cmd("AT", "\r\nOK\r\n"),
		modem.Cmd("ATE0", "\r\nOK\r\n"),
		modem.Cmd("AT+QGPS=1", "\r\nOK\r\n"),
		modem.Cmd(`AT+QGPSCFG="gnssconfig",31`, "\r\nOK\r\n"),
		modem.Cmd("AT+QGPS?", "\r\n+QGPS: 1\r\n\r\nOK\r\n"),
		modem.Cmd("AT+QGPSLOC=0", testLoc),
	)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		Loop(ctx, g)
		close(done)
	}()
	require.Eventually(t, func() bool { return g.UploadStatus().Queued == 1 }, 5*time.Second, 5*time.Millisecond)
	g.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
	assert.True(t, g.StopWait(time.Second))
	port.ExpectationsWereMet()
	assert.Equal(t, uint64(1), g.UploadStatus().Failed)
}
