package locate

import (
	"testing"

	"github.com/gogotrans/geotrack/hardware/modem"
	state_new "github.com/gogotrans/geotrack/internal/state/new"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate(t *testing.T) {
	t.Parallel()

	ctx, g, port := state_new.NewTestContext(t, "", "",
		modem.Cmd("AT", "\r\nOK\r\n"),
		modem.Cmd("ATE0", "\r\nOK\r\n"),
		modem.Cmd("AT+QGPS=1", "\r\nOK\r\n"),
		modem.Cmd(`AT+QGPSCFG="gnssconfig",31`, "\r\nOK\r\n"),
		modem.Cmd("AT+QGPS?", "\r\n+QGPS: 1\r\n\r\nOK\r\n"),
		modem.Cmd("AT+QGPSLOC=0", "\r\n+CME ERROR: 516\r\n"),
		modem.Cmd("AT+QGPSLOC=0", "\r\n+QGPSLOC: 061951.000,2237.1234N,11408.6717E,1.2,62.3,2,0.00,7.4,4.0,110324,08\r\n\r\nOK\r\n"),
	)
	f, err := Locate(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), f.SatelliteCount)
	assert.Equal(t, "2024-03-11T06:19:51+00:00", f.AcquiredAt)
	port.ExpectationsWereMet()
}

func TestLocateTimeout(t *testing.T) {
	t.Parallel()

	steps := []modem.MockStep{
		modem.Cmd("AT", "\r\nOK\r\n"),
		modem.Cmd("ATE0", "\r\nOK\r\n"),
		modem.Cmd("AT+QGPS=1", "\r\nOK\r\n"),
		modem.Cmd(`AT+QGPSCFG="gnssconfig",31`, "\r\nOK\r\n"),
		modem.Cmd("AT+QGPS?", "\r\n+QGPS: 1\r\n\r\nOK\r\n"),
	}
	// warmup 5s with 2s interval: attempts at 0, 2, 4
	for i := 0; i < 3; i++ {
		steps = append(steps, modem.Cmd("AT+QGPSLOC=0", "\r\n+CME ERROR: 516\r\n"))
	}
	ctx, g, _ := state_new.NewTestContext(t, "", `gps { warmup_sec = 5 }`, steps...)
	_, err := Locate(ctx, g)
	assert.True(t, errors.IsTimeout(errors.Cause(err)), "err=%v", err)
}
