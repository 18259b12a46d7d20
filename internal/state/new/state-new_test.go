package state_new

import (
	"context"
	"testing"

	"github.com/gogotrans/geotrack/hardware/modem"
	"github.com/gogotrans/geotrack/internal/state"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLoc = "\r\n+QGPSLOC: 061951.000,2237.1234N,11408.6717E,1.2,62.3,2,0.00,7.4,4.0,110324,08\r\n\r\nOK\r\n"

func TestNewTestContext(t *testing.T) {
	t.Parallel()

	ctx, g, _ := NewTestContext(t, "test-build", `upload { resource_id = "42" }`)
	assert.Equal(t, g, state.GetGlobal(ctx))
	assert.Equal(t, "test-build", g.BuildVersion)
	// no uploader yet
	assert.Equal(t, -1, g.UploadStatus().BackoffStage)
	require.NoError(t, g.Close())
}

func TestUploaderBuffersWithoutTransport(t *testing.T) {
	t.Parallel()

	ctx, g, port := NewTestContext(t, "", `
upload { resource_id = "42" }
queue { capacity = 4 dead_letter = true }`,
		modem.Cmd("AT", "\r\nOK\r\n"),
		modem.Cmd("ATE0", "\r\nOK\r\n"),
		modem.Cmd("AT+QGPS=1", "\r\nOK\r\n"),
		modem.Cmd(`AT+QGPSCFG="gnssconfig",31`, "\r\nOK\r\n"),
		modem.Cmd("AT+QGPS?", "\r\n+QGPS: 1\r\n\r\nOK\r\n"),
		modem.Cmd("AT+QGPSLOC=0", testLoc),
	)
	u, err := g.Uploader()
	require.NoError(t, err)
	m, err := g.Modem()
	require.NoError(t, err)
	cell, err := g.Cellular()
	require.NoError(t, err)
	assert.Nil(t, cell)

	u.Tick(ctx)
	port.ExpectationsWereMet()
	assert.Equal(t, 1, g.Queue().Len())
	assert.False(t, g.Queue().Volatile())
	s := g.UploadStatus()
	assert.Equal(t, 1, s.Queued)
	assert.Equal(t, 4, s.Capacity)

	// lazy init runs once
	u2, _ := g.Uploader()
	assert.Equal(t, u, u2)
	m2, _ := g.Modem()
	assert.Equal(t, m, m2)
	require.NoError(t, g.Close())
}

func TestGpsSourceInvalid(t *testing.T) {
	t.Parallel()

	_, g, _ := NewTestContext(t, "", `gps { source = "glonass" }`)
	_, err := g.GpsSource()
	assert.True(t, errors.IsNotValid(errors.Cause(err)), "err=%v", err)
	_, err = g.Uploader()
	assert.Error(t, err)
}

func TestModemSyncTimeout(t *testing.T) {
	t.Parallel()

	_, g, _ := NewTestContext(t, "", `modem { sync_timeout_sec = 1 }`,
		modem.Cmd("AT", ""),
		modem.Cmd("AT", ""),
	)
	_, err := g.Modem()
	assert.True(t, errors.IsTimeout(errors.Cause(err)), "err=%v", err)
}

func TestStatusServerDisabled(t *testing.T) {
	t.Parallel()

	_, g, _ := NewTestContext(t, "", "")
	s, err := g.StatusServer()
	assert.NoError(t, err)
	assert.Nil(t, s)
}

func TestContextNoGlobal(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { state.GetGlobal(context.Background()) })
}
