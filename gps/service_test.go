package gps

import (
	"context"
	"strings"
	"testing"
	"time"

	gps_config "github.com/gogotrans/geotrack/gps/config"
	"github.com/gogotrans/geotrack/hardware/modem"
	"github.com/gogotrans/geotrack/log2"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLoc = "\r\n+QGPSLOC: 061951.000,2237.1234N,11408.6717E,1.2,62.3,2,0.00,7.4,4.0,110324,08\r\n\r\nOK\r\n"

func enableSteps() []modem.MockStep {
	return []modem.MockStep{
		modem.Cmd("AT+QGPS=1", "\r\n+CME ERROR: 504\r\n"),
		modem.Cmd(`AT+QGPSCFG="gnssconfig",31`, "\r\nOK\r\n"),
		modem.Cmd("AT+QGPS?", "\r\n+QGPS: 1\r\n\r\nOK\r\n"),
	}
}

func TestServiceFetch(t *testing.T) {
	t.Parallel()

	steps := append(enableSteps(),
		modem.Cmd("AT+QGPSLOC=0", "\r\n+CME ERROR: 516\r\n"),
		modem.Cmd("AT+QGPSLOC=0", testLoc),
		modem.Cmd("AT+QGPSEND", "\r\nOK\r\n"),
	)
	m, port, _ := modem.NewTestModem(t, steps...)
	s := NewService(m, gps_config.Config{}, log2.NewTest(t, log2.LDebug))
	ctx := context.Background()

	_, err := s.Fetch(ctx)
	assert.True(t, errors.IsNotFound(err), "err=%v", err)
	f, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), f.SatelliteCount)
	assert.Equal(t, "2024-03-11T06:19:51+00:00", f.AcquiredAt)
	require.NoError(t, s.Disable())
	port.ExpectationsWereMet()
}

func TestServiceEnableFails(t *testing.T) {
	t.Parallel()

	m, port, _ := modem.NewTestModem(t,
		modem.Cmd("AT+QGPS=1", "\r\nOK\r\n"),
		modem.Cmd(`AT+QGPSCFG="gnssconfig",1`, "\r\nERROR\r\n"),
		modem.Cmd("AT+QGPS?", "\r\n+QGPS: 0\r\n\r\nOK\r\n"),
	)
	s := NewService(m, gps_config.Config{GnssConfig: 1}, nil)
	_, err := s.Fetch(context.Background())
	assert.True(t, modem.IsProtocolError(err), "err=%v", err)
	port.ExpectationsWereMet()
}

func TestServiceWaitFix(t *testing.T) {
	t.Parallel()

	steps := enableSteps()
	for i := 0; i < 3; i++ {
		steps = append(steps, modem.Cmd("AT+QGPSLOC=0", "\r\n+CME ERROR: 516\r\n"))
	}
	steps = append(steps, modem.Cmd("AT+QGPSLOC=0", testLoc))
	m, port, clock := modem.NewTestModem(t, steps...)
	s := NewService(m, gps_config.Config{}, nil)
	start := clock.Now()
	f, err := s.WaitFix(context.Background(), time.Minute, 5*time.Second)
	require.NoError(t, err)
	assert.InDelta(t, 22.6187, f.Latitude, 1e-4)
	assert.True(t, clock.Now().Sub(start) >= 15*time.Second)
	port.ExpectationsWereMet()
}

func TestServiceWaitFixTimeout(t *testing.T) {
	t.Parallel()

	steps := enableSteps()
	for i := 0; i < 3; i++ {
		steps = append(steps, modem.Cmd("AT+QGPSLOC=0", "\r\n+CME ERROR: 516\r\n"))
	}
	m, port, _ := modem.NewTestModem(t, steps...)
	s := NewService(m, gps_config.Config{}, nil)
	_, err := s.WaitFix(context.Background(), 12*time.Second, 5*time.Second)
	assert.True(t, errors.IsTimeout(err), "err=%v", err)
	port.ExpectationsWereMet()
}

type nopCloser struct{ *strings.Reader }

func (nopCloser) Close() error { return nil }

func TestNMEAReceiver(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"garbage",
		"$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47",
		"$GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*7D",
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A",
		"",
	}, "\r\n")
	r := NewNMEAReceiver(nopCloser{strings.NewReader(input)}, 0, log2.NewTest(t, log2.LDebug))
	f, err := r.Fetch(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 48.1173, f.Latitude, 1e-4)
	assert.InDelta(t, 11.516667, f.Longitude, 1e-4)
	assert.InDelta(t, 22.4*1.852, f.Speed, 1e-6)
	assert.Equal(t, 545.4, f.Altitude)
	assert.Equal(t, uint8(8), f.SatelliteCount)
	assert.Equal(t, "2094-03-23T12:35:19+00:00", f.AcquiredAt)

	_, err = r.Fetch(context.Background())
	assert.True(t, errors.IsTimeout(err), "err=%v", err)
	require.NoError(t, r.Close())
}
