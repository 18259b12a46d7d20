package tele

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/gogotrans/geotrack/cellular"
	cellular_config "github.com/gogotrans/geotrack/cellular/config"
	"github.com/gogotrans/geotrack/hardware/modem"
	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/log2"
	tele_api "github.com/gogotrans/geotrack/tele"
	tele_config "github.com/gogotrans/geotrack/tele/config"
	"github.com/gogotrans/geotrack/uploader"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTransport struct{ mock.Mock }

func (self *mockTransport) Init(ctx context.Context, log *log2.Log, c tele_config.Config, topicConnect string) error {
	return self.Called(c.ClientId, topicConnect).Error(0)
}

func (self *mockTransport) Publish(ctx context.Context, topic string, payload []byte) error {
	return self.Called(topic, payload).Error(0)
}

func (self *mockTransport) Close() { self.Called() }

func newTestTele(t testing.TB, c tele_config.Config, trans Transporter) (tele_api.Teler, *helpers.FakeClock) {
	clock := helpers.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	snapshot := func() uploader.Status { return uploader.Status{Queued: 3, Capacity: 512, BackoffStage: 1} }
	tl := NewWithTransporter(trans, snapshot, clock)
	require.NoError(t, tl.Init(context.Background(), log2.NewTest(t, log2.LDebug), c))
	return tl, clock
}

func TestTeleDisabled(t *testing.T) {
	t.Parallel()

	trans := &mockTransport{}
	tl, _ := newTestTele(t, tele_config.Config{}, trans)
	tl.Tick(context.Background())
	assert.NoError(t, tl.Report(context.Background()))
	tl.Close()
	trans.AssertExpectations(t)
}

func TestTeleReport(t *testing.T) {
	t.Parallel()

	var got []byte
	trans := &mockTransport{}
	trans.On("Init", "gt1", "fleet/gt1/connect").Return(nil).Once()
	trans.On("Publish", "fleet/gt1/status", mock.Anything).Return(nil).
		Run(func(args mock.Arguments) { got = args.Get(1).([]byte) })
	trans.On("Close").Return().Once()
	tl, clock := newTestTele(t, tele_config.Config{Enabled: true, ClientId: "gt1", TopicPrefix: "fleet/gt1", IntervalSec: 60}, trans)
	ctx := context.Background()

	clock.Advance(90 * time.Second)
	tl.Error(errors.New("boom"))
	tl.Error(errors.New("bang"))
	tl.Tick(ctx)
	trans.AssertNumberOfCalls(t, "Publish", 1)
	var s tele_api.Status
	require.NoError(t, json.Unmarshal(got, &s))
	assert.Equal(t, "gt1", s.ClientId)
	assert.Equal(t, int64(90), s.UptimeSec)
	assert.Equal(t, uint32(2), s.Errors)
	assert.Equal(t, "bang", s.LastError)
	assert.Equal(t, 3, s.Upload.Queued)
	assert.Equal(t, 1, s.Upload.BackoffStage)
	assert.Equal(t, "", s.Modem)

	// interval gate
	clock.Advance(30 * time.Second)
	tl.Tick(ctx)
	trans.AssertNumberOfCalls(t, "Publish", 1)

	clock.Advance(30 * time.Second)
	tl.Tick(ctx)
	trans.AssertNumberOfCalls(t, "Publish", 2)
	s = tele_api.Status{}
	require.NoError(t, json.Unmarshal(got, &s))
	assert.Equal(t, uint32(0), s.Errors)
	assert.Equal(t, "", s.LastError)

	tl.Close()
	trans.AssertExpectations(t)
}

func TestTeleReportFailureKeepsErrors(t *testing.T) {
	t.Parallel()

	var got []byte
	trans := &mockTransport{}
	trans.On("Init", DefaultClientId, DefaultClientId+"/connect").Return(nil)
	trans.On("Publish", DefaultClientId+"/status", mock.Anything).Return(errors.Timeoutf("mqtt publish")).Once()
	tl, _ := newTestTele(t, tele_config.Config{Enabled: true}, trans)
	ctx := context.Background()

	tl.Error(errors.New("boom"))
	err := tl.Report(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(errors.Cause(err)))

	trans.On("Publish", DefaultClientId+"/status", mock.Anything).Return(nil).
		Run(func(args mock.Arguments) { got = args.Get(1).([]byte) }).Once()
	require.NoError(t, tl.Report(ctx))
	var s tele_api.Status
	require.NoError(t, json.Unmarshal(got, &s))
	assert.Equal(t, uint32(1), s.Errors)
	assert.Equal(t, "boom", s.LastError)
	trans.AssertExpectations(t)
}

func TestTeleInvalidTransport(t *testing.T) {
	t.Parallel()

	tl := New(nil, nil, nil)
	err := tl.Init(context.Background(), log2.NewTest(t, log2.LDebug), tele_config.Config{Enabled: true, Transport: "pigeon"})
	assert.True(t, errors.IsNotValid(errors.Cause(err)))

	tl = New(nil, nil, nil)
	err = tl.Init(context.Background(), log2.NewTest(t, log2.LDebug), tele_config.Config{Enabled: true, Transport: tele_config.TransportModem, MqttBroker: "tcp://h:1883"})
	assert.True(t, errors.IsNotValid(errors.Cause(err)))
}

func TestParseBroker(t *testing.T) {
	t.Parallel()

	cases := []struct {
		input string
		host  string
		port  int
		check func(error) bool
	}{
		{"tcp://broker.example.com:1884", "broker.example.com", 1884, nil},
		{"mqtt://broker.example.com", "broker.example.com", DefaultMqttPort, nil},
		{"broker.example.com:1885", "broker.example.com", 1885, nil},
		{"10.0.0.1:1883", "10.0.0.1", 1883, nil},
		{"localhost", "localhost", DefaultMqttPort, nil},
		{"ssl://broker.example.com:8883", "", 0, errors.IsNotSupported},
		{"", "", 0, errors.IsNotValid},
		{"tcp://h:99999", "", 0, errors.IsNotValid},
	}
	for _, c := range cases {
		c := c
		t.Run(c.input, func(t *testing.T) {
			host, port, err := ParseBroker(c.input)
			if c.check != nil {
				require.Error(t, err)
				assert.True(t, c.check(err), "err=%v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, c.host, host)
			assert.Equal(t, c.port, port)
		})
	}
}

func pubSteps(id int, topic, payload string) []modem.MockStep {
	return []modem.MockStep{
		modem.Cmd(fmt.Sprintf(`AT+QMTPUB=0,%d,1,1,"%s"`, id, topic), "\r\n> "),
		{Expect: payload + "\x1a", Reply: "\r\nOK\r\n", URC: fmt.Sprintf("\r\n+QMTPUB: 0,%d,0\r\n", id)},
	}
}

func TestModemTransport(t *testing.T) {
	t.Parallel()

	steps := []modem.MockStep{
		modem.Cmd("AT", "\r\nOK\r\n"),
		modem.Cmd("ATE0", "\r\nOK\r\n"),
		modem.Cmd("AT+CFUN=1", "\r\nOK\r\n"),
		modem.Cmd(`AT+QCFG="roamservice",2`, "\r\nOK\r\n"),
		modem.Cmd("AT+CPIN?", "\r\n+CPIN: READY\r\n\r\nOK\r\n"),
		modem.Cmd("AT+CREG?", "\r\n+CREG: 0,1\r\n\r\nOK\r\n"),
		modem.Cmd("AT+QIACT?", "\r\n+QIACT: 1,1,1,\"10.1.2.3\"\r\n\r\nOK\r\n"),
		{Expect: `AT+QMTOPEN=0,"broker.example.com",1883` + "\r\n", Reply: "\r\nOK\r\n", URC: "\r\n+QMTOPEN: 0,0\r\n", URCDelay: time.Second},
		{Expect: `AT+QMTCONN=0,"gt1"` + "\r\n", Reply: "\r\nOK\r\n", URC: "\r\n+QMTCONN: 0,0,0\r\n"},
	}
	steps = append(steps, pubSteps(1, "gt1/connect", "\x01")...)
	steps = append(steps, pubSteps(2, "gt1/status", "{}")...)
	steps = append(steps, pubSteps(3, "gt1/connect", "\x00")...)
	steps = append(steps,
		modem.Cmd("AT+QMTDISC=0", "\r\nOK\r\n"),
		modem.Cmd("AT+QMTCLOSE=0", "\r\nOK\r\n"),
	)
	m, port, _ := modem.NewTestModem(t, steps...)
	log := log2.NewTest(t, log2.LDebug)
	m.Log = log
	cell := cellular.NewClient(m, cellular_config.Config{Apn: "CMNET"}, log)

	trans := &transportModem{c: cell}
	require.NoError(t, trans.Init(context.Background(), log, tele_config.Config{ClientId: "gt1", MqttBroker: "broker.example.com"}, "gt1/connect"))
	require.NoError(t, trans.Publish(context.Background(), "gt1/status", []byte("{}")))
	trans.Close()
	port.ExpectationsWereMet()
}

func TestModemTransportReconnectBackoff(t *testing.T) {
	t.Parallel()

	steps := []modem.MockStep{
		modem.Cmd("AT", "\r\nOK\r\n"),
		modem.Cmd("ATE0", "\r\nOK\r\n"),
		modem.Cmd("AT+CFUN=1", "\r\nOK\r\n"),
		modem.Cmd(`AT+QCFG="roamservice",2`, "\r\nOK\r\n"),
		modem.Cmd("AT+CPIN?", "\r\n+CPIN: READY\r\n\r\nOK\r\n"),
		modem.Cmd("AT+CREG?", "\r\n+CREG: 0,1\r\n\r\nOK\r\n"),
		modem.Cmd("AT+QIACT?", "\r\n+QIACT: 1,1,1,\"10.1.2.3\"\r\n\r\nOK\r\n"),
		{Expect: `AT+QMTOPEN=0,"broker.example.com",1883` + "\r\n", Reply: "\r\nOK\r\n", URC: "\r\n+QMTOPEN: 0,3\r\n"},
		modem.Cmd("AT+QMTDISC=0", "\r\nERROR\r\n"),
		modem.Cmd("AT+QMTCLOSE=0", "\r\nOK\r\n"),
	}
	m, port, clock := modem.NewTestModem(t, steps...)
	log := log2.NewTest(t, log2.LDebug)
	m.Log = log
	cell := cellular.NewClient(m, cellular_config.Config{Apn: "CMNET"}, log)

	trans := &transportModem{c: cell, clock: clock}
	require.NoError(t, trans.Init(context.Background(), log, tele_config.Config{ClientId: "gt1", MqttBroker: "tcp://broker.example.com"}, "gt1/connect"))
	err := trans.Publish(context.Background(), "gt1/status", []byte("{}"))
	require.Error(t, err)
	assert.True(t, modem.IsProtocolError(err))
	// second attempt is postponed without modem traffic
	err = trans.Publish(context.Background(), "gt1/status", []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reconnect in")
	port.ExpectationsWereMet()
}
