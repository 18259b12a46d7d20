package tele

import (
	"context"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/log2"
	tele_config "github.com/gogotrans/geotrack/tele/config"
	"github.com/juju/errors"
)

type transportMqtt struct {
	log     *log2.Log
	m       mqtt.Client
	mopt    *mqtt.ClientOptions
	timeout time.Duration

	mu           sync.Mutex
	connecting   bool
	reconnect    helpers.Backoff
	topicConnect string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, topicConnect string) error {
	self.log = log
	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log
	if teleConfig.LogDebug {
		mqtt.DEBUG = log
	}

	if _, err := url.ParseRequestURI(teleConfig.MqttBroker); err != nil {
		return errors.Annotatef(err, "tele mqtt_broker=%s", teleConfig.MqttBroker)
	}
	self.timeout = helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, DefaultNetworkTimeout)
	keepAlive := helpers.IntSecondDefault(teleConfig.KeepaliveSec, 60*time.Second)
	pingTimeout := helpers.IntSecondDefault(teleConfig.PingTimeoutSec, 30*time.Second)
	self.reconnect = helpers.Backoff{Min: self.timeout / 2, Max: 5 * time.Minute, K: 2, Res: time.Second}
	self.topicConnect = topicConnect

	self.mopt = mqtt.NewClientOptions().
		AddBroker(teleConfig.MqttBroker).
		SetBinaryWill(topicConnect, []byte{0x00}, 1, true).
		SetCleanSession(false).
		SetClientID(teleConfig.ClientId).
		SetUsername(teleConfig.MqttUsername).
		SetPassword(teleConfig.MqttPassword).
		SetKeepAlive(keepAlive).
		SetPingTimeout(pingTimeout).
		SetConnectTimeout(self.timeout).
		SetWriteTimeout(self.timeout).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(5 * time.Minute).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler)
	if teleConfig.StorePath != "" {
		self.mopt.SetStore(mqtt.NewFileStore(teleConfig.StorePath))
	}
	self.m = mqtt.NewClient(self.mopt)
	self.connect()
	return nil
}

// connect never blocks, first connect failure is retried from Publish.
func (self *transportMqtt) connect() {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.connecting || self.reconnect.DelayBefore() > 0 {
		return
	}
	self.connecting = true
	go func(t mqtt.Token) {
		t.Wait()
		err := t.Error()
		self.reconnect.Update(err == nil)
		if err != nil {
			self.log.Infof("mqtt connect err=%v", err)
		}
		self.mu.Lock()
		self.connecting = false
		self.mu.Unlock()
	}(self.m.Connect())
}

func (self *transportMqtt) Publish(ctx context.Context, topic string, payload []byte) error {
	if !self.m.IsConnected() {
		self.connect()
		return errors.Errorf("mqtt not connected")
	}
	token := self.m.Publish(topic, 1, true, payload)
	timeout := self.timeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		return errors.Timeoutf("mqtt publish topic=%s", topic)
	}
	return errors.Annotatef(token.Error(), "mqtt publish topic=%s", topic)
}

func (self *transportMqtt) Close() {
	if self.m == nil || !self.m.IsConnected() {
		return
	}
	self.log.Infof("mqtt disconnect")
	self.m.Publish(self.topicConnect, 1, true, []byte{0x00}).WaitTimeout(time.Second)
	self.m.Disconnect(250)
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("mqtt connection lost err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("mqtt connect")
	c.Publish(self.topicConnect, 1, true, []byte{0x01})
}
