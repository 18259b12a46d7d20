package tele

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gogotrans/geotrack/cellular"
	"github.com/gogotrans/geotrack/helpers"
	"github.com/gogotrans/geotrack/log2"
	tele_config "github.com/gogotrans/geotrack/tele/config"
	"github.com/juju/errors"
)

const DefaultMqttPort = 1883

// transportModem publishes through modem MQTT client, used when there is no local network.
type transportModem struct {
	log          *log2.Log
	c            *cellular.Client
	clock        helpers.Clock
	mc           cellular.MQTTConfig
	topicConnect string

	mu        sync.Mutex
	connected bool
	reconnect helpers.Backoff
}

// ParseBroker accepts tcp://host:port, mqtt://host or bare host:port.
func ParseBroker(s string) (string, int, error) {
	if s == "" {
		return "", 0, errors.NotValidf("mqtt broker empty")
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		if u, err = url.Parse("tcp://" + s); err != nil {
			return "", 0, errors.NotValidf("mqtt broker=%s", s)
		}
	}
	switch u.Scheme {
	case "tcp", "mqtt":
	default:
		return "", 0, errors.NotSupportedf("mqtt broker scheme=%s", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", 0, errors.NotValidf("mqtt broker=%s", s)
	}
	port := DefaultMqttPort
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil || port <= 0 || port > 65535 {
			return "", 0, errors.NotValidf("mqtt broker port=%s", p)
		}
	}
	return host, port, nil
}

func (self *transportModem) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, topicConnect string) error {
	self.log = log
	if self.c == nil {
		return errors.NotValidf("tele modem transport without cellular client")
	}
	host, port, err := ParseBroker(teleConfig.MqttBroker)
	if err != nil {
		return errors.Annotate(err, "tele")
	}
	self.mc = cellular.MQTTConfig{
		Host:     host,
		Port:     port,
		ClientId: teleConfig.ClientId,
		Username: teleConfig.MqttUsername,
		Password: teleConfig.MqttPassword,
	}
	self.topicConnect = topicConnect
	min := helpers.IntSecondDefault(teleConfig.NetworkTimeoutSec, DefaultNetworkTimeout)
	self.reconnect = helpers.Backoff{Min: min, Max: 10 * time.Minute, K: 2, Res: time.Second, Clock: self.clock}
	return nil
}

func (self *transportModem) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Trace(err)
	}
	self.mu.Lock()
	defer self.mu.Unlock()
	if !self.connected {
		if d := self.reconnect.DelayBefore(); d > 0 {
			return errors.Errorf("modem mqtt reconnect in %v", d)
		}
		err := self.c.MQTTConnect(self.mc)
		self.reconnect.Update(err == nil)
		if err != nil {
			self.c.MQTTDisconnect()
			return errors.Annotate(err, "modem mqtt connect")
		}
		self.connected = true
		if err := self.c.MQTTPublish(self.topicConnect, []byte{0x01}, 1, true); err != nil {
			self.log.Debugf("modem mqtt connect flag err=%v", err)
		}
	}
	if err := self.c.MQTTPublish(topic, payload, 1, true); err != nil {
		self.connected = false
		self.c.MQTTDisconnect()
		return errors.Annotatef(err, "modem mqtt publish topic=%s", topic)
	}
	return nil
}

func (self *transportModem) Close() {
	self.mu.Lock()
	defer self.mu.Unlock()
	if !self.connected {
		return
	}
	if err := self.c.MQTTPublish(self.topicConnect, []byte{0x00}, 1, true); err != nil {
		self.log.Debugf("modem mqtt disconnect flag err=%v", err)
	}
	self.c.MQTTDisconnect()
	self.connected = false
}
