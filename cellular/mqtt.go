package cellular

import (
	"fmt"

	"github.com/gogotrans/geotrack/hardware/modem"
	"github.com/juju/errors"
)

type MQTTConfig struct {
	Host     string
	Port     int
	ClientId string
	Username string
	Password string
}

// MQTTConnect opens modem MQTT client 0 and connects it.
func (self *Client) MQTTConnect(c MQTTConfig) error {
	self.lk.Lock()
	defer self.lk.Unlock()
	if err := self.ensureReady(); err != nil {
		return errors.Annotate(err, "cellular mqtt")
	}
	cmd := fmt.Sprintf(`AT+QMTOPEN=0,"%s",%d`, c.Host, c.Port)
	if resp, ok := self.m.Send(cmd, "+QMTOPEN: 0,0", self.attachTimeout); !ok {
		return modem.ProtocolError{Command: cmd, Response: resp}
	}
	cmd = fmt.Sprintf(`AT+QMTCONN=0,"%s"`, c.ClientId)
	if c.Username != "" {
		cmd += fmt.Sprintf(`,"%s","%s"`, c.Username, c.Password)
	}
	if resp, ok := self.m.Send(cmd, "+QMTCONN: 0,0,0", self.socketTimeout); !ok {
		return modem.ProtocolError{Command: cmd, Response: resp}
	}
	return nil
}

func (self *Client) MQTTPublish(topic string, payload []byte, qos int, retain bool) error {
	self.lk.Lock()
	defer self.lk.Unlock()
	msgId := 0
	if qos > 0 {
		self.msgId++
		if self.msgId == 0 {
			self.msgId = 1
		}
		msgId = int(self.msgId)
	}
	r := 0
	if retain {
		r = 1
	}
	cmd := fmt.Sprintf(`AT+QMTPUB=0,%d,%d,%d,"%s"`, msgId, qos, r, topic)
	if resp, ok := self.m.Send(cmd, ">", modem.DefaultCommandTimeout*5); !ok {
		return modem.ProtocolError{Command: cmd, Response: resp}
	}
	b := make([]byte, 0, len(payload)+1)
	b = append(b, payload...)
	b = append(b, modem.CtrlZ)
	if err := self.m.WriteRaw(b); err != nil {
		return errors.Trace(err)
	}
	expect := fmt.Sprintf("+QMTPUB: 0,%d,0", msgId)
	if resp, ok := self.m.WaitFor(expect, self.socketTimeout); !ok {
		return modem.ProtocolError{Command: cmd, Response: resp}
	}
	return nil
}

func (self *Client) MQTTDisconnect() {
	self.lk.Lock()
	defer self.lk.Unlock()
	for _, cmd := range []string{"AT+QMTDISC=0", "AT+QMTCLOSE=0"} {
		if _, err := self.m.Command(cmd, modem.DefaultCommandTimeout*5); err != nil {
			self.Log.Debugf("cellular %s err=%v", cmd, err)
		}
	}
}
