package cellular

import (
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
)

var regCommands = []string{"AT+CREG?", "AT+CGREG?", "AT+CEREG?"}

// EnsureReady brings modem to state where PDP context is active.
// Success is cached for readyRefresh.
func (self *Client) EnsureReady() error {
	self.lk.Lock()
	defer self.lk.Unlock()
	return self.ensureReady()
}

// Invalidate forces full readiness check on next use.
func (self *Client) Invalidate() {
	self.lk.Lock()
	self.ready = false
	self.lk.Unlock()
}

func (self *Client) ensureReady() error {
	if self.apn == "" {
		return errors.NotValidf("cellular apn empty")
	}
	if self.ready && self.clock.Now().Sub(self.readyAt) < self.readyRefresh {
		return nil
	}
	self.ready = false

	if _, err := self.m.Command("AT", 2*time.Second); err != nil {
		return errors.Annotate(err, "cellular modem not responding")
	}
	if _, err := self.m.Command("ATE0", 2*time.Second); err != nil {
		self.Log.Debugf("cellular ATE0 err=%v", err)
	}
	if _, err := self.m.Command("AT+CFUN=1", 10*time.Second); err != nil {
		return errors.Annotate(err, "cellular CFUN=1")
	}
	if _, err := self.m.Command(`AT+QCFG="roamservice",2`, 5*time.Second); err != nil {
		self.Log.Debugf("cellular roamservice err=%v", err)
	}
	if err := self.waitSim(); err != nil {
		return errors.Trace(err)
	}
	if err := self.waitRegistration(); err != nil {
		return errors.Trace(err)
	}
	if !self.contextActive() {
		if err := self.activateContext(); err != nil {
			return errors.Trace(err)
		}
	}

	self.ready = true
	self.readyAt = self.clock.Now()
	self.Log.Infof("cellular context=%d ready", self.contextId)
	return nil
}

func (self *Client) waitSim() error {
	deadline := self.clock.Now().Add(self.simTimeout)
	for {
		resp, err := self.m.Command("AT+CPIN?", 2*time.Second)
		if err == nil && strings.Contains(resp, "READY") {
			return nil
		}
		if !self.clock.Now().Before(deadline) {
			return errors.Timeoutf("cellular SIM ready within %v", self.simTimeout)
		}
		self.clock.Sleep(time.Second)
	}
}

func registered(resp string) bool {
	return strings.Contains(resp, "0,1") || strings.Contains(resp, "0,5")
}

func (self *Client) waitRegistration() error {
	deadline := self.clock.Now().Add(self.attachTimeout)
	for {
		for _, cmd := range regCommands {
			resp, err := self.m.Command(cmd, 3*time.Second)
			if err == nil && registered(resp) {
				self.Log.Debugf("cellular attached via %s", cmd)
				return nil
			}
		}
		if !self.clock.Now().Before(deadline) {
			return errors.Timeoutf("cellular network registration within %v", self.attachTimeout)
		}
		self.clock.Sleep(self.regCheck)
	}
}

func (self *Client) contextActive() bool {
	resp, err := self.m.Command("AT+QIACT?", 5*time.Second)
	if err != nil {
		return false
	}
	return strings.Contains(resp, fmt.Sprintf("+QIACT: %d,", self.contextId))
}

func (self *Client) activateContext() error {
	cid := self.contextId
	if _, err := self.m.Command(fmt.Sprintf("AT+QIDEACT=%d", cid), 10*time.Second); err != nil {
		self.Log.Debugf("cellular QIDEACT err=%v", err)
	}
	if _, err := self.m.Command(fmt.Sprintf(`AT+CGDCONT=%d,"IP","%s"`, cid, self.apn), 5*time.Second); err != nil {
		return errors.Annotate(err, "cellular set PDP context")
	}
	cmd := fmt.Sprintf(`AT+QICSGP=%d,1,"%s","%s","%s",1`, cid, self.apn, self.apnUser, self.apnPassword)
	if _, err := self.m.Command(cmd, 5*time.Second); err != nil {
		return errors.Annotate(err, "cellular configure APN")
	}
	if _, err := self.m.Command(fmt.Sprintf("AT+QIACT=%d", cid), self.attachTimeout); err != nil {
		return errors.Annotate(err, "cellular activate PDP context")
	}
	if !self.contextActive() {
		return errors.Errorf("cellular context=%d not active after QIACT", cid)
	}
	return nil
}
