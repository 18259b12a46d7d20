package cellular

import (
	"fmt"
	"time"

	"github.com/gogotrans/geotrack/hardware/modem"
	"github.com/gogotrans/geotrack/log2"
	"github.com/juju/errors"
	"github.com/looplab/fsm"
)

const (
	StateClosed    = "closed"
	StateOpening   = "opening"
	StateOpen      = "open"
	StateSending   = "sending"
	StateReceiving = "receiving"
	StateClosing   = "closing"
)

const (
	evOpen     = "open"
	evOpened   = "opened"
	evFail     = "fail"
	evSend     = "send"
	evSent     = "sent"
	evRecv     = "recv"
	evReceived = "received"
	evClose    = "close"
	evClosed   = "closed"
)

const (
	sendPromptTimeout = 5 * time.Second
	closeTimeout      = 5 * time.Second
	closeURCTimeout   = 2 * time.Second
)

// Socket is single TCP connection through AT+QI* commands.
// Every event changes state, so fsm never reports NoTransitionError.
type Socket struct {
	log       *log2.Log
	m         *modem.Modem
	fsm       *fsm.FSM
	contextId int
	id        int
	chunk     int
	attempts  int
	timeout   time.Duration
}

func NewSocket(m *modem.Modem, contextId, id, chunk, attempts int, timeout time.Duration, log *log2.Log) *Socket {
	self := &Socket{
		log:       log,
		m:         m,
		contextId: contextId,
		id:        id,
		chunk:     chunk,
		attempts:  attempts,
		timeout:   timeout,
	}
	self.fsm = fsm.NewFSM(
		StateClosed,
		fsm.Events{
			{Name: evOpen, Src: []string{StateClosed}, Dst: StateOpening},
			{Name: evOpened, Src: []string{StateOpening}, Dst: StateOpen},
			{Name: evFail, Src: []string{StateOpening}, Dst: StateClosed},
			{Name: evSend, Src: []string{StateOpen}, Dst: StateSending},
			{Name: evSent, Src: []string{StateSending}, Dst: StateOpen},
			{Name: evRecv, Src: []string{StateOpen}, Dst: StateReceiving},
			{Name: evReceived, Src: []string{StateReceiving}, Dst: StateOpen},
			{Name: evClose, Src: []string{StateOpening, StateOpen, StateSending, StateReceiving}, Dst: StateClosing},
			{Name: evClosed, Src: []string{StateClosing}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				self.log.Debugf("socket=%d %s -> %s", self.id, e.Src, e.Dst)
			},
		},
	)
	return self
}

func (self *Socket) State() string { return self.fsm.Current() }

func (self *Socket) event(name string) error {
	return errors.Annotatef(self.fsm.Event(name), "socket=%d event=%s", self.id, name)
}

// Open tears down previous session first.
func (self *Socket) Open(host string, port int) error {
	if !self.fsm.Is(StateClosed) {
		self.Close()
	}
	if err := self.event(evOpen); err != nil {
		return err
	}
	cmd := fmt.Sprintf(`AT+QIOPEN=%d,%d,"TCP","%s",%d,0,1`, self.contextId, self.id, host, port)
	if _, err := self.m.Command(cmd, self.timeout); err != nil {
		_ = self.event(evFail)
		return errors.Annotatef(err, "socket open %s:%d", host, port)
	}
	// +QIOPEN: <id>,<err> where err=0 is success
	tag := fmt.Sprintf("+QIOPEN: %d,", self.id)
	resp, ok, err := self.m.WaitMatch(self.timeout, lineAfter(tag))
	if err != nil {
		_ = self.event(evFail)
		return errors.Annotatef(err, "socket open %s:%d", host, port)
	}
	if code, _ := modem.Field(resp, tag); !ok || code != "0" {
		_ = self.event(evFail)
		return modem.ProtocolError{Command: cmd, Response: resp}
	}
	return self.event(evOpened)
}

// Send waits for prompt, writes payload with Ctrl-Z, waits for SEND OK.
func (self *Socket) Send(payload []byte) error {
	if !self.fsm.Is(StateOpen) {
		return errors.Errorf("socket=%d send in state=%s", self.id, self.State())
	}
	if err := self.event(evSend); err != nil {
		return err
	}
	err := self.send(payload)
	if e := self.event(evSent); err == nil {
		err = e
	}
	return err
}

func (self *Socket) send(payload []byte) error {
	cmd := fmt.Sprintf("AT+QISEND=%d", self.id)
	if resp, ok := self.m.Send(cmd, ">", sendPromptTimeout); !ok {
		return modem.ProtocolError{Command: cmd, Response: resp}
	}
	b := make([]byte, 0, len(payload)+1)
	b = append(b, payload...)
	b = append(b, modem.CtrlZ)
	if err := self.m.WriteRaw(b); err != nil {
		return errors.Annotatef(err, "socket=%d write payload", self.id)
	}
	if resp, ok := self.m.WaitFor("SEND OK", self.timeout); !ok {
		return modem.ProtocolError{Command: cmd, Response: resp}
	}
	return nil
}

// Receive waits for data notification, then drains chunks.
func (self *Socket) Receive() ([]byte, error) {
	if !self.fsm.Is(StateOpen) {
		return nil, errors.Errorf("socket=%d receive in state=%s", self.id, self.State())
	}
	if err := self.event(evRecv); err != nil {
		return nil, err
	}
	data, err := self.receive()
	if e := self.event(evReceived); err == nil {
		err = e
	}
	return data, err
}

func (self *Socket) receive() ([]byte, error) {
	urc := fmt.Sprintf(`+QIURC: "recv",%d`, self.id)
	if _, ok := self.m.WaitFor(urc, self.timeout); !ok {
		// data may be buffered in modem anyway
		self.log.Infof("socket=%d no recv notification within %v", self.id, self.timeout)
	}
	data, err := readChunks(self.m, self.id, self.chunk, self.attempts, self.timeout)
	if err != nil {
		return data, err
	}
	if len(data) == 0 {
		return nil, modem.ProtocolError{Command: fmt.Sprintf("AT+QIRD=%d,%d", self.id, self.chunk), Response: ""}
	}
	return data, nil
}

// Close is safe in any state.
func (self *Socket) Close() {
	if self.fsm.Is(StateClosed) {
		return
	}
	if err := self.event(evClose); err != nil {
		self.log.Error(err)
		return
	}
	cmd := fmt.Sprintf("AT+QICLOSE=%d", self.id)
	if _, err := self.m.Command(cmd, closeTimeout); err != nil {
		self.log.Debugf("socket=%d close err=%v", self.id, err)
	}
	self.m.WaitFor(fmt.Sprintf(`+QIURC: "closed",%d`, self.id), closeURCTimeout)
	if err := self.event(evClosed); err != nil {
		self.log.Error(err)
	}
}
