package modem

import (
	"time"

	"github.com/gogotrans/geotrack/helpers"
	"github.com/juju/errors"
	gpio "github.com/temoto/gpio-cdev-go"
)

// Power drives modem enable line. nil *Power is valid no-op.
type Power struct {
	chip  gpio.Chiper
	lines gpio.Lineser
	set   gpio.LineSetFunc
}

func OpenPower(chipPath string, pin uint32) (*Power, error) {
	chip, err := gpio.Open(chipPath, "geotrack")
	if err != nil {
		return nil, errors.Annotatef(err, "modem power chip=%s", chipPath)
	}
	lines, err := chip.OpenLines(gpio.GPIOHANDLE_REQUEST_OUTPUT, "modem-power", pin)
	if err != nil {
		_ = chip.Close()
		return nil, errors.Annotatef(err, "modem power chip=%s pin=%d", chipPath, pin)
	}
	return &Power{chip: chip, lines: lines, set: lines.SetFunc(pin)}, nil
}

func (self *Power) Set(on bool) error {
	if self == nil {
		return nil
	}
	var v byte
	if on {
		v = 1
	}
	self.set(v)
	return errors.Annotate(self.lines.Flush(), "modem power flush")
}

// Cycle holds line low for off, then raises it and waits boot.
func (self *Power) Cycle(clock helpers.Clock, off, boot time.Duration) error {
	if self == nil {
		return nil
	}
	if err := self.Set(false); err != nil {
		return err
	}
	clock.Sleep(off)
	if err := self.Set(true); err != nil {
		return err
	}
	clock.Sleep(boot)
	return nil
}

func (self *Power) Close() error {
	if self == nil {
		return nil
	}
	errs := []error{self.lines.Close(), self.chip.Close()}
	return helpers.FoldErrors(errs)
}
