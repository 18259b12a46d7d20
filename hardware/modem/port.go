package modem

import (
	"time"

	"github.com/juju/errors"
	"github.com/tarm/serial"
)

func OpenSerial(path string, baud int, readTimeout time.Duration) (Porter, error) {
	if baud == 0 {
		baud = 115200
	}
	if readTimeout == 0 {
		readTimeout = 50 * time.Millisecond
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        path,
		Baud:        baud,
		ReadTimeout: readTimeout,
	})
	if err != nil {
		return nil, errors.Annotatef(err, "modem serial open path=%s baud=%d", path, baud)
	}
	return p, nil
}
