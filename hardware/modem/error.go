package modem

import (
	"fmt"

	"github.com/juju/errors"
)

// ProtocolError is ERROR result or missing expected result code.
type ProtocolError struct {
	Command  string
	Response string
}

func (self ProtocolError) Error() string {
	return fmt.Sprintf("modem protocol command=%q response=%q", self.Command, self.Response)
}

func IsProtocolError(err error) bool {
	_, ok := errors.Cause(err).(ProtocolError)
	return ok
}

// ErrorCode extracts numeric suffix of "+CME ERROR: 516", or -1.
func ErrorCode(err error) int {
	pe, ok := errors.Cause(err).(ProtocolError)
	if !ok {
		return -1
	}
	for _, t := range Tokenize([]byte(pe.Response)) {
		if t.Kind != KindError {
			continue
		}
		var code int
		if _, e := fmt.Sscanf(t.Text, "+CME ERROR: %d", &code); e == nil {
			return code
		}
		if _, e := fmt.Sscanf(t.Text, "+CMS ERROR: %d", &code); e == nil {
			return code
		}
	}
	return -1
}
