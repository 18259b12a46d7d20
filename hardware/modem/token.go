package modem

import (
	"bytes"
	"strings"
)

type Kind uint8

const (
	KindData Kind = iota
	KindOK
	KindError
	KindURC
	KindPrompt
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindOK:
		return "ok"
	case KindError:
		return "error"
	case KindURC:
		return "urc"
	case KindPrompt:
		return "prompt"
	}
	return "kind?"
}

type Token struct {
	Kind Kind
	Text string
}

func ClassifyLine(line string) Kind {
	switch {
	case line == "OK":
		return KindOK
	case line == "ERROR",
		strings.HasPrefix(line, "+CME ERROR"),
		strings.HasPrefix(line, "+CMS ERROR"):
		return KindError
	case line == ">" || line == "> ":
		return KindPrompt
	case strings.HasPrefix(line, "+") && strings.IndexByte(line, ':') > 0:
		return KindURC
	}
	return KindData
}

// Tokenize splits response into typed non-empty lines.
// Trailing "> " without newline is reported as prompt.
func Tokenize(b []byte) []Token {
	ts := make([]Token, 0, 4)
	for len(b) != 0 {
		var line []byte
		if i := bytes.IndexByte(b, '\n'); i >= 0 {
			line, b = b[:i], b[i+1:]
		} else {
			line, b = b, nil
		}
		s := strings.TrimRight(string(line), "\r")
		if strings.TrimSpace(s) == "" {
			continue
		}
		if s != "> " {
			s = strings.TrimSpace(s)
		}
		ts = append(ts, Token{Kind: ClassifyLine(s), Text: s})
	}
	return ts
}

// Field returns value after "prefix" in first line starting with it.
// Field("+CPIN: READY\r\nOK", "+CPIN:") -> "READY", true
func Field(response, prefix string) (string, bool) {
	for _, t := range Tokenize([]byte(response)) {
		if strings.HasPrefix(t.Text, prefix) {
			return strings.TrimSpace(t.Text[len(prefix):]), true
		}
	}
	return "", false
}

// Fields is Field split on commas with quotes removed.
func Fields(response, prefix string) ([]string, bool) {
	v, ok := Field(response, prefix)
	if !ok {
		return nil, false
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.Trim(strings.TrimSpace(p), `"`)
	}
	return parts, true
}
