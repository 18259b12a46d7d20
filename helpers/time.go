package helpers

import "time"

func IntSecondDefault(x int, def time.Duration) time.Duration {
	if x == 0 {
		return def
	}
	return time.Duration(x) * time.Second
}

func IntMillisecondDefault(x int, def time.Duration) time.Duration {
	if x == 0 {
		return def
	}
	return time.Duration(x) * time.Millisecond
}

// ISO8601 formats t in UTC with explicit +00:00 offset.
func ISO8601(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05") + "+00:00"
}
