package model

import "time"

// SystemSource marks records injected by moor itself (start/stop markers,
// operator annotations) rather than read from the compose log stream.
const SystemSource = "system"

// TimestampLayout is the wire format for record timestamps: UTC with
// microsecond precision and a trailing Z, matching docker compose -t output.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// LogRecord represents a single parsed compose log line.
type LogRecord struct {
	Source    string `json:"source"`    // originating sub-service (or "system")
	Timestamp string `json:"timestamp"` // verbatim timestamp token from the line
	Message   string `json:"message"`   // line content with the timestamp removed
}

// System builds a synthetic record attributed to the system source,
// timestamped with the current instant.
func System(message string) LogRecord {
	return LogRecord{
		Source:    SystemSource,
		Timestamp: time.Now().UTC().Format(TimestampLayout),
		Message:   message,
	}
}
