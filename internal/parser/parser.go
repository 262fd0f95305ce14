package parser

import (
	"regexp"
	"strings"

	"github.com/atikulmunna/moor/internal/model"
)

// timestampRe matches the timestamp token docker compose emits with -t:
// YYYY-MM-DDTHH:MM:SS.ffffffZ. The token is matched by shape only; a
// malformed-but-matching timestamp passes through verbatim.
var timestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d+Z`)

// Parse converts one raw compose log line of the form
//
//	<sub-service> | <timestamp> <message>
//
// into a LogRecord. The second return value is false when the line does not
// match the grammar: no pipe separator, empty source, missing timestamp
// token, or empty message after the timestamp is removed. Such lines produce
// no record at all.
func Parse(raw string) (model.LogRecord, bool) {
	source, rest, found := strings.Cut(raw, "|")
	if !found {
		return model.LogRecord{}, false
	}

	source = strings.TrimSpace(source)
	if source == "" {
		return model.LogRecord{}, false
	}

	rest = strings.TrimLeft(rest, " ")
	timestamp := timestampRe.FindString(rest)
	if timestamp == "" {
		return model.LogRecord{}, false
	}

	// Remove the timestamp token once; everything left is the message.
	message := strings.TrimSpace(strings.Replace(rest, timestamp, "", 1))
	if message == "" {
		return model.LogRecord{}, false
	}

	return model.LogRecord{
		Source:    source,
		Timestamp: timestamp,
		Message:   message,
	}, true
}

// ParseLines applies Parse to each line of a larger blob (e.g. the output of
// a one-shot `docker compose logs` call), dropping lines that do not match
// and preserving input order.
func ParseLines(blob string) []model.LogRecord {
	var records []model.LogRecord
	for _, line := range strings.Split(blob, "\n") {
		if rec, ok := Parse(strings.TrimRight(line, "\r")); ok {
			records = append(records, rec)
		}
	}
	return records
}
