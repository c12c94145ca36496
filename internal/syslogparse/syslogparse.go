// Package syslogparse parses syslog messages in RFC 3164 (BSD) and RFC 5424
// (IETF) formats, auto-detecting which is in use. Shared by the UDP/TCP
// listener and the RELP listener so both produce identical metadata for the
// same wire bytes.
package syslogparse

import (
	"strconv"
	"time"
)

// Parsed holds the metadata extracted from a single syslog message,
// ready to become a logentry.LogEntry's Metadata plus derived timestamp.
type Parsed struct {
	Attrs    map[string]string
	SourceTS time.Time
}

// Parse extracts structured attributes from a raw syslog message and
// returns the source timestamp it carried, or a zero Time if unparseable.
// remoteIP, when non-empty, is recorded as an attribute.
func Parse(data []byte, remoteIP string) Parsed {
	attrs := make(map[string]string, 8)
	if remoteIP != "" {
		attrs["remote_ip"] = remoteIP
	}

	var sourceTS time.Time
	if len(data) > 0 && data[0] == '<' {
		pri, rest, ok := parsePriority(data)
		if ok {
			facility := pri / 8
			severity := pri % 8
			attrs["facility"] = strconv.Itoa(facility)
			attrs["severity"] = strconv.Itoa(severity)
			attrs["facility_name"] = facilityName(facility)
			attrs["severity_name"] = severityName(severity)
			data = rest
		}
	}

	if len(data) > 2 && data[0] >= '1' && data[0] <= '9' && data[1] == ' ' {
		sourceTS = parseRFC5424(data, attrs)
	} else {
		sourceTS = parseRFC3164(data, attrs)
	}

	return Parsed{Attrs: attrs, SourceTS: sourceTS}
}

// SeverityLevel maps a syslog severity (0-7, per RFC 5424 table 2) to a
// normalized logentry.Level string; callers pass the result to
// logentry.NormalizeLevel.
func SeverityLevel(severity int) string {
	switch severity {
	case 0, 1, 2, 3:
		return "ERROR"
	case 4:
		return "WARN"
	case 5, 6:
		return "INFO"
	case 7:
		return "DEBUG"
	default:
		return ""
	}
}

func parsePriority(data []byte) (int, []byte, bool) {
	if len(data) < 3 || data[0] != '<' {
		return 0, data, false
	}
	end := 1
	for end < len(data) && end < 5 && data[end] != '>' {
		end++
	}
	if end >= len(data) || data[end] != '>' {
		return 0, data, false
	}
	pri, err := strconv.Atoi(string(data[1:end]))
	if err != nil || pri < 0 || pri > 191 {
		return 0, data, false
	}
	return pri, data[end+1:], true
}

// parseRFC3164 parses "MMM DD HH:MM:SS HOSTNAME TAG[PID]: MESSAGE". RFC 3164
// timestamps carry no year; the current year is assumed, rolling back one
// year if that would put the timestamp more than a day in the future
// (handles messages received just after a year boundary).
func parseRFC3164(data []byte, attrs map[string]string) time.Time {
	var sourceTS time.Time
	if len(data) < 15 {
		return sourceTS
	}

	tsStr := string(data[:15])
	now := time.Now()
	if ts, err := time.Parse("Jan  2 15:04:05", tsStr); err == nil {
		sourceTS = ts.AddDate(now.Year(), 0, 0)
		if sourceTS.After(now.Add(24 * time.Hour)) {
			sourceTS = sourceTS.AddDate(-1, 0, 0)
		}
	} else if ts, err := time.Parse("Jan 02 15:04:05", tsStr); err == nil {
		sourceTS = ts.AddDate(now.Year(), 0, 0)
		if sourceTS.After(now.Add(24 * time.Hour)) {
			sourceTS = sourceTS.AddDate(-1, 0, 0)
		}
	}

	pos := 15
	for pos < len(data) && data[pos] == ' ' {
		pos++
	}

	start := pos
	for pos < len(data) && data[pos] != ' ' && data[pos] != ':' {
		pos++
	}
	if pos > start {
		if hostname := string(data[start:pos]); len(hostname) <= 64 {
			attrs["hostname"] = hostname
		}
	}

	for pos < len(data) && data[pos] == ' ' {
		pos++
	}

	start = pos
	for pos < len(data) && data[pos] != ':' && data[pos] != '[' && data[pos] != ' ' {
		pos++
	}
	if pos > start {
		if tag := string(data[start:pos]); len(tag) <= 64 {
			attrs["app_name"] = tag
		}
	}

	if pos < len(data) && data[pos] == '[' {
		pos++
		pidStart := pos
		for pos < len(data) && data[pos] != ']' {
			pos++
		}
		if pos > pidStart && pos < len(data) {
			if pid := string(data[pidStart:pos]); len(pid) <= 16 {
				attrs["proc_id"] = pid
			}
		}
	}

	return sourceTS
}

// parseRFC5424 parses "VERSION TIMESTAMP HOSTNAME APP-NAME PROCID MSGID
// [STRUCTURED-DATA] MESSAGE". Structured data is left in the message body
// rather than parsed into attrs, since its keys are sender-controlled and
// could otherwise collide with field registry names.
func parseRFC5424(data []byte, attrs map[string]string) time.Time {
	var sourceTS time.Time
	fields := splitFields(data, 7)
	if len(fields) < 1 {
		return sourceTS
	}

	attrs["version"] = string(fields[0])

	if len(fields) > 1 && string(fields[1]) != "-" {
		tsStr := string(fields[1])
		if ts, err := time.Parse(time.RFC3339Nano, tsStr); err == nil {
			sourceTS = ts
		} else if ts, err := time.Parse(time.RFC3339, tsStr); err == nil {
			sourceTS = ts
		}
	}
	if len(fields) > 2 && string(fields[2]) != "-" && len(fields[2]) <= 64 {
		attrs["hostname"] = string(fields[2])
	}
	if len(fields) > 3 && string(fields[3]) != "-" && len(fields[3]) <= 64 {
		attrs["app_name"] = string(fields[3])
	}
	if len(fields) > 4 && string(fields[4]) != "-" && len(fields[4]) <= 16 {
		attrs["proc_id"] = string(fields[4])
	}
	if len(fields) > 5 && string(fields[5]) != "-" && len(fields[5]) <= 64 {
		attrs["msg_id"] = string(fields[5])
	}

	return sourceTS
}

func splitFields(data []byte, n int) [][]byte {
	var fields [][]byte
	pos := 0
	for len(fields) < n && pos < len(data) {
		for pos < len(data) && data[pos] == ' ' {
			pos++
		}
		if pos >= len(data) {
			break
		}
		start := pos
		if len(fields) == n-1 {
			fields = append(fields, data[start:])
			break
		}
		for pos < len(data) && data[pos] != ' ' {
			pos++
		}
		fields = append(fields, data[start:pos])
	}
	return fields
}

func facilityName(f int) string {
	names := []string{
		"kern", "user", "mail", "daemon", "auth", "syslog", "lpr", "news",
		"uucp", "cron", "authpriv", "ftp", "ntp", "audit", "alert", "clock",
		"local0", "local1", "local2", "local3", "local4", "local5", "local6", "local7",
	}
	if f >= 0 && f < len(names) {
		return names[f]
	}
	return "unknown"
}

func severityName(s int) string {
	names := []string{
		"emerg", "alert", "crit", "err", "warning", "notice", "info", "debug",
	}
	if s >= 0 && s < len(names) {
		return names[s]
	}
	return "unknown"
}
