package syslogparse

import "testing"

func TestParseRFC3164ExtractsHostnameAndTag(t *testing.T) {
	msg := []byte("<34>Oct 11 22:14:15 myhost sshd[1234]: auth failure")
	p := Parse(msg, "10.0.0.1")

	if p.Attrs["hostname"] != "myhost" {
		t.Errorf("hostname = %q, want myhost", p.Attrs["hostname"])
	}
	if p.Attrs["app_name"] != "sshd" {
		t.Errorf("app_name = %q, want sshd", p.Attrs["app_name"])
	}
	if p.Attrs["proc_id"] != "1234" {
		t.Errorf("proc_id = %q, want 1234", p.Attrs["proc_id"])
	}
	if p.Attrs["facility"] != "4" || p.Attrs["severity"] != "2" {
		t.Errorf("facility/severity = %s/%s, want 4/2", p.Attrs["facility"], p.Attrs["severity"])
	}
	if p.Attrs["remote_ip"] != "10.0.0.1" {
		t.Errorf("remote_ip = %q, want 10.0.0.1", p.Attrs["remote_ip"])
	}
	if p.SourceTS.IsZero() {
		t.Error("expected a parsed timestamp")
	}
}

func TestParseRFC5424ExtractsFields(t *testing.T) {
	msg := []byte("<165>1 2003-10-11T22:14:15.003Z mymachine.example.com evntslog - ID47 - An application event log entry")
	p := Parse(msg, "")

	if p.Attrs["hostname"] != "mymachine.example.com" {
		t.Errorf("hostname = %q", p.Attrs["hostname"])
	}
	if p.Attrs["app_name"] != "evntslog" {
		t.Errorf("app_name = %q", p.Attrs["app_name"])
	}
	if p.Attrs["msg_id"] != "ID47" {
		t.Errorf("msg_id = %q", p.Attrs["msg_id"])
	}
	if p.SourceTS.IsZero() {
		t.Fatal("expected a parsed timestamp")
	}
	if p.SourceTS.Year() != 2003 {
		t.Errorf("year = %d, want 2003", p.SourceTS.Year())
	}
}

func TestParseWithoutPriorityStillExtractsNothingFatal(t *testing.T) {
	p := Parse([]byte("not a syslog line at all"), "")
	if p.SourceTS.IsZero() == false {
		t.Error("expected zero timestamp for unrecognized input")
	}
}

func TestSeverityLevelMapsToLevelNames(t *testing.T) {
	cases := map[int]string{0: "ERROR", 3: "ERROR", 4: "WARN", 5: "INFO", 6: "INFO", 7: "DEBUG", 99: ""}
	for sev, want := range cases {
		if got := SeverityLevel(sev); got != want {
			t.Errorf("SeverityLevel(%d) = %q, want %q", sev, got, want)
		}
	}
}
