package parsers

import (
	"strings"
	"testing"
	"time"
)

// jobEndLine builds a full width job end record. overrides maps token
// positions to replacement values.
func jobEndLine(overrides map[int]string) string {
	tok := make([]string, minRecordTokens)
	for i := range tok {
		tok[i] = "-"
	}
	defaults := map[int]string{
		0:              "10:00:00",
		idxEventStamp:  "1000000000:4242",
		idxRecordType:  "job",
		idxJobID:       "J1",
		idxSubType:     "JOBEND",
		idxNodes:       "2",
		idxCPUs:        "4",
		idxUser:        "alice",
		idxGroup:       "groupA",
		idxReqWall:     "7200",
		idxQueue:       "[sstar:1]",
		idxSubmit:      "999990000",
		idxStart:       "999996400",
		idxEnd:         "1000000000",
		idxFeatures:    "gpu",
		idxQOS:         "normal:high",
		idxAccount:     "projA",
		idxPartition:   "skylake",
		idxMemory:      "4096M",
		idxReservation: "-",
		idxEligible:    "999991000",
	}
	for k, v := range defaults {
		tok[k] = v
	}
	for k, v := range overrides {
		tok[k] = v
	}
	return strings.Join(tok, " ")
}

func TestParseEventLine_Accepted(t *testing.T) {
	got := ParseEventLine(jobEndLine(nil))
	if got.Outcome != OutcomeAccepted {
		t.Fatalf("outcome = %v (%s), want accepted", got.Outcome, got.Detail)
	}
	ev := got.Event
	if ev.EventID != "4242" || ev.JobID != "J1" || ev.EventType != "JOBEND" {
		t.Errorf("ids = %q/%q/%q", ev.EventID, ev.JobID, ev.EventType)
	}
	if !ev.EventTime.Equal(time.Unix(1000000000, 0)) {
		t.Errorf("event time = %v", ev.EventTime)
	}
	if ev.Nodes != 2 || ev.CPUs != 4 || ev.ReqWall != 7200 || ev.MemoryMB != 4096 {
		t.Errorf("numbers = %d/%d/%d/%d", ev.Nodes, ev.CPUs, ev.ReqWall, ev.MemoryMB)
	}
	if ev.User != "alice" || ev.Group != "groupA" || ev.Account != "projA" || ev.Partition != "skylake" {
		t.Errorf("identity = %+v", ev)
	}
	if ev.Queue != "sstar" {
		t.Errorf("queue = %q, want sstar", ev.Queue)
	}
	if ev.QOSRequested != "normal" || ev.QOSDelivered != "high" {
		t.Errorf("qos = %q:%q", ev.QOSRequested, ev.QOSDelivered)
	}
	if ev.Features != "gpu" || ev.Reservation != "" {
		t.Errorf("features/rsv = %q/%q", ev.Features, ev.Reservation)
	}
	if ev.ServiceUnits != 4.0 {
		t.Errorf("service units = %v, want 4", ev.ServiceUnits)
	}
}

func TestParseEventLine_ServiceUnitsFromPositionalFields(t *testing.T) {
	// Positions beyond the type checks are taken as given, including a
	// non-numeric requested walltime.
	line := jobEndLine(map[int]string{
		0:             "x",
		idxEventStamp: "1000000000",
		idxUser:       "alice",
		idxGroup:      "groupA",
		idxReqWall:    "projA",
		idxStart:      "1000000000",
		idxEnd:        "1000003600",
		idxCPUs:       "4",
	})
	got := ParseEventLine(line)
	if got.Outcome != OutcomeAccepted {
		t.Fatalf("outcome = %v (%s), want accepted", got.Outcome, got.Detail)
	}
	if got.Event.ServiceUnits != 4.0 {
		t.Fatalf("service units = %v, want 4.0", got.Event.ServiceUnits)
	}
	if got.Event.EventID != "J1@1000000000" {
		t.Errorf("event id = %q, want J1@1000000000", got.Event.EventID)
	}
	if got.Event.ReqWall != 0 {
		t.Errorf("reqwall = %d, want 0", got.Event.ReqWall)
	}
}

func TestParseEventLine_Rejections(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Outcome
	}{
		{"empty", "", OutcomeNotJob},
		{"node record", jobEndLine(map[int]string{idxRecordType: "node"}), OutcomeNotJob},
		{"scheduler record", "10:00:00 1000000000:1 scheduler SCHEDSTART", OutcomeNotJob},
		{"job start", jobEndLine(map[int]string{idxSubType: "JOBSTART"}), OutcomeNotTerminal},
		{"job cancel", jobEndLine(map[int]string{idxSubType: "JOBCANCEL"}), OutcomeNotTerminal},
		{"job without sub-type", "x 1000000000 job J1", OutcomeNotTerminal},
		{"short job end", "x 1000000000 job J1 JOBEND 2 4 alice groupA projA", OutcomeMalformed},
		{"bad cpus", jobEndLine(map[int]string{idxCPUs: "four"}), OutcomeMalformed},
		{"negative nodes", jobEndLine(map[int]string{idxNodes: "-2"}), OutcomeMalformed},
		{"bad end", jobEndLine(map[int]string{idxEnd: "soon"}), OutcomeMalformed},
		{"bad event time", jobEndLine(map[int]string{idxEventStamp: "abc:1"}), OutcomeMalformed},
		{"blank job id", jobEndLine(map[int]string{idxJobID: "-"}), OutcomeMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseEventLine(tt.line)
			if got.Outcome != tt.want {
				t.Fatalf("outcome = %v, want %v", got.Outcome, tt.want)
			}
			if got.Event.EventID != "" {
				t.Fatalf("rejected line produced event %+v", got.Event)
			}
		})
	}
}

func TestParseEventLine_NonTerminalNeverAccepted(t *testing.T) {
	for _, sub := range []string{"JOBSTART", "JOBSUBMIT", "JOBHOLD", "jobend", ""} {
		for _, rec := range []string{"job", "rsv", "node", "JOB"} {
			over := map[int]string{idxSubType: sub, idxRecordType: rec}
			if sub == "" {
				over[idxSubType] = "-"
			}
			if got := ParseEventLine(jobEndLine(over)); got.Outcome == OutcomeAccepted {
				t.Fatalf("record %q sub-type %q was accepted", rec, sub)
			}
		}
	}
	for _, rec := range []string{"rsv", "node", "JOB", "jobs"} {
		if got := ParseEventLine(jobEndLine(map[int]string{idxRecordType: rec})); got.Outcome == OutcomeAccepted {
			t.Fatalf("record type %q was accepted", rec)
		}
	}
}

func TestParseEventLine_BlankMarkers(t *testing.T) {
	got := ParseEventLine(jobEndLine(map[int]string{
		idxQOS:      "-",
		idxFeatures: "-",
		idxQueue:    "-",
		idxMemory:   "-",
	}))
	if got.Outcome != OutcomeAccepted {
		t.Fatalf("outcome = %v (%s)", got.Outcome, got.Detail)
	}
	ev := got.Event
	if ev.QOSRequested != "" || ev.QOSDelivered != "" || ev.Features != "" || ev.Queue != "" || ev.MemoryMB != 0 {
		t.Fatalf("blank markers not mapped to empty: %+v", ev)
	}

	got = ParseEventLine(jobEndLine(map[int]string{idxQOS: "-:premium"}))
	if got.Event.QOSRequested != "" || got.Event.QOSDelivered != "premium" {
		t.Fatalf("qos = %q:%q, want :premium", got.Event.QOSRequested, got.Event.QOSDelivered)
	}
}

func TestParseEventLine_UnparseableSizesStillAccepted(t *testing.T) {
	tests := []struct {
		name    string
		reqWall string
		memory  string
	}{
		{name: "word walltime", reqWall: "unlimited", memory: "4096M"},
		{name: "clock walltime", reqWall: "02:00:00", memory: "4096M"},
		{name: "gigabyte memory", reqWall: "7200", memory: "4G"},
		{name: "fractional memory", reqWall: "7200", memory: "12.5M"},
		{name: "both", reqWall: "n/a", memory: "lots"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseEventLine(jobEndLine(map[int]string{idxReqWall: tt.reqWall, idxMemory: tt.memory}))
			if got.Outcome != OutcomeAccepted {
				t.Fatalf("outcome = %v (%s), want accepted", got.Outcome, got.Detail)
			}
			ev := got.Event
			if _, ok := ParseInt(tt.reqWall); !ok && ev.ReqWall != 0 {
				t.Errorf("reqwall = %d, want 0", ev.ReqWall)
			}
			if _, ok := parseMegabytes(tt.memory); !ok && ev.MemoryMB != 0 {
				t.Errorf("memory = %d, want 0", ev.MemoryMB)
			}
			if ev.ServiceUnits != 4.0 {
				t.Errorf("service units = %v, want 4", ev.ServiceUnits)
			}
		})
	}
}

func TestSplitQOS(t *testing.T) {
	tests := []struct {
		in, req, del string
	}{
		{"a:b", "a", "b"},
		{"a", "a", ""},
		{"-", "", ""},
		{"a:-", "a", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		req, del := splitQOS(tt.in)
		if req != tt.req || del != tt.del {
			t.Errorf("splitQOS(%q) = %q,%q want %q,%q", tt.in, req, del, tt.req, tt.del)
		}
	}
}
