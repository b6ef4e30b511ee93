package parsers

import (
	"fmt"
	"strings"
	"time"

	"github.com/emanehab99/gstar-stats/internal/core"
)

// Outcome classifies one event log line.
type Outcome int

const (
	OutcomeAccepted Outcome = iota
	// OutcomeNotJob is a record for something other than a job.
	OutcomeNotJob
	// OutcomeNotTerminal is a job record for a non-final lifecycle state.
	OutcomeNotTerminal
	// OutcomeMalformed is a job end record that could not be read.
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeNotJob:
		return "not_job"
	case OutcomeNotTerminal:
		return "not_terminal"
	case OutcomeMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ParsedLine is the result of ParseEventLine. Event is set only when Outcome
// is OutcomeAccepted; Detail explains a malformed line.
type ParsedLine struct {
	Outcome Outcome
	Event   core.JobEvent
	Detail  string
}

const jobRecordType = "job"

// Token positions in a whitespace separated event record.
const (
	idxEventStamp   = 1
	idxRecordType   = 2
	idxJobID        = 3
	idxSubType      = 4
	idxNodes        = 5
	idxCPUs         = 6
	idxUser         = 7
	idxGroup        = 8
	idxReqWall      = 9
	idxQueue        = 11
	idxSubmit       = 12
	idxStart        = 14
	idxEnd          = 15
	idxFeatures     = 22
	idxQOS          = 26
	idxAccount      = 28
	idxPartition    = 33
	idxMemory       = 37
	idxReservation  = 43
	idxEligible     = 55
	minTypeTokens   = idxSubType + 1
	minRecordTokens = idxEligible + 1
)

// ParseEventLine turns one event log line into a job end event or explains
// why it was rejected. It never panics on short or garbled input.
func ParseEventLine(line string) ParsedLine {
	tok := strings.Fields(line)
	if len(tok) <= idxRecordType || tok[idxRecordType] != jobRecordType {
		return ParsedLine{Outcome: OutcomeNotJob}
	}
	if len(tok) < minTypeTokens || tok[idxSubType] != core.TerminalEventType {
		return ParsedLine{Outcome: OutcomeNotTerminal}
	}
	if len(tok) < minRecordTokens {
		return malformed("have %d tokens, need %d", len(tok), minRecordTokens)
	}

	stamp, eventID, _ := strings.Cut(tok[idxEventStamp], ":")
	eventTime, ok := ParseEpoch(stamp)
	if !ok {
		return malformed("event time %q", tok[idxEventStamp])
	}
	jobID := StatValue(tok[idxJobID])
	if jobID == "" {
		return malformed("empty job id")
	}
	if eventID == "" {
		eventID = jobID + "@" + stamp
	}

	nodes, ok := ParseInt(tok[idxNodes])
	if !ok || nodes < 0 {
		return malformed("nodes %q", tok[idxNodes])
	}
	cpus, ok := ParseInt(tok[idxCPUs])
	if !ok || cpus < 0 {
		return malformed("cpus %q", tok[idxCPUs])
	}

	var epochs [4]time.Time
	for i, idx := range []int{idxSubmit, idxStart, idxEnd, idxEligible} {
		t, ok := ParseEpoch(tok[idx])
		if !ok {
			return malformed("epoch at %d: %q", idx, tok[idx])
		}
		epochs[i] = t
	}
	submit, start, end, eligible := epochs[0], epochs[1], epochs[2], epochs[3]

	// Requested walltime and memory are informational; unreadable values read as zero.
	reqWall, _ := ParseInt(StatValue(tok[idxReqWall]))
	memory, _ := parseMegabytes(tok[idxMemory])

	qosReq, qosDel := splitQOS(tok[idxQOS])

	ev := core.JobEvent{
		EventID:      eventID,
		EventTime:    eventTime,
		EventType:    core.TerminalEventType,
		Nodes:        int(nodes),
		CPUs:         int(cpus),
		User:         StatValue(tok[idxUser]),
		Group:        StatValue(tok[idxGroup]),
		Account:      StatValue(tok[idxAccount]),
		JobID:        jobID,
		Submit:       submit,
		Start:        start,
		End:          end,
		Eligible:     eligible,
		Queue:        normalizeQueue(tok[idxQueue]),
		ReqWall:      int(reqWall),
		MemoryMB:     memory,
		Partition:    StatValue(tok[idxPartition]),
		Features:     StatValue(tok[idxFeatures]),
		Reservation:  StatValue(tok[idxReservation]),
		QOSRequested: qosReq,
		QOSDelivered: qosDel,
	}
	ev.ServiceUnits = core.ServiceUnits(start, end, ev.CPUs)
	return ParsedLine{Outcome: OutcomeAccepted, Event: ev}
}

func malformed(format string, args ...any) ParsedLine {
	return ParsedLine{Outcome: OutcomeMalformed, Detail: fmt.Sprintf(format, args...)}
}
