// Package alarm implements GrepWise's Alarm Scheduler: periodic query
// evaluation against a threshold, an OK/FIRING/UNKNOWN state machine with
// per-group sub-states and throttled resends, and dispatch to notification
// sinks on transition.
package alarm

// ThresholdOp is a comparison operator applied to an alarm's observed value.
type ThresholdOp string

const (
	OpGreaterThan    ThresholdOp = ">"
	OpGreaterOrEqual ThresholdOp = ">="
	OpLessThan       ThresholdOp = "<"
	OpLessOrEqual    ThresholdOp = "<="
	OpEqual          ThresholdOp = "="
	OpNotEqual       ThresholdOp = "!="
)

// Compare reports whether observed satisfies op against threshold.
func (op ThresholdOp) Compare(observed, threshold float64) bool {
	switch op {
	case OpGreaterThan:
		return observed > threshold
	case OpGreaterOrEqual:
		return observed >= threshold
	case OpLessThan:
		return observed < threshold
	case OpLessOrEqual:
		return observed <= threshold
	case OpEqual:
		return observed == threshold
	case OpNotEqual:
		return observed != threshold
	default:
		return false
	}
}

// State is an alarm's (or alarm group's) lifecycle state.
type State string

const (
	StateOK      State = "OK"
	StateFiring  State = "FIRING"
	StateUnknown State = "UNKNOWN"
)

// Alarm is a periodic query-threshold-notify rule. Fields mirror the data
// model's Alarm entity; GroupBy splits evaluation into independently
// tracked sub-states, one per distinct group-key value observed.
type Alarm struct {
	ID             string
	Name           string
	Query          string
	WindowMillis   int64
	ThresholdOp    ThresholdOp
	ThresholdValue float64
	IntervalMillis int64
	GroupBy        []string
	ThrottleMillis int64
	Channels       []string
	Enabled        bool

	LastEvalTS  int64
	LastFiredTS int64
	LastState   State

	// Groups holds each group key's sub-state, keyed by the group_key string
	// produced by query.Result.Stats. Unused when GroupBy is empty.
	Groups map[string]*GroupState
}

// GroupState tracks one group key's independent state machine.
type GroupState struct {
	State       State
	LastFiredTS int64
}

// Clone returns a deep copy safe to hand to callers outside the Store's lock.
func (a Alarm) Clone() Alarm {
	cp := a
	cp.GroupBy = append([]string(nil), a.GroupBy...)
	cp.Channels = append([]string(nil), a.Channels...)
	if a.Groups != nil {
		cp.Groups = make(map[string]*GroupState, len(a.Groups))
		for k, v := range a.Groups {
			gs := *v
			cp.Groups[k] = &gs
		}
	}
	return cp
}

// Notification is the payload handed to every channel on a FIRING
// transition or an allowed resend.
type Notification struct {
	AlarmID       string
	Name          string
	GroupKey      string // "" for ungrouped alarms
	ObservedValue float64
	Threshold     float64
	TimestampMS   int64
	SampleLogs    []string // already redacted with redact.MaskAlarm
}
