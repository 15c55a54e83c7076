package httpflow

// HookEvent enumerates the hook taxonomy spec §6 registers via
// configuration: one event per meaningful transaction milestone plus a
// catch-all Log event for anomaly visibility.
type HookEvent int

const (
	HookTransactionStart HookEvent = iota
	HookRequestLine
	HookRequestURINormalize
	HookRequestHeaders
	HookRequestBodyData
	HookRequestFileData
	HookRequestTrailer
	HookRequestComplete
	HookResponseStart
	HookResponseLine
	HookResponseHeaders
	HookResponseBodyData
	HookResponseTrailer
	HookResponseComplete
	HookLog
)

// HookFunc is a single registered callback. A non-nil error from a
// run-all hook aborts the dispatch (and the transaction); "declined" for
// a run-one hook is signaled by returning errDeclined.
type HookFunc func(tx *Transaction, data []byte) error

// errDeclined is a sentinel a run-one hook returns to mean "not my
// concern, try the next one" (spec §6 "run-one: first non-declined
// wins").
var errDeclined = &ParseError{Code: ErrCodeNone, Message: "declined"}

// Declined reports whether err is the run-one decline sentinel.
func Declined(err error) bool {
	return err == errDeclined
}

// ErrDeclined is the exported form callers register hooks against.
var ErrDeclined = errDeclined

// HookList is an ordered set of callbacks for one HookEvent.
type HookList struct {
	fns []HookFunc
}

// Register appends fn to the list. Order is significant for both
// dispatch modes: run-all runs every entry in order until one errors,
// run-one tries each in order until one doesn't decline.
func (l *HookList) Register(fn HookFunc) {
	l.fns = append(l.fns, fn)
}

// RunAll invokes every hook in order, stopping at (and returning) the
// first error (spec §6 "run-all: stop on first error").
func (l *HookList) RunAll(tx *Transaction, data []byte) error {
	for _, fn := range l.fns {
		if err := fn(tx, data); err != nil {
			return err
		}
	}
	return nil
}

// RunOne invokes hooks in order until one returns a non-decline result,
// and returns that result. If every hook declines (or none are
// registered), RunOne returns nil (spec §6 "run-one: first non-declined
// wins").
func (l *HookList) RunOne(tx *Transaction, data []byte) error {
	for _, fn := range l.fns {
		err := fn(tx, data)
		if !Declined(err) {
			return err
		}
	}
	return nil
}

// Clone returns a HookList for clone-on-write configuration (spec §4.6
// "Shared resources": "When a connection needs private configuration,
// it deep-copies the config and the hook lists").
func (l *HookList) Clone() *HookList {
	cloned := &HookList{fns: make([]HookFunc, len(l.fns))}
	copy(cloned.fns, l.fns)
	return cloned
}

// Hooks is the full registered set for one Config, one HookList per
// HookEvent. All dispatch through Hooks is run-all except the body-data,
// file-data and log events, which are run-one so a body sink (urlencoded,
// multipart, raw) can claim ownership of a transaction's body stream
// without every other registered sink also consuming it.
type Hooks struct {
	lists [HookLog + 1]HookList
}

func newHooks() *Hooks {
	return &Hooks{}
}

// Register adds fn to the named event's list.
func (h *Hooks) Register(event HookEvent, fn HookFunc) {
	h.lists[event].Register(fn)
}

// Dispatch runs the event's hooks with the mode appropriate to that
// event type.
func (h *Hooks) Dispatch(event HookEvent, tx *Transaction, data []byte) error {
	list := &h.lists[event]
	switch event {
	case HookRequestBodyData, HookResponseBodyData, HookRequestFileData, HookLog:
		return list.RunOne(tx, data)
	default:
		return list.RunAll(tx, data)
	}
}

// Clone deep-copies every event's hook list for a per-connection private
// Config (spec §4.6 "Shared resources").
func (h *Hooks) Clone() *Hooks {
	cloned := newHooks()
	for i := range h.lists {
		cloned.lists[i] = *h.lists[i].Clone()
	}
	return cloned
}
