package httpflow

import "time"

// Connection owns one TCP connection's worth of transactions and drives
// both the request-side and response-side state machines (spec §3
// "Connection", spec §5 "Scheduling model"). It generalizes the
// teacher's http11.Connection (atomic state, Serve() loop, keep-alive
// bookkeeping) from a blocking per-socket accept loop into the
// cooperative two-direction stepper spec §5 requires: the driver pushes
// bytes in, Connection never blocks on I/O itself.
type Connection struct {
	Config *Config

	RemoteAddr string
	RemotePort int
	LocalAddr  string
	LocalPort  int

	OpenedAt time.Time
	ClosedAt time.Time

	open   bool
	closed bool

	// transactions is append-only; a nil slot marks a detached
	// transaction (spec §9 "Transaction FIFO with nullable slots ...
	// re-architect as an append-only vector of Optional<Transaction>").
	transactions []*Transaction

	// outNextTxIndex is the response side's read cursor into
	// transactions (spec §4.6 "Transaction matching").
	outNextTxIndex int

	// Pipelined latches true once more than one transaction has been
	// outstanding at once (spec §3 Connection flag "pipelined").
	Pipelined bool

	reqSide  *requestSide
	respSide *responseSide

	lastError  *ParseError
	logRecords []LogRecord
}

// NewConnection constructs an unopened Connection bound to cfg. cfg is
// cloned (spec §4.6 "When a connection needs private configuration, it
// deep-copies the config and the hook lists") so later per-connection
// Hooks.Register calls never mutate a Config shared with other
// connections.
func NewConnection(cfg *Config) *Connection {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Connection{Config: cfg.Clone()}
}

// Open binds endpoint metadata and readies both directions (spec §6
// "open(remote_addr, remote_port, local_addr, local_port, timestamp)").
// Calling Open twice is an input fatal (spec §7 "Input fatals").
func (c *Connection) Open(remoteAddr string, remotePort int, localAddr string, localPort int, at time.Time) error {
	if c.open {
		return ErrAlreadyOpen
	}
	c.RemoteAddr = remoteAddr
	c.RemotePort = remotePort
	c.LocalAddr = localAddr
	c.LocalPort = localPort
	c.OpenedAt = at
	c.open = true
	c.reqSide = newRequestSide(c)
	c.respSide = newResponseSide(c)
	return nil
}

// Close marks the stream closed and drives any pending close-delimited
// or latched finalization on both directions via a zero-length,
// closed-sentinel feed (spec §6 "close(timestamp): marks stream closed;
// triggers pending finalization on both directions via zero-length
// feeds").
func (c *Connection) Close(at time.Time) error {
	if !c.open {
		return ErrNotOpen
	}
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	c.ClosedAt = at
	c.reqSide.Feed(nil, true)
	c.respSide.Feed(nil, true)
	return nil
}

// FeedRequest pushes the next chunk of request-side bytes (spec §6
// "feed_request(timestamp, bytes, len)").
func (c *Connection) FeedRequest(at time.Time, data []byte) (Result, error) {
	if !c.open {
		return Fatal, ErrNotOpen
	}
	if c.closed && len(data) != 0 {
		return Fatal, ErrClosed
	}
	res, perr := c.reqSide.Feed(data, c.closed)
	if perr != nil {
		return res, perr
	}
	return res, nil
}

// FeedResponse pushes the next chunk of response-side bytes (spec §6
// "feed_response(timestamp, bytes, len)").
func (c *Connection) FeedResponse(at time.Time, data []byte) (Result, error) {
	if !c.open {
		return Fatal, ErrNotOpen
	}
	if c.closed && len(data) != 0 {
		return Fatal, ErrClosed
	}
	res, perr := c.respSide.Feed(data, c.closed)
	if perr != nil {
		return res, perr
	}
	return res, nil
}

// LastError returns the most recent fatal retained on the connection
// (spec §7 "Visibility"), or nil if none has occurred.
func (c *Connection) LastError() *ParseError {
	return c.lastError
}

// ClearLastError clears the retained fatal record (spec §7 "Visibility
// ... until explicitly cleared").
func (c *Connection) ClearLastError() {
	c.lastError = nil
}

// Logs returns the connection's retained log records (spec §3
// "Connection ... a list of log records").
func (c *Connection) Logs() []LogRecord {
	return c.logRecords
}

// Transaction returns the transaction at idx, or nil if idx is out of
// range or the slot was detached.
func (c *Connection) Transaction(idx int) *Transaction {
	if idx < 0 || idx >= len(c.transactions) {
		return nil
	}
	return c.transactions[idx]
}

// TransactionCount returns the number of transaction slots, detached
// (nil) slots included.
func (c *Connection) TransactionCount() int {
	return len(c.transactions)
}

// allocateTransaction appends a new Transaction and fires
// transaction-start (spec §3 "Transaction ... created when the request
// idle-state sees first byte").
func (c *Connection) allocateTransaction() *Transaction {
	tx := newTransaction(len(c.transactions))
	c.transactions = append(c.transactions, tx)
	c.Config.Hooks.Dispatch(HookTransactionStart, tx, nil)
	return tx
}

// detachTransaction nils out a transaction's slot without shifting any
// other transaction's index (spec §3 "nullable slots permit
// detachment").
func (c *Connection) detachTransaction(idx int) {
	if idx >= 0 && idx < len(c.transactions) {
		c.transactions[idx] = nil
	}
}

// recordFatal retains perr as last_error (spec §7 "Visibility").
func (c *Connection) recordFatal(perr *ParseError) {
	c.lastError = perr
	c.appendLog(LogLevelError, 0, 0, perr.Offset, perr.Error())
}

// flagOnce sets flag on tx and appends+dispatches a log record the
// first time that flag transitions from unset to set on this
// transaction (spec §7 "emit a log event once per transaction per
// category"). Calling it again for an already-set flag is a no-op,
// which is what makes it safe to call from deep inside per-line/per-
// header code paths without separate bookkeeping.
func (c *Connection) flagOnce(tx *Transaction, flag Flags, offset int64, message string) {
	if tx.Flags.Has(flag) {
		return
	}
	tx.Flags |= flag
	c.appendLog(LogLevelWarning, flag, tx.Index, offset, message)
}

// appendLog retains a LogRecord and dispatches the Log hook (spec §6
// hook taxonomy "log").
func (c *Connection) appendLog(level LogLevel, flag Flags, txIndex int, offset int64, message string) {
	rec := LogRecord{Level: level, Flag: flag, TransactionIndex: txIndex, Offset: offset, Message: message}
	c.logRecords = append(c.logRecords, rec)
	var tx *Transaction
	if txIndex >= 0 && txIndex < len(c.transactions) {
		tx = c.transactions[txIndex]
	}
	c.Config.Hooks.Dispatch(HookLog, tx, []byte(message))
}
