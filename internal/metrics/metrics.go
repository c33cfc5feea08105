// Package metrics provides lightweight, lock-free counters and gauges
// for tracking connect attempts and the connections they produce.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	hlerr "httplink/internal/errors"
)

// numStages bounds the failure table; index 0 collects unclassified
// failures.
const numStages = int(hlerr.StageHandshake) + 1

// Collector tracks runtime metrics for an httplink process.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	attempts          atomic.Int64
	connectsPlain     atomic.Int64
	connectsSecure    atomic.Int64
	failures          [numStages]atomic.Int64
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	errorsTotal       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connect attempts ─────────────────────────────────────────────────

// ConnectAttempt records the start of a connect attempt.
func (c *Collector) ConnectAttempt() {
	if c == nil {
		return
	}
	c.attempts.Add(1)
}

// ConnectSucceeded records a completed attempt and opens a connection.
func (c *Collector) ConnectSucceeded(secure bool) {
	if c == nil {
		return
	}
	if secure {
		c.connectsSecure.Add(1)
	} else {
		c.connectsPlain.Add(1)
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectFailed records a failed attempt against the stage that
// failed and stores the error message.
func (c *Collector) ConnectFailed(stage hlerr.Stage, err error) {
	if c == nil {
		return
	}
	idx := int(stage)
	if idx < 0 || idx >= numStages {
		idx = 0
	}
	c.failures[idx].Add(1)
	if err != nil {
		c.RecordError(err.Error())
	}
}

// Attempts returns the number of connect attempts started.
func (c *Collector) Attempts() int64 {
	if c == nil {
		return 0
	}
	return c.attempts.Load()
}

// Successes returns the number of successful plain or secure connects.
func (c *Collector) Successes(secure bool) int64 {
	if c == nil {
		return 0
	}
	if secure {
		return c.connectsSecure.Load()
	}
	return c.connectsPlain.Load()
}

// Failures returns the number of attempts that failed at stage.
func (c *Collector) Failures(stage hlerr.Stage) int64 {
	if c == nil {
		return 0
	}
	idx := int(stage)
	if idx < 0 || idx >= numStages {
		idx = 0
	}
	return c.failures[idx].Load()
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string           `json:"uptime"`
	ConnectAttempts   int64            `json:"connect_attempts"`
	ConnectsPlain     int64            `json:"connects_plain"`
	ConnectsSecure    int64            `json:"connects_secure"`
	Failures          map[string]int64 `json:"failures,omitempty"`
	ConnectionsActive int64            `json:"connections_active"`
	ConnectionsTotal  int64            `json:"connections_total"`
	BytesIn           int64            `json:"bytes_in"`
	BytesOut          int64            `json:"bytes_out"`
	ErrorsTotal       int64            `json:"errors_total"`
	LastError         string           `json:"last_error,omitempty"`
	LastErrorMessage  string           `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.  Stages that never
// failed are omitted from Failures.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectAttempts:   c.attempts.Load(),
		ConnectsPlain:     c.connectsPlain.Load(),
		ConnectsSecure:    c.connectsSecure.Load(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	for i := range c.failures {
		if n := c.failures[i].Load(); n > 0 {
			if s.Failures == nil {
				s.Failures = make(map[string]int64)
			}
			s.Failures[hlerr.Stage(i).String()] = n
		}
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
