package device

import "sync/atomic"

// Metrics contains atomic counters for a Device.
type Metrics struct {
	// CommandCount indicates the number of commands issued.
	CommandCount atomic.Uint64
	// ReplyCount indicates the number of successful replies.
	ReplyCount atomic.Uint64
	// DeviceErrCount indicates the number of error-flagged replies.
	DeviceErrCount atomic.Uint64
	// TimeoutCount indicates the number of commands that timed out.
	TimeoutCount atomic.Uint64
}

func (m *Metrics) incCommandCount()   { m.CommandCount.Add(1) }
func (m *Metrics) incReplyCount()     { m.ReplyCount.Add(1) }
func (m *Metrics) incDeviceErrCount() { m.DeviceErrCount.Add(1) }
func (m *Metrics) incTimeoutCount()   { m.TimeoutCount.Add(1) }
