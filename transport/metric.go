package transport

import (
	"sync/atomic"
)

// Metrics contains atomic counters for a transport.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// BytesRead indicates the number of bytes read from the stream.
	BytesRead atomic.Uint64
	// BytesWritten indicates the number of bytes written to the stream.
	BytesWritten atomic.Uint64

	// MsgRecvCount indicates the number of messages reassembled.
	MsgRecvCount atomic.Uint64
	// MsgSendCount indicates the number of messages written.
	MsgSendCount atomic.Uint64
	// MsgSendErrCount indicates the number of failed writes.
	MsgSendErrCount atomic.Uint64

	// DiscardedBytes indicates the number of bytes skipped while resynchronizing.
	DiscardedBytes atomic.Uint64
	// DroppedErrorEvents indicates the number of error events suppressed.
	DroppedErrorEvents atomic.Uint64

	// SubscriberGauge indicates the number of active subscriptions.
	SubscriberGauge atomic.Int64
}

func (m *Metrics) addBytesRead(n int) {
	m.BytesRead.Add(uint64(n))
}

func (m *Metrics) incMsgRecvCount() {
	m.MsgRecvCount.Add(1)
}

func (m *Metrics) incMsgSend(n int) {
	m.MsgSendCount.Add(1)
	m.BytesWritten.Add(uint64(n))
}

func (m *Metrics) incMsgSendErrCount() {
	m.MsgSendErrCount.Add(1)
}

func (m *Metrics) storeReassembly(discarded, droppedErrors uint64) {
	m.DiscardedBytes.Store(discarded)
	m.DroppedErrorEvents.Store(droppedErrors)
}

func (m *Metrics) incSubscriberGauge() {
	m.SubscriberGauge.Add(1)
}

func (m *Metrics) decSubscriberGauge() {
	m.SubscriberGauge.Add(-1)
}
