package transport

import "sync/atomic"

// State is the lifecycle state of a Transport.
type State uint32

const (
	// OpenState is the state of a running transport.
	OpenState State = iota
	// ClosingState is entered when Close is called.
	ClosingState
	// ClosedState is terminal: the read loop has exited.
	ClosedState
)

func (s State) String() string {
	switch s {
	case OpenState:
		return "Open"
	case ClosingState:
		return "Closing"
	case ClosedState:
		return "Closed"
	default:
		return "Unknown"
	}
}

type atomicState struct {
	state atomic.Uint32
}

func (st *atomicState) Get() State {
	return State(st.state.Load())
}

func (st *atomicState) IsOpen() bool {
	return st.Get() == OpenState
}

// ToClosing reports whether the caller won the transition from Open.
func (st *atomicState) ToClosing() bool {
	return st.state.CompareAndSwap(uint32(OpenState), uint32(ClosingState))
}

func (st *atomicState) ToClosed() {
	st.state.Store(uint32(ClosedState))
}
