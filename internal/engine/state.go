package engine

import (
	"fmt"
	"sync/atomic"
)

// State is the lifecycle of one engine instance:
// Uninitialized -> Initialized -> Processing -> Destroyed.
// Destroyed is terminal.
type State int32

const (
	Uninitialized State = iota
	Initialized
	Processing
	Destroyed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case Processing:
		return "processing"
	case Destroyed:
		return "destroyed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// stateBox lets control goroutines read the state the render goroutine writes.
type stateBox struct {
	v atomic.Int32
}

func (b *stateBox) get() State {
	return State(b.v.Load())
}

func (b *stateBox) set(s State) {
	b.v.Store(int32(s))
}
