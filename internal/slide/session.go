package slide

import (
	"fmt"
	"sync/atomic"

	"github.com/ironsheep/slide-tools-mcp/internal/slideerr"
	"github.com/ironsheep/slide-tools-mcp/internal/tilestore"
)

// State is a session lifecycle state:
//
//	Closed -> Opening -> {ReadOnly | WriteOnly} -> Closed
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateReadOnly
	StateWriteOnly
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateReadOnly:
		return "read-only"
	case StateWriteOnly:
		return "write-only"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// session binds one path to one tile store for the lifetime of a handle.
type session struct {
	path   string
	store  *tilestore.Store
	state  atomic.Int32
	logger Logger
}

// State returns the current lifecycle state.
func (s *session) State() State {
	return State(s.state.Load())
}

// Path returns the file the session is bound to.
func (s *session) Path() string {
	return s.path
}

func (s *session) require(op string, want State) error {
	if got := s.State(); got != want {
		return slideerr.New(op, slideerr.ErrSessionClosed, "%s is %s", s.path, got)
	}
	return nil
}

// leave moves the session from `from` to Closed exactly once.
func (s *session) leave(op string, from State) error {
	if !s.state.CompareAndSwap(int32(from), int32(StateClosed)) {
		return slideerr.New(op, slideerr.ErrSessionClosed, "%s is %s", s.path, s.State())
	}
	return nil
}
