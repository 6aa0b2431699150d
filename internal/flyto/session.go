package flyto

import (
	"sync"
	"time"

	"github.com/tiiuae/drclink/internal/types"
)

// AckState is the reply state of the current fly-to request.
type AckState int

const (
	AckPending AckState = iota
	AckAccepted
	AckRejected
)

func (a AckState) String() string {
	switch a {
	case AckAccepted:
		return "accepted"
	case AckRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// Progress is the last progress code of the current fly-to.
type Progress int

const (
	ProgressNoData Progress = iota
	ProgressCancelled
	ProgressFailed
	ProgressSucceeded
	ProgressInProgress
)

func (p Progress) String() string {
	switch p {
	case ProgressCancelled:
		return "cancelled"
	case ProgressFailed:
		return "failed"
	case ProgressSucceeded:
		return "succeeded"
	case ProgressInProgress:
		return "in progress"
	default:
		return "no data"
	}
}

// ProgressFromStatus maps a wayline status string. Unknown strings map to NoData.
func ProgressFromStatus(status string) Progress {
	switch status {
	case types.WaylineCancel:
		return ProgressCancelled
	case types.WaylineFailed:
		return ProgressFailed
	case types.WaylineOK:
		return ProgressSucceeded
	case types.WaylineProgress:
		return ProgressInProgress
	default:
		return ProgressNoData
	}
}

// Phase is the orchestrator state of the current fly-to.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingAck
	PhaseInProgress
	PhaseTerminal
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingAck:
		return "awaiting ack"
	case PhaseInProgress:
		return "in progress"
	case PhaseTerminal:
		return "terminal"
	default:
		return "idle"
	}
}

// State is a copy of the session.
type State struct {
	FlyID     string
	TID       string
	Ack       AckState
	Progress  Progress
	Phase     Phase
	LastEvent time.Time
}

// Session is the correlation state of one vehicle's fly-to. The ingester writes
// replies and progress events, the orchestrator polls.
type Session struct {
	mu    sync.Mutex
	state State
}

func NewSession() *Session {
	return &Session{}
}

// Reset starts a new correlation: new id, Pending, NoData.
func (s *Session) Reset(flyID, tid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{
		FlyID:     flyID,
		TID:       tid,
		Ack:       AckPending,
		Progress:  ProgressNoData,
		Phase:     PhaseIdle,
		LastEvent: time.Now(),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) CurrentID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.FlyID
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Phase = p
	if p == PhaseInProgress {
		s.state.LastEvent = time.Now()
	}
}

// HandleReply applies a fly_to_point reply. Result 0 accepts, anything else rejects.
// A reply carrying a tid other than the current request's is ignored, as is any
// reply once the ack is settled. It reports whether the reply was applied.
func (s *Session) HandleReply(tid string, result int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.FlyID == "" || s.state.Ack != AckPending {
		return false
	}
	if tid != "" && s.state.TID != "" && tid != s.state.TID {
		return false
	}
	if result == 0 {
		s.state.Ack = AckAccepted
	} else {
		s.state.Ack = AckRejected
	}
	return true
}

// HandleProgress applies a fly_to_point_progress event for flyID. Events for any
// other id are stale and ignored. It reports whether the event was applied.
func (s *Session) HandleProgress(flyID, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if flyID == "" || flyID != s.state.FlyID {
		return false
	}
	if p := ProgressFromStatus(status); p != ProgressNoData {
		s.state.Progress = p
	}
	s.state.LastEvent = time.Now()
	return true
}
