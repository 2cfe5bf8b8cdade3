// ABOUTME: Session states of the live voice overlay and their status text
// ABOUTME: Status strings are the Afaan Oromo labels shown to the user
package overlay

// State is the overlay session state
type State int

const (
	StateConnecting State = iota
	StateActive
	StateTalkingAI
	StateTalkingUser
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateTalkingAI:
		return "talking-ai"
	case StateTalkingUser:
		return "talking-user"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Live reports whether the state belongs to an open session
func (s State) Live() bool {
	return s == StateActive || s == StateTalkingAI || s == StateTalkingUser
}

// Status text
const (
	StatusConnecting  = "Gariirsaa jira..."
	StatusActive      = "Haasa'aa Jiru"
	StatusTalkingAI   = "Ashamaa Dubbachaa Jira..."
	StatusTalkingUser = "Si Dhaggeeffachaa Jira..."
	StatusClosed      = "Marii xumurameera"
)

// Snapshot is the UI-facing view of the controller
type Snapshot struct {
	State         State
	Status        string
	AITalking     bool
	UserTalking   bool
	Error         string
	ErrorCategory string
	Generation    uint64
}

func statusFor(s State) string {
	switch s {
	case StateConnecting:
		return StatusConnecting
	case StateActive:
		return StatusActive
	case StateTalkingAI:
		return StatusTalkingAI
	case StateTalkingUser:
		return StatusTalkingUser
	case StateClosed:
		return StatusClosed
	default:
		return ""
	}
}
