package session

// State is the session-layer connection state machine (spec.md §4.6).
type State int32

const (
	Disconnected State = iota
	Connecting
	LogonSent
	LoggedOn
	LogoutSent
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case LogonSent:
		return "LOGON_SENT"
	case LoggedOn:
		return "LOGGED_ON"
	case LogoutSent:
		return "LOGOUT_SENT"
	case Disconnecting:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}
