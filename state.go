package authkit

import "github.com/MrEthical07/authkit/session"

// State is the caller-owned view of one client's authentication. The engine
// never keeps a current session of its own; callers pass State back in.
//
// A nil or zero State is anonymous. State values are immutable; operations
// that change the session return a new one.
type State struct {
	sessionID        string
	accountID        string
	email            string
	username         string
	marker           string
	rememberSelector string
	remembered       bool
	suspicious       bool
}

func newState(sess *session.Session, suspicious bool) *State {
	return &State{
		sessionID:        sess.ID,
		accountID:        sess.AccountID,
		email:            sess.Email,
		username:         sess.Username,
		marker:           sess.Marker,
		rememberSelector: sess.RememberSelector,
		remembered:       sess.Remembered,
		suspicious:       suspicious,
	}
}

// IsLoggedIn reports whether the state carries a session.
func (s *State) IsLoggedIn() bool {
	return s != nil && s.sessionID != "" && s.accountID != ""
}

// UserID returns the account id, or "" when anonymous.
func (s *State) UserID() string {
	if s == nil {
		return ""
	}
	return s.accountID
}

func (s *State) Email() string {
	if s == nil {
		return ""
	}
	return s.email
}

func (s *State) Username() string {
	if s == nil {
		return ""
	}
	return s.username
}

// IsRemembered reports whether the session was established with a
// remember-me secret rather than a password.
func (s *State) IsRemembered() bool {
	return s != nil && s.remembered
}

// SessionID is the opaque id the transport carries to the client.
func (s *State) SessionID() string {
	if s == nil {
		return ""
	}
	return s.sessionID
}

// AntiForgeryToken returns the session's marker. It changes whenever the
// session id does.
func (s *State) AntiForgeryToken() string {
	if s == nil {
		return ""
	}
	return s.marker
}

// Suspicious reports whether the client fingerprint drifted when the
// session was resumed.
func (s *State) Suspicious() bool {
	return s != nil && s.suspicious
}
