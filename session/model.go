package session

import "time"

// Session is one authenticated client session.
//
// Remembered is true only for sessions established through a remember-me
// secret. RememberSelector names the secret the session depends on so it can
// be revoked together with the session.
type Session struct {
	ID string

	AccountID string
	Email     string
	Username  string

	Remembered       bool
	RememberSelector string

	// Marker is the anti-forgery token. It rotates whenever the session id
	// does.
	Marker      string
	AddressHash [32]byte
	AgentHash   [32]byte

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Grant describes the identity a new session is issued for.
type Grant struct {
	AccountID        string
	Email            string
	Username         string
	Remembered       bool
	RememberSelector string
}

func (s *Session) grant() Grant {
	return Grant{
		AccountID:        s.AccountID,
		Email:            s.Email,
		Username:         s.Username,
		Remembered:       s.Remembered,
		RememberSelector: s.RememberSelector,
	}
}

// Status is the outcome of validating a session.
type Status uint8

const (
	// StatusStale means the session does not exist or has expired.
	StatusStale Status = iota
	// StatusValid means the session exists and the client looks unchanged.
	StatusValid
	// StatusSuspicious means the session exists but the client fingerprint
	// drifted beyond what the policy tolerates.
	StatusSuspicious
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusSuspicious:
		return "suspicious"
	default:
		return "stale"
	}
}
