package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authkit/internal"
	"github.com/jonboulle/clockwork"
)

// ErrEntropy is returned when the system random source fails.
var ErrEntropy = errors.New("random source unavailable")

// Policy decides how fingerprint drift is treated.
type Policy uint8

const (
	// PolicyFlag reports a changed user agent as suspicious but keeps the
	// session. Address-only changes are normal for mobile clients and stay
	// valid.
	PolicyFlag Policy = iota
	// PolicyIgnore never reports drift.
	PolicyIgnore
	// PolicyStrict reports any drift as suspicious and destroys the session.
	PolicyStrict
)

func (p Policy) String() string {
	switch p {
	case PolicyIgnore:
		return "ignore"
	case PolicyStrict:
		return "strict"
	default:
		return "flag"
	}
}

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "flag":
		return PolicyFlag, nil
	case "ignore":
		return PolicyIgnore, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicyFlag, fmt.Errorf("unknown fingerprint policy %q", s)
	}
}

// Fingerprint is the loose client identity observed on a request. Either
// field may be empty when unknown.
type Fingerprint struct {
	Address string
	Agent   string
}

// Config configures a Manager.
type Config struct {
	TTL time.Duration
	// RememberTTL is the lifetime of remembered sessions. Zero means TTL.
	RememberTTL time.Duration
	Policy      Policy
}

// Manager owns the session lifecycle.
type Manager struct {
	store Store
	clock clockwork.Clock
	cfg   Config
}

// NewManager returns a manager over store. A nil clock means the real clock.
func NewManager(store Store, clock clockwork.Clock, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session: store required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("session: ttl must be > 0")
	}
	if cfg.RememberTTL < 0 {
		return nil, errors.New("session: remember ttl must be >= 0")
	}
	if cfg.RememberTTL == 0 {
		cfg.RememberTTL = cfg.TTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{store: store, clock: clock, cfg: cfg}, nil
}

// Start issues a brand-new session for g. An id the client held before,
// passed as previousID, is invalidated in the same atomic step, so an id
// planted before authentication is worthless afterwards.
func (m *Manager) Start(ctx context.Context, previousID string, g Grant, fp Fingerprint) (*Session, error) {
	if g.AccountID == "" {
		return nil, errors.New("session: account id required")
	}

	now := m.clock.Now()
	ttl := m.ttlFor(g.Remembered)
	sess := &Session{
		AccountID:        g.AccountID,
		Email:            g.Email,
		Username:         g.Username,
		Remembered:       g.Remembered,
		RememberSelector: g.RememberSelector,
		AddressHash:      internal.HashClientValue(fp.Address),
		AgentHash:        internal.HashClientValue(fp.Agent),
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}
	if err := m.assignIdentity(sess, previousID); err != nil {
		return nil, err
	}

	if err := m.store.Replace(ctx, previousID, sess, ttl); err != nil {
		return nil, err
	}
	return sess, nil
}

// Regenerate moves sess to a new id and marker, keeping its identity and
// fingerprint. Use it on privilege changes.
func (m *Manager) Regenerate(ctx context.Context, sess *Session) (*Session, error) {
	if sess == nil || sess.ID == "" {
		return nil, ErrNotFound
	}

	now := m.clock.Now()
	g := sess.grant()
	ttl := m.ttlFor(g.Remembered)
	next := &Session{
		AccountID:        g.AccountID,
		Email:            g.Email,
		Username:         g.Username,
		Remembered:       g.Remembered,
		RememberSelector: g.RememberSelector,
		AddressHash:      sess.AddressHash,
		AgentHash:        sess.AgentHash,
		CreatedAt:        sess.CreatedAt,
		ExpiresAt:        now.Add(ttl),
	}
	if err := m.assignIdentity(next, sess.ID); err != nil {
		return nil, err
	}

	if err := m.store.Replace(ctx, sess.ID, next, ttl); err != nil {
		return nil, err
	}
	return next, nil
}

// Validate loads the session for id and compares it to the observed
// fingerprint.
//
// A missing or expired session is StatusStale with a nil session. Drift
// yields StatusSuspicious with the session still returned; under
// PolicyStrict it has already been destroyed.
func (m *Manager) Validate(ctx context.Context, id string, fp Fingerprint) (*Session, Status, error) {
	// Malformed ids cannot name a session; skip the round trip.
	if _, err := internal.ParseSessionID(id); err != nil {
		return nil, StatusStale, nil
	}

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt) {
			return nil, StatusStale, nil
		}
		return nil, StatusStale, err
	}

	if !m.clock.Now().Before(sess.ExpiresAt) {
		if _, err := m.store.Delete(ctx, id); err != nil {
			return nil, StatusStale, err
		}
		return nil, StatusStale, nil
	}

	if !m.drifted(sess, fp) {
		return sess, StatusValid, nil
	}

	if m.cfg.Policy == PolicyStrict {
		if _, err := m.store.Delete(ctx, id); err != nil {
			return sess, StatusSuspicious, err
		}
	}
	return sess, StatusSuspicious, nil
}

// Destroy removes the session. It returns the removed session, or nil when
// it was already gone; destroying twice is not an error.
func (m *Manager) Destroy(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	return m.store.Delete(ctx, id)
}

// DestroyAll removes every session of accountID.
func (m *Manager) DestroyAll(ctx context.Context, accountID string) error {
	return m.store.DeleteAllForAccount(ctx, accountID)
}

// DestroyOthers removes every session of accountID except keepID.
func (m *Manager) DestroyOthers(ctx context.Context, accountID, keepID string) error {
	ids, err := m.store.ListForAccount(ctx, accountID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == keepID {
			continue
		}
		if _, err := m.store.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Policy returns the configured fingerprint policy.
func (m *Manager) Policy() Policy {
	return m.cfg.Policy
}

func (m *Manager) ttlFor(remembered bool) time.Duration {
	if remembered {
		return m.cfg.RememberTTL
	}
	return m.cfg.TTL
}

// drifted applies the policy. Components unknown on either side never
// count as drift.
func (m *Manager) drifted(sess *Session, fp Fingerprint) bool {
	if m.cfg.Policy == PolicyIgnore {
		return false
	}

	agentChanged := changed(sess.AgentHash, fp.Agent)
	if m.cfg.Policy == PolicyStrict {
		return agentChanged || changed(sess.AddressHash, fp.Address)
	}
	return agentChanged
}

func changed(recorded [32]byte, observed string) bool {
	if recorded == ([32]byte{}) || observed == "" {
		return false
	}
	return recorded != internal.HashClientValue(observed)
}

func (m *Manager) assignIdentity(sess *Session, avoid string) error {
	for {
		sid, err := internal.NewSessionID()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEntropy, err)
		}
		if id := sid.String(); id != avoid {
			sess.ID = id
			break
		}
	}

	marker, err := internal.NewMarker()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	sess.Marker = marker
	return nil
}
